// Package allocator mints and parses the hierarchical entity codes used as
// primary identifiers across the directory: regions, zones, people, and
// departments. Codes are human-readable, stable for the lifetime of the
// entity, and never reassigned.
package allocator

import (
	"strconv"
	"strings"

	"diocese/pkg/apperrors"
)

// Role identifies the kind of entity a code names.
type Role string

const (
	RoleRegion     Role = "region"
	RoleZone       Role = "zone"
	RolePastor     Role = "pastor"
	RoleDeacon     Role = "deacon"
	RoleDepartment Role = "department"
	RoleMember     Role = "member"
)

// ParseRole validates a role string from an API request.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleRegion, RoleZone, RolePastor, RoleDeacon, RoleDepartment, RoleMember:
		return Role(s), nil
	}
	return "", apperrors.Newf(apperrors.CodeValidation, "unknown role %q", s)
}

// ParentRole returns the role of the immediately containing entity, or ""
// for regions, which sit at the top of the hierarchy.
func (r Role) ParentRole() Role {
	switch r {
	case RoleZone:
		return RoleRegion
	case RolePastor, RoleDeacon, RoleDepartment, RoleMember:
		return RoleZone
	default:
		return ""
	}
}

// markers distinguish roles allocated under a zone. Zone codes themselves are
// prefixed with R followed by fixed-width digits, so single letters here
// cannot collide with the zone format.
var markers = map[Role]byte{
	RolePastor:     'P',
	RoleDeacon:     'D',
	RoleMember:     'M',
	RoleDepartment: 'T',
}

var rolesByMarker = map[byte]Role{
	'P': RolePastor,
	'D': RoleDeacon,
	'M': RoleMember,
	'T': RoleDepartment,
}

// Fixed-width segments hold two digits; sequence 100 cannot be represented
// and must surface as FormatOverflow rather than truncate.
const maxFixedWidthSeq = 99

const zoneCodeLen = 5 // "R" + region(2) + zone(2)

// Scope is the namespace within which sequence numbers are unique: one
// counter per (role, parentCode) pair.
type Scope struct {
	Role       Role
	ParentCode string
}

// ParsedCode is the decomposition of an entity code.
type ParsedCode struct {
	Role       Role
	ParentCode string
	Sequence   int64
}

// Format renders the code for the given role, parent, and sequence number.
//
//	region:     01
//	zone:       R0101
//	pastor:     R0101P1   (unpadded sequence)
//	deacon:     R0101D1
//	member:     R0101M1
//	department: R0101T1
func Format(role Role, parentCode string, seq int64) (string, error) {
	if seq < 1 {
		return "", apperrors.Newf(apperrors.CodeInternal, "sequence %d out of range", seq)
	}
	switch role {
	case RoleRegion:
		if seq > maxFixedWidthSeq {
			return "", apperrors.Newf(apperrors.CodeFormatOverflow,
				"region sequence %d exceeds two-digit format", seq)
		}
		return pad2(seq), nil
	case RoleZone:
		if !isRegionCode(parentCode) {
			return "", apperrors.Newf(apperrors.CodeValidation, "invalid region code %q", parentCode)
		}
		if seq > maxFixedWidthSeq {
			return "", apperrors.Newf(apperrors.CodeFormatOverflow,
				"zone sequence %d under region %s exceeds two-digit format", seq, parentCode)
		}
		return "R" + parentCode + pad2(seq), nil
	case RolePastor, RoleDeacon, RoleMember, RoleDepartment:
		if !isZoneCode(parentCode) {
			return "", apperrors.Newf(apperrors.CodeValidation, "invalid zone code %q", parentCode)
		}
		return parentCode + string(markers[role]) + strconv.FormatInt(seq, 10), nil
	default:
		return "", apperrors.Newf(apperrors.CodeValidation, "unknown role %q", role)
	}
}

// Parse deterministically recovers (role, parentCode, sequence) from any
// minted code. Codes that don't match a known template fail with a
// validation error; the sequence store treats those as anomalies when
// seeding counters from existing data.
func Parse(code string) (ParsedCode, error) {
	switch {
	case isRegionCode(code):
		seq, _ := strconv.ParseInt(code, 10, 64)
		if seq == 0 {
			break
		}
		return ParsedCode{Role: RoleRegion, Sequence: seq}, nil

	case isZoneCode(code):
		region := code[1:3]
		seq, _ := strconv.ParseInt(code[3:5], 10, 64)
		if seq == 0 {
			break
		}
		return ParsedCode{Role: RoleZone, ParentCode: region, Sequence: seq}, nil

	case len(code) > zoneCodeLen+1 && isZoneCode(code[:zoneCodeLen]):
		marker := code[zoneCodeLen]
		role, ok := rolesByMarker[marker]
		if !ok {
			break
		}
		digits := code[zoneCodeLen+1:]
		seq, err := strconv.ParseInt(digits, 10, 64)
		// Per-role suffixes are minted unpadded; reject a leading zero so
		// every code has exactly one parse.
		if err != nil || seq < 1 || strings.HasPrefix(digits, "0") {
			break
		}
		return ParsedCode{Role: role, ParentCode: code[:zoneCodeLen], Sequence: seq}, nil
	}
	return ParsedCode{}, apperrors.Newf(apperrors.CodeValidation, "unparseable entity code %q", code)
}

func pad2(n int64) string {
	if n < 10 {
		return "0" + strconv.FormatInt(n, 10)
	}
	return strconv.FormatInt(n, 10)
}

func isRegionCode(s string) bool {
	return len(s) == 2 && isDigits(s)
}

func isZoneCode(s string) bool {
	return len(s) == zoneCodeLen && s[0] == 'R' && isDigits(s[1:])
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}
