// Package transfer relocates people between zones and departments as one
// atomic unit: history append, person update, and optional headship change
// all commit together or not at all.
package transfer

import (
	"time"

	"github.com/google/uuid"

	"diocese/internal/allocator"
	"diocese/pkg/apperrors"
)

// Type is the kind of relocation requested. HOD transfers additionally move
// department headship to the transferred person.
type Type string

const (
	TypePastor Type = "pastor"
	TypeDeacon Type = "deacon"
	TypeHOD    Type = "hod"
)

// ParseType validates a transfer type from an API request.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypePastor, TypeDeacon, TypeHOD:
		return Type(s), nil
	}
	return "", apperrors.Newf(apperrors.CodeValidation, "unknown transfer type %q", s)
}

// PersonRole is the directory role a transfer type moves. HOD transfers are
// not tied to one role.
func (t Type) PersonRole() (allocator.Role, bool) {
	switch t {
	case TypePastor:
		return allocator.RolePastor, true
	case TypeDeacon:
		return allocator.RoleDeacon, true
	}
	return "", false
}

// State tracks a transfer through its atomic unit. Failures report
// StateFailed with no retained side effects.
type State string

const (
	StateRequested State = "requested"
	StateValidated State = "validated"
	StateApplied   State = "applied"
	StateLogged    State = "logged"
	StateComplete  State = "complete"
	StateFailed    State = "failed"
)

// Request describes one relocation.
type Request struct {
	Type           Type      `json:"transfer_type"`
	PersonCode     string    `json:"person_id"`
	ToZone         string    `json:"to_zone_id"`
	ToDepartment   string    `json:"to_department_id,omitempty"`
	Reason         string    `json:"reason"`
	EffectiveDate  time.Time `json:"transfer_date"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
}

// NaturalKey identifies a transfer for deduplication: a retransmitted
// request with the same key must not append a second history entry.
type NaturalKey struct {
	PersonCode    string
	ToZone        string
	ToDepartment  string
	EffectiveDate time.Time
}

func (r Request) NaturalKey() NaturalKey {
	return NaturalKey{
		PersonCode:    r.PersonCode,
		ToZone:        r.ToZone,
		ToDepartment:  r.ToDepartment,
		EffectiveDate: r.EffectiveDate.UTC().Truncate(24 * time.Hour),
	}
}

// Record is one immutable history entry. Records are never edited or
// removed, even when the person is later deleted.
type Record struct {
	ID             uuid.UUID `json:"id"`
	PersonID       uuid.UUID `json:"person_uuid"`
	PersonCode     string    `json:"person_id"`
	Type           Type      `json:"transfer_type"`
	FromZone       string    `json:"from_zone_id"`
	ToZone         string    `json:"to_zone_id"`
	FromDepartment string    `json:"from_department_id,omitempty"`
	ToDepartment   string    `json:"to_department_id,omitempty"`
	Reason         string    `json:"reason"`
	EffectiveDate  time.Time `json:"transfer_date"`
	CreatedAt      time.Time `json:"created_at"`
}

// Result is returned to the caller on completion, including idempotent
// replays of an earlier identical request.
type Result struct {
	State      State  `json:"state"`
	Record     Record `json:"record"`
	Replayed   bool   `json:"replayed"`
	NewVersion int64  `json:"-"`
}
