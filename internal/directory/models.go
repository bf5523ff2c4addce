// Package directory is the entity repository: regions, zones, people, and
// departments keyed by their allocated codes. Codes are minted once at
// creation and never reassigned; deleting an entity never frees its code.
package directory

import (
	"time"

	"github.com/google/uuid"

	"diocese/internal/allocator"
)

// Region is a top-level organizational unit.
type Region struct {
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Zone is a subdivision of a region.
type Zone struct {
	Code       string    `json:"code"`
	RegionCode string    `json:"region_code"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Person is a pastor, deacon, or member attached to a zone. The role is a
// closed tag; role-specific behavior goes through explicit branches, never
// through storage-target string building. Version backs optimistic locking
// for transfers.
type Person struct {
	ID             uuid.UUID      `json:"id"`
	Code           string         `json:"code"`
	Role           allocator.Role `json:"role"`
	Name           string         `json:"name"`
	Phone          string         `json:"phone,omitempty"`
	Email          string         `json:"email,omitempty"`
	ZoneCode       string         `json:"zone_code"`
	DepartmentCode string         `json:"department_code,omitempty"`
	Version        int64          `json:"version"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Department is a functional group within a zone with an optional head.
type Department struct {
	Code         string     `json:"code"`
	ZoneCode     string     `json:"zone_code"`
	Name         string     `json:"name"`
	HeadPersonID *uuid.UUID `json:"head_person_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Attributes carries the caller-supplied fields for entity creation; the
// code itself is always minted by the allocator.
type Attributes struct {
	Name           string `json:"name"`
	Phone          string `json:"phone,omitempty"`
	Email          string `json:"email,omitempty"`
	DepartmentCode string `json:"department_code,omitempty"`
}

// PersonRoles are the roles stored as Person records.
func PersonRoles() []allocator.Role {
	return []allocator.Role{allocator.RolePastor, allocator.RoleDeacon, allocator.RoleMember}
}

// IsPersonRole reports whether role is stored as a Person record.
func IsPersonRole(role allocator.Role) bool {
	switch role {
	case allocator.RolePastor, allocator.RoleDeacon, allocator.RoleMember:
		return true
	}
	return false
}
