package store

import (
	"context"

	"github.com/google/uuid"

	"diocese/internal/allocator"
	"diocese/internal/directory"
	"diocese/pkg/apperrors"
)

// Stores are interface-driven so services stay testable against the
// in-memory implementations while production runs on Postgres. All
// implementations join an ambient transaction from context when one is
// present.

var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

type RegionStore interface {
	Save(ctx context.Context, region directory.Region) error
	FindByCode(ctx context.Context, code string) (directory.Region, error)
	List(ctx context.Context) ([]directory.Region, error)
	Update(ctx context.Context, region directory.Region) error
	Delete(ctx context.Context, code string) error
}

type ZoneStore interface {
	Save(ctx context.Context, zone directory.Zone) error
	FindByCode(ctx context.Context, code string) (directory.Zone, error)
	ListByRegion(ctx context.Context, regionCode string) ([]directory.Zone, error)
	Update(ctx context.Context, zone directory.Zone) error
	Delete(ctx context.Context, code string) error
}

type PersonStore interface {
	Save(ctx context.Context, person directory.Person) error
	FindByID(ctx context.Context, id uuid.UUID) (directory.Person, error)
	FindByCode(ctx context.Context, code string) (directory.Person, error)
	ListByZone(ctx context.Context, zoneCode string, role allocator.Role) ([]directory.Person, error)
	CountByZone(ctx context.Context, zoneCode string) (int, error)
	CountByDepartment(ctx context.Context, departmentCode string) (int, error)
	// Update persists person guarded by expectedVersion and bumps the
	// version by one; a stale expectedVersion fails with
	// CodeConcurrentModification and writes nothing.
	Update(ctx context.Context, person directory.Person, expectedVersion int64) error
	Delete(ctx context.Context, code string) error
}

type DepartmentStore interface {
	Save(ctx context.Context, dept directory.Department) error
	FindByCode(ctx context.Context, code string) (directory.Department, error)
	ListByZone(ctx context.Context, zoneCode string) ([]directory.Department, error)
	Update(ctx context.Context, dept directory.Department) error
	SetHead(ctx context.Context, code string, personID uuid.UUID) error
	Delete(ctx context.Context, code string) error
}

// CodeIndex is the allocator-facing view of the directory: parent existence
// and the codes already persisted in a scope.
type CodeIndex interface {
	ParentExists(ctx context.Context, role allocator.Role, parentCode string) (bool, error)
	ListCodes(ctx context.Context, scope allocator.Scope) ([]string, error)
}
