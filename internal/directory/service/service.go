package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"diocese/internal/allocator"
	"diocese/internal/audit"
	"diocese/internal/directory"
	"diocese/internal/directory/store"
	"diocese/pkg/apperrors"
	"diocese/pkg/platform/tx"
	"diocese/pkg/requestcontext"
)

// Allocator mints and parses hierarchical entity codes.
type Allocator interface {
	Allocate(ctx context.Context, role allocator.Role, parentCode string) (string, error)
	Parse(code string) (allocator.ParsedCode, error)
}

// Recorder appends audit entries without ever failing the caller.
type Recorder interface {
	Record(ctx context.Context, action audit.Action, entityType, entityID string, oldValue, newValue any)
}

// Stores bundles the repository interfaces the service operates on.
type Stores struct {
	Regions     store.RegionStore
	Zones       store.ZoneStore
	People      store.PersonStore
	Departments store.DepartmentStore
}

// Service is the entity repository: it mints codes through the allocator,
// persists records, and writes one audit entry per mutation. Every create
// runs allocation and persistence in one atomic unit so a failed insert
// never leaves the sequence counter pointing at a phantom code.
type Service struct {
	stores   Stores
	alloc    Allocator
	recorder Recorder
	runner   tx.Runner
	logger   *slog.Logger
}

func New(stores Stores, alloc Allocator, recorder Recorder, runner tx.Runner, logger *slog.Logger) *Service {
	return &Service{
		stores:   stores,
		alloc:    alloc,
		recorder: recorder,
		runner:   runner,
		logger:   logger,
	}
}

// CreateEntity dispatches creation by role. Handlers that already know the
// resource use the typed methods directly.
func (s *Service) CreateEntity(ctx context.Context, role allocator.Role, parentCode string, attrs directory.Attributes) (any, error) {
	switch role {
	case allocator.RoleRegion:
		return s.CreateRegion(ctx, attrs)
	case allocator.RoleZone:
		return s.CreateZone(ctx, parentCode, attrs)
	case allocator.RolePastor, allocator.RoleDeacon, allocator.RoleMember:
		return s.CreatePerson(ctx, role, parentCode, attrs)
	case allocator.RoleDepartment:
		return s.CreateDepartment(ctx, parentCode, attrs)
	}
	return nil, apperrors.Newf(apperrors.CodeValidation, "unknown role %q", role)
}

func (s *Service) CreateRegion(ctx context.Context, attrs directory.Attributes) (directory.Region, error) {
	if attrs.Name == "" {
		return directory.Region{}, apperrors.New(apperrors.CodeValidation, "name is required")
	}

	var region directory.Region
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		code, err := s.alloc.Allocate(ctx, allocator.RoleRegion, "")
		if err != nil {
			return err
		}
		now := requestcontext.Now(ctx).UTC()
		region = directory.Region{Code: code, Name: attrs.Name, CreatedAt: now, UpdatedAt: now}
		return s.stores.Regions.Save(ctx, region)
	})
	if err != nil {
		return directory.Region{}, err
	}

	s.recorder.Record(ctx, audit.ActionCreate, "region", region.Code, nil, region)
	return region, nil
}

func (s *Service) CreateZone(ctx context.Context, regionCode string, attrs directory.Attributes) (directory.Zone, error) {
	if attrs.Name == "" {
		return directory.Zone{}, apperrors.New(apperrors.CodeValidation, "name is required")
	}

	var zone directory.Zone
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		code, err := s.alloc.Allocate(ctx, allocator.RoleZone, regionCode)
		if err != nil {
			return err
		}
		now := requestcontext.Now(ctx).UTC()
		zone = directory.Zone{Code: code, RegionCode: regionCode, Name: attrs.Name, CreatedAt: now, UpdatedAt: now}
		return s.stores.Zones.Save(ctx, zone)
	})
	if err != nil {
		return directory.Zone{}, err
	}

	s.recorder.Record(ctx, audit.ActionCreate, "zone", zone.Code, nil, zone)
	return zone, nil
}

func (s *Service) CreatePerson(ctx context.Context, role allocator.Role, zoneCode string, attrs directory.Attributes) (directory.Person, error) {
	if !directory.IsPersonRole(role) {
		return directory.Person{}, apperrors.Newf(apperrors.CodeValidation, "role %q is not a person role", role)
	}
	if attrs.Name == "" {
		return directory.Person{}, apperrors.New(apperrors.CodeValidation, "name is required")
	}
	if attrs.DepartmentCode != "" {
		if err := s.requireDepartmentInZone(ctx, attrs.DepartmentCode, zoneCode); err != nil {
			return directory.Person{}, err
		}
	}

	var person directory.Person
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		code, err := s.alloc.Allocate(ctx, role, zoneCode)
		if err != nil {
			return err
		}
		now := requestcontext.Now(ctx).UTC()
		person = directory.Person{
			ID:             uuid.New(),
			Code:           code,
			Role:           role,
			Name:           attrs.Name,
			Phone:          attrs.Phone,
			Email:          attrs.Email,
			ZoneCode:       zoneCode,
			DepartmentCode: attrs.DepartmentCode,
			Version:        1,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		return s.stores.People.Save(ctx, person)
	})
	if err != nil {
		return directory.Person{}, err
	}

	s.recorder.Record(ctx, audit.ActionCreate, "person", person.Code, nil, person)
	return person, nil
}

func (s *Service) CreateDepartment(ctx context.Context, zoneCode string, attrs directory.Attributes) (directory.Department, error) {
	if attrs.Name == "" {
		return directory.Department{}, apperrors.New(apperrors.CodeValidation, "name is required")
	}

	var dept directory.Department
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		code, err := s.alloc.Allocate(ctx, allocator.RoleDepartment, zoneCode)
		if err != nil {
			return err
		}
		now := requestcontext.Now(ctx).UTC()
		dept = directory.Department{Code: code, ZoneCode: zoneCode, Name: attrs.Name, CreatedAt: now, UpdatedAt: now}
		return s.stores.Departments.Save(ctx, dept)
	})
	if err != nil {
		return directory.Department{}, err
	}

	s.recorder.Record(ctx, audit.ActionCreate, "department", dept.Code, nil, dept)
	return dept, nil
}

func (s *Service) GetRegion(ctx context.Context, code string) (directory.Region, error) {
	return s.stores.Regions.FindByCode(ctx, code)
}

func (s *Service) GetZone(ctx context.Context, code string) (directory.Zone, error) {
	return s.stores.Zones.FindByCode(ctx, code)
}

func (s *Service) GetPerson(ctx context.Context, code string) (directory.Person, error) {
	return s.stores.People.FindByCode(ctx, code)
}

func (s *Service) GetDepartment(ctx context.Context, code string) (directory.Department, error) {
	return s.stores.Departments.FindByCode(ctx, code)
}

func (s *Service) ListRegions(ctx context.Context) ([]directory.Region, error) {
	return s.stores.Regions.List(ctx)
}

func (s *Service) ListZones(ctx context.Context, regionCode string) ([]directory.Zone, error) {
	return s.stores.Zones.ListByRegion(ctx, regionCode)
}

func (s *Service) ListPeople(ctx context.Context, zoneCode string, role allocator.Role) ([]directory.Person, error) {
	if role != "" && !directory.IsPersonRole(role) {
		return nil, apperrors.Newf(apperrors.CodeValidation, "role %q is not a person role", role)
	}
	return s.stores.People.ListByZone(ctx, zoneCode, role)
}

func (s *Service) ListDepartments(ctx context.Context, zoneCode string) ([]directory.Department, error) {
	return s.stores.Departments.ListByZone(ctx, zoneCode)
}

// ParseCode recovers (role, parentCode, sequence) from a minted code.
func (s *Service) ParseCode(code string) (allocator.ParsedCode, error) {
	return s.alloc.Parse(code)
}

func (s *Service) UpdateRegion(ctx context.Context, code string, attrs directory.Attributes) (directory.Region, error) {
	if attrs.Name == "" {
		return directory.Region{}, apperrors.New(apperrors.CodeValidation, "name is required")
	}

	old, err := s.stores.Regions.FindByCode(ctx, code)
	if err != nil {
		return directory.Region{}, err
	}
	updated := old
	updated.Name = attrs.Name
	updated.UpdatedAt = requestcontext.Now(ctx).UTC()
	if err := s.stores.Regions.Update(ctx, updated); err != nil {
		return directory.Region{}, err
	}

	s.recorder.Record(ctx, audit.ActionUpdate, "region", code, old, updated)
	return updated, nil
}

func (s *Service) UpdateZone(ctx context.Context, code string, attrs directory.Attributes) (directory.Zone, error) {
	if attrs.Name == "" {
		return directory.Zone{}, apperrors.New(apperrors.CodeValidation, "name is required")
	}

	old, err := s.stores.Zones.FindByCode(ctx, code)
	if err != nil {
		return directory.Zone{}, err
	}
	updated := old
	updated.Name = attrs.Name
	updated.UpdatedAt = requestcontext.Now(ctx).UTC()
	if err := s.stores.Zones.Update(ctx, updated); err != nil {
		return directory.Zone{}, err
	}

	s.recorder.Record(ctx, audit.ActionUpdate, "zone", code, old, updated)
	return updated, nil
}

// UpdatePerson changes contact fields and department membership. Zone moves
// go through the transfer coordinator, never through here.
func (s *Service) UpdatePerson(ctx context.Context, code string, attrs directory.Attributes) (directory.Person, error) {
	if attrs.Name == "" {
		return directory.Person{}, apperrors.New(apperrors.CodeValidation, "name is required")
	}

	old, err := s.stores.People.FindByCode(ctx, code)
	if err != nil {
		return directory.Person{}, err
	}
	if attrs.DepartmentCode != "" && attrs.DepartmentCode != old.DepartmentCode {
		if err := s.requireDepartmentInZone(ctx, attrs.DepartmentCode, old.ZoneCode); err != nil {
			return directory.Person{}, err
		}
	}

	updated := old
	updated.Name = attrs.Name
	updated.Phone = attrs.Phone
	updated.Email = attrs.Email
	updated.DepartmentCode = attrs.DepartmentCode
	updated.UpdatedAt = requestcontext.Now(ctx).UTC()
	if err := s.stores.People.Update(ctx, updated, old.Version); err != nil {
		return directory.Person{}, err
	}
	updated.Version = old.Version + 1

	s.recorder.Record(ctx, audit.ActionUpdate, "person", code, old, updated)
	return updated, nil
}

func (s *Service) UpdateDepartment(ctx context.Context, code string, attrs directory.Attributes) (directory.Department, error) {
	if attrs.Name == "" {
		return directory.Department{}, apperrors.New(apperrors.CodeValidation, "name is required")
	}

	old, err := s.stores.Departments.FindByCode(ctx, code)
	if err != nil {
		return directory.Department{}, err
	}
	updated := old
	updated.Name = attrs.Name
	updated.UpdatedAt = requestcontext.Now(ctx).UTC()
	if err := s.stores.Departments.Update(ctx, updated); err != nil {
		return directory.Department{}, err
	}

	s.recorder.Record(ctx, audit.ActionUpdate, "department", code, old, updated)
	return updated, nil
}

// DeleteRegion removes a region that has no zones left. The region's code is
// never reissued. The emptiness check and the delete share one atomic unit
// so a concurrent zone-create cannot slip between them.
func (s *Service) DeleteRegion(ctx context.Context, code string) error {
	var old directory.Region
	err := s.runner.RunInTx(tx.WithLockKey(ctx, code), func(ctx context.Context) error {
		var err error
		if old, err = s.stores.Regions.FindByCode(ctx, code); err != nil {
			return err
		}
		zones, err := s.stores.Zones.ListByRegion(ctx, code)
		if err != nil {
			return err
		}
		if len(zones) > 0 {
			return apperrors.Newf(apperrors.CodeConflict,
				"region %s still has %d zones", code, len(zones))
		}
		return s.stores.Regions.Delete(ctx, code)
	})
	if err != nil {
		return err
	}

	s.recorder.Record(ctx, audit.ActionDelete, "region", code, old, nil)
	return nil
}

// DeleteZone refuses while people are still assigned; the caller must
// transfer them out first.
func (s *Service) DeleteZone(ctx context.Context, code string) error {
	var old directory.Zone
	err := s.runner.RunInTx(tx.WithLockKey(ctx, code), func(ctx context.Context) error {
		var err error
		if old, err = s.stores.Zones.FindByCode(ctx, code); err != nil {
			return err
		}
		count, err := s.stores.People.CountByZone(ctx, code)
		if err != nil {
			return err
		}
		if count > 0 {
			return apperrors.Newf(apperrors.CodeConflict,
				"zone %s still has %d people assigned", code, count)
		}
		return s.stores.Zones.Delete(ctx, code)
	})
	if err != nil {
		return err
	}

	s.recorder.Record(ctx, audit.ActionDelete, "zone", code, old, nil)
	return nil
}

func (s *Service) DeletePerson(ctx context.Context, code string) error {
	old, err := s.stores.People.FindByCode(ctx, code)
	if err != nil {
		return err
	}
	if err := s.stores.People.Delete(ctx, code); err != nil {
		return err
	}

	s.recorder.Record(ctx, audit.ActionDelete, "person", code, old, nil)
	return nil
}

func (s *Service) DeleteDepartment(ctx context.Context, code string) error {
	var old directory.Department
	err := s.runner.RunInTx(tx.WithLockKey(ctx, code), func(ctx context.Context) error {
		var err error
		if old, err = s.stores.Departments.FindByCode(ctx, code); err != nil {
			return err
		}
		count, err := s.stores.People.CountByDepartment(ctx, code)
		if err != nil {
			return err
		}
		if count > 0 {
			return apperrors.Newf(apperrors.CodeConflict,
				"department %s still has %d people assigned", code, count)
		}
		return s.stores.Departments.Delete(ctx, code)
	})
	if err != nil {
		return err
	}

	s.recorder.Record(ctx, audit.ActionDelete, "department", code, old, nil)
	return nil
}

func (s *Service) requireDepartmentInZone(ctx context.Context, deptCode, zoneCode string) error {
	dept, err := s.stores.Departments.FindByCode(ctx, deptCode)
	if err != nil {
		if apperrors.Is(err, apperrors.CodeNotFound) {
			return apperrors.Newf(apperrors.CodeValidation, "department %s does not exist", deptCode)
		}
		return err
	}
	if dept.ZoneCode != zoneCode {
		return apperrors.Newf(apperrors.CodeValidation,
			"department %s belongs to zone %s", deptCode, dept.ZoneCode)
	}
	return nil
}
