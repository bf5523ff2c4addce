package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"diocese/internal/allocator"
	"diocese/internal/directory"
	"diocese/pkg/apperrors"
)

// InMemory implements every directory store against maps. It backs unit
// tests and local runs and intentionally favors clarity over performance.
type InMemory struct {
	mu          sync.RWMutex
	regions     map[string]directory.Region
	zones       map[string]directory.Zone
	people      map[string]directory.Person // keyed by code
	peopleByID  map[uuid.UUID]string
	departments map[string]directory.Department
}

func NewInMemory() *InMemory {
	return &InMemory{
		regions:     make(map[string]directory.Region),
		zones:       make(map[string]directory.Zone),
		people:      make(map[string]directory.Person),
		peopleByID:  make(map[uuid.UUID]string),
		departments: make(map[string]directory.Department),
	}
}

// --- RegionStore ---

func (s *InMemory) Save(ctx context.Context, region directory.Region) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.regions[region.Code]; ok {
		return apperrors.Newf(apperrors.CodeConflict, "region %s already exists", region.Code)
	}
	s.regions[region.Code] = region
	return nil
}

func (s *InMemory) FindByCode(ctx context.Context, code string) (directory.Region, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if region, ok := s.regions[code]; ok {
		return region, nil
	}
	return directory.Region{}, ErrNotFound
}

func (s *InMemory) List(ctx context.Context) ([]directory.Region, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	regions := make([]directory.Region, 0, len(s.regions))
	for _, r := range s.regions {
		regions = append(regions, r)
	}
	sort.Slice(regions, func(i, j int) bool { return regions[i].Code < regions[j].Code })
	return regions, nil
}

func (s *InMemory) Update(ctx context.Context, region directory.Region) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.regions[region.Code]; !ok {
		return ErrNotFound
	}
	s.regions[region.Code] = region
	return nil
}

func (s *InMemory) Delete(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.regions[code]; !ok {
		return ErrNotFound
	}
	delete(s.regions, code)
	return nil
}

// Region / Zone / Person / Department share one struct, so the remaining
// stores get explicit method names through thin view types.

// Regions returns the RegionStore view.
func (s *InMemory) Regions() RegionStore { return s }

// Zones returns the ZoneStore view.
func (s *InMemory) Zones() ZoneStore { return (*memZones)(s) }

// People returns the PersonStore view.
func (s *InMemory) People() PersonStore { return (*memPeople)(s) }

// Departments returns the DepartmentStore view.
func (s *InMemory) Departments() DepartmentStore { return (*memDepartments)(s) }

type memZones InMemory

func (s *memZones) Save(ctx context.Context, zone directory.Zone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.zones[zone.Code]; ok {
		return apperrors.Newf(apperrors.CodeConflict, "zone %s already exists", zone.Code)
	}
	s.zones[zone.Code] = zone
	return nil
}

func (s *memZones) FindByCode(ctx context.Context, code string) (directory.Zone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if zone, ok := s.zones[code]; ok {
		return zone, nil
	}
	return directory.Zone{}, ErrNotFound
}

func (s *memZones) ListByRegion(ctx context.Context, regionCode string) ([]directory.Zone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var zones []directory.Zone
	for _, z := range s.zones {
		if regionCode == "" || z.RegionCode == regionCode {
			zones = append(zones, z)
		}
	}
	sort.Slice(zones, func(i, j int) bool { return zones[i].Code < zones[j].Code })
	return zones, nil
}

func (s *memZones) Update(ctx context.Context, zone directory.Zone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.zones[zone.Code]; !ok {
		return ErrNotFound
	}
	s.zones[zone.Code] = zone
	return nil
}

func (s *memZones) Delete(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.zones[code]; !ok {
		return ErrNotFound
	}
	delete(s.zones, code)
	return nil
}

type memPeople InMemory

func (s *memPeople) Save(ctx context.Context, person directory.Person) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.people[person.Code]; ok {
		return apperrors.Newf(apperrors.CodeConflict, "person %s already exists", person.Code)
	}
	s.people[person.Code] = person
	s.peopleByID[person.ID] = person.Code
	return nil
}

func (s *memPeople) FindByID(ctx context.Context, id uuid.UUID) (directory.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if code, ok := s.peopleByID[id]; ok {
		return s.people[code], nil
	}
	return directory.Person{}, ErrNotFound
}

func (s *memPeople) FindByCode(ctx context.Context, code string) (directory.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if person, ok := s.people[code]; ok {
		return person, nil
	}
	return directory.Person{}, ErrNotFound
}

func (s *memPeople) ListByZone(ctx context.Context, zoneCode string, role allocator.Role) ([]directory.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var people []directory.Person
	for _, p := range s.people {
		if zoneCode != "" && p.ZoneCode != zoneCode {
			continue
		}
		if role != "" && p.Role != role {
			continue
		}
		people = append(people, p)
	}
	sort.Slice(people, func(i, j int) bool { return people[i].Code < people[j].Code })
	return people, nil
}

func (s *memPeople) CountByZone(ctx context.Context, zoneCode string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, p := range s.people {
		if p.ZoneCode == zoneCode {
			count++
		}
	}
	return count, nil
}

func (s *memPeople) CountByDepartment(ctx context.Context, departmentCode string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, p := range s.people {
		if p.DepartmentCode == departmentCode {
			count++
		}
	}
	return count, nil
}

func (s *memPeople) Update(ctx context.Context, person directory.Person, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.people[person.Code]
	if !ok {
		return ErrNotFound
	}
	if current.Version != expectedVersion {
		return apperrors.Newf(apperrors.CodeConcurrentModification,
			"person %s is at version %d, expected %d", person.Code, current.Version, expectedVersion)
	}
	person.Version = expectedVersion + 1
	s.people[person.Code] = person
	return nil
}

func (s *memPeople) Delete(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	person, ok := s.people[code]
	if !ok {
		return ErrNotFound
	}
	delete(s.people, code)
	delete(s.peopleByID, person.ID)
	return nil
}

type memDepartments InMemory

func (s *memDepartments) Save(ctx context.Context, dept directory.Department) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.departments[dept.Code]; ok {
		return apperrors.Newf(apperrors.CodeConflict, "department %s already exists", dept.Code)
	}
	s.departments[dept.Code] = dept
	return nil
}

func (s *memDepartments) FindByCode(ctx context.Context, code string) (directory.Department, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if dept, ok := s.departments[code]; ok {
		return dept, nil
	}
	return directory.Department{}, ErrNotFound
}

func (s *memDepartments) ListByZone(ctx context.Context, zoneCode string) ([]directory.Department, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var depts []directory.Department
	for _, d := range s.departments {
		if zoneCode == "" || d.ZoneCode == zoneCode {
			depts = append(depts, d)
		}
	}
	sort.Slice(depts, func(i, j int) bool { return depts[i].Code < depts[j].Code })
	return depts, nil
}

func (s *memDepartments) Update(ctx context.Context, dept directory.Department) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.departments[dept.Code]; !ok {
		return ErrNotFound
	}
	s.departments[dept.Code] = dept
	return nil
}

func (s *memDepartments) SetHead(ctx context.Context, code string, personID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dept, ok := s.departments[code]
	if !ok {
		return ErrNotFound
	}
	dept.HeadPersonID = &personID
	s.departments[code] = dept
	return nil
}

func (s *memDepartments) Delete(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.departments[code]; !ok {
		return ErrNotFound
	}
	delete(s.departments, code)
	return nil
}

// --- CodeIndex ---

func (s *InMemory) ParentExists(ctx context.Context, role allocator.Role, parentCode string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch role {
	case allocator.RoleRegion:
		_, ok := s.regions[parentCode]
		return ok, nil
	case allocator.RoleZone:
		_, ok := s.zones[parentCode]
		return ok, nil
	default:
		return false, nil
	}
}

func (s *InMemory) ListCodes(ctx context.Context, scope allocator.Scope) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var codes []string
	switch scope.Role {
	case allocator.RoleRegion:
		for code := range s.regions {
			codes = append(codes, code)
		}
	case allocator.RoleZone:
		for code, z := range s.zones {
			if z.RegionCode == scope.ParentCode {
				codes = append(codes, code)
			}
		}
	case allocator.RolePastor, allocator.RoleDeacon, allocator.RoleMember:
		for code, p := range s.people {
			if p.Role == scope.Role && p.ZoneCode == scope.ParentCode {
				codes = append(codes, code)
			}
		}
	case allocator.RoleDepartment:
		for code, d := range s.departments {
			if d.ZoneCode == scope.ParentCode {
				codes = append(codes, code)
			}
		}
	}
	sort.Strings(codes)
	return codes, nil
}
