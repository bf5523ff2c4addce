package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diocese/internal/allocator"
	allocservice "diocese/internal/allocator/service"
	allocstore "diocese/internal/allocator/store"
	"diocese/internal/audit"
	"diocese/internal/directory"
	"diocese/internal/directory/store"
	"diocese/pkg/apperrors"
	"diocese/pkg/platform/tx"
)

// recordedEntry captures one audit call for assertions.
type recordedEntry struct {
	Action     audit.Action
	EntityType string
	EntityID   string
	OldValue   any
	NewValue   any
}

type stubRecorder struct {
	mu      sync.Mutex
	entries []recordedEntry
}

func (r *stubRecorder) Record(_ context.Context, action audit.Action, entityType, entityID string, oldValue, newValue any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, recordedEntry{action, entityType, entityID, oldValue, newValue})
}

func (r *stubRecorder) last(t *testing.T) recordedEntry {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.entries)
	return r.entries[len(r.entries)-1]
}

func (r *stubRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func newTestService(t *testing.T) (*Service, *store.InMemory, *stubRecorder) {
	t.Helper()
	mem := store.NewInMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	alloc := allocservice.New(allocstore.NewInMemorySequenceStore(), mem, logger, nil)
	recorder := &stubRecorder{}
	svc := New(Stores{
		Regions:     mem.Regions(),
		Zones:       mem.Zones(),
		People:      mem.People(),
		Departments: mem.Departments(),
	}, alloc, recorder, tx.NewShardedRunner(), logger)
	return svc, mem, recorder
}

func seedZone(t *testing.T, svc *Service) directory.Zone {
	t.Helper()
	ctx := context.Background()
	region, err := svc.CreateRegion(ctx, directory.Attributes{Name: "Northern Region"})
	require.NoError(t, err)
	zone, err := svc.CreateZone(ctx, region.Code, directory.Attributes{Name: "Zone One"})
	require.NoError(t, err)
	return zone
}

func TestCreateRegionMintsSequentialCodes(t *testing.T) {
	svc, _, recorder := newTestService(t)
	ctx := context.Background()

	first, err := svc.CreateRegion(ctx, directory.Attributes{Name: "Northern"})
	require.NoError(t, err)
	assert.Equal(t, "01", first.Code)

	second, err := svc.CreateRegion(ctx, directory.Attributes{Name: "Southern"})
	require.NoError(t, err)
	assert.Equal(t, "02", second.Code)

	entry := recorder.last(t)
	assert.Equal(t, audit.ActionCreate, entry.Action)
	assert.Equal(t, "region", entry.EntityType)
	assert.Equal(t, "02", entry.EntityID)
	assert.Nil(t, entry.OldValue)
}

func TestCreateZoneRequiresRegion(t *testing.T) {
	svc, _, recorder := newTestService(t)

	_, err := svc.CreateZone(context.Background(), "99", directory.Attributes{Name: "Orphan Zone"})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeParentNotFound))
	assert.Zero(t, recorder.count())
}

func TestCreatePersonInZone(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	zone := seedZone(t, svc)

	pastor, err := svc.CreatePerson(ctx, allocator.RolePastor, zone.Code, directory.Attributes{
		Name:  "Amos Adjei",
		Phone: "+233201112222",
	})
	require.NoError(t, err)
	assert.Equal(t, zone.Code+"P1", pastor.Code)
	assert.Equal(t, int64(1), pastor.Version)
	assert.NotEqual(t, "", pastor.ID.String())

	member, err := svc.CreatePerson(ctx, allocator.RoleMember, zone.Code, directory.Attributes{Name: "Mary Mensah"})
	require.NoError(t, err)
	assert.Equal(t, zone.Code+"M1", member.Code)
}

func TestCreatePersonRejectsNonPersonRole(t *testing.T) {
	svc, _, _ := newTestService(t)
	zone := seedZone(t, svc)

	_, err := svc.CreatePerson(context.Background(), allocator.RoleZone, zone.Code, directory.Attributes{Name: "x"})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))
}

func TestCreatePersonValidatesDepartment(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	zone := seedZone(t, svc)

	_, err := svc.CreatePerson(ctx, allocator.RoleMember, zone.Code, directory.Attributes{
		Name:           "Mary Mensah",
		DepartmentCode: zone.Code + "T9",
	})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))

	dept, err := svc.CreateDepartment(ctx, zone.Code, directory.Attributes{Name: "Choir"})
	require.NoError(t, err)

	member, err := svc.CreatePerson(ctx, allocator.RoleMember, zone.Code, directory.Attributes{
		Name:           "Mary Mensah",
		DepartmentCode: dept.Code,
	})
	require.NoError(t, err)
	assert.Equal(t, dept.Code, member.DepartmentCode)
}

func TestUpdatePersonBumpsVersionAndAudits(t *testing.T) {
	svc, _, recorder := newTestService(t)
	ctx := context.Background()
	zone := seedZone(t, svc)

	person, err := svc.CreatePerson(ctx, allocator.RoleDeacon, zone.Code, directory.Attributes{Name: "Old Name"})
	require.NoError(t, err)

	updated, err := svc.UpdatePerson(ctx, person.Code, directory.Attributes{Name: "New Name", Email: "new@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "New Name", updated.Name)
	assert.Equal(t, person.Version+1, updated.Version)

	entry := recorder.last(t)
	assert.Equal(t, audit.ActionUpdate, entry.Action)
	assert.Equal(t, "person", entry.EntityType)
	old, ok := entry.OldValue.(directory.Person)
	require.True(t, ok)
	assert.Equal(t, "Old Name", old.Name)
}

func TestDeleteZoneWithPeopleConflicts(t *testing.T) {
	svc, _, recorder := newTestService(t)
	ctx := context.Background()
	zone := seedZone(t, svc)

	person, err := svc.CreatePerson(ctx, allocator.RoleMember, zone.Code, directory.Attributes{Name: "Mary"})
	require.NoError(t, err)

	err = svc.DeleteZone(ctx, zone.Code)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeConflict))

	// Zone untouched, no delete audit entry.
	got, err := svc.GetZone(ctx, zone.Code)
	require.NoError(t, err)
	assert.Equal(t, zone.Code, got.Code)
	assert.Equal(t, audit.ActionCreate, recorder.last(t).Action)

	require.NoError(t, svc.DeletePerson(ctx, person.Code))
	require.NoError(t, svc.DeleteZone(ctx, zone.Code))

	entry := recorder.last(t)
	assert.Equal(t, audit.ActionDelete, entry.Action)
	assert.Equal(t, "zone", entry.EntityType)
	assert.Nil(t, entry.NewValue)
}

func TestDeletedCodeIsNeverReissued(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	zone := seedZone(t, svc)

	first, err := svc.CreatePerson(ctx, allocator.RoleMember, zone.Code, directory.Attributes{Name: "First"})
	require.NoError(t, err)
	require.NoError(t, svc.DeletePerson(ctx, first.Code))

	second, err := svc.CreatePerson(ctx, allocator.RoleMember, zone.Code, directory.Attributes{Name: "Second"})
	require.NoError(t, err)
	assert.NotEqual(t, first.Code, second.Code)
	assert.Equal(t, zone.Code+"M2", second.Code)
}

func TestDeleteRegionWithZonesConflicts(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	zone := seedZone(t, svc)

	err := svc.DeleteRegion(ctx, zone.RegionCode)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeConflict))
}

func TestDeleteDepartmentWithMembersConflicts(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	zone := seedZone(t, svc)

	dept, err := svc.CreateDepartment(ctx, zone.Code, directory.Attributes{Name: "Ushers"})
	require.NoError(t, err)
	_, err = svc.CreatePerson(ctx, allocator.RoleMember, zone.Code, directory.Attributes{
		Name:           "Mary",
		DepartmentCode: dept.Code,
	})
	require.NoError(t, err)

	err = svc.DeleteDepartment(ctx, dept.Code)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeConflict))
}

func TestGetMissingEntity(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.GetPerson(context.Background(), "R0101P9")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
}

func TestListPeopleFiltersByRole(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	zone := seedZone(t, svc)

	_, err := svc.CreatePerson(ctx, allocator.RolePastor, zone.Code, directory.Attributes{Name: "Pastor"})
	require.NoError(t, err)
	_, err = svc.CreatePerson(ctx, allocator.RoleMember, zone.Code, directory.Attributes{Name: "Member A"})
	require.NoError(t, err)
	_, err = svc.CreatePerson(ctx, allocator.RoleMember, zone.Code, directory.Attributes{Name: "Member B"})
	require.NoError(t, err)

	members, err := svc.ListPeople(ctx, zone.Code, allocator.RoleMember)
	require.NoError(t, err)
	assert.Len(t, members, 2)

	all, err := svc.ListPeople(ctx, zone.Code, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestParseCode(t *testing.T) {
	svc, _, _ := newTestService(t)
	zone := seedZone(t, svc)

	parsed, err := svc.ParseCode(zone.Code)
	require.NoError(t, err)
	assert.Equal(t, allocator.RoleZone, parsed.Role)
	assert.Equal(t, zone.RegionCode, parsed.ParentCode)
	assert.Equal(t, int64(1), parsed.Sequence)
}

// unitTrackingRunner flags while an atomic unit is executing so wrapped
// stores can assert their calls happen inside one.
type unitTrackingRunner struct {
	inner  tx.Runner
	active atomic.Bool
}

func (r *unitTrackingRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.inner.RunInTx(ctx, func(ctx context.Context) error {
		r.active.Store(true)
		defer r.active.Store(false)
		return fn(ctx)
	})
}

type unitCheckedPeople struct {
	store.PersonStore
	runner *unitTrackingRunner
	t      *testing.T
}

func (s unitCheckedPeople) CountByZone(ctx context.Context, zoneCode string) (int, error) {
	assert.True(s.t, s.runner.active.Load(), "zone emptiness check ran outside the atomic unit")
	return s.PersonStore.CountByZone(ctx, zoneCode)
}

func (s unitCheckedPeople) CountByDepartment(ctx context.Context, departmentCode string) (int, error) {
	assert.True(s.t, s.runner.active.Load(), "department emptiness check ran outside the atomic unit")
	return s.PersonStore.CountByDepartment(ctx, departmentCode)
}

type unitCheckedDepartments struct {
	store.DepartmentStore
	runner *unitTrackingRunner
	t      *testing.T
}

func (s unitCheckedDepartments) Delete(ctx context.Context, code string) error {
	assert.True(s.t, s.runner.active.Load(), "department delete ran outside the atomic unit")
	return s.DepartmentStore.Delete(ctx, code)
}

type unitCheckedZones struct {
	store.ZoneStore
	runner *unitTrackingRunner
	t      *testing.T
}

func (s unitCheckedZones) Delete(ctx context.Context, code string) error {
	assert.True(s.t, s.runner.active.Load(), "zone delete ran outside the atomic unit")
	return s.ZoneStore.Delete(ctx, code)
}

// Guarded deletes pair an emptiness check with the delete; both must share
// one atomic unit or a concurrent create can slip between them.
func TestGuardedDeletesShareOneAtomicUnit(t *testing.T) {
	mem := store.NewInMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	alloc := allocservice.New(allocstore.NewInMemorySequenceStore(), mem, logger, nil)
	runner := &unitTrackingRunner{inner: tx.NewShardedRunner()}
	svc := New(Stores{
		Regions:     mem.Regions(),
		Zones:       unitCheckedZones{ZoneStore: mem.Zones(), runner: runner, t: t},
		People:      unitCheckedPeople{PersonStore: mem.People(), runner: runner, t: t},
		Departments: unitCheckedDepartments{DepartmentStore: mem.Departments(), runner: runner, t: t},
	}, alloc, &stubRecorder{}, runner, logger)
	ctx := context.Background()

	region, err := svc.CreateRegion(ctx, directory.Attributes{Name: "Northern"})
	require.NoError(t, err)
	zone, err := svc.CreateZone(ctx, region.Code, directory.Attributes{Name: "Zone One"})
	require.NoError(t, err)
	dept, err := svc.CreateDepartment(ctx, zone.Code, directory.Attributes{Name: "Ushers"})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteDepartment(ctx, dept.Code))
	require.NoError(t, svc.DeleteZone(ctx, zone.Code))
	require.NoError(t, svc.DeleteRegion(ctx, region.Code))
	assert.False(t, runner.active.Load())
}
