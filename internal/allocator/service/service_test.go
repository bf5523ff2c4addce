package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diocese/internal/allocator"
	"diocese/internal/allocator/store"
	"diocese/pkg/apperrors"
)

// stubDirectory emulates the entity repository: known parents plus the codes
// already persisted per scope.
type stubDirectory struct {
	mu      sync.Mutex
	parents map[string]bool
	codes   map[allocator.Scope][]string

	alwaysTaken bool
}

func newStubDirectory() *stubDirectory {
	return &stubDirectory{
		parents: make(map[string]bool),
		codes:   make(map[allocator.Scope][]string),
	}
}

func (d *stubDirectory) addParent(role allocator.Role, code string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.parents[string(role)+"/"+code] = true
}

func (d *stubDirectory) persist(scope allocator.Scope, code string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.codes[scope] = append(d.codes[scope], code)
}

func (d *stubDirectory) ParentExists(_ context.Context, role allocator.Role, parentCode string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.parents[string(role)+"/"+parentCode], nil
}

func (d *stubDirectory) ListCodes(_ context.Context, scope allocator.Scope) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.alwaysTaken {
		// Pretend every candidate is already persisted.
		all := make([]string, 0, 200)
		for i := int64(1); i <= 200; i++ {
			if code, err := allocator.Format(scope.Role, scope.ParentCode, i); err == nil {
				all = append(all, code)
			}
		}
		return all, nil
	}
	return append([]string(nil), d.codes[scope]...), nil
}

func newTestService(dir *stubDirectory) (*Service, *store.InMemorySequenceStore) {
	seq := store.NewInMemorySequenceStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(seq, dir, logger, nil), seq
}

func TestAllocateZoneSequence(t *testing.T) {
	dir := newStubDirectory()
	dir.addParent(allocator.RoleRegion, "01")
	svc, _ := newTestService(dir)
	ctx := context.Background()

	first, err := svc.Allocate(ctx, allocator.RoleZone, "01")
	require.NoError(t, err)
	assert.Equal(t, "R0101", first)

	second, err := svc.Allocate(ctx, allocator.RoleZone, "01")
	require.NoError(t, err)
	assert.Equal(t, "R0102", second)
}

func TestAllocatePastorSequence(t *testing.T) {
	dir := newStubDirectory()
	dir.addParent(allocator.RoleZone, "R0101")
	svc, _ := newTestService(dir)
	ctx := context.Background()

	first, err := svc.Allocate(ctx, allocator.RolePastor, "R0101")
	require.NoError(t, err)
	assert.Equal(t, "R0101P1", first)

	second, err := svc.Allocate(ctx, allocator.RolePastor, "R0101")
	require.NoError(t, err)
	assert.Equal(t, "R0101P2", second)

	// Parse recovers exactly what was issued.
	parsed, err := svc.Parse(second)
	require.NoError(t, err)
	assert.Equal(t, allocator.RolePastor, parsed.Role)
	assert.Equal(t, "R0101", parsed.ParentCode)
	assert.Equal(t, int64(2), parsed.Sequence)
}

func TestAllocateUnknownParent(t *testing.T) {
	dir := newStubDirectory()
	svc, _ := newTestService(dir)

	_, err := svc.Allocate(context.Background(), allocator.RoleZone, "77")
	assert.True(t, apperrors.Is(err, apperrors.CodeParentNotFound))
}

func TestAllocateRegionTakesNoParent(t *testing.T) {
	dir := newStubDirectory()
	svc, _ := newTestService(dir)
	ctx := context.Background()

	code, err := svc.Allocate(ctx, allocator.RoleRegion, "")
	require.NoError(t, err)
	assert.Equal(t, "01", code)

	_, err = svc.Allocate(ctx, allocator.RoleRegion, "01")
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))
}

func TestAllocateConcurrentCodesAreDistinct(t *testing.T) {
	dir := newStubDirectory()
	dir.addParent(allocator.RoleZone, "R0101")
	svc, _ := newTestService(dir)
	scope := allocator.Scope{Role: allocator.RoleMember, ParentCode: "R0101"}

	const n = 50
	codes := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			code, err := svc.Allocate(context.Background(), allocator.RoleMember, "R0101")
			assert.NoError(t, err)
			dir.persist(scope, code)
			codes <- code
		}()
	}
	wg.Wait()
	close(codes)

	seen := make(map[string]bool, n)
	seqs := make(map[int64]bool, n)
	for code := range codes {
		assert.False(t, seen[code], "code %s issued twice", code)
		seen[code] = true

		parsed, err := allocator.Parse(code)
		require.NoError(t, err)
		seqs[parsed.Sequence] = true
	}
	assert.Len(t, seen, n)
	assert.Len(t, seqs, n, "numeric suffixes must be pairwise distinct")
}

func TestAllocateReseedsPastLegacyCodes(t *testing.T) {
	dir := newStubDirectory()
	dir.addParent(allocator.RoleZone, "R0101")
	scope := allocator.Scope{Role: allocator.RolePastor, ParentCode: "R0101"}
	// Legacy rows persisted before the counter existed; "legacy-junk" must be
	// excluded from seeding, not fed into the next value.
	dir.persist(scope, "R0101P1")
	dir.persist(scope, "legacy-junk")

	svc, seq := newTestService(dir)

	code, err := svc.Allocate(context.Background(), allocator.RolePastor, "R0101")
	require.NoError(t, err)
	assert.Equal(t, "R0101P2", code)
	assert.Equal(t, int64(2), seq.LastIssued(scope))
}

// staleSyncStore models a counter that cannot be reseeded (e.g. replica
// lag), so every retry lands on an already-taken code.
type staleSyncStore struct {
	*store.InMemorySequenceStore
}

func (s staleSyncStore) Sync(context.Context, allocator.Scope, int64) error { return nil }

func TestAllocateRetryExhausted(t *testing.T) {
	dir := newStubDirectory()
	dir.addParent(allocator.RoleZone, "R0101")
	dir.alwaysTaken = true

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := New(staleSyncStore{store.NewInMemorySequenceStore()}, dir, logger, nil)

	_, err := svc.Allocate(context.Background(), allocator.RoleDeacon, "R0101")
	assert.True(t, apperrors.Is(err, apperrors.CodeRetryExhausted))
}

func TestAllocateFormatOverflowIsFatal(t *testing.T) {
	dir := newStubDirectory()
	svc, seq := newTestService(dir)
	ctx := context.Background()

	scope := allocator.Scope{Role: allocator.RoleRegion}
	require.NoError(t, seq.Sync(ctx, scope, 99))

	_, err := svc.Allocate(ctx, allocator.RoleRegion, "")
	assert.True(t, apperrors.Is(err, apperrors.CodeFormatOverflow))
}
