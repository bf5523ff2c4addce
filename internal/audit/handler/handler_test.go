package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diocese/internal/audit"
	"diocese/internal/audit/store"
)

type directService struct {
	store *store.InMemoryStore
}

func (s directService) Query(ctx context.Context, filter audit.Filter, page audit.Page) (audit.PageResult, error) {
	return s.store.Query(ctx, filter, page)
}

func newTestRouter(t *testing.T, entries ...audit.Entry) chi.Router {
	t.Helper()
	mem := store.NewInMemoryStore()
	for _, e := range entries {
		require.NoError(t, mem.Append(context.Background(), e))
	}
	r := chi.NewRouter()
	New(directService{store: mem}, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)
	return r
}

func entry(action audit.Action, entityType, entityID, actorID string, ts time.Time) audit.Entry {
	return audit.Entry{
		ID:         uuid.New(),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		ActorID:    actorID,
		Timestamp:  ts,
	}
}

func get(t *testing.T, router chi.Router, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestActivityFeed(t *testing.T) {
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	router := newTestRouter(t,
		entry(audit.ActionCreate, "region", "01", "admin-1", base),
		entry(audit.ActionTransfer, "person", "R0101P1", "admin-2", base.Add(time.Hour)),
		entry(audit.ActionDelete, "zone", "R0102", "admin-1", base.Add(2*time.Hour)),
	)

	rec := get(t, router, "/activity")
	require.Equal(t, http.StatusOK, rec.Code)

	var result audit.PageResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.Entries, 3)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, "R0102", result.Entries[0].EntityID, "newest first")
}

func TestActivityFilters(t *testing.T) {
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	router := newTestRouter(t,
		entry(audit.ActionCreate, "region", "01", "admin-1", base),
		entry(audit.ActionTransfer, "person", "R0101P1", "admin-2", base.Add(time.Hour)),
		entry(audit.ActionUpdate, "person", "R0101P1", "admin-1", base.Add(2*time.Hour)),
	)

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"by entity", "entity_type=person&entity_id=R0101P1", 2},
		{"by user", "user_id=admin-1", 2},
		{"by action", "action=transfer", 1},
		{"by action list", "action=create,update", 2},
		{"by window", "start_date=2026-05-01T09%3A30%3A00Z&end_date=2026-05-01T10%3A30%3A00Z", 1},
		{"by bare date window", "start_date=2026-05-01&end_date=2026-05-02", 3},
		{"bare start date excludes earlier days", "start_date=2026-05-02", 0},
		{"no match", "entity_type=department", 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := get(t, router, "/activity?"+tc.query)
			require.Equal(t, http.StatusOK, rec.Code)

			var result audit.PageResult
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
			assert.Equal(t, tc.want, result.Total)
		})
	}
}

func TestActivityQueryValidation(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name  string
		query string
	}{
		{"unknown action", "action=login"},
		{"bad start", "start_date=yesterday"},
		{"bad end", "end_date=2026-13-01"},
		{"inverted window", "start_date=2026-05-02T00%3A00%3A00Z&end_date=2026-05-01T00%3A00%3A00Z"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := get(t, router, "/activity?"+tc.query)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "validation_failed", body["error"])
		})
	}
}

func TestActivityEmptyFeed(t *testing.T) {
	rec := get(t, newTestRouter(t), "/activity")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"entries":[],"page":1,"limit":20,"total":0,"pages":0}`, rec.Body.String())
}
