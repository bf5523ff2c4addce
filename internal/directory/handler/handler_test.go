package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	allocservice "diocese/internal/allocator/service"
	allocstore "diocese/internal/allocator/store"
	"diocese/internal/audit"
	"diocese/internal/directory"
	dirservice "diocese/internal/directory/service"
	"diocese/internal/directory/store"
	"diocese/pkg/platform/tx"
)

// The handler is tested against the real service over in-memory stores, so
// these tests cover routing, decoding, and error translation end to end.
type DirectoryHandlerSuite struct {
	suite.Suite
	router chi.Router
}

type noopRecorder struct{}

func (noopRecorder) Record(_ context.Context, _ audit.Action, _, _ string, _, _ any) {}

func TestDirectoryHandlerSuite(t *testing.T) {
	suite.Run(t, new(DirectoryHandlerSuite))
}

func (s *DirectoryHandlerSuite) SetupTest() {
	mem := store.NewInMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	alloc := allocservice.New(allocstore.NewInMemorySequenceStore(), mem, logger, nil)
	svc := dirservice.New(dirservice.Stores{
		Regions:     mem.Regions(),
		Zones:       mem.Zones(),
		People:      mem.People(),
		Departments: mem.Departments(),
	}, alloc, noopRecorder{}, tx.NewShardedRunner(), logger)

	s.router = chi.NewRouter()
	New(svc, logger).Register(s.router)
}

func (s *DirectoryHandlerSuite) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.T(), err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *DirectoryHandlerSuite) createZone() directory.Zone {
	rec := s.do(http.MethodPost, "/regions", map[string]string{"name": "Northern"})
	require.Equal(s.T(), http.StatusCreated, rec.Code)
	var region directory.Region
	require.NoError(s.T(), json.Unmarshal(rec.Body.Bytes(), &region))

	rec = s.do(http.MethodPost, "/zones", map[string]string{"region_code": region.Code, "name": "Zone One"})
	require.Equal(s.T(), http.StatusCreated, rec.Code)
	var zone directory.Zone
	require.NoError(s.T(), json.Unmarshal(rec.Body.Bytes(), &zone))
	return zone
}

func (s *DirectoryHandlerSuite) TestCreateAndGetRegion() {
	rec := s.do(http.MethodPost, "/regions", map[string]string{"name": "Northern"})
	require.Equal(s.T(), http.StatusCreated, rec.Code)

	var region directory.Region
	require.NoError(s.T(), json.Unmarshal(rec.Body.Bytes(), &region))
	assert.Equal(s.T(), "01", region.Code)

	rec = s.do(http.MethodGet, "/regions/01", nil)
	require.Equal(s.T(), http.StatusOK, rec.Code)
}

func (s *DirectoryHandlerSuite) TestCreatePersonFullFlow() {
	zone := s.createZone()

	rec := s.do(http.MethodPost, "/people", map[string]string{
		"role":      "pastor",
		"zone_code": zone.Code,
		"name":      "Amos Adjei",
		"phone":     "+233201112222",
	})
	require.Equal(s.T(), http.StatusCreated, rec.Code)

	var person directory.Person
	require.NoError(s.T(), json.Unmarshal(rec.Body.Bytes(), &person))
	assert.Equal(s.T(), zone.Code+"P1", person.Code)

	rec = s.do(http.MethodGet, "/codes/"+person.Code, nil)
	require.Equal(s.T(), http.StatusOK, rec.Code)
	var parsed map[string]any
	require.NoError(s.T(), json.Unmarshal(rec.Body.Bytes(), &parsed))
	assert.Equal(s.T(), "pastor", parsed["role"])
	assert.Equal(s.T(), zone.Code, parsed["parent_code"])
	assert.Equal(s.T(), float64(1), parsed["sequence"])
}

func (s *DirectoryHandlerSuite) TestValidationErrorsMapToBadRequest() {
	rec := s.do(http.MethodPost, "/regions", map[string]string{"name": ""})
	assert.Equal(s.T(), http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/people", map[string]string{"role": "bishop", "zone_code": "R0101", "name": "x"})
	assert.Equal(s.T(), http.StatusBadRequest, rec.Code)

	var envelope map[string]string
	require.NoError(s.T(), json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(s.T(), "validation_failed", envelope["error"])
}

func (s *DirectoryHandlerSuite) TestUnknownParentMapsToNotFound() {
	rec := s.do(http.MethodPost, "/zones", map[string]string{"region_code": "99", "name": "Orphan"})
	assert.Equal(s.T(), http.StatusNotFound, rec.Code)
}

func (s *DirectoryHandlerSuite) TestMissingEntityMapsToNotFound() {
	rec := s.do(http.MethodGet, "/people/R0101P9", nil)
	assert.Equal(s.T(), http.StatusNotFound, rec.Code)
}

func (s *DirectoryHandlerSuite) TestDeleteZoneConflict() {
	zone := s.createZone()

	rec := s.do(http.MethodPost, "/people", map[string]string{
		"role": "member", "zone_code": zone.Code, "name": "Mary Mensah",
	})
	require.Equal(s.T(), http.StatusCreated, rec.Code)

	rec = s.do(http.MethodDelete, "/zones/"+zone.Code, nil)
	assert.Equal(s.T(), http.StatusConflict, rec.Code)
}

func (s *DirectoryHandlerSuite) TestUpdatePerson() {
	zone := s.createZone()

	rec := s.do(http.MethodPost, "/people", map[string]string{
		"role": "member", "zone_code": zone.Code, "name": "Old Name",
	})
	require.Equal(s.T(), http.StatusCreated, rec.Code)
	var person directory.Person
	require.NoError(s.T(), json.Unmarshal(rec.Body.Bytes(), &person))

	rec = s.do(http.MethodPut, "/people/"+person.Code, map[string]string{"name": "New Name"})
	require.Equal(s.T(), http.StatusOK, rec.Code)
	var updated directory.Person
	require.NoError(s.T(), json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(s.T(), "New Name", updated.Name)
	assert.Equal(s.T(), person.Version+1, updated.Version)
}

func (s *DirectoryHandlerSuite) TestListEndpoints() {
	zone := s.createZone()
	for _, name := range []string{"A", "B"} {
		rec := s.do(http.MethodPost, "/people", map[string]string{
			"role": "member", "zone_code": zone.Code, "name": name,
		})
		require.Equal(s.T(), http.StatusCreated, rec.Code)
	}

	rec := s.do(http.MethodGet, "/people?zone_code="+zone.Code+"&role=member", nil)
	require.Equal(s.T(), http.StatusOK, rec.Code)
	var people []directory.Person
	require.NoError(s.T(), json.Unmarshal(rec.Body.Bytes(), &people))
	assert.Len(s.T(), people, 2)
}
