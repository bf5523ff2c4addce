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
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"diocese/internal/allocator"
	"diocese/internal/audit"
	"diocese/internal/directory"
	dirstore "diocese/internal/directory/store"
	"diocese/internal/transfer"
	transferservice "diocese/internal/transfer/service"
	"diocese/internal/transfer/store"
	"diocese/pkg/platform/tx"
)

type noopRecorder struct{}

func (noopRecorder) Record(_ context.Context, _ audit.Action, _, _ string, _, _ any) {}

type TransferHandlerSuite struct {
	suite.Suite
	router chi.Router
	person directory.Person
	toZone directory.Zone
}

func TestTransferHandlerSuite(t *testing.T) {
	suite.Run(t, new(TransferHandlerSuite))
}

func (s *TransferHandlerSuite) SetupTest() {
	ctx := context.Background()
	mem := dirstore.NewInMemory()

	require.NoError(s.T(), mem.Regions().Save(ctx, directory.Region{Code: "01", Name: "Northern"}))
	require.NoError(s.T(), mem.Zones().Save(ctx, directory.Zone{Code: "R0101", RegionCode: "01", Name: "Zone One"}))
	s.toZone = directory.Zone{Code: "R0102", RegionCode: "01", Name: "Zone Two"}
	require.NoError(s.T(), mem.Zones().Save(ctx, s.toZone))

	s.person = directory.Person{
		ID:       uuid.New(),
		Code:     "R0101P1",
		Role:     allocator.RolePastor,
		Name:     "Amos Adjei",
		ZoneCode: "R0101",
		Version:  1,
	}
	require.NoError(s.T(), mem.People().Save(ctx, s.person))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := transferservice.New(transferservice.Stores{
		People:      mem.People(),
		Zones:       mem.Zones(),
		Departments: mem.Departments(),
		History:     store.NewInMemoryHistory(),
	}, noopRecorder{}, tx.NewShardedRunner(), logger,
		transferservice.WithIdempotencyStore(store.NewInMemoryIdempotency()))

	s.router = chi.NewRouter()
	New(svc, logger).Register(s.router)
}

func (s *TransferHandlerSuite) post(body map[string]string, headers map[string]string) *httptest.ResponseRecorder {
	raw, err := json.Marshal(body)
	require.NoError(s.T(), err)
	req := httptest.NewRequest(http.MethodPost, "/transfers", bytes.NewReader(raw))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *TransferHandlerSuite) TestTransferAndHistory() {
	rec := s.post(map[string]string{
		"transfer_type": "pastor",
		"person_id":     s.person.Code,
		"to_zone_id":    s.toZone.Code,
		"reason":        "Promotion",
		"transfer_date": "2026-04-01",
	}, nil)
	require.Equal(s.T(), http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(s.T(), json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(s.T(), "pastor", resp["transfer_type"])
	assert.Equal(s.T(), s.person.Code, resp["person_id"])
	assert.Equal(s.T(), "R0101", resp["from_zone_id"])
	assert.Equal(s.T(), s.toZone.Code, resp["to_zone_id"])
	assert.Equal(s.T(), "2026-04-01", resp["transfer_date"])
	assert.Equal(s.T(), "complete", resp["state"])

	req := httptest.NewRequest(http.MethodGet, "/transfers?person_id="+s.person.Code+"&transfer_type=pastor", nil)
	histRec := httptest.NewRecorder()
	s.router.ServeHTTP(histRec, req)
	require.Equal(s.T(), http.StatusOK, histRec.Code)

	var records []transfer.Record
	require.NoError(s.T(), json.Unmarshal(histRec.Body.Bytes(), &records))
	require.Len(s.T(), records, 1)
	assert.Equal(s.T(), s.toZone.Code, records[0].ToZone)
}

func (s *TransferHandlerSuite) TestIdempotencyKeyHeader() {
	body := map[string]string{
		"transfer_type": "pastor",
		"person_id":     s.person.Code,
		"to_zone_id":    s.toZone.Code,
		"transfer_date": "2026-04-01",
	}
	headers := map[string]string{"Idempotency-Key": "abc-123"}

	first := s.post(body, headers)
	require.Equal(s.T(), http.StatusOK, first.Code)

	second := s.post(body, headers)
	require.Equal(s.T(), http.StatusOK, second.Code)
	var resp map[string]any
	require.NoError(s.T(), json.Unmarshal(second.Body.Bytes(), &resp))
	assert.Equal(s.T(), true, resp["replayed"])
}

func (s *TransferHandlerSuite) TestValidationErrors() {
	tests := []struct {
		name string
		body map[string]string
		want int
	}{
		{"missing date", map[string]string{
			"transfer_type": "pastor", "person_id": s.person.Code, "to_zone_id": s.toZone.Code,
		}, http.StatusBadRequest},
		{"bad date", map[string]string{
			"transfer_type": "pastor", "person_id": s.person.Code, "to_zone_id": s.toZone.Code,
			"transfer_date": "April 1st",
		}, http.StatusBadRequest},
		{"unknown type", map[string]string{
			"transfer_type": "bishop", "person_id": s.person.Code, "to_zone_id": s.toZone.Code,
			"transfer_date": "2026-04-01",
		}, http.StatusBadRequest},
		{"unknown person", map[string]string{
			"transfer_type": "pastor", "person_id": "R0101P9", "to_zone_id": s.toZone.Code,
			"transfer_date": "2026-04-01",
		}, http.StatusNotFound},
	}

	for _, tc := range tests {
		s.Run(tc.name, func() {
			rec := s.post(tc.body, nil)
			assert.Equal(s.T(), tc.want, rec.Code)
		})
	}
}

func (s *TransferHandlerSuite) TestBadHistoryTypeFilter() {
	req := httptest.NewRequest(http.MethodGet, "/transfers?transfer_type=bishop", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(s.T(), http.StatusBadRequest, rec.Code)
}
