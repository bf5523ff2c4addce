package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"diocese/internal/allocator"
	"diocese/internal/directory"
	"diocese/internal/transport/http/shared"
	"diocese/pkg/apperrors"
)

// Service defines the repository operations the handler needs.
type Service interface {
	CreateRegion(ctx context.Context, attrs directory.Attributes) (directory.Region, error)
	CreateZone(ctx context.Context, regionCode string, attrs directory.Attributes) (directory.Zone, error)
	CreatePerson(ctx context.Context, role allocator.Role, zoneCode string, attrs directory.Attributes) (directory.Person, error)
	CreateDepartment(ctx context.Context, zoneCode string, attrs directory.Attributes) (directory.Department, error)

	GetRegion(ctx context.Context, code string) (directory.Region, error)
	GetZone(ctx context.Context, code string) (directory.Zone, error)
	GetPerson(ctx context.Context, code string) (directory.Person, error)
	GetDepartment(ctx context.Context, code string) (directory.Department, error)

	ListRegions(ctx context.Context) ([]directory.Region, error)
	ListZones(ctx context.Context, regionCode string) ([]directory.Zone, error)
	ListPeople(ctx context.Context, zoneCode string, role allocator.Role) ([]directory.Person, error)
	ListDepartments(ctx context.Context, zoneCode string) ([]directory.Department, error)

	UpdateRegion(ctx context.Context, code string, attrs directory.Attributes) (directory.Region, error)
	UpdateZone(ctx context.Context, code string, attrs directory.Attributes) (directory.Zone, error)
	UpdatePerson(ctx context.Context, code string, attrs directory.Attributes) (directory.Person, error)
	UpdateDepartment(ctx context.Context, code string, attrs directory.Attributes) (directory.Department, error)

	DeleteRegion(ctx context.Context, code string) error
	DeleteZone(ctx context.Context, code string) error
	DeletePerson(ctx context.Context, code string) error
	DeleteDepartment(ctx context.Context, code string) error

	ParseCode(code string) (allocator.ParsedCode, error)
}

// Handler serves the directory resources.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register registers the directory routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/regions", func(r chi.Router) {
		r.Post("/", h.handleCreateRegion)
		r.Get("/", h.handleListRegions)
		r.Get("/{code}", h.handleGetRegion)
		r.Put("/{code}", h.handleUpdateRegion)
		r.Delete("/{code}", h.handleDeleteRegion)
	})
	r.Route("/zones", func(r chi.Router) {
		r.Post("/", h.handleCreateZone)
		r.Get("/", h.handleListZones)
		r.Get("/{code}", h.handleGetZone)
		r.Put("/{code}", h.handleUpdateZone)
		r.Delete("/{code}", h.handleDeleteZone)
	})
	r.Route("/people", func(r chi.Router) {
		r.Post("/", h.handleCreatePerson)
		r.Get("/", h.handleListPeople)
		r.Get("/{code}", h.handleGetPerson)
		r.Put("/{code}", h.handleUpdatePerson)
		r.Delete("/{code}", h.handleDeletePerson)
	})
	r.Route("/departments", func(r chi.Router) {
		r.Post("/", h.handleCreateDepartment)
		r.Get("/", h.handleListDepartments)
		r.Get("/{code}", h.handleGetDepartment)
		r.Put("/{code}", h.handleUpdateDepartment)
		r.Delete("/{code}", h.handleDeleteDepartment)
	})
	r.Get("/codes/{code}", h.handleParseCode)
}

type createRegionRequest struct {
	Name string `json:"name"`
}

type createZoneRequest struct {
	RegionCode string `json:"region_code"`
	Name       string `json:"name"`
}

type createPersonRequest struct {
	Role           string `json:"role"`
	ZoneCode       string `json:"zone_code"`
	Name           string `json:"name"`
	Phone          string `json:"phone"`
	Email          string `json:"email"`
	DepartmentCode string `json:"department_code"`
}

type createDepartmentRequest struct {
	ZoneCode string `json:"zone_code"`
	Name     string `json:"name"`
}

type updateRequest struct {
	Name           string `json:"name"`
	Phone          string `json:"phone"`
	Email          string `json:"email"`
	DepartmentCode string `json:"department_code"`
}

func (h *Handler) handleCreateRegion(w http.ResponseWriter, r *http.Request) {
	var req createRegionRequest
	if err := decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	region, err := h.service.CreateRegion(r.Context(), directory.Attributes{Name: req.Name})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, region)
}

func (h *Handler) handleCreateZone(w http.ResponseWriter, r *http.Request) {
	var req createZoneRequest
	if err := decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	zone, err := h.service.CreateZone(r.Context(), req.RegionCode, directory.Attributes{Name: req.Name})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, zone)
}

func (h *Handler) handleCreatePerson(w http.ResponseWriter, r *http.Request) {
	var req createPersonRequest
	if err := decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	role, err := allocator.ParseRole(req.Role)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	person, err := h.service.CreatePerson(r.Context(), role, req.ZoneCode, directory.Attributes{
		Name:           req.Name,
		Phone:          req.Phone,
		Email:          req.Email,
		DepartmentCode: req.DepartmentCode,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, person)
}

func (h *Handler) handleCreateDepartment(w http.ResponseWriter, r *http.Request) {
	var req createDepartmentRequest
	if err := decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	dept, err := h.service.CreateDepartment(r.Context(), req.ZoneCode, directory.Attributes{Name: req.Name})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, dept)
}

func (h *Handler) handleListRegions(w http.ResponseWriter, r *http.Request) {
	regions, err := h.service.ListRegions(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if regions == nil {
		regions = []directory.Region{}
	}
	shared.WriteJSON(w, http.StatusOK, regions)
}

func (h *Handler) handleListZones(w http.ResponseWriter, r *http.Request) {
	zones, err := h.service.ListZones(r.Context(), r.URL.Query().Get("region_code"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if zones == nil {
		zones = []directory.Zone{}
	}
	shared.WriteJSON(w, http.StatusOK, zones)
}

func (h *Handler) handleListPeople(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var role allocator.Role
	if raw := q.Get("role"); raw != "" {
		parsed, err := allocator.ParseRole(raw)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		role = parsed
	}
	people, err := h.service.ListPeople(r.Context(), q.Get("zone_code"), role)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if people == nil {
		people = []directory.Person{}
	}
	shared.WriteJSON(w, http.StatusOK, people)
}

func (h *Handler) handleListDepartments(w http.ResponseWriter, r *http.Request) {
	depts, err := h.service.ListDepartments(r.Context(), r.URL.Query().Get("zone_code"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if depts == nil {
		depts = []directory.Department{}
	}
	shared.WriteJSON(w, http.StatusOK, depts)
}

func (h *Handler) handleGetRegion(w http.ResponseWriter, r *http.Request) {
	region, err := h.service.GetRegion(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, region)
}

func (h *Handler) handleGetZone(w http.ResponseWriter, r *http.Request) {
	zone, err := h.service.GetZone(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, zone)
}

func (h *Handler) handleGetPerson(w http.ResponseWriter, r *http.Request) {
	person, err := h.service.GetPerson(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, person)
}

func (h *Handler) handleGetDepartment(w http.ResponseWriter, r *http.Request) {
	dept, err := h.service.GetDepartment(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, dept)
}

func (h *Handler) handleUpdateRegion(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	region, err := h.service.UpdateRegion(r.Context(), chi.URLParam(r, "code"), directory.Attributes{Name: req.Name})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, region)
}

func (h *Handler) handleUpdateZone(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	zone, err := h.service.UpdateZone(r.Context(), chi.URLParam(r, "code"), directory.Attributes{Name: req.Name})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, zone)
}

func (h *Handler) handleUpdatePerson(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	person, err := h.service.UpdatePerson(r.Context(), chi.URLParam(r, "code"), directory.Attributes{
		Name:           req.Name,
		Phone:          req.Phone,
		Email:          req.Email,
		DepartmentCode: req.DepartmentCode,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, person)
}

func (h *Handler) handleUpdateDepartment(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	dept, err := h.service.UpdateDepartment(r.Context(), chi.URLParam(r, "code"), directory.Attributes{Name: req.Name})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, dept)
}

func (h *Handler) handleDeleteRegion(w http.ResponseWriter, r *http.Request) {
	h.handleDelete(w, r, h.service.DeleteRegion)
}

func (h *Handler) handleDeleteZone(w http.ResponseWriter, r *http.Request) {
	h.handleDelete(w, r, h.service.DeleteZone)
}

func (h *Handler) handleDeletePerson(w http.ResponseWriter, r *http.Request) {
	h.handleDelete(w, r, h.service.DeletePerson)
}

func (h *Handler) handleDeleteDepartment(w http.ResponseWriter, r *http.Request) {
	h.handleDelete(w, r, h.service.DeleteDepartment)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request, del func(context.Context, string) error) {
	if err := del(r.Context(), chi.URLParam(r, "code")); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleParseCode(w http.ResponseWriter, r *http.Request) {
	parsed, err := h.service.ParseCode(chi.URLParam(r, "code"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"role":        string(parsed.Role),
		"parent_code": parsed.ParentCode,
		"sequence":    parsed.Sequence,
	})
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperrors.New(apperrors.CodeValidation, "invalid request body")
	}
	return nil
}
