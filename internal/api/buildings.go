package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Spatial-NVR/constructor/internal/backend"
	"github.com/Spatial-NVR/constructor/internal/validation"
)

const defaultHardwarePage = 100

// BuildingBackend is the part of the backend client the building and
// hardware registry routes use
type BuildingBackend interface {
	ListConfigs(ctx context.Context) ([]backend.BuildingConfig, error)
	GetConfig(ctx context.Context, id backend.ID) (*backend.BuildingConfig, error)
	DeleteConfig(ctx context.Context, id backend.ID) error
	ListHardware(ctx context.Context, skip, limit int) ([]backend.HardwareCamera, error)
	CreateHardware(ctx context.Context, cam backend.HardwareCamera) (*backend.HardwareCamera, error)
	DeleteHardware(ctx context.Context, id backend.ID) error
}

// BuildingHandler browses saved building configs and the hardware registry
type BuildingHandler struct {
	backend  BuildingBackend
	policies backend.PolicySet
}

// NewBuildingHandler creates a building handler
func NewBuildingHandler(b BuildingBackend, policies backend.PolicySet) *BuildingHandler {
	if policies == nil {
		policies = backend.DefaultPolicies()
	}
	return &BuildingHandler{backend: b, policies: policies}
}

// Routes returns the building routes
func (h *BuildingHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Delete("/{id}", h.Delete)

	r.Get("/hardware", h.ListHardware)
	r.Post("/hardware", h.CreateHardware)
	r.Delete("/hardware/{id}", h.DeleteHardware)

	return r
}

// List returns saved configs, most recently updated first. ?q filters by
// name.
func (h *BuildingHandler) List(w http.ResponseWriter, r *http.Request) {
	cfgs, err := h.backend.ListConfigs(r.Context())
	if err != nil {
		Fail(w, err)
		return
	}
	total := len(cfgs)
	cfgs = backend.FilterByName(cfgs, r.URL.Query().Get("q"))
	backend.SortByUpdated(cfgs)
	JSONWithMeta(w, http.StatusOK, nonNil(cfgs), &Meta{Total: total, Matched: len(cfgs)})
}

// Get fetches one saved config
func (h *BuildingHandler) Get(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.backend.GetConfig(r.Context(), backend.ID(chi.URLParam(r, "id")))
	if err != nil {
		Fail(w, err)
		return
	}
	OK(w, cfg)
}

// Delete removes a saved config
func (h *BuildingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.backend.DeleteConfig(r.Context(), backend.ID(chi.URLParam(r, "id"))); err != nil {
		Fail(w, err)
		return
	}
	NoContent(w)
}

// ListHardware pages through registered camera streams with ?skip and
// ?limit
func (h *BuildingHandler) ListHardware(w http.ResponseWriter, r *http.Request) {
	skip, limit := 0, defaultHardwarePage
	if v, err := strconv.Atoi(r.URL.Query().Get("skip")); err == nil && v >= 0 {
		skip = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	list, err := h.backend.ListHardware(r.Context(), skip, limit)
	if err != nil {
		Fail(w, err)
		return
	}
	OK(w, nonNil(list))
}

// CreateHardware validates and registers a camera stream
func (h *BuildingHandler) CreateHardware(w http.ResponseWriter, r *http.Request) {
	var form validation.HardwareForm
	if err := decodeJSON(w, r, &form); err != nil {
		BadRequest(w, err.Error())
		return
	}
	cam, err := form.Camera()
	if err != nil {
		Fail(w, err)
		return
	}
	created, err := h.backend.CreateHardware(r.Context(), cam)
	assumed, err := h.policies.Resolve(backend.SiteHardwareSave, err)
	switch {
	case err != nil:
		Fail(w, err)
	case assumed:
		JSON(w, http.StatusAccepted, map[string]bool{"assumed": true})
	default:
		Created(w, created)
	}
}

// DeleteHardware unregisters a camera stream
func (h *BuildingHandler) DeleteHardware(w http.ResponseWriter, r *http.Request) {
	if err := h.backend.DeleteHardware(r.Context(), backend.ID(chi.URLParam(r, "id"))); err != nil {
		Fail(w, err)
		return
	}
	NoContent(w)
}
