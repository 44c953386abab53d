package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Spatial-NVR/constructor/internal/backend"
	"github.com/Spatial-NVR/constructor/internal/building"
	"github.com/Spatial-NVR/constructor/internal/editor"
	"github.com/Spatial-NVR/constructor/internal/geometry"
	"github.com/Spatial-NVR/constructor/internal/store"
)

// maxUploadBytes bounds floor plan uploads
const maxUploadBytes = 32 << 20

// FileFetcher downloads uploaded backgrounds for PNG rendering
type FileFetcher interface {
	FetchFile(ctx context.Context, ref string) ([]byte, error)
}

// ConstructorHandler drives one editor session over HTTP
type ConstructorHandler struct {
	session *editor.Session
	drafts  *store.DraftStore
	history *store.PublishLog
	files   FileFetcher
	logger  *slog.Logger
}

// NewConstructorHandler creates a handler. drafts, history and files may be
// nil; the routes that need them then answer 503.
func NewConstructorHandler(session *editor.Session, drafts *store.DraftStore, history *store.PublishLog, files FileFetcher) *ConstructorHandler {
	return &ConstructorHandler{
		session: session,
		drafts:  drafts,
		history: history,
		files:   files,
		logger:  slog.Default().With("component", "constructor-api"),
	}
}

// Routes returns the constructor routes
func (h *ConstructorHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/state", h.State)
	r.Put("/name", h.SetName)
	r.Put("/canvas", h.Resize)
	r.Post("/selection/clear", h.ClearSelection)
	r.Put("/hover", h.SetHover)
	r.Delete("/hover", h.ClearHover)

	r.Route("/floors", func(r chi.Router) {
		r.Get("/", h.FloorTree)
		r.Put("/range", h.SetFloorRange)
		r.Get("/{floor}", h.GetFloor)
		r.Post("/{floor}/select", h.SelectFloor)
		r.Put("/{floor}/background", h.SetBackground)
		r.Post("/{floor}/background", h.UploadBackground)
	})

	r.Route("/cameras", func(r chi.Router) {
		r.Post("/", h.AddCamera)
		r.Post("/{id}/select", h.SelectCamera)
		r.Patch("/{id}", h.SetCameraProperty)
		r.Post("/{id}/drag", h.DragCamera)
		r.Put("/{id}/zones", h.AssignZones)
		r.Put("/{id}/hardware", h.AssignHardware)
	})

	r.Route("/zones", func(r chi.Router) {
		r.Post("/", h.AddZone)
		r.Post("/{id}/select", h.SelectZone)
		r.Post("/{id}/drag", h.DragZoneVertex)
		r.Put("/{id}/points/{index}", h.UpdateZonePoint)
		r.Post("/{id}/points", h.AddZonePoint)
		r.Delete("/{id}/points", h.RemoveZonePoint)
	})

	r.Get("/hardware", h.Hardware)
	r.Post("/hardware/refresh", h.RefreshHardware)

	r.Get("/export", h.Export)
	r.Post("/import", h.Import)
	r.Post("/publish", h.Publish)
	r.Get("/publish/history", h.PublishHistory)
	r.Post("/load/{id}", h.Load)

	r.Route("/drafts", func(r chi.Router) {
		r.Get("/", h.ListDrafts)
		r.Post("/", h.SaveDraft)
		r.Get("/{id}", h.GetDraft)
		r.Post("/{id}/open", h.OpenDraft)
		r.Delete("/{id}", h.DeleteDraft)
	})

	r.Route("/render", func(r chi.Router) {
		r.Get("/stack.{format}", h.RenderStack)
		r.Post("/stack/pointer", h.StackPointer)
		r.Get("/floors/{floor}.{format}", h.RenderFloor)
		r.Post("/canvas/pointer", h.CanvasPointer)
	})

	return r
}

// StateResponse is the full session state sent to a browser
type StateResponse struct {
	SessionID  string                            `json:"session_id"`
	BuildingID backend.ID                        `json:"building_id,omitempty"`
	Name       string                            `json:"name"`
	Range      building.FloorRange               `json:"range"`
	Floors     []building.FloorEntry             `json:"floors"`
	Selection  editor.Selection                  `json:"selection"`
	Hover      *editor.Target                    `json:"hover,omitempty"`
	HoverLabel string                            `json:"hover_label,omitempty"`
	Canvas     geometry.Size                     `json:"canvas"`
	Tasks      map[editor.Task]editor.TaskStatus `json:"tasks"`
	CanRemove  bool                              `json:"can_remove_point"`
}

// FloorResponse is one floor's canvas content
type FloorResponse struct {
	Floor      building.Floor    `json:"floor"`
	Background string            `json:"background,omitempty"`
	Cameras    []building.Camera `json:"cameras"`
	Zones      []building.Zone   `json:"zones"`
}

// State returns the session state
func (h *ConstructorHandler) State(w http.ResponseWriter, r *http.Request) {
	v := h.session.Snapshot()
	resp := StateResponse{
		SessionID:  v.SessionID,
		BuildingID: v.BuildingID,
		Name:       v.Config.Name,
		Range:      v.Config.Range,
		Floors:     h.session.FloorTree(),
		Selection:  v.Selection,
		Hover:      v.Hover,
		Canvas:     v.Canvas,
		Tasks:      v.Tasks,
		CanRemove:  h.session.CanRemoveZonePoint(),
	}
	if v.Hover != nil {
		resp.HoverLabel = v.Hover.Label()
	}
	OK(w, resp)
}

// SetName renames the building
func (h *ConstructorHandler) SetName(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}
	h.session.SetName(req.Name)
	OK(w, map[string]string{"name": req.Name})
}

// Resize records the browser's canvas size
func (h *ConstructorHandler) Resize(w http.ResponseWriter, r *http.Request) {
	var req SizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}
	if errs := req.Validate(); errs.HasErrors() {
		ValidationErrorResponse(w, errs)
		return
	}
	if err := h.session.Resize(req.Width, req.Height); err != nil {
		Fail(w, err)
		return
	}
	OK(w, h.session.Canvas())
}

// ClearSelection deselects everything
func (h *ConstructorHandler) ClearSelection(w http.ResponseWriter, r *http.Request) {
	h.session.ClearSelection()
	OK(w, h.session.Selection())
}

// SetHover shows the floating label for a target
func (h *ConstructorHandler) SetHover(w http.ResponseWriter, r *http.Request) {
	var t editor.Target
	if err := decodeJSON(w, r, &t); err != nil {
		BadRequest(w, err.Error())
		return
	}
	switch t.Kind {
	case editor.TargetCamera, editor.TargetZone, editor.TargetFloor:
	default:
		BadRequest(w, "unknown hover kind")
		return
	}
	h.session.Hover(t)
	OK(w, map[string]string{"label": t.Label()})
}

// ClearHover hides the floating label
func (h *ConstructorHandler) ClearHover(w http.ResponseWriter, r *http.Request) {
	h.session.ClearHover()
	NoContent(w)
}

// FloorTree lists floors with their cameras, top floor first
func (h *ConstructorHandler) FloorTree(w http.ResponseWriter, r *http.Request) {
	OK(w, h.session.FloorTree())
}

// SetFloorRange changes the number of floors
func (h *ConstructorHandler) SetFloorRange(w http.ResponseWriter, r *http.Request) {
	var req FloorRangeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}
	if errs := req.Validate(); errs.HasErrors() {
		ValidationErrorResponse(w, errs)
		return
	}
	if err := h.session.SetFloorRange(req.Above, req.Below); err != nil {
		Fail(w, err)
		return
	}
	OK(w, h.session.FloorTree())
}

// GetFloor returns the content drawn on one floor
func (h *ConstructorHandler) GetFloor(w http.ResponseWriter, r *http.Request) {
	f, err := parseFloor(chi.URLParam(r, "floor"))
	if err != nil {
		BadRequest(w, err.Error())
		return
	}
	fd := h.session.Snapshot().Config.Floor(f)
	OK(w, FloorResponse{
		Floor:      fd.Floor,
		Background: fd.Background,
		Cameras:    nonNil(fd.Cameras),
		Zones:      nonNil(fd.Zones),
	})
}

// SelectFloor makes a floor the working floor
func (h *ConstructorHandler) SelectFloor(w http.ResponseWriter, r *http.Request) {
	f, err := parseFloor(chi.URLParam(r, "floor"))
	if err != nil {
		BadRequest(w, err.Error())
		return
	}
	if err := h.session.SelectFloor(f); err != nil {
		Fail(w, err)
		return
	}
	OK(w, h.session.Selection())
}

// SetBackground points a floor at an already uploaded plan
func (h *ConstructorHandler) SetBackground(w http.ResponseWriter, r *http.Request) {
	f, err := parseFloor(chi.URLParam(r, "floor"))
	if err != nil {
		BadRequest(w, err.Error())
		return
	}
	var req struct {
		Ref string `json:"ref"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}
	if err := h.session.SetBackground(f, req.Ref); err != nil {
		Fail(w, err)
		return
	}
	OK(w, map[string]string{"background": req.Ref})
}

// UploadBackground uploads a plan from a multipart "file" field
func (h *ConstructorHandler) UploadBackground(w http.ResponseWriter, r *http.Request) {
	f, err := parseFloor(chi.URLParam(r, "floor"))
	if err != nil {
		BadRequest(w, err.Error())
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, hdr, err := r.FormFile("file")
	if err != nil {
		BadRequest(w, "file is required")
		return
	}
	defer file.Close()

	ref, err := h.session.UploadBackground(r.Context(), f, hdr.Filename, file)
	if err != nil {
		Fail(w, err)
		return
	}
	Created(w, map[string]string{"background": ref})
}

// AddCamera places a camera on the working floor
func (h *ConstructorHandler) AddCamera(w http.ResponseWriter, r *http.Request) {
	cam, err := h.session.AddCamera()
	if err != nil {
		Fail(w, err)
		return
	}
	Created(w, cam)
}

// SelectCamera selects a camera and its floor
func (h *ConstructorHandler) SelectCamera(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		BadRequest(w, err.Error())
		return
	}
	if err := h.session.SelectCamera(id); err != nil {
		Fail(w, err)
		return
	}
	OK(w, h.session.Selection())
}

// focusCamera selects the camera named in the path unless it already is
func (h *ConstructorHandler) focusCamera(w http.ResponseWriter, r *http.Request) bool {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		BadRequest(w, err.Error())
		return false
	}
	if sel := h.session.Selection(); sel.Camera != nil && *sel.Camera == id {
		return true
	}
	if err := h.session.SelectCamera(id); err != nil {
		Fail(w, err)
		return false
	}
	return true
}

// focusZone selects the zone named in the path unless it already is
func (h *ConstructorHandler) focusZone(w http.ResponseWriter, r *http.Request) bool {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		BadRequest(w, err.Error())
		return false
	}
	if sel := h.session.Selection(); sel.Zone != nil && *sel.Zone == id {
		return true
	}
	if err := h.session.SelectZone(id); err != nil {
		Fail(w, err)
		return false
	}
	return true
}

// SetCameraProperty edits one numeric property
func (h *ConstructorHandler) SetCameraProperty(w http.ResponseWriter, r *http.Request) {
	var req CameraPropertyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}
	field, errs := req.Validate()
	if errs.HasErrors() {
		ValidationErrorResponse(w, errs)
		return
	}
	if !h.focusCamera(w, r) {
		return
	}
	cam, err := h.session.SetCameraProperty(field, req.Value)
	if err != nil {
		Fail(w, err)
		return
	}
	OK(w, cam)
}

// DragCamera selects a camera, switching to its floor, and moves it to a
// pixel position
func (h *ConstructorHandler) DragCamera(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		BadRequest(w, err.Error())
		return
	}
	var req PointRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}
	if errs := req.Validate(); errs.HasErrors() {
		ValidationErrorResponse(w, errs)
		return
	}
	if !h.focusCamera(w, r) {
		return
	}
	cam, err := h.session.DragCamera(id, req.X, req.Y)
	if err != nil {
		Fail(w, err)
		return
	}
	OK(w, cam)
}

// AssignZones replaces the zones a camera watches
func (h *ConstructorHandler) AssignZones(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ZoneIDs []int64 `json:"zone_ids"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}
	if !h.focusCamera(w, r) {
		return
	}
	cam, err := h.session.AssignZones(req.ZoneIDs)
	if err != nil {
		Fail(w, err)
		return
	}
	OK(w, cam)
}

// AssignHardware links a camera to a hardware stream; empty unlinks
func (h *ConstructorHandler) AssignHardware(w http.ResponseWriter, r *http.Request) {
	var req struct {
		HardwareID string `json:"hardware_id"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}
	if !h.focusCamera(w, r) {
		return
	}
	cam, err := h.session.AssignHardware(req.HardwareID)
	if err != nil {
		Fail(w, err)
		return
	}
	OK(w, cam)
}

// AddZone places a starter triangle on the working floor
func (h *ConstructorHandler) AddZone(w http.ResponseWriter, r *http.Request) {
	z, err := h.session.AddZone()
	if err != nil {
		Fail(w, err)
		return
	}
	Created(w, z)
}

// SelectZone selects a zone on the working floor
func (h *ConstructorHandler) SelectZone(w http.ResponseWriter, r *http.Request) {
	if !h.focusZone(w, r) {
		return
	}
	OK(w, h.session.Selection())
}

// DragZoneVertex moves a vertex of the selected zone to a pixel position
func (h *ConstructorHandler) DragZoneVertex(w http.ResponseWriter, r *http.Request) {
	var req VertexRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}
	if errs := req.Validate(); errs.HasErrors() {
		ValidationErrorResponse(w, errs)
		return
	}
	if !h.focusZone(w, r) {
		return
	}
	z, err := h.session.DragZoneVertex(req.Index, req.X, req.Y)
	if err != nil {
		Fail(w, err)
		return
	}
	OK(w, z)
}

// UpdateZonePoint sets one vertex in normalized coordinates
func (h *ConstructorHandler) UpdateZonePoint(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		BadRequest(w, "invalid point index")
		return
	}
	var req PointRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}
	if errs := req.Validate(); errs.HasErrors() {
		ValidationErrorResponse(w, errs)
		return
	}
	if !h.focusZone(w, r) {
		return
	}
	z, err := h.session.UpdateZonePoint(idx, req.X, req.Y)
	if err != nil {
		Fail(w, err)
		return
	}
	OK(w, z)
}

// AddZonePoint splits the first edge of a zone
func (h *ConstructorHandler) AddZonePoint(w http.ResponseWriter, r *http.Request) {
	if !h.focusZone(w, r) {
		return
	}
	z, err := h.session.AddZonePoint()
	if err != nil {
		Fail(w, err)
		return
	}
	OK(w, z)
}

// RemoveZonePoint drops the last vertex unless only three remain
func (h *ConstructorHandler) RemoveZonePoint(w http.ResponseWriter, r *http.Request) {
	if !h.focusZone(w, r) {
		return
	}
	removed, err := h.session.RemoveZonePoint()
	if err != nil {
		Fail(w, err)
		return
	}
	OK(w, map[string]bool{"removed": removed})
}

// Hardware returns the last fetched hardware list
func (h *ConstructorHandler) Hardware(w http.ResponseWriter, r *http.Request) {
	OK(w, nonNil(h.session.Hardware()))
}

// RefreshHardware refetches the hardware list from the backend
func (h *ConstructorHandler) RefreshHardware(w http.ResponseWriter, r *http.Request) {
	list, err := h.session.RefreshHardware(r.Context())
	if err != nil {
		Fail(w, err)
		return
	}
	OK(w, nonNil(list))
}

// Export downloads the layout as a document
func (h *ConstructorHandler) Export(w http.ResponseWriter, r *http.Request) {
	data, err := h.session.ExportDocument()
	if err != nil {
		Fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="building-config.json"`)
	_, _ = w.Write(data)
}

// Import applies a document sent as the raw body or as a multipart "file" field
func (h *ConstructorHandler) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var src io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		file, _, err := r.FormFile("file")
		if err != nil {
			BadRequest(w, "file is required")
			return
		}
		defer file.Close()
		src = file
	}
	data, err := io.ReadAll(src)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	if err := h.session.ImportDocument(data); err != nil {
		Fail(w, err)
		return
	}
	h.State(w, r)
}

// Publish stores the layout on the backend and records the attempt
func (h *ConstructorHandler) Publish(w http.ResponseWriter, r *http.Request) {
	before := h.session.BuildingID()
	name := h.session.Snapshot().Config.Name

	id, err := h.session.Publish(r.Context())

	if h.history != nil {
		entry := &store.PublishEntry{
			DraftID:    r.URL.Query().Get("draft"),
			BuildingID: id,
			Name:       name,
			Created:    before == "" && err == nil,
		}
		if entry.BuildingID == "" {
			entry.BuildingID = before
		}
		if err != nil {
			entry.Error = err.Error()
		}
		if logErr := h.history.Record(context.WithoutCancel(r.Context()), entry); logErr != nil {
			h.logger.Warn("Failed to record publish", "error", logErr)
		}
	}

	if err != nil {
		Fail(w, err)
		return
	}
	status := http.StatusOK
	if before == "" {
		status = http.StatusCreated
	}
	JSON(w, status, map[string]backend.ID{"building_id": id})
}

// PublishHistory lists recent publish attempts
func (h *ConstructorHandler) PublishHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		Error(w, http.StatusServiceUnavailable, "NO_STORAGE", "publish history is not available")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.history.Recent(r.Context(), backend.ID(r.URL.Query().Get("building_id")), limit)
	if err != nil {
		Fail(w, err)
		return
	}
	OK(w, nonNil(entries))
}

// Load replaces the layout with a building from the backend
func (h *ConstructorHandler) Load(w http.ResponseWriter, r *http.Request) {
	id := backend.ID(chi.URLParam(r, "id"))
	if err := h.session.Load(r.Context(), id); err != nil {
		Fail(w, err)
		return
	}
	h.State(w, r)
}

// ListDrafts lists locally saved drafts
func (h *ConstructorHandler) ListDrafts(w http.ResponseWriter, r *http.Request) {
	if !h.requireDrafts(w) {
		return
	}
	drafts, err := h.drafts.List(r.Context())
	if err != nil {
		Fail(w, err)
		return
	}
	OK(w, nonNil(drafts))
}

// SaveDraft stores the current layout. Passing an id overwrites that draft.
func (h *ConstructorHandler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	if !h.requireDrafts(w) {
		return
	}
	var req struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			BadRequest(w, err.Error())
			return
		}
	}

	v := h.session.Snapshot()
	d, err := store.NewDraft(v.Config, v.BuildingID)
	if err != nil {
		Fail(w, err)
		return
	}
	d.ID = req.ID
	if req.Name != "" {
		d.Name = req.Name
	}
	if req.ID != "" {
		if prev, err := h.drafts.Get(r.Context(), req.ID); err == nil {
			d.CreatedAt = prev.CreatedAt
		}
	}
	if err := h.drafts.Save(r.Context(), d); err != nil {
		Fail(w, err)
		return
	}
	Created(w, d)
}

// GetDraft returns a draft's metadata and document
func (h *ConstructorHandler) GetDraft(w http.ResponseWriter, r *http.Request) {
	if !h.requireDrafts(w) {
		return
	}
	d, err := h.drafts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		Fail(w, err)
		return
	}
	OK(w, struct {
		*store.Draft
		Document rawJSON `json:"document"`
	}{d, rawJSON(d.Document)})
}

// OpenDraft imports a draft into the session
func (h *ConstructorHandler) OpenDraft(w http.ResponseWriter, r *http.Request) {
	if !h.requireDrafts(w) {
		return
	}
	d, err := h.drafts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		Fail(w, err)
		return
	}
	if err := h.session.ImportDocument(d.Document); err != nil {
		Fail(w, err)
		return
	}
	h.State(w, r)
}

// DeleteDraft removes a draft
func (h *ConstructorHandler) DeleteDraft(w http.ResponseWriter, r *http.Request) {
	if !h.requireDrafts(w) {
		return
	}
	if err := h.drafts.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		Fail(w, err)
		return
	}
	NoContent(w)
}

func (h *ConstructorHandler) requireDrafts(w http.ResponseWriter) bool {
	if h.drafts == nil {
		Error(w, http.StatusServiceUnavailable, "NO_STORAGE", "draft storage is not available")
		return false
	}
	return true
}

// rawJSON embeds an already encoded document
type rawJSON []byte

func (r rawJSON) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
