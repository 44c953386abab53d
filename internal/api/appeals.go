package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Spatial-NVR/constructor/internal/backend"
	"github.com/Spatial-NVR/constructor/internal/live"
	"github.com/Spatial-NVR/constructor/internal/report"
	"github.com/Spatial-NVR/constructor/internal/validation"
)

// AppealBackend is the part of the backend client the appeal routes use
type AppealBackend interface {
	GetAppeal(ctx context.Context, id backend.ID) (*backend.Appeal, error)
	CreateAppeal(ctx context.Context, in backend.AppealInput) (*backend.Appeal, error)
	UpdateAppeal(ctx context.Context, id backend.ID, patch backend.AppealPatch) (*backend.Appeal, error)
	DeleteAppeal(ctx context.Context, id backend.ID) error
	AppealHistory(ctx context.Context, id backend.ID) ([]backend.AppealHistoryEntry, error)
	LoadReferences(ctx context.Context) (*backend.References, error)
}

// AppealHandler serves the live appeal list and forwards edits
type AppealHandler struct {
	feed    *live.Feed
	backend AppealBackend
}

// NewAppealHandler creates an appeal handler
func NewAppealHandler(feed *live.Feed, b AppealBackend) *AppealHandler {
	return &AppealHandler{feed: feed, backend: b}
}

// Routes returns the appeal routes
func (h *AppealHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Post("/reload", h.Reload)
	r.Get("/references", h.References)
	r.Get("/export.xlsx", h.Export)
	r.Get("/{id}", h.Get)
	r.Patch("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	r.Get("/{id}/history", h.History)

	return r
}

// filterFromQuery reads search, severity, from, to and status parameters.
// severity may repeat or hold a comma separated list.
func filterFromQuery(r *http.Request) (live.Filter, validation.ValidationErrors) {
	q := r.URL.Query()
	var (
		f    live.Filter
		errs validation.ValidationErrors
		err  error
	)
	f.Search = q.Get("search")

	for _, raw := range q["severity"] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part == "" {
				continue
			}
			n, err := strconv.Atoi(part)
			if err != nil {
				errs = append(errs, validation.ValidationError{Field: "severity", Message: "severity must be numeric"})
				break
			}
			f.Severities = append(f.Severities, n)
		}
	}
	if f.From, err = live.ParseDay(q.Get("from"), false); err != nil {
		errs = append(errs, validation.ValidationError{Field: "from", Message: "date must be YYYY-MM-DD"})
	}
	if f.To, err = live.ParseDay(q.Get("to"), true); err != nil {
		errs = append(errs, validation.ValidationError{Field: "to", Message: "date must be YYYY-MM-DD"})
	}
	if s := q.Get("status"); s != "" {
		if f.Status, err = strconv.Atoi(s); err != nil {
			errs = append(errs, validation.ValidationError{Field: "status", Message: "status must be numeric"})
		}
	}
	return f, errs
}

// List returns the filtered live appeal list with per-status counts
func (h *AppealHandler) List(w http.ResponseWriter, r *http.Request) {
	f, errs := filterFromQuery(r)
	if errs.HasErrors() {
		ValidationErrorResponse(w, errs)
		return
	}

	all := h.feed.Appeals()
	res := f.Apply(all)
	JSONWithMeta(w, http.StatusOK, nonNil(res.Appeals), &Meta{
		Total:   len(all),
		Matched: res.Matched,
		Counts:  res.Counts,
	})
}

// Export downloads the filtered list as a spreadsheet. Reference names
// are resolved when the backend answers, ids are written otherwise.
func (h *AppealHandler) Export(w http.ResponseWriter, r *http.Request) {
	f, errs := filterFromQuery(r)
	if errs.HasErrors() {
		ValidationErrorResponse(w, errs)
		return
	}

	refs, err := h.backend.LoadReferences(r.Context())
	if err != nil {
		refs = nil
	}
	data, err := report.Appeals(f.Apply(h.feed.Appeals()).Appeals, report.NamesFrom(refs))
	if err != nil {
		InternalError(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="appeals.xlsx"`)
	_, _ = w.Write(data)
}

// Reload refetches the first page of appeals
func (h *AppealHandler) Reload(w http.ResponseWriter, r *http.Request) {
	if err := h.feed.Load(r.Context()); err != nil {
		Fail(w, err)
		return
	}
	OK(w, map[string]int{"count": len(h.feed.Appeals())})
}

// References returns the type, severity and status lists
func (h *AppealHandler) References(w http.ResponseWriter, r *http.Request) {
	refs, err := h.backend.LoadReferences(r.Context())
	if err != nil {
		Fail(w, err)
		return
	}
	OK(w, refs)
}

// Get fetches one appeal from the backend
func (h *AppealHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, err := h.backend.GetAppeal(r.Context(), backend.ID(chi.URLParam(r, "id")))
	if err != nil {
		Fail(w, err)
		return
	}
	OK(w, a)
}

// Create validates the appeal form and creates the appeal
func (h *AppealHandler) Create(w http.ResponseWriter, r *http.Request) {
	var form validation.AppealForm
	if err := decodeJSON(w, r, &form); err != nil {
		BadRequest(w, err.Error())
		return
	}
	in, err := form.Input()
	if err != nil {
		Fail(w, err)
		return
	}
	a, err := h.backend.CreateAppeal(r.Context(), in)
	if err != nil {
		Fail(w, err)
		return
	}
	Created(w, a)
}

// Update applies a partial update
func (h *AppealHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch backend.AppealPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		BadRequest(w, err.Error())
		return
	}
	a, err := h.backend.UpdateAppeal(r.Context(), backend.ID(chi.URLParam(r, "id")), patch)
	if err != nil {
		Fail(w, err)
		return
	}
	OK(w, a)
}

// Delete removes an appeal
func (h *AppealHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.backend.DeleteAppeal(r.Context(), backend.ID(chi.URLParam(r, "id"))); err != nil {
		Fail(w, err)
		return
	}
	NoContent(w)
}

// History lists the recorded changes of an appeal
func (h *AppealHandler) History(w http.ResponseWriter, r *http.Request) {
	entries, err := h.backend.AppealHistory(r.Context(), backend.ID(chi.URLParam(r, "id")))
	if err != nil {
		Fail(w, err)
		return
	}
	OK(w, nonNil(entries))
}
