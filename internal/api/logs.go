package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Spatial-NVR/constructor/internal/logging"
)

const (
	defaultLogLimit = 100
	maxLogLimit     = 1000
)

// LogHandler serves recent service log records
type LogHandler struct {
	journal *logging.Journal
}

func NewLogHandler(j *logging.Journal) *LogHandler {
	return &LogHandler{journal: j}
}

func (h *LogHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Recent)
	return r
}

// Recent handles GET ?limit=&level=
func (h *LogHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit := defaultLogLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			BadRequest(w, "limit must be a positive number")
			return
		}
		limit = min(n, maxLogLimit)
	}
	level := slog.LevelDebug
	if s := r.URL.Query().Get("level"); s != "" {
		level = logging.ParseLevel(s)
	}

	entries := h.journal.Recent(limit, level)
	JSONWithMeta(w, http.StatusOK, entries, &Meta{Total: h.journal.Len(), Matched: len(entries)})
}
