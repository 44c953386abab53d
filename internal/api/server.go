package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/Spatial-NVR/constructor/internal/backend"
	"github.com/Spatial-NVR/constructor/internal/database"
	"github.com/Spatial-NVR/constructor/internal/editor"
	"github.com/Spatial-NVR/constructor/internal/eventbus"
	"github.com/Spatial-NVR/constructor/internal/live"
	"github.com/Spatial-NVR/constructor/internal/logging"
	"github.com/Spatial-NVR/constructor/internal/store"
)

// Backend is everything the HTTP API forwards to the REST backend
type Backend interface {
	AppealBackend
	AccessBackend
	BuildingBackend
	FileFetcher
}

// Deps are the services the router is built over. DB, Bus, Drafts,
// History, Credentials, Feed and Journal are optional.
type Deps struct {
	Session     *editor.Session
	Backend     Backend
	Feed        *live.Feed
	Hub         *Hub
	Bus         *eventbus.EventBus
	DB          *database.DB
	Drafts      *store.DraftStore
	History     *store.PublishLog
	Credentials CredentialStore
	Policies    backend.PolicySet
	Journal     *logging.Journal

	CORSOrigins []string
	// RateLimit is requests per minute per client IP, zero disables it
	RateLimit int
	Logger    *slog.Logger
}

var defaultOrigins = []string{"http://localhost:*", "http://127.0.0.1:*"}

// NewRouter builds the HTTP router and connects session and appeal events
// to the WebSocket hub and the event bus
func NewRouter(d Deps) (*chi.Mux, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "api")

	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = defaultOrigins
	}

	if err := wireEvents(d, logger); err != nil {
		return nil, err
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if d.RateLimit > 0 {
		r.Use(httprate.LimitByIP(d.RateLimit, time.Minute))
	}

	r.Get("/health", healthHandler(d))

	if d.Hub != nil {
		r.Get("/ws", d.Hub.HandleWebSocket)
	}

	r.Route("/api", func(r chi.Router) {
		r.Mount("/constructor", NewConstructorHandler(d.Session, d.Drafts, d.History, d.Backend).Routes())

		if d.Journal != nil {
			r.Mount("/logs", NewLogHandler(d.Journal).Routes())
		}

		if d.Backend != nil {
			r.Mount("/access", NewAccessHandler(d.Backend, d.Credentials, d.Policies).Routes())
			r.Mount("/buildings", NewBuildingHandler(d.Backend, d.Policies).Routes())
			if d.Feed != nil {
				r.Mount("/appeals", NewAppealHandler(d.Feed, d.Backend).Routes())
			}
		}
	})

	return r, nil
}

// wireEvents fans session changes out to the hub and the bus, and forwards
// applied appeal events from the bus to the hub
func wireEvents(d Deps, logger *slog.Logger) error {
	d.Session.OnChange(func(c editor.Change) {
		if d.Hub != nil {
			d.Hub.Broadcast(TopicSession, ChangeMessage(c))
		}
		if d.Bus != nil && c.Kind != editor.ChangeHover {
			if err := d.Bus.Publish(eventbus.SubjectChanges, c); err != nil {
				logger.Warn("Failed to publish change", "kind", c.Kind, "error", err)
			}
		}
	})

	if d.Bus == nil || d.Hub == nil {
		return nil
	}
	_, err := eventbus.SubscribeJSON(d.Bus, eventbus.SubjectAppeals, func(a live.Applied) {
		d.Hub.Broadcast(TopicAppeals, AppealMessage(a))
	})
	return err
}

func healthHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "healthy"
		checks := map[string]string{}

		check := func(name string, err error) {
			if err != nil {
				status = "degraded"
				checks[name] = err.Error()
				return
			}
			checks[name] = "ok"
		}
		if d.DB != nil {
			check("database", d.DB.Health(ctx))
		}
		if d.Bus != nil {
			check("eventbus", d.Bus.HealthCheck(ctx))
		}

		body := map[string]any{
			"status":  status,
			"session": d.Session.ID(),
			"checks":  checks,
		}
		if d.Hub != nil {
			body["ws_clients"] = d.Hub.ClientCount()
		}
		if d.Feed != nil {
			body["appeals"] = len(d.Feed.Appeals())
		}

		code := http.StatusOK
		if status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		JSON(w, code, body)
	}
}
