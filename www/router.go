// Package www serves the bomdesk JSON API, the SSE event stream and the
// Prometheus endpoint.
package www

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"

	"bomdesk/engine"
	"bomdesk/logging"
	"bomdesk/metrics"
)

type Handlers struct {
	engine   *engine.Engine
	sessions *sessions.CookieStore
	eventHub *EventHub
	log      *zap.Logger
}

func NewRouter(eng *engine.Engine, log *zap.Logger) (http.Handler, func()) {
	log = logging.OrNop(log).Named("www")

	hub := NewEventHub(log)
	hub.Start()
	hub.SetupEngineListeners(eng)

	h := &Handlers{
		engine:   eng,
		sessions: newSessionStore(eng.AppConfig().Web.SessionSecret),
		eventHub: hub,
		log:      log,
	}

	h.ensureDefaultAdmin(eng.DB())

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5, "application/json"))
	r.Use(metrics.Middleware)

	if mc := eng.AppConfig().Metrics; mc.Enabled {
		path := mc.Path
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, metrics.Handler())
	}

	// SSE
	r.Get("/events", hub.handleEvents)

	// Public routes
	r.Get("/api/health", h.apiHealthCheck)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)

		r.Route("/schema", func(r chi.Router) {
			r.Post("/set-primary-key", h.apiSetPrimaryKey)
			r.Get("/tables", h.apiListTables)
			r.Get("/tables/{table}", h.apiGetTable)
		})

		r.Route("/bom/{projectNumber}", func(r chi.Router) {
			r.Get("/summary", h.apiProjectSummary)

			r.Get("/parts", h.apiListParts)
			r.Post("/parts", h.apiCreatePart)
			r.Get("/parts/{partID}", h.apiGetPart)
			r.Delete("/parts/{partID}", h.apiDeletePart)
			r.Post("/parts/{partID}/materials", h.apiCreateMaterial)
			r.Delete("/materials/{buzaiID}", h.apiDeleteMaterial)

			r.Route("/packaging", func(r chi.Router) {
				r.Post("/unit/part_tanni_weight", h.apiRecomputePartWeights)
				r.Post("/sync", h.apiSyncUnregistered)
				r.Post("/unit/listmake", h.apiCreatePackagingList)
				r.Post("/unit/refresh_parts", h.apiRefreshPartInfo)

				r.Get("/units", h.apiListUnits)
				r.Post("/units", h.apiCreateUnit)
				r.Get("/lists", h.apiListPackagingLists)
				r.Get("/lists/{konpoID}", h.apiGetPackagingList)
				r.Delete("/lists/{konpoID}", h.apiDeletePackagingList)
			})
		})

		r.Post("/config/password", h.handlePasswordChange)
		r.Get("/audit", h.apiAuditLog)
	})

	stopFn := func() {
		hub.Stop()
	}

	return r, stopFn
}
