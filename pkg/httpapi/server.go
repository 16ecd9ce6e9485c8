package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/solaius/pathkeeper/pkg/pathsync"
	"github.com/solaius/pathkeeper/pkg/rebuild"
	"github.com/solaius/pathkeeper/pkg/resolve"
)

// Server assembles the public resolver endpoint and the admin API into a
// single chi router.
type Server struct {
	engine        *pathsync.Engine
	resolver      *resolve.Resolver
	jobStore      *rebuild.JobStore
	cfg           *ServerConfig
	logger        *slog.Logger
	matchHandlers []resolve.MatchHandler
}

// NewServer creates a server over the given engine, resolver, and job store.
// jobStore may be nil; the rebuild API is not mounted then.
func NewServer(engine *pathsync.Engine, resolver *resolve.Resolver, jobStore *rebuild.JobStore, cfg *ServerConfig, logger *slog.Logger) *Server {
	if cfg == nil {
		cfg = DefaultServerConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:   engine,
		resolver: resolver,
		jobStore: jobStore,
		cfg:      cfg,
		logger:   logger,
	}
}

// RegisterMatchHandler adds a handler that runs when an inbound path
// resolves to an active record. The first handler to claim the match's
// response slot wins. Not safe to call after Router.
func (s *Server) RegisterMatchHandler(h resolve.MatchHandler) {
	s.matchHandlers = append(s.matchHandlers, h)
}

// Router creates the HTTP router with all routes mounted.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if s.cfg.RequestLogging {
		r.Use(RequestLogger(s.logger))
	}
	if s.cfg.CORSEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-By"},
			ExposedHeaders:   []string{"Link"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", s.healthHandler)
	r.Get("/livez", s.healthHandler)
	r.Get("/readyz", s.readyHandler)

	r.Mount("/api/paths/v1alpha1", s.adminRouter())
	if s.jobStore != nil {
		typeExists := s.typeChecker()
		r.Mount("/api/jobs/v1alpha1", rebuild.Router(s.jobStore, typeExists))
	}

	// Everything else is a content path lookup.
	r.NotFound(s.resolveHandler)

	return r
}

func (s *Server) adminRouter() chi.Router {
	r := chi.NewRouter()

	r.Get("/entities/{entityType}/{entityId}/path", ActivePathHandler(s.engine))
	r.Get("/entities/{entityType}/{entityId}/history", HistoryHandler(s.engine))
	r.Post("/entities/{entityType}/{entityId}:sync", SyncHandler(s.engine))
	r.Post("/entities/{entityType}/{entityId}:softDelete", SoftDeleteHandler(s.engine))
	r.Post("/entities/{entityType}/{entityId}:restore", RestoreHandler(s.engine))
	r.Post("/entities/{entityType}/{entityId}:purge", PurgeHandler(s.engine))
	r.Get("/resolve", ResolveHandler(s.resolver))
	r.Get("/redirect", RedirectHandler(s.resolver))
	if s.jobStore != nil {
		r.Post("/rebuild", rebuild.EnqueueJobHandler(s.jobStore, s.typeChecker()))
	}

	return r
}

func (s *Server) typeChecker() rebuild.TypeChecker {
	return func(entityType string) bool {
		for _, t := range s.engine.Registry().Types() {
			if t == entityType {
				return true
			}
		}
		return false
	}
}

// resolveHandler serves public content URLs: active paths dispatch to the
// registered match handlers, retired paths answer a permanent redirect with
// the query string preserved, everything else is a 404.
func (s *Server) resolveHandler(w http.ResponseWriter, r *http.Request) {
	res, err := s.resolver.Resolve(r.Context(), r.URL.Path)
	if err != nil {
		if errors.Is(err, pathsync.ErrPathTooLong) {
			writeError(w, http.StatusRequestURITooLong, err.Error())
			return
		}
		s.logger.Error("resolve failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "resolution failed")
		return
	}

	switch res.Kind {
	case resolve.KindFound:
		m := resolve.NewMatch(r, res)
		for _, h := range s.matchHandlers {
			h(m)
		}
		if responder := m.Responder(); responder != nil {
			responder.ServeHTTP(w, r)
			return
		}
		writeError(w, http.StatusNotFound, "no handler for matched path")

	case resolve.KindRedirect:
		target := "/" + res.RedirectTo
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}
		http.Redirect(w, r, target, http.StatusMovedPermanently)

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
