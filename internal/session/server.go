package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/testscribe/testscribe/internal/config"
	"github.com/testscribe/testscribe/internal/observability"
	"github.com/testscribe/testscribe/pkg/httputil"
)

// API is the calibration surface the HTTP layer exposes. *Manager satisfies
// it.
type API interface {
	Create(ctx context.Context, url string) (*Info, error)
	SyncDOM(ctx context.Context, id string) (*DOMState, error)
	Highlight(ctx context.Context, id, domID, action string) error
	PersistSnapshot(ctx context.Context, id string) (*PersistResult, error)
	CloseSession(id string) error
	List() []Info
}

type createRequest struct {
	URL string `json:"url"`
}

type highlightRequest struct {
	DomID  string `json:"dom_id"`
	Action string `json:"action"`
}

// NewRouter builds the calibration server's routes.
func NewRouter(api API, metrics *observability.Metrics, logger *zap.Logger) chi.Router {
	if logger == nil {
		logger, _ = zap.NewDevelopment()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
	if metrics != nil {
		r.Use(metrics.HTTPMiddleware)
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	h := &handlers{api: api, logger: logger}
	r.Route("/api/v1/sessions", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Post("/{id}/sync", h.sync)
		r.Post("/{id}/highlight", h.highlight)
		r.Post("/{id}/snapshot", h.persist)
		r.Delete("/{id}", h.close)
	})

	return r
}

type handlers struct {
	api    API
	logger *zap.Logger
}

func (h *handlers) list(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]any{"sessions": h.api.List()})
}

func (h *handlers) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}

	info, err := h.api.Create(r.Context(), req.URL)
	if err != nil {
		h.logger.Warn("session create failed", zap.String("url", req.URL), zap.Error(err))
		httputil.ErrorFromDomain(w, err)
		return
	}
	httputil.JSON(w, http.StatusCreated, info)
}

func (h *handlers) sync(w http.ResponseWriter, r *http.Request) {
	state, err := h.api.SyncDOM(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, state)
}

func (h *handlers) highlight(w http.ResponseWriter, r *http.Request) {
	var req highlightRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}

	if err := h.api.Highlight(r.Context(), chi.URLParam(r, "id"), req.DomID, req.Action); err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, map[string]any{
		"dom_id": req.DomID,
		"action": req.Action,
	})
}

func (h *handlers) persist(w http.ResponseWriter, r *http.Request) {
	res, err := h.api.PersistSnapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, res)
}

func (h *handlers) close(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.api.CloseSession(id); err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, map[string]string{"session_id": id})
}

// Server wraps http.Server with graceful shutdown.
type Server struct {
	cfg    config.ServerConfig
	srv    *http.Server
	logger *zap.Logger
}

// NewServer builds the calibration HTTP server.
func NewServer(cfg config.ServerConfig, api API, metrics *observability.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger, _ = zap.NewDevelopment()
	}
	return &Server{
		cfg: cfg,
		srv: &http.Server{
			Addr:         cfg.Addr(),
			Handler:      NewRouter(api, metrics, logger),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		logger: logger,
	}
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("calibration server listening", zap.String("addr", s.cfg.Addr()))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
