package httpapi

import (
  "context"
  "encoding/json"
  "net/http"
  "sync"
  "time"

  "github.com/go-chi/chi/v5"
  "github.com/go-chi/chi/v5/middleware"
  "github.com/robertof/go-ruuvi-station/collector"
  "github.com/robertof/go-ruuvi-station/gatt"
  "github.com/rs/zerolog/log"
)

// Tags is the latest measurement of every tag in range. *collector.Store implements it.
type Tags interface {
  Latest() map[string]collector.Entry
  Get(addr string) (collector.Entry, bool)
  Name(addr string) string
}

// Sessions runs requests against tags. *gatt.Manager implements it.
type Sessions interface {
  ReadLogs(addr string, from time.Time, listener gatt.Listener) bool
  FetchVersion(addr string, listener gatt.Listener) bool
  Disconnect(addr string) bool
  IsConnected(addr string) bool
}

type Server struct {
  tags Tags
  sessions Sessions
  metrics http.Handler

  router chi.Router
  server *http.Server

  mu sync.Mutex
  requests map[string]*requestStatus
}

// NewServer returns the HTTP server of the station. metrics may be nil.
func NewServer(tags Tags, sessions Sessions, metrics http.Handler) *Server {
  s := &Server{
    tags: tags,
    sessions: sessions,
    metrics: metrics,
    router: chi.NewRouter(),
    requests: make(map[string]*requestStatus),
  }

  s.setupRoutes()

  s.server = &http.Server{
    Handler: s.router,
    ReadTimeout: 15 * time.Second,
    WriteTimeout: 15 * time.Second,
    IdleTimeout: 60 * time.Second,
  }

  return s
}

func (s *Server) Handler() http.Handler {
  return s.router
}

func (s *Server) setupRoutes() {
  s.router.Use(middleware.RequestID)
  s.router.Use(middleware.RealIP)
  s.router.Use(requestLogger)
  s.router.Use(middleware.Recoverer)

  if s.metrics != nil {
    s.router.Handle("/metrics", s.metrics)
  }

  s.router.Route("/api/v1", func(r chi.Router) {
    r.Route("/tags", func(r chi.Router) {
      r.Get("/", s.HandleListTags)
      r.Route("/{addr}", func(r chi.Router) {
        r.Get("/", s.HandleGetTag)
        r.Post("/logs", s.HandleReadLogs)
        r.Post("/version", s.HandleFetchVersion)
        r.Get("/request", s.HandleGetRequest)
        r.Delete("/connection", s.HandleDisconnect)
      })
    })
  })
}

func (s *Server) ListenAndServe(addr string) error {
  s.server.Addr = addr

  log.Info().Str("ListenAddress", addr).Msg("Starting HTTP server")
  return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
  return s.server.Shutdown(ctx)
}

func requestLogger(next http.Handler) http.Handler {
  return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
    ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
    start := time.Now()

    defer func() {
      log.Debug().
        Str("Method", r.Method).
        Str("Path", r.URL.Path).
        Int("Status", ww.Status()).
        Dur("Duration", time.Since(start)).
        Str("RequestID", middleware.GetReqID(r.Context())).
        Msg("http: request served")
    }()

    next.ServeHTTP(ww, r)
  })
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
  response, err := json.Marshal(payload)
  if err != nil {
    log.Error().Err(err).Msg("http: failed to marshal response")
    w.WriteHeader(http.StatusInternalServerError)
    return
  }

  w.Header().Set("Content-Type", "application/json")
  w.WriteHeader(status)
  w.Write(response)
}

func respondError(w http.ResponseWriter, status int, message string) {
  respondJSON(w, status, map[string]string{
    "error": message,
  })
}
