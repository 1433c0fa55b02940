// Package api is the vpswatch backend: agents post reports, dashboards
// list nodes.
//
// Routes:
//
//	POST /api/report, /report   agent report (token required, rate limited)
//	GET  /api/nodes, /nodes     merged node list
//	GET  /api/ws                node list pushed every refresh interval
//	GET  /health                liveness and store reachability
//
// Handlers hold no locks around store round trips; every request reads and
// writes the store directly.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/aceteam-ai/vpswatch/internal/fleet"
	"github.com/aceteam-ai/vpswatch/internal/geo"
	"github.com/aceteam-ai/vpswatch/internal/store"
	"github.com/aceteam-ai/vpswatch/internal/traffic"
)

const (
	DefaultAddr            = ":3000"
	DefaultSnapshotTTL     = 20 * time.Second
	DefaultRefreshInterval = 2 * time.Second
	DefaultReportRPS       = 5
	DefaultReportBurst     = 10

	// NodeIndexTTL keeps the node index around for a year.
	NodeIndexTTL = 365 * 24 * time.Hour

	maxReportBytes = 1 << 20
)

// Config holds configuration for the API server.
type Config struct {
	// Addr to listen on (default: ":3000")
	Addr string

	// Store holds snapshots, baselines and the geo cache. Nil means no store
	// is configured: reports fail and listings serve placeholders only.
	Store store.Store

	// Fleet is the statically configured node list (optional)
	Fleet *fleet.Config

	// Token is the shared secret agents must present
	Token string

	// Geo enriches reports with IP geolocation (optional)
	Geo *geo.Cache

	// Accountant computes cycle usage (default: built on Store)
	Accountant *traffic.Accountant

	// SnapshotTTL is how long a report stays in the store (default: 20s)
	SnapshotTTL time.Duration

	// RefreshInterval is advertised to dashboards and paces the live feed
	// (default: 2s)
	RefreshInterval time.Duration

	// ReportRPS and ReportBurst limit reports per client IP. A negative
	// ReportRPS disables limiting.
	ReportRPS   float64
	ReportBurst int

	// StaticDir, when set, is served at /
	StaticDir string

	Version string

	// Now overrides the clock (default: time.Now)
	Now func() time.Time

	// Logger receives request and failure logs (default: discarded)
	Logger *log.Logger
}

// Server is the HTTP API.
type Server struct {
	store       store.Store
	fleet       *fleet.Config
	token       string
	geo         *geo.Cache
	accountant  *traffic.Accountant
	snapshotTTL time.Duration
	refresh     time.Duration
	limiter     *RateLimiter
	staticDir   string
	version     string
	now         func() time.Time
	logger      *log.Logger
	addr        string

	upgrader websocket.Upgrader
	handler  http.Handler
}

// NewServer creates the API server.
func NewServer(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.SnapshotTTL <= 0 {
		cfg.SnapshotTTL = DefaultSnapshotTTL
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.ReportRPS == 0 {
		cfg.ReportRPS = DefaultReportRPS
	}
	if cfg.ReportBurst <= 0 {
		cfg.ReportBurst = DefaultReportBurst
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	if cfg.Accountant == nil && cfg.Store != nil {
		cfg.Accountant = traffic.NewAccountant(traffic.AccountantConfig{
			Store:  cfg.Store,
			Now:    cfg.Now,
			Logger: cfg.Logger,
		})
	}

	s := &Server{
		store:       cfg.Store,
		fleet:       cfg.Fleet,
		token:       cfg.Token,
		geo:         cfg.Geo,
		accountant:  cfg.Accountant,
		snapshotTTL: cfg.SnapshotTTL,
		refresh:     cfg.RefreshInterval,
		staticDir:   cfg.StaticDir,
		version:     cfg.Version,
		now:         cfg.Now,
		logger:      cfg.Logger,
		addr:        cfg.Addr,
	}
	if cfg.ReportRPS > 0 {
		s.limiter = NewRateLimiter(cfg.ReportRPS, cfg.ReportBurst)
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		// The node list is public, same as GET /api/nodes.
		CheckOrigin: func(*http.Request) bool { return true },
	}

	s.handler = cors(s.requestLog(s.routes()))
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()

	report := s.limitReports(s.requireToken(http.HandlerFunc(s.handleReport)))
	r.Handle("/api/report", report).Methods(http.MethodPost)
	r.Handle("/report", report).Methods(http.MethodPost)

	r.HandleFunc("/api/nodes", s.handleNodes).Methods(http.MethodGet)
	r.HandleFunc("/nodes", s.handleNodes).Methods(http.MethodGet)
	r.HandleFunc("/api/ws", s.handleFeed).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	if s.staticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(s.staticDir)))
	} else {
		r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusNotFound, "Not found")
		})
	}
	return r
}

// Handler returns the full HTTP handler, middleware included.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and serves until ctx is
// cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.logger.Printf("listening on %s", listener.Addr())

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		if s.limiter != nil {
			s.limiter.Stop()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// Close releases background resources when the server is used through
// Handler without Start.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
