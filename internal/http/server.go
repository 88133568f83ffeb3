package http

import (
	"bytes"
	"context"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"bookkeeping/internal/cache"
	"bookkeeping/internal/csvimport"
	applog "bookkeeping/internal/log"
	"bookkeeping/internal/middleware/ratelimit"
	"bookkeeping/internal/middleware/security"
	"bookkeeping/internal/middleware/trace"
	"bookkeeping/internal/sheets"
	"bookkeeping/internal/workspace"
	appweb "bookkeeping/web"
)

// SessionCookie holds the workspace id of a browser.
const SessionCookie = "bk_session"

// Options configures a Server. Zero values pick the defaults below.
type Options struct {
	// MaxUploadBytes bounds import uploads. Default 5 MiB.
	MaxUploadBytes int64
	SessionTTL     time.Duration
	SnapshotTTL    time.Duration
	StoreTimeout   time.Duration
	// Ping checks the store for /readyz. Nil reports ready.
	Ping func(context.Context) error
	// RateLimit is the number of writes per client and minute.
	RateLimit int
	Logger    *applog.Logger
	// Now is the clock used for default years and dates.
	Now func() time.Time
}

type Server struct {
	http.Server
	templates  *template.Template
	workspaces *workspace.Manager
	parser     *csvimport.Parser
	ping       func(context.Context) error
	maxUpload  int64
	now        func() time.Time
	started    time.Time

	logger       *applog.Logger
	events       *applog.StructuredLogger
	caches       *cache.Manager
	detector     *security.Detector
	limiter      *ratelimit.Limiter
	tracer       *trace.Middleware
	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run http.Server.
func NewServer(addr string, store sheets.Store, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 5 << 20
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 2 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}
	logger := opts.Logger.WithComponent(applog.ComponentHTTP)

	s := &Server{
		workspaces: workspace.NewManager(store, workspace.Options{
			SessionTTL:   opts.SessionTTL,
			SnapshotTTL:  opts.SnapshotTTL,
			StoreTimeout: opts.StoreTimeout,
		}),
		parser:    csvimport.NewParser(),
		ping:      opts.Ping,
		maxUpload: opts.MaxUploadBytes,
		now:       opts.Now,
		started:   opts.Now(),
		logger:    logger,
		events:    applog.NewStructuredLogger(logger),
		caches:    cache.NewManager(),
		detector:  security.NewDetector(),
		limiter:   ratelimit.NewLimiter(ratelimit.Config{Requests: opts.RateLimit}),
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)
	for _, c := range s.workspaces.Cleaners() {
		s.caches.Register(c)
	}
	s.caches.StartCleanup(time.Minute)

	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Warn("Failed parsing templates", "error", err)
	}
	s.templates = t

	mux := http.NewServeMux()
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		logger.Warn("Failed to mount embedded static FS", "error", err)
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /{$}", s.handleDashboard)
	mux.HandleFunc("GET /api/dashboard", s.handleDashboardJSON)
	mux.HandleFunc("POST /transactions", s.handleAddTransaction)
	mux.HandleFunc("PATCH /api/transactions/{id}", s.handlePatchTransaction)

	mux.HandleFunc("POST /import", s.handleImportUpload)
	mux.HandleFunc("POST /import/drafts/{key}", s.handleDraftEdit)
	mux.HandleFunc("POST /import/drafts/{key}/delete", s.handleDraftRemove)
	mux.HandleFunc("POST /import/commit", s.handleImportCommit)
	mux.HandleFunc("POST /import/cancel", s.handleImportCancel)

	mux.HandleFunc("POST /selection/toggle-all", s.handleToggleAll)
	mux.HandleFunc("POST /selection/{id}/toggle", s.handleToggleOne)
	mux.HandleFunc("POST /selection/confirm", s.handleConfirmOpen)
	mux.HandleFunc("POST /selection/cancel", s.handleConfirmCancel)
	mux.HandleFunc("POST /selection/delete", s.handleConfirmDelete)

	var h http.Handler = mux
	h = s.limiter.Middleware(s.detector.ExtractClientIP, s.onRateLimit)(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.tracer.Middleware(h)
	h = s.detector.Middleware(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Shutdown stops background routines and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		s.caches.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// Workspaces exposes the session manager.
func (s *Server) Workspaces() *workspace.Manager {
	return s.workspaces
}

// session returns the workspace of the requesting browser, issuing a new
// cookie when the browser has none or an unknown one.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *workspace.Workspace {
	id := ""
	if c, err := r.Cookie(SessionCookie); err == nil {
		if _, perr := uuid.Parse(c.Value); perr == nil {
			id = c.Value
		}
	}
	ws, created := s.workspaces.Get(id)
	if created {
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookie,
			Value:    ws.ID,
			Path:     "/",
			HttpOnly: true,
			Secure:   r.TLS != nil,
			SameSite: http.SameSiteLaxMode,
		})
		s.logger.DebugContext(r.Context(), "Session created", applog.FieldSession, ws.ID)
	}
	return ws
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	slog.WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldComponent, applog.ComponentRateLimit,
		applog.FieldClientIP, s.detector.ExtractClientIP(r),
		applog.FieldPath, r.URL.Path)
	ErrorResponse(r, http.StatusTooManyRequests, "Too many requests. Please try again later.").Write(w, r)
}

// render executes a template into a buffer so failures never send half a page.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	if s.templates == nil {
		s.logger.ErrorContext(r.Context(), "Templates not loaded", applog.FieldPath, r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.events.LogError(r.Context(), "Template execution failed", err, applog.OpRender, nil)
		http.Error(w, "rendering failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
