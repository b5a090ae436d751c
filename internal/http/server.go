package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"bauchermatch/internal/core"
	"bauchermatch/internal/dashboard"
	applog "bauchermatch/internal/log"
	"bauchermatch/internal/middleware/ratelimit"
	"bauchermatch/internal/middleware/security"
	"bauchermatch/internal/middleware/trace"
	"bauchermatch/internal/pipeline"
	"bauchermatch/internal/services"
)

// StatementAPI is what the handlers need from the statement service.
type StatementAPI interface {
	Process(ctx context.Context, src pipeline.Source, variant core.Variant) (services.Outcome, error)
	Variants() []core.Variant
	Dashboard(ctx context.Context, year int) dashboard.Snapshot
	Statements(ctx context.Context, year int) ([]core.ProcessedStatement, bool)
	Delete(ctx context.Context, id int64) bool
	Clear(ctx context.Context) bool
	MonthlyTotals(ctx context.Context) ([]core.MonthlyTotal, bool)
	DatabasePath() string
	Pipelines() []services.PipelineStatus
}

var _ StatementAPI = (*services.StatementService)(nil)

// Options tunes the server. Zero values get defaults.
type Options struct {
	DefaultVariant core.Variant
	MaxUploadBytes int64
	// UploadTimeout bounds one upload request, extraction included.
	UploadTimeout     time.Duration
	RequestsPerMinute int
	// TrustedProxies lists CIDRs whose forwarding headers are believed.
	TrustedProxies []string
	Logger         *applog.Logger
}

type Server struct {
	http.Server
	svc      StatementAPI
	logger   *applog.Logger
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware
	started  time.Time

	defaultVariant core.Variant
	maxUploadBytes int64
	uploadTimeout  time.Duration

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, svc StatementAPI, opts Options) *Server {
	if !opts.DefaultVariant.IsValid() {
		opts.DefaultVariant = core.VariantPartial
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 20 << 20
	}
	if opts.UploadTimeout <= 0 {
		opts.UploadTimeout = 3 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}
	logger := opts.Logger.WithComponent(applog.ComponentHTTP)

	s := &Server{
		svc:            svc,
		logger:         logger,
		limiter:        ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RequestsPerMinute}),
		detector:       security.NewDetector(),
		started:        time.Now(),
		defaultVariant: opts.DefaultVariant,
		maxUploadBytes: opts.MaxUploadBytes,
		uploadTimeout:  opts.UploadTimeout,
	}
	for _, cidr := range opts.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", applog.FieldError, err)
		}
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	limited := s.limiter.Middleware(s.detector.ExtractClientIP, s.rateLimited)
	mux.Handle("POST /api/uploads", limited(http.HandlerFunc(s.handleUpload)))
	mux.HandleFunc("GET /api/dashboard", s.handleDashboard)
	mux.HandleFunc("GET /api/statements", s.handleListStatements)
	mux.HandleFunc("DELETE /api/statements/{id}", s.handleDeleteStatement)
	mux.HandleFunc("DELETE /api/statements", s.handleClearStatements)
	mux.HandleFunc("GET /api/monthly-totals", s.handleMonthlyTotals)
	mux.HandleFunc("GET /api/database-path", s.handleDatabasePath)
	mux.HandleFunc("GET /api/pipelines", s.handlePipelines)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.tracer.Middleware(headers.Middleware(s.detect(mux))),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// detect logs requests that look like probes. They are still served.
func (s *Server) detect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.detector.DetectSuspiciousRequest(r) {
			applog.FromContext(r.Context()).WithComponent(applog.ComponentSecurity).WarnContext(r.Context(),
				"Suspicious request detected",
				applog.FieldClientIP, s.detector.ExtractClientIP(r),
				applog.FieldMethod, r.Method,
				applog.FieldPath, r.URL.Path,
				applog.FieldUserAgent, r.UserAgent())
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WithComponent(applog.ComponentRateLimit).WarnContext(r.Context(),
		"Rate limit exceeded",
		applog.FieldClientIP, s.detector.ExtractClientIP(r),
		applog.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "rate_limited",
		"Demasiadas solicitudes. Intenta de nuevo en un minuto.").Write(w)
}

// Shutdown gracefully shuts down the server and the limiter cleanup.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
