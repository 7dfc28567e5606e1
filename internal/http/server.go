package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"ledgerwidget/internal/cache"
	"ledgerwidget/internal/core"
	"ledgerwidget/internal/log"
	"ledgerwidget/internal/middleware/ratelimit"
	"ledgerwidget/internal/middleware/security"
	"ledgerwidget/internal/middleware/trace"
	appweb "ledgerwidget/web"
)

// Ledger is the part of the ledger engine the web layer uses.
type Ledger interface {
	CheckAndRollover(ctx context.Context, now time.Time) (bool, error)
	Record(ctx context.Context, category string, amount float64, now time.Time) (core.Transaction, error)
	CurrentBalance() float64
	TotalsFor(period core.Period, now time.Time) (core.Totals, error)
	Transactions() []core.Transaction
	History() core.History
	LastMonth() string
	Location() *time.Location
}

// Options configures a Server. Zero values fall back to defaults.
type Options struct {
	Categories     []string
	Currency       string
	TotalsCacheTTL time.Duration
	RateLimit      ratelimit.Config
	Logger         *log.Logger
	// Ready reports backend readiness for /readyz.
	Ready func(ctx context.Context) error
	// Now is the clock used for period keys and new transactions.
	Now func() time.Time
}

type Server struct {
	http.Server
	ledger     Ledger
	templates  *template.Template
	categories []string
	currency   string
	now        func() time.Time
	ready      func(ctx context.Context) error
	logger     *log.Logger

	// Totals per period key, cleared on every write
	totalsCache  *cache.LRUCache[core.Totals]
	cacheManager *cache.Manager

	limiter  *ratelimit.Limiter
	tracer   *trace.Middleware
	detector *security.Detector

	shutdownOnce sync.Once
}

// NewServer configures routes, middleware and templates, returning a
// ready-to-run server.
func NewServer(addr string, ledger Ledger, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Currency == "" {
		opts.Currency = core.DefaultCurrency
	}
	if opts.RateLimit.RequestsPerMinute == 0 {
		opts.RateLimit = ratelimit.DefaultConfig()
	}

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
			MaxHeaderBytes:    1 << 16, // 64KB
		},
		ledger:       ledger,
		categories:   opts.Categories,
		currency:     opts.Currency,
		now:          opts.Now,
		ready:        opts.Ready,
		logger:       logger,
		totalsCache:  cache.NewLRUCache[core.Totals](64, opts.TotalsCacheTTL),
		cacheManager: cache.NewManager(logger),
		limiter:      ratelimit.NewLimiter(opts.RateLimit, logger),
		detector:     security.NewDetector(),
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)
	s.cacheManager.Register(s.totalsCache)
	if opts.TotalsCacheTTL > 0 {
		s.cacheManager.StartCleanup(opts.TotalsCacheTTL)
	}

	t, err := template.New("").Funcs(s.templateFuncs()).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Warn("Failed parsing templates", log.FieldError, err)
	}
	s.templates = t

	mux := http.NewServeMux()

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(time.Hour)(static))
	} else {
		logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /ui/summary", s.handleSummary)
	mux.HandleFunc("POST /transactions", s.handleCreateTransaction)

	mux.HandleFunc("GET /api/balance", s.handleBalance)
	mux.HandleFunc("GET /api/transactions", s.handleTransactions)
	mux.HandleFunc("GET /api/totals", s.handleTotals)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("POST /api/rollover", s.handleRollover)

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limit := s.limiter.Middleware(s.detector.ExtractClientIP, nil)

	var h http.Handler = mux
	h = limit(h)
	h = headers.Middleware(h)
	h = s.detector.Middleware(h)
	h = s.tracer.Middleware(h)
	s.Handler = h

	return s
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

// totals returns the period totals for now, cached per period key.
func (s *Server) totals(ctx context.Context, period core.Period, now time.Time) (core.Totals, string, error) {
	key, err := period.Key(now, s.ledger.Location())
	if err != nil {
		return nil, "", err
	}

	if t, ok := s.totalsCache.Get(key); ok {
		log.FromContext(ctx).DebugContext(ctx, "Totals cache hit", log.FieldPeriod, key)
		return t.Clone(), key, nil
	}

	t, err := s.ledger.TotalsFor(period, now)
	if err != nil {
		return nil, "", err
	}
	s.totalsCache.Set(key, t.Clone())
	return t, key, nil
}

// CheckRollover runs the month check for the current time and drops cached
// totals when the month changed. Background checks must go through here so
// the cache never outlives the month it was computed for.
func (s *Server) CheckRollover(ctx context.Context) (bool, error) {
	rolled, err := s.ledger.CheckAndRollover(ctx, s.now())
	if err != nil {
		return false, err
	}
	if rolled {
		s.invalidateTotals()
	}
	return rolled, nil
}

func (s *Server) invalidateTotals() {
	s.totalsCache.Clear()
}
