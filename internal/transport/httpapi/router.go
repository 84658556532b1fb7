package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"demoreel/internal/analysis"
	"demoreel/internal/metrics"
	"demoreel/internal/protocol"
)

// RouterConfig carries every dependency of the HTTP surface.
//
//	router := httpapi.NewRouter(httpapi.RouterConfig{
//	    RateLimitConfig: &httpapi.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
//	})
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	Pipeline  analysis.Config
	Validator *protocol.Validator

	// UnspoolPath and UnspoolTickFreq apply when the request omits them.
	UnspoolPath     string
	UnspoolTickFreq uint32

	// MaxBodyBytes caps uploaded streams; 0 means unlimited.
	MaxBodyBytes int64

	Metrics *metrics.Metrics
	// Gatherer serves /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer

	// RateLimiter wins over RateLimitConfig. Both nil uses DefaultRateLimitConfig.
	RateLimiter     *IPRateLimiter
	RateLimitConfig *RateLimitConfig

	// CORSOrigins nil allows localhost on any port.
	CORSOrigins []string

	// WebSocket is mounted on /v1/ws/dtrace when set.
	WebSocket http.Handler

	Logger *zap.Logger
}

type routerHandlers struct {
	cfg RouterConfig
	log *zap.Logger
}

// NewRouter builds the HTTP router. It starts no goroutines, so it is safe
// to use with httptest.NewServer.
func NewRouter(cfg RouterConfig) *chi.Mux {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)

	origins := cfg.CORSOrigins
	if origins == nil {
		origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	h := &routerHandlers{cfg: cfg, log: log}

	r.Get("/healthz", h.handleHealthz)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	limiter := cfg.RateLimiter
	if limiter == nil {
		rlc := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rlc = *cfg.RateLimitConfig
		}
		limiter = NewIPRateLimiter(rlc)
	}
	if limiter.OnReject == nil && cfg.Metrics != nil {
		m := cfg.Metrics
		limiter.OnReject = func(string) { m.Rejected("rate_limit") }
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(limiter.Middleware)
		r.Post("/dtrace", h.handleDtrace)
		r.Post("/unspool", h.handleUnspool)
		if cfg.WebSocket != nil {
			r.Get("/ws/dtrace", cfg.WebSocket.ServeHTTP)
		}
	})
	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("request",
				zap.String("id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", time.Since(start)))
		})
	}
}
