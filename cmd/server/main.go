package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"demoreel/internal/config"
	"demoreel/internal/logging"
	"demoreel/internal/metrics"
	"demoreel/internal/transport/httpapi"
	"demoreel/internal/transport/ws"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to demoreel.yaml (optional)")
		addr       = flag.String("addr", "", "http listen address (default: server.addr from config)")
		debug      = flag.Bool("debug", false, "debug logging")
	)
	flag.Parse()

	log, err := logging.New("server", *debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("load config", zap.Error(err))
	}
	if a := strings.TrimSpace(*addr); a != "" {
		cfg.Server.Addr = a
	}

	validator, err := cfg.Validator()
	if err != nil {
		log.Fatal("compile schemas", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	limiter := httpapi.NewIPRateLimiter(httpapi.RateLimitConfig{
		RequestsPerSecond: cfg.Server.RateLimit.RPS,
		Burst:             cfg.Server.RateLimit.Burst,
	})
	go limiter.Run(ctx)

	pipeline := cfg.Pipeline()
	pipeline.Logger = log.Named("pipeline")

	wsSrv := ws.NewServer(ws.Config{
		Pipeline:  pipeline,
		Validator: validator,
		Metrics:   m,
		Logger:    log.Named("ws"),
	})
	router := httpapi.NewRouter(httpapi.RouterConfig{
		Pipeline:        pipeline,
		Validator:       validator,
		UnspoolPath:     cfg.Unspool.Path,
		UnspoolTickFreq: cfg.Unspool.TickFreq,
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
		Metrics:         m,
		Gatherer:        reg,
		RateLimiter:     limiter,
		CORSOrigins:     cfg.Server.CORSOrigins,
		WebSocket:       wsSrv.Handler(),
		Logger:          log.Named("http"),
	})
	if envBool("DEMOREEL_ENABLE_PPROF_HTTP", false) {
		mountPprof(router)
	} else {
		log.Info("pprof endpoints disabled (DEMOREEL_ENABLE_PPROF_HTTP=false)")
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	log.Info("listening", zap.String("addr", cfg.Server.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("ListenAndServe", zap.Error(err))
	}
}

// mountPprof serves the profiler to loopback clients only.
func mountPprof(r chi.Router) {
	r.Route("/debug/pprof", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
				if !isLoopbackRemote(req.RemoteAddr) {
					http.Error(rw, "forbidden", http.StatusForbidden)
					return
				}
				next.ServeHTTP(rw, req)
			})
		})
		r.HandleFunc("/", pprof.Index)
		r.HandleFunc("/cmdline", pprof.Cmdline)
		r.HandleFunc("/profile", pprof.Profile)
		r.HandleFunc("/symbol", pprof.Symbol)
		r.HandleFunc("/trace", pprof.Trace)
		r.HandleFunc("/{name}", pprof.Index)
	})
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
