package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"guard-gateway/dispatch"
	"guard-gateway/middleware/ratelimit"
	"guard-gateway/middleware/ratelimit/application"
	"guard-gateway/middleware/ratelimit/domain"
	"guard-gateway/middleware/ratelimit/infra"
	"guard-gateway/middleware/threat"
	"guard-gateway/resilience"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := readConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(2)
	}

	log, flush, err := newLogger(cfg.logLevel, cfg.logDevelopment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(2)
	}
	defer flush()

	if err := run(cfg, log); err != nil {
		log.Error(err, "gateway stopped")
		flush()
		os.Exit(1)
	}
}

func run(cfg config, log logr.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var rdb *redis.Client
	if cfg.redisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:         cfg.redisAddr,
			Password:     cfg.redisPassword,
			DB:           cfg.redisDB,
			DialTimeout:  cfg.redisTimeout,
			ReadTimeout:  cfg.redisTimeout,
			WriteTimeout: cfg.redisTimeout,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, pingCancel := context.WithTimeout(ctx, cfg.redisTimeout)
		_, err := rdb.Ping(pingCtx).Result()
		pingCancel()
		if err != nil {
			// sobe mesmo assim: o limiter usa o fallback local até o Redis voltar
			log.Error(err, "redis ping failed, rate limiting starts on the in-process fallback", "addr", cfg.redisAddr)
		}
	}

	fallback := infra.NewMemoryWindowStore()
	fallback.StartJanitor(ctx)

	var store domain.WindowStore
	if rdb != nil {
		store = infra.NewRedisWindowStore(rdb, infra.WithWindowTimeout(cfg.redisTimeout))
	}

	var (
		stats       domain.StatsStore
		statsReader domain.StatsReader
	)
	if cfg.rateStatsEnabled {
		if rdb != nil {
			rs := infra.NewRedisStatsStore(
				rdb,
				infra.WithStatsPrefix(cfg.rateStatsPrefix),
				infra.WithStatsTTL(cfg.rateStatsTTL),
				infra.WithStatsBucket(cfg.rateStatsBucket),
				infra.WithStatsTrackIdentities(cfg.rateStatsTrackKeys),
			)
			stats, statsReader = rs, rs
		} else {
			ms := infra.NewMemoryStatsStore(infra.WithTrackIdentities(cfg.rateStatsTrackKeys))
			stats, statsReader = ms, ms
		}
	}

	limiter := application.NewService(application.Options{
		Store:    store,
		Fallback: fallback,
		Limits:   cfg.limits,
		Stats:    stats,
		Metrics:  infra.NewPrometheusMetrics(reg),
		Logger:   log.WithName("ratelimit"),
		Disabled: !cfg.rateEnabled,
	})

	validator := threat.New(cfg.threat,
		threat.WithLogger(log.WithName("threat")),
		threat.WithRecorder(threat.NewMetrics(reg)),
	)
	executor := resilience.NewExecutor(cfg.retry, cfg.breaker,
		resilience.WithLogger(log.WithName("resilience")),
		resilience.WithMetrics(resilience.NewMetrics(reg)),
	)
	backend := dispatch.NewHTTPBackend(cfg.backends, dispatch.WithBackendTimeout(cfg.backendTimeout))

	dispatcher, err := dispatch.NewDispatcher(dispatch.Options{
		Validator: validator,
		Limiter:   limiter,
		Executor:  executor,
		Backend:   backend,
		Metrics:   dispatch.NewMetrics(reg),
		Logger:    log.WithName("dispatch"),
	})
	if err != nil {
		return err
	}

	identity := ratelimit.DefaultIdentityFunc(cfg.userHeader, cfg.trustXFF)
	limit := ratelimit.Middleware(ratelimit.Options{
		Checker:             limiter,
		Identity:            identity,
		AddRateLimitHeaders: cfg.addHeaders,
		ExemptPaths:         []string{"/health", "/metrics"},
	})

	mux := http.NewServeMux()
	dispatch.NewHandler(dispatch.HandlerOptions{
		Dispatcher:          dispatcher,
		Breakers:            executor,
		Identity:            identity,
		MaxBodyBytes:        int64(cfg.threat.MaxPayloadBytes),
		Logger:              log.WithName("http"),
		AddRateLimitHeaders: cfg.addHeaders,
	}).Register(mux, limit)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	if statsReader != nil {
		mux.Handle("GET /admin/ratelimit/stats", limit(statsHandler(statsReader, log)))
	}

	inflight := promauto.With(reg).NewGauge(prometheus.GaugeOpts{
		Namespace: "gateway",
		Name:      "inflight_requests",
		Help:      "Requests currently holding a concurrency slot.",
	})
	h := ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
		Max:            cfg.concurrencyMax,
		RejectStatus:   http.StatusServiceUnavailable,
		AcquireTimeout: cfg.concurrencyTimeout,
		InFlight:       func(n int) { inflight.Set(float64(n)) },
	})(mux)

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// cobre BACKEND_TIMEOUT vezes as tentativas, mais o backoff
		WriteTimeout: time.Duration(cfg.retry.MaxAttempts)*cfg.backendTimeout + cfg.retry.MaxBackoff*time.Duration(cfg.retry.MaxAttempts) + 10*time.Second,
		IdleTimeout:  90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	configured := make([]string, 0, len(cfg.backends))
	for st := range cfg.backends {
		configured = append(configured, string(st))
	}
	sort.Strings(configured)

	log.Info("gateway listening", "addr", cfg.listenAddr, "backends", configured)
	log.Info("rate limit", "enabled", cfg.rateEnabled, "redis", cfg.redisAddr != "",
		"global", cfg.limits.Global.Limit, "window", cfg.limits.Global.Window.String(),
		"hourly", cfg.limits.Hourly.Limit, "burst", cfg.limits.Burst.Limit,
		"userHeader", cfg.userHeader, "trustXFF", cfg.trustXFF)
	log.Info("resilience", "threshold", cfg.breaker.FailureThreshold, "cooldown", cfg.breaker.Cooldown.String(),
		"attempts", cfg.retry.MaxAttempts, "backendTimeout", cfg.backendTimeout.String())
	log.Info("concurrency", "max", cfg.concurrencyMax, "acquireTimeout", cfg.concurrencyTimeout.String())

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func statsHandler(r domain.StatsReader, log logr.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		sum, err := r.Summary(req.Context())
		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			log.Error(err, "rate limit stats unavailable")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"error_code": "INTERNAL_ERROR", "message": "stats unavailable"})
			return
		}
		_ = json.NewEncoder(w).Encode(sum)
	})
}
