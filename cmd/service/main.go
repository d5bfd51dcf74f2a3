package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/dwd-warning-service/internal/cache"
	"github.com/kjstillabower/dwd-warning-service/internal/circuitbreaker"
	"github.com/kjstillabower/dwd-warning-service/internal/client"
	"github.com/kjstillabower/dwd-warning-service/internal/config"
	httphandler "github.com/kjstillabower/dwd-warning-service/internal/http"
	"github.com/kjstillabower/dwd-warning-service/internal/lifecycle"
	"github.com/kjstillabower/dwd-warning-service/internal/observability"
	"github.com/kjstillabower/dwd-warning-service/internal/service"
	"github.com/kjstillabower/dwd-warning-service/internal/snapshot"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	haClient, err := client.NewHomeAssistantClientWithRetry(
		cfg.HomeAssistantToken,
		cfg.HomeAssistantURL,
		cfg.HomeAssistantTimeout,
		cfg.RetryAttempts,
		cfg.RetryBaseDelay,
		cfg.RetryMaxDelay,
	)
	if err != nil {
		logger.Fatal("home assistant client", zap.Error(err))
	}
	breaker := newCircuitBreaker(cfg, logger)
	if breaker != nil {
		haClient.SetCircuitBreaker(breaker)
	}

	cacheSvc, memcacheCloser := newCache(cfg, logger)

	cardService, err := service.NewCardService(haClient, cacheSvc, snapshot.NewStore(), cfg.Cards, cfg.CacheTTL, nil)
	if err != nil {
		logger.Fatal("card service", zap.Error(err))
	}
	logger.Info("cards configured", zap.Strings("cards", cardService.CardNames()))

	healthConfig := &httphandler.HealthConfig{
		DegradedWindow:   cfg.DegradedWindow,
		DegradedErrorPct: cfg.DegradedErrorPct,
	}
	if memcacheCloser != nil {
		healthConfig.CachePing = memcacheCloser.Ping
	}
	if breaker != nil {
		healthConfig.BreakerOpen = breaker.Open
	}
	handler := httphandler.NewHandler(cardService, haClient, healthConfig, logger)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	observability.RegisterRateLimitGauges(cfg.DegradedWindow)

	refreshCtx, refreshCancel := context.WithCancel(context.Background())
	defer refreshCancel()
	refresher := cache.NewRefresher(cardService, logger)
	if cfg.RefreshInterval > 0 {
		go func() {
			if err := refresher.Run(refreshCtx, cfg.RefreshInterval); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("periodic state refresh stopped", zap.Error(err))
			}
		}()
	} else {
		initCtx, initCancel := context.WithTimeout(refreshCtx, cfg.RequestTimeout)
		if err := refresher.RefreshOnce(initCtx); err != nil {
			logger.Warn("initial state refresh failed", zap.Error(err))
		}
		initCancel()
	}

	router := mux.NewRouter()
	router.Use(httphandler.CorrelationIDMiddleware(logger))
	router.Use(httphandler.MetricsMiddleware)
	router.Use(httphandler.RecoveryMiddleware)
	router.HandleFunc("/health", handler.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())
	router.HandleFunc("/cards", handler.ListCards).Methods("GET")
	cardRouter := router.PathPrefix("/cards").Subrouter()
	cardRouter.Use(httphandler.RateLimitMiddleware(limiter))
	cardRouter.Use(httphandler.TimeoutMiddleware(cfg.RequestTimeout))
	cardRouter.HandleFunc("/{card}", handler.GetCard).Methods("GET")

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort), zap.String("home_assistant", cfg.HomeAssistantURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	refreshCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	observability.RecordShutdownInFlight(inFlight)
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	logger.Info("shutdown complete")
	var closers []func() error
	if memcacheCloser != nil {
		closers = append(closers, memcacheCloser.Close)
	}
	closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCancel()
	if err := observability.Shutdown(closeCtx, logger, closers...); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown: %v\n", err)
	}
}

// newCache builds the configured state listing cache. The memcached client is
// also returned so main can ping and close it; it is nil for in_memory.
func newCache(cfg *config.Config, logger *zap.Logger) (cache.Cache, *cache.MemcachedCache) {
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
		return mc, mc
	default:
		logger.Info("cache backend: in_memory")
		return cache.NewInMemoryCache(), nil
	}
}

// breakerComponent labels circuit breaker metrics for the Home Assistant client.
const breakerComponent = "home_assistant"

// newCircuitBreaker returns the breaker guarding Home Assistant state fetches, or nil when disabled.
func newCircuitBreaker(cfg *config.Config, logger *zap.Logger) *circuitbreaker.CircuitBreaker {
	if !cfg.CircuitBreakerEnabled {
		return nil
	}
	cb := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.CircuitBreakerFailureThreshold,
		SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
		Timeout:          cfg.CircuitBreakerTimeout,
		OnStateChange: func(from, to circuitbreaker.State) {
			observability.RecordCircuitBreakerTransition(breakerComponent, from.String(), to.String())
			observability.SetCircuitBreakerStateGauge(breakerComponent, observability.CircuitBreakerStateValue(int(to)))
			logger.Warn("circuit breaker state change", zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	observability.SetCircuitBreakerStateGauge(breakerComponent, 0)
	logger.Info("circuit breaker enabled",
		zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold),
		zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	return cb
}
