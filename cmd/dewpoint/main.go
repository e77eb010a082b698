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

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/dewpoint/internal/cache"
	"github.com/kjstillabower/dewpoint/internal/client"
	"github.com/kjstillabower/dewpoint/internal/config"
	httphandler "github.com/kjstillabower/dewpoint/internal/http"
	"github.com/kjstillabower/dewpoint/internal/observability"
	"github.com/kjstillabower/dewpoint/internal/service"
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

	clientOpts := []client.Option{
		client.WithLogger(logger),
		client.WithBreaker(client.BreakerConfig{
			FailureThreshold: cfg.BreakerFailureThreshold,
			HalfOpenRequests: cfg.BreakerHalfOpenRequests,
			OpenTimeout:      cfg.BreakerOpenTimeout,
			Interval:         cfg.BreakerInterval,
		}),
	}
	oneCall, err := client.NewOneCallClient(cfg.OpenWeatherAPIKey, cfg.OneCallURL, cfg.Exclude, cfg.OpenWeatherTimeout, clientOpts...)
	if err != nil {
		logger.Fatal("one call client", zap.Error(err))
	}
	geo, err := client.NewGeoClient(cfg.OpenWeatherAPIKey, cfg.GeocodingURL, cfg.OpenWeatherTimeout, clientOpts...)
	if err != nil {
		logger.Fatal("geocoding client", zap.Error(err))
	}

	locking, err := cache.ParseLocking(cfg.ForecastLock)
	if err != nil {
		logger.Fatal("forecast cache", zap.Error(err))
	}
	forecasts := cache.NewForecastCache(oneCall,
		cache.WithTTL(cfg.ForecastTTL),
		cache.WithLocking(locking),
		cache.WithLogger(logger),
	)
	logger.Info("forecast cache",
		zap.Duration("ttl", forecasts.TTL()),
		zap.Duration("sweep_period", cfg.SweepPeriod),
		zap.String("locking", string(locking)))

	var locations cache.LocationCache
	var memcacheCloser *cache.MemcachedLocationCache
	switch cfg.LocationCache {
	case "memcached":
		mc, err := cache.NewMemcachedLocationCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached location cache", zap.Error(err))
		}
		memcacheCloser = mc
		locations = mc
		logger.Info("location cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		locations = cache.NewInMemoryLocationCache()
		logger.Info("location cache backend: in_memory")
	}

	forecastService := service.NewForecastService(geo, locations, oneCall, forecasts,
		service.WithLocationTTL(cfg.LocationTTL),
		service.WithLocationBackend(cfg.LocationCache),
		service.WithLogger(logger),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	janitor := cache.NewJanitor(forecasts, cfg.SweepPeriod, logger)
	janitorDone := make(chan struct{})
	go func() {
		defer close(janitorDone)
		if err := janitor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("cache janitor stopped", zap.Error(err))
		}
	}()

	if len(cfg.WarmLocations) > 0 {
		warmer := cache.NewCacheWarmer(forecastService, logger)
		warmCtx, warmCancel := context.WithTimeout(ctx, 30*time.Second)
		if err := warmer.Warm(warmCtx, cfg.WarmLocations); err != nil {
			logger.Warn("cache warming failed", zap.Error(err))
		}
		warmCancel()
		if cfg.WarmInterval > 0 {
			go func() {
				if err := warmer.WarmPeriodic(ctx, cfg.WarmLocations, cfg.WarmInterval); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("periodic cache warming stopped", zap.Error(err))
				}
			}()
		}
	}

	healthConfig := &httphandler.HealthConfig{CacheEntries: forecasts.Len}
	if memcacheCloser != nil {
		healthConfig.CachePing = memcacheCloser.Ping
	}
	handler := httphandler.NewHandler(forecastService, healthConfig, logger)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	router := httphandler.NewRouter(handler, limiter, cfg.RequestTimeout, logger)

	// With coarse locking a request can wait behind another key's upstream fetch before its
	// own, so the write timeout allows for two upstream round trips.
	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 2*cfg.OpenWeatherTimeout,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	handler.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	if err := httphandler.WaitForInFlight(shutdownCtx, 100*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	select {
	case <-janitorDone:
	case <-shutdownCtx.Done():
		logger.Warn("cache janitor did not stop before shutdown timeout")
	}

	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry flush: %v\n", err)
	}
}
