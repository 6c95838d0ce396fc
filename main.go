package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"pricesentry/config"
	"pricesentry/internal/browser"
	"pricesentry/internal/marketplace"
	"pricesentry/internal/metrics"
	"pricesentry/internal/scheduler"
	"pricesentry/logger"
	"pricesentry/services/cache"
	"pricesentry/services/notifier"
	"pricesentry/services/store"
)

func main() {
	// Load environment variables
	godotenv.Load()

	// Initialize logger first
	logger.Init()
	log := logger.Default

	// Load and validate configuration
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("environment", cfg.Environment).
		Ints("schedule_hours", cfg.ScheduleHours).
		Msg("Starting application")

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Initialize services
	services, err := initializeServices(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer services.Cleanup()

	// One client per marketplace, all sharing the browser session and cooldown
	// cache
	registry := marketplace.NewRegistry(
		services.Session,
		services.Cache,
		marketplace.Hosts{
			Ozon:        cfg.OzonHost,
			Wildberries: cfg.WildberriesHost,
		},
		cfg.FetchRetries,
		cfg.RetryDelay,
	)

	// Create and start the refresh scheduler
	sched := scheduler.NewScheduler(services.Store, registry, services.Notifier)
	if err := sched.Start(ctx, cfg.ScheduleHours); err != nil {
		log.Fatal().Err(err).Msg("Failed to start scheduler")
	}
	defer sched.Stop()

	// Serve prometheus metrics
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Handler()}
	go func() {
		log.Info().Str("addr", cfg.MetricsAddr).Msg("Metrics server listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	// Wait for shutdown signal
	sig := <-sigChan
	log.Info().
		Str("signal", sig.String()).
		Msg("Received shutdown signal")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	metricsServer.Shutdown(shutdownCtx)

	log.Info().Msg("Shutting down gracefully...")
}

// Services holds all the initialized services
type Services struct {
	Store    store.Store
	Cache    cache.CacheService
	Notifier notifier.Notifier
	Session  *browser.Session
}

// Cleanup cleans up all services in reverse initialization order
func (s *Services) Cleanup() {
	if s.Session != nil {
		s.Session.Shutdown()
	}
	if s.Notifier != nil {
		s.Notifier.Close()
	}
	if s.Store != nil {
		s.Store.Close()
	}
}

// initializeServices initializes all required services
func initializeServices(cfg *config.Config) (*Services, error) {
	services := &Services{}

	// Initialize persistence
	st, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	services.Store = st

	logger.Info("Opened database at %s", cfg.DatabasePath)

	// Initialize cache service
	services.Cache = cache.NewMemcacheService(cfg.MemcacheAddr)

	logger.Info("Connected to Memcache at %s", cfg.MemcacheAddr)

	// Initialize notifier
	services.Notifier = notifier.NewRedisNotifier(
		cfg.RedisAddr,
		cfg.RedisDB,
		cfg.RedisStream,
		int64(cfg.RedisStreamMaxLen),
	)

	logger.Info("Connected to Redis at %s (DB: %d, Stream: %s)",
		cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream)

	// The browser session launches lazily on the first fetch that needs it
	services.Session = browser.NewSession(browser.Config{
		Headless:     cfg.Headless,
		CookiePath:   cfg.CookiePath,
		ChallengeURL: cfg.ChallengeURL,
		FirstPartyHosts: []string{
			strings.TrimPrefix(cfg.OzonHost, "www."),
			"ozone.ru",
			"ozonusercontent.com",
		},
		NavigateTimeout: cfg.FetchTimeout,
	})

	return services, nil
}
