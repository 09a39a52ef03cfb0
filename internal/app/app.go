// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/atom-api/atom/internal/api"
	"github.com/atom-api/atom/internal/buildinfo"
	"github.com/atom-api/atom/internal/config"
	"github.com/atom-api/atom/internal/logger"
	"github.com/atom-api/atom/internal/metrics"
	"github.com/atom-api/atom/internal/ratelimit"
	"github.com/atom-api/atom/internal/scraper"
	"github.com/atom-api/atom/internal/sentry"
	"github.com/atom-api/atom/internal/service"
)

const repositoryURL = "https://github.com/atom-api/atom"

// Application manages the application lifecycle and dependencies.
type Application struct {
	cfg           *config.Config
	logger        *logger.Logger
	metrics       *metrics.Metrics
	registry      *prometheus.Registry
	httpClient    *http.Client
	scraperClient *scraper.Client
	service       *service.Service
	limiter       *ratelimit.Keyed // nil when rate limiting is off
	router        *gin.Engine
	server        *http.Server
}

// Initialize creates and initializes a new application with all dependencies.
func Initialize(_ context.Context, cfg *config.Config) (*Application, error) {
	log := logger.NewWithOptions(cfg.LogLevel, os.Stdout, logger.Options{
		BetterStackToken:    cfg.BetterStackToken,
		BetterStackEndpoint: cfg.BetterStackEndpoint,
	})

	log = log.WithField("service", "atom-api")
	if host, err := os.Hostname(); err == nil && host != "" {
		log = log.WithField("instance_id", host)
	}

	// Package-level slog calls go through the same handler chain, so they
	// also carry request_id and identifier from the context.
	slog.SetDefault(log.Logger)

	log.WithField("version", buildinfo.DisplayVersion()).Info("Initializing application...")
	if cfg.BetterStackToken != "" {
		log.WithField("endpoint", cfg.BetterStackEndpoint).Info("Better Stack logging enabled")
	}

	if err := sentry.Initialize(sentry.Config{
		Token:       cfg.SentryToken,
		Host:        cfg.SentryHost,
		Environment: cfg.SentryEnvironment,
		Release:     buildinfo.DisplayVersion(),
		SampleRate:  cfg.SentrySampleRate,
	}); err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	if sentry.IsEnabled() {
		log.WithField("environment", cfg.SentryEnvironment).Info("Error reporting enabled")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewBuildInfoCollector(),
	)
	m := metrics.New(registry)

	httpClient := newHTTPClient(cfg.ScraperTimeout)
	scraperClient := scraper.NewClient(scraper.Options{
		Timeout:     cfg.ScraperTimeout,
		Concurrency: int64(cfg.ScraperConcurrency),
		UserAgent:   cfg.UserAgent,
		Metrics:     m,
		HTTPClient:  httpClient,
	})

	svc := service.New(service.Options{
		Directory:     cfg.Directory,
		Plans:         cfg.Plans,
		Substitutions: cfg.Substitutions,
		Groups:        cfg.Groups,
		ShortSchedule: cfg.ShortSchedule,
		Fetcher:       scraperClient,
		Logger:        log,
		Metrics:       m,
	})

	logSources(log, cfg)

	app := &Application{
		cfg:           cfg,
		logger:        log,
		metrics:       m,
		registry:      registry,
		httpClient:    httpClient,
		scraperClient: scraperClient,
		service:       svc,
	}

	if cfg.RateLimitPerMinute > 0 {
		app.limiter = ratelimit.NewKeyed(ratelimit.Config{
			PerMinute:     cfg.RateLimitPerMinute,
			Burst:         cfg.RateLimitBurst,
			CleanupPeriod: config.RateLimitCleanup,
			Metrics:       m,
		})
		log.WithField("per_minute", cfg.RateLimitPerMinute).
			WithField("burst", cfg.RateLimitBurst).
			Info("API rate limiting enabled")
	}

	gin.SetMode(gin.ReleaseMode)
	app.router = app.newRouter()

	app.server = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.router,
		ReadHeaderTimeout: config.HTTPRead,
		ReadTimeout:       config.HTTPRead,
		WriteTimeout:      config.HTTPWrite,
		IdleTimeout:       config.HTTPIdle,
	}

	log.Info("Initialization complete")
	return app, nil
}

// newRouter builds the gin engine with middleware and every route.
func (a *Application) newRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	router.Use(requestIDMiddleware())
	router.Use(securityHeadersMiddleware())
	router.Use(loggingMiddleware(a.logger))

	router.GET("/", a.redirectToRepository)
	router.HEAD("/", a.redirectToRepository)
	router.GET("/livez", a.livenessCheck)
	router.HEAD("/livez", a.livenessCheck)
	router.GET("/readyz", a.readinessCheck)
	router.HEAD("/readyz", a.readinessCheck)
	router.GET("/metrics",
		basicAuthMiddleware("metrics", a.cfg.MetricsUsername, a.cfg.MetricsPassword),
		gin.WrapH(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))

	routes := router.Group("/")
	if a.limiter != nil {
		routes.Use(rateLimitMiddleware(a.limiter))
	}
	api.NewHandler(a.service, a.logger, a.metrics).Register(routes)
	return router
}

// newHTTPClient creates the pooled client shared by the scraper and the
// readiness probe.
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}

func logSources(log *logger.Logger, cfg *config.Config) {
	sources := map[string]config.Source{
		"directory":     cfg.Directory,
		"plans":         cfg.Plans,
		"substitutions": cfg.Substitutions,
	}
	for name, src := range sources {
		entry := log.WithField("source", name)
		if !src.Ready() {
			entry.Warn("Source not configured, requests that need it will fail")
			continue
		}
		entry.WithField("url", src.URL).WithField("encoding", src.Encoding).Debug("Source configured")
	}
}

func (a *Application) redirectToRepository(c *gin.Context) {
	c.Header("X-Atom-Version", buildinfo.DisplayVersion())
	c.Redirect(http.StatusTemporaryRedirect, repositoryURL)
}

func (a *Application) livenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
	})
}

// readinessCheck reports ready when the directory page's host answers.
// Every request starts from that page, so without it nothing can be served.
func (a *Application) readinessCheck(c *gin.Context) {
	if !a.cfg.Directory.Ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "directory source not configured",
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), config.ReadinessCheckTimeout)
	defer cancel()

	if err := a.pingSource(ctx, a.cfg.Directory.URL); err != nil {
		a.logger.WithError(err).Warn("Readiness check failed: directory source unavailable")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "directory source unavailable",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"version":   buildinfo.DisplayVersion(),
		"in_flight": a.scraperClient.Limiter().InFlight(),
	})
}

var errSourceStatus = errors.New("source answered with a server error")

// pingSource sends a HEAD request to pageURL. Any answer below 500 counts.
func (a *Application) pingSource(ctx context.Context, pageURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, pageURL, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent())

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: %d", errSourceStatus, resp.StatusCode)
	}
	return nil
}

// Run starts the HTTP server and blocks until SIGINT or SIGTERM, then shuts
// down gracefully.
func (a *Application) Run() error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.WithField("port", a.cfg.Port).Info("Starting HTTP server")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		a.logger.WithField("signal", sig.String()).Info("Received shutdown signal")
	case err := <-errCh:
		a.logger.WithError(err).Error("HTTP server error")
		_ = a.shutdown()
		return fmt.Errorf("http server: %w", err)
	}

	return a.shutdown()
}

// shutdown stops accepting requests, waits for in-flight ones and then
// flushes logs and error reports.
func (a *Application) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	a.logger.Info("Stopping HTTP server...")
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Error("HTTP server shutdown error")
	}

	a.httpClient.CloseIdleConnections()
	if a.limiter != nil {
		a.limiter.Stop()
	}

	if sentry.IsEnabled() && !sentry.Flush(config.SentryFlush) {
		a.logger.Warn("Sentry flush timed out")
	}

	a.logger.Info("Shutdown complete")
	if err := a.logger.Shutdown(shutdownCtx); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "logger shutdown: %v\n", err)
	}
	return nil
}
