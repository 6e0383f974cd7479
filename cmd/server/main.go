package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"groupings-hub/internal/announcement"
	"groupings-hub/internal/api"
	"groupings-hub/internal/api/middleware"
	"groupings-hub/internal/event"
	"groupings-hub/internal/metrics"
	"groupings-hub/internal/repository"
	"groupings-hub/internal/repository/postgres"
	"groupings-hub/internal/repository/sqlite"
	"groupings-hub/internal/scheduler"
	schedulerjobs "groupings-hub/internal/scheduler/jobs"
	"groupings-hub/internal/service"
	"groupings-hub/internal/sse"
	"groupings-hub/internal/tracing"
	"groupings-hub/internal/upstream"
	systemlog "groupings-hub/pkg/logger"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "healthcheck":
			os.Exit(runHealthcheck())
		case "migrate":
			if err := runMigrateCommand(); err != nil {
				// #nosec G705 -- CLI output only; control characters are stripped.
				fmt.Fprintln(os.Stderr, sanitizeCLIError(err))
				os.Exit(1)
			}
			return
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	logger, systemLogStore, err := newLogger(cfg)
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer logger.Sync() //nolint:errcheck

	isDebugMode := strings.EqualFold(cfg.App.Env, "development")
	if !isDebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	location, err := cfg.Location()
	if err != nil {
		logger.Fatal("resolve timezone failed", zap.Error(err))
	}

	shutdownTracing, err := tracing.Setup(context.Background(), tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
	})
	if err != nil {
		logger.Fatal("init tracing failed", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn("shutdown tracing failed", zap.Error(err))
		}
	}()

	store, err := openStore(context.Background(), cfg)
	if err != nil {
		logger.Fatal("open announcement store failed", zap.Error(err))
	}
	defer store.close()

	var source service.Source
	switch cfg.Announcements.Source {
	case sourceUpstream:
		source = upstream.New(upstream.Config{
			BaseURL:     cfg.Upstream.BaseURL,
			APIKey:      cfg.Upstream.APIKey,
			Timeout:     cfg.Upstream.Timeout,
			MaxAttempts: cfg.Upstream.MaxAttempts,
			RetryDelay:  cfg.Upstream.RetryDelay,
			Location:    location,
		}, logger.Named("upstream"))
	case sourceStore:
		source = service.NewStoreSource(store.repo)
	}

	clock := announcement.SystemClock{}

	sseHub := sse.NewHub(logger)
	defer sseHub.Close()

	eventBus := event.NewBus(logger)
	defer eventBus.Close()
	registerStateChangeSubscriber(eventBus, sseHub, logger)

	announcementSvc := service.NewAnnouncementService(source, store.repo, clock, sseHub, eventBus, logger)

	sweepJob := schedulerjobs.NewSweepJob(announcementSvc, eventBus, clock, location, logger.Named("sweep"))
	cronRunner := scheduler.NewScheduler(scheduler.Deps{
		SweepJob:  sweepJob,
		SweepSpec: cfg.Scheduler.SweepSpec,
	}, logger)
	cronRunner.Start()
	defer func() {
		stopCtx := cronRunner.Stop()
		select {
		case <-stopCtx.Done():
		case <-time.After(2 * time.Second):
		}
	}()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(buildCORSMiddleware(cfg))
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(logger))

	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": Version})
	}
	readyHandler := func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.Database.PingTimeout)
		defer cancel()

		if err := store.ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not_ready",
				"error":  "database unavailable",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}

	router.GET("/health", healthHandler)
	router.GET("/health/ready", readyHandler)
	router.GET("/api/v1/health", healthHandler)
	router.GET("/api/v1/health/ready", readyHandler)

	internalMetrics := router.Group("/internal")
	internalMetrics.Use(middleware.InternalTokenAuth(cfg.Security.InternalToken, true))
	internalMetrics.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if isDebugMode && cfg.Debug.PprofEnabled {
		registerPprofRoutes(router)
		logger.Info("pprof endpoint enabled", zap.String("path", "/debug/pprof/"))
	}

	api.RegisterRoutes(router, api.Deps{
		Announcements:          announcementSvc,
		Location:               location,
		SSEHub:                 sseHub,
		LogStore:               systemLogStore,
		InternalToken:          cfg.Security.InternalToken,
		AnnouncementsPerMinute: cfg.RateLimit.AnnouncementsPerMinute,
		Logger:                 logger,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
			return
		}
		serverErrCh <- nil
	}()

	logger.Info("server started",
		zap.String("addr", srv.Addr),
		zap.String("source", cfg.Announcements.Source),
		zap.String("timezone", location.String()),
		zap.String("version", Version),
		zap.String("commit", Commit),
		zap.String("build_time", BuildTime),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-serverErrCh:
		if err != nil {
			logger.Fatal("server exited unexpectedly", zap.Error(err))
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	sseHub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown server failed", zap.Error(err))
	}
}

func newLogger(cfg Config) (*zap.Logger, *systemlog.Store, error) {
	var zapCfg zap.Config
	if strings.EqualFold(cfg.App.Env, "development") {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	if cfg.Log.Level != "" {
		if err := zapCfg.Level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
			return nil, nil, fmt.Errorf("invalid log.level: %w", err)
		}
	}

	if cfg.Log.Encoding != "" {
		zapCfg.Encoding = cfg.Log.Encoding
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("build zap logger failed: %w", err)
	}

	logStore := systemlog.NewStore(systemlog.DefaultCapacity)
	return systemlog.Attach(logger, logStore), logStore, nil
}

// announcementStore bundles the configured repository with its lifecycle.
// repo is nil when no database is configured.
type announcementStore struct {
	repo  repository.AnnouncementRepository
	ping  func(ctx context.Context) error
	close func()
}

func openStore(ctx context.Context, cfg Config) (*announcementStore, error) {
	switch cfg.Database.Driver {
	case driverPostgres:
		pool, err := newDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &announcementStore{
			repo:  postgres.NewAnnouncementRepository(pool),
			ping:  pool.Ping,
			close: pool.Close,
		}, nil
	case driverSQLite:
		db, err := sqlite.Open(cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		return &announcementStore{
			repo:  db,
			ping:  db.PingContext,
			close: func() { _ = db.Close() },
		}, nil
	default:
		return &announcementStore{
			ping:  func(context.Context) error { return nil },
			close: func() {},
		}, nil
	}
}

func newDBPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database.url failed: %w", err)
	}

	const maxInt32 = int(^uint32(0) >> 1)
	if cfg.Database.MaxConns > maxInt32 {
		return nil, fmt.Errorf("database.max_conns must be <= %d", maxInt32)
	}

	poolCfg.MaxConns = int32(cfg.Database.MaxConns) // #nosec G115 -- validated upper bound above.

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool failed: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Database.PingTimeout)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database failed: %w", err)
	}

	return pool, nil
}

// registerStateChangeSubscriber forwards sweep transitions to SSE clients and
// the transition counter.
func registerStateChangeSubscriber(bus *event.Bus, hub *sse.SSEHub, logger *zap.Logger) {
	bus.Subscribe(event.EventAnnouncementStateChanged, func(payload any) {
		transition, ok := payload.(event.StateChangedPayload)
		if !ok {
			logger.Warn("unexpected state change payload", zap.Any("payload", payload))
			return
		}

		metrics.IncAnnouncementTransition(transition.From, transition.To)
		if hub != nil {
			hub.Broadcast(sse.NewEvent(sse.EventAnnouncementState, transition))
		}
	})
}

func buildCORSMiddleware(cfg Config) gin.HandlerFunc {
	origins := make([]string, 0, len(cfg.CORS.AllowOrigins))
	for _, origin := range cfg.CORS.AllowOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		origins = append(origins, trimmed)
	}
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}

	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization", "Last-Event-ID", middleware.InternalTokenHeader, middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Type", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

func registerPprofRoutes(router *gin.Engine) {
	pprofGroup := router.Group("/debug/pprof")
	pprofGroup.GET("/", gin.WrapF(pprof.Index))
	pprofGroup.GET("/cmdline", gin.WrapF(pprof.Cmdline))
	pprofGroup.GET("/profile", gin.WrapF(pprof.Profile))
	pprofGroup.GET("/symbol", gin.WrapF(pprof.Symbol))
	pprofGroup.POST("/symbol", gin.WrapF(pprof.Symbol))
	pprofGroup.GET("/trace", gin.WrapF(pprof.Trace))
	pprofGroup.GET("/heap", gin.WrapH(pprof.Handler("heap")))
	pprofGroup.GET("/goroutine", gin.WrapH(pprof.Handler("goroutine")))
}

func runMigrateCommand() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config failed: %w", err)
	}

	switch cfg.Database.Driver {
	case driverPostgres:
	case driverSQLite:
		db, err := sqlite.Open(cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("apply sqlite schema failed: %w", err)
		}
		_ = db.Close()
		fmt.Println("sqlite schema applied successfully")
		return nil
	default:
		return errors.New("database.driver must be set to run migrations")
	}

	migrationDir := "/migrations"
	if _, statErr := os.Stat(migrationDir); statErr != nil {
		migrationDir = "./migrations"
	}

	migrator, err := migrate.New("file://"+migrationDir, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("init migrator failed: %w", err)
	}
	defer migrator.Close() //nolint:errcheck

	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations failed: %w", err)
	}

	fmt.Println("migrations applied successfully")
	return nil
}

func runHealthcheck() int {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	port := strings.TrimSpace(os.Getenv("GROUPINGS_SERVER_PORT"))
	if port == "" {
		port = "8080"
	}

	resp, err := client.Get("http://localhost:" + port + "/health/ready")
	if err != nil {
		return 1
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return 1
	}
	return 0
}

func sanitizeCLIError(err error) string {
	if err == nil {
		return ""
	}

	text := strings.ReplaceAll(err.Error(), "\n", " ")
	text = strings.ReplaceAll(text, "\r", " ")
	return strings.TrimSpace(text)
}
