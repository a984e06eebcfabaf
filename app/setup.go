package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sahilchouksey/cohort-lms/api"
	"github.com/sahilchouksey/cohort-lms/config"
	"github.com/sahilchouksey/cohort-lms/database"
	"github.com/sahilchouksey/cohort-lms/handlers"
	admin_handlers "github.com/sahilchouksey/cohort-lms/handlers/admin"
	"github.com/sahilchouksey/cohort-lms/repository"
	"github.com/sahilchouksey/cohort-lms/router"
	"github.com/sahilchouksey/cohort-lms/services"
	"github.com/sahilchouksey/cohort-lms/services/cron"
	"github.com/sahilchouksey/cohort-lms/utils/auth"
	"github.com/sahilchouksey/cohort-lms/utils/cache"
	"github.com/sahilchouksey/cohort-lms/utils/logger"
	"github.com/sahilchouksey/cohort-lms/utils/observability"
	"go.uber.org/zap"
)

// Services groups the consistency engine components
type Services struct {
	Membership *services.MembershipService
	Roster     *services.RosterService
	Dedupe     *services.VideoDedupeService
}

// NewServices wires the engine against a store. locker may be nil.
func NewServices(store repository.Store, locker services.Locker, log *zap.Logger) *Services {
	log = logger.OrNop(log)
	membership := services.NewMembershipService(store, store, log.Named("membership"))
	if locker != nil {
		membership.WithLocker(locker)
	}
	return &Services{
		Membership: membership,
		Roster:     services.NewRosterService(store, store, log.Named("roster")),
		Dedupe:     services.NewVideoDedupeService(store, store, log.Named("dedupe")),
	}
}

func SetupAndRunServer() error {

	// Load ENV
	if err := config.LoadENV(); err != nil && !os.IsNotExist(err) {
		return err
	}

	env, err := config.Get()
	if err != nil {
		return err
	}
	if env.JWT_SECRET == "" {
		return fmt.Errorf("JWT_SECRET environment variable is not set")
	}

	logs, err := logger.Init(env.LOG_LEVEL, env.GO_ENV)
	if err != nil {
		return err
	}
	defer logs.Closer()
	log := logs.Base

	flushSentry, err := observability.InitSentry(env.SENTRY_DSN, env.GO_ENV, env.APP_RELEASE)
	if err != nil {
		log.Warn("sentry disabled", zap.Error(err))
	}
	defer flushSentry()

	// Initialize GORM database connection
	db, err := database.StartGORM(env, log)
	if err != nil {
		log.Error("check whether postgres is running", zap.String("host", env.DB_HOST), zap.String("port", env.DB_PORT))
		return err
	}
	defer db.Close()

	if err := db.Init(); err != nil {
		return fmt.Errorf("failed to initialize database tables: %w", err)
	}

	store := repository.NewGormStore(db.GetDB())

	// Redis backs the membership lock and login throttling; both degrade when absent
	var redisCache *cache.RedisCache
	var locker services.Locker
	if env.REDIS_URL != "" {
		redisCache, err = cache.NewRedisCache(env.REDIS_URL)
		if err != nil {
			log.Warn("failed to connect to redis", zap.Error(err))
			redisCache = nil
		} else {
			locker = redisCache
			defer redisCache.Close()
		}
	}

	svc := NewServices(store, locker, log)

	// Reconciliation is optional; the legacy store is opened per request
	var openReconciler admin_handlers.ReconcilerOpener
	if LegacyConfigured(env) {
		openReconciler = NewReconcilerOpener(env, store, log.Named("reconcile"))
	} else {
		log.Info("legacy store not configured, reconcile endpoint disabled", zap.String("source", env.LEGACY_SOURCE))
	}

	// Initialize Cron Manager (only if enabled via environment variable)
	var cronManager *cron.CronManager
	if env.CRON_ENABLED {
		cronManager = cron.NewCronManager(db.GetDB(), svc.Roster, svc.Dedupe, cron.Options{
			DedupeApply:      env.CRON_DEDUPE_APPLY,
			DanglingAsOrphan: env.DEDUPE_DANGLING_AS_ORPHAN,
			JobTimeout:       env.CRON_JOB_TIMEOUT,
		}, log)
		if err := cronManager.Start(); err != nil {
			// Don't fail the app, just log the warning
			log.Warn("failed to start cron jobs", zap.Error(err))
			cronManager = nil
		}
	}
	defer func() {
		if cronManager != nil {
			cronManager.Stop()
		}
	}()

	// Init API
	server := api.NewAPIServer(fmt.Sprintf(":%d", env.PORT), log)
	app := server.GetEngine()

	health := map[string]handlers.Pinger{
		"postgres": handlers.PingFunc(func(ctx context.Context) error { return db.HealthCheck() }),
	}
	if redisCache != nil {
		health["redis"] = redisCache
	}

	router.SetupRoutes(app, router.Dependencies{
		Store: store,
		DB:    db.GetDB(),
		Cache: redisCache,
		JWT: auth.NewJWTManager(auth.JWTConfig{
			Secret: env.JWT_SECRET,
			Issuer: env.JWT_ISSUER,
		}),
		Membership:     svc.Membership,
		Roster:         svc.Roster,
		Dedupe:         svc.Dedupe,
		OpenReconciler: openReconciler,
		Health:         health,
		AllowedOrigins: os.Getenv("ALLOWED_ORIGINS"),
		RateLimit:      100,
		Log:            log,
	})

	// Shut down cleanly on SIGINT/SIGTERM so deferred cleanup runs
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info("shutting down")
		_ = server.Shutdown()
	}()

	return server.Run()
}
