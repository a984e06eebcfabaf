package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sahilchouksey/cohort-lms/app"
	"github.com/sahilchouksey/cohort-lms/config"
	"github.com/sahilchouksey/cohort-lms/database"
	"github.com/sahilchouksey/cohort-lms/repository"
	"github.com/sahilchouksey/cohort-lms/services"
	"github.com/sahilchouksey/cohort-lms/services/legacy"
	"github.com/sahilchouksey/cohort-lms/utils/cache"
	"github.com/sahilchouksey/cohort-lms/utils/logger"
	"github.com/sahilchouksey/cohort-lms/utils/observability"
	"go.uber.org/zap"
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	_ = config.LoadENV()
	env, _ := config.Get()

	// progress goes to stdout, structured logs stay quiet unless asked for
	level := env.LOG_LEVEL
	if os.Getenv("LOG_LEVEL") == "" {
		level = "warn"
	}
	logs, err := logger.Init(level, env.GO_ENV)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer logs.Closer()
	log := logs.Base

	flushSentry, err := observability.InitSentry(env.SENTRY_DSN, env.GO_ENV, env.APP_RELEASE)
	if err != nil {
		log.Warn("sentry disabled", zap.Error(err))
	}
	defer flushSentry()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// set up DB
	db, err := database.StartGORM(env, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		return 1
	}
	defer db.Close()
	store := repository.NewGormStore(db.GetDB())

	// share the API's membership lock when redis is reachable
	var locker services.Locker
	if env.REDIS_URL != "" {
		if redisCache, err := cache.NewRedisCache(env.REDIS_URL); err == nil {
			locker = redisCache
			defer redisCache.Close()
		} else {
			log.Warn("redis unavailable, running without the membership lock", zap.Error(err))
		}
	}

	// start CLI
	cli := commandLine{
		store: store,
		svc:   app.NewServices(store, locker, log),
		openLegacy: func(ctx context.Context, source, exportPath string) (legacy.Reader, func(), error) {
			return app.OpenLegacyReader(ctx, env, source, exportPath)
		},
		out: os.Stdout,
		log: log,
	}
	if err := cli.run(ctx, os.Args); err != nil {
		if err != errHelp {
			observability.CaptureErr("lmsctl", err)
			fmt.Fprintf(os.Stderr, "error: %s\n", err)
		}
		return 1
	}
	return 0
}
