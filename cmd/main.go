package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/tabsdata/tabsdata-server/internal/auth"
	"github.com/tabsdata/tabsdata-server/internal/commit"
	"github.com/tabsdata/tabsdata-server/internal/data/db"
	"github.com/tabsdata/tabsdata-server/internal/data/repos/catalog"
	"github.com/tabsdata/tabsdata-server/internal/dispatcher"
	"github.com/tabsdata/tabsdata-server/internal/notify"
	"github.com/tabsdata/tabsdata-server/internal/pkg/env"
	"github.com/tabsdata/tabsdata-server/internal/pkg/logger"
	"github.com/tabsdata/tabsdata-server/internal/planner"
	"github.com/tabsdata/tabsdata-server/internal/registry"
	"github.com/tabsdata/tabsdata-server/internal/scheduler"
	"github.com/tabsdata/tabsdata-server/internal/server"
	"github.com/tabsdata/tabsdata-server/internal/service"
	"github.com/tabsdata/tabsdata-server/internal/storage"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Tracing
	if env.Get("TRACE_STDOUT", "", log) != "" {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			log.Warn("Tracing init failed", "error", err)
		} else {
			tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
			otel.SetTracerProvider(tp)
			defer func() { _ = tp.Shutdown(context.Background()) }()
		}
	}

	// Env
	log.Info("Loading environment variables from main...")
	callbackSecret := env.Get("CALLBACK_SECRET", "defaultsecret", log)
	callbackTTL := env.GetInt("CALLBACK_TOKEN_TTL", 86400, log)
	callbackBase := env.Get("CALLBACK_BASE_URL", "http://localhost:2457", log)
	storageRoot := env.Get("STORAGE_ROOT", "file:///var/tabsdata", log)
	storageEnvPrefix := env.Get("STORAGE_ENV_PREFIX", "", log)
	spoolDir := env.Get("WORKER_SPOOL_DIR", "/var/tabsdata/spool", log)
	dispatchTimeout := env.GetInt("DISPATCH_TIMEOUT_SECONDS", 600, log)
	sweepInterval := env.GetInt("SCHEDULER_INTERVAL_SECONDS", 2, log)

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Redis (optional, for status events)
	var rdb *redis.Client
	if addr := env.Get("REDIS_ADDR", "", log); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr})
	}
	var notifier notify.Notifier = notify.Nop{}
	if rdb != nil {
		notifier = notify.NewRedisNotifier(rdb, log)
	}

	// Core wiring
	log.Info("Setting up execution core from main...")
	cat := catalog.New(thePG, log)
	layout := storage.NewLayout(storageRoot, storageEnvPrefix)
	tokens := auth.NewCallbackTokens(callbackSecret, time.Duration(callbackTTL)*time.Second)
	engine := commit.NewEngine(cat, log, notifier)
	disp := dispatcher.New(cat, log, tokens, engine, notifier, spoolDir, time.Duration(dispatchTimeout)*time.Second)
	reg := registry.New(cat, log)
	plan := planner.New(cat, log)
	sched := scheduler.New(cat, log, layout, tokens, engine, disp, callbackBase)
	core := service.NewCore(cat, log, reg, plan, disp, engine, notifier)

	ctx := context.Background()
	sched.Start(ctx, time.Duration(sweepInterval)*time.Second)
	disp.Start(ctx, time.Duration(sweepInterval)*time.Second)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		CoreHandler:     server.NewCoreHandler(log, core),
		CallbackHandler: server.NewCallbackHandler(log, core),
	})

	port := env.Get("PORT", "2457", log)
	fmt.Printf("Server listening on :%s\n", port)
	if err := router.Run(":" + port); err != nil {
		log.Error("Server exited", "error", err)
		os.Exit(1)
	}
}
