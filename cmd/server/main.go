// Command server is the HTTP entry point for the diff runner: it loads
// configuration, opens the database and optional Redis mirror, wires the
// Sandbox Launcher, Compiler/Checker/Judge drivers, and the Diff
// Controller, then serves the gin routes handlers.Register exposes.
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"apex-diffrun/internal/checker"
	"apex-diffrun/internal/config"
	"apex-diffrun/internal/diffrun"
	"apex-diffrun/internal/handlers"
	"apex-diffrun/internal/logging"
	"apex-diffrun/internal/metrics"
	"apex-diffrun/internal/middleware"
	"apex-diffrun/internal/sandbox"
	"apex-diffrun/internal/stopflags"
	"apex-diffrun/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		if _, statErr := os.Stat(".env"); statErr == nil {
			fmt.Fprintln(os.Stderr, "warning: failed to load .env:", err)
		}
	}

	logging.Init()
	defer logging.Sync()

	cfg := config.Load()

	db, err := store.Open(store.Config{Driver: cfg.DBDriver, DSN: cfg.DBDSN})
	if err != nil {
		logging.L().Fatal("open store", zap.Error(err))
	}
	sessionStore := &store.SessionStore{DB: db}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}
	flags := stopflags.New(redisClient)

	launcher, err := sandbox.NewBwrapLauncher(sandbox.Config{
		SandboxExecutable: cfg.SandboxExecutable,
		RLWExecutable:     cfg.RLWExecutable,
		DefaultQuota:      cfg.ProgQuota,
		CompileQuota:      cfg.CompilerQuota,
		CheckerQuota:      cfg.CheckerQuota,
	})
	if err != nil {
		logging.L().Fatal("init sandbox launcher", zap.Error(err))
	}

	checkerDriver := &checker.Driver{ExecutablePrefix: cfg.CheckerExecutablePrefix}

	controller := &diffrun.Controller{
		Store:         sessionStore,
		Sandbox:       launcher,
		Checker:       checkerDriver,
		WorkspaceRoot: os.TempDir(),
		StopFlags:     flags,
		ProgQuota:     cfg.ProgQuota,
		CompilerQuota: cfg.CompilerQuota,
		TestlibPath:   cfg.TestlibPath,
	}

	registry := prometheus.NewRegistry()
	metrics.Register(registry)

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	api := router.Group("/api/v1")
	api.Use(middleware.RequireAuth(cfg.JWTSecret))
	(&handlers.Handlers{Controller: controller}).Register(api)

	logging.S().Infow("starting diff runner", "addr", cfg.HTTPAddr)
	if err := router.Run(cfg.HTTPAddr); err != nil {
		logging.L().Fatal("server exited", zap.Error(err))
	}
}
