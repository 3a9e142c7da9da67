package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-admin/meridian-admin/internal/app"
	"github.com/meridian-admin/meridian-admin/internal/auth"
	"github.com/meridian-admin/meridian-admin/internal/observability"
	"github.com/meridian-admin/meridian-admin/internal/permissions"
	"github.com/meridian-admin/meridian-admin/internal/platform/cache"
	"github.com/meridian-admin/meridian-admin/internal/platform/db"
	"github.com/meridian-admin/meridian-admin/internal/rbac"
	"github.com/meridian-admin/meridian-admin/internal/roles"
	"github.com/meridian-admin/meridian-admin/internal/token"
	"github.com/meridian-admin/meridian-admin/internal/users"
	"github.com/meridian-admin/meridian-admin/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	var denylist token.Denylist
	if cfg.TokenDenylist {
		denylist = token.NewRedisDenylist(redisClient)
	}
	tokenService := token.NewService(cfg.JWTSecret, cfg.TokenTTL, denylist)

	permissionRepo := permissions.NewRepository(dbpool)
	permissionService := permissions.NewService(permissionRepo)

	rbacRepo := rbac.NewRepository(dbpool)
	rbacService := rbac.NewService(rbacRepo, permissionService, cfg.RolePolicy())

	userRepo := users.NewRepository(dbpool)
	userService := users.NewService(userRepo, rbacService)

	roleRepo := roles.NewRepository(dbpool)
	roleService := roles.NewService(roleRepo)

	guard := rbac.Guard{
		Tokens:     tokenService,
		Principals: userService,
		Service:    rbacService,
		Logger:     logger,
		Preview:    cfg.PreviewMode,
	}

	var captchaStore *auth.CaptchaStore
	var captchaIssuer auth.CaptchaIssuer
	var captchaVerifier auth.CaptchaPort
	if cfg.CaptchaEnabled {
		captchaStore = auth.NewCaptchaStore(redisClient)
		captchaIssuer = captchaStore
		captchaVerifier = captchaStore
	}
	authService := auth.NewService(userService, tokenService, captchaVerifier, cfg.PreviewMode)

	metrics := observability.NewMetrics()

	authHandler := auth.NewHandler(logger, authService, tokenService, captchaIssuer, metrics, cfg.PreviewMode)
	usersHandler := users.NewHandler(logger, userService, guard)
	rolesHandler := roles.NewHandler(logger, roleService, guard)
	permissionsHandler := permissions.NewHandler(logger, permissionService, guard)
	accessHandler := rbac.NewHandler(logger, rbacService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Guard:              guard,
		AuthHandler:        authHandler,
		UsersHandler:       usersHandler,
		RolesHandler:       rolesHandler,
		PermissionsHandler: permissionsHandler,
		AccessHandler:      accessHandler,
		JobsHandler:        jobsHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
