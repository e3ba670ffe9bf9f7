package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/contribquest/contribquest/backend/handlers"
	"github.com/contribquest/contribquest/backend/middleware"
	"github.com/contribquest/contribquest/contribquest"
	"github.com/contribquest/contribquest/contribquest/claims"
	"github.com/contribquest/contribquest/contribquest/database"
	"github.com/contribquest/contribquest/contribquest/database/repositories"
	"github.com/contribquest/contribquest/contribquest/issues"
	"github.com/contribquest/contribquest/contribquest/logger"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	customHandler := logger.NewHandler("ContribQuest")
	slog.SetDefault(slog.New(customHandler))

	slog.Info("Starting ContribQuest claim service",
		slog.String("version", version),
		slog.String("commit", commit))

	path := flag.String("config", "config.toml", "path to config")
	resetDB := flag.Bool("reset-db", false, "truncate application tables on startup")
	flag.Parse()

	cfg, err := contribquest.LoadConfig(*path)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(-1)
	}
	slog.Info("Configuration loaded successfully")

	slog.Info("Initializing database connection...")
	dbStartTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := database.New(ctx, database.DBConfig{
		Host:         cfg.DB.Host,
		Port:         cfg.DB.Port,
		User:         cfg.DB.User,
		Password:     cfg.DB.Password,
		Database:     cfg.DB.Database,
		PoolSize:     cfg.DB.PoolSize,
		MaxIdleConns: cfg.DB.MaxIdleConns,
		MaxLifetime:  cfg.DB.MaxLifetime,
	})
	if err != nil {
		slog.Error("Database connection failed",
			slog.String("error", err.Error()),
			slog.Duration("attempted_for", time.Since(dbStartTime)))
		os.Exit(-1)
	}
	defer db.Close()

	slog.Info("Database connected successfully",
		slog.String("database", cfg.DB.Database),
		slog.Duration("took", time.Since(dbStartTime)))

	if *resetDB {
		slog.Warn("Resetting application tables")
		if err := db.ResetAppTables(ctx); err != nil {
			slog.Error("Failed to reset tables", slog.Any("error", err))
			os.Exit(-1)
		}
	}

	slog.Info("Initializing database schema...")
	if err := db.InitializeSchema(ctx); err != nil {
		slog.Error("Failed to initialize database schema", slog.Any("error", err))
		os.Exit(-1)
	}
	slog.Info("Database schema initialized successfully")

	issueRepo := repositories.NewIssueRepository(db.BunDB())
	eventRepo := repositories.NewClaimEventRepository(db.BunDB())

	policy := claims.NewDeadlinePolicy(cfg.Claims)
	claimManager := claims.NewManager(issueRepo, eventRepo, policy)
	issueService := issues.NewService(issueRepo)

	reaper := claims.NewReaper(issueRepo, eventRepo, policy,
		cfg.Claims.SweepInterval(), cfg.Claims.ReminderThreshold())
	reaper.Start()
	defer reaper.Shutdown()

	app := fiber.New(fiber.Config{
		AppName:      "ContribQuest API",
		ErrorHandler: middleware.CustomErrorHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	app.Use(middleware.LoggingMiddleware())
	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.CORS(cfg.Server.CORSAllowOrigins))
	if cfg.Server.RateLimitPerMin > 0 {
		app.Use(middleware.RateLimit(cfg.Server.RateLimitPerMin, time.Minute))
	}

	webApp := &handlers.WebApp{
		Config:  cfg,
		DB:      db,
		Claims:  claimManager,
		Issues:  issueService,
		Version: version,
	}
	webApp.SetupRoutes(app)

	go func() {
		if err := app.Listen(cfg.Server.Addr()); err != nil {
			slog.Error("HTTP server stopped", slog.Any("error", err))
			os.Exit(-1)
		}
	}()

	slog.Info("ContribQuest API listening",
		slog.String("type", "http"),
		slog.String("addr", cfg.Server.Addr()))

	s := make(chan os.Signal, 1)
	signal.Notify(s, syscall.SIGINT, syscall.SIGTERM)
	<-s

	slog.Info("Shutting down...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		slog.Error("HTTP shutdown failed", slog.Any("error", err))
	}
}
