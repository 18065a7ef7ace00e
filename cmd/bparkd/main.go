package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/SherClockHolmes/webpush-go"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"bpark-backend/config"
	"bpark-backend/internal/api"
	"bpark-backend/internal/authz"
	"bpark-backend/internal/db"
	"bpark-backend/internal/notification"
	"bpark-backend/internal/parking"
	"bpark-backend/internal/protocol"
	"bpark-backend/internal/reports"
	"bpark-backend/internal/session"
	"bpark-backend/internal/store"
	"bpark-backend/internal/sweep"
)

func main() {
	app := &cli.App{
		Name:  "bparkd",
		Usage: "parking allocation server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "./config/config.yaml",
				EnvVars: []string{"CONFIG_PATH"},
				Usage:   "path to the YAML configuration file",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the protocol server, the sweep and the report generator",
				Action: serve,
			},
			{
				Name:   "seed-admin",
				Usage:  "create the configured administrator if none exists",
				Action: seedAdmin,
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("bparkd failed")
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from %s: %w", path, err)
	}
	if err := setupLogging(cfg.Log); err != nil {
		return nil, err
	}
	log.WithField("path", path).Info("Configuration loaded")
	return cfg, nil
}

func setupLogging(cfg config.LogConfig) error {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	log.SetLevel(level)
	if cfg.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return nil
}

func seedAdmin(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	created, err := db.SeedAdmin(c.Context, gormDB, cfg.Admin)
	if err != nil {
		return err
	}
	if created {
		log.WithField("email", cfg.Admin.Email).Info("Administrator created")
	} else {
		log.Info("An administrator already exists; nothing to do")
	}
	return nil
}

func serve(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	log.WithField("driver", cfg.Database.Driver).Info("Database initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := db.ProvisionSpaces(ctx, gormDB, cfg.Parking.TotalSpots); err != nil {
		return err
	}
	if cfg.Admin.Email != "" {
		if _, err := db.SeedAdmin(ctx, gormDB, cfg.Admin); err != nil {
			return err
		}
	}

	appStore := store.NewGormStore(gormDB)
	notifier := notification.New(ctx, cfg.Notifier, appStore)
	engine := parking.New(appStore, notifier, cfg.Parking)

	sweeper := sweep.NewSweeper(cfg.Sweep, engine)
	go sweeper.Run(ctx)

	if cfg.Reports.Enabled {
		generator := reports.NewGenerator(appStore, engine, cfg.Parking.Location)
		go generator.Run(ctx)
	}

	authorizer, err := authz.New()
	if err != nil {
		return err
	}
	sessions := session.NewRegistry(cfg.Server.SessionLogSize)
	protocolServer := protocol.NewServer(engine, sessions, authorizer, cfg.Parking.RequestTimeout)

	var pushOptions *webpush.Options
	if cfg.Notifier.Push.PublicKey != "" {
		pushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Notifier.Push.PublicKey,
			VAPIDPrivateKey: cfg.Notifier.Push.PrivateKey,
			Subscriber:      cfg.Notifier.Push.Subject,
			TTL:             cfg.Notifier.Push.TTL,
		}
	}

	handler := api.NewHandler(ctx, api.Options{
		Store:      appStore,
		Engine:     engine,
		Server:     protocolServer,
		Sessions:   sessions,
		WebPush:    pushOptions,
		AdminToken: cfg.Server.AdminToken,
	})
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: api.NewRouter(cfg.Server, handler),
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.Server.Port).Info("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.WithField("signal", sig.String()).Info("Shutdown signal received, stopping services...")
	case err := <-serveErr:
		return fmt.Errorf("HTTP server: %w", err)
	}

	// Websocket connections are hijacked and not tracked by http.Server.Shutdown,
	// so every client, logged in or not, is told first.
	protocolServer.Shutdown("The server is inactive, please try again later.")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}

	log.Info("Server gracefully stopped")
	return nil
}
