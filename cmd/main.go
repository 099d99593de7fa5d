package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/zlog"

	"iscrizioni/cmd/buildCFG"
	"iscrizioni/internal/api/api"
	"iscrizioni/internal/auditWorker"
	"iscrizioni/internal/rabbit"
	"iscrizioni/internal/ratelimit"
	"iscrizioni/internal/repo"
	"iscrizioni/internal/service"
)

func main() {
	zlog.Init()
	log := zlog.Logger

	// .env is optional; the environment itself always wins.
	_ = godotenv.Load()

	cfg := config.New()
	if err := cfg.Load("config.yaml", "", "'"); err != nil {
		log.Fatal().Msgf("failed to load configuration: %v", err)
	}
	serverCfg := buildCFG.BuildServerConfig(cfg, &log)
	port := serverCfg.Port

	dbPath, err := buildCFG.BuildDatabasePath(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to resolve database path")
	}
	repository, err := repo.Open(dbPath, &log)
	if err != nil {
		log.Fatal().Msgf("failed to open database: %v", err)
	}
	defer repository.Close()
	log.Info().Str("path", dbPath).Msg("Database connected successfully")

	cwd, err := os.Getwd()
	if err != nil {
		log.Fatal().Err(err).Msg("cannot get working directory")
	}
	migrationPath := filepath.Join(cwd, "migrations/sqlite")
	if err := repository.MigrateUp(migrationPath); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
	log.Info().Msg("Migrations applied successfully")

	creds, err := buildCFG.BuildAdminConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid admin configuration")
	}
	sessionSecret, err := buildCFG.BuildSessionSecret(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid session configuration")
	}
	profile, err := buildCFG.BuildProfile(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid registration profile")
	}
	log.Info().Str("profile", profile).Msg("Registration profile selected")

	rabbitCfg, err := buildCFG.BuildRabbitConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load RabbitMQ config")
	}

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	var rmq *rabbit.Client
	var auditReader *auditWorker.Reader
	if rabbitCfg.Enabled {
		rmq, err = rabbit.NewRabbit(rabbitCfg.Url, rabbitCfg.Exchange, rabbitCfg.Queue)
		if err != nil {
			log.Fatal().Msgf("Failed to connect to RabbitMQ: %v", err)
		}
		defer rmq.Close()

		auditReader = auditWorker.NewReader(rmq, repository)
		auditReader.Start(workerCtx)
	}

	limiter := ratelimit.New()
	serviceInstance := service.NewService(repository, &log, limiter, rmq, creds, profile)
	app := api.NewRouters(&api.Routers{Service: serviceInstance, SessionSecret: sessionSecret})

	serverErrChan := make(chan error, 1)
	go func() {
		log.Info().Msgf("Starting server on %s", port)
		if err := app.Run(":" + port); err != nil {
			serverErrChan <- fmt.Errorf("failed to start server: %w", err)
		}
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-signalChan:
		log.Info().Msgf("Received signal %s. Initiating shutdown...", sig)
	case err := <-serverErrChan:
		log.Error().Msgf("Server error: %v", err)
	}

	cancelWorkers()
	if auditReader != nil {
		auditReader.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if closer, ok := interface{}(app).(interface{ Close(context.Context) error }); ok {
		if err := closer.Close(shutdownCtx); err != nil {
			log.Error().Msgf("Error shutting down server: %v", err)
		}
	}

	log.Info().Msg("Shutdown complete")
}
