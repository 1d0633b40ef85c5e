package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dfryer1193/mjolnir/router"
	"github.com/dfryer1193/schemad/internal/config"
	"github.com/dfryer1193/schemad/internal/connector"
	"github.com/dfryer1193/schemad/internal/rest"
	"github.com/dfryer1193/schemad/internal/rest/handlers"
	"github.com/dfryer1193/schemad/internal/rest/managers"
	"github.com/dfryer1193/schemad/internal/utils"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Fatal().Err(err).Str("level", cfg.Log.Level).Msg("Invalid log level")
	}
	zerolog.SetGlobalLevel(level)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	conn, err := connector.Open(ctx, cfg.Database)
	if err == nil {
		err = conn.Initialize(ctx)
	}
	cancel()
	if err != nil {
		log.Fatal().Err(err).Str("dialect", cfg.Database.Dialect).Msg("Failed to connect to database")
	}

	migrationsMgr := managers.NewMigrationManager(conn, cfg.Migrate.Timeout)
	defer migrationsMgr.Close()
	handler := handlers.NewMigrationHandler(migrationsMgr, managers.NewNamespaceManager(conn))

	tv := utils.NewTokenValidator(cfg.HTTP.Token)
	if !tv.Enabled() {
		log.Warn().Msg("SCHEMAD_HTTP_TOKEN is not set, write endpoints are unauthenticated")
	}

	r := router.New()
	rest.SetupRoutes(r, handler, tv)

	srv := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Str("dialect", conn.Dialect().String()).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown server")
	}

	log.Info().Msg("Server stopped")
}
