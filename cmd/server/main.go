package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"rift-rewind/internal/config"
	"rift-rewind/internal/constants"
	fxmodules "rift-rewind/internal/fx"
	"rift-rewind/internal/logger"
	"rift-rewind/internal/metrics"
	"rift-rewind/internal/middleware"
	"rift-rewind/internal/server"
	"rift-rewind/internal/worker"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		fxmodules.Module,
		fx.Invoke(runServer),
	).Run()
}

func runServer(
	lc fx.Lifecycle,
	apiServer *server.Server,
	pool *worker.Pool,
	m *metrics.Metrics,
	cfg *config.Config,
	db *sql.DB,
	log zerolog.Logger,
) {
	log = logger.WithLevel(log, cfg.LogLevel)

	mux := http.NewServeMux()
	apiServer.Register(mux)
	mux.Handle("GET /metrics", m.Handler())

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	requestIDMiddleware := middleware.RequestID(log)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: requestIDMiddleware(c.Handler(mux)),
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			pool.Start()
			go func() {
				log.Info().Str("addr", srv.Addr).Msg("server starting")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal().Err(err).Msg("server failed")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info().Msg("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()

			if err := pool.Stop(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("worker pool did not drain in time")
			}

			if err := db.Close(); err != nil {
				log.Warn().Err(err).Msg("error closing database connection")
			}

			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("server shutdown failed")
				return err
			}
			log.Info().Msg("server stopped gracefully")
			return nil
		},
	})
}
