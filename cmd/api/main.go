package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"metapro/internal/bootstrap"
	"metapro/internal/config"
	"metapro/internal/http/handlers"
	httpapi "metapro/internal/http/httpapi"
	"metapro/internal/infra"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	deps, err := bootstrap.Build(ctx, cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to assemble pipeline")
	}
	defer deps.Close()

	app := handlers.NewApp(deps.Pipeline, deps.Store, cfg, &logger)
	router := httpapi.NewRouter(app, cfg, logger)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("addr", server.Addr()).Msg("API listening")
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
