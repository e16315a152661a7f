package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zduanx/jobtrawl/internal/app"
	"github.com/zduanx/jobtrawl/internal/companies"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ingestion pipeline server",
	Long:  "Starts the jobtrawl server: the run-controller API, the crawl/extract worker pools, and the content store sweep.",
	Run:   runServe,
}

func runServe(cmd *cobra.Command, args []string) {
	requestTimeout, err := time.ParseDuration(config.Crawler.RequestTimeout)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid crawler request_timeout")
	}

	registry, settings, err := companies.BuildRegistry(config.Companies, requestTimeout, config.Crawler.UserAgent)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build adapter registry")
	}

	application, err := app.New(config, registry, settings, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize application")
	}

	ctx, cancelApp := context.WithCancel(context.Background())
	application.Start(ctx)

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      application.Router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info().Str("address", addr).Msg("jobtrawl server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	logger.Info().Str("url", fmt.Sprintf("http://%s", addr)).Msg("server ready - press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("shutting down server")
	cancelApp()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	if err := application.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("application shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
