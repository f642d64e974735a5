package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/otiai10/ssobridge/internal/api"
	"github.com/otiai10/ssobridge/internal/app"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the token exchange as a standalone HTTP server",
	Long: `Serves the exchange on "/" and "/generateSsoToken" and a health check
on "/health". Stops gracefully on SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadedConfig
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.Addr = addr
		}

		ctx := cmd.Context()
		application, err := app.New(ctx, cfg)
		if err != nil {
			return fmt.Errorf("initializing application: %w", err)
		}
		defer func() {
			if err := application.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close application")
			}
		}()

		server := api.NewServer(cfg.Server.Addr, application.Router())

		errCh := make(chan error, 1)
		go func() {
			log.Info().Msgf("Starting server on %s...", server.Addr())
			errCh <- server.Start()
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case err := <-errCh:
			return err
		case sig := <-quit:
			log.Info().Str("signal", sig.String()).Msg("Shutting down server...")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}

		log.Info().Msg("Server exited")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "address to listen on (default from config, then :8080)")
}
