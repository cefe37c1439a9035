package cmd

import (
	"time"

	"yams-sync/handlers"
	"yams-sync/remote"
	"yams-sync/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"
)

func NewCloudCommand(rootOpts *RootOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "cloud",
		Short: "Serve the cloud document API backed by postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := rootOpts.Config
			log := rootOpts.Logger
			if err := cfg.ValidateCloud(); err != nil {
				return err
			}
			if listen == "" {
				listen = cfg.CloudListenAddr
			}

			store, err := remote.OpenPostgres(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer store.Close()

			app := fiber.New(fiber.Config{
				BodyLimit:             4 * 1024 * 1024,
				DisableStartupMessage: true,
			})
			app.Use(recover.New())
			progression := services.NewProgression(services.DefaultXPWeights, services.DefaultUnlockTable())
			handlers.SetupCloudRoutes(app, store, progression, cfg.GameServiceToken, log)

			errCh := make(chan error, 1)
			go func() {
				errCh <- app.Listen(listen)
			}()
			log.Info().Str("addr", listen).Msg("✅ cloud API running")

			select {
			case <-ctx.Done():
			case err := <-errCh:
				if err != nil {
					return err
				}
			}
			log.Info().Msg("Shutting down cloud API...")
			return app.ShutdownWithTimeout(10 * time.Second)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default CLOUD_LISTEN_ADDR)")
	return cmd
}
