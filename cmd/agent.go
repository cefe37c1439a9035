package cmd

import (
	"time"

	"yams-sync/handlers"
	"yams-sync/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/spf13/cobra"
)

func NewAgentCommand(rootOpts *RootOptions) *cobra.Command {
	var listen string
	var origins string

	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Run the device daemon: local API plus background sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if listen == "" {
				listen = rootOpts.Config.ListenAddr
			}

			d, err := openDevice(rootOpts)
			if err != nil {
				return err
			}
			defer d.Close()
			if err := d.connect(ctx); err != nil {
				return err
			}
			log := d.logger

			worker := workers.NewSyncWorker(d.engine, d.tracker, workers.SyncWorkerConfig{
				Interval:      d.cfg.SyncInterval,
				PurgeInterval: d.cfg.SyncPurgeInterval,
				PendingMaxAge: d.cfg.SyncPendingMaxAge,
			}, d.clock, log)
			if err := worker.Start(ctx); err != nil {
				return err
			}
			defer worker.Stop()

			app := fiber.New(fiber.Config{
				BodyLimit:             16 * 1024 * 1024,
				DisableStartupMessage: true,
			})
			app.Use(cors.New(cors.Config{
				AllowOrigins: origins,
				AllowMethods: "GET,POST,PATCH,DELETE,OPTIONS",
				AllowHeaders: "Origin, Content-Type, Accept",
			}))
			handlers.SetupPlayerRoutes(app, d.players, d.engine, d.backup)

			errCh := make(chan error, 1)
			go func() {
				errCh <- app.Listen(listen)
			}()
			log.Info().Str("addr", listen).Msg("✅ device API running")

			select {
			case <-ctx.Done():
			case err := <-errCh:
				if err != nil {
					return err
				}
			}
			log.Info().Msg("Shutting down agent...")
			return app.ShutdownWithTimeout(10 * time.Second)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default LISTEN_ADDR)")
	cmd.Flags().StringVar(&origins, "origins", "http://localhost:3000", "comma-separated CORS origins")
	return cmd
}
