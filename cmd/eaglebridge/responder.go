package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/five82/eaglebridge/internal/app"
	"github.com/five82/eaglebridge/internal/logship"
	"github.com/five82/eaglebridge/internal/wire"
)

func newResponderCmd(flags *globalFlags) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "responder",
		Short: "Run the listening side until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}

			buffer := logship.NewBuffer(wire.SourceResponder, logship.DefaultBufferLimit)
			logger, closer, err := flags.setupLogger(cfg, "responder", os.Stderr, buffer)
			if err != nil {
				return err
			}
			defer func() { _ = closer.Close() }()

			responder, err := app.NewResponder(app.ResponderOptions{
				Config:    cfg,
				PrefsPath: flags.prefsPath,
				Version:   version,
				Logger:    logger,
				Buffer:    buffer,
			})
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if err := responder.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			logger.Info("shutting down")
			return responder.Stop()
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides config; persisted port still wins)")
	return cmd
}
