package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"vidpipe/internal/daemon"
	"vidpipe/internal/logging"
	"vidpipe/internal/preflight"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon and its HTTP API in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			hub := logging.NewStreamHub(cfg.Logging.StreamCapacity)
			logger, err := logging.NewFromConfig(cfg, hub)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			for _, failed := range preflight.Failed(preflight.RunAll(cmd.Context(), cfg, preflight.Options{})) {
				logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
					logging.String("check", failed.Name),
					logging.String(logging.FieldErrorHint, failed.Detail),
					logging.String(logging.FieldImpact, "jobs depending on this check will fail"),
				)
			}

			rt, err := daemon.Build(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			d, err := daemon.New(rt, hub)
			if err != nil {
				return err
			}
			logger.Info("vidpipe daemon starting",
				logging.String(logging.FieldEventType, "daemon_start"),
				logging.String("bind", cfg.Server.Bind),
				logging.String("config", ctx.configPath),
				logging.Int("backends", len(cfg.Providers.Backends)),
			)
			err = d.Run(cmd.Context())
			if errors.Is(err, daemon.ErrAlreadyRunning) {
				return fmt.Errorf("%w (lock %s)", err, cfg.LockPath())
			}
			return err
		},
	}
}
