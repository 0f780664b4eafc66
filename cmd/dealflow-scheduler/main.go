// Package main provides the dealflow scheduler that emits time-based ticks and advances
// parked workflow enrollments.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/dealflow/pkg/cmd"
	"github.com/dukex/dealflow/pkg/sweeper"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "dealflow-scheduler",
		EnableShellCompletion: true,
		Usage:                 "Sweep time-based rules and workflow waits",
		Flags: append(cmd.CommonFlags(),
			&cli.DurationFlag{
				Name:    "sweep-interval",
				Usage:   "Time between sweeps",
				Value:   sweeper.DefaultInterval,
				Sources: cli.EnvVars("SWEEP_INTERVAL"),
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			core, logger, cleanup, err := cmd.Bootstrap(ctx, command, "dealflow-scheduler")
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			interval := command.Duration("sweep-interval")
			logger.InfoContext(ctx, "Starting dealflow scheduler", "interval", interval)

			if err := core.Sweeper.Run(ctx, interval); err != nil {
				return err
			}

			logger.InfoContext(ctx, "Shutting down scheduler...")

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
