// Package main provides the dealflow worker that dispatches rules for inbound CRM events.
package main

import (
	"context"
	"os"

	"github.com/dukex/dealflow/pkg/cmd"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "dealflow-worker",
		EnableShellCompletion: true,
		Usage:                 "Consume CRM events and run matching automations",
		Flags: append(cmd.CommonFlags(),
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Sources: cli.EnvVars("WORKER_ID"),
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			core, logger, cleanup, err := cmd.Bootstrap(ctx, command, "dealflow-worker")
			if err != nil {
				return err
			}
			defer cleanup()

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger.InfoContext(ctx, "Initializing dealflow worker", "worker_id", workerID)

			worker := NewWorkerManager(workerID, core.Bus, core.Events, logger)

			return worker.Start(ctx)
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
