package main

import (
	"context"
	"os"

	"github.com/dukex/dealflow/pkg/cmd"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "dealflow-api",
		Usage:                 "Manage automation rules, templates and workflows",
		EnableShellCompletion: true,
		Flags: append(cmd.CommonFlags(),
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.BoolFlag{
				Name:    "seed-catalog",
				Usage:   "Store the built-in template catalog on startup",
				Value:   true,
				Sources: cli.EnvVars("SEED_CATALOG"),
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			core, logger, cleanup, err := cmd.Bootstrap(ctx, command, "dealflow-api")
			if err != nil {
				return err
			}
			defer cleanup()

			logger.InfoContext(ctx, "Initializing dealflow API")

			if command.Bool("seed-catalog") {
				if _, err := core.Templates.SeedCatalog(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to seed template catalog", "error", err)
				}
			}

			api := NewAPI(logger, core)

			if err := api.Start(command.Int("port")); err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)

				return err
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
