package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"infrastructure/errors"
	"infrastructure/logger"
)

const (
	packageName = "main"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "infra",
		Usage: "Declare, render, deploy and watch the personal infrastructure stack",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env-file",
				Value: ".env",
				Usage: "Optional env file read before the process environment",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Before: func(c *cli.Context) error {
			if err := logger.Initialize(c.String("log-level")); err != nil {
				return errors.New(errors.ErrConfigParse, "Failed to initialize logger",
					map[string]interface{}{
						"operation": "logger_init",
						"level":     c.String("log-level"),
					}, err)
			}
			logger.For(packageName).Debug("Application starting",
				zap.String("operation", "startup"),
				zap.String("command", c.Args().First()),
			)
			return nil
		},
		After: func(c *cli.Context) error {
			logger.Sync()
			return nil
		},
		Commands: []*cli.Command{
			synthCommand(),
			graphCommand(),
			deployCommand(),
			driftCommand(),
		},
	}
}

func synthCommand() *cli.Command {
	return &cli.Command{
		Name:  "synth",
		Usage: "Render the stack template",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Value:   "json",
				Usage:   "Template format (json, yaml)",
			},
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "Write the template to a file instead of stdout",
			},
			&cli.BoolFlag{
				Name:  "lookup",
				Usage: "Resolve the instance subnet from the VPC when SUBNET_ID is unset",
			},
		},
		Action: runSynth,
	}
}

func graphCommand() *cli.Command {
	return &cli.Command{
		Name:  "graph",
		Usage: "Print the resource dependency graph",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Value:   "dot",
				Usage:   "Graph format (dot, mermaid, json)",
			},
		},
		Action: runGraph,
	}
}

func deployCommand() *cli.Command {
	return &cli.Command{
		Name:  "deploy",
		Usage: "Publish assets and deploy the stack through a change set",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "stack",
				Usage: "Override the stack name",
			},
			&cli.BoolFlag{
				Name:  "lookup",
				Usage: "Resolve the instance subnet from the VPC when SUBNET_ID is unset",
			},
		},
		Action: runDeploy,
	}
}

func driftCommand() *cli.Command {
	return &cli.Command{
		Name:  "drift",
		Usage: "Compare deployed instances with the declaration until interrupted",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "stack",
				Usage: "Override the stack name",
			},
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Time between checks (defaults to CHECK_INTERVAL_MINUTES)",
			},
			&cli.BoolFlag{
				Name:  "once",
				Usage: "Run a single check and exit",
			},
		},
		Action: runDrift,
	}
}
