// Command orionkeeper is the backend entry point for the orion betting
// dApp. It serves the HTTP API, runs the round keeper, and offers a few
// operator helpers.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/orionbet/orionkeeper/internal/config"
)

func main() {
	app := &cli.App{
		Name:  "orionkeeper",
		Usage: "keeper and API backend for orion binary-option rounds",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.toml",
				Usage:   "path to configuration file (empty for defaults and environment only)",
				EnvVars: []string{"ORION_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			cmdServe,
			cmdTick,
			cmdEncryptKey,
			cmdSignClaim,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads and validates the configuration named by --config and
// builds the JSON logger at the configured level.
func loadConfig(cctx *cli.Context) (*config.Config, *slog.Logger, error) {
	path := cctx.String("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if mode := cctx.String("mode"); mode != "" {
		cfg.Mode = mode
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)
	logger.Debug("configuration loaded",
		slog.String("path", path),
		slog.Any("config", config.RedactedConfig(cfg)),
	)
	return cfg, logger, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
