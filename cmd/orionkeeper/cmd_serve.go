package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/orionbet/orionkeeper/internal/app"
)

var cmdServe = &cli.Command{
	Name:  "serve",
	Usage: "Run the API server and/or keeper loop",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "mode",
			Usage: "override the configured mode: server, keeper or full",
		},
	},
	Action: func(cctx *cli.Context) error {
		cfg, logger, err := loadConfig(cctx)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cctx.Context, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		application := app.New(cfg, logger)
		defer application.Close()

		logger.Info("orion keeper starting", slog.String("mode", cfg.Mode))
		if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("application exited with error", slog.String("error", err.Error()))
			return err
		}
		logger.Info("orion keeper stopped")
		return nil
	},
}

var cmdTick = &cli.Command{
	Name:  "tick",
	Usage: "Run one auto-manage cycle and print the result",
	Action: func(cctx *cli.Context) error {
		cfg, logger, err := loadConfig(cctx)
		if err != nil {
			return err
		}

		application := app.New(cfg, logger)
		defer application.Close()

		res, err := application.Tick(cctx.Context)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}
