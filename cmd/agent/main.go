package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/guseggert/wsremote/agent"
	"github.com/guseggert/wsremote/agent/engine"
	"github.com/guseggert/wsremote/internal/config"
	"github.com/guseggert/wsremote/internal/logging"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap/zapcore"
)

func main() {
	app := &cli.App{
		Name:  "agent",
		Usage: "connects to a controller and executes the commands it sends",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: `File containing "<ip> <port>" of the controller.`,
				Value: config.DefaultPath,
			},
			&cli.StringFlag{
				Name:  "path",
				Usage: "The HTTP path of the controller's WebSocket endpoint.",
				Value: "/",
			},
			&cli.DurationFlag{
				Name:  "retry-interval",
				Usage: "How long to wait before reconnecting after the connection is lost.",
				Value: agent.DefaultRetryInterval,
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "How long to wait for the output of a single command execution.",
				Value: engine.DefaultTimeout,
			},
			&cli.StringFlag{
				Name:  "output-encoding",
				Usage: "The text encoding of command output, e.g. shift_jis or utf-8. Defaults to utf-8, or shift_jis on Windows.",
			},
			&cli.StringFlag{
				Name:  "dir",
				Usage: "The directory commands run in and files are written to. Defaults to the working directory.",
			},
			&cli.Int64Flag{
				Name:  "read-limit",
				Usage: "The largest message accepted, in bytes.",
				Value: agent.DefaultReadLimit,
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "File errors are appended to. Empty disables it.",
				Value: logging.DefaultErrorLog,
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging.",
			},
		},
		Action: func(ctx *cli.Context) error {
			level := zapcore.InfoLevel
			if ctx.Bool("debug") {
				level = zapcore.DebugLevel
			}
			logger, closeLog, err := logging.New(logging.Options{Level: level, ErrorLog: ctx.String("log-file")})
			if err != nil {
				return fmt.Errorf("building logger: %w", err)
			}
			defer closeLog()

			cfg, err := config.Load(ctx.String("config"))
			if err != nil {
				logger.Sugar().Errorw("loading config", "Path", ctx.String("config"), "Error", err)
				return fmt.Errorf("loading config: %w", err)
			}

			runner := engine.NewPlatformRunner()
			if name := ctx.String("output-encoding"); name != "" {
				enc, err := engine.EncodingByName(name)
				if err != nil {
					return err
				}
				runner.Encoding = enc
			}

			exec := engine.New(
				engine.WithRunner(runner),
				engine.WithTimeout(ctx.Duration("timeout")),
				engine.WithDir(ctx.String("dir")),
				engine.WithLogger(logger),
			)

			a, err := agent.New(
				cfg.URL(ctx.String("path")),
				exec,
				agent.WithLogger(logger),
				agent.WithRetryInterval(ctx.Duration("retry-interval")),
				agent.WithReadLimit(ctx.Int64("read-limit")),
			)
			if err != nil {
				return fmt.Errorf("building agent: %w", err)
			}

			runCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.Run(runCtx)
		},
	}
	if err := app.RunContext(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
