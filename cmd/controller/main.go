package main

import (
	"fmt"
	"log"
	"os"

	"github.com/guseggert/wsremote/controller"
	"github.com/guseggert/wsremote/internal/config"
	"github.com/guseggert/wsremote/internal/logging"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap/zapcore"
)

func main() {
	app := &cli.App{
		Name:  "controller",
		Usage: "waits for an agent to connect and sends it commands typed at the console",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: `File containing "<ip> <port>" to listen on.`,
				Value: config.DefaultPath,
			},
			&cli.StringFlag{
				Name:  "path",
				Usage: "The HTTP path agents connect to.",
				Value: "/",
			},
			&cli.Int64Flag{
				Name:  "read-limit",
				Usage: "The largest message accepted, in bytes.",
				Value: controller.DefaultReadLimit,
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
			// keep routine logs off the console, which is shared with the operator
			level := zapcore.WarnLevel
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

			term := controller.NewTerminal()
			defer term.Close()

			c := controller.New(
				controller.WithLogger(logger),
				controller.WithPath(ctx.String("path")),
				controller.WithReadLimit(ctx.Int64("read-limit")),
				controller.WithInput(term),
			)
			addr, err := c.Listen(cfg.Addr())
			if err != nil {
				logger.Sugar().Errorw("listening", "Addr", cfg.Addr(), "Error", err)
				return err
			}
			fmt.Printf("listening for agents on ws://%s%s\n", addr, ctx.String("path"))

			return c.Run(ctx.Context)
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
