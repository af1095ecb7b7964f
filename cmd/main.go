package main

import (
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"
)

var configFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Usage:   "path to a YAML config file (default: config.yaml in ./config or .)",
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "fileserver",
		Usage: "multi-worker static file server with load-tier backend selection",
		Commands: []*cli.Command{
			serveCommand(),
			selectCommand(),
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		slog.Error("fileserver failed", slog.Any("err", err))
		os.Exit(1)
	}
}
