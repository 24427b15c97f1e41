package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/annotify/annotify/internal/buildinfo"
	"github.com/annotify/annotify/internal/cli"
	"github.com/annotify/annotify/internal/config"
	"github.com/annotify/annotify/internal/logging"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	cfg := config.LoadConfig()

	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	app, err := cli.NewApp(cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	app.Run(ctx)
}
