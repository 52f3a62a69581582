// cmd/worker/main.go consumes question-generation jobs from the Redis queue and writes
// the generated questions to PostgreSQL.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/aiquiz/internal/app"
	"github.com/jason-s-yu/aiquiz/internal/config"
	"github.com/jason-s-yu/aiquiz/internal/tracing"
	"github.com/joho/godotenv"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
)

func main() {
	envFile := flag.String("env-file", "", "extra .env file loaded before the environment is parsed")
	verbose := flag.BoolP("verbose", "v", false, "log at debug level")
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", *envFile, err)
			os.Exit(1)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, "aiquiz-worker")
	if err != nil {
		logger.WithError(err).Warn("tracing disabled")
	}
	defer shutdownTracing(context.Background())

	conns, err := app.Connect(ctx, cfg)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect")
	}
	defer conns.Close()

	if err := app.BuildWorker(conns, cfg, logger).Run(ctx); err != nil {
		logger.WithError(err).Error("worker exited")
	}
}
