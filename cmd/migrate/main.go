// cmd/migrate/main.go applies the SQL migrations in ./migrations with goose.
//
//	migrate [--dir migrations] up|down|status|redo|version [args]
package main

import (
	"fmt"
	"os"

	"github.com/jason-s-yu/aiquiz/internal/app"
	"github.com/jason-s-yu/aiquiz/internal/config"
	"github.com/jason-s-yu/aiquiz/internal/database"
	_ "github.com/joho/godotenv/autoload"
	flag "github.com/spf13/pflag"
)

func main() {
	dir := flag.String("dir", "migrations", "directory holding the SQL migrations")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: migrate [--dir migrations] up|down|status|redo|version [args]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if err := database.Migrate(logger, cfg.DatabaseURL, *dir, args[0], args[1:]...); err != nil {
		logger.WithError(err).Fatal("migration failed")
	}
}
