// Command migrate manages the database schema outside the API process.
//
//	migrate up            apply all pending migrations
//	migrate down [N]      roll back N migrations (default 1)
//	migrate goto V        migrate to version V
//	migrate force V       mark version V as applied without running it
//	migrate status        print the current version
package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"payment-webhook-queue/config"
	pgStorage "payment-webhook-queue/internal/adapter/storage/postgres"
	"payment-webhook-queue/pkg/logger"

	"github.com/golang-migrate/migrate/v4"
	flag "github.com/spf13/pflag"
)

func main() {
	configPath := flag.StringP("config", "c", "", "path to config.yaml (defaults to ./config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	if cfg.Database.Driver != config.DriverPostgres {
		log.Fatal().Str("driver", cfg.Database.Driver).Msg("Migrations only apply to the postgres driver")
	}

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: migrate [-c config.yaml] up|down [N]|goto V|force V|status")
		os.Exit(2)
	}

	m, err := pgStorage.NewMigrator(cfg.Database.MigrateURL())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open migrator")
	}
	defer m.Close()

	switch args[0] {
	case "up":
		err = m.Up()
	case "down":
		n := 1
		if len(args) > 1 {
			n, err = strconv.Atoi(args[1])
			if err != nil || n < 1 {
				log.Fatal().Str("steps", args[1]).Msg("down expects a positive step count")
			}
		}
		err = m.Steps(-n)
	case "goto", "force":
		if len(args) < 2 {
			log.Fatal().Msgf("%s expects a version", args[0])
		}
		v, convErr := strconv.ParseUint(args[1], 10, 64)
		if convErr != nil {
			log.Fatal().Str("version", args[1]).Msg("invalid version")
		}
		if args[0] == "goto" {
			err = m.Migrate(uint(v))
		} else {
			err = m.Force(int(v))
		}
	case "status":
	default:
		log.Fatal().Str("command", args[0]).Msg("unknown command")
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatal().Err(err).Str("command", args[0]).Msg("Migration failed")
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		log.Info().Msg("No migrations applied")
	case err != nil:
		log.Fatal().Err(err).Msg("Failed to read schema version")
	default:
		log.Info().Uint("version", version).Bool("dirty", dirty).Str("command", args[0]).Msg("Schema version")
	}
}
