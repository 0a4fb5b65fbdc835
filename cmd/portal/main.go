// portal - A cross-server message relay for chat channels.
// Copyright (C) 2026 Beaver Labs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"go.mau.fi/util/dbutil"

	"github.com/beaverbot/portal/pkg/database"
	"github.com/beaverbot/portal/pkg/delivery"
	"github.com/beaverbot/portal/pkg/portal"
	"github.com/beaverbot/portal/pkg/portalconfig"
)

// Filled in by the build script via -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

const version = "0.1.0"

func main() {
	app := &cli.App{
		Name:    "portal",
		Usage:   "A cross-server message relay for chat channels",
		Version: fmt.Sprintf("%s (%s, built %s)", version, Commit, BuildTime),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yaml",
				Usage:   "path to the config file",
			},
			&cli.BoolFlag{
				Name:  "no-save-config",
				Usage: "don't write the migrated config back to disk",
			},
		},
		Commands: []*cli.Command{{
			Name:   "run",
			Usage:  "Run the relay (default)",
			Action: runRelay,
		}, {
			Name:   "migrate",
			Usage:  "Run database migrations and exit",
			Action: migrateDB,
		}, {
			Name:   "generate-config",
			Usage:  "Write the example config to the --config path and exit",
			Action: generateConfig,
		}},
		DefaultCommand: "run",
	}
	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (*portalconfig.Config, *zerolog.Logger, error) {
	cfg, err := portalconfig.Load(c.String("config"), !c.Bool("no-save-config"))
	if err != nil {
		return nil, nil, err
	}
	log, err := cfg.Logging.Compile()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to configure logger: %w", err)
	}
	log.Info().
		Str("version", version).
		Str("commit", Commit).
		Str("built_at", BuildTime).
		Msg("Initializing portal")
	return cfg, log, nil
}

func openDatabase(ctx context.Context, cfg *portalconfig.Config, log *zerolog.Logger) (*database.Database, error) {
	rawDB, err := dbutil.NewFromConfig("portal", cfg.Database, dbutil.ZeroLogger(log.With().Str("db_section", "main").Logger()))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db := database.New(rawDB)
	if err = db.Upgrade(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to upgrade database schema: %w", err)
	}
	return db, nil
}

func runRelay(c *cli.Context) error {
	cfg, log, err := loadConfig(c)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = log.WithContext(ctx)

	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		_ = db.Close()
	}()

	adapter, err := delivery.New(cfg.Platform, *log)
	if err != nil {
		return err
	}
	engine, err := portal.NewEngine(db, adapter, cfg.EngineConfig(), *log)
	if err != nil {
		return err
	}

	go func() {
		err := portalconfig.Watch(ctx, c.String("config"), *log, func(cfg *portalconfig.Config) {
			engine.UpdateConfig(cfg.EngineConfig())
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Msg("Config watcher stopped")
		}
	}()

	err = engine.Run(ctx)
	if errors.Is(err, context.Canceled) {
		log.Info().Msg("Shutting down on signal")
		return nil
	}
	return err
}

func migrateDB(c *cli.Context) error {
	cfg, log, err := loadConfig(c)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	log.Info().Msg("Database migrations applied")
	return db.Close()
}

func generateConfig(c *cli.Context) error {
	path := c.String("config")
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	} else if !os.IsNotExist(err) {
		return err
	}
	return os.WriteFile(path, []byte(portalconfig.ExampleConfig), 0o600)
}
