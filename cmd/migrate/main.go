// Command migrate runs schema operations for the relational store and the
// identity indexes.
//
//	migrate up             apply pending SQL migrations
//	migrate auto           gorm AutoMigrate plus the shared feed id sequence
//	migrate status         print the schema plan and pending versions
//	migrate down <version> revert the latest applied version
//	migrate mongo          ensure the users collection indexes
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"chirp/internal/config"
	"chirp/internal/database"

	"gorm.io/gorm"
)

type sqlCommand func(ctx context.Context, db *gorm.DB, cfg *config.Config, args []string) error

var sqlCommands = map[string]sqlCommand{
	"up": func(ctx context.Context, db *gorm.DB, _ *config.Config, _ []string) error {
		if err := database.RunMigrations(ctx, db); err != nil {
			return fmt.Errorf("sql migrations failed: %w", err)
		}
		log.Println("sql migrations applied")
		return nil
	},
	"auto": func(ctx context.Context, db *gorm.DB, cfg *config.Config, _ []string) error {
		cfg.DBSchemaMode = database.SchemaModeAuto
		if err := database.ApplySchema(ctx, db, cfg); err != nil {
			return fmt.Errorf("auto schema apply failed: %w", err)
		}
		log.Println("automigrations applied")
		return nil
	},
	"status": func(ctx context.Context, db *gorm.DB, cfg *config.Config, _ []string) error {
		status, err := database.GetSchemaStatus(ctx, db, cfg)
		if err != nil {
			return fmt.Errorf("schema status failed: %w", err)
		}
		log.Printf("mode=%s env=%s run_sql=%t run_auto=%t applied=%v",
			status.Mode, status.Environment, status.WillRunSQL, status.WillRunAutoMigrate, status.AppliedVersions)
		for _, m := range status.PendingMigrations {
			log.Printf("pending: %s", m)
		}
		return nil
	},
	"down": func(ctx context.Context, db *gorm.DB, _ *config.Config, args []string) error {
		if len(args) < 1 {
			return fmt.Errorf("usage: migrate down <version>")
		}
		version, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[0], err)
		}
		if err := database.RollbackMigration(ctx, db, version); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
		log.Printf("rolled back migration %06d", version)
		return nil
	},
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func usage() error {
	names := []string{"mongo"}
	for name := range sqlCommands {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Errorf("usage: migrate <%s> [version]", strings.Join(names, "|"))
}

func run() error {
	flag.Parse()
	if flag.NArg() < 1 {
		return usage()
	}
	name := strings.ToLower(strings.TrimSpace(flag.Arg(0)))

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if name == "mongo" {
		// Connecting creates the unique username and email indexes.
		client, _, err := database.ConnectMongo(ctx, cfg)
		if err != nil {
			return fmt.Errorf("connect mongo: %w", err)
		}
		defer func() { _ = client.Disconnect(context.Background()) }()
		log.Printf("identity indexes ensured on %s", cfg.MongoDatabase)
		return nil
	}

	cmd, ok := sqlCommands[name]
	if !ok {
		return usage()
	}
	db, err := database.Open(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer func() { _ = sqlDB.Close() }()
	}
	return cmd(ctx, db, cfg, flag.Args()[1:])
}
