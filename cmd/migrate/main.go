package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/gofiber/fiber/v2/log"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/ManuelReschke/paygate/internal/pkg/awsclient"
	"github.com/ManuelReschke/paygate/internal/pkg/billing"
	"github.com/ManuelReschke/paygate/internal/pkg/config"
	"github.com/ManuelReschke/paygate/internal/pkg/docstore"
	"github.com/ManuelReschke/paygate/internal/pkg/env"
)

func main() {
	env.SetupEnvFile()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	switch command := os.Args[1]; command {
	case "up", "down", "goto", "status":
		log.Infof("Connecting to database %s@%s:%s/%s", cfg.DBUser, cfg.DBHost, cfg.DBPort, cfg.DBName)
		m, err := migrate.New(cfg.Migrations, cfg.MigrationURL())
		if err != nil {
			log.Fatalf("Initializing migrations failed: %v", err)
		}
		defer func() {
			if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
				log.Warnf("Closing migration resources failed: %v, %v", sourceErr, dbErr)
			}
		}()
		if err := runMigration(m, command, os.Args[2:]); err != nil {
			log.Fatal(err)
		}

	case "check":
		if err := checkKeySchemas(cfg); err != nil {
			log.Fatal(err)
		}

	default:
		printUsage()
		os.Exit(1)
	}
}

// runMigration applies one migrate command. ErrNoChange is not a failure.
func runMigration(m *migrate.Migrate, command string, args []string) error {
	switch command {
	case "up":
		err := m.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("No changes: documents schema is up to date")
			return nil
		}
		if err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
		log.Info("Migrations applied")

	case "down":
		if err := m.Steps(-1); err != nil {
			return fmt.Errorf("roll back last migration: %w", err)
		}
		log.Info("Rolled back last migration")

	case "goto":
		if len(args) < 1 {
			return errors.New("goto needs a version number")
		}
		version, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[0], err)
		}
		err = m.Migrate(uint(version))
		if errors.Is(err, migrate.ErrNoChange) {
			log.Infof("No changes: already at version %d", version)
			return nil
		}
		if err != nil {
			return fmt.Errorf("migrate to version %d: %w", version, err)
		}
		log.Infof("Migrated to version %d", version)

	case "status":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			log.Info("No migrations applied yet")
			return nil
		}
		if err != nil {
			return fmt.Errorf("read migration version: %w", err)
		}
		suffix := ""
		if dirty {
			suffix = " (dirty)"
		}
		log.Infof("Current migration version: %d%s", version, suffix)

	default:
		return fmt.Errorf("unknown command %q", command)
	}
	return nil
}

func checkKeySchemas(cfg *config.Config) error {
	ctx := context.Background()
	awsConfig, err := awsclient.Load(ctx, cfg)
	if err != nil {
		return err
	}
	store := docstore.NewDynamo(dynamodb.NewFromConfig(awsConfig))
	failed := 0
	for table, schema := range billing.TablesFor(cfg).Schemas() {
		if err := store.VerifyKeySchema(ctx, table, schema); err != nil {
			log.Error(err)
			failed++
			continue
		}
		log.Infof("%s OK", table)
	}
	if failed > 0 {
		return fmt.Errorf("%d table(s) do not match", failed)
	}
	return nil
}

func printUsage() {
	fmt.Println("Usage: migrate <command>")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  up       Apply all pending MySQL migrations (DOCSTORE_DRIVER=mysql)")
	fmt.Println("  down     Roll back the last migration")
	fmt.Println("  goto N   Migrate to version N")
	fmt.Println("  status   Show the current migration version")
	fmt.Println("  check    Verify the DynamoDB mirror tables are keyed as expected")
}
