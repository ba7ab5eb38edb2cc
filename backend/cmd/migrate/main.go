package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"fritter/backend/internal/directory"
	"fritter/backend/internal/graph"
	"fritter/backend/pkg/config"
	"fritter/backend/pkg/errors"
	"fritter/backend/pkg/logger"
)

const migrationVersion = "fanout_schema_v1"

func main() {
	force := flag.Bool("force", false, "Force migration even if already applied")
	users := flag.String("users", "", "Comma separated usernames to register in the directory")
	flag.Parse()

	// Initialize logger
	if err := logger.Init("development"); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting schema migration...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}
	if cfg.Storage != config.StorageExternal {
		log.Info("STORAGE is not external, nothing to migrate")
		os.Exit(0)
	}

	// Initialize Neo4j driver
	driver, err := neo4j.NewDriverWithContext(
		cfg.Neo4jURI,
		neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""),
	)
	if err != nil {
		log.Fatal("Failed to create Neo4j driver", zap.Error(err))
	}
	defer driver.Close(context.Background())

	// Verify connection
	ctx := context.Background()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		log.Fatal("Failed to verify Neo4j connectivity", zap.Error(err))
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to create database pool", zap.Error(err))
	}
	defer pool.Close()

	applied, err := checkMigrationApplied(ctx, driver)
	if err != nil {
		log.Fatal("Failed to check migration status", zap.Error(err))
	}
	if applied && !*force {
		log.Info("Migration already applied. Use -force to reapply.")
	} else {
		if err := graph.NewRepository(driver).EnsureSchema(ctx); err != nil {
			log.Fatal("Graph migration failed", zap.Error(err))
		}
		if err := directory.NewPostgresDirectory(pool).EnsureSchema(ctx); err != nil {
			log.Fatal("Directory migration failed", zap.Error(err))
		}
		if err := markMigrationApplied(ctx, driver); err != nil {
			log.Warn("Failed to mark migration as applied", zap.Error(err))
		}
		log.Info("Migration completed successfully!")
	}

	if *users == "" {
		return
	}
	dir := directory.NewPostgresDirectory(pool)
	for _, name := range strings.Split(*users, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		id, err := dir.CreateUser(ctx, name)
		switch {
		case errors.IsErrorType(err, errors.ErrorTypeDuplicate):
			log.Info("User already registered", zap.String("username", name))
		case err != nil:
			log.Fatal("Failed to register user", zap.String("username", name), zap.Error(err))
		default:
			log.Info("Registered user", zap.String("username", name), zap.String("user_id", string(id)))
		}
	}
}

func checkMigrationApplied(ctx context.Context, driver neo4j.DriverWithContext) (bool, error) {
	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (m:Migration {version: $version})
		RETURN m.applied_at AS applied_at
	`, map[string]interface{}{"version": migrationVersion})
	if err != nil {
		return false, err
	}

	return result.Next(ctx), nil
}

func markMigrationApplied(ctx context.Context, driver neo4j.DriverWithContext) error {
	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.Run(ctx, `
		MERGE (m:Migration {version: $version})
		SET m.applied_at = datetime(),
		    m.description = 'User and content group uniqueness constraints, users table'
	`, map[string]interface{}{"version": migrationVersion})
	return err
}
