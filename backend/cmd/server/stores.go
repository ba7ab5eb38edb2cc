package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"fritter/backend/internal/directory"
	"fritter/backend/internal/fanout"
	"fritter/backend/internal/feed"
	"fritter/backend/internal/graph"
	"fritter/backend/internal/memory"
	"fritter/backend/internal/model"
	"fritter/backend/pkg/config"
	"fritter/backend/pkg/errors"
	"fritter/backend/pkg/logger"
)

// userRegistry is a directory that can also register usernames
type userRegistry interface {
	fanout.UserDirectory
	CreateUser(ctx context.Context, username string) (model.UserID, error)
}

type stores struct {
	edges  fanout.EdgeStore
	groups fanout.GroupRepository
	feeds  fanout.FeedStore
	users  userRegistry

	closers []func()
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.Storage == config.StorageMemory {
		g := memory.NewGraph()
		return &stores{
			edges:  g,
			groups: g,
			feeds:  memory.NewFeedStore(),
			users:  memory.NewDirectory(),
		}, nil
	}

	st := &stores{}
	ok := false
	defer func() {
		if !ok {
			st.Close()
		}
	}()

	// Neo4j: relationship edges and content groups
	driver, err := neo4j.NewDriverWithContext(
		cfg.Neo4jURI,
		neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Neo4j driver: %w", err)
	}
	st.closers = append(st.closers, func() { _ = driver.Close(context.Background()) })
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("failed to verify Neo4j connectivity: %w", err)
	}
	repo := graph.NewRepository(driver)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	st.edges, st.groups = repo, repo

	// Redis: materialized feeds
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	st.closers = append(st.closers, func() { _ = rdb.Close() })
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	st.feeds = feed.NewRedisStore(rdb)

	// Postgres: user directory
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DB_URL: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	st.closers = append(st.closers, pool.Close)
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	dir := directory.NewPostgresDirectory(pool)
	if err := dir.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	st.users = dir

	ok = true
	return st, nil
}

// seedUsers registers each username once; existing names are kept as they are
func seedUsers(ctx context.Context, users userRegistry, usernames []string) error {
	log := logger.Named("seed")
	for _, name := range usernames {
		id, err := users.CreateUser(ctx, name)
		if errors.IsErrorType(err, errors.ErrorTypeDuplicate) {
			if id, err = users.ResolveID(ctx, name); err != nil {
				return fmt.Errorf("failed to resolve seeded user %s: %w", name, err)
			}
		} else if err != nil {
			return fmt.Errorf("failed to seed user %s: %w", name, err)
		}
		log.Info("Seeded user", zap.String("username", name), zap.String("user_id", string(id)))
	}
	return nil
}
