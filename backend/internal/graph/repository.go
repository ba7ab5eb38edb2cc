package graph

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"fritter/backend/internal/constants"
	"fritter/backend/pkg/errors"
	"fritter/backend/pkg/logger"
)

const constraintViolation = "Neo.ClientError.Schema.ConstraintValidationFailed"

// Repository handles all Neo4j database operations: relationship edges
// between users and content group records with their member sets.
type Repository struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// NewRepository creates a new graph repository
func NewRepository(driver neo4j.DriverWithContext) *Repository {
	return &Repository{
		driver: driver,
		logger: logger.Named("graph"),
	}
}

// Close closes the Neo4j driver connection
func (r *Repository) Close() error {
	return r.driver.Close(context.Background())
}

// EnsureSchema creates the uniqueness constraints (idempotent)
func (r *Repository) EnsureSchema(ctx context.Context) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	statements := []string{
		fmt.Sprintf(`CREATE CONSTRAINT user_id_unique IF NOT EXISTS FOR (u:%s) REQUIRE u.id IS UNIQUE`, constants.LabelUser),
		fmt.Sprintf(`CREATE CONSTRAINT group_name_unique IF NOT EXISTS FOR (g:%s) REQUIRE g.name IS UNIQUE`, constants.LabelGroup),
	}
	for _, stmt := range statements {
		if _, err := session.Run(ctx, stmt, nil); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

// write runs fn in a managed write transaction, which the driver retries on
// transient failures.
func (r *Repository) write(ctx context.Context, fn func(tx neo4j.ManagedTransaction) (any, error)) (any, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)
	return session.ExecuteWrite(ctx, fn)
}

func (r *Repository) read(ctx context.Context, fn func(tx neo4j.ManagedTransaction) (any, error)) (any, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)
	return session.ExecuteRead(ctx, fn)
}

// storeError leaves domain errors alone and wraps driver errors as graph failures
func storeError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.KindOf(err); ok {
		return err
	}
	return errors.NewStoreFailed(errors.ErrorTypeGraph, operation, err)
}

func isConstraintViolation(err error) bool {
	var neoErr *neo4j.Neo4jError
	return stderrors.As(err, &neoErr) && neoErr.Code == constraintViolation
}
