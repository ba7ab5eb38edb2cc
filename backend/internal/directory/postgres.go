package directory

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"fritter/backend/internal/constants"
	"fritter/backend/internal/model"
	"fritter/backend/pkg/errors"
	"fritter/backend/pkg/logger"
)

const uniqueViolation = "23505"

// PostgresDirectory resolves usernames to user ids against the users table
type PostgresDirectory struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresDirectory wraps an already configured pool
func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{
		db:     pool,
		logger: logger.Named("directory"),
	}
}

// EnsureSchema creates the users table if missing
func (d *PostgresDirectory) EnsureSchema(ctx context.Context) error {
	_, err := d.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id         TEXT PRIMARY KEY,
			username   TEXT NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure users table: %w", err)
	}
	return nil
}

// CreateUser registers username under a fresh id
func (d *PostgresDirectory) CreateUser(ctx context.Context, username string) (model.UserID, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", errors.NewInvalidArgument("username", "cannot be empty")
	}

	id := uuid.NewString()
	_, err := d.db.Exec(ctx,
		`INSERT INTO users (id, username) VALUES (@id, @username)`,
		pgx.NamedArgs{"id": id, "username": username},
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if stderrors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return "", errors.NewDuplicate(constants.ResourceUser, username)
		}
		return "", errors.NewStoreFailed(errors.ErrorTypeDirectory, "create user", err)
	}

	d.logger.Info("User registered", zap.String("user_id", id), zap.String("username", username))
	return model.UserID(id), nil
}

// ResolveID maps a username onto its user id
func (d *PostgresDirectory) ResolveID(ctx context.Context, username string) (model.UserID, error) {
	var id string
	err := d.db.QueryRow(ctx, `SELECT id FROM users WHERE username = $1`, username).Scan(&id)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return "", errors.NewNotFound(constants.ResourceUser, username)
		}
		return "", errors.NewStoreFailed(errors.ErrorTypeDirectory, "resolve id", err)
	}
	return model.UserID(id), nil
}

// ResolveUsername maps a user id back onto its username
func (d *PostgresDirectory) ResolveUsername(ctx context.Context, id model.UserID) (string, error) {
	var username string
	err := d.db.QueryRow(ctx, `SELECT username FROM users WHERE id = $1`, string(id)).Scan(&username)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return "", errors.NewNotFound(constants.ResourceUser, string(id))
		}
		return "", errors.NewStoreFailed(errors.ErrorTypeDirectory, "resolve username", err)
	}
	return username, nil
}
