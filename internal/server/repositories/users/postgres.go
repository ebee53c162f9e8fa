package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/dbx"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Save inserts user or updates the row with the same id, then fills in the
// timestamps assigned by the database.
func (r *PostgresRepository) Save(ctx context.Context, user *models.User) error {
	query :=
		`INSERT INTO users (id, email, name, password_hash)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE
		 SET email = EXCLUDED.email, name = EXCLUDED.name,
		     password_hash = EXCLUDED.password_hash, updated_at = now()
		 RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		uuid.UUID(user.ID), string(user.Email), user.Name, user.PasswordHash,
	).Scan(&user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, email models.Email) (*models.User, error) {
	query :=
		`SELECT id, email, name, password_hash, created_at, updated_at FROM users
		 WHERE email = $1 AND deleted_at IS NULL`

	return r.scanOne(r.db.QueryRowContext(ctx, query, string(email)))
}

func (r *PostgresRepository) FindByID(ctx context.Context, id models.UserID) (*models.User, error) {
	query :=
		`SELECT id, email, name, password_hash, created_at, updated_at FROM users
		 WHERE id = $1 AND deleted_at IS NULL`

	return r.scanOne(r.db.QueryRowContext(ctx, query, uuid.UUID(id)))
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.User, error) {
	var (
		id    uuid.UUID
		email string
	)
	user := &models.User{}
	err := row.Scan(&id, &email, &user.Name, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	user.ID = models.UserID(id)
	user.Email = models.Email(email)
	return user, nil
}
