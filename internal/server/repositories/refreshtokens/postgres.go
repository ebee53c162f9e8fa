package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/dbx"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresRepository keeps refresh tokens in the refresh_tokens table.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Save(ctx context.Context, token *models.RefreshToken) error {
	return insertToken(ctx, r.db, token)
}

func insertToken(ctx context.Context, db dbx.DBTX, token *models.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (jti, user_id, token, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`
	err := db.QueryRowContext(ctx, query,
		token.JTI, uuid.UUID(token.UserID), token.Token, token.ExpiresAt.UTC(),
	).Scan(&token.CreatedAt, &token.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FindByJTI(ctx context.Context, jti uuid.UUID) (*models.RefreshToken, error) {
	query := `
		SELECT jti, user_id, token, expires_at, created_at, updated_at
		FROM refresh_tokens
		WHERE jti = $1
	`
	var userID uuid.UUID
	rt := &models.RefreshToken{}
	err := r.db.QueryRowContext(ctx, query, jti).
		Scan(&rt.JTI, &userID, &rt.Token, &rt.ExpiresAt, &rt.CreatedAt, &rt.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	rt.UserID = models.UserID(userID)
	return rt, nil
}

func (r *PostgresRepository) DeleteByJTI(ctx context.Context, jti uuid.UUID) (bool, error) {
	return deleteToken(ctx, r.db, jti)
}

func deleteToken(ctx context.Context, db dbx.DBTX, jti uuid.UUID) (bool, error) {
	query := `
		DELETE FROM refresh_tokens
		WHERE jti = $1
	`
	res, err := db.ExecContext(ctx, query, jti)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}

// Rotate runs the delete and the insert in one transaction when the
// repository holds a *sql.DB. A handle that is already a transaction is
// used as is.
func (r *PostgresRepository) Rotate(ctx context.Context, oldJTI uuid.UUID, next *models.RefreshToken) (bool, error) {
	var removed bool
	rotate := func(ctx context.Context, tx dbx.DBTX) error {
		ok, err := deleteToken(ctx, tx, oldJTI)
		if err != nil || !ok {
			return err
		}
		if err := insertToken(ctx, tx, next); err != nil {
			return err
		}
		removed = true
		return nil
	}

	var err error
	if db, ok := r.db.(*sql.DB); ok {
		err = dbx.WithTx(ctx, db, nil, rotate)
	} else {
		err = rotate(ctx, r.db)
	}
	if err != nil {
		return false, err
	}
	return removed, nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		DELETE FROM refresh_tokens
		WHERE expires_at <= $1
	`
	res, err := r.db.ExecContext(ctx, query, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
