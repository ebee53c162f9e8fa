package users

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
	"github.com/google/go-cmp/cmp"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepository(db), mock
}

const (
	insertQ  = `(?s)^INSERT\s+INTO\s+users\s*\(id,\s*email,\s*name,\s*password_hash\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4\)\s*ON\s+CONFLICT\s*\(id\)\s+DO\s+UPDATE\s+SET\s+email\s*=\s*EXCLUDED\.email,.*updated_at\s*=\s*now\(\)\s*RETURNING\s+created_at,\s*updated_at$`
	byEmailQ = `(?s)^SELECT\s+id,\s*email,\s*name,\s*password_hash,\s*created_at,\s*updated_at\s+FROM\s+users\s+WHERE\s+email\s*=\s*\$1\s+AND\s+deleted_at\s+IS\s+NULL$`
	byIDQ    = `(?s)^SELECT\s+id,\s*email,\s*name,\s*password_hash,\s*created_at,\s*updated_at\s+FROM\s+users\s+WHERE\s+id\s*=\s*\$1\s+AND\s+deleted_at\s+IS\s+NULL$`
)

func sampleUser(t *testing.T) *models.User {
	t.Helper()
	id, err := models.NewUserID()
	require.NoError(t, err)
	return &models.User{ID: id, Email: "alice@example.com", Name: "Alice", PasswordHash: "$2a$04$hash"}
}

func userRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "email", "name", "password_hash", "created_at", "updated_at"})
}

func TestSave_Success(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	u := sampleUser(t)
	ts := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(insertQ).
		WithArgs(u.ID.String(), "alice@example.com", "Alice", "$2a$04$hash").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(ts, ts))

	require.NoError(t, repo.Save(context.Background(), u))
	assert.Equal(t, ts, u.CreatedAt)
	assert.Equal(t, ts, u.UpdatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSave_DuplicateEmail(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	u := sampleUser(t)

	mock.ExpectQuery(insertQ).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})

	err := repo.Save(context.Background(), u)
	assert.ErrorIs(t, err, common.ErrorAlreadyExists)
}

func TestSave_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(insertQ).WillReturnError(errors.New("db down"))

	err := repo.Save(context.Background(), sampleUser(t))
	require.Error(t, err)
	assert.Regexp(t, `db error: .*db down`, err.Error())
	assert.NotErrorIs(t, err, common.ErrorAlreadyExists)
}

func TestFindByEmail_Found(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	want := sampleUser(t)
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	want.CreatedAt, want.UpdatedAt = ts, ts

	mock.ExpectQuery(byEmailQ).
		WithArgs("alice@example.com").
		WillReturnRows(userRows().AddRow(want.ID.String(), "alice@example.com", "Alice", "$2a$04$hash", ts, ts))

	got, err := repo.FindByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(want, got))
}

func TestFindByEmail_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(byEmailQ).WithArgs("ghost@example.com").WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByEmail(context.Background(), "ghost@example.com")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestFindByID(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	u := sampleUser(t)
	ts := time.Now().UTC().Truncate(time.Second)

	mock.ExpectQuery(byIDQ).
		WithArgs(u.ID.String()).
		WillReturnRows(userRows().AddRow(u.ID.String(), "alice@example.com", "Alice", "", ts, ts))

	got, err := repo.FindByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Empty(t, got.PasswordHash)

	mock.ExpectQuery(byIDQ).WillReturnError(errors.New("conn reset"))
	_, err = repo.FindByID(context.Background(), u.ID)
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrorNotFound)
}
