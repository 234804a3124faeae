package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deptconnect/deptconnect-api/internal/models"
)

func TestCreateOneTimeToken(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	mock.ExpectExec("INSERT INTO one_time_tokens").WillReturnResult(sqlmock.NewResult(1, 1))

	token := &models.OneTimeToken{UserID: "u1", TokenHash: "hash", ExpiresAt: time.Now().Add(15 * time.Minute)}
	err := repo.Create(context.Background(), token)
	require.NoError(t, err)
	assert.NotEmpty(t, token.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindLatestByUserFiltersExpired(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM one_time_tokens WHERE user_id = \\$1 AND expires_at > NOW\\(\\)").
		WithArgs("u1").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindLatestByUser(context.Background(), "u1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkUsedCompareAndSet(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE one_time_tokens SET used = TRUE WHERE id = $1 AND used = FALSE")).
		WithArgs("t1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkUsed(context.Background(), "t1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkUsedLosesRace(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE one_time_tokens SET used = TRUE WHERE id = $1 AND used = FALSE")).
		WithArgs("t1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkUsed(context.Background(), "t1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvalidatePending(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM one_time_tokens WHERE user_id = $1 AND used = FALSE")).
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := repo.InvalidatePending(context.Background(), "u1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
