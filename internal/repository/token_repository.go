package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/deptconnect/deptconnect-api/internal/models"
)

// TokenRepository persists one-time password tokens.
type TokenRepository struct {
	db *sqlx.DB
}

// NewTokenRepository creates the repository.
func NewTokenRepository(db *sqlx.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Create inserts a new OTP row.
func (r *TokenRepository) Create(ctx context.Context, token *models.OneTimeToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO one_time_tokens (id, user_id, token_hash, expires_at, used, created_at)
VALUES (:id, :user_id, :token_hash, :expires_at, :used, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("create one-time token: %w", err)
	}
	return nil
}

// FindLatestByUser returns the newest unexpired token row for a user.
// Expired rows are filtered here so a row swept by the store's TTL
// machinery and one merely past its deadline look identical to callers.
func (r *TokenRepository) FindLatestByUser(ctx context.Context, userID string) (*models.OneTimeToken, error) {
	const query = `SELECT id, user_id, token_hash, expires_at, used, created_at
FROM one_time_tokens WHERE user_id = $1 AND expires_at > NOW()
ORDER BY created_at DESC LIMIT 1`
	var token models.OneTimeToken
	if err := r.db.GetContext(ctx, &token, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find one-time token: %w", err)
	}
	return &token, nil
}

// MarkUsed flips the used flag with a compare-and-set so two racing
// verifications cannot both succeed. Returns sql.ErrNoRows when another
// writer already consumed the token.
func (r *TokenRepository) MarkUsed(ctx context.Context, id string) error {
	const query = `UPDATE one_time_tokens SET used = TRUE WHERE id = $1 AND used = FALSE`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("mark one-time token used: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark one-time token used: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// InvalidatePending removes unused tokens for a user so at most one OTP is
// live at a time.
func (r *TokenRepository) InvalidatePending(ctx context.Context, userID string) error {
	const query = `DELETE FROM one_time_tokens WHERE user_id = $1 AND used = FALSE`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("invalidate pending tokens: %w", err)
	}
	return nil
}
