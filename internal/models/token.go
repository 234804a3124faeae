package models

import "time"

// OneTimeToken is a persisted OTP record. Only the bcrypt hash of the code
// is stored; the expires_at column carries a TTL index so the store sweeps
// expired rows on its own schedule.
type OneTimeToken struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	TokenHash string    `db:"token_hash" json:"-"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	Used      bool      `db:"used" json:"used"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
