package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"circulate/internal/token"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Record(ctx context.Context, jti, transactionID uuid.UUID, purpose token.Purpose, expiresAt *time.Time) error {
	query := `
		INSERT INTO tokens (jti, transaction_id, purpose, expires_at, issued_at)
		VALUES ($1, $2, $3, $4, NOW())
	`

	if _, err := s.db.ExecContext(ctx, query, jti, transactionID, purpose, expiresAt); err != nil {
		return fmt.Errorf("recording token: %w", err)
	}

	return nil
}

// Consume marks the token used in the same statement that checks it is still
// usable. At most one caller ever gets the transaction id back for a jti;
// a second scan of the same token finds consumed_at set and fails.
func (s *Store) Consume(ctx context.Context, jti uuid.UUID, purpose token.Purpose, now time.Time) (uuid.UUID, error) {
	query := `
		UPDATE tokens
		SET consumed_at = $3
		WHERE jti = $1
		  AND purpose = $2
		  AND consumed_at IS NULL
		  AND (expires_at IS NULL OR expires_at > $3)
		RETURNING transaction_id
	`

	var txID uuid.UUID

	err := s.db.QueryRowContext(ctx, query, jti, purpose, now).Scan(&txID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, token.ErrInvalid
		}

		return uuid.Nil, fmt.Errorf("consuming token: %w", err)
	}

	return txID, nil
}
