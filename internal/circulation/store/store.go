package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"circulate/internal/circulation"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const selectTransactionColumns = `
	id, title_id, requester_id, status, hold_created_at, hold_expires_at,
	issued_at, due_at, returned_at, fine_amount, fine_paid, created_at, updated_at
`

func scanTransaction(s scanner) (*circulation.Transaction, error) {
	var tx circulation.Transaction

	var statusStr string

	if err := s.Scan(
		&tx.ID, &tx.TitleID, &tx.RequesterID, &statusStr,
		&tx.HoldCreatedAt, &tx.HoldExpiresAt,
		&tx.IssuedAt, &tx.DueAt, &tx.ReturnedAt,
		&tx.FineAmount, &tx.FinePaid,
		&tx.CreatedAt, &tx.UpdatedAt,
	); err != nil {
		return nil, err
	}

	tx.Status = circulation.Status(statusStr)

	return &tx, nil
}

func (s *Store) CreateTransaction(ctx context.Context, tx *circulation.Transaction) error {
	query := `
		INSERT INTO transactions
			(id, title_id, requester_id, status, hold_created_at, hold_expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING created_at, updated_at
	`

	err := s.db.QueryRowContext(ctx, query,
		tx.ID,
		tx.TitleID,
		tx.RequesterID,
		tx.Status,
		tx.HoldCreatedAt,
		tx.HoldExpiresAt,
	).Scan(&tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating transaction: %w", err)
	}

	return nil
}

func (s *Store) GetTransaction(ctx context.Context, id uuid.UUID) (*circulation.Transaction, error) {
	query := `SELECT ` + selectTransactionColumns + ` FROM transactions WHERE id = $1`

	tx, err := scanTransaction(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, circulation.ErrNotFound
		}

		return nil, fmt.Errorf("getting transaction: %w", err)
	}

	return tx, nil
}

func (s *Store) ListByRequester(ctx context.Context, requesterID uuid.UUID) ([]*circulation.Transaction, error) {
	query := `SELECT ` + selectTransactionColumns + `
		FROM transactions
		WHERE requester_id = $1
		ORDER BY hold_created_at DESC`

	return s.list(ctx, query, requesterID)
}

func (s *Store) CountActive(ctx context.Context, requesterID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*) FROM transactions
		WHERE requester_id = $1 AND status IN ('pending', 'issued')
	`

	var n int
	if err := s.db.QueryRowContext(ctx, query, requesterID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting active transactions: %w", err)
	}

	return n, nil
}

// Transition is the state-machine guard: a compare-and-set on status. When
// the row exists but the status no longer matches `from`, the caller lost
// the race and gets ErrWrongState.
func (s *Store) Transition(ctx context.Context, id uuid.UUID, from circulation.Status, stamp circulation.Stamp) (*circulation.Transaction, error) {
	query := `
		UPDATE transactions
		SET status = $3,
		    issued_at = COALESCE($4, issued_at),
		    due_at = COALESCE($5, due_at),
		    returned_at = COALESCE($6, returned_at),
		    fine_amount = COALESCE($7, fine_amount),
		    updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING ` + selectTransactionColumns

	tx, err := scanTransaction(s.db.QueryRowContext(ctx, query,
		id,
		from,
		stamp.Status,
		stamp.IssuedAt,
		stamp.DueAt,
		stamp.ReturnedAt,
		stamp.FineAmount,
	))
	if err == nil {
		return tx, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transitioning transaction: %w", err)
	}

	if _, err := s.GetTransaction(ctx, id); err != nil {
		return nil, err
	}

	return nil, circulation.ErrWrongState
}

func (s *Store) ListExpiredPending(ctx context.Context, now time.Time) ([]*circulation.Transaction, error) {
	query := `SELECT ` + selectTransactionColumns + `
		FROM transactions
		WHERE status = 'pending' AND hold_expires_at <= $1
		ORDER BY hold_expires_at`

	return s.list(ctx, query, now)
}

func (s *Store) ListExpiringPending(ctx context.Context, now time.Time, window time.Duration) ([]*circulation.Transaction, error) {
	query := `SELECT ` + selectTransactionColumns + `
		FROM transactions
		WHERE status = 'pending' AND hold_expires_at > $1 AND hold_expires_at <= $2
		ORDER BY hold_expires_at`

	return s.list(ctx, query, now, now.Add(window))
}

func (s *Store) AverageLoanDuration(ctx context.Context, titleID uuid.UUID) (time.Duration, error) {
	query := `
		SELECT COALESCE(EXTRACT(EPOCH FROM AVG(returned_at - issued_at)), 0)
		FROM transactions
		WHERE title_id = $1 AND status = 'returned' AND issued_at IS NOT NULL
	`

	var seconds float64
	if err := s.db.QueryRowContext(ctx, query, titleID).Scan(&seconds); err != nil {
		return 0, fmt.Errorf("averaging loan duration: %w", err)
	}

	return time.Duration(seconds * float64(time.Second)), nil
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]*circulation.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	defer rows.Close()

	var txs []*circulation.Transaction

	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}

		txs = append(txs, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transaction rows: %w", err)
	}

	return txs, nil
}
