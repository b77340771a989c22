package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"circulate/internal/copypool"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateTitle(ctx context.Context, t *copypool.Title) error {
	query := `
		INSERT INTO titles (id, total_copies, available_copies, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING created_at, updated_at
	`

	err := s.db.QueryRowContext(ctx, query,
		t.ID,
		t.TotalCopies,
		t.AvailableCopies,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating title: %w", err)
	}

	return nil
}

func (s *Store) GetTitle(ctx context.Context, id uuid.UUID) (*copypool.Title, error) {
	query := `
		SELECT id, total_copies, available_copies, created_at, updated_at
		FROM titles
		WHERE id = $1
	`

	var t copypool.Title

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&t.ID, &t.TotalCopies, &t.AvailableCopies, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, copypool.ErrNotFound
		}

		return nil, fmt.Errorf("getting title: %w", err)
	}

	return &t, nil
}

// ReserveCopy is a single conditional decrement. The row-level guard means
// racing callers for the last copy see exactly one success, without any lock
// shared across titles.
func (s *Store) ReserveCopy(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE titles
		SET available_copies = available_copies - 1, updated_at = NOW()
		WHERE id = $1 AND available_copies > 0
	`

	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("reserving copy: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reserving copy: %w", err)
	}

	if n > 0 {
		return true, nil
	}

	// Exhausted or unknown title; tell them apart.
	if _, err := s.GetTitle(ctx, id); err != nil {
		return false, err
	}

	return false, nil
}

func (s *Store) ReleaseCopy(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE titles
		SET available_copies = LEAST(available_copies + 1, total_copies), updated_at = NOW()
		WHERE id = $1
	`

	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("releasing copy: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("releasing copy: %w", err)
	}

	if n == 0 {
		return copypool.ErrNotFound
	}

	return nil
}

// AdjustTotal shifts the stock. Growth makes the new copies available;
// shrinkage clamps available_copies down so it never exceeds the new total.
func (s *Store) AdjustTotal(ctx context.Context, id uuid.UUID, delta int) (*copypool.Title, error) {
	query := `
		UPDATE titles
		SET total_copies = GREATEST(total_copies + $2, 0),
		    available_copies = CASE
		        WHEN $2 > 0 THEN available_copies + $2
		        ELSE LEAST(available_copies, GREATEST(total_copies + $2, 0))
		    END,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING id, total_copies, available_copies, created_at, updated_at
	`

	var t copypool.Title

	err := s.db.QueryRowContext(ctx, query, id, delta).Scan(
		&t.ID, &t.TotalCopies, &t.AvailableCopies, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, copypool.ErrNotFound
		}

		return nil, fmt.Errorf("adjusting total: %w", err)
	}

	return &t, nil
}
