package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"circulate/internal/waitlist"
)

const uniqueViolation = "23505"

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, e *waitlist.Entry) error {
	query := `
		INSERT INTO waitlist (title_id, requester_id, enqueued_at)
		VALUES ($1, $2, NOW())
		RETURNING enqueued_at
	`

	err := s.db.QueryRowContext(ctx, query, e.TitleID, e.RequesterID).Scan(&e.EnqueuedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return waitlist.ErrAlreadyWaitlisted
		}

		return fmt.Errorf("appending waitlist entry: %w", err)
	}

	return nil
}

// PopHead atomically removes and returns the oldest entry. SKIP LOCKED keeps
// concurrent promoters from handing the same entry out twice.
func (s *Store) PopHead(ctx context.Context, titleID uuid.UUID) (*waitlist.Entry, error) {
	query := `
		DELETE FROM waitlist
		WHERE id = (
			SELECT id FROM waitlist
			WHERE title_id = $1
			ORDER BY enqueued_at, id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING title_id, requester_id, enqueued_at
	`

	var e waitlist.Entry

	err := s.db.QueryRowContext(ctx, query, titleID).Scan(&e.TitleID, &e.RequesterID, &e.EnqueuedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, waitlist.ErrEmpty
		}

		return nil, fmt.Errorf("popping waitlist head: %w", err)
	}

	return &e, nil
}

func (s *Store) Remove(ctx context.Context, titleID, requesterID uuid.UUID) error {
	query := `DELETE FROM waitlist WHERE title_id = $1 AND requester_id = $2`

	if _, err := s.db.ExecContext(ctx, query, titleID, requesterID); err != nil {
		return fmt.Errorf("removing waitlist entry: %w", err)
	}

	return nil
}

func (s *Store) Position(ctx context.Context, titleID, requesterID uuid.UUID) (int, error) {
	query := `
		SELECT pos FROM (
			SELECT requester_id,
			       ROW_NUMBER() OVER (ORDER BY enqueued_at, id) AS pos
			FROM waitlist
			WHERE title_id = $1
		) ranked
		WHERE requester_id = $2
	`

	var pos int

	err := s.db.QueryRowContext(ctx, query, titleID, requesterID).Scan(&pos)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, waitlist.ErrNotWaitlisted
		}

		return 0, fmt.Errorf("getting waitlist position: %w", err)
	}

	return pos, nil
}

func (s *Store) Depth(ctx context.Context, titleID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM waitlist WHERE title_id = $1`

	var n int
	if err := s.db.QueryRowContext(ctx, query, titleID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting waitlist entries: %w", err)
	}

	return n, nil
}
