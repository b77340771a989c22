package waitlist

import (
	"context"

	"github.com/google/uuid"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=waitlist
type Repository interface {
	// Append adds the requester to the tail of the title's queue.
	// Returns ErrAlreadyWaitlisted when an entry for (title, requester)
	// already exists.
	Append(ctx context.Context, e *Entry) error

	// PopHead removes and returns the oldest entry for the title, or
	// ErrEmpty. Concurrent pops never return the same entry twice.
	PopHead(ctx context.Context, titleID uuid.UUID) (*Entry, error)

	// Remove deletes the requester's entry; no-op when absent.
	Remove(ctx context.Context, titleID, requesterID uuid.UUID) error

	// Position returns the 1-based depth of the requester in the title's
	// queue, or ErrNotWaitlisted.
	Position(ctx context.Context, titleID, requesterID uuid.UUID) (int, error)

	// Depth returns the number of queued requesters for the title.
	Depth(ctx context.Context, titleID uuid.UUID) (int, error)
}

// Queue is the per-title FIFO of requesters waiting for a copy to free up.
type Queue struct {
	repo Repository
}

func NewQueue(repo Repository) *Queue {
	return &Queue{repo: repo}
}

// Enqueue appends the requester and returns their 1-based position.
func (q *Queue) Enqueue(ctx context.Context, titleID, requesterID uuid.UUID) (int, error) {
	e := &Entry{TitleID: titleID, RequesterID: requesterID}
	if err := q.repo.Append(ctx, e); err != nil {
		return 0, err
	}

	return q.repo.Position(ctx, titleID, requesterID)
}

// PopNext removes and returns the head of the title's queue.
func (q *Queue) PopNext(ctx context.Context, titleID uuid.UUID) (*Entry, error) {
	return q.repo.PopHead(ctx, titleID)
}

// Cancel removes a specific requester's entry; no-op if absent.
func (q *Queue) Cancel(ctx context.Context, titleID, requesterID uuid.UUID) error {
	return q.repo.Remove(ctx, titleID, requesterID)
}

// Position reports the requester's 1-based place in line.
func (q *Queue) Position(ctx context.Context, titleID, requesterID uuid.UUID) (int, error) {
	return q.repo.Position(ctx, titleID, requesterID)
}

// Depth reports how many requesters are queued for the title.
func (q *Queue) Depth(ctx context.Context, titleID uuid.UUID) (int, error) {
	return q.repo.Depth(ctx, titleID)
}
