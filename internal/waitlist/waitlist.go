package waitlist

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrAlreadyWaitlisted rejects a duplicate enqueue of the same
	// requester for the same title.
	ErrAlreadyWaitlisted = errors.New("requester already waitlisted for this title")
	// ErrEmpty means the per-title queue has no entries to promote.
	ErrEmpty = errors.New("waitlist is empty")
	// ErrNotWaitlisted means the requester has no entry for the title.
	ErrNotWaitlisted = errors.New("requester not waitlisted for this title")
)

// Entry is one queued requester. Ordering is strict FIFO by EnqueuedAt per
// title; there are no priority classes.
type Entry struct {
	TitleID     uuid.UUID
	RequesterID uuid.UUID
	EnqueuedAt  time.Time
}
