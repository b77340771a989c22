package copypool

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("title not found")

// Title tracks the copy counters for one catalog title. All metadata lives
// in the catalog service; the engine only owns the counts.
// Invariant: 0 <= AvailableCopies <= TotalCopies.
type Title struct {
	ID              uuid.UUID
	TotalCopies     int
	AvailableCopies int
	CreatedAt       time.Time
	UpdatedAt       *time.Time
}
