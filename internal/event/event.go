package event

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the lifecycle events the engine emits for the external
// notification dispatcher.
type Kind string

const (
	KindHoldCreated          Kind = "hold_created"
	KindPromotedFromWaitlist Kind = "promoted_from_waitlist"
	KindHoldExpiringSoon     Kind = "hold_expiring_soon"
	KindHoldExpired          Kind = "hold_expired"
	KindFineAssessed         Kind = "fine_assessed"
)

// Event is one lifecycle occurrence. FineAmount is set only for
// fine_assessed; ExpiresAt only where an expiry is relevant.
type Event struct {
	Kind          Kind
	TransactionID uuid.UUID
	TitleID       uuid.UUID
	RequesterID   uuid.UUID
	FineAmount    int64
	ExpiresAt     *time.Time
	OccurredAt    time.Time
}

// Handler receives published events. Handlers must not block; slow consumers
// should hand off to their own queue.
type Handler func(Event)

// Bus is a minimal in-process publish/subscribe fan-out. Listeners subscribe;
// nobody polls shared state.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers = append(b.handlers, h)
}

func (b *Bus) Publish(e Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}

	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(e)
	}
}

// LogHandler returns a subscriber that records every event through slog.
// It stands in for the external notification dispatcher.
func LogHandler(logger *slog.Logger) Handler {
	return func(e Event) {
		logger.Info("lifecycle event",
			"kind", e.Kind,
			"transaction_id", e.TransactionID,
			"title_id", e.TitleID,
			"requester_id", e.RequesterID,
			"fine_amount", e.FineAmount,
		)
	}
}
