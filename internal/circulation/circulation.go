package circulation

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a borrow transaction.
type Status string

const (
	// StatusPending means a copy is reserved and awaits the pickup scan.
	StatusPending Status = "pending"
	// StatusIssued means the copy was physically handed over and a due date is fixed.
	StatusIssued Status = "issued"
	// StatusReturned is terminal: the copy came back.
	StatusReturned Status = "returned"
	// StatusExpired is terminal: the hold lapsed unclaimed.
	StatusExpired Status = "expired"
	// StatusCancelled is terminal: the requester gave up the hold.
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	return s == StatusReturned || s == StatusExpired || s == StatusCancelled
}

var (
	ErrNotFound     = errors.New("transaction not found")
	ErrInvalidToken = errors.New("invalid token")
	ErrWrongState   = errors.New("transition not allowed from current state")
	ErrBorrowLimit  = errors.New("requester reached the active borrow limit")
	ErrForbidden    = errors.New("requester does not own this transaction")
)

// Transaction is one borrow attempt's lifecycle record. It is never deleted,
// only stamped into a terminal status so fines and history stay queryable.
type Transaction struct {
	ID            uuid.UUID
	TitleID       uuid.UUID
	RequesterID   uuid.UUID
	Status        Status
	HoldCreatedAt time.Time
	HoldExpiresAt *time.Time
	IssuedAt      *time.Time
	DueAt         *time.Time
	ReturnedAt    *time.Time
	FineAmount    int64 // cents
	FinePaid      bool
	CreatedAt     time.Time
	UpdatedAt     *time.Time
}

// Hold is the successful branch of a borrow request.
type Hold struct {
	TransactionID uuid.UUID
	PickupToken   string
	ExpiresAt     time.Time
}

// WaitlistTicket is the exhausted branch of a borrow request: the requester
// was enqueued instead of erroring.
type WaitlistTicket struct {
	Position      int
	EstimatedWait time.Duration
}

// BorrowResult carries exactly one of Hold or Waitlist.
type BorrowResult struct {
	Hold     *Hold
	Waitlist *WaitlistTicket
}

// IssueResult is returned by ConfirmPickup.
type IssueResult struct {
	TransactionID uuid.UUID
	IssuedAt      time.Time
	DueAt         time.Time
	ReturnToken   string
}

// ReturnResult is returned by Return.
type ReturnResult struct {
	TransactionID uuid.UUID
	ReturnedAt    time.Time
	FineAmount    int64
}
