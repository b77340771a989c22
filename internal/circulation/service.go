package circulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"circulate/internal/copypool"
	"circulate/internal/event"
	"circulate/internal/fine"
	"circulate/internal/token"
	"circulate/internal/waitlist"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=circulation

// Stamp carries the fields a state transition writes alongside the new
// status. Nil fields are left untouched.
type Stamp struct {
	Status     Status
	IssuedAt   *time.Time
	DueAt      *time.Time
	ReturnedAt *time.Time
	FineAmount *int64
}

type Repository interface {
	CreateTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error)
	ListByRequester(ctx context.Context, requesterID uuid.UUID) ([]*Transaction, error)
	CountActive(ctx context.Context, requesterID uuid.UUID) (int, error)

	// Transition atomically compare-and-sets the transaction's status from
	// `from` to stamp.Status. Returns ErrWrongState when the guard fails,
	// so concurrent callers racing for the same transition see exactly one
	// winner.
	Transition(ctx context.Context, id uuid.UUID, from Status, stamp Stamp) (*Transaction, error)

	ListExpiredPending(ctx context.Context, now time.Time) ([]*Transaction, error)
	ListExpiringPending(ctx context.Context, now time.Time, window time.Duration) ([]*Transaction, error)

	// AverageLoanDuration reports the mean issued-to-returned span over the
	// title's completed loans; zero when the title has no history.
	AverageLoanDuration(ctx context.Context, titleID uuid.UUID) (time.Duration, error)
}

// Params wires the orchestrator's collaborators and policy constants.
type Params struct {
	Repo       Repository
	Pool       *copypool.Service
	Waitlist   *waitlist.Queue
	Tokens     *token.Issuer
	Fines      *fine.Calculator
	Events     *event.Bus
	HoldTTL    time.Duration
	LoanPeriod time.Duration
	// MaxActivePerRequester caps live (pending+issued) transactions per
	// requester; zero disables the cap.
	MaxActivePerRequester int
	Logger                *slog.Logger
	Now                   func() time.Time
}

// Service is the lifecycle orchestrator: the only write path into the
// borrow/pickup/return/cancel state machine. Operations on different
// transactions run concurrently; same-transaction writes serialize on the
// repository's status compare-and-set.
type Service struct {
	repo      Repository
	pool      *copypool.Service
	queue     *waitlist.Queue
	tokens    *token.Issuer
	fines     *fine.Calculator
	events    *event.Bus
	holdTTL   time.Duration
	loan      time.Duration
	maxActive int
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(p Params) *Service {
	now := p.Now
	if now == nil {
		now = time.Now
	}

	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		repo:      p.Repo,
		pool:      p.Pool,
		queue:     p.Waitlist,
		tokens:    p.Tokens,
		fines:     p.Fines,
		events:    p.Events,
		holdTTL:   p.HoldTTL,
		loan:      p.LoanPeriod,
		maxActive: p.MaxActivePerRequester,
		logger:    logger,
		now:       now,
	}
}

// RequestBorrow attempts to reserve a copy for the requester. On success it
// returns a pending hold with a pickup token; on exhaustion it enqueues the
// requester and returns their queue position with a best-effort wait
// estimate. Exhaustion is a normal branch, not an error.
func (s *Service) RequestBorrow(ctx context.Context, titleID, requesterID uuid.UUID) (*BorrowResult, error) {
	if _, err := s.pool.Get(ctx, titleID); err != nil {
		return nil, err
	}

	if s.maxActive > 0 {
		n, err := s.repo.CountActive(ctx, requesterID)
		if err != nil {
			return nil, fmt.Errorf("counting active transactions: %w", err)
		}

		if n >= s.maxActive {
			return nil, ErrBorrowLimit
		}
	}

	// An existing queue means earlier requesters are owed the next free
	// copy; don't let a fresh borrow jump the line.
	depth, err := s.queue.Depth(ctx, titleID)
	if err != nil {
		return nil, fmt.Errorf("checking waitlist depth: %w", err)
	}

	if depth == 0 {
		reserved, err := s.pool.TryReserve(ctx, titleID)
		if err != nil {
			return nil, fmt.Errorf("reserving copy: %w", err)
		}

		if reserved {
			hold, err := s.createHold(ctx, titleID, requesterID, event.KindHoldCreated)
			if err != nil {
				s.releaseCopy(ctx, titleID)
				return nil, err
			}

			return &BorrowResult{Hold: hold}, nil
		}
	}

	position, err := s.queue.Enqueue(ctx, titleID, requesterID)
	if err != nil {
		return nil, err
	}

	return &BorrowResult{Waitlist: &WaitlistTicket{
		Position:      position,
		EstimatedWait: s.estimateWait(ctx, titleID, position),
	}}, nil
}

// ConfirmPickup validates and consumes a pickup token, moves the hold to
// issued, fixes the due date and mints the single-use return token. A token
// that lost the race against expiry surfaces ErrWrongState.
func (s *Service) ConfirmPickup(ctx context.Context, pickupToken string) (*IssueResult, error) {
	txID, err := s.tokens.Validate(ctx, pickupToken, token.PurposePickup)
	if err != nil {
		if errors.Is(err, token.ErrInvalid) {
			return nil, ErrInvalidToken
		}

		return nil, err
	}

	now := s.now()
	dueAt := now.Add(s.loan)

	// Minted before the transition: a mint failure must leave the hold
	// pending for the sweeper to recycle, never an issued loan without a
	// live return token.
	ret, err := s.tokens.IssueReturn(ctx, txID)
	if err != nil {
		return nil, fmt.Errorf("minting return token: %w", err)
	}

	tx, err := s.repo.Transition(ctx, txID, StatusPending, Stamp{
		Status:   StatusIssued,
		IssuedAt: &now,
		DueAt:    &dueAt,
	})
	if err != nil {
		return nil, err
	}

	return &IssueResult{
		TransactionID: tx.ID,
		IssuedAt:      now,
		DueAt:         dueAt,
		ReturnToken:   ret.Token,
	}, nil
}

// Return validates and consumes a return token, assesses the fine, stamps
// the transaction returned and hands the copy to the waitlist or back to the
// pool.
func (s *Service) Return(ctx context.Context, returnToken string) (*ReturnResult, error) {
	txID, err := s.tokens.Validate(ctx, returnToken, token.PurposeReturn)
	if err != nil {
		if errors.Is(err, token.ErrInvalid) {
			return nil, ErrInvalidToken
		}

		return nil, err
	}

	tx, err := s.repo.GetTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}

	if tx.Status != StatusIssued || tx.DueAt == nil {
		return nil, ErrWrongState
	}

	now := s.now()
	amount := s.fines.Amount(*tx.DueAt, now)

	updated, err := s.repo.Transition(ctx, txID, StatusIssued, Stamp{
		Status:     StatusReturned,
		ReturnedAt: &now,
		FineAmount: &amount,
	})
	if err != nil {
		return nil, err
	}

	s.releaseCopy(ctx, updated.TitleID)
	s.promoteNext(ctx, updated.TitleID)

	if amount > 0 {
		s.events.Publish(event.Event{
			Kind:          event.KindFineAssessed,
			TransactionID: updated.ID,
			TitleID:       updated.TitleID,
			RequesterID:   updated.RequesterID,
			FineAmount:    amount,
		})
	}

	return &ReturnResult{
		TransactionID: updated.ID,
		ReturnedAt:    now,
		FineAmount:    amount,
	}, nil
}

// CancelHold lets the requester give up a pending hold. The copy is released
// and the next waitlisted requester, if any, is promoted immediately.
// Cancelling an already-cancelled hold is a no-op success.
func (s *Service) CancelHold(ctx context.Context, txID, requesterID uuid.UUID) error {
	tx, err := s.repo.GetTransaction(ctx, txID)
	if err != nil {
		return err
	}

	if tx.RequesterID != requesterID {
		return ErrForbidden
	}

	if tx.Status == StatusCancelled {
		return nil
	}

	updated, err := s.repo.Transition(ctx, txID, StatusPending, Stamp{Status: StatusCancelled})
	if err != nil {
		return err
	}

	s.releaseCopy(ctx, updated.TitleID)
	s.promoteNext(ctx, updated.TitleID)

	return nil
}

// LeaveWaitlist removes the requester's queue entry for the title; no-op
// when they are not queued.
func (s *Service) LeaveWaitlist(ctx context.Context, titleID, requesterID uuid.UUID) error {
	return s.queue.Cancel(ctx, titleID, requesterID)
}

// WaitlistPosition reports the requester's 1-based place in the title's
// queue.
func (s *Service) WaitlistPosition(ctx context.Context, titleID, requesterID uuid.UUID) (int, error) {
	return s.queue.Position(ctx, titleID, requesterID)
}

// Expire reclaims an unclaimed hold. Only the sweeper calls this; a hold
// that was confirmed first loses the race and comes back as ErrWrongState.
func (s *Service) Expire(ctx context.Context, txID uuid.UUID) error {
	tx, err := s.repo.GetTransaction(ctx, txID)
	if err != nil {
		return err
	}

	if tx.Status != StatusPending {
		return ErrWrongState
	}

	if tx.HoldExpiresAt == nil || tx.HoldExpiresAt.After(s.now()) {
		return ErrWrongState
	}

	updated, err := s.repo.Transition(ctx, txID, StatusPending, Stamp{Status: StatusExpired})
	if err != nil {
		return err
	}

	s.releaseCopy(ctx, updated.TitleID)
	s.promoteNext(ctx, updated.TitleID)

	s.events.Publish(event.Event{
		Kind:          event.KindHoldExpired,
		TransactionID: updated.ID,
		TitleID:       updated.TitleID,
		RequesterID:   updated.RequesterID,
	})

	return nil
}

// ExpireOverdue runs one sweep cycle: every pending transaction whose hold
// lapsed is expired. Races lost to concurrent pickups are swallowed; the
// next cycle re-scans idempotently.
func (s *Service) ExpireOverdue(ctx context.Context) (int, error) {
	overdue, err := s.repo.ListExpiredPending(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("listing expired holds: %w", err)
	}

	expired := 0

	for _, tx := range overdue {
		if err := s.Expire(ctx, tx.ID); err != nil {
			if errors.Is(err, ErrWrongState) {
				continue
			}

			return expired, fmt.Errorf("expiring transaction %s: %w", tx.ID, err)
		}

		expired++
	}

	return expired, nil
}

// ExpiringSoon lists pending holds that lapse within the window, for the
// hold_expiring_soon notification.
func (s *Service) ExpiringSoon(ctx context.Context, window time.Duration) ([]*Transaction, error) {
	return s.repo.ListExpiringPending(ctx, s.now(), window)
}

// NotifyExpiring publishes a hold_expiring_soon event for the transaction.
func (s *Service) NotifyExpiring(tx *Transaction) {
	s.events.Publish(event.Event{
		Kind:          event.KindHoldExpiringSoon,
		TransactionID: tx.ID,
		TitleID:       tx.TitleID,
		RequesterID:   tx.RequesterID,
		ExpiresAt:     tx.HoldExpiresAt,
	})
}

// PreviewFine computes the fine owed if the book were settled now. Returned
// transactions report their stored fine; holds that never issued owe
// nothing.
func (s *Service) PreviewFine(ctx context.Context, txID uuid.UUID) (int64, error) {
	tx, err := s.repo.GetTransaction(ctx, txID)
	if err != nil {
		return 0, err
	}

	switch tx.Status {
	case StatusIssued:
		return s.fines.Amount(*tx.DueAt, s.now()), nil
	case StatusReturned:
		return tx.FineAmount, nil
	default:
		return 0, nil
	}
}

// Get returns a single transaction.
func (s *Service) Get(ctx context.Context, txID uuid.UUID) (*Transaction, error) {
	return s.repo.GetTransaction(ctx, txID)
}

// History lists the requester's transactions, newest first.
func (s *Service) History(ctx context.Context, requesterID uuid.UUID) ([]*Transaction, error) {
	return s.repo.ListByRequester(ctx, requesterID)
}

// createHold records a pending transaction for an already-reserved copy and
// mints its pickup token. The caller owns releasing the copy on error.
func (s *Service) createHold(ctx context.Context, titleID, requesterID uuid.UUID, kind event.Kind) (*Hold, error) {
	now := s.now()
	expiresAt := now.Add(s.holdTTL)

	tx := &Transaction{
		ID:            uuid.New(),
		TitleID:       titleID,
		RequesterID:   requesterID,
		Status:        StatusPending,
		HoldCreatedAt: now,
		HoldExpiresAt: &expiresAt,
	}
	if err := s.repo.CreateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("creating transaction: %w", err)
	}

	issued, err := s.tokens.IssuePickup(ctx, tx.ID)
	if err != nil {
		// The row must not stay pending: the sweeper would expire it later
		// and release the copy a second time.
		if _, terr := s.repo.Transition(ctx, tx.ID, StatusPending, Stamp{Status: StatusCancelled}); terr != nil {
			s.logger.Error("cancelling orphaned hold failed", "transaction_id", tx.ID, "error", terr)
		}

		return nil, fmt.Errorf("minting pickup token: %w", err)
	}

	s.events.Publish(event.Event{
		Kind:          kind,
		TransactionID: tx.ID,
		TitleID:       titleID,
		RequesterID:   requesterID,
		ExpiresAt:     &expiresAt,
	})

	return &Hold{
		TransactionID: tx.ID,
		PickupToken:   issued.Token,
		ExpiresAt:     expiresAt,
	}, nil
}

// promoteNext hands a freed copy to the head of the title's waitlist. The
// copy is reserved before the head is popped, so a promoted requester can
// never lose it to a racing borrow. Failures are logged, not propagated: the
// triggering operation already succeeded.
func (s *Service) promoteNext(ctx context.Context, titleID uuid.UUID) {
	reserved, err := s.pool.TryReserve(ctx, titleID)
	if err != nil {
		s.logger.Error("waitlist promotion: reserve failed", "title_id", titleID, "error", err)
		return
	}

	if !reserved {
		return
	}

	entry, err := s.queue.PopNext(ctx, titleID)
	if err != nil {
		if !errors.Is(err, waitlist.ErrEmpty) {
			s.logger.Error("waitlist promotion: pop failed", "title_id", titleID, "error", err)
		}

		s.releaseCopy(ctx, titleID)

		return
	}

	if _, err := s.createHold(ctx, titleID, entry.RequesterID, event.KindPromotedFromWaitlist); err != nil {
		s.logger.Error("waitlist promotion: hold creation failed",
			"title_id", titleID, "requester_id", entry.RequesterID, "error", err)
		s.releaseCopy(ctx, titleID)

		// The pop already removed the entry; put the requester back in
		// line rather than dropping them. They land at the tail.
		if _, rerr := s.queue.Enqueue(ctx, titleID, entry.RequesterID); rerr != nil {
			s.logger.Error("waitlist promotion: re-enqueue failed",
				"title_id", titleID, "requester_id", entry.RequesterID, "error", rerr)
		}
	}
}

func (s *Service) releaseCopy(ctx context.Context, titleID uuid.UUID) {
	if err := s.pool.Release(ctx, titleID); err != nil {
		s.logger.Error("releasing copy failed", "title_id", titleID, "error", err)
	}
}

// estimateWait is a best-effort heuristic: queue position times the title's
// average completed loan duration, falling back to the loan period when the
// title has no history. Not a guarantee.
func (s *Service) estimateWait(ctx context.Context, titleID uuid.UUID, position int) time.Duration {
	avg, err := s.repo.AverageLoanDuration(ctx, titleID)
	if err != nil || avg <= 0 {
		avg = s.loan
	}

	return time.Duration(position) * avg
}
