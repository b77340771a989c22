package circulation_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"circulate/internal/circulation"
	"circulate/internal/copypool"
	"circulate/internal/event"
	"circulate/internal/fine"
	"circulate/internal/memstore"
	"circulate/internal/token"
	"circulate/internal/waitlist"
)

const (
	testHoldTTL   = 24 * time.Hour
	testLoan      = 14 * 24 * time.Hour
	testDailyRate = 500
)

// fakeClock lets tests move the engine's notion of now.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.t = c.t.Add(d)
}

type eventCollector struct {
	mu     sync.Mutex
	events []event.Event
}

func (c *eventCollector) handle(e event.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.events = append(c.events, e)
}

func (c *eventCollector) kinds() []event.Kind {
	c.mu.Lock()
	defer c.mu.Unlock()

	kinds := make([]event.Kind, len(c.events))
	for i, e := range c.events {
		kinds[i] = e.Kind
	}

	return kinds
}

// flakyTokenStore wraps a token.Store and fails the next N Record calls for
// one purpose, simulating the token backend going away mid-operation.
type flakyTokenStore struct {
	inner token.Store

	mu          sync.Mutex
	failPurpose token.Purpose
	failures    int
}

func (s *flakyTokenStore) failNext(purpose token.Purpose, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failPurpose = purpose
	s.failures = n
}

func (s *flakyTokenStore) Record(ctx context.Context, jti, transactionID uuid.UUID, purpose token.Purpose, expiresAt *time.Time) error {
	s.mu.Lock()

	if s.failures > 0 && purpose == s.failPurpose {
		s.failures--
		s.mu.Unlock()

		return errors.New("token store unavailable")
	}
	s.mu.Unlock()

	return s.inner.Record(ctx, jti, transactionID, purpose, expiresAt)
}

func (s *flakyTokenStore) Consume(ctx context.Context, jti uuid.UUID, purpose token.Purpose, now time.Time) (uuid.UUID, error) {
	return s.inner.Consume(ctx, jti, purpose, now)
}

type fixture struct {
	svc    *circulation.Service
	pool   *copypool.Service
	queue  *waitlist.Queue
	clock  *fakeClock
	events *eventCollector
	tokens *flakyTokenStore
}

func newFixture(t *testing.T, maxActive int) *fixture {
	t.Helper()

	store := memstore.New()
	clock := &fakeClock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	collector := &eventCollector{}

	bus := event.NewBus()
	bus.Subscribe(collector.handle)

	pool := copypool.NewService(store)
	queue := waitlist.NewQueue(store)
	tokens := &flakyTokenStore{inner: store}

	svc := circulation.NewService(circulation.Params{
		Repo:                  store,
		Pool:                  pool,
		Waitlist:              queue,
		Tokens:                token.NewIssuer([]byte("test-secret"), testHoldTTL, tokens),
		Fines:                 fine.NewCalculator(testDailyRate),
		Events:                bus,
		HoldTTL:               testHoldTTL,
		LoanPeriod:            testLoan,
		MaxActivePerRequester: maxActive,
		Now:                   clock.Now,
	})

	return &fixture{svc: svc, pool: pool, queue: queue, clock: clock, events: collector, tokens: tokens}
}

func (f *fixture) createTitle(t *testing.T, copies int) uuid.UUID {
	t.Helper()

	title, err := f.pool.Create(context.Background(), copypool.CreateParams{TotalCopies: copies})
	require.NoError(t, err)

	return title.ID
}

func (f *fixture) available(t *testing.T, titleID uuid.UUID) int {
	t.Helper()

	title, err := f.pool.Get(context.Background(), titleID)
	require.NoError(t, err)

	return title.AvailableCopies
}

func TestService_RequestBorrow_Hold(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	titleID := f.createTitle(t, 2)
	requester := uuid.New()

	result, err := f.svc.RequestBorrow(ctx, titleID, requester)
	require.NoError(t, err)
	require.NotNil(t, result.Hold)
	assert.Nil(t, result.Waitlist)
	assert.NotEmpty(t, result.Hold.PickupToken)
	assert.Equal(t, f.clock.Now().Add(testHoldTTL), result.Hold.ExpiresAt)
	assert.Equal(t, 1, f.available(t, titleID))

	tx, err := f.svc.Get(ctx, result.Hold.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, circulation.StatusPending, tx.Status)
	assert.Equal(t, requester, tx.RequesterID)

	assert.Equal(t, []event.Kind{event.KindHoldCreated}, f.events.kinds())
}

func TestService_RequestBorrow_UnknownTitle(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.svc.RequestBorrow(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, copypool.ErrNotFound)
}

func TestService_RequestBorrow_ExhaustedGoesToWaitlist(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	titleID := f.createTitle(t, 1)

	holder := uuid.New()
	waiting := uuid.New()

	_, err := f.svc.RequestBorrow(ctx, titleID, holder)
	require.NoError(t, err)

	result, err := f.svc.RequestBorrow(ctx, titleID, waiting)
	require.NoError(t, err)
	require.NotNil(t, result.Waitlist)
	assert.Nil(t, result.Hold)
	assert.Equal(t, 1, result.Waitlist.Position)
	assert.Equal(t, testLoan, result.Waitlist.EstimatedWait,
		"no loan history falls back to the loan period")
}

func TestService_RequestBorrow_DuplicateWaitlist(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	titleID := f.createTitle(t, 1)
	waiting := uuid.New()

	_, err := f.svc.RequestBorrow(ctx, titleID, uuid.New())
	require.NoError(t, err)

	_, err = f.svc.RequestBorrow(ctx, titleID, waiting)
	require.NoError(t, err)

	_, err = f.svc.RequestBorrow(ctx, titleID, waiting)
	assert.ErrorIs(t, err, waitlist.ErrAlreadyWaitlisted)
}

func TestService_RequestBorrow_QueueBlocksNewBorrows(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	titleID := f.createTitle(t, 1)

	_, err := f.svc.RequestBorrow(ctx, titleID, uuid.New())
	require.NoError(t, err)

	_, err = f.svc.RequestBorrow(ctx, titleID, uuid.New())
	require.NoError(t, err)

	// With a non-empty queue a later requester must join the end of the
	// line even if a copy were to free up underneath them.
	result, err := f.svc.RequestBorrow(ctx, titleID, uuid.New())
	require.NoError(t, err)
	require.NotNil(t, result.Waitlist)
	assert.Equal(t, 2, result.Waitlist.Position)
}

func TestService_RequestBorrow_BorrowLimit(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	titleID := f.createTitle(t, 5)
	requester := uuid.New()

	for i := 0; i < 2; i++ {
		_, err := f.svc.RequestBorrow(ctx, titleID, requester)
		require.NoError(t, err)
	}

	_, err := f.svc.RequestBorrow(ctx, titleID, requester)
	assert.ErrorIs(t, err, circulation.ErrBorrowLimit)
}

func TestService_ConcurrentBorrows_NoDoubleBooking(t *testing.T) {
	const (
		copies     = 3
		requesters = 20
	)

	f := newFixture(t, 0)
	ctx := context.Background()
	titleID := f.createTitle(t, copies)

	var wg sync.WaitGroup

	results := make(chan *circulation.BorrowResult, requesters)

	for i := 0; i < requesters; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			result, err := f.svc.RequestBorrow(ctx, titleID, uuid.New())
			if err == nil {
				results <- result
			}
		}()
	}

	wg.Wait()
	close(results)

	holds, waitlisted := 0, 0

	for result := range results {
		if result.Hold != nil {
			holds++
		} else {
			waitlisted++
		}
	}

	assert.Equal(t, copies, holds)
	assert.Equal(t, requesters-copies, waitlisted)
	assert.Equal(t, 0, f.available(t, titleID))
}

func TestService_ConfirmPickup(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	titleID := f.createTitle(t, 1)

	borrow, err := f.svc.RequestBorrow(ctx, titleID, uuid.New())
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)

	issued, err := f.svc.ConfirmPickup(ctx, borrow.Hold.PickupToken)
	require.NoError(t, err)
	assert.Equal(t, borrow.Hold.TransactionID, issued.TransactionID)
	assert.Equal(t, f.clock.Now(), issued.IssuedAt)
	assert.Equal(t, f.clock.Now().Add(testLoan), issued.DueAt)
	assert.NotEmpty(t, issued.ReturnToken)

	tx, err := f.svc.Get(ctx, issued.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, circulation.StatusIssued, tx.Status)
}

func TestService_ConfirmPickup_TokenIsSingleUse(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	titleID := f.createTitle(t, 1)

	borrow, err := f.svc.RequestBorrow(ctx, titleID, uuid.New())
	require.NoError(t, err)

	_, err = f.svc.ConfirmPickup(ctx, borrow.Hold.PickupToken)
	require.NoError(t, err)

	_, err = f.svc.ConfirmPickup(ctx, borrow.Hold.PickupToken)
	assert.ErrorIs(t, err, circulation.ErrInvalidToken)
}

func TestService_ConfirmPickup_GarbageToken(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.svc.ConfirmPickup(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, circulation.ErrInvalidToken)
}

func TestService_RequestBorrow_TokenMintFailureFreesCopyOnce(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	titleID := f.createTitle(t, 2)

	// One issued loan keeps a physical copy out of the building.
	borrow, err := f.svc.RequestBorrow(ctx, titleID, uuid.New())
	require.NoError(t, err)

	_, err = f.svc.ConfirmPickup(ctx, borrow.Hold.PickupToken)
	require.NoError(t, err)

	requester := uuid.New()

	f.tokens.failNext(token.PurposePickup, 1)

	_, err = f.svc.RequestBorrow(ctx, titleID, requester)
	require.Error(t, err)
	assert.Equal(t, 1, f.available(t, titleID))

	// The failed borrow's row is terminal, so the sweep cannot expire it
	// and release the copy a second time.
	txs, err := f.svc.History(ctx, requester)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, circulation.StatusCancelled, txs[0].Status)

	f.clock.Advance(testHoldTTL + time.Minute)

	expired, err := f.svc.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, expired)
	assert.Equal(t, 1, f.available(t, titleID),
		"available must stay below total while a loan is out")
}

func TestService_Promotion_TokenMintFailureKeepsRequesterQueued(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	titleID := f.createTitle(t, 1)

	holder := uuid.New()
	waiting := uuid.New()

	borrow, err := f.svc.RequestBorrow(ctx, titleID, holder)
	require.NoError(t, err)

	_, err = f.svc.RequestBorrow(ctx, titleID, waiting)
	require.NoError(t, err)

	f.tokens.failNext(token.PurposePickup, 1)

	// The cancel succeeds; the promotion behind it fails to mint and must
	// unwind without losing the copy or the queued requester.
	require.NoError(t, f.svc.CancelHold(ctx, borrow.Hold.TransactionID, holder))

	assert.Equal(t, 1, f.available(t, titleID))

	pos, err := f.svc.WaitlistPosition(ctx, titleID, waiting)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	txs, err := f.svc.History(ctx, waiting)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, circulation.StatusCancelled, txs[0].Status)

	f.clock.Advance(testHoldTTL + time.Minute)

	expired, err := f.svc.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, expired)
	assert.Equal(t, 1, f.available(t, titleID))
}

func TestService_ConfirmPickup_ReturnMintFailureLeavesHoldPending(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	titleID := f.createTitle(t, 1)

	borrow, err := f.svc.RequestBorrow(ctx, titleID, uuid.New())
	require.NoError(t, err)

	f.tokens.failNext(token.PurposeReturn, 1)

	_, err = f.svc.ConfirmPickup(ctx, borrow.Hold.PickupToken)
	require.Error(t, err)
	assert.NotErrorIs(t, err, circulation.ErrInvalidToken)

	// The transition never ran: no issued loan exists without a return
	// token, and the sweeper can still recycle the hold.
	tx, err := f.svc.Get(ctx, borrow.Hold.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, circulation.StatusPending, tx.Status)

	f.clock.Advance(testHoldTTL + time.Minute)

	expired, err := f.svc.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)
	assert.Equal(t, 1, f.available(t, titleID))
}

func TestService_Return_OnTime(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	titleID := f.createTitle(t, 1)

	borrow, err := f.svc.RequestBorrow(ctx, titleID, uuid.New())
	require.NoError(t, err)

	issued, err := f.svc.ConfirmPickup(ctx, borrow.Hold.PickupToken)
	require.NoError(t, err)

	f.clock.Advance(7 * 24 * time.Hour)

	returned, err := f.svc.Return(ctx, issued.ReturnToken)
	require.NoError(t, err)
	assert.Zero(t, returned.FineAmount)
	assert.Equal(t, 1, f.available(t, titleID))

	tx, err := f.svc.Get(ctx, returned.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, circulation.StatusReturned, tx.Status)
	assert.NotNil(t, tx.ReturnedAt)
}

func TestService_Return_ThreeDaysLate(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	titleID := f.createTitle(t, 1)

	borrow, err := f.svc.RequestBorrow(ctx, titleID, uuid.New())
	require.NoError(t, err)

	issued, err := f.svc.ConfirmPickup(ctx, borrow.Hold.PickupToken)
	require.NoError(t, err)

	// Half a day into the third overdue day still bills three full days.
	f.clock.Advance(testLoan + 2*24*time.Hour + 12*time.Hour)

	returned, err := f.svc.Return(ctx, issued.ReturnToken)
	require.NoError(t, err)
	assert.Equal(t, int64(3*testDailyRate), returned.FineAmount)

	tx, err := f.svc.Get(ctx, returned.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, returned.FineAmount, tx.FineAmount)
	assert.False(t, tx.FinePaid)

	assert.Contains(t, f.events.kinds(), event.KindFineAssessed)
}

func TestService_Return_TokenIsSingleUse(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	titleID := f.createTitle(t, 1)

	borrow, err := f.svc.RequestBorrow(ctx, titleID, uuid.New())
	require.NoError(t, err)

	issued, err := f.svc.ConfirmPickup(ctx, borrow.Hold.PickupToken)
	require.NoError(t, err)

	_, err = f.svc.Return(ctx, issued.ReturnToken)
	require.NoError(t, err)

	_, err = f.svc.Return(ctx, issued.ReturnToken)
	assert.ErrorIs(t, err, circulation.ErrInvalidToken)
}

func TestService_Return_PromotesWaitlist(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	titleID := f.createTitle(t, 1)

	holder := uuid.New()
	waiting := uuid.New()

	borrow, err := f.svc.RequestBorrow(ctx, titleID, holder)
	require.NoError(t, err)

	issued, err := f.svc.ConfirmPickup(ctx, borrow.Hold.PickupToken)
	require.NoError(t, err)

	_, err = f.svc.RequestBorrow(ctx, titleID, waiting)
	require.NoError(t, err)

	_, err = f.svc.Return(ctx, issued.ReturnToken)
	require.NoError(t, err)

	// The freed copy went straight to the waiting requester.
	assert.Equal(t, 0, f.available(t, titleID))

	txs, err := f.svc.History(ctx, waiting)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, circulation.StatusPending, txs[0].Status)

	_, err = f.svc.WaitlistPosition(ctx, titleID, waiting)
	assert.ErrorIs(t, err, waitlist.ErrNotWaitlisted)

	assert.Contains(t, f.events.kinds(), event.KindPromotedFromWaitlist)
}

func TestService_CancelHold(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	titleID := f.createTitle(t, 1)
	requester := uuid.New()

	borrow, err := f.svc.RequestBorrow(ctx, titleID, requester)
	require.NoError(t, err)

	require.NoError(t, f.svc.CancelHold(ctx, borrow.Hold.TransactionID, requester))
	assert.Equal(t, 1, f.available(t, titleID))

	tx, err := f.svc.Get(ctx, borrow.Hold.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, circulation.StatusCancelled, tx.Status)

	// Retried cancel is a no-op success.
	assert.NoError(t, f.svc.CancelHold(ctx, borrow.Hold.TransactionID, requester))
}

func TestService_CancelHold_WrongRequester(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	titleID := f.createTitle(t, 1)

	borrow, err := f.svc.RequestBorrow(ctx, titleID, uuid.New())
	require.NoError(t, err)

	err = f.svc.CancelHold(ctx, borrow.Hold.TransactionID, uuid.New())
	assert.ErrorIs(t, err, circulation.ErrForbidden)
}

func TestService_CancelHold_IssuedNotCancellable(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	titleID := f.createTitle(t, 1)
	requester := uuid.New()

	borrow, err := f.svc.RequestBorrow(ctx, titleID, requester)
	require.NoError(t, err)

	_, err = f.svc.ConfirmPickup(ctx, borrow.Hold.PickupToken)
	require.NoError(t, err)

	err = f.svc.CancelHold(ctx, borrow.Hold.TransactionID, requester)
	assert.ErrorIs(t, err, circulation.ErrWrongState)
}

func TestService_CancelHold_PromotesWaitlist(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	titleID := f.createTitle(t, 1)

	holder := uuid.New()
	waiting := uuid.New()

	borrow, err := f.svc.RequestBorrow(ctx, titleID, holder)
	require.NoError(t, err)

	_, err = f.svc.RequestBorrow(ctx, titleID, waiting)
	require.NoError(t, err)

	require.NoError(t, f.svc.CancelHold(ctx, borrow.Hold.TransactionID, holder))

	assert.Equal(t, 0, f.available(t, titleID))

	txs, err := f.svc.History(ctx, waiting)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, circulation.StatusPending, txs[0].Status)
}

func TestService_ExpireOverdue(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	titleID := f.createTitle(t, 1)

	holder := uuid.New()
	waiting := uuid.New()

	borrow, err := f.svc.RequestBorrow(ctx, titleID, holder)
	require.NoError(t, err)

	_, err = f.svc.RequestBorrow(ctx, titleID, waiting)
	require.NoError(t, err)

	f.clock.Advance(testHoldTTL + time.Minute)

	expired, err := f.svc.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	tx, err := f.svc.Get(ctx, borrow.Hold.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, circulation.StatusExpired, tx.Status)

	// The reclaimed copy went to the waiting requester, copy count back to zero.
	assert.Equal(t, 0, f.available(t, titleID))

	txs, err := f.svc.History(ctx, waiting)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, circulation.StatusPending, txs[0].Status)

	assert.Contains(t, f.events.kinds(), event.KindHoldExpired)
	assert.Contains(t, f.events.kinds(), event.KindPromotedFromWaitlist)
}

func TestService_Expire_NeverFiresOnIssued(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	titleID := f.createTitle(t, 1)

	borrow, err := f.svc.RequestBorrow(ctx, titleID, uuid.New())
	require.NoError(t, err)

	_, err = f.svc.ConfirmPickup(ctx, borrow.Hold.PickupToken)
	require.NoError(t, err)

	f.clock.Advance(testHoldTTL + time.Minute)

	err = f.svc.Expire(ctx, borrow.Hold.TransactionID)
	assert.ErrorIs(t, err, circulation.ErrWrongState)

	// A sweep cycle skips it entirely.
	expired, err := f.svc.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, expired)
}

func TestService_Expire_BeforeDeadline(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	titleID := f.createTitle(t, 1)

	borrow, err := f.svc.RequestBorrow(ctx, titleID, uuid.New())
	require.NoError(t, err)

	err = f.svc.Expire(ctx, borrow.Hold.TransactionID)
	assert.ErrorIs(t, err, circulation.ErrWrongState)
}

func TestService_PreviewFine(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	titleID := f.createTitle(t, 1)

	borrow, err := f.svc.RequestBorrow(ctx, titleID, uuid.New())
	require.NoError(t, err)

	// Pending holds owe nothing.
	amount, err := f.svc.PreviewFine(ctx, borrow.Hold.TransactionID)
	require.NoError(t, err)
	assert.Zero(t, amount)

	_, err = f.svc.ConfirmPickup(ctx, borrow.Hold.PickupToken)
	require.NoError(t, err)

	f.clock.Advance(testLoan + 24*time.Hour)

	amount, err = f.svc.PreviewFine(ctx, borrow.Hold.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, int64(testDailyRate), amount)
}

func TestService_EstimatedWaitUsesLoanHistory(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	titleID := f.createTitle(t, 1)

	// One completed 2-day loan seeds the average.
	borrow, err := f.svc.RequestBorrow(ctx, titleID, uuid.New())
	require.NoError(t, err)

	issued, err := f.svc.ConfirmPickup(ctx, borrow.Hold.PickupToken)
	require.NoError(t, err)

	f.clock.Advance(48 * time.Hour)

	_, err = f.svc.Return(ctx, issued.ReturnToken)
	require.NoError(t, err)

	_, err = f.svc.RequestBorrow(ctx, titleID, uuid.New())
	require.NoError(t, err)

	result, err := f.svc.RequestBorrow(ctx, titleID, uuid.New())
	require.NoError(t, err)
	require.NotNil(t, result.Waitlist)
	assert.Equal(t, 48*time.Hour, result.Waitlist.EstimatedWait)
}

func TestService_LeaveWaitlist(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	titleID := f.createTitle(t, 1)
	waiting := uuid.New()

	_, err := f.svc.RequestBorrow(ctx, titleID, uuid.New())
	require.NoError(t, err)

	_, err = f.svc.RequestBorrow(ctx, titleID, waiting)
	require.NoError(t, err)

	require.NoError(t, f.svc.LeaveWaitlist(ctx, titleID, waiting))

	_, err = f.svc.WaitlistPosition(ctx, titleID, waiting)
	assert.ErrorIs(t, err, waitlist.ErrNotWaitlisted)
}
