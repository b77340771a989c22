// Package memstore is an in-memory implementation of every repository the
// engine needs. It backs the concurrency tests and makes the engine runnable
// without Postgres; the locking mirrors the production stores, with copy
// counters guarded per title so unrelated titles never contend.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"circulate/internal/circulation"
	"circulate/internal/copypool"
	"circulate/internal/token"
	"circulate/internal/waitlist"
)

type titleEntry struct {
	mu    sync.Mutex
	title copypool.Title
}

type queueEntry struct {
	entry waitlist.Entry
	seq   int64
}

type tokenRecord struct {
	transactionID uuid.UUID
	purpose       token.Purpose
	expiresAt     *time.Time
	consumed      bool
}

type Store struct {
	titleMu sync.RWMutex
	titles  map[uuid.UUID]*titleEntry

	txMu         sync.Mutex
	transactions map[uuid.UUID]*circulation.Transaction

	queueMu sync.Mutex
	queues  map[uuid.UUID][]queueEntry
	seq     int64

	tokenMu sync.Mutex
	tokens  map[uuid.UUID]*tokenRecord
}

func New() *Store {
	return &Store{
		titles:       make(map[uuid.UUID]*titleEntry),
		transactions: make(map[uuid.UUID]*circulation.Transaction),
		queues:       make(map[uuid.UUID][]queueEntry),
		tokens:       make(map[uuid.UUID]*tokenRecord),
	}
}

// --- copypool.Repository ---

func (s *Store) CreateTitle(_ context.Context, t *copypool.Title) error {
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = &now

	s.titleMu.Lock()
	defer s.titleMu.Unlock()

	s.titles[t.ID] = &titleEntry{title: *t}

	return nil
}

func (s *Store) GetTitle(_ context.Context, id uuid.UUID) (*copypool.Title, error) {
	e, err := s.titleEntry(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	t := e.title

	return &t, nil
}

func (s *Store) ReserveCopy(_ context.Context, id uuid.UUID) (bool, error) {
	e, err := s.titleEntry(id)
	if err != nil {
		return false, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.title.AvailableCopies <= 0 {
		return false, nil
	}

	e.title.AvailableCopies--
	s.touchTitle(&e.title)

	return true, nil
}

func (s *Store) ReleaseCopy(_ context.Context, id uuid.UUID) error {
	e, err := s.titleEntry(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.title.AvailableCopies < e.title.TotalCopies {
		e.title.AvailableCopies++
	}

	s.touchTitle(&e.title)

	return nil
}

func (s *Store) AdjustTotal(_ context.Context, id uuid.UUID, delta int) (*copypool.Title, error) {
	e, err := s.titleEntry(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.title.TotalCopies = max(e.title.TotalCopies+delta, 0)

	if delta > 0 {
		e.title.AvailableCopies += delta
	} else {
		e.title.AvailableCopies = min(e.title.AvailableCopies, e.title.TotalCopies)
	}

	s.touchTitle(&e.title)
	t := e.title

	return &t, nil
}

func (s *Store) titleEntry(id uuid.UUID) (*titleEntry, error) {
	s.titleMu.RLock()
	defer s.titleMu.RUnlock()

	e, ok := s.titles[id]
	if !ok {
		return nil, copypool.ErrNotFound
	}

	return e, nil
}

func (s *Store) touchTitle(t *copypool.Title) {
	now := time.Now()
	t.UpdatedAt = &now
}

// --- circulation.Repository ---

func (s *Store) CreateTransaction(_ context.Context, tx *circulation.Transaction) error {
	now := time.Now()
	tx.CreatedAt = now
	tx.UpdatedAt = &now

	s.txMu.Lock()
	defer s.txMu.Unlock()

	cp := *tx
	s.transactions[tx.ID] = &cp

	return nil
}

func (s *Store) GetTransaction(_ context.Context, id uuid.UUID) (*circulation.Transaction, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx, ok := s.transactions[id]
	if !ok {
		return nil, circulation.ErrNotFound
	}

	cp := *tx

	return &cp, nil
}

func (s *Store) ListByRequester(_ context.Context, requesterID uuid.UUID) ([]*circulation.Transaction, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	var txs []*circulation.Transaction

	for _, tx := range s.transactions {
		if tx.RequesterID == requesterID {
			cp := *tx
			txs = append(txs, &cp)
		}
	}

	sort.Slice(txs, func(i, j int) bool {
		return txs[i].HoldCreatedAt.After(txs[j].HoldCreatedAt)
	})

	return txs, nil
}

func (s *Store) CountActive(_ context.Context, requesterID uuid.UUID) (int, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	n := 0

	for _, tx := range s.transactions {
		if tx.RequesterID == requesterID && !tx.Status.Terminal() {
			n++
		}
	}

	return n, nil
}

func (s *Store) Transition(_ context.Context, id uuid.UUID, from circulation.Status, stamp circulation.Stamp) (*circulation.Transaction, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx, ok := s.transactions[id]
	if !ok {
		return nil, circulation.ErrNotFound
	}

	if tx.Status != from {
		return nil, circulation.ErrWrongState
	}

	tx.Status = stamp.Status

	if stamp.IssuedAt != nil {
		tx.IssuedAt = stamp.IssuedAt
	}

	if stamp.DueAt != nil {
		tx.DueAt = stamp.DueAt
	}

	if stamp.ReturnedAt != nil {
		tx.ReturnedAt = stamp.ReturnedAt
	}

	if stamp.FineAmount != nil {
		tx.FineAmount = *stamp.FineAmount
	}

	now := time.Now()
	tx.UpdatedAt = &now
	cp := *tx

	return &cp, nil
}

func (s *Store) ListExpiredPending(_ context.Context, now time.Time) ([]*circulation.Transaction, error) {
	return s.listPending(func(tx *circulation.Transaction) bool {
		return !tx.HoldExpiresAt.After(now)
	})
}

func (s *Store) ListExpiringPending(_ context.Context, now time.Time, window time.Duration) ([]*circulation.Transaction, error) {
	horizon := now.Add(window)

	return s.listPending(func(tx *circulation.Transaction) bool {
		return tx.HoldExpiresAt.After(now) && !tx.HoldExpiresAt.After(horizon)
	})
}

func (s *Store) listPending(match func(*circulation.Transaction) bool) ([]*circulation.Transaction, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	var txs []*circulation.Transaction

	for _, tx := range s.transactions {
		if tx.Status != circulation.StatusPending || tx.HoldExpiresAt == nil {
			continue
		}

		if match(tx) {
			cp := *tx
			txs = append(txs, &cp)
		}
	}

	sort.Slice(txs, func(i, j int) bool {
		return txs[i].HoldExpiresAt.Before(*txs[j].HoldExpiresAt)
	})

	return txs, nil
}

func (s *Store) AverageLoanDuration(_ context.Context, titleID uuid.UUID) (time.Duration, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	var total time.Duration

	n := 0

	for _, tx := range s.transactions {
		if tx.TitleID != titleID || tx.Status != circulation.StatusReturned {
			continue
		}

		if tx.IssuedAt == nil || tx.ReturnedAt == nil {
			continue
		}

		total += tx.ReturnedAt.Sub(*tx.IssuedAt)
		n++
	}

	if n == 0 {
		return 0, nil
	}

	return total / time.Duration(n), nil
}

// --- waitlist.Repository ---

func (s *Store) Append(_ context.Context, e *waitlist.Entry) error {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	for _, q := range s.queues[e.TitleID] {
		if q.entry.RequesterID == e.RequesterID {
			return waitlist.ErrAlreadyWaitlisted
		}
	}

	e.EnqueuedAt = time.Now()
	s.seq++
	s.queues[e.TitleID] = append(s.queues[e.TitleID], queueEntry{entry: *e, seq: s.seq})

	return nil
}

func (s *Store) PopHead(_ context.Context, titleID uuid.UUID) (*waitlist.Entry, error) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	q := s.queues[titleID]
	if len(q) == 0 {
		return nil, waitlist.ErrEmpty
	}

	head := q[0].entry
	s.queues[titleID] = q[1:]

	return &head, nil
}

func (s *Store) Remove(_ context.Context, titleID, requesterID uuid.UUID) error {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	q := s.queues[titleID]

	for i, e := range q {
		if e.entry.RequesterID == requesterID {
			s.queues[titleID] = append(q[:i:i], q[i+1:]...)
			break
		}
	}

	return nil
}

func (s *Store) Position(_ context.Context, titleID, requesterID uuid.UUID) (int, error) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	for i, e := range s.queues[titleID] {
		if e.entry.RequesterID == requesterID {
			return i + 1, nil
		}
	}

	return 0, waitlist.ErrNotWaitlisted
}

func (s *Store) Depth(_ context.Context, titleID uuid.UUID) (int, error) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	return len(s.queues[titleID]), nil
}

// --- token.Store ---

func (s *Store) Record(_ context.Context, jti, transactionID uuid.UUID, purpose token.Purpose, expiresAt *time.Time) error {
	s.tokenMu.Lock()
	defer s.tokenMu.Unlock()

	s.tokens[jti] = &tokenRecord{
		transactionID: transactionID,
		purpose:       purpose,
		expiresAt:     expiresAt,
	}

	return nil
}

func (s *Store) Consume(_ context.Context, jti uuid.UUID, purpose token.Purpose, now time.Time) (uuid.UUID, error) {
	s.tokenMu.Lock()
	defer s.tokenMu.Unlock()

	rec, ok := s.tokens[jti]
	if !ok || rec.consumed || rec.purpose != purpose {
		return uuid.Nil, token.ErrInvalid
	}

	if rec.expiresAt != nil && !rec.expiresAt.After(now) {
		return uuid.Nil, token.ErrInvalid
	}

	rec.consumed = true

	return rec.transactionID, nil
}
