package copypool

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=copypool
type Repository interface {
	CreateTitle(ctx context.Context, t *Title) error
	GetTitle(ctx context.Context, id uuid.UUID) (*Title, error)

	// ReserveCopy atomically decrements available_copies when it is above
	// zero and reports whether the decrement happened. Racing callers for
	// the last copy see exactly one true.
	ReserveCopy(ctx context.Context, id uuid.UUID) (bool, error)

	// ReleaseCopy atomically increments available_copies, clamped at
	// total_copies.
	ReleaseCopy(ctx context.Context, id uuid.UUID) error

	// AdjustTotal shifts total_copies by delta, clamping available_copies
	// down when the total shrinks below it.
	AdjustTotal(ctx context.Context, id uuid.UUID, delta int) (*Title, error)
}

// Service is the copy pool: per-title availability counters with
// non-blocking reservation. Contention is scoped to a single title row, so
// unrelated titles never serialize.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

type CreateParams struct {
	ID          uuid.UUID
	TotalCopies int
}

func (s *Service) Create(ctx context.Context, params CreateParams) (*Title, error) {
	if params.TotalCopies < 0 {
		return nil, fmt.Errorf("total copies must be nonnegative, got %d", params.TotalCopies)
	}

	id := params.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	t := &Title{
		ID:              id,
		TotalCopies:     params.TotalCopies,
		AvailableCopies: params.TotalCopies,
	}
	if err := s.repo.CreateTitle(ctx, t); err != nil {
		return nil, err
	}

	return t, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Title, error) {
	return s.repo.GetTitle(ctx, id)
}

// TryReserve claims one copy of the title. It never blocks; false means the
// pool is exhausted and the caller should take the waitlist branch.
func (s *Service) TryReserve(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.repo.ReserveCopy(ctx, id)
}

// Release returns one copy to the pool. The increment never pushes
// available_copies past total_copies.
func (s *Service) Release(ctx context.Context, id uuid.UUID) error {
	return s.repo.ReleaseCopy(ctx, id)
}

// AdjustTotal is the catalog-administration hook for stock changes.
func (s *Service) AdjustTotal(ctx context.Context, id uuid.UUID, delta int) (*Title, error) {
	return s.repo.AdjustTotal(ctx, id, delta)
}
