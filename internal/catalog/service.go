package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/campusledger/campusledger/internal/shared"
)

// RepositoryPort defines data access methods for the fee catalog.
type RepositoryPort interface {
	CreateHead(ctx context.Context, in CreateHeadInput) (*FeeHead, error)
	GetHead(ctx context.Context, id int64) (*FeeHead, error)
	ListHeads(ctx context.Context) ([]FeeHead, error)
	DeleteHead(ctx context.Context, id int64) error

	// UpsertStructure replaces the structure and its head allocations for the
	// (program, class) pair transactionally.
	UpsertStructure(ctx context.Context, in UpsertStructureInput, heads []FeeHead) (*FeeStructure, error)
	GetStructure(ctx context.Context, programID, classID int64) (*FeeStructure, error)
	GetStructureByID(ctx context.Context, id int64) (*FeeStructure, error)
}

// Service handles fee catalog business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// CreateHead declares a new fee head.
func (s *Service) CreateHead(ctx context.Context, in CreateHeadInput) (*FeeHead, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("catalog: head name required: %w", shared.ErrValidation)
	}
	if in.Amount < 0 {
		return nil, fmt.Errorf("catalog: head amount must not be negative: %w", shared.ErrValidation)
	}
	return s.repo.CreateHead(ctx, in)
}

// GetHead returns a fee head by id.
func (s *Service) GetHead(ctx context.Context, id int64) (*FeeHead, error) {
	head, err := s.repo.GetHead(ctx, id)
	if err != nil {
		return nil, err
	}
	if head == nil {
		return nil, fmt.Errorf("catalog: fee head %d: %w", id, shared.ErrNotFound)
	}
	return head, nil
}

// ListHeads returns all declared fee heads.
func (s *Service) ListHeads(ctx context.Context) ([]FeeHead, error) {
	return s.repo.ListHeads(ctx)
}

// DeleteHead removes a fee head. Existing allocations keep their snapshotted
// amounts.
func (s *Service) DeleteHead(ctx context.Context, id int64) error {
	return s.repo.DeleteHead(ctx, id)
}

// UpsertStructure creates or replaces the fee structure for a
// (program, class) pair, resolving every referenced head first so the
// allocation can snapshot its amount. Fails with ErrNotFound when any head
// id does not exist.
func (s *Service) UpsertStructure(ctx context.Context, in UpsertStructureInput) (*FeeStructure, error) {
	if in.ProgramID == 0 || in.ClassID == 0 {
		return nil, fmt.Errorf("catalog: program and class required: %w", shared.ErrValidation)
	}
	if in.TotalAmount <= 0 {
		return nil, fmt.Errorf("catalog: total amount must be positive: %w", shared.ErrValidation)
	}
	if in.InstallmentCount < 1 {
		return nil, fmt.Errorf("catalog: installment count must be at least 1: %w", shared.ErrValidation)
	}

	heads := make([]FeeHead, 0, len(in.HeadIDs))
	for _, headID := range in.HeadIDs {
		head, err := s.repo.GetHead(ctx, headID)
		if err != nil {
			return nil, err
		}
		if head == nil {
			return nil, fmt.Errorf("catalog: fee head %d: %w", headID, shared.ErrNotFound)
		}
		heads = append(heads, *head)
	}

	return s.repo.UpsertStructure(ctx, in, heads)
}

// Structure returns the fee structure for a (program, class) pair with
// resolved head allocations, or nil when none exists.
func (s *Service) Structure(ctx context.Context, programID, classID int64) (*FeeStructure, error) {
	return s.repo.GetStructure(ctx, programID, classID)
}

// StructureByID returns a structure by primary key, ErrNotFound when absent.
func (s *Service) StructureByID(ctx context.Context, id int64) (*FeeStructure, error) {
	st, err := s.repo.GetStructureByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, fmt.Errorf("catalog: fee structure %d: %w", id, shared.ErrNotFound)
	}
	return st, nil
}
