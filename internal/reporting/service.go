package reporting

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/campusledger/campusledger/internal/shared"
)

// Granularity selects the revenue bucketing period.
type Granularity string

const (
	GranularityMonth   Granularity = "month"
	GranularityYear    Granularity = "year"
	GranularityOverall Granularity = "overall"
)

func (g Granularity) valid() bool {
	return g == GranularityMonth || g == GranularityYear || g == GranularityOverall
}

// RevenuePoint is one bucket of collected revenue from PAID challans.
// Period is "2026-03" for month granularity and "2026" for year; overall
// falls back to monthly buckets across the whole ledger history.
type RevenuePoint struct {
	Period   string  `json:"period"`
	Amount   float64 `json:"amount"`
	Payments int     `json:"payments"`
}

// ClassCollection is the collection position of one class: what its
// students were billed, what came in, and what is still collectable.
// Voided challans count in none of the columns.
type ClassCollection struct {
	ClassID     int64   `json:"class_id"`
	ProgramID   int64   `json:"program_id"`
	ClassName   string  `json:"class_name"`
	Billed      float64 `json:"billed"`
	Collected   float64 `json:"collected"`
	Outstanding float64 `json:"outstanding"`
	Challans    int     `json:"challans"`
	Unsettled   int     `json:"unsettled"`
}

// RepositoryPort defines the aggregate queries behind the reports.
type RepositoryPort interface {
	RevenueByPeriod(ctx context.Context, g Granularity) ([]RevenuePoint, error)
	ClassCollections(ctx context.Context) ([]ClassCollection, error)
}

// Service serves ledger reports through the versioned cache.
type Service struct {
	repo   RepositoryPort
	cache  *Cache
	logger *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, cache *Cache, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, logger: logger}
}

// RevenueOverTime returns collected revenue bucketed by the granularity.
func (s *Service) RevenueOverTime(ctx context.Context, g Granularity) ([]RevenuePoint, error) {
	if !g.valid() {
		return nil, fmt.Errorf("reporting: granularity must be month, year or overall: %w", shared.ErrValidation)
	}

	key, err := s.cache.Key(ctx, "revenue", string(g))
	if err != nil {
		return nil, err
	}
	var points []RevenuePoint
	err = s.cache.Fetch(ctx, key, &points, func(ctx context.Context) (any, error) {
		return s.repo.RevenueByPeriod(ctx, g)
	})
	if err != nil {
		return nil, err
	}
	return points, nil
}

// ClassCollectionStats returns the per-class collection table.
func (s *Service) ClassCollectionStats(ctx context.Context) ([]ClassCollection, error) {
	key, err := s.cache.Key(ctx, "class-collections")
	if err != nil {
		return nil, err
	}
	var stats []ClassCollection
	err = s.cache.Fetch(ctx, key, &stats, func(ctx context.Context) (any, error) {
		return s.repo.ClassCollections(ctx)
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// Warmup pre-populates the report caches. Run by the background worker so
// the first dashboard hit after an invalidation stays fast.
func (s *Service) Warmup(ctx context.Context) error {
	for _, g := range []Granularity{GranularityMonth, GranularityYear, GranularityOverall} {
		if _, err := s.RevenueOverTime(ctx, g); err != nil {
			return err
		}
	}
	_, err := s.ClassCollectionStats(ctx)
	return err
}

// LedgerMutated implements the ledger mutation hook: any write to the
// challan ledger invalidates every cached report.
func (s *Service) LedgerMutated(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("report cache bump failed", slog.Any("error", err))
	}
}
