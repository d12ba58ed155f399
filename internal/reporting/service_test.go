package reporting

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/campusledger/campusledger/internal/shared"
)

type countingRepo struct {
	revenueCalls int
	classCalls   int
	points       []RevenuePoint
	stats        []ClassCollection
}

func (r *countingRepo) RevenueByPeriod(ctx context.Context, g Granularity) ([]RevenuePoint, error) {
	r.revenueCalls++
	return r.points, nil
}

func (r *countingRepo) ClassCollections(ctx context.Context) ([]ClassCollection, error) {
	r.classCalls++
	return r.stats, nil
}

func newTestService(t *testing.T) (*Service, *countingRepo) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := &countingRepo{
		points: []RevenuePoint{{Period: "2026-05", Amount: 12000, Payments: 4}},
		stats:  []ClassCollection{{ClassID: 2, ProgramID: 1, Billed: 6000, Collected: 3000, Outstanding: 3000}},
	}
	return NewService(repo, NewCache(client, time.Minute), slog.Default()), repo
}

func TestRevenueOverTimeCachesUntilBump(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)

	first, err := svc.RevenueOverTime(ctx, GranularityMonth)
	require.NoError(t, err)
	require.Equal(t, repo.points, first)

	_, err = svc.RevenueOverTime(ctx, GranularityMonth)
	require.NoError(t, err)
	require.Equal(t, 1, repo.revenueCalls, "second read must hit the cache")

	svc.LedgerMutated(ctx)

	_, err = svc.RevenueOverTime(ctx, GranularityMonth)
	require.NoError(t, err)
	require.Equal(t, 2, repo.revenueCalls, "bump must shift the key and force a reload")
}

func TestRevenueGranularitiesCacheSeparately(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)

	_, err := svc.RevenueOverTime(ctx, GranularityMonth)
	require.NoError(t, err)
	_, err = svc.RevenueOverTime(ctx, GranularityYear)
	require.NoError(t, err)
	require.Equal(t, 2, repo.revenueCalls)
}

func TestRevenueRejectsUnknownGranularity(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.RevenueOverTime(ctx, Granularity("weekly"))
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestClassCollectionStatsCached(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)

	stats, err := svc.ClassCollectionStats(ctx)
	require.NoError(t, err)
	require.Equal(t, repo.stats, stats)

	_, err = svc.ClassCollectionStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, repo.classCalls)
}

func TestWarmupPopulatesEveryReport(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)

	require.NoError(t, svc.Warmup(ctx))
	require.Equal(t, 3, repo.revenueCalls)
	require.Equal(t, 1, repo.classCalls)

	// Everything warm: further reads stay cached.
	_, err := svc.RevenueOverTime(ctx, GranularityOverall)
	require.NoError(t, err)
	require.Equal(t, 3, repo.revenueCalls)
}
