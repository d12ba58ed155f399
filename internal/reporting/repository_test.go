package reporting

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRevenueBucketTruncatesPaidDate(t *testing.T) {
	require.Equal(t, `to_char(paid_date, 'YYYY-MM')`, revenueBucket(GranularityMonth))
	require.Equal(t, `to_char(paid_date, 'YYYY')`, revenueBucket(GranularityYear))
}

func TestRevenueBucketOverallDefaultsToMonthly(t *testing.T) {
	require.Equal(t, revenueBucket(GranularityMonth), revenueBucket(GranularityOverall))
}

func TestRevenueFilterCountsOnlySettledChallans(t *testing.T) {
	require.Contains(t, revenueFilter, `status = 'PAID'`)
	require.Contains(t, revenueFilter, `paid_date IS NOT NULL`)
	require.NotContains(t, revenueFilter, "due_date")
}
