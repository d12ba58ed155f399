package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestComputeChallanType(t *testing.T) {
	cases := []struct {
		tuition, heads, arrears bool
		want                    Type
	}{
		{false, false, true, TypeArrearsOnly},
		{false, true, false, TypeFeeHeadsOnly},
		{false, true, true, TypeFeeHeadsOnly},
		{true, false, true, TypeMixed},
		{true, true, false, TypeMixed},
		{true, true, true, TypeMixed},
		{true, false, false, TypeInstallment},
		{false, false, false, TypeInstallment},
	}
	for _, tc := range cases {
		got := ComputeChallanType(tc.tuition, tc.heads, tc.arrears)
		require.Equal(t, tc.want, got,
			"tuition=%v heads=%v arrears=%v", tc.tuition, tc.heads, tc.arrears)
	}
}

func TestSplitInstallmentsRemainderOnLast(t *testing.T) {
	amounts := SplitInstallments(10000, 3)
	require.Equal(t, []float64{3333, 3333, 3334}, amounts)

	amounts = SplitInstallments(12000, 4)
	require.Equal(t, []float64{3000, 3000, 3000, 3000}, amounts)

	amounts = SplitInstallments(500, 1)
	require.Equal(t, []float64{500}, amounts)

	require.Nil(t, SplitInstallments(100, 0))
}

func TestCoveredEnd(t *testing.T) {
	require.Equal(t, 6, CoveredEnd("1-6", 2))
	require.Equal(t, 3, CoveredEnd("3", 1))
	require.Equal(t, 2, CoveredEnd("", 2))
	require.Equal(t, 2, CoveredEnd("junk", 2))
}

func TestChallanAmounts(t *testing.T) {
	c := Challan{TuitionAmount: 3000, FineAmount: 200, Discount: 500, PaidAmount: 1000}
	require.Equal(t, 2700.0, c.PayableTotal())
	require.Equal(t, 1700.0, c.AmountDue())
}

func TestDaysOverdueNeverNegative(t *testing.T) {
	due := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	c := Challan{DueDate: due}
	require.Equal(t, 5, c.DaysOverdue(due.AddDate(0, 0, 5)))
	require.Equal(t, 0, c.DaysOverdue(due.AddDate(0, 0, -3)))
}

func TestHeadIDRoundTrip(t *testing.T) {
	require.Equal(t, "3,1,7", SerializeHeadIDs([]int64{3, 1, 7}))
	require.Equal(t, []int64{3, 1, 7}, ParseHeadIDs("3,1,7"))
	require.Nil(t, ParseHeadIDs(" "))
	require.Equal(t, "", SerializeHeadIDs(nil))
}
