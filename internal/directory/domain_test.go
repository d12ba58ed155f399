package directory

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassOrderingYearBeforeSemester(t *testing.T) {
	classes := []Class{
		{ID: 1, Name: "Semester 1", Kind: ClassKindSemester, Ordinal: 1},
		{ID: 2, Name: "Year 2", Kind: ClassKindYear, Ordinal: 2},
		{ID: 3, Name: "Semester 3", Kind: ClassKindSemester, Ordinal: 3},
		{ID: 4, Name: "Year 1", Kind: ClassKindYear, Ordinal: 1},
	}

	SortClasses(classes)

	ids := []int64{classes[0].ID, classes[1].ID, classes[2].ID, classes[3].ID}
	// All year-based classes come first regardless of ordinal.
	require.Equal(t, []int64{4, 2, 1, 3}, ids)
}

func TestNextClass(t *testing.T) {
	classes := []Class{
		{ID: 10, Kind: ClassKindYear, Ordinal: 1},
		{ID: 11, Kind: ClassKindYear, Ordinal: 2},
		{ID: 12, Kind: ClassKindSemester, Ordinal: 1},
	}

	next, ok := NextClass(classes, 10)
	require.True(t, ok)
	require.Equal(t, int64(11), next.ID)

	next, ok = NextClass(classes, 11)
	require.True(t, ok)
	require.Equal(t, int64(12), next.ID)

	_, ok = NextClass(classes, 12)
	require.False(t, ok)
}

func TestPreviousClass(t *testing.T) {
	classes := []Class{
		{ID: 10, Kind: ClassKindYear, Ordinal: 1},
		{ID: 11, Kind: ClassKindYear, Ordinal: 2},
	}

	prev, ok := PreviousClass(classes, 11)
	require.True(t, ok)
	require.Equal(t, int64(10), prev.ID)

	_, ok = PreviousClass(classes, 10)
	require.False(t, ok)
}
