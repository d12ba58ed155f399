package arrears

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campusledger/campusledger/internal/ledger"
	"github.com/campusledger/campusledger/internal/shared"
)

type memoryArrearRepo struct {
	rows   map[[3]int64]*Arrear
	nextID int64
}

func newMemoryArrearRepo() *memoryArrearRepo {
	return &memoryArrearRepo{rows: make(map[[3]int64]*Arrear)}
}

func (r *memoryArrearRepo) Upsert(ctx context.Context, in UpsertInput) (*Arrear, error) {
	key := [3]int64{in.StudentID, in.ClassID, in.ProgramID}
	row, ok := r.rows[key]
	if !ok {
		r.nextID++
		row = &Arrear{
			ID: r.nextID, StudentID: in.StudentID, ClassID: in.ClassID,
			ProgramID: in.ProgramID, CreatedAt: time.Now(),
		}
		r.rows[key] = row
	}
	row.ArrearAmount += in.Amount
	if in.LastInstallmentNumber > row.LastInstallmentNumber {
		row.LastInstallmentNumber = in.LastInstallmentNumber
	}
	row.UpdatedAt = time.Now()
	cp := *row
	return &cp, nil
}

func (r *memoryArrearRepo) ListForStudent(ctx context.Context, studentID int64) ([]Arrear, error) {
	var out []Arrear
	for _, row := range r.rows {
		if row.StudentID == studentID {
			out = append(out, *row)
		}
	}
	return out, nil
}

type stubChallans struct {
	challans []ledger.Challan
}

func (s *stubChallans) StudentChallans(ctx context.Context, studentID int64) ([]ledger.Challan, error) {
	return s.challans, nil
}

type stubStructures struct {
	byPair map[[2]int64]*ledger.Structure
}

func (s *stubStructures) StructureFor(ctx context.Context, programID, classID int64) (*ledger.Structure, error) {
	return s.byPair[[2]int64{programID, classID}], nil
}

type stubClassNames map[int64]string

func (s stubClassNames) ClassName(ctx context.Context, classID int64) (string, error) {
	return s[classID], nil
}

func fixedNow() time.Time {
	return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
}

func newTestService(challans []ledger.Challan, structures map[[2]int64]*ledger.Structure) (*Service, *memoryArrearRepo) {
	repo := newMemoryArrearRepo()
	svc := NewService(repo,
		&stubChallans{challans: challans},
		&stubStructures{byPair: structures},
		stubClassNames{2: "Year 2"},
		slog.Default(),
	)
	svc.now = fixedNow
	return svc, repo
}

func TestComputeShortfallsGroupsBySessionSnapshot(t *testing.T) {
	ctx := context.Background()
	challans := []ledger.Challan{
		{ID: 1, StudentID: 7, TuitionAmount: 3000, PaidAmount: 3000, Status: ledger.StatusPaid,
			DueDate: fixedNow().AddDate(0, -4, 0), StudentClassID: 2, StudentProgramID: 1},
		{ID: 2, StudentID: 7, Number: "CHN-A", TuitionAmount: 3000, Status: ledger.StatusOverdue,
			DueDate: fixedNow().AddDate(0, 0, -10), StudentClassID: 2, StudentProgramID: 1},
		{ID: 3, StudentID: 7, TuitionAmount: 4000, PaidAmount: 4000, Status: ledger.StatusPaid,
			DueDate: fixedNow(), StudentClassID: 3, StudentProgramID: 1},
	}
	structures := map[[2]int64]*ledger.Structure{
		{1, 2}: {ID: 10, ProgramID: 1, ClassID: 2, TotalAmount: 6000, InstallmentCount: 2},
		{1, 3}: {ID: 11, ProgramID: 1, ClassID: 3, TotalAmount: 4000, InstallmentCount: 1},
	}
	svc, _ := newTestService(challans, structures)

	shortfalls, err := svc.ComputeShortfalls(ctx, 7, nil)
	require.NoError(t, err)
	require.Len(t, shortfalls, 1, "fully settled session must be dropped")

	sf := shortfalls[0]
	require.Equal(t, SessionKey{ClassID: 2, ProgramID: 1}, sf.Session)
	require.Equal(t, "Year 2", sf.ClassName)
	require.Equal(t, 6000.0, sf.ExpectedAmount)
	require.Equal(t, 3000.0, sf.PaidAmount)
	require.Equal(t, 3000.0, sf.Shortfall)
	require.Equal(t, 10, sf.OldestDaysOverdue)
	require.Len(t, sf.Challans, 1)
	require.Equal(t, "CHN-A", sf.Challans[0].Number)
	require.Equal(t, 3000.0, sf.Challans[0].AmountDue)
}

func TestComputeShortfallsIsIdempotentRead(t *testing.T) {
	ctx := context.Background()
	challans := []ledger.Challan{
		{ID: 1, StudentID: 7, TuitionAmount: 5000, Status: ledger.StatusPending,
			DueDate: fixedNow().AddDate(0, -1, 0), StudentClassID: 2, StudentProgramID: 1},
	}
	svc, repo := newTestService(challans, nil)

	first, err := svc.ComputeShortfalls(ctx, 7, nil)
	require.NoError(t, err)
	second, err := svc.ComputeShortfalls(ctx, 7, nil)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Empty(t, repo.rows, "computation must not persist anything")
}

func TestComputeShortfallsFallsBackToBilledAmounts(t *testing.T) {
	ctx := context.Background()
	challans := []ledger.Challan{
		{ID: 1, StudentID: 7, TuitionAmount: 2500, FineAmount: 100, Status: ledger.StatusPending,
			DueDate: fixedNow(), StudentClassID: 9, StudentProgramID: 1},
	}
	svc, _ := newTestService(challans, nil)

	shortfalls, err := svc.ComputeShortfalls(ctx, 7, nil)
	require.NoError(t, err)
	require.Len(t, shortfalls, 1)
	require.Equal(t, 2600.0, shortfalls[0].ExpectedAmount)
}

func TestComputeShortfallsExcludesSessionAndVoided(t *testing.T) {
	ctx := context.Background()
	challans := []ledger.Challan{
		{ID: 1, StudentID: 7, TuitionAmount: 3000, Status: ledger.StatusPending,
			DueDate: fixedNow(), StudentClassID: 2, StudentProgramID: 1},
		{ID: 2, StudentID: 7, TuitionAmount: 9000, Status: ledger.StatusVoided,
			DueDate: fixedNow(), StudentClassID: 4, StudentProgramID: 1},
		{ID: 3, StudentID: 7, TuitionAmount: 4000, Status: ledger.StatusPending,
			DueDate: fixedNow(), StudentClassID: 5, StudentProgramID: 1},
	}
	svc, _ := newTestService(challans, nil)

	exclude := &SessionKey{ClassID: 5, ProgramID: 1}
	shortfalls, err := svc.ComputeShortfalls(ctx, 7, exclude)
	require.NoError(t, err)
	require.Len(t, shortfalls, 1)
	require.Equal(t, int64(2), shortfalls[0].Session.ClassID)
}

func TestCarryForwardAccumulates(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(nil, nil)

	first, err := svc.CarryForward(ctx, UpsertInput{
		StudentID: 7, ClassID: 2, ProgramID: 1, Amount: 500, LastInstallmentNumber: 2,
	})
	require.NoError(t, err)
	require.Equal(t, 500.0, first.ArrearAmount)

	second, err := svc.CarryForward(ctx, UpsertInput{
		StudentID: 7, ClassID: 2, ProgramID: 1, Amount: 500, LastInstallmentNumber: 1,
	})
	require.NoError(t, err)
	require.Equal(t, 1000.0, second.ArrearAmount)
	require.Equal(t, 2, second.LastInstallmentNumber, "watermark never moves backwards")
	require.Equal(t, first.ID, second.ID, "same row accumulates")
}

func TestCarryForwardValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(nil, nil)

	_, err := svc.CarryForward(ctx, UpsertInput{StudentID: 7, ClassID: 2, ProgramID: 1, Amount: 0})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CarryForward(ctx, UpsertInput{ClassID: 2, ProgramID: 1, Amount: 100})
	require.ErrorIs(t, err, shared.ErrValidation)
}
