package promotion

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campusledger/campusledger/internal/arrears"
	"github.com/campusledger/campusledger/internal/directory"
	"github.com/campusledger/campusledger/internal/ledger"
	"github.com/campusledger/campusledger/internal/shared"
)

type fakeDirectory struct {
	students map[int64]*directory.Student
	classes  map[int64]*directory.Class
	sections map[int64]*directory.Section
}

func (f *fakeDirectory) Student(ctx context.Context, id int64) (*directory.Student, error) {
	st, ok := f.students[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *st
	return &cp, nil
}

func (f *fakeDirectory) Class(ctx context.Context, id int64) (*directory.Class, error) {
	c, ok := f.classes[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return c, nil
}

func (f *fakeDirectory) Program(ctx context.Context, id int64) (*directory.Program, error) {
	return &directory.Program{ID: id, Name: "Program"}, nil
}

func (f *fakeDirectory) ProgramClasses(ctx context.Context, programID int64) ([]directory.Class, error) {
	var out []directory.Class
	for _, c := range f.classes {
		if c.ProgramID == programID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeDirectory) Section(ctx context.Context, id int64) (*directory.Section, error) {
	return f.sections[id], nil
}

func (f *fakeDirectory) SectionByName(ctx context.Context, classID int64, name string) (*directory.Section, error) {
	for _, sec := range f.sections {
		if sec.ClassID == classID && sec.Name == name {
			return sec, nil
		}
	}
	return nil, nil
}

func (f *fakeDirectory) ApplyTransition(ctx context.Context, in directory.TransitionInput) error {
	st := f.students[in.StudentID]
	st.ClassID = in.ClassID
	st.SectionID = in.SectionID
	if in.TuitionFee != nil {
		st.TuitionFee = *in.TuitionFee
	}
	if in.InstallmentCount != nil {
		st.InstallmentCount = *in.InstallmentCount
	}
	st.PassedOut = false
	return nil
}

type fakeLedger struct {
	dir      *fakeDirectory
	challans []*ledger.Challan
	plans    map[int64][]ledger.Installment
	nextID   int64
}

func newFakeLedger(dir *fakeDirectory) *fakeLedger {
	return &fakeLedger{dir: dir, plans: make(map[int64][]ledger.Installment)}
}

func (f *fakeLedger) StudentChallans(ctx context.Context, studentID int64) ([]ledger.Challan, error) {
	var out []ledger.Challan
	for _, c := range f.challans {
		if c.StudentID == studentID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeLedger) RegenerateInstallmentPlan(ctx context.Context, studentID int64, total float64, count int, firstDue time.Time) ([]ledger.Installment, error) {
	amounts := ledger.SplitInstallments(total, count)
	rows := make([]ledger.Installment, count)
	for i, amount := range amounts {
		rows[i] = ledger.Installment{
			StudentID: studentID, Number: i + 1, Amount: amount,
			DueDate: firstDue.AddDate(0, i, 0),
		}
	}
	f.plans[studentID] = rows
	return rows, nil
}

func (f *fakeLedger) SyncChallansWithPlan(ctx context.Context, studentID int64) (int, error) {
	student := f.dir.students[studentID]
	covered := make(map[int]bool)
	for _, c := range f.challans {
		if c.StudentID == studentID && c.Status != ledger.StatusVoided &&
			c.TuitionAmount > 0 && c.StudentClassID == student.ClassID &&
			c.StudentProgramID == student.ProgramID {
			covered[c.InstallmentNumber] = true
		}
	}
	created := 0
	for _, row := range f.plans[studentID] {
		if covered[row.Number] {
			continue
		}
		f.nextID++
		f.challans = append(f.challans, &ledger.Challan{
			ID: f.nextID, StudentID: studentID, TuitionAmount: row.Amount,
			DueDate: row.DueDate, Status: ledger.StatusPending,
			Type: ledger.TypeInstallment, InstallmentNumber: row.Number,
			StudentClassID: student.ClassID, StudentProgramID: student.ProgramID,
		})
		created++
	}
	return created, nil
}

func (f *fakeLedger) VoidSessionChallans(ctx context.Context, studentID, classID, programID int64) (int64, error) {
	var n int64
	for _, c := range f.challans {
		if c.StudentID == studentID && c.StudentClassID == classID &&
			c.StudentProgramID == programID && c.Status.Unsettled() {
			c.Status = ledger.StatusVoided
			n++
		}
	}
	return n, nil
}

func (f *fakeLedger) add(c ledger.Challan) {
	f.nextID++
	c.ID = f.nextID
	f.challans = append(f.challans, &c)
}

type fakeStructures map[[2]int64]*ledger.Structure

func (f fakeStructures) StructureFor(ctx context.Context, programID, classID int64) (*ledger.Structure, error) {
	return f[[2]int64{programID, classID}], nil
}

type fakeArrears struct {
	rows []arrears.UpsertInput
}

func (f *fakeArrears) CarryForward(ctx context.Context, in arrears.UpsertInput) (*arrears.Arrear, error) {
	f.rows = append(f.rows, in)
	return &arrears.Arrear{
		ID: int64(len(f.rows)), StudentID: in.StudentID, ClassID: in.ClassID,
		ProgramID: in.ProgramID, ArrearAmount: in.Amount,
		LastInstallmentNumber: in.LastInstallmentNumber,
	}, nil
}

type fixture struct {
	dir        *fakeDirectory
	ledger     *fakeLedger
	structures fakeStructures
	arrears    *fakeArrears
	svc        *Service
}

// Program 1 has year classes 1..3 (ids 101..103). Student 7 sits in class
// 102 with a 6000/2 structure; class 103 bills 8000/4.
func newFixture() *fixture {
	dir := &fakeDirectory{
		students: map[int64]*directory.Student{
			7: {ID: 7, Name: "Bilal", ProgramID: 1, ClassID: 102},
		},
		classes: map[int64]*directory.Class{
			101: {ID: 101, ProgramID: 1, Name: "Year 1", Kind: directory.ClassKindYear, Ordinal: 1},
			102: {ID: 102, ProgramID: 1, Name: "Year 2", Kind: directory.ClassKindYear, Ordinal: 2},
			103: {ID: 103, ProgramID: 1, Name: "Year 3", Kind: directory.ClassKindYear, Ordinal: 3},
			201: {ID: 201, ProgramID: 2, Name: "Other", Kind: directory.ClassKindYear, Ordinal: 1},
		},
		sections: map[int64]*directory.Section{},
	}
	led := newFakeLedger(dir)
	structures := fakeStructures{
		{1, 102}: {ID: 10, ProgramID: 1, ClassID: 102, TotalAmount: 6000, InstallmentCount: 2},
		{1, 103}: {ID: 11, ProgramID: 1, ClassID: 103, TotalAmount: 8000, InstallmentCount: 4},
	}
	arr := &fakeArrears{}
	svc := NewService(dir, led, structures, arr, shared.NewKeyedMutex(), slog.Default())
	svc.now = func() time.Time { return time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC) }
	return &fixture{dir: dir, ledger: led, structures: structures, arrears: arr, svc: svc}
}

func TestPromoteBlockedWithoutForceWhenUnpaid(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.ledger.add(ledger.Challan{
		StudentID: 7, TuitionAmount: 3000, PaidAmount: 3000, Status: ledger.StatusPaid,
		InstallmentNumber: 1, StudentClassID: 102, StudentProgramID: 1,
	})
	f.ledger.add(ledger.Challan{
		StudentID: 7, TuitionAmount: 3000, Status: ledger.StatusPending,
		InstallmentNumber: 2, StudentClassID: 102, StudentProgramID: 1,
	})

	res, err := f.svc.Promote(ctx, Input{StudentID: 7})
	require.NoError(t, err)
	require.True(t, res.RequiresConfirmation)
	require.False(t, res.Promoted)
	require.Equal(t, 6000.0, res.TuitionExpected)
	require.Equal(t, 3000.0, res.TuitionPaid)
	require.Equal(t, 3000.0, res.Shortfall)
	require.Len(t, res.UnpaidChallans, 1)
	require.Equal(t, 2, res.UnpaidChallans[0].InstallmentNumber)

	// Nothing moved.
	require.Equal(t, int64(102), f.dir.students[7].ClassID)
	require.Empty(t, f.arrears.rows)
}

func TestPromoteForcedCarriesArrearForward(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.ledger.add(ledger.Challan{
		StudentID: 7, TuitionAmount: 3000, PaidAmount: 3000, Status: ledger.StatusPaid,
		InstallmentNumber: 1, CoveredInstallments: "1-1",
		StudentClassID: 102, StudentProgramID: 1,
	})
	f.ledger.add(ledger.Challan{
		StudentID: 7, TuitionAmount: 3000, Status: ledger.StatusOverdue,
		InstallmentNumber: 2, StudentClassID: 102, StudentProgramID: 1,
	})

	res, err := f.svc.Promote(ctx, Input{StudentID: 7, Force: true})
	require.NoError(t, err)
	require.True(t, res.Promoted)
	require.Equal(t, int64(103), res.ToClassID)
	require.NotNil(t, res.CarriedArrear)
	require.Equal(t, 3000.0, res.CarriedArrear.ArrearAmount)

	require.Len(t, f.arrears.rows, 1)
	row := f.arrears.rows[0]
	require.Equal(t, int64(102), row.ClassID, "arrear belongs to the vacated session")
	require.Equal(t, 1, row.LastInstallmentNumber)

	// Destination billing applied and challans synced for the new plan.
	st := f.dir.students[7]
	require.Equal(t, int64(103), st.ClassID)
	require.Equal(t, 8000.0, st.TuitionFee)
	require.Equal(t, 4, st.InstallmentCount)
	require.Equal(t, 4, res.ChallansCreated)
}

func TestPromoteFullyPaidNeedsNoForce(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.ledger.add(ledger.Challan{
		StudentID: 7, TuitionAmount: 6000, PaidAmount: 6000, Status: ledger.StatusPaid,
		InstallmentNumber: 1, CoveredInstallments: "1-2",
		StudentClassID: 102, StudentProgramID: 1,
	})

	res, err := f.svc.Promote(ctx, Input{StudentID: 7})
	require.NoError(t, err)
	require.True(t, res.Promoted)
	require.Nil(t, res.CarriedArrear)
	require.Empty(t, f.arrears.rows)
}

func TestPromoteTuitionOverrideTakesPrecedence(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.dir.students[7].TuitionFee = 4000
	f.ledger.add(ledger.Challan{
		StudentID: 7, TuitionAmount: 4000, PaidAmount: 4000, Status: ledger.StatusPaid,
		InstallmentNumber: 1, StudentClassID: 102, StudentProgramID: 1,
	})

	res, err := f.svc.Promote(ctx, Input{StudentID: 7})
	require.NoError(t, err)
	require.True(t, res.Promoted)
	require.Equal(t, 4000.0, res.TuitionExpected, "student override beats the 6000 structure total")
}

func TestPromoteCountsOnlyTuitionPortion(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	// Paid 5000 against a challan whose tuition portion is only 2500 after
	// discount; the excess covers fines and must not count as tuition.
	f.ledger.add(ledger.Challan{
		StudentID: 7, TuitionAmount: 3000, Discount: 500, FineAmount: 2500,
		PaidAmount: 5000, Status: ledger.StatusPaid,
		InstallmentNumber: 1, StudentClassID: 102, StudentProgramID: 1,
	})

	res, err := f.svc.Promote(ctx, Input{StudentID: 7})
	require.NoError(t, err)
	require.True(t, res.RequiresConfirmation)
	require.Equal(t, 2500.0, res.TuitionPaid)
	require.Equal(t, 3500.0, res.Shortfall)
}

func TestPromotePassedOutRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.dir.students[7].PassedOut = true

	_, err := f.svc.Promote(ctx, Input{StudentID: 7})
	require.ErrorIs(t, err, ErrPassedOut)
}

func TestPromoteLastClassRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.dir.students[7].ClassID = 103

	_, err := f.svc.Promote(ctx, Input{StudentID: 7})
	require.ErrorIs(t, err, ErrLastClass)
}

func TestPromoteTargetClassOtherProgramRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	target := int64(201)

	_, err := f.svc.Promote(ctx, Input{StudentID: 7, TargetClassID: &target})
	require.ErrorIs(t, err, ErrClassNotInProgram)
}

func TestPromoteCarriesSectionByName(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.dir.sections[1] = &directory.Section{ID: 1, ClassID: 102, Name: "Blue"}
	f.dir.sections[2] = &directory.Section{ID: 2, ClassID: 103, Name: "Blue"}
	secID := int64(1)
	f.dir.students[7].SectionID = &secID

	res, err := f.svc.Promote(ctx, Input{StudentID: 7})
	require.NoError(t, err)
	require.NotNil(t, res.SectionID)
	require.Equal(t, int64(2), *res.SectionID)
}

func TestPromoteTargetSectionOtherClassRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	// Section 5 sits in the vacated class, not the destination.
	f.dir.sections[5] = &directory.Section{ID: 5, ClassID: 102, Name: "Green"}
	f.ledger.add(ledger.Challan{
		StudentID: 7, TuitionAmount: 6000, PaidAmount: 6000, Status: ledger.StatusPaid,
		InstallmentNumber: 1, CoveredInstallments: "1-2",
		StudentClassID: 102, StudentProgramID: 1,
	})
	target := int64(5)

	_, err := f.svc.Promote(ctx, Input{StudentID: 7, TargetSectionID: &target})
	require.ErrorIs(t, err, ErrSectionNotInClass)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestPromoteKeepsOverrideWhenDestinationUnbilled(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	delete(f.structures, [2]int64{1, 103})
	f.dir.students[7].TuitionFee = 4000
	f.dir.students[7].InstallmentCount = 2
	f.ledger.add(ledger.Challan{
		StudentID: 7, TuitionAmount: 4000, PaidAmount: 4000, Status: ledger.StatusPaid,
		InstallmentNumber: 1, CoveredInstallments: "1-2",
		StudentClassID: 102, StudentProgramID: 1,
	})

	res, err := f.svc.Promote(ctx, Input{StudentID: 7})
	require.NoError(t, err)
	require.True(t, res.Promoted)

	st := f.dir.students[7]
	require.Equal(t, int64(103), st.ClassID)
	require.Equal(t, 4000.0, st.TuitionFee, "billing override survives an unbilled destination")
	require.Equal(t, 2, st.InstallmentCount)
	require.Zero(t, res.ChallansCreated)
}

func TestDemoteVoidsVacatedSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.ledger.add(ledger.Challan{
		StudentID: 7, TuitionAmount: 3000, Status: ledger.StatusPending,
		InstallmentNumber: 1, StudentClassID: 102, StudentProgramID: 1,
	})
	f.ledger.add(ledger.Challan{
		StudentID: 7, TuitionAmount: 3000, PaidAmount: 3000, Status: ledger.StatusPaid,
		InstallmentNumber: 2, StudentClassID: 102, StudentProgramID: 1,
	})

	res, err := f.svc.Demote(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, int64(101), res.ToClassID)
	require.Equal(t, int64(1), res.VoidedChallans, "PAID challans survive the void")
	require.Equal(t, int64(101), f.dir.students[7].ClassID)
}

func TestDemoteFirstClassRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.dir.students[7].ClassID = 101

	_, err := f.svc.Demote(ctx, 7)
	require.ErrorIs(t, err, ErrFirstClass)
}
