package promotion

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/campusledger/campusledger/internal/arrears"
	"github.com/campusledger/campusledger/internal/directory"
	"github.com/campusledger/campusledger/internal/ledger"
	"github.com/campusledger/campusledger/internal/shared"
)

// DirectoryPort is the directory surface the promotion gate needs.
type DirectoryPort interface {
	Student(ctx context.Context, id int64) (*directory.Student, error)
	Class(ctx context.Context, id int64) (*directory.Class, error)
	Program(ctx context.Context, id int64) (*directory.Program, error)
	ProgramClasses(ctx context.Context, programID int64) ([]directory.Class, error)
	Section(ctx context.Context, id int64) (*directory.Section, error)
	SectionByName(ctx context.Context, classID int64, name string) (*directory.Section, error)
	ApplyTransition(ctx context.Context, in directory.TransitionInput) error
}

// LedgerPort is the ledger surface the promotion gate needs. The gate holds
// the student lock across the whole rebilling unit; these methods must not
// take it again.
type LedgerPort interface {
	StudentChallans(ctx context.Context, studentID int64) ([]ledger.Challan, error)
	RegenerateInstallmentPlan(ctx context.Context, studentID int64, total float64, count int, firstDue time.Time) ([]ledger.Installment, error)
	SyncChallansWithPlan(ctx context.Context, studentID int64) (int, error)
	VoidSessionChallans(ctx context.Context, studentID, classID, programID int64) (int64, error)
}

// StructureSource resolves fee structures for sessions.
type StructureSource interface {
	StructureFor(ctx context.Context, programID, classID int64) (*ledger.Structure, error)
}

// ArrearsPort carries unpaid balances forward.
type ArrearsPort interface {
	CarryForward(ctx context.Context, in arrears.UpsertInput) (*arrears.Arrear, error)
}

// MetricsRecorder receives promotion outcome counters. May be nil.
type MetricsRecorder interface {
	PromotionAttempt(outcome string)
}

// Service is the promotion gate: it settles the current session's tuition
// accounting before a student may move, carries confirmed shortfalls
// forward as arrears, and rebills the destination session.
type Service struct {
	dir        DirectoryPort
	ledger     LedgerPort
	structures StructureSource
	arrears    ArrearsPort
	locks      *shared.KeyedMutex
	metrics    MetricsRecorder
	logger     *slog.Logger
	now        func() time.Time
}

// NewService builds a Service instance.
func NewService(dir DirectoryPort, ledgerPort LedgerPort, structures StructureSource, arrearsPort ArrearsPort, locks *shared.KeyedMutex, logger *slog.Logger) *Service {
	return &Service{
		dir:        dir,
		ledger:     ledgerPort,
		structures: structures,
		arrears:    arrearsPort,
		locks:      locks,
		logger:     logger,
		now:        time.Now,
	}
}

// SetMetrics attaches outcome counters.
func (s *Service) SetMetrics(m MetricsRecorder) { s.metrics = m }

func (s *Service) record(outcome string) {
	if s.metrics != nil {
		s.metrics.PromotionAttempt(outcome)
	}
}

// Promote moves a student to the next class (or an explicit target class in
// the same program). When the current session's tuition is not fully
// covered, an unforced attempt returns a requires-confirmation result and
// changes nothing; a forced attempt carries the shortfall forward as an
// arrear against the vacated session and proceeds.
func (s *Service) Promote(ctx context.Context, in Input) (*Result, error) {
	student, err := s.dir.Student(ctx, in.StudentID)
	if err != nil {
		return nil, err
	}
	if student.PassedOut {
		s.record("rejected")
		return nil, ErrPassedOut
	}

	s.locks.Lock(student.ID)
	defer s.locks.Unlock(student.ID)

	acct, err := s.currentSessionAccounting(ctx, student)
	if err != nil {
		return nil, err
	}

	result := &Result{
		StudentID:       student.ID,
		StudentName:     student.Name,
		FromClassID:     student.ClassID,
		TuitionExpected: acct.expected,
		TuitionPaid:     acct.paid,
		Shortfall:       acct.shortfall,
	}

	if acct.shortfall > 0 && !in.Force {
		result.RequiresConfirmation = true
		result.UnpaidChallans = acct.unpaid
		if class, err := s.dir.Class(ctx, student.ClassID); err == nil {
			result.FromClassName = class.Name
		}
		if program, err := s.dir.Program(ctx, student.ProgramID); err == nil {
			result.ProgramName = program.Name
		}
		s.record("needs_confirmation")
		return result, nil
	}

	dest, err := s.resolveDestination(ctx, student, in.TargetClassID)
	if err != nil {
		s.record("rejected")
		return nil, err
	}

	if acct.shortfall > 0 {
		carried, err := s.arrears.CarryForward(ctx, arrears.UpsertInput{
			StudentID:             student.ID,
			ClassID:               student.ClassID,
			ProgramID:             student.ProgramID,
			Amount:                acct.shortfall,
			LastInstallmentNumber: acct.lastPaidInstallment,
		})
		if err != nil {
			return nil, err
		}
		result.CarriedArrear = carried
	}

	sectionID, err := s.resolveSection(ctx, student, dest.ID, in.TargetSectionID)
	if err != nil {
		return nil, err
	}

	if err := s.rebill(ctx, result, student, dest, sectionID); err != nil {
		return nil, err
	}

	result.Promoted = true
	s.record("promoted")
	s.logger.Info("student promoted",
		slog.Int64("student_id", student.ID),
		slog.Int64("from_class", result.FromClassID),
		slog.Int64("to_class", result.ToClassID),
		slog.Float64("carried_shortfall", acct.shortfall),
	)
	return result, nil
}

// Demote moves a student back to the previous class in promotion order. The
// vacated session's unsettled challans are demoted to VOIDED rather than
// deleted, so the billing history survives while balances reset.
func (s *Service) Demote(ctx context.Context, studentID int64) (*Result, error) {
	student, err := s.dir.Student(ctx, studentID)
	if err != nil {
		return nil, err
	}

	s.locks.Lock(student.ID)
	defer s.locks.Unlock(student.ID)

	classes, err := s.dir.ProgramClasses(ctx, student.ProgramID)
	if err != nil {
		return nil, err
	}
	prev, ok := directory.PreviousClass(classes, student.ClassID)
	if !ok {
		s.record("rejected")
		return nil, ErrFirstClass
	}

	vacatedClassID := student.ClassID
	result := &Result{StudentID: student.ID, FromClassID: vacatedClassID}

	sectionID, err := s.resolveSection(ctx, student, prev.ID, nil)
	if err != nil {
		return nil, err
	}

	if err := s.rebill(ctx, result, student, prev, sectionID); err != nil {
		return nil, err
	}

	voided, err := s.ledger.VoidSessionChallans(ctx, student.ID, vacatedClassID, student.ProgramID)
	if err != nil {
		return nil, err
	}
	result.VoidedChallans = voided
	result.Promoted = true
	s.record("demoted")
	s.logger.Info("student demoted",
		slog.Int64("student_id", student.ID),
		slog.Int64("from_class", vacatedClassID),
		slog.Int64("to_class", prev.ID),
		slog.Int64("voided_challans", voided),
	)
	return result, nil
}

type sessionAccounting struct {
	expected            float64
	paid                float64
	shortfall           float64
	lastPaidInstallment int
	unpaid              []ledger.Challan
}

// currentSessionAccounting computes the tuition portion the student has
// settled for the current session. Only the tuition component counts:
// per challan the credit is min(paidAmount, tuition - discount), so fee-head
// and fine payments never inflate the tuition position.
func (s *Service) currentSessionAccounting(ctx context.Context, student *directory.Student) (*sessionAccounting, error) {
	acct := &sessionAccounting{}

	// Per-student override takes precedence over the structure total.
	if student.TuitionFee > 0 {
		acct.expected = student.TuitionFee
	} else {
		structure, err := s.structures.StructureFor(ctx, student.ProgramID, student.ClassID)
		if err != nil {
			return nil, err
		}
		if structure != nil {
			acct.expected = structure.TotalAmount
		}
	}

	challans, err := s.ledger.StudentChallans(ctx, student.ID)
	if err != nil {
		return nil, err
	}
	for _, c := range challans {
		if c.StudentClassID != student.ClassID || c.StudentProgramID != student.ProgramID {
			continue
		}
		if c.Status == ledger.StatusVoided || c.TuitionAmount <= 0 {
			continue
		}
		tuitionDue := c.TuitionAmount - c.Discount
		if tuitionDue < 0 {
			tuitionDue = 0
		}
		credit := c.PaidAmount
		if credit > tuitionDue {
			credit = tuitionDue
		}
		acct.paid += credit

		if c.Status == ledger.StatusPaid {
			if end := ledger.CoveredEnd(c.CoveredInstallments, c.InstallmentNumber); end > acct.lastPaidInstallment {
				acct.lastPaidInstallment = end
			}
			continue
		}
		if c.Status.Unsettled() {
			acct.unpaid = append(acct.unpaid, c)
		}
	}

	sort.Slice(acct.unpaid, func(i, j int) bool {
		if acct.unpaid[i].InstallmentNumber != acct.unpaid[j].InstallmentNumber {
			return acct.unpaid[i].InstallmentNumber < acct.unpaid[j].InstallmentNumber
		}
		return acct.unpaid[i].DueDate.Before(acct.unpaid[j].DueDate)
	})

	acct.shortfall = acct.expected - acct.paid
	if acct.shortfall < 0 {
		acct.shortfall = 0
	}
	return acct, nil
}

func (s *Service) resolveDestination(ctx context.Context, student *directory.Student, targetClassID *int64) (directory.Class, error) {
	if targetClassID != nil {
		class, err := s.dir.Class(ctx, *targetClassID)
		if err != nil {
			return directory.Class{}, err
		}
		if class.ProgramID != student.ProgramID {
			return directory.Class{}, ErrClassNotInProgram
		}
		return *class, nil
	}

	classes, err := s.dir.ProgramClasses(ctx, student.ProgramID)
	if err != nil {
		return directory.Class{}, err
	}
	next, ok := directory.NextClass(classes, student.ClassID)
	if !ok {
		return directory.Class{}, ErrLastClass
	}
	return next, nil
}

// resolveSection places the student in the destination class: an explicit
// target section wins, otherwise a section with the same name as the
// student's current one, otherwise no section.
func (s *Service) resolveSection(ctx context.Context, student *directory.Student, destClassID int64, targetSectionID *int64) (*int64, error) {
	if targetSectionID != nil {
		section, err := s.dir.Section(ctx, *targetSectionID)
		if err != nil {
			return nil, err
		}
		if section == nil || section.ClassID != destClassID {
			return nil, ErrSectionNotInClass
		}
		return &section.ID, nil
	}

	if student.SectionID == nil {
		return nil, nil
	}
	current, err := s.dir.Section(ctx, *student.SectionID)
	if err != nil || current == nil {
		return nil, err
	}
	match, err := s.dir.SectionByName(ctx, destClassID, current.Name)
	if err != nil {
		return nil, err
	}
	if match == nil {
		return nil, nil
	}
	return &match.ID, nil
}

// rebill applies the class transition and rebuilds the billing artifacts
// for the destination session: structure-driven billing overrides, a fresh
// installment plan, and the challans the plan implies.
func (s *Service) rebill(ctx context.Context, result *Result, student *directory.Student, dest directory.Class, sectionID *int64) error {
	structure, err := s.structures.StructureFor(ctx, student.ProgramID, dest.ID)
	if err != nil {
		return err
	}

	transition := directory.TransitionInput{
		StudentID: student.ID,
		ClassID:   dest.ID,
		SectionID: sectionID,
	}
	if structure != nil {
		tuition := structure.TotalAmount
		count := 1
		if structure.InstallmentCount > 0 {
			count = structure.InstallmentCount
		}
		transition.TuitionFee = &tuition
		transition.InstallmentCount = &count
	}

	if err := s.dir.ApplyTransition(ctx, transition); err != nil {
		return err
	}
	student.ClassID = dest.ID
	student.SectionID = sectionID

	result.ToClassID = dest.ID
	result.SectionID = sectionID

	// Without a destination structure the student keeps any billing
	// override already on record; no plan or challans to rebuild.
	if structure == nil {
		return nil
	}
	student.TuitionFee = *transition.TuitionFee
	student.InstallmentCount = *transition.InstallmentCount

	firstDue := firstOfNextMonth(s.now())
	if _, err := s.ledger.RegenerateInstallmentPlan(ctx, student.ID, *transition.TuitionFee, *transition.InstallmentCount, firstDue); err != nil {
		return err
	}
	created, err := s.ledger.SyncChallansWithPlan(ctx, student.ID)
	if err != nil {
		return err
	}
	result.ChallansCreated = created
	return nil
}

func firstOfNextMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location()).AddDate(0, 1, 0)
}
