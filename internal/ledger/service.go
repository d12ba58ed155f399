package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/campusledger/campusledger/internal/shared"
)

// RepositoryPort defines data access methods for the challan ledger.
type RepositoryPort interface {
	CreateChallan(ctx context.Context, c Challan) (*Challan, error)
	GetChallan(ctx context.Context, id int64) (*Challan, error)
	UpdateChallan(ctx context.Context, c *Challan) error
	DeleteChallan(ctx context.Context, id int64) error
	ListStudentChallans(ctx context.Context, studentID int64) ([]Challan, error)
	CountTuitionChallans(ctx context.Context, studentID, structureID int64) (int, error)
	// OldestUnpaidChallan returns the unsettled challan with the earliest due
	// date across the student's whole history, nil when none exists.
	OldestUnpaidChallan(ctx context.Context, studentID int64) (*Challan, error)
	VoidSessionChallans(ctx context.Context, studentID, classID, programID int64) (int64, error)
	// ReplaceInstallmentPlan deletes the student's plan rows and inserts the
	// replacement as one atomic unit.
	ReplaceInstallmentPlan(ctx context.Context, studentID int64, rows []Installment) ([]Installment, error)
	ListInstallmentPlan(ctx context.Context, studentID int64) ([]Installment, error)
	MarkOverdue(ctx context.Context, asOf time.Time) (int64, error)
}

// StructureSource resolves fee structures from the catalog.
type StructureSource interface {
	StructureFor(ctx context.Context, programID, classID int64) (*Structure, error)
	StructureByID(ctx context.Context, id int64) (*Structure, error)
}

// StudentSource resolves students from the directory.
type StudentSource interface {
	Student(ctx context.Context, id int64) (*StudentInfo, error)
}

// MetricsRecorder receives domain counter updates. May be nil.
type MetricsRecorder interface {
	ChallanIssued(challanType string)
	PaymentRecorded()
}

// MutationListener is notified after every ledger mutation, e.g. to
// invalidate derived report caches. May be nil.
type MutationListener interface {
	LedgerMutated(ctx context.Context)
}

// ErrNoUnpaidChallan is returned for a pure-arrears challan when the student
// has no unsettled challan anywhere in history to attribute the session to.
var ErrNoUnpaidChallan = fmt.Errorf("ledger: no unpaid challan to resolve arrears session: %w", shared.ErrInvalidState)

// Service handles challan ledger business logic. Mutating operations are
// serialized per student through the shared lock table; installment
// numbering is a count-then-increment sequence and must not interleave for
// the same student.
type Service struct {
	repo       RepositoryPort
	structures StructureSource
	students   StudentSource
	locks      *shared.KeyedMutex
	metrics    MetricsRecorder
	listener   MutationListener
	logger     *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, structures StructureSource, students StudentSource, locks *shared.KeyedMutex, logger *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		structures: structures,
		students:   students,
		locks:      locks,
		logger:     logger,
	}
}

// SetMetrics attaches domain counters.
func (s *Service) SetMetrics(m MetricsRecorder) { s.metrics = m }

// SetMutationListener attaches a post-mutation hook.
func (s *Service) SetMutationListener(l MutationListener) { s.listener = l }

func (s *Service) mutated(ctx context.Context) {
	if s.listener != nil {
		s.listener.LedgerMutated(ctx)
	}
}

// IssueChallanInput carries the caller-supplied fields for a new challan.
// Amount nil means "derive from the fee structure"; FeeStructureID nil means
// "auto-fill from the resolved session".
type IssueChallanInput struct {
	StudentID       int64
	Amount          *float64
	FeeStructureID  *int64
	SelectedHeadIDs []int64
	IncludesArrears bool
	ArrearsAmount   float64
	DueDate         time.Time
	Discount        float64
	FineAmount      float64
}

// Validate checks the input invariants that do not need repository access.
func (in IssueChallanInput) Validate() error {
	if in.StudentID <= 0 {
		return fmt.Errorf("ledger: student id required: %w", shared.ErrValidation)
	}
	if in.DueDate.IsZero() {
		return fmt.Errorf("ledger: due date required: %w", shared.ErrValidation)
	}
	if in.ArrearsAmount < 0 || in.Discount < 0 || in.FineAmount < 0 {
		return fmt.Errorf("ledger: amounts must not be negative: %w", shared.ErrValidation)
	}
	return nil
}

// IssueChallan creates a billing document for a student.
//
// The session snapshot is the student's current class/program, except for a
// pure-arrears challan (arrears requested, no explicit amount, no heads):
// there the session comes from the oldest unsettled challan in the student's
// history, so the settlement is attributed to the session the debt
// originated in rather than the student's present session.
func (s *Service) IssueChallan(ctx context.Context, in IssueChallanInput) (*Challan, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	student, err := s.students.Student(ctx, in.StudentID)
	if err != nil {
		return nil, err
	}

	s.locks.Lock(in.StudentID)
	defer s.locks.Unlock(in.StudentID)

	sessionClassID := student.ClassID
	sessionProgramID := student.ProgramID
	pureArrears := in.IncludesArrears && in.Amount == nil && len(in.SelectedHeadIDs) == 0
	if pureArrears {
		oldest, err := s.repo.OldestUnpaidChallan(ctx, in.StudentID)
		if err != nil {
			return nil, err
		}
		if oldest == nil {
			return nil, ErrNoUnpaidChallan
		}
		sessionClassID = oldest.StudentClassID
		sessionProgramID = oldest.StudentProgramID
	}

	structureID := in.FeeStructureID
	var structure *Structure
	if structureID != nil {
		structure, err = s.structures.StructureByID(ctx, *structureID)
		if err != nil {
			return nil, err
		}
	} else {
		structure, err = s.structures.StructureFor(ctx, sessionProgramID, sessionClassID)
		if err != nil {
			return nil, err
		}
		if structure != nil {
			structureID = &structure.ID
		}
	}

	var tuition float64
	switch {
	case in.Amount != nil:
		tuition = *in.Amount
	case !pureArrears && structure != nil && structure.InstallmentCount > 0:
		tuition = structure.TotalAmount / float64(structure.InstallmentCount)
	}

	// Count-then-increment; safe only because the student lock is held.
	installmentNumber := 0
	if tuition > 0 && structureID != nil {
		prior, err := s.repo.CountTuitionChallans(ctx, in.StudentID, *structureID)
		if err != nil {
			return nil, err
		}
		installmentNumber = prior + 1
	}

	challanType := ComputeChallanType(
		tuition > 0,
		len(in.SelectedHeadIDs) > 0,
		in.IncludesArrears && in.ArrearsAmount > 0,
	)

	challan := Challan{
		Number:             "CHN-" + strings.ToUpper(uuid.NewString()[:8]),
		StudentID:          in.StudentID,
		FeeStructureID:     structureID,
		TuitionAmount:      tuition,
		Discount:           in.Discount,
		FineAmount:         in.FineAmount,
		ArrearsAmount:      in.ArrearsAmount,
		IncludesArrears:    in.IncludesArrears,
		DueDate:            dateOnly(in.DueDate),
		Status:             StatusPending,
		Type:               challanType,
		InstallmentNumber:  installmentNumber,
		SelectedFeeHeadIDs: in.SelectedHeadIDs,
		StudentClassID:     sessionClassID,
		StudentProgramID:   sessionProgramID,
	}

	created, err := s.repo.CreateChallan(ctx, challan)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.ChallanIssued(string(created.Type))
	}
	s.mutated(ctx)
	return created, nil
}

// RecordPayment records a declared payment against a challan. The challan
// becomes PAID when the paid amount covers tuition+fine-discount, PARTIAL
// otherwise. A PAID challan never regresses to a lesser status.
func (s *Service) RecordPayment(ctx context.Context, challanID int64, paidAmount float64, paidDate *time.Time) (*Challan, error) {
	if paidAmount < 0 {
		return nil, fmt.Errorf("ledger: paid amount must not be negative: %w", shared.ErrValidation)
	}

	challan, err := s.getChallan(ctx, challanID)
	if err != nil {
		return nil, err
	}

	s.locks.Lock(challan.StudentID)
	defer s.locks.Unlock(challan.StudentID)

	challan, err = s.getChallan(ctx, challanID)
	if err != nil {
		return nil, err
	}
	if challan.Status == StatusVoided {
		return nil, fmt.Errorf("ledger: challan %s is voided: %w", challan.Number, shared.ErrInvalidState)
	}

	challan.PaidAmount = paidAmount
	if challan.Status != StatusPaid {
		if paidAmount >= challan.PayableTotal() {
			challan.Status = StatusPaid
			when := time.Now()
			if paidDate != nil {
				when = *paidDate
			}
			d := dateOnly(when)
			challan.PaidDate = &d
		} else {
			challan.Status = StatusPartial
			if paidDate != nil {
				d := dateOnly(*paidDate)
				challan.PaidDate = &d
			}
		}
	}

	if err := s.repo.UpdateChallan(ctx, challan); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.PaymentRecorded()
	}
	s.mutated(ctx)
	return challan, nil
}

// UpdateChallanInput lists the patchable challan fields. The challan type is
// fixed at issuance and never re-derived.
type UpdateChallanInput struct {
	TuitionAmount       *float64
	Discount            *float64
	FineAmount          *float64
	PaidAmount          *float64
	DueDate             *time.Time
	PaidDate            *time.Time
	CoveredInstallments *string
	SelectedFeeHeadIDs  *[]int64
}

// UpdateChallan applies a partial update. Dates are normalised to day
// precision and the selected head set is re-serialized.
func (s *Service) UpdateChallan(ctx context.Context, challanID int64, in UpdateChallanInput) (*Challan, error) {
	challan, err := s.getChallan(ctx, challanID)
	if err != nil {
		return nil, err
	}

	s.locks.Lock(challan.StudentID)
	defer s.locks.Unlock(challan.StudentID)

	challan, err = s.getChallan(ctx, challanID)
	if err != nil {
		return nil, err
	}

	if in.TuitionAmount != nil {
		challan.TuitionAmount = *in.TuitionAmount
	}
	if in.Discount != nil {
		challan.Discount = *in.Discount
	}
	if in.FineAmount != nil {
		challan.FineAmount = *in.FineAmount
	}
	if in.PaidAmount != nil {
		challan.PaidAmount = *in.PaidAmount
	}
	if in.DueDate != nil {
		challan.DueDate = dateOnly(*in.DueDate)
	}
	if in.PaidDate != nil {
		d := dateOnly(*in.PaidDate)
		challan.PaidDate = &d
	}
	if in.CoveredInstallments != nil {
		challan.CoveredInstallments = *in.CoveredInstallments
	}
	if in.SelectedFeeHeadIDs != nil {
		challan.SelectedFeeHeadIDs = *in.SelectedFeeHeadIDs
	}

	if err := s.repo.UpdateChallan(ctx, challan); err != nil {
		return nil, err
	}
	s.mutated(ctx)
	return challan, nil
}

// DeleteChallan removes a challan outright.
func (s *Service) DeleteChallan(ctx context.Context, challanID int64) error {
	challan, err := s.getChallan(ctx, challanID)
	if err != nil {
		return err
	}

	s.locks.Lock(challan.StudentID)
	defer s.locks.Unlock(challan.StudentID)

	if err := s.repo.DeleteChallan(ctx, challanID); err != nil {
		return err
	}
	s.mutated(ctx)
	return nil
}

// Challan returns a challan by id.
func (s *Service) Challan(ctx context.Context, challanID int64) (*Challan, error) {
	return s.getChallan(ctx, challanID)
}

// StudentChallans returns the student's full challan history.
func (s *Service) StudentChallans(ctx context.Context, studentID int64) ([]Challan, error) {
	return s.repo.ListStudentChallans(ctx, studentID)
}

// InstallmentPlan returns the student's override plan rows in order.
func (s *Service) InstallmentPlan(ctx context.Context, studentID int64) ([]Installment, error) {
	return s.repo.ListInstallmentPlan(ctx, studentID)
}

// RegenerateInstallmentPlan replaces the student's plan with an equal split
// of total over count installments due monthly from firstDue. The caller
// (the promotion gate) holds the student lock for the whole rebilling unit.
func (s *Service) RegenerateInstallmentPlan(ctx context.Context, studentID int64, total float64, count int, firstDue time.Time) ([]Installment, error) {
	if count < 1 {
		return nil, fmt.Errorf("ledger: installment count must be at least 1: %w", shared.ErrValidation)
	}
	amounts := SplitInstallments(total, count)
	rows := make([]Installment, count)
	for i, amount := range amounts {
		rows[i] = Installment{
			StudentID: studentID,
			Number:    i + 1,
			Amount:    amount,
			DueDate:   dateOnly(firstDue.AddDate(0, i, 0)),
		}
	}
	return s.repo.ReplaceInstallmentPlan(ctx, studentID, rows)
}

// SyncChallansWithPlan reconciles the student's challans against the
// installment plan: every plan row whose installment number is not yet
// covered by an existing tuition challan for the structure gets a PENDING
// challan. Re-running the sync with no intervening writes creates nothing.
// The caller holds the student lock.
func (s *Service) SyncChallansWithPlan(ctx context.Context, studentID int64) (int, error) {
	student, err := s.students.Student(ctx, studentID)
	if err != nil {
		return 0, err
	}
	structure, err := s.structures.StructureFor(ctx, student.ProgramID, student.ClassID)
	if err != nil {
		return 0, err
	}
	if structure == nil {
		return 0, nil
	}

	plan, err := s.repo.ListInstallmentPlan(ctx, studentID)
	if err != nil {
		return 0, err
	}
	existing, err := s.repo.ListStudentChallans(ctx, studentID)
	if err != nil {
		return 0, err
	}

	covered := make(map[int]bool)
	for _, c := range existing {
		if c.Status == StatusVoided || c.TuitionAmount <= 0 {
			continue
		}
		if c.FeeStructureID == nil || *c.FeeStructureID != structure.ID {
			continue
		}
		for _, n := range coveredNumbers(c) {
			covered[n] = true
		}
	}

	created := 0
	for _, row := range plan {
		if covered[row.Number] {
			continue
		}
		challan := Challan{
			Number:            "CHN-" + strings.ToUpper(uuid.NewString()[:8]),
			StudentID:         studentID,
			FeeStructureID:    &structure.ID,
			TuitionAmount:     row.Amount,
			DueDate:           row.DueDate,
			Status:            StatusPending,
			Type:              TypeInstallment,
			InstallmentNumber: row.Number,
			StudentClassID:    student.ClassID,
			StudentProgramID:  student.ProgramID,
		}
		if _, err := s.repo.CreateChallan(ctx, challan); err != nil {
			return created, err
		}
		created++
	}
	if created > 0 {
		s.mutated(ctx)
	}
	return created, nil
}

// VoidSessionChallans marks the student's unsettled challans whose snapshot
// matches the vacated (class, program) as VOIDED. PAID challans are left
// untouched. The caller holds the student lock.
func (s *Service) VoidSessionChallans(ctx context.Context, studentID, classID, programID int64) (int64, error) {
	voided, err := s.repo.VoidSessionChallans(ctx, studentID, classID, programID)
	if err != nil {
		return 0, err
	}
	if voided > 0 {
		s.mutated(ctx)
	}
	return voided, nil
}

// MarkOverdueChallans flips PENDING challans past their due date to OVERDUE.
// Invoked by the nightly sweep job.
func (s *Service) MarkOverdueChallans(ctx context.Context, asOf time.Time) (int64, error) {
	n, err := s.repo.MarkOverdue(ctx, asOf)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("marked challans overdue", slog.Int64("count", n))
		s.mutated(ctx)
	}
	return n, nil
}

func (s *Service) getChallan(ctx context.Context, id int64) (*Challan, error) {
	challan, err := s.repo.GetChallan(ctx, id)
	if err != nil {
		return nil, err
	}
	if challan == nil {
		return nil, fmt.Errorf("ledger: challan %d: %w", id, shared.ErrNotFound)
	}
	return challan, nil
}

// coveredNumbers expands a challan to the installment numbers it clears.
func coveredNumbers(c Challan) []int {
	start := c.InstallmentNumber
	end := CoveredEnd(c.CoveredInstallments, c.InstallmentNumber)
	if strings.Contains(c.CoveredInstallments, "-") {
		parts := strings.SplitN(c.CoveredInstallments, "-", 2)
		if n, err := parseInt(parts[0]); err == nil {
			start = n
		}
	}
	if start <= 0 {
		start = end
	}
	var nums []int
	for n := start; n <= end; n++ {
		nums = append(nums, n)
	}
	return nums
}

func parseInt(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &n)
	return n, err
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
