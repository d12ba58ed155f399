package arrears

import (
	"fmt"
	"time"

	"github.com/campusledger/campusledger/internal/shared"
)

// SessionKey identifies one academic session of a student, taken from the
// challan snapshot rather than the student's live record.
type SessionKey struct {
	ClassID   int64 `json:"class_id"`
	ProgramID int64 `json:"program_id"`
}

// ChallanDue is one unsettled challan contributing to a shortfall.
type ChallanDue struct {
	ChallanID   int64     `json:"challan_id"`
	Number      string    `json:"number"`
	AmountDue   float64   `json:"amount_due"`
	DueDate     time.Time `json:"due_date"`
	DaysOverdue int       `json:"days_overdue"`
}

// SessionShortfall is the computed arrear position for one past session:
// the expected session fee minus everything settled against it.
type SessionShortfall struct {
	Session           SessionKey   `json:"session"`
	ClassName         string       `json:"class_name,omitempty"`
	ExpectedAmount    float64      `json:"expected_amount"`
	PaidAmount        float64      `json:"paid_amount"`
	Shortfall         float64      `json:"shortfall"`
	OldestDaysOverdue int          `json:"oldest_days_overdue"`
	Challans          []ChallanDue `json:"challans"`
}

// Arrear is a persisted arrear row. The (student, class, program) triple is
// unique; repeated carry-forwards accumulate into the same row.
type Arrear struct {
	ID                    int64     `json:"id"`
	StudentID             int64     `json:"student_id"`
	ClassID               int64     `json:"class_id"`
	ProgramID             int64     `json:"program_id"`
	ArrearAmount          float64   `json:"arrear_amount"`
	LastInstallmentNumber int       `json:"last_installment_number"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// UpsertInput carries one carry-forward increment.
type UpsertInput struct {
	StudentID             int64
	ClassID               int64
	ProgramID             int64
	Amount                float64
	LastInstallmentNumber int
}

// Validate checks the increment invariants.
func (in UpsertInput) Validate() error {
	if in.StudentID <= 0 || in.ClassID <= 0 || in.ProgramID <= 0 {
		return fmt.Errorf("arrears: student, class and program ids required: %w", shared.ErrValidation)
	}
	if in.Amount <= 0 {
		return fmt.Errorf("arrears: amount must be positive: %w", shared.ErrValidation)
	}
	return nil
}
