package promotion

import (
	"fmt"

	"github.com/campusledger/campusledger/internal/arrears"
	"github.com/campusledger/campusledger/internal/ledger"
	"github.com/campusledger/campusledger/internal/shared"
)

// Sentinel errors for promotion sequencing.
var (
	ErrPassedOut         = fmt.Errorf("promotion: student has passed out: %w", shared.ErrInvalidState)
	ErrLastClass         = fmt.Errorf("promotion: student is in the last class of the program: %w", shared.ErrInvalidState)
	ErrFirstClass        = fmt.Errorf("promotion: student is in the first class of the program: %w", shared.ErrInvalidState)
	ErrClassNotInProgram = fmt.Errorf("promotion: target class belongs to a different program: %w", shared.ErrValidation)
	ErrSectionNotInClass = fmt.Errorf("promotion: target section does not belong to the destination class: %w", shared.ErrValidation)
)

// Input drives one promotion attempt. Force confirms carrying unpaid
// tuition forward as an arrear. TargetClassID overrides the natural next
// class; TargetSectionID overrides section placement in the destination.
type Input struct {
	StudentID       int64
	Force           bool
	TargetClassID   *int64
	TargetSectionID *int64
}

// Result reports the outcome of a promotion or demotion attempt.
// RequiresConfirmation true means nothing changed: the student owes
// tuition for the current session and the caller must retry with Force to
// carry the balance forward.
type Result struct {
	Promoted             bool             `json:"promoted"`
	RequiresConfirmation bool             `json:"requires_confirmation"`
	StudentID            int64            `json:"student_id"`
	StudentName          string           `json:"student_name,omitempty"`
	FromClassID          int64            `json:"from_class_id"`
	FromClassName        string           `json:"from_class_name,omitempty"`
	ProgramName          string           `json:"program_name,omitempty"`
	ToClassID            int64            `json:"to_class_id,omitempty"`
	SectionID            *int64           `json:"section_id,omitempty"`
	TuitionExpected      float64          `json:"tuition_expected"`
	TuitionPaid          float64          `json:"tuition_paid"`
	Shortfall            float64          `json:"shortfall"`
	UnpaidChallans       []ledger.Challan `json:"unpaid_challans,omitempty"`
	CarriedArrear        *arrears.Arrear  `json:"carried_arrear,omitempty"`
	VoidedChallans       int64            `json:"voided_challans,omitempty"`
	ChallansCreated      int              `json:"challans_created"`
}
