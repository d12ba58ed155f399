package ledger

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Status enumerates challan lifecycle states. VOIDED marks challans of a
// vacated session after demotion; voided challans are excluded from every
// balance computation but keep the billing history intact.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusPartial Status = "PARTIAL"
	StatusPaid    Status = "PAID"
	StatusOverdue Status = "OVERDUE"
	StatusVoided  Status = "VOIDED"
)

// Unsettled reports whether the status still carries collectable debt.
func (s Status) Unsettled() bool {
	return s == StatusPending || s == StatusPartial || s == StatusOverdue
}

// Type classifies what a challan bills for.
type Type string

const (
	TypeInstallment  Type = "INSTALLMENT"
	TypeFeeHeadsOnly Type = "FEE_HEADS_ONLY"
	TypeArrearsOnly  Type = "ARREARS_ONLY"
	TypeMixed        Type = "MIXED"
)

// Challan is the billing document issued to a student. StudentClassID and
// StudentProgramID snapshot the student's session at creation time and are
// immutable afterwards: historical attribution always uses the snapshot,
// never the student's live class/program.
type Challan struct {
	ID                  int64      `json:"id"`
	Number              string     `json:"number"`
	StudentID           int64      `json:"student_id"`
	FeeStructureID      *int64     `json:"fee_structure_id,omitempty"`
	TuitionAmount       float64    `json:"tuition_amount"`
	Discount            float64    `json:"discount"`
	FineAmount          float64    `json:"fine_amount"`
	PaidAmount          float64    `json:"paid_amount"`
	ArrearsAmount       float64    `json:"arrears_amount"`
	IncludesArrears     bool       `json:"includes_arrears"`
	DueDate             time.Time  `json:"due_date"`
	PaidDate            *time.Time `json:"paid_date,omitempty"`
	Status              Status     `json:"status"`
	Type                Type       `json:"type"`
	InstallmentNumber   int        `json:"installment_number"`
	CoveredInstallments string     `json:"covered_installments,omitempty"`
	SelectedFeeHeadIDs  []int64    `json:"selected_fee_head_ids,omitempty"`
	StudentClassID      int64      `json:"student_class_id"`
	StudentProgramID    int64      `json:"student_program_id"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// PayableTotal is the amount the challan asks for.
func (c Challan) PayableTotal() float64 {
	return c.TuitionAmount + c.FineAmount - c.Discount
}

// AmountDue is what remains unpaid on the challan.
func (c Challan) AmountDue() float64 {
	return c.PayableTotal() - c.PaidAmount
}

// DaysOverdue is the number of whole days the challan is past due at now,
// never negative.
func (c Challan) DaysOverdue(now time.Time) int {
	days := int(math.Floor(now.Sub(c.DueDate).Hours() / 24))
	if days < 0 {
		return 0
	}
	return days
}

// Installment is one row of a student's override payment plan
// (StudentFeeInstallment). The plan replaces the structure's equal-split
// default and is regenerated wholesale on promotion.
type Installment struct {
	ID        int64     `json:"id"`
	StudentID int64     `json:"student_id"`
	Number    int       `json:"number"`
	Amount    float64   `json:"amount"`
	DueDate   time.Time `json:"due_date"`
}

// Structure is the narrow fee-structure view the ledger needs.
type Structure struct {
	ID               int64
	ProgramID        int64
	ClassID          int64
	TotalAmount      float64
	InstallmentCount int
}

// StudentInfo is the narrow directory view the ledger needs.
type StudentInfo struct {
	ID               int64
	Name             string
	ProgramID        int64
	ClassID          int64
	TuitionFee       float64
	InstallmentCount int
}

// ComputeChallanType classifies a challan from its components. First match
// wins: a tuition-free arrears settlement is ARREARS_ONLY, a tuition-free
// head selection is FEE_HEADS_ONLY (even when it also carries arrears), any
// remaining combination of two components is MIXED, a plain tuition charge
// is INSTALLMENT. A challan with no component at all falls through to
// INSTALLMENT: it is treated as a zero-amount tuition installment.
func ComputeChallanType(hasTuition, hasHeads, hasArrears bool) Type {
	switch {
	case !hasTuition && hasArrears && !hasHeads:
		return TypeArrearsOnly
	case !hasTuition && hasHeads:
		return TypeFeeHeadsOnly
	case (hasArrears && hasTuition) || (hasArrears && hasHeads) || (hasTuition && hasHeads):
		return TypeMixed
	default:
		return TypeInstallment
	}
}

// SplitInstallments divides total into n equal whole-unit amounts, adding
// the division remainder to the last installment so the parts sum exactly
// to total.
func SplitInstallments(total float64, n int) []float64 {
	if n < 1 {
		return nil
	}
	base := math.Floor(total / float64(n))
	amounts := make([]float64, n)
	for i := 0; i < n-1; i++ {
		amounts[i] = base
	}
	amounts[n-1] = total - base*float64(n-1)
	return amounts
}

// CoveredEnd parses the end of a covered-installments range such as "1-6",
// falling back to the challan's own installment number when the range is
// absent or malformed. A bare number covers just itself.
func CoveredEnd(covered string, installmentNumber int) int {
	covered = strings.TrimSpace(covered)
	if covered == "" {
		return installmentNumber
	}
	parts := strings.SplitN(covered, "-", 2)
	last := parts[len(parts)-1]
	end, err := strconv.Atoi(strings.TrimSpace(last))
	if err != nil {
		return installmentNumber
	}
	return end
}

// SerializeHeadIDs renders the ordered head-id set as a comma-joined string
// for storage.
func SerializeHeadIDs(ids []int64) string {
	if len(ids) == 0 {
		return ""
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

// ParseHeadIDs parses a stored head-id string back into the ordered set.
func ParseHeadIDs(s string) []int64 {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
