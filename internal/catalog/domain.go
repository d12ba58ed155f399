package catalog

import "time"

// FeeHead is a named chargeable or deductible line item with a declared
// reference amount. The reference amount is immutable once allocated to a
// structure; structures snapshot it at allocation time.
type FeeHead struct {
	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	Amount        float64 `json:"amount"`
	IsDiscount    bool    `json:"is_discount"`
	IsTuition     bool    `json:"is_tuition"`
	IsFine        bool    `json:"is_fine"`
	IsLabFee      bool    `json:"is_lab_fee"`
	IsLibraryFee  bool    `json:"is_library_fee"`
	CreatedAt     time.Time `json:"created_at"`
}

// HeadAllocation snapshots a fee head's amount at the time it was attached
// to a structure.
type HeadAllocation struct {
	FeeHeadID int64   `json:"fee_head_id"`
	Name      string  `json:"name"`
	Amount    float64 `json:"amount"`
}

// FeeStructure defines total tuition and the installment split for one
// (program, class) pair. At most one structure exists per pair.
type FeeStructure struct {
	ID               int64            `json:"id"`
	ProgramID        int64            `json:"program_id"`
	ClassID          int64            `json:"class_id"`
	TotalAmount      float64          `json:"total_amount"`
	InstallmentCount int              `json:"installment_count"`
	Heads            []HeadAllocation `json:"heads"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// UpsertStructureInput carries the fields for creating or replacing a
// structure.
type UpsertStructureInput struct {
	ProgramID        int64
	ClassID          int64
	TotalAmount      float64
	InstallmentCount int
	HeadIDs          []int64
}

// CreateHeadInput carries the fields for declaring a fee head.
type CreateHeadInput struct {
	Name         string
	Amount       float64
	IsDiscount   bool
	IsTuition    bool
	IsFine       bool
	IsLabFee     bool
	IsLibraryFee bool
}
