package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusledger/campusledger/internal/platform/db"
	"github.com/campusledger/campusledger/internal/shared"
)

// Repository provides PostgreSQL backed persistence for the challan ledger.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const challanColumns = `
	id, number, student_id, fee_structure_id, tuition_amount, discount,
	fine_amount, paid_amount, arrears_amount, includes_arrears, due_date,
	paid_date, status, type, installment_number, covered_installments,
	selected_fee_head_ids, student_class_id, student_program_id,
	created_at, updated_at`

// CreateChallan inserts a challan and returns the stored row.
func (r *Repository) CreateChallan(ctx context.Context, c Challan) (*Challan, error) {
	query := `
		INSERT INTO fee_challans (
			number, student_id, fee_structure_id, tuition_amount, discount,
			fine_amount, paid_amount, arrears_amount, includes_arrears, due_date,
			paid_date, status, type, installment_number, covered_installments,
			selected_fee_head_ids, student_class_id, student_program_id,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,NOW(),NOW())
		RETURNING id, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		c.Number, c.StudentID, c.FeeStructureID, c.TuitionAmount, c.Discount,
		c.FineAmount, c.PaidAmount, c.ArrearsAmount, c.IncludesArrears, c.DueDate,
		c.PaidDate, c.Status, c.Type, c.InstallmentNumber, c.CoveredInstallments,
		SerializeHeadIDs(c.SelectedFeeHeadIDs), c.StudentClassID, c.StudentProgramID,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetChallan retrieves a challan, nil when absent.
func (r *Repository) GetChallan(ctx context.Context, id int64) (*Challan, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+challanColumns+` FROM fee_challans WHERE id = $1`, id)
	c, err := scanChallan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateChallan persists the mutable challan fields.
func (r *Repository) UpdateChallan(ctx context.Context, c *Challan) error {
	query := `
		UPDATE fee_challans SET
			tuition_amount = $2, discount = $3, fine_amount = $4, paid_amount = $5,
			arrears_amount = $6, includes_arrears = $7, due_date = $8, paid_date = $9,
			status = $10, installment_number = $11, covered_installments = $12,
			selected_fee_head_ids = $13, updated_at = NOW()
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query,
		c.ID, c.TuitionAmount, c.Discount, c.FineAmount, c.PaidAmount,
		c.ArrearsAmount, c.IncludesArrears, c.DueDate, c.PaidDate,
		c.Status, c.InstallmentNumber, c.CoveredInstallments,
		SerializeHeadIDs(c.SelectedFeeHeadIDs),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ledger: challan %d: %w", c.ID, shared.ErrNotFound)
	}
	return nil
}

// DeleteChallan removes a challan.
func (r *Repository) DeleteChallan(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM fee_challans WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ledger: challan %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

// ListStudentChallans returns the student's challans newest first.
func (r *Repository) ListStudentChallans(ctx context.Context, studentID int64) ([]Challan, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+challanColumns+` FROM fee_challans WHERE student_id = $1 ORDER BY created_at DESC, id DESC`,
		studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectChallans(rows)
}

// CountTuitionChallans counts non-voided tuition-bearing challans the
// student already has against a structure. Drives installment numbering.
func (r *Repository) CountTuitionChallans(ctx context.Context, studentID, structureID int64) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM fee_challans
		WHERE student_id = $1 AND fee_structure_id = $2
		  AND tuition_amount > 0 AND status <> 'VOIDED'`,
		studentID, structureID).Scan(&n)
	return n, err
}

// OldestUnpaidChallan returns the unsettled challan with the earliest due
// date across the student's history, nil when fully settled.
func (r *Repository) OldestUnpaidChallan(ctx context.Context, studentID int64) (*Challan, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+challanColumns+` FROM fee_challans
		WHERE student_id = $1 AND status IN ('PENDING','PARTIAL','OVERDUE')
		ORDER BY due_date ASC, id ASC LIMIT 1`,
		studentID)
	c, err := scanChallan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// VoidSessionChallans flips the student's unsettled challans of one session
// snapshot to VOIDED and returns how many rows changed.
func (r *Repository) VoidSessionChallans(ctx context.Context, studentID, classID, programID int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE fee_challans SET status = 'VOIDED', updated_at = NOW()
		WHERE student_id = $1 AND student_class_id = $2 AND student_program_id = $3
		  AND status IN ('PENDING','PARTIAL','OVERDUE')`,
		studentID, classID, programID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ReplaceInstallmentPlan rewrites the student's plan rows atomically.
func (r *Repository) ReplaceInstallmentPlan(ctx context.Context, studentID int64, plan []Installment) ([]Installment, error) {
	out := make([]Installment, 0, len(plan))
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM student_fee_installments WHERE student_id = $1`, studentID); err != nil {
			return err
		}
		for _, row := range plan {
			var id int64
			if err := tx.QueryRow(ctx, `
				INSERT INTO student_fee_installments (student_id, number, amount, due_date)
				VALUES ($1, $2, $3, $4) RETURNING id`,
				studentID, row.Number, row.Amount, row.DueDate,
			).Scan(&id); err != nil {
				return err
			}
			row.ID = id
			out = append(out, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListInstallmentPlan returns plan rows ordered by installment number.
func (r *Repository) ListInstallmentPlan(ctx context.Context, studentID int64) ([]Installment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, student_id, number, amount, due_date
		FROM student_fee_installments WHERE student_id = $1 ORDER BY number`,
		studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plan []Installment
	for rows.Next() {
		var row Installment
		if err := rows.Scan(&row.ID, &row.StudentID, &row.Number, &row.Amount, &row.DueDate); err != nil {
			return nil, err
		}
		plan = append(plan, row)
	}
	return plan, rows.Err()
}

// MarkOverdue flips PENDING challans past due to OVERDUE.
func (r *Repository) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE fee_challans SET status = 'OVERDUE', updated_at = NOW()
		WHERE status = 'PENDING' AND due_date < $1`,
		asOf)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanChallan(row pgx.Row) (*Challan, error) {
	var (
		c        Challan
		structID pgtype.Int8
		paidDate pgtype.Timestamptz
		covered  pgtype.Text
		headIDs  pgtype.Text
	)
	err := row.Scan(
		&c.ID, &c.Number, &c.StudentID, &structID, &c.TuitionAmount, &c.Discount,
		&c.FineAmount, &c.PaidAmount, &c.ArrearsAmount, &c.IncludesArrears, &c.DueDate,
		&paidDate, &c.Status, &c.Type, &c.InstallmentNumber, &covered,
		&headIDs, &c.StudentClassID, &c.StudentProgramID,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if structID.Valid {
		c.FeeStructureID = &structID.Int64
	}
	if paidDate.Valid {
		t := paidDate.Time
		c.PaidDate = &t
	}
	if covered.Valid {
		c.CoveredInstallments = covered.String
	}
	if headIDs.Valid {
		c.SelectedFeeHeadIDs = ParseHeadIDs(headIDs.String)
	}
	return &c, nil
}

func collectChallans(rows pgx.Rows) ([]Challan, error) {
	var out []Challan
	for rows.Next() {
		c, err := scanChallan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}
