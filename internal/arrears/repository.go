package arrears

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for arrear rows.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Upsert accumulates an arrear increment into the row for the (student,
// class, program) triple. The installment watermark never moves backwards.
func (r *Repository) Upsert(ctx context.Context, in UpsertInput) (*Arrear, error) {
	query := `
		INSERT INTO student_arrears (student_id, class_id, program_id, arrear_amount, last_installment_number, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (student_id, class_id, program_id) DO UPDATE
		SET arrear_amount = student_arrears.arrear_amount + EXCLUDED.arrear_amount,
			last_installment_number = GREATEST(student_arrears.last_installment_number, EXCLUDED.last_installment_number),
			updated_at = NOW()
		RETURNING id, arrear_amount, last_installment_number, created_at, updated_at`

	arrear := Arrear{
		StudentID: in.StudentID,
		ClassID:   in.ClassID,
		ProgramID: in.ProgramID,
	}
	err := r.pool.QueryRow(ctx, query,
		in.StudentID, in.ClassID, in.ProgramID, in.Amount, in.LastInstallmentNumber,
	).Scan(&arrear.ID, &arrear.ArrearAmount, &arrear.LastInstallmentNumber, &arrear.CreatedAt, &arrear.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &arrear, nil
}

// ListForStudent returns the student's arrear rows newest first.
func (r *Repository) ListForStudent(ctx context.Context, studentID int64) ([]Arrear, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, student_id, class_id, program_id, arrear_amount, last_installment_number, created_at, updated_at
		FROM student_arrears WHERE student_id = $1 ORDER BY updated_at DESC`,
		studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Arrear
	for rows.Next() {
		var a Arrear
		if err := rows.Scan(
			&a.ID, &a.StudentID, &a.ClassID, &a.ProgramID,
			&a.ArrearAmount, &a.LastInstallmentNumber, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
