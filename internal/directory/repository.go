package directory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for the directory.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetStudent retrieves a student by ID, nil when absent.
func (r *Repository) GetStudent(ctx context.Context, id int64) (*Student, error) {
	query := `
		SELECT id, name, reg_no, program_id, class_id, section_id,
			tuition_fee, installment_count, passed_out
		FROM students
		WHERE id = $1`

	var st Student
	var sectionID pgtype.Int8
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&st.ID, &st.Name, &st.RegNo, &st.ProgramID, &st.ClassID, &sectionID,
		&st.TuitionFee, &st.InstallmentCount, &st.PassedOut,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if sectionID.Valid {
		st.SectionID = &sectionID.Int64
	}
	return &st, nil
}

// GetClass retrieves a class by ID, nil when absent.
func (r *Repository) GetClass(ctx context.Context, id int64) (*Class, error) {
	query := `SELECT id, program_id, name, kind, ordinal FROM classes WHERE id = $1`

	var c Class
	err := r.pool.QueryRow(ctx, query, id).Scan(&c.ID, &c.ProgramID, &c.Name, &c.Kind, &c.Ordinal)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetProgram retrieves a program by ID, nil when absent.
func (r *Repository) GetProgram(ctx context.Context, id int64) (*Program, error) {
	var p Program
	err := r.pool.QueryRow(ctx, `SELECT id, name FROM programs WHERE id = $1`, id).Scan(&p.ID, &p.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProgramClasses returns every class of a program.
func (r *Repository) ListProgramClasses(ctx context.Context, programID int64) ([]Class, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, program_id, name, kind, ordinal FROM classes WHERE program_id = $1`,
		programID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var classes []Class
	for rows.Next() {
		var c Class
		if err := rows.Scan(&c.ID, &c.ProgramID, &c.Name, &c.Kind, &c.Ordinal); err != nil {
			return nil, err
		}
		classes = append(classes, c)
	}
	return classes, rows.Err()
}

// GetSection retrieves a section by ID, nil when absent.
func (r *Repository) GetSection(ctx context.Context, id int64) (*Section, error) {
	var s Section
	err := r.pool.QueryRow(ctx,
		`SELECT id, class_id, name FROM sections WHERE id = $1`, id,
	).Scan(&s.ID, &s.ClassID, &s.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// FindSectionByName finds a section of a class by name, nil when absent.
func (r *Repository) FindSectionByName(ctx context.Context, classID int64, name string) (*Section, error) {
	var s Section
	err := r.pool.QueryRow(ctx,
		`SELECT id, class_id, name FROM sections WHERE class_id = $1 AND name = $2`,
		classID, name,
	).Scan(&s.ID, &s.ClassID, &s.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ApplyTransition updates the student's class, section and billing override
// fields in one statement; the passed-out flag is always cleared. Unset
// billing fields keep their stored values.
func (r *Repository) ApplyTransition(ctx context.Context, in TransitionInput) error {
	var sectionID pgtype.Int8
	if in.SectionID != nil {
		sectionID = pgtype.Int8{Int64: *in.SectionID, Valid: true}
	}
	var tuition pgtype.Float8
	if in.TuitionFee != nil {
		tuition = pgtype.Float8{Float64: *in.TuitionFee, Valid: true}
	}
	var count pgtype.Int4
	if in.InstallmentCount != nil {
		count = pgtype.Int4{Int32: int32(*in.InstallmentCount), Valid: true}
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE students
		SET class_id = $2, section_id = $3,
			tuition_fee = COALESCE($4, tuition_fee),
			installment_count = COALESCE($5, installment_count),
			passed_out = FALSE, updated_at = NOW()
		WHERE id = $1`,
		in.StudentID, in.ClassID, sectionID, tuition, count,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
