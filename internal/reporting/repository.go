package reporting

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository runs the aggregate report queries against PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// revenueFilter limits revenue to money on settled documents: only PAID
// challans count, and only once they carry a paid date to bucket on.
// Partial payments surface through ClassCollections, not here.
const revenueFilter = `status = 'PAID' AND paid_date IS NOT NULL`

// revenueBucket truncates a challan's paid date to the granularity's
// period. Overall reporting defaults to monthly buckets.
func revenueBucket(g Granularity) string {
	if g == GranularityYear {
		return `to_char(paid_date, 'YYYY')`
	}
	return `to_char(paid_date, 'YYYY-MM')`
}

// RevenueByPeriod buckets PAID challans by their paid date.
func (r *Repository) RevenueByPeriod(ctx context.Context, g Granularity) ([]RevenuePoint, error) {
	query := `
		SELECT ` + revenueBucket(g) + ` AS period, COALESCE(SUM(paid_amount), 0), COUNT(*)
		FROM fee_challans
		WHERE ` + revenueFilter + `
		GROUP BY period
		ORDER BY period`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []RevenuePoint
	for rows.Next() {
		var p RevenuePoint
		if err := rows.Scan(&p.Period, &p.Amount, &p.Payments); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// ClassCollections aggregates billing against the challan session snapshot,
// so collections stay attributed to the class a challan was issued in even
// after the student moved on. Voided challans are excluded entirely.
func (r *Repository) ClassCollections(ctx context.Context) ([]ClassCollection, error) {
	query := `
		SELECT
			fc.student_class_id,
			fc.student_program_id,
			COALESCE(c.name, ''),
			COALESCE(SUM(fc.tuition_amount + fc.fine_amount - fc.discount), 0) AS billed,
			COALESCE(SUM(fc.paid_amount), 0) AS collected,
			COALESCE(SUM(
				CASE WHEN fc.status IN ('PENDING','PARTIAL','OVERDUE')
				THEN fc.tuition_amount + fc.fine_amount - fc.discount - fc.paid_amount
				ELSE 0 END), 0) AS outstanding,
			COUNT(*),
			COUNT(*) FILTER (WHERE fc.status IN ('PENDING','PARTIAL','OVERDUE'))
		FROM fee_challans fc
		LEFT JOIN classes c ON c.id = fc.student_class_id
		WHERE fc.status <> 'VOIDED'
		GROUP BY fc.student_class_id, fc.student_program_id, c.name
		ORDER BY fc.student_program_id, fc.student_class_id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []ClassCollection
	for rows.Next() {
		var s ClassCollection
		if err := rows.Scan(
			&s.ClassID, &s.ProgramID, &s.ClassName,
			&s.Billed, &s.Collected, &s.Outstanding,
			&s.Challans, &s.Unsettled,
		); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}
