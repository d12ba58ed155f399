package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusledger/campusledger/internal/platform/db"
	"github.com/campusledger/campusledger/internal/shared"
)

// Repository provides PostgreSQL backed persistence for the fee catalog.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateHead inserts a fee head.
func (r *Repository) CreateHead(ctx context.Context, in CreateHeadInput) (*FeeHead, error) {
	query := `
		INSERT INTO fee_heads (name, amount, is_discount, is_tuition, is_fine, is_lab_fee, is_library_fee, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING id, created_at`

	head := FeeHead{
		Name:         in.Name,
		Amount:       in.Amount,
		IsDiscount:   in.IsDiscount,
		IsTuition:    in.IsTuition,
		IsFine:       in.IsFine,
		IsLabFee:     in.IsLabFee,
		IsLibraryFee: in.IsLibraryFee,
	}
	err := r.pool.QueryRow(ctx, query,
		in.Name, in.Amount, in.IsDiscount, in.IsTuition, in.IsFine, in.IsLabFee, in.IsLibraryFee,
	).Scan(&head.ID, &head.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("catalog: fee head %q: %w", in.Name, shared.ErrConflict)
		}
		return nil, err
	}
	return &head, nil
}

// GetHead retrieves a fee head, nil when absent.
func (r *Repository) GetHead(ctx context.Context, id int64) (*FeeHead, error) {
	query := `
		SELECT id, name, amount, is_discount, is_tuition, is_fine, is_lab_fee, is_library_fee, created_at
		FROM fee_heads WHERE id = $1`

	var head FeeHead
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&head.ID, &head.Name, &head.Amount, &head.IsDiscount, &head.IsTuition,
		&head.IsFine, &head.IsLabFee, &head.IsLibraryFee, &head.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &head, nil
}

// ListHeads returns all fee heads ordered by name.
func (r *Repository) ListHeads(ctx context.Context) ([]FeeHead, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, amount, is_discount, is_tuition, is_fine, is_lab_fee, is_library_fee, created_at
		FROM fee_heads ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var heads []FeeHead
	for rows.Next() {
		var head FeeHead
		if err := rows.Scan(
			&head.ID, &head.Name, &head.Amount, &head.IsDiscount, &head.IsTuition,
			&head.IsFine, &head.IsLabFee, &head.IsLibraryFee, &head.CreatedAt,
		); err != nil {
			return nil, err
		}
		heads = append(heads, head)
	}
	return heads, rows.Err()
}

// DeleteHead removes a fee head.
func (r *Repository) DeleteHead(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM fee_heads WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("catalog: fee head %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

// UpsertStructure creates or replaces the structure for a (program, class)
// pair and rewrites its head allocations in one transaction.
func (r *Repository) UpsertStructure(ctx context.Context, in UpsertStructureInput, heads []FeeHead) (*FeeStructure, error) {
	var structure *FeeStructure
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		query := `
			INSERT INTO fee_structures (program_id, class_id, total_amount, installment_count, created_at, updated_at)
			VALUES ($1, $2, $3, $4, NOW(), NOW())
			ON CONFLICT (program_id, class_id) DO UPDATE
			SET total_amount = EXCLUDED.total_amount,
				installment_count = EXCLUDED.installment_count,
				updated_at = NOW()
			RETURNING id, created_at, updated_at`

		st := FeeStructure{
			ProgramID:        in.ProgramID,
			ClassID:          in.ClassID,
			TotalAmount:      in.TotalAmount,
			InstallmentCount: in.InstallmentCount,
		}
		if err := tx.QueryRow(ctx, query,
			in.ProgramID, in.ClassID, in.TotalAmount, in.InstallmentCount,
		).Scan(&st.ID, &st.CreatedAt, &st.UpdatedAt); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM fee_head_allocations WHERE fee_structure_id = $1`, st.ID); err != nil {
			return err
		}
		for _, head := range heads {
			if _, err := tx.Exec(ctx, `
				INSERT INTO fee_head_allocations (fee_structure_id, fee_head_id, amount)
				VALUES ($1, $2, $3)`,
				st.ID, head.ID, head.Amount,
			); err != nil {
				return err
			}
			st.Heads = append(st.Heads, HeadAllocation{FeeHeadID: head.ID, Name: head.Name, Amount: head.Amount})
		}
		structure = &st
		return nil
	})
	if err != nil {
		return nil, err
	}
	return structure, nil
}

// GetStructure retrieves the structure for a (program, class) pair with its
// allocations, nil when absent.
func (r *Repository) GetStructure(ctx context.Context, programID, classID int64) (*FeeStructure, error) {
	return r.getStructure(ctx,
		`SELECT id, program_id, class_id, total_amount, installment_count, created_at, updated_at
		 FROM fee_structures WHERE program_id = $1 AND class_id = $2`,
		programID, classID)
}

// GetStructureByID retrieves a structure by primary key, nil when absent.
func (r *Repository) GetStructureByID(ctx context.Context, id int64) (*FeeStructure, error) {
	return r.getStructure(ctx,
		`SELECT id, program_id, class_id, total_amount, installment_count, created_at, updated_at
		 FROM fee_structures WHERE id = $1`,
		id)
}

func (r *Repository) getStructure(ctx context.Context, query string, args ...any) (*FeeStructure, error) {
	var st FeeStructure
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&st.ID, &st.ProgramID, &st.ClassID, &st.TotalAmount, &st.InstallmentCount,
		&st.CreatedAt, &st.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT a.fee_head_id, h.name, a.amount
		FROM fee_head_allocations a
		JOIN fee_heads h ON h.id = a.fee_head_id
		WHERE a.fee_structure_id = $1
		ORDER BY a.fee_head_id`, st.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var alloc HeadAllocation
		if err := rows.Scan(&alloc.FeeHeadID, &alloc.Name, &alloc.Amount); err != nil {
			return nil, err
		}
		st.Heads = append(st.Heads, alloc)
	}
	return &st, rows.Err()
}
