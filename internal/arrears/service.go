package arrears

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/campusledger/campusledger/internal/ledger"
)

// RepositoryPort defines data access for persisted arrear rows.
type RepositoryPort interface {
	// Upsert adds the increment onto the existing row for the (student,
	// class, program) triple, creating the row when absent. The installment
	// watermark only ever moves forward.
	Upsert(ctx context.Context, in UpsertInput) (*Arrear, error)
	ListForStudent(ctx context.Context, studentID int64) ([]Arrear, error)
}

// ChallanSource reads a student's challan history from the ledger.
type ChallanSource interface {
	StudentChallans(ctx context.Context, studentID int64) ([]ledger.Challan, error)
}

// StructureSource resolves the expected session fee from the catalog.
type StructureSource interface {
	StructureFor(ctx context.Context, programID, classID int64) (*ledger.Structure, error)
}

// ClassNamer resolves class display names for shortfall reports.
type ClassNamer interface {
	ClassName(ctx context.Context, classID int64) (string, error)
}

// Service computes session shortfalls and maintains carried-forward arrears.
type Service struct {
	repo       RepositoryPort
	challans   ChallanSource
	structures StructureSource
	classes    ClassNamer
	logger     *slog.Logger
	now        func() time.Time
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, challans ChallanSource, structures StructureSource, classes ClassNamer, logger *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		challans:   challans,
		structures: structures,
		classes:    classes,
		logger:     logger,
		now:        time.Now,
	}
}

// ComputeShortfalls derives the student's per-session arrear positions from
// the challan ledger. It is a pure read: calling it twice in a row returns
// the same result and writes nothing. Sessions whose shortfall is zero or
// negative are dropped. exclude, when set, removes one session from the
// result, typically the student's current session during a promotion check.
func (s *Service) ComputeShortfalls(ctx context.Context, studentID int64, exclude *SessionKey) ([]SessionShortfall, error) {
	challans, err := s.challans.StudentChallans(ctx, studentID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	bySession := make(map[SessionKey][]ledger.Challan)
	for _, c := range challans {
		if c.Status == ledger.StatusVoided {
			continue
		}
		key := SessionKey{ClassID: c.StudentClassID, ProgramID: c.StudentProgramID}
		if exclude != nil && key == *exclude {
			continue
		}
		bySession[key] = append(bySession[key], c)
	}

	var out []SessionShortfall
	for key, sessionChallans := range bySession {
		expected := 0.0
		structure, err := s.structures.StructureFor(ctx, key.ProgramID, key.ClassID)
		if err != nil {
			return nil, err
		}
		if structure != nil {
			expected = structure.TotalAmount
		} else {
			// No structure on record for the session; fall back to what
			// was actually billed.
			for _, c := range sessionChallans {
				expected += c.PayableTotal()
			}
		}

		paid := 0.0
		var dues []ChallanDue
		oldest := 0
		for _, c := range sessionChallans {
			if c.Status == ledger.StatusPaid {
				paid += c.PaidAmount
				continue
			}
			if !c.Status.Unsettled() {
				continue
			}
			days := c.DaysOverdue(now)
			if days > oldest {
				oldest = days
			}
			dues = append(dues, ChallanDue{
				ChallanID:   c.ID,
				Number:      c.Number,
				AmountDue:   c.AmountDue(),
				DueDate:     c.DueDate,
				DaysOverdue: days,
			})
		}

		shortfall := expected - paid
		if shortfall <= 0 {
			continue
		}
		sort.Slice(dues, func(i, j int) bool { return dues[i].DueDate.Before(dues[j].DueDate) })

		entry := SessionShortfall{
			Session:           key,
			ExpectedAmount:    expected,
			PaidAmount:        paid,
			Shortfall:         shortfall,
			OldestDaysOverdue: oldest,
			Challans:          dues,
		}
		if s.classes != nil {
			if name, err := s.classes.ClassName(ctx, key.ClassID); err == nil {
				entry.ClassName = name
			}
		}
		out = append(out, entry)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Shortfall != out[j].Shortfall {
			return out[i].Shortfall > out[j].Shortfall
		}
		return out[i].Session.ClassID < out[j].Session.ClassID
	})
	return out, nil
}

// TotalShortfall sums the student's session shortfalls.
func (s *Service) TotalShortfall(ctx context.Context, studentID int64, exclude *SessionKey) (float64, error) {
	shortfalls, err := s.ComputeShortfalls(ctx, studentID, exclude)
	if err != nil {
		return 0, err
	}
	total := 0.0
	for _, sf := range shortfalls {
		total += sf.Shortfall
	}
	return total, nil
}

// CarryForward records an unpaid balance against the session it originated
// in. Repeated carry-forwards for the same session accumulate.
func (s *Service) CarryForward(ctx context.Context, in UpsertInput) (*Arrear, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	arrear, err := s.repo.Upsert(ctx, in)
	if err != nil {
		return nil, err
	}
	s.logger.Info("arrear carried forward",
		slog.Int64("student_id", in.StudentID),
		slog.Int64("class_id", in.ClassID),
		slog.Float64("amount", in.Amount),
		slog.Float64("balance", arrear.ArrearAmount),
	)
	return arrear, nil
}

// StudentArrears lists the student's persisted arrear rows.
func (s *Service) StudentArrears(ctx context.Context, studentID int64) ([]Arrear, error) {
	return s.repo.ListForStudent(ctx, studentID)
}
