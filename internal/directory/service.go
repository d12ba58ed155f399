package directory

import (
	"context"
	"fmt"

	"github.com/campusledger/campusledger/internal/shared"
)

// RepositoryPort defines data access for the student directory. The fee
// engine consumes the directory through this narrow surface; full student
// lifecycle CRUD lives outside this service.
type RepositoryPort interface {
	GetStudent(ctx context.Context, id int64) (*Student, error)
	GetClass(ctx context.Context, id int64) (*Class, error)
	GetProgram(ctx context.Context, id int64) (*Program, error)
	ListProgramClasses(ctx context.Context, programID int64) ([]Class, error)
	GetSection(ctx context.Context, id int64) (*Section, error)
	FindSectionByName(ctx context.Context, classID int64, name string) (*Section, error)
	ApplyTransition(ctx context.Context, in TransitionInput) error
}

// Service exposes directory read accessors and the single transition
// mutation the promotion gate needs.
type Service struct {
	repo RepositoryPort
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Student returns a student by id.
func (s *Service) Student(ctx context.Context, id int64) (*Student, error) {
	st, err := s.repo.GetStudent(ctx, id)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, fmt.Errorf("directory: student %d: %w", id, shared.ErrNotFound)
	}
	return st, nil
}

// Class returns a class by id.
func (s *Service) Class(ctx context.Context, id int64) (*Class, error) {
	c, err := s.repo.GetClass(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("directory: class %d: %w", id, shared.ErrNotFound)
	}
	return c, nil
}

// Program returns a program by id.
func (s *Service) Program(ctx context.Context, id int64) (*Program, error) {
	p, err := s.repo.GetProgram(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("directory: program %d: %w", id, shared.ErrNotFound)
	}
	return p, nil
}

// ProgramClasses lists all classes of a program, in promotion order.
func (s *Service) ProgramClasses(ctx context.Context, programID int64) ([]Class, error) {
	classes, err := s.repo.ListProgramClasses(ctx, programID)
	if err != nil {
		return nil, err
	}
	SortClasses(classes)
	return classes, nil
}

// Section returns a section by id, nil when absent.
func (s *Service) Section(ctx context.Context, id int64) (*Section, error) {
	return s.repo.GetSection(ctx, id)
}

// SectionByName finds a section of a class by its name, nil when absent.
func (s *Service) SectionByName(ctx context.Context, classID int64, name string) (*Section, error) {
	if name == "" {
		return nil, nil
	}
	return s.repo.FindSectionByName(ctx, classID, name)
}

// ApplyTransition moves a student to a class/section and overwrites the
// billing override fields where set. Clears the passed-out flag.
func (s *Service) ApplyTransition(ctx context.Context, in TransitionInput) error {
	if in.StudentID == 0 || in.ClassID == 0 {
		return fmt.Errorf("directory: transition requires student and class: %w", shared.ErrValidation)
	}
	return s.repo.ApplyTransition(ctx, in)
}
