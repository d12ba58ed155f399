package directory

import (
	"sort"
)

// ClassKind distinguishes year-based classes from semester-based ones.
type ClassKind string

const (
	ClassKindYear     ClassKind = "YEAR"
	ClassKindSemester ClassKind = "SEMESTER"
)

// Program is an academic program a student is enrolled in.
type Program struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Class is one step of a program. Ordinal is the year number for year-based
// classes and the semester number for semester-based ones.
type Class struct {
	ID        int64     `json:"id"`
	ProgramID int64     `json:"program_id"`
	Name      string    `json:"name"`
	Kind      ClassKind `json:"kind"`
	Ordinal   int       `json:"ordinal"`
}

// Section is a named subdivision of a class.
type Section struct {
	ID      int64  `json:"id"`
	ClassID int64  `json:"class_id"`
	Name    string `json:"name"`
}

// Student carries the directory fields the fee engine consumes. TuitionFee
// and InstallmentCount are per-student overrides of the fee structure
// defaults; zero means no override.
type Student struct {
	ID               int64   `json:"id"`
	Name             string  `json:"name"`
	RegNo            string  `json:"reg_no"`
	ProgramID        int64   `json:"program_id"`
	ClassID          int64   `json:"class_id"`
	SectionID        *int64  `json:"section_id,omitempty"`
	TuitionFee       float64 `json:"tuition_fee"`
	InstallmentCount int     `json:"installment_count"`
	PassedOut        bool    `json:"passed_out"`
}

// ClassLess is the total order used for promotion sequencing: every
// year-based class sorts before every semester-based class, then classes of
// the same kind sort by ordinal.
func ClassLess(a, b Class) bool {
	if a.Kind != b.Kind {
		return a.Kind == ClassKindYear
	}
	return a.Ordinal < b.Ordinal
}

// SortClasses orders classes in promotion sequence.
func SortClasses(classes []Class) {
	sort.SliceStable(classes, func(i, j int) bool {
		return ClassLess(classes[i], classes[j])
	})
}

// NextClass resolves the class after currentID in promotion order. The
// second return is false when currentID is the last class of the program.
func NextClass(classes []Class, currentID int64) (Class, bool) {
	SortClasses(classes)
	for i, c := range classes {
		if c.ID == currentID {
			if i+1 < len(classes) {
				return classes[i+1], true
			}
			return Class{}, false
		}
	}
	return Class{}, false
}

// PreviousClass resolves the class before currentID in promotion order. The
// second return is false when currentID is the first class of the program.
func PreviousClass(classes []Class, currentID int64) (Class, bool) {
	SortClasses(classes)
	for i, c := range classes {
		if c.ID == currentID {
			if i > 0 {
				return classes[i-1], true
			}
			return Class{}, false
		}
	}
	return Class{}, false
}

// TransitionInput applies a class/section change to a student. SectionID nil
// disconnects the student from any section. TuitionFee and InstallmentCount
// overwrite the student's billing fields when set; nil leaves the existing
// values alone. The passed-out flag is cleared either way.
type TransitionInput struct {
	StudentID        int64
	ClassID          int64
	SectionID        *int64
	TuitionFee       *float64
	InstallmentCount *int
}
