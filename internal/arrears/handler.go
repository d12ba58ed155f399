package arrears

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/campusledger/campusledger/internal/platform/httpx"
)

// Handler exposes arrear read endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers arrears routes under a student scope.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/students/{studentID}/arrears", h.studentArrears)
	r.Get("/students/{studentID}/shortfalls", h.shortfalls)
}

func (h *Handler) studentArrears(w http.ResponseWriter, r *http.Request) {
	studentID, err := strconv.ParseInt(chi.URLParam(r, "studentID"), 10, 64)
	if err != nil || studentID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid student ID")
		return
	}
	rows, err := h.service.StudentArrears(r.Context(), studentID)
	if err != nil {
		h.logger.Error("list arrears", slog.Any("error", err), slog.Int64("student_id", studentID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) shortfalls(w http.ResponseWriter, r *http.Request) {
	studentID, err := strconv.ParseInt(chi.URLParam(r, "studentID"), 10, 64)
	if err != nil || studentID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid student ID")
		return
	}

	var exclude *SessionKey
	q := r.URL.Query()
	if q.Get("exclude_class_id") != "" && q.Get("exclude_program_id") != "" {
		classID, err1 := strconv.ParseInt(q.Get("exclude_class_id"), 10, 64)
		programID, err2 := strconv.ParseInt(q.Get("exclude_program_id"), 10, 64)
		if err1 != nil || err2 != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid exclude session")
			return
		}
		exclude = &SessionKey{ClassID: classID, ProgramID: programID}
	}

	shortfalls, err := h.service.ComputeShortfalls(r.Context(), studentID, exclude)
	if err != nil {
		h.logger.Error("compute shortfalls", slog.Any("error", err), slog.Int64("student_id", studentID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, shortfalls)
}
