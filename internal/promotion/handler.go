package promotion

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/campusledger/campusledger/internal/platform/httpx"
)

// Handler exposes the promotion gate endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers promotion routes under a student scope.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/students/{studentID}/promote", h.promote)
	r.Post("/students/{studentID}/demote", h.demote)
}

type promoteRequest struct {
	Force           bool   `json:"force"`
	TargetClassID   *int64 `json:"target_class_id" validate:"omitempty,gt=0"`
	TargetSectionID *int64 `json:"target_section_id" validate:"omitempty,gt=0"`
}

func (h *Handler) promote(w http.ResponseWriter, r *http.Request) {
	studentID, err := strconv.ParseInt(chi.URLParam(r, "studentID"), 10, 64)
	if err != nil || studentID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid student ID")
		return
	}

	req := promoteRequest{}
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
			return
		}
		if err := h.validate.Struct(req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
	}

	result, err := h.service.Promote(r.Context(), Input{
		StudentID:       studentID,
		Force:           req.Force,
		TargetClassID:   req.TargetClassID,
		TargetSectionID: req.TargetSectionID,
	})
	if err != nil {
		h.logger.Error("promote student", slog.Any("error", err), slog.Int64("student_id", studentID))
		httpx.RespondError(w, err)
		return
	}
	status := http.StatusOK
	if result.RequiresConfirmation {
		status = http.StatusConflict
	}
	httpx.JSON(w, status, result)
}

func (h *Handler) demote(w http.ResponseWriter, r *http.Request) {
	studentID, err := strconv.ParseInt(chi.URLParam(r, "studentID"), 10, 64)
	if err != nil || studentID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid student ID")
		return
	}

	result, err := h.service.Demote(r.Context(), studentID)
	if err != nil {
		h.logger.Error("demote student", slog.Any("error", err), slog.Int64("student_id", studentID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}
