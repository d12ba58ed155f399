package catalog

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/campusledger/campusledger/internal/platform/httpx"
	"github.com/campusledger/campusledger/internal/shared"
)

// Handler manages fee catalog endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/heads", h.listHeads)
	r.Post("/heads", h.createHead)
	r.Get("/heads/{id}", h.getHead)
	r.Delete("/heads/{id}", h.deleteHead)
	r.Put("/structures", h.upsertStructure)
	r.Get("/structures", h.getStructure)
}

type createHeadRequest struct {
	Name         string  `json:"name" validate:"required"`
	Amount       float64 `json:"amount" validate:"gte=0"`
	IsDiscount   bool    `json:"is_discount"`
	IsTuition    bool    `json:"is_tuition"`
	IsFine       bool    `json:"is_fine"`
	IsLabFee     bool    `json:"is_lab_fee"`
	IsLibraryFee bool    `json:"is_library_fee"`
}

func (h *Handler) createHead(w http.ResponseWriter, r *http.Request) {
	var req createHeadRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	head, err := h.service.CreateHead(r.Context(), CreateHeadInput{
		Name:         req.Name,
		Amount:       req.Amount,
		IsDiscount:   req.IsDiscount,
		IsTuition:    req.IsTuition,
		IsFine:       req.IsFine,
		IsLabFee:     req.IsLabFee,
		IsLibraryFee: req.IsLibraryFee,
	})
	if err != nil {
		h.logger.Error("create fee head", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, head)
}

func (h *Handler) listHeads(w http.ResponseWriter, r *http.Request) {
	heads, err := h.service.ListHeads(r.Context())
	if err != nil {
		h.logger.Error("list fee heads", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, heads)
}

func (h *Handler) getHead(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid fee head ID")
		return
	}
	head, err := h.service.GetHead(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, head)
}

func (h *Handler) deleteHead(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid fee head ID")
		return
	}
	if err := h.service.DeleteHead(r.Context(), id); err != nil {
		h.logger.Error("delete fee head", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type upsertStructureRequest struct {
	ProgramID        int64   `json:"program_id" validate:"required,gt=0"`
	ClassID          int64   `json:"class_id" validate:"required,gt=0"`
	TotalAmount      float64 `json:"total_amount" validate:"required,gt=0"`
	InstallmentCount int     `json:"installment_count" validate:"required,gte=1"`
	HeadIDs          []int64 `json:"head_ids"`
}

func (h *Handler) upsertStructure(w http.ResponseWriter, r *http.Request) {
	var req upsertStructureRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	structure, err := h.service.UpsertStructure(r.Context(), UpsertStructureInput{
		ProgramID:        req.ProgramID,
		ClassID:          req.ClassID,
		TotalAmount:      req.TotalAmount,
		InstallmentCount: req.InstallmentCount,
		HeadIDs:          req.HeadIDs,
	})
	if err != nil {
		h.logger.Error("upsert fee structure", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, structure)
}

func (h *Handler) getStructure(w http.ResponseWriter, r *http.Request) {
	programID, err1 := strconv.ParseInt(r.URL.Query().Get("program_id"), 10, 64)
	classID, err2 := strconv.ParseInt(r.URL.Query().Get("class_id"), 10, 64)
	if err1 != nil || err2 != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "program_id and class_id query params required")
		return
	}

	structure, err := h.service.Structure(r.Context(), programID, classID)
	if err != nil {
		h.logger.Error("get fee structure", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if structure == nil {
		httpx.RespondError(w, fmt.Errorf("catalog: structure for program %d class %d: %w", programID, classID, shared.ErrNotFound))
		return
	}
	httpx.JSON(w, http.StatusOK, structure)
}
