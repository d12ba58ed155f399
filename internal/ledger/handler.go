package ledger

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/campusledger/campusledger/internal/platform/httpx"
)

// Handler manages challan ledger endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/challans", h.issueChallan)
	r.Get("/challans/{id}", h.getChallan)
	r.Patch("/challans/{id}", h.updateChallan)
	r.Delete("/challans/{id}", h.deleteChallan)
	r.Post("/challans/{id}/payments", h.recordPayment)
	r.Get("/students/{studentID}/challans", h.studentChallans)
	r.Get("/students/{studentID}/installments", h.installmentPlan)
}

type issueChallanRequest struct {
	StudentID       int64    `json:"student_id" validate:"required,gt=0"`
	Amount          *float64 `json:"amount"`
	FeeStructureID  *int64   `json:"fee_structure_id"`
	SelectedHeadIDs []int64  `json:"selected_head_ids"`
	IncludesArrears bool     `json:"includes_arrears"`
	ArrearsAmount   float64  `json:"arrears_amount" validate:"gte=0"`
	DueDate         string   `json:"due_date" validate:"required"`
	Discount        float64  `json:"discount" validate:"gte=0"`
	FineAmount      float64  `json:"fine_amount" validate:"gte=0"`
}

func (h *Handler) issueChallan(w http.ResponseWriter, r *http.Request) {
	var req issueChallanRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	dueDate, err := time.Parse("2006-01-02", req.DueDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "due_date must be YYYY-MM-DD")
		return
	}

	challan, err := h.service.IssueChallan(r.Context(), IssueChallanInput{
		StudentID:       req.StudentID,
		Amount:          req.Amount,
		FeeStructureID:  req.FeeStructureID,
		SelectedHeadIDs: req.SelectedHeadIDs,
		IncludesArrears: req.IncludesArrears,
		ArrearsAmount:   req.ArrearsAmount,
		DueDate:         dueDate,
		Discount:        req.Discount,
		FineAmount:      req.FineAmount,
	})
	if err != nil {
		h.logger.Error("issue challan", slog.Any("error", err), slog.Int64("student_id", req.StudentID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, challan)
}

func (h *Handler) getChallan(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}
	challan, err := h.service.Challan(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, challan)
}

type updateChallanRequest struct {
	TuitionAmount       *float64 `json:"tuition_amount" validate:"omitempty,gte=0"`
	Discount            *float64 `json:"discount" validate:"omitempty,gte=0"`
	FineAmount          *float64 `json:"fine_amount" validate:"omitempty,gte=0"`
	PaidAmount          *float64 `json:"paid_amount" validate:"omitempty,gte=0"`
	DueDate             *string  `json:"due_date"`
	PaidDate            *string  `json:"paid_date"`
	CoveredInstallments *string  `json:"covered_installments"`
	SelectedHeadIDs     *[]int64 `json:"selected_head_ids"`
}

func (h *Handler) updateChallan(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}
	var req updateChallanRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	in := UpdateChallanInput{
		TuitionAmount:       req.TuitionAmount,
		Discount:            req.Discount,
		FineAmount:          req.FineAmount,
		PaidAmount:          req.PaidAmount,
		CoveredInstallments: req.CoveredInstallments,
		SelectedFeeHeadIDs:  req.SelectedHeadIDs,
	}
	for _, field := range []struct {
		raw  *string
		dest **time.Time
	}{
		{req.DueDate, &in.DueDate},
		{req.PaidDate, &in.PaidDate},
	} {
		if field.raw == nil {
			continue
		}
		t, err := time.Parse("2006-01-02", *field.raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "dates must be YYYY-MM-DD")
			return
		}
		*field.dest = &t
	}

	challan, err := h.service.UpdateChallan(r.Context(), id, in)
	if err != nil {
		h.logger.Error("update challan", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, challan)
}

func (h *Handler) deleteChallan(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteChallan(r.Context(), id); err != nil {
		h.logger.Error("delete challan", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type recordPaymentRequest struct {
	PaidAmount float64 `json:"paid_amount" validate:"gte=0"`
	PaidDate   *string `json:"paid_date"`
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}
	var req recordPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	var paidDate *time.Time
	if req.PaidDate != nil {
		t, err := time.Parse("2006-01-02", *req.PaidDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "paid_date must be YYYY-MM-DD")
			return
		}
		paidDate = &t
	}

	challan, err := h.service.RecordPayment(r.Context(), id, req.PaidAmount, paidDate)
	if err != nil {
		h.logger.Error("record payment", slog.Any("error", err), slog.Int64("challan_id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, challan)
}

func (h *Handler) studentChallans(w http.ResponseWriter, r *http.Request) {
	studentID, ok := h.parseID(w, r, "studentID")
	if !ok {
		return
	}
	challans, err := h.service.StudentChallans(r.Context(), studentID)
	if err != nil {
		h.logger.Error("list student challans", slog.Any("error", err), slog.Int64("student_id", studentID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, challans)
}

func (h *Handler) installmentPlan(w http.ResponseWriter, r *http.Request) {
	studentID, ok := h.parseID(w, r, "studentID")
	if !ok {
		return
	}
	plan, err := h.service.InstallmentPlan(r.Context(), studentID)
	if err != nil {
		h.logger.Error("list installment plan", slog.Any("error", err), slog.Int64("student_id", studentID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, plan)
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid "+name)
		return 0, false
	}
	return id, true
}
