package reporting

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/singleflight"

	"github.com/campusledger/campusledger/internal/platform/httpx"
)

// Handler exposes report endpoints. Concurrent identical requests collapse
// into one computation via singleflight, which matters right after a cache
// bump when every dashboard refetches at once.
type Handler struct {
	logger  *slog.Logger
	service *Service
	group   singleflight.Group
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/revenue", h.revenue)
	r.Get("/class-collections", h.classCollections)
}

func (h *Handler) revenue(w http.ResponseWriter, r *http.Request) {
	g := Granularity(r.URL.Query().Get("granularity"))
	if g == "" {
		g = GranularityMonth
	}

	result, err, _ := h.group.Do("revenue:"+string(g), func() (any, error) {
		return h.service.RevenueOverTime(r.Context(), g)
	})
	if err != nil {
		h.logger.Error("revenue report", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) classCollections(w http.ResponseWriter, r *http.Request) {
	result, err, _ := h.group.Do("class-collections", func() (any, error) {
		return h.service.ClassCollectionStats(r.Context())
	})
	if err != nil {
		h.logger.Error("class collection report", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}
