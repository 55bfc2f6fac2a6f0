package handler

import (
	"log/slog"
	"net/http"

	"github.com/brunovh/grainalloc/internal/domain"
)

// AllocationHandler serves the persisted allocation plan.
type AllocationHandler struct {
	sink   domain.AllocationSink
	logger *slog.Logger
}

// NewAllocationHandler creates an AllocationHandler backed by the given sink.
func NewAllocationHandler(sink domain.AllocationSink, logger *slog.Logger) *AllocationHandler {
	return &AllocationHandler{sink: sink, logger: logger}
}

// ListAllocations responds with the current allocation plan, ordered by
// ascending route distance.
// GET /api/allocations
func (h *AllocationHandler) ListAllocations(w http.ResponseWriter, r *http.Request) {
	log := logHandler(h.logger, "allocations")

	limit, offset := parseListOpts(r)
	allocs, err := h.sink.List(r.Context(), limit, offset)
	if err != nil {
		log.ErrorContext(r.Context(), "list allocations failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list allocations")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"allocations": allocs,
		"count":       len(allocs),
		"limit":       limit,
		"offset":      offset,
	})
}
