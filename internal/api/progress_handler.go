package api

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/dirgather/internal/progress"
)

// ProgressHandler serves the live aggregator counters.
type ProgressHandler struct {
	src    ProgressSource
	logger *zap.Logger
}

// NewProgressHandler wires the progress source and logger.
func NewProgressHandler(src ProgressSource, logger *zap.Logger) *ProgressHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressHandler{src: src, logger: logger}
}

// Get handles GET /v1/progress. It returns the run id, orchestrator state and
// one entry per active category, or 503 when no run is attached.
func (h *ProgressHandler) Get(w http.ResponseWriter, _ *http.Request) {
	if h.src == nil {
		writeError(w, http.StatusServiceUnavailable, "no run attached")
		return
	}
	counters := h.src.Progress()
	dto := progressDTO{
		State:      string(h.src.State()),
		Categories: make([]categoryDTO, 0, len(counters)),
	}
	if id := h.src.RunID(); id != uuid.Nil {
		dto.RunID = id.String()
	}
	for _, c := range counters {
		dto.Categories = append(dto.Categories, toCategoryDTO(c))
	}
	writeJSON(w, http.StatusOK, dto)
}

func toCategoryDTO(c progress.Counter) categoryDTO {
	return categoryDTO{
		Category: string(c.Category),
		Label:    c.Category.Label(),
		Total:    c.Total,
		Consumed: c.Consumed,
		Finished: c.Finished,
		Fraction: c.Fraction(),
	}
}

type progressDTO struct {
	RunID      string        `json:"run_id,omitempty"`
	State      string        `json:"state"`
	Categories []categoryDTO `json:"categories"`
}

type categoryDTO struct {
	Category string  `json:"category"`
	Label    string  `json:"label"`
	Total    *int64  `json:"total,omitempty"`
	Consumed int64   `json:"consumed"`
	Finished bool    `json:"finished"`
	Fraction float64 `json:"fraction"`
}
