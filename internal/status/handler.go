package status

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/scalevoice/stt-balancer/internal/balancer"
	"github.com/scalevoice/stt-balancer/internal/metrics"
)

type Handler struct {
	logger    *slog.Logger
	balancer  *balancer.Balancer
	collector *metrics.Collector
}

// WorkerStatus is the live view of one worker as seen by the selection
// algorithm.
type WorkerStatus struct {
	ID             int     `json:"id"`
	Address        string  `json:"address"`
	CanOverload    bool    `json:"can_overload"`
	MaxUtilization float64 `json:"max_utilization"`
	Overloaded     bool    `json:"overloaded"`
	InError        bool    `json:"in_error"`
}

type statusResponse struct {
	Metrics metrics.Snapshot `json:"metrics"`
	Workers []WorkerStatus   `json:"workers"`
}

func NewHandler(logger *slog.Logger, lb *balancer.Balancer, collector *metrics.Collector) *Handler {
	return &Handler{
		logger:    logger,
		balancer:  lb,
		collector: collector,
	}
}

// Routes returns the handler's HTTP mux.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", h.handleStatus)
	mux.HandleFunc("/healthz", h.handleHealthz)
	return mux
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	workers := h.balancer.Workers()

	resp := statusResponse{
		Metrics: h.collector.Snapshot(),
		Workers: make([]WorkerStatus, 0, len(workers)),
	}
	for _, wk := range workers {
		resp.Workers = append(resp.Workers, WorkerStatus{
			ID:             wk.ID(),
			Address:        wk.Address(),
			CanOverload:    wk.CanOverload(),
			MaxUtilization: wk.MaxUtilization(),
			Overloaded:     wk.IsOverloaded(),
			InError:        wk.IsInError(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Failed to encode status response", slog.Any("err", err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if !h.balancer.Selectable() {
		http.Error(w, "no selectable workers", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}
