package dashboard

import (
	"sync"

	"chasebtc/pkg/chasebtc"
)

// SignalHistory keeps the most recent live predictions, newest first.
type SignalHistory struct {
	mu    sync.Mutex
	items []chasebtc.PredictResponse
	max   int
}

// NewSignalHistory creates a history holding at most max predictions.
func NewSignalHistory(max int) *SignalHistory {
	if max < 1 {
		max = 1
	}
	return &SignalHistory{max: max}
}

// Add records p. A prediction for the same bar and threshold as the newest
// entry replaces it instead of growing the list.
func (h *SignalHistory) Add(p chasebtc.PredictResponse) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.items) > 0 {
		head := h.items[0]
		if head.BarTimestamp.Equal(p.BarTimestamp) && head.Threshold == p.Threshold {
			h.items[0] = p
			return
		}
	}
	h.items = append([]chasebtc.PredictResponse{p}, h.items...)
	if len(h.items) > h.max {
		h.items = h.items[:h.max]
	}
}

// Items returns a copy of the history, newest first.
func (h *SignalHistory) Items() []chasebtc.PredictResponse {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]chasebtc.PredictResponse, len(h.items))
	copy(out, h.items)
	return out
}
