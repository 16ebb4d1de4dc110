package service

import (
	"context"
	"sync"

	"github.com/noah-isme/sma-bulletin/internal/models"
)

// ProgressHub broadcasts generation progress snapshots. The queue is its only
// writer; subscribers read an ordered log and never see an older snapshot
// after a newer one.
type ProgressHub struct {
	mu         sync.Mutex
	log        []models.GenerationProgress
	base       int // absolute index of log[0]
	batchStart int // absolute index of the current batch's first snapshot
	changed    chan struct{}
}

// NewProgressHub returns a hub holding initial as its only snapshot.
func NewProgressHub(initial models.GenerationProgress) *ProgressHub {
	return &ProgressHub{
		log:     []models.GenerationProgress{initial},
		changed: make(chan struct{}),
	}
}

// Current returns the latest snapshot.
func (h *ProgressHub) Current() models.GenerationProgress {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.log[len(h.log)-1]
}

// Publish appends a snapshot and wakes every subscriber.
func (h *ProgressHub) Publish(p models.GenerationProgress) {
	h.mu.Lock()
	h.log = append(h.log, p)
	h.notifyLocked()
	h.mu.Unlock()
}

// Reset starts a new batch with p. Snapshots older than the previous batch are
// dropped, so subscribers lagging further behind resume at the oldest kept one.
func (h *ProgressHub) Reset(p models.GenerationProgress) {
	h.mu.Lock()
	if drop := h.batchStart - h.base; drop > 0 {
		h.log = append([]models.GenerationProgress(nil), h.log[drop:]...)
		h.base = h.batchStart
	}
	h.batchStart = h.base + len(h.log)
	h.log = append(h.log, p)
	h.notifyLocked()
	h.mu.Unlock()
}

func (h *ProgressHub) notifyLocked() {
	close(h.changed)
	h.changed = make(chan struct{})
}

// Subscribe streams snapshots starting with the current one until ctx is done.
// The channel is closed when the subscription ends.
func (h *ProgressHub) Subscribe(ctx context.Context) <-chan models.GenerationProgress {
	out := make(chan models.GenerationProgress)
	h.mu.Lock()
	cursor := h.base + len(h.log) - 1
	h.mu.Unlock()

	go func() {
		defer close(out)
		for {
			h.mu.Lock()
			if cursor < h.base {
				cursor = h.base
			}
			pending := append([]models.GenerationProgress(nil), h.log[cursor-h.base:]...)
			cursor += len(pending)
			wake := h.changed
			h.mu.Unlock()

			for _, p := range pending {
				select {
				case out <- p:
				case <-ctx.Done():
					return
				}
			}
			select {
			case <-wake:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
