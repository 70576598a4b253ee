package alerts

import (
	"context"
	"sync"
	"time"

	"tenantcore.org/internal/risk"
)

// Alert is one security notification fanned out to subscribers (admin
// dashboards, notification bridges).
type Alert struct {
	UserID      string     `json:"user_id"`
	UserName    string     `json:"user_name,omitempty"`
	Level       risk.Level `json:"level"`
	Score       int        `json:"score"`
	Categories  []string   `json:"categories,omitempty"`
	Description string     `json:"description"`
	EmittedAt   time.Time  `json:"emitted_at"`
}

// FromReport converts an analysis report into an alert. Reports below Medium
// produce no alert.
func FromReport(r *risk.Report) (Alert, bool) {
	if r == nil || r.Level < risk.LevelMedium {
		return Alert{}, false
	}
	categories := make([]string, 0, len(r.Findings))
	for _, f := range r.Findings {
		categories = append(categories, string(f.Category))
	}
	return Alert{
		UserID:      r.UserID,
		UserName:    r.UserName,
		Level:       r.Level,
		Score:       r.Score,
		Categories:  categories,
		Description: "elevated login-security risk detected",
		EmittedAt:   r.GeneratedAt,
	}, true
}

// Hub fan-outs alerts to all active subscribers (SSE/WebSocket clients).
type Hub struct {
	mu   sync.RWMutex
	subs map[int]chan Alert
	next int
}

// New initialises an empty hub.
func New() *Hub {
	return &Hub{subs: make(map[int]chan Alert)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// alerts. The channel is closed when the provided context ends.
func (h *Hub) Subscribe(ctx context.Context) <-chan Alert {
	ch := make(chan Alert, 16)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, id)
		close(ch)
		h.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the alert to all subscribers.
func (h *Hub) Publish(a Alert) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- a:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}

// SubscriberCount reports the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
