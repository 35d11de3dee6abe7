package resiliency

import (
	"log/slog"
	"sync"
	"time"

	"github.com/CrisisCore-Systems/Autotrader-sub003/internal/domain"
)

// DeadLetter is an order that permanently failed submission, kept for
// later inspection and manual intervention.
type DeadLetter struct {
	Order    domain.Order `json:"order"`
	Reason   string       `json:"reason"`
	FailedAt time.Time    `json:"failed_at"`
}

// DeadLetterSink persists dead letters outside process memory.
// Persistence is best-effort; failures are logged and dropped.
type DeadLetterSink interface {
	RecordDeadLetter(dl DeadLetter) error
}

// DeadLetterQueue is a bounded in-memory queue of permanently failed
// orders. When full, the oldest entry is evicted so recent failures
// stay inspectable.
type DeadLetterQueue struct {
	mu       sync.Mutex
	entries  []DeadLetter
	capacity int
	sink     DeadLetterSink // Optional.
}

// NewDeadLetterQueue creates a queue bounded to capacity entries.
func NewDeadLetterQueue(capacity int) *DeadLetterQueue {
	if capacity <= 0 {
		capacity = 1000
	}
	return &DeadLetterQueue{capacity: capacity}
}

// WithSink attaches a persistence sink.
func (q *DeadLetterQueue) WithSink(sink DeadLetterSink) *DeadLetterQueue {
	q.sink = sink
	return q
}

// Append records a permanently failed order.
func (q *DeadLetterQueue) Append(order domain.Order, reason string) {
	dl := DeadLetter{Order: order, Reason: reason, FailedAt: time.Now()}

	q.mu.Lock()
	if len(q.entries) >= q.capacity {
		evicted := q.entries[0]
		q.entries = q.entries[1:]
		slog.Warn("DLQ full, evicting oldest entry",
			slog.String("order_id", evicted.Order.ID))
	}
	q.entries = append(q.entries, dl)
	q.mu.Unlock()

	slog.Error("Order dead-lettered",
		slog.String("order_id", order.ID),
		slog.String("symbol", order.Symbol),
		slog.String("reason", reason))

	if q.sink != nil {
		if err := q.sink.RecordDeadLetter(dl); err != nil {
			slog.Warn("DLQ persistence failed", slog.String("order_id", order.ID), slog.Any("err", err))
		}
	}
}

// Size returns the number of queued entries.
func (q *DeadLetterQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Entries returns a copy of the queued dead letters, oldest first.
func (q *DeadLetterQueue) Entries() []DeadLetter {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]DeadLetter, len(q.entries))
	copy(out, q.entries)
	return out
}
