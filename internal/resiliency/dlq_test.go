package resiliency

import (
	"errors"
	"fmt"
	"testing"

	"github.com/CrisisCore-Systems/Autotrader-sub003/internal/domain"
)

type recordingSink struct {
	letters  []DeadLetter
	failNext bool
}

var _ DeadLetterSink = (*recordingSink)(nil)

func (s *recordingSink) RecordDeadLetter(dl DeadLetter) error {
	if s.failNext {
		s.failNext = false
		return errors.New("disk full")
	}
	s.letters = append(s.letters, dl)
	return nil
}

func TestDLQEvictsOldestWhenFull(t *testing.T) {
	q := NewDeadLetterQueue(3)
	for i := 0; i < 5; i++ {
		q.Append(domain.Order{ID: fmt.Sprintf("ord-%d", i)}, "venue unreachable")
	}

	if q.Size() != 3 {
		t.Fatalf("size = %d, want 3", q.Size())
	}
	entries := q.Entries()
	want := []string{"ord-2", "ord-3", "ord-4"}
	for i, id := range want {
		if entries[i].Order.ID != id {
			t.Fatalf("entries[%d] = %s, want %s", i, entries[i].Order.ID, id)
		}
	}
}

func TestDLQEntriesIsACopy(t *testing.T) {
	q := NewDeadLetterQueue(10)
	q.Append(domain.Order{ID: "ord-1"}, "timeout")

	entries := q.Entries()
	entries[0].Order.ID = "mutated"

	if got := q.Entries()[0].Order.ID; got != "ord-1" {
		t.Fatalf("internal entry mutated to %s", got)
	}
}

func TestDLQPersistsThroughSink(t *testing.T) {
	sink := &recordingSink{}
	q := NewDeadLetterQueue(10).WithSink(sink)

	q.Append(domain.Order{ID: "ord-1", Symbol: "BTCUSDT"}, "retries exhausted")

	if len(sink.letters) != 1 {
		t.Fatalf("sink letters = %d, want 1", len(sink.letters))
	}
	if sink.letters[0].Reason != "retries exhausted" {
		t.Fatalf("reason = %s", sink.letters[0].Reason)
	}
	if sink.letters[0].FailedAt.IsZero() {
		t.Fatal("FailedAt not set")
	}
}

func TestDLQSinkFailureDoesNotLoseEntry(t *testing.T) {
	sink := &recordingSink{failNext: true}
	q := NewDeadLetterQueue(10).WithSink(sink)

	q.Append(domain.Order{ID: "ord-1"}, "timeout")

	if q.Size() != 1 {
		t.Fatalf("size = %d, want 1", q.Size())
	}
	if len(sink.letters) != 0 {
		t.Fatal("sink unexpectedly recorded")
	}
}
