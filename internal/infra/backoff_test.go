package infra

import (
	"testing"
	"time"
)

func TestBackoffPolicy_Delay(t *testing.T) {
	p := BackoffPolicy{Initial: 100 * time.Millisecond, Max: 2 * time.Second}

	tests := []struct {
		name    string
		attempt int
		want    time.Duration
	}{
		{"Negative", -1, 100 * time.Millisecond},
		{"First", 0, 100 * time.Millisecond},
		{"Second", 1, 200 * time.Millisecond},
		{"Third", 2, 400 * time.Millisecond},
		{"Capped", 6, 2 * time.Second},
		{"HugeAttemptCapped", 62, 2 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Delay(tt.attempt); got != tt.want {
				t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestCalculateBackoff_Defaults(t *testing.T) {
	if got := CalculateBackoff(0); got != 1*time.Second {
		t.Errorf("CalculateBackoff(0) = %v, want 1s", got)
	}
	if got := CalculateBackoff(10); got != 60*time.Second {
		t.Errorf("CalculateBackoff(10) = %v, want capped 60s", got)
	}
}
