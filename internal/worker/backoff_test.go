package worker

import (
	"testing"
	"time"
)

func TestBackoff_Doubles(t *testing.T) {
	b := Backoff{Base: time.Second, Max: time.Hour}

	cases := []struct {
		attempts int
		want     time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
	}
	for _, tc := range cases {
		if got := b.Delay(tc.attempts); got != tc.want {
			t.Fatalf("Delay(%d) = %v, want %v", tc.attempts, got, tc.want)
		}
	}
}

func TestBackoff_Capped(t *testing.T) {
	b := Backoff{Base: time.Second, Max: 5 * time.Second}

	if got := b.Delay(10); got != 5*time.Second {
		t.Fatalf("Delay(10) = %v, want cap %v", got, 5*time.Second)
	}
}

func TestBackoff_NegativeAttemptsTreatedAsZero(t *testing.T) {
	b := Backoff{Base: time.Second, Max: time.Hour}

	if got := b.Delay(-3); got != time.Second {
		t.Fatalf("Delay(-3) = %v, want %v", got, time.Second)
	}
}
