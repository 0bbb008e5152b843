package auction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRemaining(t *testing.T) {
	base := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		endTime time.Time
		now     time.Time
		want    time.Duration
	}{
		{
			name:    "one hour left",
			endTime: base.Add(time.Hour),
			now:     base,
			want:    time.Hour,
		},
		{
			name:    "exactly at end time",
			endTime: base,
			now:     base,
			want:    0,
		},
		{
			name:    "past end time is clamped to zero",
			endTime: base,
			now:     base.Add(time.Minute),
			want:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Remaining(tt.endTime, tt.now))
		})
	}
}

func TestRemaining_Monotonic(t *testing.T) {
	base := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	endTime := base.Add(10 * time.Second)

	prev := Remaining(endTime, base)
	for i := 1; i <= 15; i++ {
		got := Remaining(endTime, base.Add(time.Duration(i)*time.Second))
		assert.LessOrEqual(t, got, prev)
		assert.GreaterOrEqual(t, got, time.Duration(0))
		prev = got
	}
	assert.Equal(t, time.Duration(0), prev)
}

func TestEndingSoon(t *testing.T) {
	base := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		endTime time.Time
		want    bool
	}{
		{"well before threshold", base.Add(time.Hour), false},
		{"exactly at threshold", base.Add(EndingSoonThreshold), false},
		{"inside threshold", base.Add(EndingSoonThreshold - time.Second), true},
		{"already ended", base, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EndingSoon(tt.endTime, base))
		})
	}
}
