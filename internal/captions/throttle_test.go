package captions

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPartialThrottle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		interval int
		ticks    int
		want     []int // tick numbers that fire, 1-based
	}{
		{"every frame", 1, 4, []int{1, 2, 3, 4}},
		{"every third", 3, 10, []int{3, 6, 9}},
		{"every fifth", 5, 12, []int{5, 10}},
		{"zero treated as one", 0, 2, []int{1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			th := NewPartialThrottle(tt.interval)
			var fired []int
			for i := 1; i <= tt.ticks; i++ {
				if th.Tick() {
					fired = append(fired, i)
				}
			}
			assert.Equal(t, tt.want, fired)
		})
	}
}

func TestPartialThrottleReset(t *testing.T) {
	t.Parallel()

	th := NewPartialThrottle(3)
	assert.False(t, th.Tick())
	assert.False(t, th.Tick())
	assert.Equal(t, 2, th.Count())

	th.Reset()
	assert.Zero(t, th.Count())
	assert.False(t, th.Tick())
	assert.False(t, th.Tick())
	assert.True(t, th.Tick())
	assert.Zero(t, th.Count())
}
