package audiocore

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDownmixStereoToMonoByMean(t *testing.T) {
	t.Parallel()

	// two frames of two channels: [[0.5, -0.5], [0.5, -0.5]]
	mono := Downmix([]float32{0.5, -0.5, 0.5, -0.5}, 2)
	assert.Equal(t, []float32{0, 0}, mono)
	assert.Equal(t, []byte{0, 0, 0, 0}, ToPCM16(mono))
}

func TestDownmix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		samples  []float32
		channels int
		want     []float32
	}{
		{name: "mono passthrough", samples: []float32{0.1, 0.2}, channels: 1, want: []float32{0.1, 0.2}},
		{name: "stereo", samples: []float32{1, 0, 0.5, 0.5}, channels: 2, want: []float32{0.5, 0.5}},
		{name: "three channels", samples: []float32{0.3, 0.6, 0.9}, channels: 3, want: []float32{0.6}},
		{name: "partial frame dropped", samples: []float32{1, 1, 1}, channels: 2, want: []float32{1}},
		{name: "empty", samples: nil, channels: 2, want: []float32{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Downmix(tt.samples, tt.channels)
			assert.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.InDelta(t, tt.want[i], got[i], 1e-6)
			}
		})
	}
}

func TestToPCM16Rounding(t *testing.T) {
	t.Parallel()

	pcm, clipped := AppendPCM16(nil, []float32{1, -1, 0.5, 1.5, -2, float32(math.NaN())})
	assert.Equal(t, 3, clipped)

	got := make([]int16, len(pcm)/2)
	for i := range got {
		got[i] = int16(uint16(pcm[i*2]) | uint16(pcm[i*2+1])<<8)
	}
	// round(0.5 * 32767) = round(16383.5) = 16384
	assert.Equal(t, []int16{32767, -32767, 16384, 32767, -32768, 0}, got)
}

func TestPCM16ToFloatInverse(t *testing.T) {
	t.Parallel()

	pcm := ToPCM16([]float32{0.25, -0.25})
	back := PCM16ToFloat(pcm)
	assert.InDelta(t, 0.25, back[0], 1e-4)
	assert.InDelta(t, -0.25, back[1], 1e-4)
}
