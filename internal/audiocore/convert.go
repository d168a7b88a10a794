package audiocore

import (
	"encoding/binary"
	"math"
)

// pcm16Scale maps [-1, 1] onto the signed 16-bit range.
const pcm16Scale = 32767

// Downmix collapses interleaved samples to mono by the arithmetic mean of
// each frame. Mono input is returned as is. A trailing partial frame is
// ignored.
func Downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}

	frames := len(samples) / channels
	mono := make([]float32, frames)
	for i := range frames {
		var sum float64
		frame := samples[i*channels : (i+1)*channels]
		for _, s := range frame {
			sum += float64(s)
		}
		mono[i] = float32(sum / float64(channels))
	}
	return mono
}

// ToPCM16 converts mono float samples to little-endian signed 16-bit PCM
// using round(s * 32767). Out of range samples are clamped.
func ToPCM16(mono []float32) []byte {
	out, _ := AppendPCM16(make([]byte, 0, len(mono)*2), mono)
	return out
}

// AppendPCM16 appends the PCM16 encoding of mono to dst and reports how many
// samples had to be clamped.
func AppendPCM16(dst []byte, mono []float32) ([]byte, int) {
	clipped := 0
	for _, s := range mono {
		v := math.Round(float64(s) * pcm16Scale)
		switch {
		case v > math.MaxInt16:
			v = math.MaxInt16
			clipped++
		case v < math.MinInt16:
			v = math.MinInt16
			clipped++
		case math.IsNaN(v):
			v = 0
			clipped++
		}
		dst = binary.LittleEndian.AppendUint16(dst, uint16(int16(v)))
	}
	return dst, clipped
}

// PCM16ToFloat decodes little-endian PCM16 back to float samples. Used by
// file sources and tests.
func PCM16ToFloat(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768.0
	}
	return out
}
