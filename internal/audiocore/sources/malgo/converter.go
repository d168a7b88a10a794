package malgo

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gen2brain/malgo"
)

// DecodeSamples converts raw captured bytes in sourceFormat to float samples
// in [-1, 1]. A trailing partial sample is ignored.
func DecodeSamples(samples []byte, sourceFormat malgo.FormatType, out []float32) ([]float32, error) {
	bytesPerSample, _ := GetFormatInfo(sourceFormat)
	if bytesPerSample == 0 {
		return nil, fmt.Errorf("unsupported source format: %v", sourceFormat)
	}

	count := len(samples) / bytesPerSample
	if cap(out) < count {
		out = make([]float32, count)
	}
	out = out[:count]

	for i := range count {
		src := samples[i*bytesPerSample:]

		switch sourceFormat {
		case malgo.FormatU8:
			out[i] = float32(int32(src[0])-128) / 128.0

		case malgo.FormatS16:
			out[i] = float32(int16(binary.LittleEndian.Uint16(src))) / 32768.0

		case malgo.FormatS24:
			val := int32(src[0]) | int32(src[1])<<8 | int32(src[2])<<16
			// Sign extend if the most significant bit is set
			if (val & 0x800000) != 0 {
				val |= int32(-0x1000000)
			}
			out[i] = float32(val) / 8388608.0

		case malgo.FormatS32:
			out[i] = float32(float64(int32(binary.LittleEndian.Uint32(src))) / 2147483648.0)

		case malgo.FormatF32:
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(src))
		}
	}

	return out, nil
}

// GetFormatInfo returns information about a malgo format type
func GetFormatInfo(format malgo.FormatType) (bytesPerSample int, name string) {
	switch format {
	case malgo.FormatU8:
		return 1, "U8"
	case malgo.FormatS16:
		return 2, "S16"
	case malgo.FormatS24:
		return 3, "S24"
	case malgo.FormatS32:
		return 4, "S32"
	case malgo.FormatF32:
		return 4, "F32"
	default:
		return 0, "Unknown"
	}
}

// CalculateBufferSize calculates the buffer size in bytes for a given format and frame count
func CalculateBufferSize(format malgo.FormatType, channels, frameCount int) int {
	bytesPerSample, _ := GetFormatInfo(format)
	return bytesPerSample * channels * frameCount
}
