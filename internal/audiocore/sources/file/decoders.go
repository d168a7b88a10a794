package file

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/tphakala/flac"
)

type streamInfo struct {
	sampleRate int
	channels   int
	bitDepth   int
}

// decoder yields interleaved float samples block by block
type decoder interface {
	info() streamInfo
	next() ([]float32, error)
}

// getAudioDivisor returns the integer full scale for a bit depth
func getAudioDivisor(bitDepth int) (float32, error) {
	switch bitDepth {
	case 16:
		return 32768.0, nil
	case 24:
		return 8388608.0, nil
	case 32:
		return 2147483648.0, nil
	default:
		return 0, fmt.Errorf("unsupported audio bit depth: %d", bitDepth)
	}
}

type wavDecoder struct {
	dec     *wav.Decoder
	meta    streamInfo
	divisor float32
	buf     *audio.IntBuffer
}

func newWAVDecoder(f *os.File, bufferFrames int) (*wavDecoder, error) {
	dec := wav.NewDecoder(f)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("input is not a valid WAV audio file")
	}

	meta := streamInfo{
		sampleRate: int(dec.SampleRate),
		channels:   int(dec.NumChans),
		bitDepth:   int(dec.BitDepth),
	}
	if meta.channels < 1 || meta.sampleRate < 1 {
		return nil, fmt.Errorf("invalid WAV format: %d Hz, %d channels", meta.sampleRate, meta.channels)
	}

	divisor, err := getAudioDivisor(meta.bitDepth)
	if err != nil {
		return nil, err
	}

	return &wavDecoder{
		dec:     dec,
		meta:    meta,
		divisor: divisor,
		buf: &audio.IntBuffer{
			Data:   make([]int, bufferFrames*meta.channels),
			Format: &audio.Format{SampleRate: meta.sampleRate, NumChannels: meta.channels},
		},
	}, nil
}

func (w *wavDecoder) info() streamInfo { return w.meta }

func (w *wavDecoder) next() ([]float32, error) {
	n, err := w.dec.PCMBuffer(w.buf)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, io.EOF
	}

	out := make([]float32, n)
	for i, sample := range w.buf.Data[:n] {
		out[i] = float32(sample) / w.divisor
	}
	return out, nil
}

type flacDecoder struct {
	dec     *flac.Decoder
	meta    streamInfo
	divisor float32
}

func newFLACDecoder(f *os.File) (*flacDecoder, error) {
	dec, err := flac.NewDecoder(f)
	if err != nil {
		return nil, err
	}

	meta := streamInfo{
		sampleRate: dec.SampleRate,
		channels:   dec.NChannels,
		bitDepth:   dec.BitsPerSample,
	}
	divisor, err := getAudioDivisor(meta.bitDepth)
	if err != nil {
		return nil, err
	}

	return &flacDecoder{dec: dec, meta: meta, divisor: divisor}, nil
}

func (d *flacDecoder) info() streamInfo { return d.meta }

func (d *flacDecoder) next() ([]float32, error) {
	frame, err := d.dec.Next()
	if err != nil {
		return nil, err
	}

	bytesPerSample := d.meta.bitDepth / 8
	out := make([]float32, 0, len(frame)/bytesPerSample)
	for i := 0; i+bytesPerSample <= len(frame); i += bytesPerSample {
		var sample int32
		switch d.meta.bitDepth {
		case 16:
			sample = int32(int16(binary.LittleEndian.Uint16(frame[i:])))
		case 24:
			sample = int32(frame[i]) | int32(frame[i+1])<<8 | int32(frame[i+2])<<16
			if sample&0x800000 != 0 {
				sample |= int32(-0x1000000)
			}
		case 32:
			sample = int32(binary.LittleEndian.Uint32(frame[i:]))
		}
		out = append(out, float32(sample)/d.divisor)
	}
	return out, nil
}
