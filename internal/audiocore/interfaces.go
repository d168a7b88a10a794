// Package audiocore provides the frame source of the captions pipeline.
// Capture backends implement Device and Stream; FrameSource turns a stream of
// interleaved float samples into mono 16-bit PCM chunks for the recognizer.
//
// Architecture overview:
//
//	Device.Open -> Stream.Read -> Downmix -> ToPCM16 -> recognizer
//
// Key interfaces:
//   - Device: a capture endpoint that can be opened at a sample rate
//   - Stream: an open capture stream yielding interleaved float frames
package audiocore

import "time"

// Device is an input device handle. The caller owns it; a session borrows it
// for the duration of one run and may open it again on the next run.
type Device interface {
	// Name returns a human-readable device name
	Name() string

	// Open starts capture at sampleRate with a host buffer of bufferFrames
	// frames. The returned stream must be closed by the caller.
	Open(sampleRate, bufferFrames int) (Stream, error)
}

// Stream is an open capture stream.
type Stream interface {
	// Channels returns the number of interleaved channels Read yields
	Channels() int

	// Read blocks until frames frames are available and returns exactly
	// frames*Channels() interleaved samples in [-1, 1]. File-backed
	// streams return io.EOF once no more audio is left.
	Read(frames int) ([]float32, error)

	// Close releases the device resources held by the stream
	Close() error
}

// DeadlineStream is implemented by streams that can bound Read natively.
// FrameSource falls back to a watchdog goroutine for other streams.
type DeadlineStream interface {
	Stream
	SetReadTimeout(timeout time.Duration)
}

// DeviceInfo describes an enumerable capture device.
type DeviceInfo struct {
	Index     int
	Name      string
	ID        string
	IsDefault bool
	// Loopback marks an output device captured through loopback; its ID
	// is the loopback source string.
	Loopback bool
}
