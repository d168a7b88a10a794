// Package recognizer wraps a streaming speech engine behind an accept and
// result state machine. One Recognizer holds one decoding state bound to one
// sample rate and must only be used from a single goroutine.
package recognizer

import (
	"github.com/antonholmquist/jason"

	"github.com/livecaptions/livecaptions/internal/errors"
)

// Decoder is the streaming engine seam. *vosk.VoskRecognizer satisfies it.
type Decoder interface {
	// AcceptWaveform returns 1 at an utterance boundary, 0 otherwise and -1 on error
	AcceptWaveform(pcm []byte) int
	Result() string
	PartialResult() string
	FinalResult() string
	Reset()
	Free()
}

// Factory builds a fresh Recognizer for one session run.
type Factory interface {
	NewRecognizer(sampleRate int) (*Recognizer, error)
}

// Recognizer is the streaming recognition state for one session run.
type Recognizer struct {
	dec        Decoder
	sampleRate int
	language   string

	// boundary is set when the last Accept completed a segment
	boundary bool
	accepted uint64
	closed   bool
}

// New wraps dec. The Recognizer takes ownership and frees dec on Close.
func New(dec Decoder, sampleRate int, language string) *Recognizer {
	return &Recognizer{dec: dec, sampleRate: sampleRate, language: language}
}

// SampleRate returns the rate the decoding state was built for.
func (r *Recognizer) SampleRate() int { return r.sampleRate }

// Language returns the model language, if known.
func (r *Recognizer) Language() string { return r.language }

// Accepted returns the number of frames fed so far.
func (r *Recognizer) Accepted() uint64 { return r.accepted }

// Accept feeds one PCM16 mono frame and reports whether an utterance
// boundary was reached.
func (r *Recognizer) Accept(pcm []byte) (bool, error) {
	if r.closed {
		return false, errClosed()
	}

	r.accepted++
	switch r.dec.AcceptWaveform(pcm) {
	case 1:
		r.boundary = true
		return true, nil
	case 0:
		r.boundary = false
		return false, nil
	default:
		r.boundary = false
		return false, errors.Newf("engine rejected waveform of %d bytes", len(pcm)).
			Component("recognizer").
			Category(errors.CategoryProcessing).
			Context("frames_accepted", r.accepted).
			Build()
	}
}

// FinalResult returns the text of the segment completed by the last Accept.
// It is only valid right after Accept returned true.
func (r *Recognizer) FinalResult() (string, error) {
	if r.closed {
		return "", errClosed()
	}
	if !r.boundary {
		return "", errors.Newf("final result requested without an utterance boundary").
			Component("recognizer").
			Category(errors.CategoryState).
			Build()
	}
	r.boundary = false
	return parseField(r.dec.Result(), "text")
}

// PartialResult returns the hypothesis for the still-open segment.
func (r *Recognizer) PartialResult() (string, error) {
	if r.closed {
		return "", errClosed()
	}
	return parseField(r.dec.PartialResult(), "partial")
}

// Flush finalises the open segment at end of stream and returns its text.
func (r *Recognizer) Flush() (string, error) {
	if r.closed {
		return "", errClosed()
	}
	r.boundary = false
	return parseField(r.dec.FinalResult(), "text")
}

// Reset discards the open segment.
func (r *Recognizer) Reset() {
	if !r.closed {
		r.boundary = false
		r.dec.Reset()
	}
}

// Close frees the decoding state. Safe to call more than once.
func (r *Recognizer) Close() {
	if r.closed {
		return
	}
	r.closed = true
	r.dec.Free()
}

func errClosed() error {
	return errors.Newf("recognizer is closed").
		Component("recognizer").
		Category(errors.CategoryState).
		Build()
}

// parseField extracts key from an engine JSON result. A missing key is an
// empty hypothesis, not an error.
func parseField(result, key string) (string, error) {
	obj, err := jason.NewObjectFromBytes([]byte(result))
	if err != nil {
		return "", errors.New(err).
			Component("recognizer").
			Category(errors.CategoryRecognition).
			Context("field", key).
			Build()
	}

	value, ok := obj.Map()[key]
	if !ok {
		return "", nil
	}
	text, err := value.String()
	if err != nil {
		return "", errors.New(err).
			Component("recognizer").
			Category(errors.CategoryRecognition).
			Context("field", key).
			Build()
	}
	return text, nil
}
