// Package recognizertest provides a scripted Decoder for tests.
package recognizertest

import (
	"encoding/json"
	"sync"

	"github.com/livecaptions/livecaptions/internal/recognizer"
)

// Step scripts the engine's answer to one AcceptWaveform call.
type Step struct {
	// Code is the AcceptWaveform return value: 1 final, 0 partial, -1 error
	Code    int
	Final   string
	Partial string
}

// Decoder replays Steps. Once the script is exhausted it keeps returning
// the Default step.
type Decoder struct {
	mu      sync.Mutex
	steps   []Step
	Default Step
	current Step

	accepts  int
	partials int
	finals   int
	freed    int
	resets   int
	flushed  string
	lastSize int
}

// NewDecoder returns a Decoder that replays steps.
func NewDecoder(steps ...Step) *Decoder {
	return &Decoder{steps: steps}
}

// AcceptWaveform implements recognizer.Decoder
func (d *Decoder) AcceptWaveform(pcm []byte) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.accepts++
	d.lastSize = len(pcm)
	d.current = d.Default
	if len(d.steps) > 0 {
		d.current = d.steps[0]
		d.steps = d.steps[1:]
	}
	return d.current.Code
}

// Result implements recognizer.Decoder
func (d *Decoder) Result() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.finals++
	return encode("text", d.current.Final)
}

// PartialResult implements recognizer.Decoder
func (d *Decoder) PartialResult() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.partials++
	return encode("partial", d.current.Partial)
}

// FinalResult implements recognizer.Decoder
func (d *Decoder) FinalResult() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return encode("text", d.flushed)
}

// Reset implements recognizer.Decoder
func (d *Decoder) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resets++
}

// Free implements recognizer.Decoder
func (d *Decoder) Free() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.freed++
}

// SetFlushText sets the text returned when the stream is finalised.
func (d *Decoder) SetFlushText(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.flushed = text
}

// Accepts returns the number of AcceptWaveform calls.
func (d *Decoder) Accepts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.accepts
}

// Partials returns the number of PartialResult calls.
func (d *Decoder) Partials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.partials
}

// Freed returns the number of Free calls.
func (d *Decoder) Freed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.freed
}

// LastFrameSize returns the byte length of the last accepted frame.
func (d *Decoder) LastFrameSize() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastSize
}

func encode(key, value string) string {
	b, _ := json.Marshal(map[string]string{key: value})
	return string(b)
}

// Factory builds recognizers over scripted decoders.
type Factory struct {
	mu       sync.Mutex
	decoders []*Decoder
	next     func() *Decoder
	err      error
	builds   int
}

// NewFactory returns a factory calling next for every new recognizer.
func NewFactory(next func() *Decoder) *Factory {
	return &Factory{next: next}
}

// Fail makes subsequent builds fail with err.
func (f *Factory) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// NewRecognizer implements recognizer.Factory
func (f *Factory) NewRecognizer(sampleRate int) (*recognizer.Recognizer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.builds++
	if f.err != nil {
		return nil, f.err
	}
	d := f.next()
	f.decoders = append(f.decoders, d)
	return recognizer.New(d, sampleRate, "test"), nil
}

// Builds returns how many recognizers were requested.
func (f *Factory) Builds() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.builds
}

// Decoders returns every decoder handed out so far.
func (f *Factory) Decoders() []*Decoder {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Decoder(nil), f.decoders...)
}
