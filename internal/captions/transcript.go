package captions

import (
	"strings"
	"sync"

	"github.com/livecaptions/livecaptions/internal/events"
)

// DefaultHistory is the number of committed lines a Transcript keeps.
const DefaultHistory = 200

// Transcript is the on-screen caption text: committed final lines followed
// by at most one pending partial line. A partial replaces the pending line
// and a final commits it.
type Transcript struct {
	mu        sync.RWMutex
	committed []string
	pending   string
	limit     int
	sessionID string
}

// TranscriptSnapshot is a copy safe to hand to other goroutines.
type TranscriptSnapshot struct {
	SessionID string   `json:"session_id,omitempty"`
	Lines     []string `json:"lines"`
	Pending   string   `json:"pending,omitempty"`
}

// NewTranscript returns a transcript keeping at most limit committed lines.
func NewTranscript(limit int) *Transcript {
	if limit <= 0 {
		limit = DefaultHistory
	}
	return &Transcript{limit: limit}
}

// Name implements events.Consumer
func (t *Transcript) Name() string {
	return "transcript"
}

// HandleCaption implements events.Consumer
func (t *Transcript) HandleCaption(c events.Caption) error {
	t.Apply(c.Text, c.IsFinal)

	t.mu.Lock()
	t.sessionID = c.SessionID
	t.mu.Unlock()
	return nil
}

// HandleSessionEnd drops a partial that will never be finalised.
func (t *Transcript) HandleSessionEnd(events.SessionEnd) error {
	t.mu.Lock()
	t.pending = ""
	t.mu.Unlock()
	return nil
}

// Apply updates the buffer with one result.
func (t *Transcript) Apply(text string, final bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !final {
		t.pending = text
		return
	}

	t.pending = ""
	t.committed = append(t.committed, text)
	if over := len(t.committed) - t.limit; over > 0 {
		t.committed = append(t.committed[:0], t.committed[over:]...)
	}
}

// Lines returns committed lines plus the pending line, if any.
func (t *Transcript) Lines() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	lines := make([]string, 0, len(t.committed)+1)
	lines = append(lines, t.committed...)
	if t.pending != "" {
		lines = append(lines, t.pending)
	}
	return lines
}

// Text joins Lines with newlines.
func (t *Transcript) Text() string {
	return strings.Join(t.Lines(), "\n")
}

// Snapshot copies the current state.
func (t *Transcript) Snapshot() TranscriptSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return TranscriptSnapshot{
		SessionID: t.sessionID,
		Lines:     append([]string{}, t.committed...),
		Pending:   t.pending,
	}
}

// Clear empties the transcript.
func (t *Transcript) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.committed = nil
	t.pending = ""
}
