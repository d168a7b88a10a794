package datastore

import (
	"context"
	"time"

	"github.com/livecaptions/livecaptions/internal/events"
)

const saveTimeout = 5 * time.Second

// Recorder is a dispatcher consumer that stores final captions.
type Recorder struct {
	store *Store
}

// NewRecorder wraps a store as a caption consumer.
func NewRecorder(store *Store) *Recorder {
	return &Recorder{store: store}
}

func (r *Recorder) Name() string { return "datastore" }

// HandleCaption persists finals; partials are ignored.
func (r *Recorder) HandleCaption(c events.Caption) error {
	if !c.IsFinal {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	return r.store.Save(ctx, &CaptionRecord{
		SessionID: c.SessionID,
		Seq:       c.Seq,
		Language:  c.Language,
		Text:      c.Text,
		CreatedAt: c.Time,
	})
}
