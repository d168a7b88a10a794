// Package events delivers recognition results from the capture loop to
// consumers. A single delivery goroutine calls every consumer serially, in
// publish order, so consumers never see two events at once.
package events

import (
	"time"
)

// Caption is one recognition result.
type Caption struct {
	SessionID string    `json:"session_id"`
	Seq       uint64    `json:"seq"`
	Text      string    `json:"text"`
	IsFinal   bool      `json:"is_final"`
	Language  string    `json:"language,omitempty"`
	Time      time.Time `json:"time"`
}

// Kind returns "final" or "partial".
func (c Caption) Kind() string {
	if c.IsFinal {
		return "final"
	}
	return "partial"
}

// EndReason says why a session loop exited.
type EndReason string

const (
	ReasonStopped     EndReason = "stopped"
	ReasonEndOfStream EndReason = "end-of-stream"
	ReasonFailed      EndReason = "failed"
)

// SessionEnd is delivered after the last caption of a session.
type SessionEnd struct {
	SessionID string    `json:"session_id"`
	Reason    EndReason `json:"reason"`
	Err       error     `json:"-"`
	Captions  uint64    `json:"captions"`
	Time      time.Time `json:"time"`
}

// Error returns the failure message, or an empty string.
func (e SessionEnd) Error() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// Consumer receives captions on the dispatcher goroutine.
type Consumer interface {
	// Name returns the consumer name for identification
	Name() string

	// HandleCaption processes a single caption
	HandleCaption(caption Caption) error
}

// SessionObserver is implemented by consumers that want session ends.
type SessionObserver interface {
	HandleSessionEnd(end SessionEnd) error
}

// DispatcherStats contains runtime statistics for monitoring
type DispatcherStats struct {
	Published      uint64
	Delivered      uint64
	Dropped        uint64
	ConsumerErrors uint64
	QueueDepth     int
}
