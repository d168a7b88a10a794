package captions

import (
	"fmt"
	"io"
	"strings"

	"github.com/livecaptions/livecaptions/internal/events"
)

// Console renders captions to a terminal. Partials overwrite the current
// line; finals end it.
type Console struct {
	out     io.Writer
	partial bool
	width   int
}

// NewConsole writes to out. Partials longer than width are cut from the left.
func NewConsole(out io.Writer, width int) *Console {
	if width <= 0 {
		width = 120
	}
	return &Console{out: out, width: width}
}

// Name implements events.Consumer
func (c *Console) Name() string {
	return "console"
}

// HandleCaption implements events.Consumer
func (c *Console) HandleCaption(caption events.Caption) error {
	if caption.IsFinal {
		_, err := fmt.Fprintf(c.out, "\r\033[K%s\n", caption.Text)
		c.partial = false
		return err
	}

	text := caption.Text
	if r := []rune(text); len(r) > c.width {
		text = "…" + string(r[len(r)-c.width+1:])
	}
	c.partial = true
	_, err := fmt.Fprintf(c.out, "\r\033[K%s", text)
	return err
}

// HandleSessionEnd prints the error placeholder when a run failed.
func (c *Console) HandleSessionEnd(end events.SessionEnd) error {
	var b strings.Builder
	if c.partial {
		b.WriteString("\r\033[K")
		c.partial = false
	}
	if end.Reason == events.ReasonFailed && end.Err != nil {
		fmt.Fprintf(&b, "ERROR: %s\n", end.Err)
	}
	if b.Len() == 0 {
		return nil
	}
	_, err := io.WriteString(c.out, b.String())
	return err
}

// ShowError prints a construction failure in the caption area.
func (c *Console) ShowError(err error) {
	_, _ = fmt.Fprintf(c.out, "ERROR: %s\n", err)
}
