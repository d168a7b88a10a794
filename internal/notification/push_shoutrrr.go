package notification

import (
	"context"
	"io"
	"log"
	"regexp"
	"slices"
	"strings"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/livecaptions/livecaptions/internal/errors"
)

// ShoutrrrProvider sends via nicholas-fedor/shoutrrr
// Creates a single sender for multiple URLs.
type ShoutrrrProvider struct {
	name    string
	enabled bool
	urls    []string
	sender  *router.ServiceRouter
	timeout time.Duration
}

// NewShoutrrrProvider returns a provider for urls. Call ValidateConfig before Send.
func NewShoutrrrProvider(name string, enabled bool, urls []string, timeout time.Duration) *ShoutrrrProvider {
	sp := &ShoutrrrProvider{
		name:    strings.TrimSpace(name),
		enabled: enabled,
		urls:    slices.Clone(urls),
		timeout: timeout,
	}
	if sp.name == "" {
		sp.name = "shoutrrr"
	}
	return sp
}

func (s *ShoutrrrProvider) GetName() string        { return s.name }
func (s *ShoutrrrProvider) IsEnabled() bool        { return s.enabled }
func (s *ShoutrrrProvider) SupportsType(Type) bool { return true }

// ValidateConfig builds the sender, which parses every URL.
func (s *ShoutrrrProvider) ValidateConfig() error {
	if !s.enabled {
		return nil
	}
	if len(s.urls) == 0 {
		return errors.Newf("at least one notification URL is required").
			Component(componentNotification).
			Category(errors.CategoryConfiguration).
			Build()
	}
	sender, err := shoutrrr.CreateSender(s.urls...)
	if err != nil {
		return errors.New(redactError(err)).
			Component(componentNotification).
			Category(errors.CategoryConfiguration).
			Context("provider", s.name).
			Build()
	}
	s.sender = sender
	if s.timeout > 0 {
		s.sender.Timeout = s.timeout
	}
	s.sender.SetLogger(log.New(io.Discard, "", 0))
	return nil
}

// Send delivers n to every URL and returns the first failure.
func (s *ShoutrrrProvider) Send(_ context.Context, n *Notification) error {
	if s.sender == nil {
		return errors.Newf("shoutrrr sender not initialized").
			Component(componentNotification).
			Category(errors.CategoryState).
			Build()
	}

	params := stypes.Params{}
	if n.Title != "" {
		params.SetTitle(n.Title)
	}
	for _, err := range s.sender.Send(n.Message, &params) {
		if err != nil {
			return errors.New(redactError(err)).
				Component(componentNotification).
				Category(errors.CategoryNetwork).
				Context("provider", s.name).
				Build()
		}
	}
	return nil
}

// Service URLs carry tokens; keep only the scheme in error text.
var serviceURL = regexp.MustCompile(`([a-zA-Z][a-zA-Z0-9+.-]*)://[^\s"']+`)

func redactError(err error) error {
	return errors.NewStd(serviceURL.ReplaceAllString(err.Error(), "$1://[redacted]"))
}
