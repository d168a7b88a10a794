// Package sources selects a capture backend by name.
package sources

import (
	"strings"

	"github.com/livecaptions/livecaptions/internal/audiocore"
	"github.com/livecaptions/livecaptions/internal/audiocore/sources/malgo"
	"github.com/livecaptions/livecaptions/internal/audiocore/sources/portaudio"
	"github.com/livecaptions/livecaptions/internal/errors"
	"github.com/livecaptions/livecaptions/internal/observability/metrics"
)

// Backends lists the supported capture backends, default first.
var Backends = []string{malgo.BackendName, portaudio.BackendName}

// NewDevice creates a capture device for the named backend.
func NewDevice(backend, source string, channels int, m *metrics.AudioMetrics) (audiocore.Device, error) {
	switch normalize(backend) {
	case malgo.BackendName:
		return malgo.NewDevice(source, channels, m), nil
	case portaudio.BackendName:
		return portaudio.NewDevice(source, channels, m), nil
	default:
		return nil, unknownBackend(backend)
	}
}

// ListDevices enumerates capture devices of the named backend.
func ListDevices(backend string) ([]audiocore.DeviceInfo, error) {
	switch normalize(backend) {
	case malgo.BackendName:
		return malgo.EnumerateDevices()
	case portaudio.BackendName:
		return portaudio.EnumerateDevices()
	default:
		return nil, unknownBackend(backend)
	}
}

// normalize maps an empty name to the default backend.
func normalize(backend string) string {
	backend = strings.ToLower(strings.TrimSpace(backend))
	if backend == "" || backend == "soundcard" {
		return malgo.BackendName
	}
	return backend
}

func unknownBackend(backend string) error {
	return errors.Newf("unknown audio backend %q, expected one of %s", backend, strings.Join(Backends, ", ")).
		Component("audiocore").
		Category(errors.CategoryValidation).
		Context("backend", backend).
		Build()
}
