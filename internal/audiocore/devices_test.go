package audiocore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livecaptions/livecaptions/internal/errors"
)

func TestSelectDeviceIndex(t *testing.T) {
	t.Parallel()

	devices := []DeviceInfo{
		{Index: 0, Name: "Monitor of Built-in Audio", ID: ":0,1"},
		{Index: 1, Name: "USB Microphone", ID: ":1,0", IsDefault: true},
		{Index: 2, Name: "Loopback", ID: ":2,0"},
	}

	tests := []struct {
		name   string
		query  string
		want   int
		errCat errors.ErrorCategory
	}{
		{name: "empty selects default", query: "", want: 1},
		{name: "default alias", query: "default", want: 1},
		{name: "sysdefault alias", query: "sysdefault", want: 1},
		{name: "exact name", query: "Loopback", want: 2},
		{name: "decoded id", query: ":0,1", want: 0},
		{name: "partial name", query: "Built-in", want: 0},
		{name: "no match", query: "HDMI", want: -1, errCat: errors.CategoryNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := SelectDeviceIndex(devices, tt.query)
			if tt.errCat != "" {
				require.Error(t, err)
				assert.True(t, errors.IsCategory(err, tt.errCat))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelectDeviceIndexFallsBackToFirstDevice(t *testing.T) {
	t.Parallel()

	got, err := SelectDeviceIndex([]DeviceInfo{{Name: "a"}, {Name: "b"}}, "default")
	require.NoError(t, err)
	assert.Equal(t, 0, got)
}

func TestParseLoopback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		source   string
		name     string
		loopback bool
	}{
		{"", "", false},
		{"USB Microphone", "USB Microphone", false},
		{"Loopback", "Loopback", false},
		{"loopback", "", true},
		{"loopback:Speakers (Realtek)", "Speakers (Realtek)", true},
		{"loopback: Headphones ", "Headphones", true},
	}
	for _, tt := range tests {
		name, loopback := ParseLoopback(tt.source)
		assert.Equal(t, tt.name, name, "source %q", tt.source)
		assert.Equal(t, tt.loopback, loopback, "source %q", tt.source)
	}

	name, loopback := ParseLoopback(LoopbackSourceFor("Speakers"))
	assert.True(t, loopback)
	assert.Equal(t, "Speakers", name)
}
