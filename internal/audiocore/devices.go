package audiocore

import (
	"strings"

	"github.com/livecaptions/livecaptions/internal/errors"
)

// LoopbackSource selects loopback capture of the default output device.
// "loopback:<name>" selects a named output device.
const LoopbackSource = "loopback"

// ParseLoopback reports whether source asks for loopback capture. For a
// loopback source the returned name is the output device, empty for the
// default; otherwise source is returned unchanged.
func ParseLoopback(source string) (string, bool) {
	if source == LoopbackSource {
		return "", true
	}
	if name, ok := strings.CutPrefix(source, LoopbackSource+":"); ok {
		return strings.TrimSpace(name), true
	}
	return source, false
}

// LoopbackSourceFor returns the source string selecting output device name.
func LoopbackSourceFor(name string) string {
	return LoopbackSource + ":" + name
}

// SelectDeviceIndex resolves a device name in order: default alias, exact name,
// decoded ID, then partial name.
func SelectDeviceIndex(devices []DeviceInfo, deviceName string) (int, error) {
	if deviceName == "" || deviceName == "default" || deviceName == "sysdefault" {
		for i := range devices {
			if devices[i].IsDefault {
				return i, nil
			}
		}
		if len(devices) > 0 {
			return 0, nil
		}
	}

	for i := range devices {
		if devices[i].Name == deviceName {
			return i, nil
		}
	}

	for i := range devices {
		if devices[i].ID == deviceName {
			return i, nil
		}
	}

	for i := range devices {
		if deviceName != "" && strings.Contains(devices[i].Name, deviceName) {
			return i, nil
		}
	}

	return -1, errors.Newf("no matching audio device found: %q", deviceName).
		Component(ComponentAudioCore).
		Category(errors.CategoryNotFound).
		Context("device_name", deviceName).
		Context("available_devices", len(devices)).
		Build()
}
