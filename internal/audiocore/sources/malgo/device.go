package malgo

import (
	"encoding/hex"
	"runtime"
	"strings"

	"github.com/gen2brain/malgo"

	"github.com/livecaptions/livecaptions/internal/audiocore"
	"github.com/livecaptions/livecaptions/internal/errors"
)

// getBackendForPlatform returns the appropriate malgo backend for the current platform
func getBackendForPlatform() (malgo.Backend, error) {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa, nil
	case "windows":
		return malgo.BackendWasapi, nil
	case "darwin":
		return malgo.BackendCoreaudio, nil
	default:
		return malgo.BackendNull, errors.Newf("unsupported operating system: %s", runtime.GOOS).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryAudioSource).
			Context("os", runtime.GOOS).
			Build()
	}
}

// initContext opens a malgo context on the platform backend.
func initContext() (*malgo.AllocatedContext, error) {
	backend, err := getBackendForPlatform()
	if err != nil {
		return nil, err
	}

	ctx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, errors.New(err).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryAudioSource).
			Context("operation", "init_context").
			Context("backend", runtime.GOOS).
			Build()
	}
	return ctx, nil
}

// listDevices lists devices of kind, skipping the null sink.
func listDevices(ctx *malgo.AllocatedContext, kind malgo.DeviceType) ([]malgo.DeviceInfo, error) {
	infos, err := ctx.Devices(kind)
	if err != nil {
		return nil, errors.New(err).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryAudioSource).
			Context("operation", "enumerate_devices").
			Build()
	}

	devices := make([]malgo.DeviceInfo, 0, len(infos))
	for i := range infos {
		if strings.Contains(infos[i].Name(), "Discard all samples") {
			continue
		}
		devices = append(devices, infos[i])
	}
	return devices, nil
}

// loopbackSupported reports whether backend can capture what an output
// device plays. miniaudio implements loopback for WASAPI only.
func loopbackSupported(backend malgo.Backend) bool {
	return backend == malgo.BackendWasapi
}

// resolveSource splits a source into the device name to select and the
// device type to open: capture, or loopback over an output device.
func resolveSource(source string, backend malgo.Backend) (string, malgo.DeviceType, error) {
	name, loopback := audiocore.ParseLoopback(source)
	if !loopback {
		return name, malgo.Capture, nil
	}
	if !loopbackSupported(backend) {
		return "", malgo.Capture, errors.Newf("loopback capture is not supported on %s", runtime.GOOS).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryAudioSource).
			Context("source", source).
			Context("os", runtime.GOOS).
			Build()
	}
	return name, malgo.Loopback, nil
}

// EnumerateDevices returns the available capture devices followed, where
// the backend supports it, by output devices usable for loopback capture.
func EnumerateDevices() ([]audiocore.DeviceInfo, error) {
	backend, err := getBackendForPlatform()
	if err != nil {
		return nil, err
	}
	ctx, err := initContext()
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	infos, err := listDevices(ctx, malgo.Capture)
	if err != nil {
		return nil, err
	}

	devices := make([]audiocore.DeviceInfo, 0, len(infos))
	for i := range infos {
		devices = append(devices, describe(i, &infos[i]))
	}

	if !loopbackSupported(backend) {
		return devices, nil
	}
	outputs, err := listDevices(ctx, malgo.Playback)
	if err != nil {
		return nil, err
	}
	for i := range outputs {
		devices = append(devices, describeLoopback(len(devices), &outputs[i]))
	}
	return devices, nil
}

func describe(index int, info *malgo.DeviceInfo) audiocore.DeviceInfo {
	decodedID, err := hexToASCII(info.ID.String())
	if err != nil {
		decodedID = info.ID.String()
	}
	return audiocore.DeviceInfo{
		Index:     index,
		Name:      info.Name(),
		ID:        decodedID,
		IsDefault: info.IsDefault == 1,
	}
}

// describeLoopback lists an output device under the source string that
// captures it.
func describeLoopback(index int, info *malgo.DeviceInfo) audiocore.DeviceInfo {
	d := describe(index, info)
	d.ID = audiocore.LoopbackSourceFor(d.Name)
	d.Loopback = true
	return d
}

// SelectDevice finds a device matching the given name or ID
func SelectDevice(devices []malgo.DeviceInfo, deviceName string) (*malgo.DeviceInfo, error) {
	candidates := make([]audiocore.DeviceInfo, len(devices))
	for i := range devices {
		candidates[i] = describe(i, &devices[i])
	}

	idx, err := audiocore.SelectDeviceIndex(candidates, deviceName)
	if err != nil {
		return nil, err
	}
	return &devices[idx], nil
}

// hexToASCII converts a hexadecimal string to an ASCII string
func hexToASCII(hexStr string) (string, error) {
	bytes, err := hex.DecodeString(hexStr)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}
