package capture

import (
	"context"
	"io"
)

// Device is a camera or microphone. Acquire returns ErrPermissionDenied when
// the user refuses access.
type Device interface {
	Acquire(ctx context.Context) (io.ReadCloser, error)
	Kind() string
}

// DeviceSource records one clip from a device.
type DeviceSource struct {
	Device Device
	MIME   string
}

// Microphone records with the default clip container.
func Microphone(d Device) DeviceSource {
	return DeviceSource{Device: d, MIME: RecordingMIME}
}

func (d DeviceSource) Open(ctx context.Context) (io.ReadCloser, error) {
	return d.Device.Acquire(ctx)
}

func (d DeviceSource) Name() string { return d.Device.Kind() }

func (d DeviceSource) MimeType() string { return d.MIME }
