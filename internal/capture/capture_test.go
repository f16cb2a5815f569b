package capture

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"

	"agrimate/internal/models"
)

type trackedReader struct {
	io.Reader
	closed *atomic.Bool
	fail   error
}

func (t *trackedReader) Read(p []byte) (int, error) {
	if t.fail != nil {
		return 0, t.fail
	}
	return t.Reader.Read(p)
}

func (t *trackedReader) Close() error {
	t.closed.Store(true)
	return nil
}

type fakeDevice struct {
	data   []byte
	denied bool
	fail   error
	closed atomic.Bool
}

func (f *fakeDevice) Acquire(context.Context) (io.ReadCloser, error) {
	if f.denied {
		return nil, ErrPermissionDenied
	}
	return &trackedReader{Reader: bytes.NewReader(f.data), closed: &f.closed, fail: f.fail}, nil
}

func (f *fakeDevice) Kind() string { return "microphone" }

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func TestCaptureSniffsAndEncodes(t *testing.T) {
	att, err := Capture(context.Background(), BytesSource{Label: "leaf", Data: pngHeader})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if att.Type != models.AttachmentImage || att.MimeType != "image/png" {
		t.Fatalf("unexpected classification %+v", att)
	}
	if att.Base64 != base64.StdEncoding.EncodeToString(pngHeader) {
		t.Fatalf("payload not base64 encoded")
	}
	if !strings.HasPrefix(att.URL, "data:image/png;base64,") {
		t.Fatalf("unexpected locator %q", att.URL[:30])
	}
}

func TestCaptureKeepsDeclaredMIME(t *testing.T) {
	att, err := Capture(context.Background(), BytesSource{Data: []byte("%PDF-1.4"), MIME: "application/pdf; charset=binary"})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if att.Type != models.AttachmentDocument || att.MimeType != "application/pdf" {
		t.Fatalf("unexpected attachment %+v", att)
	}
}

func TestMicrophoneClosesStream(t *testing.T) {
	dev := &fakeDevice{data: []byte("webm-bytes")}
	att, err := Capture(context.Background(), Microphone(dev))
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if att.Type != models.AttachmentAudio || att.MimeType != RecordingMIME {
		t.Fatalf("unexpected attachment %+v", att)
	}
	if !dev.closed.Load() {
		t.Fatalf("device stream not closed")
	}
}

func TestCaptureClosesOnReadError(t *testing.T) {
	dev := &fakeDevice{data: []byte("x"), fail: errors.New("unplugged")}
	if _, err := Capture(context.Background(), Microphone(dev)); err == nil {
		t.Fatalf("expected read error")
	}
	if !dev.closed.Load() {
		t.Fatalf("device stream not closed after failure")
	}
}

func TestCapturePermissionDenied(t *testing.T) {
	_, err := Capture(context.Background(), Microphone(&fakeDevice{denied: true}))
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestCaptureCancelledContextCloses(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dev := &fakeDevice{data: []byte("clip")}
	if _, err := Capture(ctx, Microphone(dev)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if !dev.closed.Load() {
		t.Fatalf("stream not closed on cancel")
	}
}

func TestCaptureRejectsOversizeAndEmpty(t *testing.T) {
	big := BytesSource{Data: make([]byte, MaxBytes+1), MIME: "video/mp4"}
	if _, err := Capture(context.Background(), big); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if _, err := Capture(context.Background(), BytesSource{MIME: "image/png"}); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestCaptureAllPreservesOrder(t *testing.T) {
	srcs := []Source{
		BytesSource{Data: []byte("a"), MIME: "video/mp4"},
		BytesSource{Data: pngHeader},
		BytesSource{Data: []byte("c"), MIME: "audio/mpeg"},
	}
	atts, err := CaptureAll(context.Background(), srcs)
	if err != nil {
		t.Fatalf("CaptureAll: %v", err)
	}
	want := []models.AttachmentType{models.AttachmentVideo, models.AttachmentImage, models.AttachmentAudio}
	for i, a := range atts {
		if a.Type != want[i] {
			t.Fatalf("index %d: expected %s, got %s", i, want[i], a.Type)
		}
	}
}

func TestCaptureAllFailsOnDenied(t *testing.T) {
	srcs := []Source{BytesSource{Data: []byte("a"), MIME: "image/png"}, Microphone(&fakeDevice{denied: true})}
	if _, err := CaptureAll(context.Background(), srcs); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}
