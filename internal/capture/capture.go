// Package capture turns uploaded files and device streams into attachments
// carrying an inline base64 payload.
package capture

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/errgroup"

	"agrimate/internal/models"
)

// MaxBytes bounds a single captured payload.
const MaxBytes = 10 << 20

// RecordingMIME is the container used for microphone clips.
const RecordingMIME = "audio/webm"

var (
	ErrPermissionDenied = errors.New("media permission denied")
	ErrTooLarge         = errors.New("attachment exceeds size limit")
	ErrEmpty            = errors.New("attachment is empty")
)

// Source yields the bytes of one attachment. MimeType may be empty, in which
// case the payload is sniffed.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	Name() string
	MimeType() string
}

// Capture reads src fully and builds the attachment. The opened stream is
// closed before Capture returns.
func Capture(ctx context.Context, src Source) (models.Attachment, error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return models.Attachment{}, fmt.Errorf("open %s: %w", src.Name(), err)
	}
	defer rc.Close()

	data, err := readLimited(ctx, rc)
	if err != nil {
		return models.Attachment{}, fmt.Errorf("read %s: %w", src.Name(), err)
	}
	if len(data) == 0 {
		return models.Attachment{}, fmt.Errorf("read %s: %w", src.Name(), ErrEmpty)
	}
	return FromBytes(data, src.MimeType()), nil
}

// FromBytes classifies data and encodes it.
func FromBytes(data []byte, mime string) models.Attachment {
	mime = normalizeMIME(mime)
	if mime == "" || mime == "application/octet-stream" {
		mime = normalizeMIME(mimetype.Detect(data).String())
	}
	encoded := base64.StdEncoding.EncodeToString(data)
	return models.Attachment{
		Type:     models.TypeForMIME(mime),
		URL:      "data:" + mime + ";base64," + encoded,
		MimeType: mime,
		Base64:   encoded,
	}
}

// CaptureAll captures every source concurrently. Results keep the order of
// srcs; the first failure cancels the rest.
func CaptureAll(ctx context.Context, srcs []Source) ([]models.Attachment, error) {
	out := make([]models.Attachment, len(srcs))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range srcs {
		g.Go(func() error {
			att, err := Capture(gctx, src)
			if err != nil {
				return err
			}
			out[i] = att
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func readLimited(ctx context.Context, r io.Reader) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(&ctxReader{ctx: ctx, r: r}, MaxBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}

// ctxReader stops a long read once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func normalizeMIME(mime string) string {
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return strings.ToLower(strings.TrimSpace(mime))
}

// FileSource adapts a multipart upload.
type FileSource struct {
	Header *multipart.FileHeader
}

func (f FileSource) Open(context.Context) (io.ReadCloser, error) {
	return f.Header.Open()
}

func (f FileSource) Name() string { return f.Header.Filename }

func (f FileSource) MimeType() string { return f.Header.Header.Get("Content-Type") }

// BytesSource wraps an in-memory payload.
type BytesSource struct {
	Label string
	Data  []byte
	MIME  string
}

func (b BytesSource) Open(context.Context) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.Data)), nil
}

func (b BytesSource) Name() string     { return b.Label }
func (b BytesSource) MimeType() string { return b.MIME }
