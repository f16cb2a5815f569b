package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"
)

// MediaRoute is the URL prefix under which the media directory is served.
const MediaRoute = "/media/"

var ErrPollExhausted = errors.New("video generation did not finish in time")

// poller re-reads a long running operation at a fixed interval until it is
// done, the attempts run out or ctx ends.
type poller struct {
	interval time.Duration
	attempts int
	sleep    func(ctx context.Context, d time.Duration) error
}

func (p poller) wait(ctx context.Context, op *genai.GenerateVideosOperation, refresh func(context.Context, *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error)) (*genai.GenerateVideosOperation, error) {
	for attempt := 0; !op.Done; attempt++ {
		if attempt >= p.attempts {
			return nil, fmt.Errorf("%w after %d polls", ErrPollExhausted, attempt)
		}
		if err := p.sleep(ctx, p.interval); err != nil {
			return nil, err
		}
		next, err := refresh(ctx, op)
		if err != nil {
			return nil, fmt.Errorf("poll video operation: %w", err)
		}
		op = next
	}
	return op, nil
}

// GenerateVideo renders a short clip, stores it in the media directory and
// returns its locator.
func (g *Gemini) GenerateVideo(ctx context.Context, prompt string) (string, error) {
	op, err := g.models.GenerateVideos(ctx, g.cfg.VideoModel, videoPrompt(prompt), nil, &genai.GenerateVideosConfig{
		NumberOfVideos: 1,
		Resolution:     resolution,
		AspectRatio:    aspectRatio,
	})
	if err != nil {
		return "", fmt.Errorf("start video generation: %w", err)
	}

	p := poller{
		interval: time.Duration(g.cfg.PollInterval) * time.Second,
		attempts: g.cfg.PollAttempts,
		sleep:    g.sleep,
	}
	op, err = p.wait(ctx, op, func(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error) {
		return g.operations.GetVideosOperation(ctx, op, nil)
	})
	if err != nil {
		return "", err
	}
	if op.Error != nil {
		return "", fmt.Errorf("video generation failed: %v", op.Error)
	}
	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 || op.Response.GeneratedVideos[0].Video == nil {
		return "", ErrEmptyResponse
	}
	video := op.Response.GeneratedVideos[0].Video
	if len(video.VideoBytes) > 0 {
		return g.storeVideo(video.VideoBytes)
	}
	if video.URI == "" {
		return "", ErrEmptyResponse
	}
	return g.downloadVideo(ctx, video.URI)
}

func (g *Gemini) downloadVideo(ctx context.Context, uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("parse video uri: %w", err)
	}
	q := u.Query()
	q.Set("key", g.cfg.APIKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download video: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download video: unexpected status %s", resp.Status)
	}

	name, f, err := g.createMediaFile()
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write video: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close video: %w", err)
	}
	log.Printf("stored generated video %s", name)
	return MediaRoute + name, nil
}

func (g *Gemini) storeVideo(data []byte) (string, error) {
	name, f, err := g.createMediaFile()
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write video: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close video: %w", err)
	}
	return MediaRoute + name, nil
}

func (g *Gemini) createMediaFile() (string, *os.File, error) {
	if err := os.MkdirAll(g.mediaDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("create media dir: %w", err)
	}
	name := uuid.NewString() + ".mp4"
	f, err := os.Create(filepath.Join(g.mediaDir, name))
	if err != nil {
		return "", nil, fmt.Errorf("create media file: %w", err)
	}
	return name, f, nil
}
