package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"agrimate/internal/capture"
	"agrimate/internal/models"
	"agrimate/internal/service/ai"
	"agrimate/internal/session"
	"agrimate/internal/worker"
)

const (
	replyTimeout  = 2 * time.Minute
	speechTimeout = time.Minute

	shareTitle    = "AgriMate Chat Session"
	shareFallback = "AgriMate Farming Assistance"
	sharePreview  = 100
)

func (h *Handler) getChat(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"messages": ws.Session.Messages(),
		"pending":  ws.Pending(),
		"busy":     ws.Session.Busy(),
	})
}

type sendRequest struct {
	Text string `json:"text"`
}

func (h *Handler) sendMessage(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Text) == "" && len(ws.Pending()) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message text or attachment required"})
		return
	}
	if !ws.Session.TryBegin() {
		c.JSON(http.StatusConflict, gin.H{"error": session.ErrBusy.Error()})
		return
	}
	defer ws.Session.End()

	// prior turns are captured before the user message is appended
	turns := ws.Session.Turns()
	atts := ws.TakePending()
	userMsg := ws.Session.Append(models.Message{
		Role:        models.RoleUser,
		Content:     req.Text,
		Attachments: atts,
	})

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		ws.Session.Append(models.Message{Role: models.RoleModel, Content: ai.ConnectionErrorReply})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	sendEvent := func(event string, payload interface{}) error {
		var data []byte
		switch v := payload.(type) {
		case string:
			data = []byte(v)
		default:
			var err error
			data, err = json.Marshal(v)
			if err != nil {
				return err
			}
		}
		if event != "" {
			if _, err := fmt.Fprintf(c.Writer, "event: %s\n", event); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}
	_ = sendEvent("ack", gin.H{"message": userMsg})

	streamCtx, cancel := context.WithTimeout(c.Request.Context(), replyTimeout)
	defer cancel()
	reply, err := h.assistant.SendMessage(streamCtx, ai.ReplyRequest{
		Turns:       turns,
		Text:        req.Text,
		Attachments: atts,
		Language:    ws.Preferences().Language,
		OnChunk: func(accumulated string) error {
			return sendEvent("stream", gin.H{"content": accumulated})
		},
	})
	// the model message is appended on every path so turns stay balanced
	modelMsg := ws.Session.Append(models.Message{Role: models.RoleModel, Content: reply})
	if err != nil {
		_ = sendEvent("error", gin.H{"error": err.Error(), "message": modelMsg})
		return
	}
	_ = sendEvent("done", gin.H{"user_message": userMsg, "message": modelMsg})
}

func (h *Handler) newChat(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	if err := ws.NewChat(c.Request.Context()); err != nil {
		log.Printf("archive on new chat for %s: %v", ws.Email, err)
	}
	c.JSON(http.StatusOK, gin.H{"messages": ws.Session.Messages()})
}

func (h *Handler) loadSession(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	target, found, err := ws.LoadSession(c.Request.Context(), c.Param("session_id"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if err != nil {
		log.Printf("archive on load for %s: %v", ws.Email, err)
	}
	c.JSON(http.StatusOK, gin.H{
		"session":  gin.H{"id": target.ID, "title": target.Title, "timestamp": target.Timestamp},
		"messages": ws.Session.Messages(),
	})
}

func (h *Handler) uploadAttachments(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 4*capture.MaxBytes)
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}
	files := form.File["file"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	srcs := make([]capture.Source, 0, len(files))
	for _, fh := range files {
		srcs = append(srcs, capture.FileSource{Header: fh})
	}
	atts, err := capture.CaptureAll(c.Request.Context(), srcs)
	if err != nil {
		c.JSON(captureStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"pending": ws.AddPending(atts...)})
}

// requestMicrophone is a clip the browser recorder posted as the raw body.
type requestMicrophone struct {
	body io.ReadCloser
}

func (m requestMicrophone) Acquire(context.Context) (io.ReadCloser, error) {
	return m.body, nil
}

func (requestMicrophone) Kind() string { return "microphone" }

func (h *Handler) uploadRecording(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, capture.MaxBytes+1)
	src := capture.Microphone(requestMicrophone{body: c.Request.Body})
	if ct := c.ContentType(); strings.HasPrefix(ct, "audio/") || strings.HasPrefix(ct, "video/") {
		src.MIME = ct
	}
	att, err := capture.Capture(c.Request.Context(), src)
	if err != nil {
		c.JSON(captureStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"pending": ws.AddPending(att)})
}

func captureStatus(err error) int {
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, capture.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, capture.ErrTooLarge), errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func (h *Handler) clearAttachments(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	ws.ClearPending()
	c.Status(http.StatusNoContent)
}

func (h *Handler) shareChat(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	last := ""
	msgs := ws.Session.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == models.RoleModel {
			last = msgs[i].Content
			break
		}
	}
	if last == "" {
		last = shareFallback
	}
	if utf8.RuneCountInString(last) > sharePreview {
		last = string([]rune(last)[:sharePreview])
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	c.JSON(http.StatusOK, gin.H{
		"title": shareTitle,
		"text":  `Look at this agricultural advice from AgriMate: "` + last + `..."`,
		"url":   scheme + "://" + c.Request.Host + "/",
	})
}

func (h *Handler) toggleBookmark(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	on, found := ws.Session.ToggleBookmark(c.Param("msg_id"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": worker.ErrUnknownMessage.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"is_bookmarked": on})
}

func (h *Handler) setFeedback(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	var req struct {
		Feedback models.Feedback `json:"feedback"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || !req.Feedback.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "feedback must be up or down"})
		return
	}
	if !ws.Session.SetFeedback(c.Param("msg_id"), req.Feedback) {
		c.JSON(http.StatusNotFound, gin.H{"error": worker.ErrUnknownMessage.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"feedback": req.Feedback})
}

func (h *Handler) generateSpeech(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	msgID := c.Param("msg_id")
	msg, found := ws.Session.Get(msgID)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": worker.ErrUnknownMessage.Error()})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), speechTimeout)
	defer cancel()
	pcm, err := h.assistant.GenerateSpeech(ctx, msg.Content)
	if err != nil {
		log.Printf("speech generation failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "speech generation failed"})
		return
	}
	if pcm == "" {
		c.JSON(http.StatusBadGateway, gin.H{"error": "no audio returned"})
		return
	}
	audioURL, err := ai.SpeechDataURL(pcm)
	if err != nil {
		log.Printf("speech decode failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "speech generation failed"})
		return
	}
	ws.Session.Update(msgID, models.MessagePatch{AudioURL: &audioURL})
	c.JSON(http.StatusOK, gin.H{"audio_url": audioURL})
}

func (h *Handler) generateImage(c *gin.Context) {
	h.submitMedia(c, h.workers.SubmitImage)
}

func (h *Handler) generateVideo(c *gin.Context) {
	h.submitMedia(c, h.workers.SubmitVideo)
}

func (h *Handler) submitMedia(c *gin.Context, submit func(*worker.Workspace, string) error) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	msgID := c.Param("msg_id")
	if err := submit(ws, msgID); err != nil {
		switch {
		case errors.Is(err, worker.ErrUnknownMessage):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, worker.ErrDispatcherBusy):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "server is busy, please retry"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	msg, _ := ws.Session.Get(msgID)
	c.JSON(http.StatusAccepted, gin.H{"message": msg})
}
