package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"agrimate/internal/models"
)

func testSession() models.ChatSession {
	ts := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	return models.ChatSession{
		ID:        "1772357400000",
		Title:     "When to sow **paddy**?",
		Timestamp: ts,
		Messages: []models.Message{
			{ID: "1", Role: models.RoleModel, Content: "Hello!", Timestamp: ts},
			{ID: "2", Role: models.RoleUser, Content: "When to sow **paddy**?", Timestamp: ts, Attachments: []models.Attachment{
				{Type: models.AttachmentImage, MimeType: "image/png", URL: "data:image/png;base64,AA==", Base64: "AA=="},
			}},
			{ID: "3", Role: models.RoleModel, Content: "Sow after the first rains.", Timestamp: ts, IsBookmarked: true},
		},
	}
}

func TestNewExporter(t *testing.T) {
	tests := []struct {
		format  string
		wantExt string
		wantErr bool
	}{
		{format: "json", wantExt: "json"},
		{format: "yaml", wantExt: "yaml"},
		{format: "YML", wantExt: "yaml"},
		{format: "markdown", wantExt: "md"},
		{format: "md", wantExt: "md"},
		{format: "csv", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			exp, err := NewExporter(tt.format)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewExporter(%q) err = %v, wantErr %v", tt.format, err, tt.wantErr)
			}
			if err == nil && exp.Extension() != tt.wantExt {
				t.Fatalf("extension = %q, want %q", exp.Extension(), tt.wantExt)
			}
		})
	}
}

func TestJSONExporter(t *testing.T) {
	var buf bytes.Buffer
	if err := (JSONExporter{}).Export(testSession(), &buf); err != nil {
		t.Fatalf("Export: %v", err)
	}
	var got models.ChatSession
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not json: %v", err)
	}
	if got.ID != "1772357400000" || len(got.Messages) != 3 || !got.Messages[2].IsBookmarked {
		t.Fatalf("unexpected decoded session %+v", got)
	}
}

func TestYAMLExporterOmitsPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := (YAMLExporter{}).Export(testSession(), &buf); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if strings.Contains(buf.String(), "base64:") {
		t.Fatalf("inline payload should not be exported:\n%s", buf.String())
	}
	var doc map[string]interface{}
	if err := yaml.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("output is not yaml: %v", err)
	}
	if doc["title"] != "When to sow **paddy**?" {
		t.Fatalf("unexpected title %v", doc["title"])
	}
}

func TestMarkdownExporter(t *testing.T) {
	var buf bytes.Buffer
	if err := (MarkdownExporter{}).Export(testSession(), &buf); err != nil {
		t.Fatalf("Export: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"# When to sow **paddy**?",
		"**Messages:** 3",
		"**You** (09:30)",
		"When to sow \\*\\*paddy\\*\\*?",
		"_Attached image (image/png)_",
		"**AgriMate** (09:30) ★",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown missing %q\n%s", want, out)
		}
	}
}

func TestEscapeMarkdownKeepsCodeBlocks(t *testing.T) {
	in := "**bold**\n```\n**raw**\n```"
	want := "\\*\\*bold\\*\\*\n```\n**raw**\n```"
	if got := escapeMarkdown(in); got != want {
		t.Fatalf("escapeMarkdown = %q, want %q", got, want)
	}
}
