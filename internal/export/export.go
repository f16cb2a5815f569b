// Package export writes archived chat sessions to files.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"agrimate/internal/models"
)

// Exporter writes one archived session in a given format.
type Exporter interface {
	Export(session models.ChatSession, w io.Writer) error
	Extension() string
}

// NewExporter returns the exporter for format.
func NewExporter(format string) (Exporter, error) {
	switch strings.ToLower(format) {
	case "json":
		return JSONExporter{}, nil
	case "yaml", "yml":
		return YAMLExporter{}, nil
	case "md", "markdown":
		return MarkdownExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s (supported: json, yaml, markdown)", format)
	}
}

// JSONExporter writes pretty-printed JSON.
type JSONExporter struct{}

func (JSONExporter) Export(session models.ChatSession, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(session)
}

func (JSONExporter) Extension() string { return "json" }

// YAMLExporter writes YAML. Inline attachment payloads are left out.
type YAMLExporter struct{}

func (YAMLExporter) Export(session models.ChatSession, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(session); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func (YAMLExporter) Extension() string { return "yaml" }

// MarkdownExporter writes a readable transcript.
type MarkdownExporter struct{}

func (MarkdownExporter) Export(session models.ChatSession, w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", session.Title)
	fmt.Fprintf(&b, "**Session:** %s  \n", session.ID)
	fmt.Fprintf(&b, "**Archived:** %s  \n", session.Timestamp.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "**Messages:** %d\n\n", len(session.Messages))
	b.WriteString("---\n\n")

	for i, msg := range session.Messages {
		fmt.Fprintf(&b, "**%s** (%s)", speaker(msg.Role), msg.Timestamp.Format("15:04"))
		if msg.IsBookmarked {
			b.WriteString(" ★")
		}
		b.WriteString("\n\n")
		if msg.Content != "" {
			b.WriteString(escapeMarkdown(msg.Content))
			b.WriteString("\n\n")
		}
		for _, att := range msg.Attachments {
			fmt.Fprintf(&b, "_Attached %s (%s)_\n\n", att.Type, att.MimeType)
		}
		if i < len(session.Messages)-1 {
			b.WriteString("---\n\n")
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func (MarkdownExporter) Extension() string { return "md" }

func speaker(role models.Role) string {
	if role == models.RoleUser {
		return "You"
	}
	return "AgriMate"
}

// escapeMarkdown neutralizes emphasis markers outside fenced code.
func escapeMarkdown(text string) string {
	lines := strings.Split(text, "\n")
	inCode := false
	for i, line := range lines {
		if strings.HasPrefix(line, "```") {
			inCode = !inCode
			continue
		}
		if inCode {
			continue
		}
		line = strings.ReplaceAll(line, "**", "\\*\\*")
		lines[i] = strings.ReplaceAll(line, "__", "\\_\\_")
	}
	return strings.Join(lines, "\n")
}
