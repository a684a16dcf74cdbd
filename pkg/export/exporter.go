package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Exporter writes a Document in one format.
type Exporter interface {
	Export(doc Document, w io.Writer) error
	Extension() string
	ContentType() string
}

// NewExporter returns the exporter for format.
func NewExporter(format string) (Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		return JSONExporter{}, nil
	case "yaml", "yml":
		return YAMLExporter{}, nil
	case "md", "markdown":
		return MarkdownExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s (supported: json, yaml, md)", format)
	}
}

// JSONExporter writes pretty-printed JSON.
type JSONExporter struct{}

func (JSONExporter) Export(doc Document, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func (JSONExporter) Extension() string   { return "json" }
func (JSONExporter) ContentType() string { return "application/json" }

// YAMLExporter writes YAML.
type YAMLExporter struct{}

func (YAMLExporter) Export(doc Document, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func (YAMLExporter) Extension() string   { return "yaml" }
func (YAMLExporter) ContentType() string { return "application/yaml" }

// MarkdownExporter writes a readable transcript.
type MarkdownExporter struct{}

func (MarkdownExporter) Export(doc Document, w io.Writer) error {
	var b strings.Builder
	b.WriteString("# Conversation\n\n")
	image := "none"
	if doc.SelectedImage != nil {
		image = *doc.SelectedImage
	}
	fmt.Fprintf(&b, "**Image:** %s  \n", image)
	fmt.Fprintf(&b, "**Child age:** %d  \n", doc.ChildAge)
	fmt.Fprintf(&b, "**Focus:** %s  \n", doc.FocusArea)
	fmt.Fprintf(&b, "**Mode:** %s (%s)  \n", doc.Mode, doc.ConversationType)
	fmt.Fprintf(&b, "**Exported:** %s  \n", doc.Timestamp)
	fmt.Fprintf(&b, "**Messages:** %d\n\n", doc.TotalMessages)
	b.WriteString("---\n\n")

	for i, msg := range doc.Messages {
		who := "Assistant"
		if msg.Sender == SenderUser {
			who = "Child"
		}
		fmt.Fprintf(&b, "**%s** (%s)\n\n%s\n\n", who, msg.Timestamp, escapeMarkdown(msg.Content))
		if i < len(doc.Messages)-1 {
			b.WriteString("---\n\n")
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func (MarkdownExporter) Extension() string   { return "md" }
func (MarkdownExporter) ContentType() string { return "text/markdown; charset=utf-8" }

func escapeMarkdown(text string) string {
	return strings.NewReplacer("**", `\*\*`, "__", `\_\_`).Replace(text)
}
