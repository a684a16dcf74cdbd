package types

import (
	"fmt"
	"os"
	"strings"
)

// ContentHandle yields the raw bytes behind a MediaAsset. The handle is owned by
// whoever attached it (the UI layer, the CLI, the gateway); the core only passes it
// through to the model call and never persists it.
type ContentHandle interface {
	ReadContent() ([]byte, error)
}

// BytesContent is an in-memory content handle.
type BytesContent []byte

// ReadContent implements ContentHandle.
func (b BytesContent) ReadContent() ([]byte, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("content is empty")
	}
	return b, nil
}

// FileContent is a content handle backed by a path on disk, read on demand.
type FileContent string

// ReadContent implements ContentHandle.
func (f FileContent) ReadContent() ([]byte, error) {
	data, err := os.ReadFile(string(f))
	if err != nil {
		return nil, fmt.Errorf("read media file: %w", err)
	}
	return data, nil
}

// MediaAsset is an image the caregiver picked. Only descriptive fields are
// serialized; Content is dropped on persistence so restored assets need it re-attached.
type MediaAsset struct {
	ID          string        `json:"id"`
	DisplayName string        `json:"name"`
	MimeType    string        `json:"type"`
	ByteSize    int64         `json:"size"`
	URL         string        `json:"url,omitempty"`
	Content     ContentHandle `json:"-"`
}

// NeedsContent reports whether the asset was restored from metadata only.
func (m MediaAsset) NeedsContent() bool {
	return m.Content == nil
}

// Metadata returns a copy of the asset without its content handle.
func (m MediaAsset) Metadata() MediaAsset {
	m.Content = nil
	return m
}

// IsImageType reports whether mimeType names an image.
func IsImageType(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mimeType)), "image/")
}
