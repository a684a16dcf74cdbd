// Package mediastore keeps uploaded media as an object plus a JSON sidecar.
//
// An upload of "dog.png" at unix millisecond T stores the bytes under
// "T_dog.png" and the sidecar under "metadata_T_dog.png.json". The public id
// is "dog.png_T".
package mediastore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/vango-go/vlearn/pkg/core"
	"github.com/vango-go/vlearn/pkg/core/types"
)

const sidecarPrefix = "metadata_"

var idTimestamp = regexp.MustCompile(`_(\d+)$`)

// Metadata is the sidecar document.
type Metadata struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	URL          string `json:"url"`
	Type         string `json:"type"`
	Size         int64  `json:"size"`
	UploadedAt   string `json:"uploadedAt"`
	BlobFilename string `json:"blobFilename"`
}

// Asset returns a metadata-only media asset.
func (m Metadata) Asset() types.MediaAsset {
	return types.MediaAsset{
		ID:          m.ID,
		DisplayName: m.Name,
		MimeType:    m.Type,
		ByteSize:    m.Size,
		URL:         m.URL,
	}
}

// Store puts, lists, opens and deletes media in a Bucket.
type Store struct {
	bucket Bucket
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the upload timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the store's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Store over bucket.
func New(bucket Bucket, opts ...Option) *Store {
	s := &Store{bucket: bucket, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put uploads content and writes its sidecar. size defaults to len(data).
func (s *Store) Put(ctx context.Context, name, mimeType string, size int64, data []byte) (Metadata, error) {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "" || name == "." || name == "/" {
		return Metadata{}, core.NewInvalidRequestErrorWithParam("filename is required", "filename")
	}
	if len(data) == 0 {
		return Metadata{}, core.NewInvalidRequestErrorWithParam("file data is required", "fileData")
	}
	if strings.TrimSpace(mimeType) == "" {
		return Metadata{}, core.NewInvalidRequestErrorWithParam("file type is required", "fileType")
	}
	if size <= 0 {
		size = int64(len(data))
	}

	at := s.now().UTC()
	ts := strconv.FormatInt(at.UnixMilli(), 10)
	blobName := ts + "_" + name

	u, err := s.bucket.Put(ctx, blobName, data, mimeType)
	if err != nil {
		return Metadata{}, fmt.Errorf("upload media: %w", err)
	}
	meta := Metadata{
		ID:           name + "_" + ts,
		Name:         name,
		URL:          u,
		Type:         mimeType,
		Size:         size,
		UploadedAt:   at.Format("2006-01-02T15:04:05.000Z07:00"),
		BlobFilename: blobName,
	}
	doc, err := json.Marshal(meta)
	if err != nil {
		return Metadata{}, fmt.Errorf("encode metadata: %w", err)
	}
	if _, err := s.bucket.Put(ctx, sidecarKey(ts, name), doc, "application/json"); err != nil {
		return Metadata{}, fmt.Errorf("upload metadata: %w", err)
	}
	s.logger.Info("media uploaded", "id", meta.ID, "size", meta.Size)
	return meta, nil
}

// Delete removes the content and sidecar for id.
func (s *Store) Delete(ctx context.Context, id string) error {
	meta, key, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if meta.BlobFilename != "" {
		if err := s.bucket.Delete(ctx, meta.BlobFilename); err != nil {
			return fmt.Errorf("delete media: %w", err)
		}
	}
	if err := s.bucket.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete metadata: %w", err)
	}
	s.logger.Info("media deleted", "id", id)
	return nil
}

// List returns every stored sidecar, oldest first. Unreadable sidecars are skipped.
func (s *Store) List(ctx context.Context) ([]Metadata, error) {
	keys, err := s.bucket.List(ctx, sidecarPrefix)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	out := make([]Metadata, 0, len(keys))
	for _, key := range keys {
		if !strings.HasSuffix(key, ".json") {
			continue
		}
		meta, err := s.readSidecar(ctx, key)
		if err != nil {
			s.logger.Warn("skipping media metadata", "key", key, "error", err)
			continue
		}
		out = append(out, meta)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UploadedAt < out[j].UploadedAt
	})
	return out, nil
}

// Open returns the asset for id with its content attached.
func (s *Store) Open(ctx context.Context, id string) (types.MediaAsset, error) {
	meta, _, err := s.find(ctx, id)
	if err != nil {
		return types.MediaAsset{}, err
	}
	data, err := s.bucket.Get(ctx, meta.BlobFilename)
	if errors.Is(err, ErrObjectNotFound) {
		return types.MediaAsset{}, core.NewNotFoundError("media content not found: " + id)
	}
	if err != nil {
		return types.MediaAsset{}, fmt.Errorf("read media: %w", err)
	}
	asset := meta.Asset()
	asset.Content = types.BytesContent(data)
	return asset, nil
}

func (s *Store) find(ctx context.Context, id string) (Metadata, string, error) {
	m := idTimestamp.FindStringSubmatch(id)
	if m == nil {
		return Metadata{}, "", core.NewInvalidRequestErrorWithParam("invalid file id format", "id")
	}
	ts := m[1]
	name := strings.TrimSuffix(id, "_"+ts)

	exact := sidecarKey(ts, name)
	if meta, err := s.readSidecar(ctx, exact); err == nil {
		return meta, exact, nil
	}

	keys, err := s.bucket.List(ctx, sidecarPrefix+ts+"_")
	if err != nil {
		return Metadata{}, "", fmt.Errorf("list media: %w", err)
	}
	for _, key := range keys {
		if !strings.HasSuffix(key, ".json") {
			continue
		}
		meta, err := s.readSidecar(ctx, key)
		if err != nil {
			return Metadata{}, "", err
		}
		return meta, key, nil
	}
	return Metadata{}, "", core.NewNotFoundError("file not found: " + id)
}

func (s *Store) readSidecar(ctx context.Context, key string) (Metadata, error) {
	data, err := s.bucket.Get(ctx, key)
	if err != nil {
		return Metadata{}, err
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return meta, nil
}

func sidecarKey(ts, name string) string {
	return sidecarPrefix + ts + "_" + name + ".json"
}
