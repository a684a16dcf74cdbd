package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vango-go/vlearn/pkg/core/types"
)

const (
	ConversationKey = "ai-media-conversations"
	MediaKey        = "ai-media-files"
)

// Persister stores a session's conversation log and media metadata as JSON
// documents in a KV.
type Persister struct {
	kv KV
}

// NewPersister wraps kv.
func NewPersister(kv KV) *Persister {
	return &Persister{kv: kv}
}

func (p *Persister) SaveConversation(ctx context.Context, log []types.Turn) error {
	return p.put(ctx, ConversationKey, log)
}

// LoadConversation returns an empty log when nothing was saved.
func (p *Persister) LoadConversation(ctx context.Context) ([]types.Turn, error) {
	var log []types.Turn
	if err := p.get(ctx, ConversationKey, &log); err != nil {
		return nil, err
	}
	return log, nil
}

func (p *Persister) DeleteConversation(ctx context.Context) error {
	return p.kv.Delete(ctx, ConversationKey)
}

// SaveMedia stores descriptive fields only; content handles are dropped.
func (p *Persister) SaveMedia(ctx context.Context, assets []types.MediaAsset) error {
	meta := make([]types.MediaAsset, len(assets))
	for i, a := range assets {
		meta[i] = a.Metadata()
	}
	return p.put(ctx, MediaKey, meta)
}

// LoadMedia returns metadata-only assets.
func (p *Persister) LoadMedia(ctx context.Context) ([]types.MediaAsset, error) {
	var assets []types.MediaAsset
	if err := p.get(ctx, MediaKey, &assets); err != nil {
		return nil, err
	}
	return assets, nil
}

func (p *Persister) DeleteMedia(ctx context.Context) error {
	return p.kv.Delete(ctx, MediaKey)
}

func (p *Persister) put(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return p.kv.Set(ctx, key, data)
}

func (p *Persister) get(ctx context.Context, key string, v any) error {
	data, err := p.kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}
