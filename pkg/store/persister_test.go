package store

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/vango-go/vlearn/pkg/core/types"
)

func TestPersister_EmptyLoads(t *testing.T) {
	p := NewPersister(NewMemory())
	ctx := context.Background()

	log, err := p.LoadConversation(ctx)
	if err != nil || len(log) != 0 {
		t.Fatalf("LoadConversation() = %v, %v; want empty", log, err)
	}
	media, err := p.LoadMedia(ctx)
	if err != nil || len(media) != 0 {
		t.Fatalf("LoadMedia() = %v, %v; want empty", media, err)
	}
}

func TestPersister_Conversation(t *testing.T) {
	kv := NewMemory()
	p := NewPersister(kv)
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	in := []types.Turn{
		{ID: 1, Role: types.RoleAssistant, Text: "What do you see?", CreatedAt: at},
		{ID: 2, Role: types.RoleUser, Text: "A dog", CreatedAt: at.Add(time.Second)},
	}
	if err := p.SaveConversation(ctx, in); err != nil {
		t.Fatalf("SaveConversation() error = %v", err)
	}
	raw, _ := kv.Get(ctx, ConversationKey)
	if !strings.Contains(string(raw), `"turn_id":2`) {
		t.Fatalf("stored document = %s, want turn_id fields", raw)
	}

	out, err := p.LoadConversation(ctx)
	if err != nil {
		t.Fatalf("LoadConversation() error = %v", err)
	}
	if len(out) != 2 || out[1].Text != "A dog" || out[1].Role != types.RoleUser || !out[0].CreatedAt.Equal(at) {
		t.Fatalf("LoadConversation() = %+v", out)
	}

	if err := p.DeleteConversation(ctx); err != nil {
		t.Fatalf("DeleteConversation() error = %v", err)
	}
	out, _ = p.LoadConversation(ctx)
	if len(out) != 0 {
		t.Fatalf("LoadConversation() after delete = %v, want empty", out)
	}
}

func TestPersister_MediaDropsContent(t *testing.T) {
	kv := NewMemory()
	p := NewPersister(kv)
	ctx := context.Background()

	in := []types.MediaAsset{{
		ID:          "dog.png_1700000000000",
		DisplayName: "dog.png",
		MimeType:    "image/png",
		ByteSize:    3,
		Content:     types.BytesContent("png"),
	}}
	if err := p.SaveMedia(ctx, in); err != nil {
		t.Fatalf("SaveMedia() error = %v", err)
	}
	if in[0].Content == nil {
		t.Fatal("SaveMedia() mutated the caller's asset")
	}

	raw, _ := kv.Get(ctx, MediaKey)
	var doc []map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("stored media is not JSON: %v", err)
	}
	if doc[0]["name"] != "dog.png" || doc[0]["type"] != "image/png" {
		t.Fatalf("stored media = %v", doc[0])
	}

	out, err := p.LoadMedia(ctx)
	if err != nil {
		t.Fatalf("LoadMedia() error = %v", err)
	}
	if len(out) != 1 || out[0].ID != in[0].ID || !out[0].NeedsContent() {
		t.Fatalf("LoadMedia() = %+v, want one metadata-only asset", out)
	}

	if err := p.DeleteMedia(ctx); err != nil {
		t.Fatalf("DeleteMedia() error = %v", err)
	}
	out, _ = p.LoadMedia(ctx)
	if len(out) != 0 {
		t.Fatalf("LoadMedia() after delete = %v, want empty", out)
	}
}

func TestPersister_CorruptDocument(t *testing.T) {
	kv := NewMemory()
	_ = kv.Set(context.Background(), ConversationKey, []byte("{not json"))
	if _, err := NewPersister(kv).LoadConversation(context.Background()); err == nil {
		t.Fatal("LoadConversation() error = nil, want decode error")
	}
}
