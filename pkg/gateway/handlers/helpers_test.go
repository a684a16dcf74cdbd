package handlers

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/vango-go/vlearn/pkg/core/session"
	"github.com/vango-go/vlearn/pkg/core/types"
	"github.com/vango-go/vlearn/pkg/mediastore"
)

type fakeGenerator struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
}

func (g *fakeGenerator) Generate(context.Context, string, types.MediaAsset) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.reply, g.err
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type fakeTranscriber struct{ text string }

func (f fakeTranscriber) Transcribe(_ context.Context, audio types.Audio) (string, error) {
	if len(audio.Data) == 0 {
		return "", nil
	}
	return f.text, nil
}

type fakeSynth struct{}

func (fakeSynth) Synthesize(_ context.Context, text string) (types.Audio, error) {
	return types.Audio{Data: []byte("mp3:" + text), MediaType: types.AudioMPEG}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newController(gen session.Generator) *session.Controller {
	return session.New(session.Options{Generator: gen, Logger: quietLogger()})
}

func newMediaStore(t *testing.T) *mediastore.Store {
	t.Helper()
	bucket, err := mediastore.NewDirBucket(t.TempDir())
	if err != nil {
		t.Fatalf("NewDirBucket() error = %v", err)
	}
	return mediastore.New(bucket, mediastore.WithLogger(quietLogger()))
}
