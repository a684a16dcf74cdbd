package session

import (
	"context"

	"github.com/vango-go/vlearn/pkg/core/types"
)

// Generator is the vision-language model. One call carries one prompt and one image.
type Generator interface {
	Generate(ctx context.Context, prompt string, media types.MediaAsset) (string, error)
}

// Capture is the part of the voice capture controller the session drives.
type Capture interface {
	Consume() (string, bool)
	Restage(text string) bool
	ClearStaged()
	Cancel()
}

// Speaker plays assistant replies aloud.
type Speaker interface {
	Speak(ctx context.Context, text string) error
	Stop()
}

// Persister stores the conversation and the media metadata between runs.
// Content handles are never passed to it.
type Persister interface {
	SaveConversation(ctx context.Context, log []types.Turn) error
	LoadConversation(ctx context.Context) ([]types.Turn, error)
	DeleteConversation(ctx context.Context) error
	SaveMedia(ctx context.Context, assets []types.MediaAsset) error
	LoadMedia(ctx context.Context) ([]types.MediaAsset, error)
	DeleteMedia(ctx context.Context) error
}

type noopCapture struct{}

func (noopCapture) Consume() (string, bool) { return "", false }
func (noopCapture) Restage(string) bool     { return false }
func (noopCapture) ClearStaged()            {}
func (noopCapture) Cancel()                 {}

type noopSpeaker struct{}

func (noopSpeaker) Speak(context.Context, string) error { return nil }
func (noopSpeaker) Stop()                               {}
