// Package tts provides text-to-speech functionality.
package tts

import "context"

// Provider is the interface for text-to-speech services.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Synthesize converts text to audio.
	Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (*Synthesis, error)
}

// SynthesizeOptions configures synthesis.
type SynthesizeOptions struct {
	Voice      string  // Voice name, e.g. "en-US-Wavenet-F"
	Gender     string  // SSML gender hint: FEMALE, MALE, NEUTRAL
	Language   string  // Language code
	Speed      float64 // Speaking rate multiplier (0.25-4.0, default 1.0)
	Format     string  // Output format: "mp3", "wav", "ogg" or "pcm"
	SampleRate int     // Sample rate in Hz (0: provider default)
}

// Synthesis is the result of synthesis.
type Synthesis struct {
	Audio     []byte // Audio data
	Format    string // Audio format
	MediaType string // MIME type of Audio
}
