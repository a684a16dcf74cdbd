// Package voice holds the speech side of a session: the STT/TTS pipeline, the
// capture controller (record, transcribe, stage) and the playback controller
// (at most one utterance at a time).
package voice

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/vango-go/vlearn/pkg/core/types"
	"github.com/vango-go/vlearn/pkg/core/voice/stt"
	"github.com/vango-go/vlearn/pkg/core/voice/tts"
)

// Transcriber turns a finished recording into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio types.Audio) (string, error)
}

// Synthesizer turns text into playable audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (types.Audio, error)
}

// Pipeline handles STT and TTS for a session. It satisfies both Transcriber and
// Synthesizer.
type Pipeline struct {
	sttProvider stt.Provider
	ttsProvider tts.Provider
	sttOpts     stt.TranscribeOptions
	ttsOpts     tts.SynthesizeOptions
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithTranscribeOptions sets defaults applied to every transcription.
func WithTranscribeOptions(opts stt.TranscribeOptions) PipelineOption {
	return func(p *Pipeline) { p.sttOpts = opts }
}

// WithSynthesizeOptions sets defaults applied to every synthesis.
func WithSynthesizeOptions(opts tts.SynthesizeOptions) PipelineOption {
	return func(p *Pipeline) { p.ttsOpts = opts }
}

// NewPipeline creates a voice pipeline backed by Google Cloud Speech and
// Text-to-Speech, both authenticated with the same API key.
func NewPipeline(googleAPIKey string, opts ...PipelineOption) *Pipeline {
	return NewPipelineWithProviders(stt.NewGoogle(googleAPIKey), tts.NewGoogle(googleAPIKey), opts...)
}

// NewPipelineWithProviders creates a voice pipeline with custom providers.
func NewPipelineWithProviders(sttProvider stt.Provider, ttsProvider tts.Provider, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		sttProvider: sttProvider,
		ttsProvider: ttsProvider,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// STTProvider returns the current STT provider.
func (p *Pipeline) STTProvider() stt.Provider {
	return p.sttProvider
}

// TTSProvider returns the current TTS provider.
func (p *Pipeline) TTSProvider() tts.Provider {
	return p.ttsProvider
}

// Transcribe returns the trimmed transcript of audio. Provider errors keep their
// core.Error type (no_api_key, no_speech_detected, network_error).
func (p *Pipeline) Transcribe(ctx context.Context, audio types.Audio) (string, error) {
	opts := p.sttOpts
	opts.Format = getFormatFromMediaType(audio.MediaType)
	if audio.SampleRate > 0 {
		opts.SampleRate = audio.SampleRate
	}

	trans, err := p.sttProvider.Transcribe(ctx, bytes.NewReader(audio.Data), opts)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	return strings.TrimSpace(trans.Text), nil
}

// Synthesize converts text to audio with the pipeline's synthesis defaults.
func (p *Pipeline) Synthesize(ctx context.Context, text string) (types.Audio, error) {
	synth, err := p.ttsProvider.Synthesize(ctx, text, p.ttsOpts)
	if err != nil {
		return types.Audio{}, fmt.Errorf("synthesize: %w", err)
	}
	mediaType := synth.MediaType
	if mediaType == "" {
		mediaType = mediaTypeForAudioFormat(synth.Format)
	}
	return types.Audio{Data: synth.Audio, MediaType: mediaType, SampleRate: p.ttsOpts.SampleRate}, nil
}

func getFormatFromMediaType(mediaType string) string {
	switch types.BaseMediaType(mediaType) {
	case "audio/wav", "audio/wave", "audio/x-wav":
		return "wav"
	case types.AudioMPEG, "audio/mp3":
		return "mp3"
	case types.AudioWebM:
		return "webm"
	case types.AudioOgg:
		return "ogg"
	case types.AudioFLAC:
		return "flac"
	case types.AudioL16, "audio/pcm":
		return "pcm"
	default:
		return "wav"
	}
}

func mediaTypeForAudioFormat(format string) string {
	switch strings.ToLower(format) {
	case "wav", "pcm":
		return types.AudioWAV
	case "ogg":
		return types.AudioOgg
	default:
		return types.AudioMPEG
	}
}
