package types

import "strings"

// Audio is a captured or synthesized clip.
type Audio struct {
	Data       []byte
	MediaType  string // e.g. "audio/webm", "audio/l16", "audio/mpeg"
	SampleRate int    // Hz; zero when implied by the container
}

// Audio media types used across the voice pipeline.
const (
	AudioWebM = "audio/webm"
	AudioOgg  = "audio/ogg"
	AudioWAV  = "audio/wav"
	AudioL16  = "audio/l16"
	AudioMPEG = "audio/mpeg"
	AudioFLAC = "audio/flac"
)

// BaseMediaType strips parameters such as ";codecs=opus".
func BaseMediaType(mediaType string) string {
	if i := strings.Index(mediaType, ";"); i >= 0 {
		mediaType = mediaType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}
