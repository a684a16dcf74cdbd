package types

import (
	"fmt"
	"strings"
)

// FocusArea is the learning focus the caregiver picked.
type FocusArea string

const (
	FocusLiteracy              FocusArea = "literacy"
	FocusSTEM                  FocusArea = "stem"
	FocusCreativity            FocusArea = "creativity"
	FocusEmotionalIntelligence FocusArea = "emotional_intelligence"
)

// Label is the human-readable name used in prompts and renderers.
func (f FocusArea) Label() string {
	switch f {
	case FocusLiteracy:
		return "Literacy"
	case FocusSTEM:
		return "STEM"
	case FocusCreativity:
		return "Creativity"
	case FocusEmotionalIntelligence:
		return "Emotional Intelligence"
	default:
		return string(f)
	}
}

// Valid reports whether f is one of the known focus areas.
func (f FocusArea) Valid() bool {
	switch f {
	case FocusLiteracy, FocusSTEM, FocusCreativity, FocusEmotionalIntelligence:
		return true
	default:
		return false
	}
}

// ParseFocusArea accepts the canonical value, the label, or common spellings of either.
func ParseFocusArea(s string) (FocusArea, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer(" ", "", "_", "", "-", "", "&", "").Replace(key)
	switch key {
	case "literacy":
		return FocusLiteracy, nil
	case "stem":
		return FocusSTEM, nil
	case "creativity":
		return FocusCreativity, nil
	case "emotionalintelligence", "emotionintelligence", "ei":
		return FocusEmotionalIntelligence, nil
	default:
		return "", fmt.Errorf("unknown focus area %q (want literacy, stem, creativity, emotional_intelligence)", s)
	}
}

// Mode selects between a guided conversation and one-shot activity suggestions.
type Mode string

const (
	ModeConversation Mode = "conversation"
	ModeSuggestion   Mode = "suggestion"
)

// ParseMode parses a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeConversation:
		return ModeConversation, nil
	case ModeSuggestion:
		return ModeSuggestion, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want conversation or suggestion)", s)
	}
}

// Channel is the input/output modality of a conversation.
type Channel string

const (
	ChannelText  Channel = "text"
	ChannelVoice Channel = "voice"
)

// ParseChannel parses a channel name.
func ParseChannel(s string) (Channel, error) {
	switch Channel(strings.ToLower(strings.TrimSpace(s))) {
	case ChannelText:
		return ChannelText, nil
	case ChannelVoice:
		return ChannelVoice, nil
	default:
		return "", fmt.Errorf("unknown channel %q (want text or voice)", s)
	}
}

// SessionConfig holds the caregiver's settings. A zero ChildAge or empty FocusArea
// means "not set yet".
type SessionConfig struct {
	ChildAge  int       `json:"child_age,omitempty"`
	FocusArea FocusArea `json:"focus_area,omitempty"`
	Mode      Mode      `json:"mode"`
	Channel   Channel   `json:"channel"`
}

// DefaultSessionConfig is a text conversation with nothing else chosen.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{Mode: ModeConversation, Channel: ChannelText}
}
