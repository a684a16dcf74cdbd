package prompt

import "github.com/vango-go/vlearn/pkg/core/types"

var textStarters = []string{
	"What do you see in this picture?",
	"Can you tell me about the colors in this image?",
	"What's your favorite thing in this picture?",
	"What do you think is happening here?",
	"Can you count the items you see?",
}

var voiceStarters = []string{
	"Hi there! Let's talk about this picture together!",
	"What catches your eye first in this image?",
	"I see something interesting here, what do you notice?",
	"Let's explore this picture together. What do you see?",
	"This looks like a fun picture to discuss!",
}

// Starters returns the conversation starters offered for a channel. Text starters
// prefill the input box; voice starters are sent as the turn text directly.
func Starters(channel types.Channel) []string {
	src := textStarters
	if channel == types.ChannelVoice {
		src = voiceStarters
	}
	out := make([]string, len(src))
	copy(out, src)
	return out
}
