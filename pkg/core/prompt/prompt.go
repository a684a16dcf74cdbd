// Package prompt builds the text sent to the vision model alongside the selected
// image. Every builder is a pure function of its arguments.
package prompt

import (
	"fmt"
	"strings"

	"github.com/vango-go/vlearn/pkg/core/types"
)

const (
	// DefaultSuggestionCount is how many activities a suggestion prompt asks for.
	DefaultSuggestionCount = 4
	// MaxSuggestionCount matches the number of cards the parser keeps.
	MaxSuggestionCount = 6
)

// Build picks the prompt for the next turn. log is the conversation as it stood
// before userText was appended.
//
// Suggestion mode always uses the suggestion template. In conversation mode an
// empty log gets the opening prompt and anything else gets the continuation.
func Build(cfg types.SessionConfig, log []types.Turn, userText string, suggestions int) string {
	if cfg.Mode == types.ModeSuggestion {
		return Suggestions(cfg.ChildAge, cfg.FocusArea, suggestions)
	}
	if len(log) == 0 {
		return Opening(cfg.ChildAge, cfg.FocusArea)
	}
	return Continuation(cfg, log, userText)
}

// Opening starts a conversation. It depends only on age and focus.
func Opening(age int, focus types.FocusArea) string {
	return fmt.Sprintf("Begin a conversation about activities that can be found within this image, "+
		"taking into consideration the child's age: %d years old, and the focus: %s.\n\n"+
		"Please start with a warm greeting and ask an engaging question about what they see in the image. "+
		"Keep the conversation interactive and educational.", age, focus.Label())
}

// Continuation serializes the whole log as alternating Child/Assistant lines.
// The history is never truncated.
func Continuation(cfg types.SessionConfig, log []types.Turn, userText string) string {
	var b strings.Builder
	b.WriteString("Continue this conversation about the image.\n\n")
	b.WriteString("Previous conversation:\n")
	b.WriteString(History(log))
	b.WriteString("\n\n")
	if text := strings.TrimSpace(userText); text != "" {
		fmt.Fprintf(&b, "Child's latest response: %q\n\n", text)
	}
	fmt.Fprintf(&b, "Child's age: %d years old\n", cfg.ChildAge)
	fmt.Fprintf(&b, "Focus: %s\n\n", cfg.FocusArea.Label())
	b.WriteString("Please respond naturally and keep the conversation engaging and educational.")
	return b.String()
}

// History renders turns as "Child: ..." and "Assistant: ..." lines separated by
// blank lines.
func History(log []types.Turn) string {
	lines := make([]string, 0, len(log))
	for _, turn := range log {
		speaker := "Assistant"
		if turn.Role == types.RoleUser {
			speaker = "Child"
		}
		lines = append(lines, speaker+": "+turn.Text)
	}
	return strings.Join(lines, "\n\n")
}

// Suggestions asks for n activity cards in the "Activity N: title" layout the
// parser reads first. n outside 1..MaxSuggestionCount falls back to the default.
func Suggestions(age int, focus types.FocusArea, n int) string {
	if n < 1 || n > MaxSuggestionCount {
		n = DefaultSuggestionCount
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Create %d engaging activity suggestions based on this image for a %d-year-old child "+
		"with a focus on %s.\n\n", n, age, focus.Label())
	b.WriteString("Please format EXACTLY as follows, one activity per block:\n\n")
	examples := suggestionExamples
	for i := 0; i < n; i++ {
		ex := examples[i%len(examples)]
		fmt.Fprintf(&b, "Activity %d: %s\n%s\n\n", i+1, ex.Title, ex.Description)
	}
	b.WriteString("Make sure each activity is age-appropriate, uses things visible in the picture, " +
		"and aligns with the focus area. Use plain text without emoji.")
	return b.String()
}

var suggestionExamples = []types.ActivityCard{
	{Title: "I Spy Game", Description: "Play 'I spy with my little eye' using things in the picture!"},
	{Title: "Color Hunt", Description: "Find and name all the different colors you can see!"},
	{Title: "Count Together", Description: "Count how many things you can find in the picture!"},
	{Title: "What's Missing?", Description: "Imagine what might be just outside the picture!"},
	{Title: "Tell a Story", Description: "Make up a short story about what is happening in the picture!"},
	{Title: "Move Like It", Description: "Pick something in the picture and move the way it would!"},
}
