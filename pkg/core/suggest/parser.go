// Package suggest turns free-form activity suggestions from the model into a
// short, ordered list of activity cards.
//
// Parsing runs in tiers, each a pure function over the cleaned text. A tier is
// only tried when every earlier tier produced no cards:
//
//  1. "Activity N: title" lines
//  2. numbered ("1. title") or dashed ("- title") list lines
//  3. blank-line separated paragraphs
//  4. a single generic card holding the start of the text
package suggest

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/vango-go/vlearn/pkg/core/types"
)

const (
	// MaxCards caps the parser output.
	MaxCards = 6

	// FallbackTitle titles the generic card produced for unstructured text.
	FallbackTitle = "Creative Activity"

	fallbackDescriptionRunes = 200
	ellipsis                 = "..."
)

var (
	activityTitleRe = regexp.MustCompile(`^Activity\s+\d+:\s*(.+)$`)
	numberedTitleRe = regexp.MustCompile(`^\d+\.\s*(.+)$`)
	dashedTitleRe   = regexp.MustCompile(`^-\s*(.+)$`)

	headerRe        = regexp.MustCompile(`^#{1,6}\s*`)
	boldRe          = regexp.MustCompile(`(\*\*|__)(.+?)(\*\*|__)`)
	italicStarRe    = regexp.MustCompile(`\*([^*\s][^*]*?)\*`)
	italicUnderRe   = regexp.MustCompile(`(^|\s)_([^_\s][^_]*?)_(\s|$|[.,:;!?])`)
	paragraphSplit  = regexp.MustCompile(`\n[ \t]*\n`)
	collapseSpaceRe = regexp.MustCompile(`\s+`)
)

// Parse converts raw model text into at most MaxCards activity cards.
// It always returns at least one card.
func Parse(rawText string) []types.ActivityCard {
	cleaned := Clean(rawText)
	lines := nonBlankLines(cleaned)

	cards := ActivityTitleCards(lines)
	if len(cards) == 0 {
		cards = ListTitleCards(lines)
	}
	if len(cards) == 0 {
		cards = ParagraphCards(cleaned)
	}
	if len(cards) == 0 {
		cards = []types.ActivityCard{FallbackCard(cleaned)}
	}
	if len(cards) > MaxCards {
		cards = cards[:MaxCards]
	}
	return cards
}

// Clean strips emphasis markup, markdown headers and emoji. Header lines are
// dropped unless they carry a card title, in which case only the marker goes.
func Clean(rawText string) string {
	text := strings.ReplaceAll(rawText, "\r\n", "\n")
	text = stripEmoji(text)

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = stripEmphasis(line)
		trimmed := strings.TrimSpace(line)
		if headerRe.MatchString(trimmed) {
			rest := strings.TrimSpace(headerRe.ReplaceAllString(trimmed, ""))
			if !isTitleLine(rest) {
				continue
			}
			line = rest
		}
		out = append(out, strings.TrimRight(line, " \t"))
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// ActivityTitleCards is the first tier: "Activity N: title" lines open cards and
// the lines after them, up to the next title, form the description.
func ActivityTitleCards(lines []string) []types.ActivityCard {
	return accumulate(lines, func(line string) (string, bool) {
		m := activityTitleRe.FindStringSubmatch(line)
		if m == nil {
			return "", false
		}
		return strings.TrimSpace(m[1]), true
	})
}

// ListTitleCards is the second tier: numbered or dashed list lines open cards.
func ListTitleCards(lines []string) []types.ActivityCard {
	return accumulate(lines, func(line string) (string, bool) {
		if m := numberedTitleRe.FindStringSubmatch(line); m != nil {
			return strings.TrimSpace(m[1]), true
		}
		if m := dashedTitleRe.FindStringSubmatch(line); m != nil {
			return strings.TrimSpace(m[1]), true
		}
		return "", false
	})
}

// ParagraphCards is the third tier. Text without a blank-line separator has no
// paragraphs. Each paragraph's first sentence becomes the title.
func ParagraphCards(cleaned string) []types.ActivityCard {
	blocks := paragraphSplit.Split(strings.TrimSpace(cleaned), -1)
	paragraphs := make([]string, 0, len(blocks))
	for _, block := range blocks {
		block = collapseSpace(block)
		if block != "" {
			paragraphs = append(paragraphs, block)
		}
	}
	if len(paragraphs) < 2 {
		return nil
	}

	cards := make([]types.ActivityCard, 0, len(paragraphs))
	for _, p := range paragraphs {
		title, description := p, ""
		if i := strings.Index(p, ". "); i >= 0 {
			title, description = p[:i], strings.TrimSpace(p[i+2:])
		}
		title = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(title), ".:"))
		if title == "" {
			continue
		}
		cards = append(cards, types.ActivityCard{Title: title, Description: description})
	}
	return cards
}

// FallbackCard is the last tier: one generic card with the first 200 characters
// of the cleaned text, ellipsized when truncated.
func FallbackCard(cleaned string) types.ActivityCard {
	text := collapseSpace(cleaned)
	if utf8.RuneCountInString(text) > fallbackDescriptionRunes {
		runes := []rune(text)
		text = string(runes[:fallbackDescriptionRunes]) + ellipsis
	}
	return types.ActivityCard{Title: FallbackTitle, Description: text}
}

func accumulate(lines []string, title func(string) (string, bool)) []types.ActivityCard {
	var cards []types.ActivityCard
	for _, line := range lines {
		if t, ok := title(line); ok {
			cards = append(cards, types.ActivityCard{Title: t})
			continue
		}
		if len(cards) == 0 {
			continue
		}
		current := &cards[len(cards)-1]
		if current.Description == "" {
			current.Description = line
		} else {
			current.Description += " " + line
		}
	}
	return cards
}

func nonBlankLines(text string) []string {
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func isTitleLine(line string) bool {
	return activityTitleRe.MatchString(line) || numberedTitleRe.MatchString(line) || dashedTitleRe.MatchString(line)
}

func stripEmphasis(line string) string {
	line = boldRe.ReplaceAllString(line, "$2")
	line = italicStarRe.ReplaceAllString(line, "$1")
	line = italicUnderRe.ReplaceAllString(line, "$1$2$3")
	// Unpaired markers left behind by truncated model output.
	line = strings.ReplaceAll(line, "**", "")
	line = strings.ReplaceAll(line, "__", "")
	return line
}

func stripEmoji(text string) string {
	return strings.Map(func(r rune) rune {
		if isEmoji(r) {
			return -1
		}
		return r
	}, text)
}

func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F000 && r <= 0x1FAFF: // mahjong..symbols & pictographs ext-A, incl. flags
		return true
	case r >= 0x2600 && r <= 0x27BF: // misc symbols, dingbats
		return true
	case r >= 0x2B00 && r <= 0x2BFF: // arrows & stars used as emoji
		return true
	case r == 0x200D, r == 0x20E3: // zero-width joiner, keycap
		return true
	case r >= 0xFE00 && r <= 0xFE0F: // variation selectors
		return true
	case r >= 0xE0020 && r <= 0xE007F: // tag sequences
		return true
	default:
		return false
	}
}

func collapseSpace(s string) string {
	return strings.TrimSpace(collapseSpaceRe.ReplaceAllString(s, " "))
}
