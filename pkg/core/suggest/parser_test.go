package suggest

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/vango-go/vlearn/pkg/core/types"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []types.ActivityCard
	}{
		{
			name:  "activity titles",
			input: "Activity 1: Find Colors\nLook for red and blue things.\nActivity 2: Count Shapes\nCount the circles.",
			want: []types.ActivityCard{
				{Title: "Find Colors", Description: "Look for red and blue things."},
				{Title: "Count Shapes", Description: "Count the circles."},
			},
		},
		{
			name:  "multi-line description is space joined",
			input: "Activity 1: Story Time\nMake up a story.\n\nUse the dog as the hero.",
			want: []types.ActivityCard{
				{Title: "Story Time", Description: "Make up a story. Use the dog as the hero."},
			},
		},
		{
			name:  "bold numbered list",
			input: "**1. I Spy Game**\nPlay I spy using things in the picture!\n\n**2. Color Hunt**\nFind and name all the colors!",
			want: []types.ActivityCard{
				{Title: "I Spy Game", Description: "Play I spy using things in the picture!"},
				{Title: "Color Hunt", Description: "Find and name all the colors!"},
			},
		},
		{
			name:  "dashed list",
			input: "- Sing a song\nUse the animals.\n- Draw a cat",
			want: []types.ActivityCard{
				{Title: "Sing a song", Description: "Use the animals."},
				{Title: "Draw a cat", Description: ""},
			},
		},
		{
			name:  "activity tier wins over list lines",
			input: "Activity 1: Shapes\n1. Find circles\n2. Find squares",
			want: []types.ActivityCard{
				{Title: "Shapes", Description: "1. Find circles 2. Find squares"},
			},
		},
		{
			name:  "paragraphs",
			input: "Go on a color walk. Name every red thing you see.\n\nBuild a tower: Stack the blocks from the picture.",
			want: []types.ActivityCard{
				{Title: "Go on a color walk", Description: "Name every red thing you see."},
				{Title: "Build a tower: Stack the blocks from the picture", Description: ""},
			},
		},
		{
			name:  "headers and emoji are stripped",
			input: "## Fun Ideas 🎉\nActivity 1: Find Colors 🌈\nLook for **red** things.",
			want: []types.ActivityCard{
				{Title: "Find Colors", Description: "Look for red things."},
			},
		},
		{
			name:  "header carrying a title keeps the title",
			input: "### Activity 1: Count Shapes\nCount the circles.",
			want: []types.ActivityCard{
				{Title: "Count Shapes", Description: "Count the circles."},
			},
		},
		{
			name:  "unstructured text falls back to one card",
			input: "just some unstructured rambling text with no structure at all",
			want: []types.ActivityCard{
				{Title: FallbackTitle, Description: "just some unstructured rambling text with no structure at all"},
			},
		},
		{
			name:  "empty input still yields one card",
			input: "",
			want: []types.ActivityCard{
				{Title: FallbackTitle, Description: ""},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Parse() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestParse_FallbackTruncates(t *testing.T) {
	input := strings.Repeat("word ", 60)
	cards := Parse(input)
	if len(cards) != 1 {
		t.Fatalf("len(cards) = %d, want 1", len(cards))
	}
	if cards[0].Title != FallbackTitle {
		t.Fatalf("Title = %q, want %q", cards[0].Title, FallbackTitle)
	}
	desc := cards[0].Description
	if n := utf8.RuneCountInString(desc); n != 203 {
		t.Fatalf("description runes = %d, want 203", n)
	}
	if !strings.HasSuffix(desc, "...") {
		t.Fatalf("description = %q, want ellipsis suffix", desc)
	}
}

func TestParse_CapsAtSixCards(t *testing.T) {
	var b strings.Builder
	for i := 1; i <= 8; i++ {
		fmt.Fprintf(&b, "Activity %d: Game %d\nPlay game %d.\n", i, i, i)
	}
	cards := Parse(b.String())
	if len(cards) != MaxCards {
		t.Fatalf("len(cards) = %d, want %d", len(cards), MaxCards)
	}
	for i, card := range cards {
		want := fmt.Sprintf("Game %d", i+1)
		if card.Title != want {
			t.Fatalf("cards[%d].Title = %q, want %q", i, card.Title, want)
		}
	}
}

func TestParse_Deterministic(t *testing.T) {
	input := "1. Count Ducks\nHow many ducks?\n2. Duck Story\nTell a story."
	first := Parse(input)
	for i := 0; i < 5; i++ {
		if got := Parse(input); !reflect.DeepEqual(got, first) {
			t.Fatalf("Parse() run %d = %#v, want %#v", i, got, first)
		}
	}
}

func TestTiers_Independently(t *testing.T) {
	lines := []string{"Look here", "1. Count", "three things"}
	if got := ActivityTitleCards(lines); len(got) != 0 {
		t.Fatalf("ActivityTitleCards() = %#v, want none", got)
	}
	got := ListTitleCards(lines)
	want := []types.ActivityCard{{Title: "Count", Description: "three things"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ListTitleCards() = %#v, want %#v", got, want)
	}
	if got := ParagraphCards("one block. no separator"); got != nil {
		t.Fatalf("ParagraphCards(single block) = %#v, want nil", got)
	}
}

func TestClean(t *testing.T) {
	got := Clean("# Title\n*Gently* say __hello__ 👋\r\n")
	if got != "Gently say hello" {
		t.Fatalf("Clean() = %q, want %q", got, "Gently say hello")
	}
}

func TestIcon(t *testing.T) {
	tests := map[string]string{
		"I Spy Game":       "👁️",
		"Color Hunt":       "🎨",
		"Count Together":   "🔢",
		"Story Time":       "📖",
		"What's Missing?":  "❓",
		"Quiet Breathing":  "🌟",
		"Dance Like Ducks": "💃",
	}
	for title, want := range tests {
		if got := Icon(title); got != want {
			t.Errorf("Icon(%q) = %q, want %q", title, got, want)
		}
	}
}
