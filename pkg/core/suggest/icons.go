package suggest

import "strings"

var iconRules = []struct {
	words []string
	icon  string
}{
	{[]string{"spy", "find", "look"}, "👁️"},
	{[]string{"color", "colour", "paint"}, "🎨"},
	{[]string{"count", "number"}, "🔢"},
	{[]string{"story", "tell"}, "📖"},
	{[]string{"move", "dance"}, "💃"},
	{[]string{"sound", "music"}, "🎵"},
	{[]string{"draw", "create"}, "✏️"},
	{[]string{"missing", "imagine"}, "❓"},
}

// Icon picks a decorative icon for a card title. Renderers use it; cards
// themselves stay plain text.
func Icon(title string) string {
	lower := strings.ToLower(title)
	for _, rule := range iconRules {
		for _, w := range rule.words {
			if strings.Contains(lower, w) {
				return rule.icon
			}
		}
	}
	return "🌟"
}
