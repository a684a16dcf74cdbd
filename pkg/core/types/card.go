package types

// ActivityCard is one structured suggestion derived from free-form model text.
type ActivityCard struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}
