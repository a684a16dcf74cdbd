package types

import "time"

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one contribution to a conversation. IDs are monotonic millisecond
// timestamps and strictly increase along the log.
type Turn struct {
	ID        int64     `json:"turn_id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// LastAssistant returns the most recent assistant turn in log.
func LastAssistant(log []Turn) (Turn, bool) {
	for i := len(log) - 1; i >= 0; i-- {
		if log[i].Role == RoleAssistant {
			return log[i], true
		}
	}
	return Turn{}, false
}
