// Package export renders a session's conversation as a downloadable document.
package export

import (
	"time"

	"github.com/vango-go/vlearn/pkg/core/session"
	"github.com/vango-go/vlearn/pkg/core/types"
)

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Message types and senders as they appear in exported documents.
const (
	TypeUserMessage = "user_message"
	TypeAIResponse  = "ai_response"
	SenderUser      = "user"
	SenderAI        = "ai"
)

// Document is the exported conversation.
type Document struct {
	Timestamp        string    `json:"timestamp" yaml:"timestamp"`
	SessionID        string    `json:"session_id" yaml:"session_id"`
	SelectedImage    *string   `json:"selected_image" yaml:"selected_image"`
	ChildAge         int       `json:"child_age" yaml:"child_age"`
	FocusArea        string    `json:"focus_area" yaml:"focus_area"`
	Mode             string    `json:"mode" yaml:"mode"`
	ConversationType string    `json:"conversation_type" yaml:"conversation_type"`
	TotalMessages    int       `json:"total_messages" yaml:"total_messages"`
	Messages         []Message `json:"messages" yaml:"messages"`
}

// Message is one exported turn.
type Message struct {
	MessageID  int    `json:"message_id" yaml:"message_id"`
	Timestamp  string `json:"timestamp" yaml:"timestamp"`
	Type       string `json:"type" yaml:"type"`
	Sender     string `json:"sender" yaml:"sender"`
	Content    string `json:"content" yaml:"content"`
	ResponseID int64  `json:"response_id" yaml:"response_id"`
}

// Build assembles the document for snap as of now.
func Build(snap session.Snapshot, now time.Time) Document {
	doc := Document{
		Timestamp:        now.UTC().Format(timestampLayout),
		SessionID:        snap.SessionID,
		ChildAge:         snap.Config.ChildAge,
		FocusArea:        string(snap.Config.FocusArea),
		Mode:             string(snap.Config.Mode),
		ConversationType: string(snap.Config.Channel),
		TotalMessages:    len(snap.Log),
		Messages:         make([]Message, 0, len(snap.Log)),
	}
	if snap.Selected != nil {
		name := snap.Selected.DisplayName
		doc.SelectedImage = &name
	}
	for i, turn := range snap.Log {
		msg := Message{
			MessageID:  i + 1,
			Timestamp:  turn.CreatedAt.UTC().Format(timestampLayout),
			Type:       TypeAIResponse,
			Sender:     SenderAI,
			Content:    turn.Text,
			ResponseID: turn.ID,
		}
		if turn.Role == types.RoleUser {
			msg.Type = TypeUserMessage
			msg.Sender = SenderUser
		}
		doc.Messages = append(doc.Messages, msg)
	}
	return doc
}

// Filename is the suggested download name, e.g. conversation_2024-03-01T10-00-00.json.
func Filename(now time.Time, ext string) string {
	return "conversation_" + now.UTC().Format("2006-01-02T15-04-05") + "." + ext
}
