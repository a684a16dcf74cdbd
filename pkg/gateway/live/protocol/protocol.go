// Package protocol defines the JSON frames exchanged over /v1/live between a
// UI renderer and the session. Every frame is an object with a "type" field.
// Binary frames carry raw microphone audio and are handled by the transport.
package protocol

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/vango-go/vlearn/pkg/core"
	"github.com/vango-go/vlearn/pkg/core/session"
	"github.com/vango-go/vlearn/pkg/core/types"
	"github.com/vango-go/vlearn/pkg/core/voice"
)

// Client frame types.
const (
	TypeSessionConfigure = "session.configure"
	TypeMediaSelect      = "media.select"
	TypeModeSet          = "mode.set"
	TypeChannelSet       = "channel.set"
	TypeTurnRequest      = "turn.request"
	TypeVoiceStart       = "voice.start"
	TypeVoiceAudio       = "voice.audio"
	TypeVoiceStop        = "voice.stop"
	TypeVoiceSend        = "voice.send"
	TypeVoiceCancel      = "voice.cancel"
	TypeVoiceAcknowledge = "voice.acknowledge"
	TypePlaybackStop     = "playback.stop"
	TypePlaybackEnded    = "playback.ended"
	TypeSessionReset     = "session.reset"
)

// Server frame types.
const (
	TypeState         = "state"
	TypeTurnCompleted = "turn.completed"
	TypePlaybackAudio = "playback.audio"
	TypeError         = "error"
	TypeWarning       = "warning"
)

// DefaultVoiceMediaType is assumed when voice.start omits media_type.
const DefaultVoiceMediaType = types.AudioWebM

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message, Param: param}
}

// SessionConfigure sets the child's age and/or the focus area.
type SessionConfigure struct {
	Type      string          `json:"type"`
	ChildAge  *int            `json:"child_age,omitempty"`
	FocusArea types.FocusArea `json:"focus_area,omitempty"`
}

type MediaSelect struct {
	Type    string `json:"type"`
	MediaID string `json:"media_id"`
}

type ModeSet struct {
	Type string     `json:"type"`
	Mode types.Mode `json:"mode"`
}

type ChannelSet struct {
	Type    string        `json:"type"`
	Channel types.Channel `json:"channel"`
}

// TurnRequest asks for the next reply. Text may be empty.
type TurnRequest struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// VoiceStart opens the remote microphone and declares the format of the
// audio that follows.
type VoiceStart struct {
	Type         string `json:"type"`
	MediaType    string `json:"media_type,omitempty"`
	SampleRateHz int    `json:"sample_rate_hz,omitempty"`
}

// VoiceAudio is a base64 microphone chunk, for clients that cannot send
// binary frames.
type VoiceAudio struct {
	Type    string `json:"type"`
	DataB64 string `json:"data_b64"`
	Data    []byte `json:"-"`
}

// Command is a frame with no payload: voice.stop, voice.send, voice.cancel,
// voice.acknowledge and playback.stop.
type Command struct {
	Type string `json:"type"`
}

// PlaybackEnded reports that the renderer finished (or failed) playing a clip.
type PlaybackEnded struct {
	Type       string `json:"type"`
	PlaybackID string `json:"playback_id"`
	Error      string `json:"error,omitempty"`
}

type SessionReset struct {
	Type  string            `json:"type"`
	Scope session.ResetKind `json:"scope,omitempty"`
}

func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case TypeSessionConfigure:
		var msg SessionConfigure
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid session.configure", "")
		}
		if msg.ChildAge == nil && msg.FocusArea == "" {
			return nil, badRequest("session.configure needs child_age or focus_area", "")
		}
		if msg.ChildAge != nil && *msg.ChildAge <= 0 {
			return nil, badRequest("session.configure.child_age must be > 0", "child_age")
		}
		if msg.FocusArea != "" {
			focus, err := types.ParseFocusArea(string(msg.FocusArea))
			if err != nil {
				return nil, badRequest(err.Error(), "focus_area")
			}
			msg.FocusArea = focus
		}
		return msg, nil
	case TypeMediaSelect:
		var msg MediaSelect
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid media.select", "")
		}
		msg.MediaID = strings.TrimSpace(msg.MediaID)
		if msg.MediaID == "" {
			return nil, badRequest("media.select.media_id is required", "media_id")
		}
		return msg, nil
	case TypeModeSet:
		var raw struct {
			Mode string `json:"mode"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, badRequest("invalid mode.set", "")
		}
		mode, err := types.ParseMode(raw.Mode)
		if err != nil {
			return nil, unsupported(err.Error(), "mode")
		}
		return ModeSet{Type: typ, Mode: mode}, nil
	case TypeChannelSet:
		var raw struct {
			Channel string `json:"channel"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, badRequest("invalid channel.set", "")
		}
		channel, err := types.ParseChannel(raw.Channel)
		if err != nil {
			return nil, unsupported(err.Error(), "channel")
		}
		return ChannelSet{Type: typ, Channel: channel}, nil
	case TypeTurnRequest:
		var msg TurnRequest
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid turn.request", "")
		}
		return msg, nil
	case TypeVoiceStart:
		var msg VoiceStart
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid voice.start", "")
		}
		if strings.TrimSpace(msg.MediaType) == "" {
			msg.MediaType = DefaultVoiceMediaType
		}
		if !strings.HasPrefix(types.BaseMediaType(msg.MediaType), "audio/") {
			return nil, unsupported("voice.start.media_type must be an audio type", "media_type")
		}
		if msg.SampleRateHz < 0 {
			return nil, badRequest("voice.start.sample_rate_hz must be >= 0", "sample_rate_hz")
		}
		return msg, nil
	case TypeVoiceAudio:
		var msg VoiceAudio
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid voice.audio", "")
		}
		if strings.TrimSpace(msg.DataB64) == "" {
			return nil, badRequest("voice.audio.data_b64 is required", "data_b64")
		}
		decoded, err := base64.StdEncoding.DecodeString(msg.DataB64)
		if err != nil {
			return nil, badRequest("voice.audio.data_b64 is not valid base64", "data_b64")
		}
		msg.Data = decoded
		return msg, nil
	case TypeVoiceStop, TypeVoiceSend, TypeVoiceCancel, TypeVoiceAcknowledge, TypePlaybackStop:
		return Command{Type: typ}, nil
	case TypePlaybackEnded:
		var msg PlaybackEnded
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid playback.ended", "")
		}
		if strings.TrimSpace(msg.PlaybackID) == "" {
			return nil, badRequest("playback.ended.playback_id is required", "playback_id")
		}
		return msg, nil
	case TypeSessionReset:
		var msg SessionReset
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid session.reset", "")
		}
		switch msg.Scope {
		case "":
			msg.Scope = session.ClearTurns
		case session.ClearTurns, session.ClearAll:
		default:
			return nil, unsupported("session.reset.scope must be turns or all", "scope")
		}
		return msg, nil
	default:
		return nil, badRequest("unsupported message type", "type")
	}
}

// CaptureState is the voice capture part of a state frame.
type CaptureState struct {
	State      voice.CaptureState `json:"state"`
	Transcript string             `json:"transcript,omitempty"`
	Error      *ErrorBody         `json:"error,omitempty"`
}

// ServerState is pushed after every change to the session, the capture or
// the playback.
type ServerState struct {
	Type     string           `json:"type"`
	Session  session.Snapshot `json:"session"`
	Capture  CaptureState     `json:"capture"`
	Speaking bool             `json:"speaking"`
	Starters []string         `json:"starters"`
}

type ServerTurnCompleted struct {
	Type      string               `json:"type"`
	UserTurn  *types.Turn          `json:"user_turn,omitempty"`
	Assistant *types.Turn          `json:"assistant,omitempty"`
	Cards     []types.ActivityCard `json:"cards,omitempty"`
	Spoken    bool                 `json:"spoken"`
	Stale     bool                 `json:"stale,omitempty"`
	Playback  *ErrorBody           `json:"playback_error,omitempty"`
}

// TurnCompleted converts a turn result into its frame.
func TurnCompleted(res session.TurnResult) ServerTurnCompleted {
	out := ServerTurnCompleted{
		Type:      TypeTurnCompleted,
		UserTurn:  res.UserTurn,
		Assistant: res.Assistant,
		Cards:     res.Cards,
		Spoken:    res.Spoken,
		Stale:     res.Stale,
	}
	if res.PlaybackErr != nil {
		body := ErrorBodyFrom(res.PlaybackErr)
		out.Playback = &body
	}
	return out
}

type ServerPlaybackAudio struct {
	Type         string `json:"type"`
	PlaybackID   string `json:"playback_id"`
	MediaType    string `json:"media_type"`
	SampleRateHz int    `json:"sample_rate_hz,omitempty"`
	DataB64      string `json:"data_b64"`
}

type ServerPlaybackStop struct {
	Type       string `json:"type"`
	PlaybackID string `json:"playback_id"`
}

// ErrorBody is the code/message/param triple shared by error frames and
// embedded errors.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
}

type ServerError struct {
	Type string `json:"type"`
	ErrorBody
	// RequestType echoes the client frame type that failed.
	RequestType string `json:"request_type,omitempty"`
}

type ServerWarning struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorBodyFrom maps decode errors and core errors to a frame body. The code
// of a core error is its type.
func ErrorBodyFrom(err error) ErrorBody {
	var de *DecodeError
	if errors.As(err, &de) {
		return ErrorBody{Code: de.Code, Message: de.Message, Param: de.Param}
	}
	var ce *core.Error
	if errors.As(err, &ce) {
		return ErrorBody{Code: string(ce.Type), Message: ce.Message, Param: ce.Param}
	}
	return ErrorBody{Code: string(core.ErrAPI), Message: "internal error"}
}

// ErrorFrame builds an error frame for a failed client frame.
func ErrorFrame(requestType string, err error) ServerError {
	return ServerError{Type: TypeError, ErrorBody: ErrorBodyFrom(err), RequestType: requestType}
}
