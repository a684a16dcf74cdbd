package core

import (
	"errors"
	"fmt"
)

// Error is the error type surfaced by every vlearn component.
type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Param   string    `json:"param,omitempty"`

	// RequestID is set by the gateway when the error is returned over HTTP.
	RequestID string `json:"request_id,omitempty"`
	Cause     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %s (param: %s)", e.Type, e.Message, e.Param)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors.
type ErrorType string

const (
	ErrInvalidRequest     ErrorType = "invalid_request_error"
	ErrNotFound           ErrorType = "not_found_error"
	ErrPreconditionNotMet ErrorType = "precondition_not_met"
	ErrBusy               ErrorType = "busy"
	ErrContentUnavailable ErrorType = "content_unavailable"
	ErrGenerationFailed   ErrorType = "generation_failed"
	ErrPlaybackFailed     ErrorType = "playback_failed"
	ErrNoSpeechDetected   ErrorType = "no_speech_detected"
	ErrPermissionDenied   ErrorType = "permission_denied"
	ErrAlreadyCapturing   ErrorType = "already_capturing"
	ErrNoAPIKey           ErrorType = "no_api_key"
	ErrNetwork            ErrorType = "network_error"
	ErrEmptyResponse      ErrorType = "empty_response"
	ErrNoAudioContent     ErrorType = "no_audio_content"
	ErrAuthentication     ErrorType = "authentication_error"
	ErrRateLimit          ErrorType = "rate_limit_error"
	ErrAPI                ErrorType = "api_error"
)

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{Type: ErrInvalidRequest, Message: message}
}

// NewInvalidRequestErrorWithParam creates an invalid request error with a parameter.
func NewInvalidRequestErrorWithParam(message, param string) *Error {
	return &Error{Type: ErrInvalidRequest, Message: message, Param: param}
}

// NewRateLimitError reports a client that exceeded its request budget.
func NewRateLimitError(message string) *Error {
	return &Error{Type: ErrRateLimit, Message: message}
}

// NewNotFoundError creates a not found error.
func NewNotFoundError(message string) *Error {
	return &Error{Type: ErrNotFound, Message: message}
}

// NewPreconditionError reports a missing input (age, focus area, selection).
func NewPreconditionError(message, param string) *Error {
	return &Error{Type: ErrPreconditionNotMet, Message: message, Param: param}
}

// NewBusyError reports a request rejected because another one is in flight.
func NewBusyError(message string) *Error {
	return &Error{Type: ErrBusy, Message: message}
}

// NewContentUnavailableError reports an asset restored from metadata only.
func NewContentUnavailableError(assetID string) *Error {
	return &Error{Type: ErrContentUnavailable, Message: "media asset needs its content re-attached", Param: assetID}
}

// NewGenerationError wraps a failed or empty model call.
func NewGenerationError(cause error) *Error {
	msg := "no response received from the model"
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Type: ErrGenerationFailed, Message: msg, Cause: cause}
}

// NewPlaybackError wraps a failed synthesis or playback.
func NewPlaybackError(cause error) *Error {
	msg := "audio playback failed"
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Type: ErrPlaybackFailed, Message: msg, Cause: cause}
}

// NewNoSpeechError reports an empty transcription.
func NewNoSpeechError() *Error {
	return &Error{Type: ErrNoSpeechDetected, Message: "no speech detected; try speaking louder or closer to the microphone"}
}

// NewPermissionError wraps a rejected microphone acquisition.
func NewPermissionError(cause error) *Error {
	msg := "microphone access denied"
	if cause != nil {
		msg = fmt.Sprintf("microphone access denied: %v", cause)
	}
	return &Error{Type: ErrPermissionDenied, Message: msg, Cause: cause}
}

// NewAlreadyCapturingError reports a start while a capture is active.
func NewAlreadyCapturingError() *Error {
	return &Error{Type: ErrAlreadyCapturing, Message: "voice capture already in progress"}
}

// NewNoAPIKeyError reports a provider configured without credentials.
func NewNoAPIKeyError(provider string) *Error {
	return &Error{Type: ErrNoAPIKey, Message: fmt.Sprintf("%s API key not configured", provider), Param: provider}
}

// NewNetworkError wraps a transport or upstream failure.
func NewNetworkError(provider string, cause error) *Error {
	return &Error{Type: ErrNetwork, Message: fmt.Sprintf("%s: %v", provider, cause), Cause: cause}
}

// NewEmptyResponseError reports a model reply without text.
func NewEmptyResponseError(provider string) *Error {
	return &Error{Type: ErrEmptyResponse, Message: fmt.Sprintf("%s returned no text", provider), Param: provider}
}

// NewNoAudioContentError reports a synthesis reply without audio.
func NewNoAudioContentError(provider string) *Error {
	return &Error{Type: ErrNoAudioContent, Message: fmt.Sprintf("%s returned no audio content", provider), Param: provider}
}

// IsRetryable returns true if the same call may succeed when repeated unchanged.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrNetwork, ErrGenerationFailed, ErrNoSpeechDetected, ErrEmptyResponse, ErrRateLimit:
		return true
	default:
		return false
	}
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsType reports whether any error in err's chain is a *Error of type t.
func IsType(err error, t ErrorType) bool {
	var ce *Error
	for err != nil {
		if !errors.As(err, &ce) {
			return false
		}
		if ce.Type == t {
			return true
		}
		err = ce.Cause
	}
	return false
}

// TypeOf returns the type of the outermost *Error in err's chain, or "" if there is none.
func TypeOf(err error) ErrorType {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Type
	}
	return ""
}
