package apierror

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vango-go/vlearn/pkg/core"
)

type Envelope struct {
	Error *core.Error `json:"error"`
}

// FromError maps err to the wire error and its HTTP status.
func FromError(err error, requestID string) (*core.Error, int) {
	if err == nil {
		return nil, http.StatusOK
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &core.Error{
			Type:      core.ErrAPI,
			Message:   "request timeout",
			RequestID: requestID,
		}, http.StatusGatewayTimeout
	}
	if errors.Is(err, context.Canceled) {
		return &core.Error{
			Type:      core.ErrAPI,
			Message:   "request cancelled",
			RequestID: requestID,
		}, http.StatusRequestTimeout
	}

	var coreErr *core.Error
	if errors.As(err, &coreErr) && coreErr != nil {
		out := *coreErr
		out.RequestID = requestID
		return &out, StatusFromType(coreErr.Type)
	}

	// Unknown errors do not leak details.
	return &core.Error{
		Type:      core.ErrAPI,
		Message:   "internal error",
		RequestID: requestID,
	}, http.StatusInternalServerError
}

// StatusFromType is the HTTP status for an error type.
func StatusFromType(t core.ErrorType) int {
	switch t {
	case core.ErrInvalidRequest:
		return http.StatusBadRequest
	case core.ErrAuthentication:
		return http.StatusUnauthorized
	case core.ErrNotFound:
		return http.StatusNotFound
	case core.ErrRateLimit:
		return http.StatusTooManyRequests
	case core.ErrBusy, core.ErrAlreadyCapturing:
		return http.StatusConflict
	case core.ErrPreconditionNotMet, core.ErrContentUnavailable:
		return http.StatusUnprocessableEntity
	case core.ErrPermissionDenied:
		return http.StatusForbidden
	case core.ErrNoSpeechDetected:
		return http.StatusUnprocessableEntity
	case core.ErrNoAPIKey:
		return http.StatusServiceUnavailable
	case core.ErrGenerationFailed, core.ErrNetwork, core.ErrEmptyResponse, core.ErrNoAudioContent, core.ErrPlaybackFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Write maps err and writes the JSON envelope.
func Write(w http.ResponseWriter, err error, requestID string) {
	ce, status := FromError(err, requestID)
	WriteError(w, status, ce)
}

// WriteError writes an already-mapped error.
func WriteError(w http.ResponseWriter, status int, err *core.Error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{Error: err})
}
