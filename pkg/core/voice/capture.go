package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vango-go/vlearn/pkg/core"
	"github.com/vango-go/vlearn/pkg/core/types"
)

// CaptureState is the voice capture lifecycle.
//
//	Idle --Start--> Recording --Stop--> Transcribing --ok--> Staged
//	Transcribing --empty or error--> Failed
//	Staged --Consume--> Idle
//	Failed --Acknowledge--> Idle
//	any --Cancel--> Idle
type CaptureState string

const (
	CaptureIdle         CaptureState = "idle"
	CaptureRecording    CaptureState = "recording"
	CaptureTranscribing CaptureState = "transcribing"
	CaptureStaged       CaptureState = "staged"
	CaptureFailed       CaptureState = "failed"
)

// ErrCaptureCanceled is returned by Start when Cancel ran while the microphone
// was being acquired.
var ErrCaptureCanceled = errors.New("voice capture canceled")

// Microphone acquires a recording device.
type Microphone interface {
	Open(ctx context.Context) (Recording, error)
}

// Recording is an open capture. Stop ends it and returns the audio; Abort
// discards it.
type Recording interface {
	Stop() (types.Audio, error)
	Abort() error
}

// CaptureSnapshot is a consistent view of the capture state.
type CaptureSnapshot struct {
	State      CaptureState
	Transcript string // set in CaptureStaged
	Err        error  // set in CaptureFailed
}

// CaptureController owns the record/transcribe/stage lifecycle. There is one per
// session and every transition runs under its lock; microphone acquisition,
// stopping the recorder and transcription run with the lock released.
type CaptureController struct {
	mic    Microphone
	stt    Transcriber
	logger *slog.Logger

	mu        sync.Mutex
	state     CaptureState
	staged    string
	failure   error
	rec       Recording
	acquiring bool
	epoch     uint64
	onChange  func(CaptureSnapshot)
}

// NewCaptureController creates a controller in the Idle state.
func NewCaptureController(mic Microphone, transcriber Transcriber, logger *slog.Logger) *CaptureController {
	if logger == nil {
		logger = slog.Default()
	}
	return &CaptureController{
		mic:    mic,
		stt:    transcriber,
		logger: logger,
		state:  CaptureIdle,
	}
}

// OnChange registers a callback invoked after every state change.
func (c *CaptureController) OnChange(fn func(CaptureSnapshot)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Snapshot returns the current state.
func (c *CaptureController) Snapshot() CaptureSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Start acquires the microphone and begins recording. It fails with
// already_capturing unless the controller is Idle, and with permission_denied
// (leaving the controller Failed) when the microphone cannot be opened.
func (c *CaptureController) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != CaptureIdle || c.acquiring {
		c.mu.Unlock()
		return core.NewAlreadyCapturingError()
	}
	c.acquiring = true
	epoch := c.epoch
	c.mu.Unlock()

	rec, err := c.mic.Open(ctx)

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		if rec != nil {
			_ = rec.Abort()
		}
		return ErrCaptureCanceled
	}
	c.acquiring = false
	if err != nil {
		c.state = CaptureFailed
		c.failure = core.NewPermissionError(err)
		snap, notify := c.changedLocked()
		c.mu.Unlock()
		c.logger.Warn("microphone unavailable", "error", err)
		notify(snap)
		return snap.Err
	}
	c.rec = rec
	c.state = CaptureRecording
	snap, notify := c.changedLocked()
	c.mu.Unlock()

	c.logger.Debug("voice capture started")
	notify(snap)
	return nil
}

// Stop ends the recording and transcribes it. Outside Recording it is a no-op
// returning the unchanged state. The returned error is the failure reason when
// the capture ends in Failed.
func (c *CaptureController) Stop(ctx context.Context) (CaptureSnapshot, error) {
	c.mu.Lock()
	if c.state != CaptureRecording {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, nil
	}
	rec := c.rec
	c.rec = nil
	c.state = CaptureTranscribing
	epoch := c.epoch
	snap, notify := c.changedLocked()
	c.mu.Unlock()
	notify(snap)

	text, err := c.transcribe(ctx, rec)

	c.mu.Lock()
	if c.epoch != epoch {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.logger.Debug("discarding transcript from canceled capture")
		return snap, nil
	}
	if err != nil {
		c.state = CaptureFailed
		c.failure = err
	} else {
		c.state = CaptureStaged
		c.staged = text
	}
	snap, notify = c.changedLocked()
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("voice capture failed", "error", err)
	} else {
		c.logger.Debug("transcript staged", "chars", len(text))
	}
	notify(snap)
	return snap, snap.Err
}

func (c *CaptureController) transcribe(ctx context.Context, rec Recording) (string, error) {
	audio, err := rec.Stop()
	if err != nil {
		return "", fmt.Errorf("stop recording: %w", err)
	}
	if len(audio.Data) == 0 {
		return "", core.NewNoSpeechError()
	}
	text, err := c.stt.Transcribe(ctx, audio)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", core.NewNoSpeechError()
	}
	return text, nil
}

// Consume reads the staged transcript and returns to Idle in one step. A second
// call before a new transcript is staged returns false.
func (c *CaptureController) Consume() (string, bool) {
	c.mu.Lock()
	if c.state != CaptureStaged {
		c.mu.Unlock()
		return "", false
	}
	text := c.staged
	c.staged = ""
	c.state = CaptureIdle
	snap, notify := c.changedLocked()
	c.mu.Unlock()
	notify(snap)
	return text, true
}

// Restage puts back a transcript taken by Consume whose send was refused. It
// only applies while Idle; once a new capture has started it returns false and
// the text is dropped.
func (c *CaptureController) Restage(text string) bool {
	c.mu.Lock()
	if c.state != CaptureIdle || c.acquiring {
		c.mu.Unlock()
		return false
	}
	c.staged = text
	c.state = CaptureStaged
	snap, notify := c.changedLocked()
	c.mu.Unlock()
	notify(snap)
	return true
}

// ClearStaged drops a staged transcript without reading it.
func (c *CaptureController) ClearStaged() {
	c.Consume()
}

// Acknowledge clears a failure. Outside Failed it does nothing.
func (c *CaptureController) Acknowledge() {
	c.mu.Lock()
	if c.state != CaptureFailed {
		c.mu.Unlock()
		return
	}
	c.failure = nil
	c.state = CaptureIdle
	snap, notify := c.changedLocked()
	c.mu.Unlock()
	notify(snap)
}

// Cancel returns to Idle from any state, discarding audio, any pending
// transcription result and any staged text. It never fails.
func (c *CaptureController) Cancel() {
	c.mu.Lock()
	c.epoch++
	rec := c.rec
	c.rec = nil
	wasIdle := c.state == CaptureIdle && !c.acquiring
	c.acquiring = false
	c.state = CaptureIdle
	c.staged = ""
	c.failure = nil
	snap, notify := c.changedLocked()
	c.mu.Unlock()

	if rec != nil {
		if err := rec.Abort(); err != nil {
			c.logger.Debug("abort recording", "error", err)
		}
	}
	if !wasIdle {
		c.logger.Debug("voice capture canceled")
		notify(snap)
	}
}

func (c *CaptureController) snapshotLocked() CaptureSnapshot {
	return CaptureSnapshot{State: c.state, Transcript: c.staged, Err: c.failure}
}

func (c *CaptureController) changedLocked() (CaptureSnapshot, func(CaptureSnapshot)) {
	snap := c.snapshotLocked()
	fn := c.onChange
	return snap, func(s CaptureSnapshot) {
		if fn != nil {
			fn(s)
		}
	}
}
