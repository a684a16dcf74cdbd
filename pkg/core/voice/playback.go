package voice

import (
	"context"
	"log/slog"
	"sync"

	"github.com/vango-go/vlearn/pkg/core"
	"github.com/vango-go/vlearn/pkg/core/types"
)

// Player starts audible playback of a clip.
type Player interface {
	Play(ctx context.Context, audio types.Audio) (PlaybackHandle, error)
}

// PlaybackHandle controls one utterance. Done is closed when playback ends for
// any reason; Err reports a playback error after Done is closed.
type PlaybackHandle interface {
	Stop() error
	Done() <-chan struct{}
	Err() error
}

// PlaybackController keeps at most one utterance audible. Speak supersedes the
// current utterance; Stop silences it.
type PlaybackController struct {
	synth  Synthesizer
	player Player
	logger *slog.Logger

	mu       sync.Mutex
	current  PlaybackHandle
	seq      uint64
	speaking bool
	lastErr  error
	onChange func(speaking bool)
}

// NewPlaybackController creates an idle playback controller.
func NewPlaybackController(synth Synthesizer, player Player, logger *slog.Logger) *PlaybackController {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlaybackController{synth: synth, player: player, logger: logger}
}

// OnChange registers a callback invoked whenever IsSpeaking flips.
func (p *PlaybackController) OnChange(fn func(speaking bool)) {
	p.mu.Lock()
	p.onChange = fn
	p.mu.Unlock()
}

// IsSpeaking reports whether an utterance is being synthesized or played.
func (p *PlaybackController) IsSpeaking() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speaking
}

// Err returns the last playback_failed error, cleared by the next Speak.
func (p *PlaybackController) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// Speak stops any current utterance, synthesizes text and starts playing it. It
// returns once playback has started. Synthesis or player failures leave the
// controller not speaking and are returned as playback_failed; they are also
// kept for Err.
func (p *PlaybackController) Speak(ctx context.Context, text string) error {
	p.mu.Lock()
	prev := p.current
	p.current = nil
	p.seq++
	seq := p.seq
	p.lastErr = nil
	wasSpeaking := p.speaking
	p.speaking = true
	notify := p.notifier()
	p.mu.Unlock()

	if prev != nil {
		if err := prev.Stop(); err != nil {
			p.logger.Debug("stop previous utterance", "error", err)
		}
	}
	if !wasSpeaking {
		notify(true)
	}

	audio, err := p.synth.Synthesize(ctx, text)
	if err != nil {
		return p.fail(seq, err)
	}

	if !p.isCurrent(seq) {
		return nil
	}
	handle, err := p.player.Play(ctx, audio)
	if err != nil {
		return p.fail(seq, err)
	}

	p.mu.Lock()
	if p.seq != seq {
		p.mu.Unlock()
		_ = handle.Stop()
		return nil
	}
	p.current = handle
	p.mu.Unlock()

	go p.watch(seq, handle)
	return nil
}

// Stop halts the current utterance. Calling it while idle does nothing.
func (p *PlaybackController) Stop() {
	p.mu.Lock()
	if !p.speaking && p.current == nil {
		p.mu.Unlock()
		return
	}
	p.seq++
	handle := p.current
	p.current = nil
	p.speaking = false
	notify := p.notifier()
	p.mu.Unlock()

	if handle != nil {
		if err := handle.Stop(); err != nil {
			p.logger.Debug("stop utterance", "error", err)
		}
	}
	notify(false)
}

func (p *PlaybackController) watch(seq uint64, handle PlaybackHandle) {
	<-handle.Done()

	p.mu.Lock()
	if p.seq != seq {
		p.mu.Unlock()
		return
	}
	p.current = nil
	p.speaking = false
	if err := handle.Err(); err != nil {
		p.lastErr = core.NewPlaybackError(err)
		p.logger.Warn("playback failed", "error", err)
	}
	notify := p.notifier()
	p.mu.Unlock()
	notify(false)
}

func (p *PlaybackController) fail(seq uint64, err error) error {
	perr := core.NewPlaybackError(err)
	p.mu.Lock()
	if p.seq != seq {
		p.mu.Unlock()
		return nil
	}
	p.speaking = false
	p.lastErr = perr
	notify := p.notifier()
	p.mu.Unlock()

	p.logger.Warn("speech playback failed", "error", err)
	notify(false)
	return perr
}

func (p *PlaybackController) isCurrent(seq uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seq == seq
}

func (p *PlaybackController) notifier() func(bool) {
	fn := p.onChange
	return func(speaking bool) {
		if fn != nil {
			fn(speaking)
		}
	}
}
