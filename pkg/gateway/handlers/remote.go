package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/vango-go/vlearn/pkg/core/types"
	"github.com/vango-go/vlearn/pkg/core/voice"
	"github.com/vango-go/vlearn/pkg/gateway/live/protocol"
)

var (
	errNoRenderer   = errors.New("no live renderer connected")
	errNotRecording = errors.New("microphone is not recording")
)

// Remote is the microphone and speaker of the connected renderer. Audio
// chunks arrive over the live socket; synthesized clips are sent back as
// playback.audio frames and end when the renderer reports playback.ended.
type Remote struct {
	mu      sync.Mutex
	send    func(v any) error
	gen     uint64
	format  types.Audio
	rec     *remoteRecording
	handles map[string]*remoteHandle
}

var (
	_ voice.Microphone = (*Remote)(nil)
	_ voice.Player     = (*Remote)(nil)
)

func NewRemote() *Remote {
	return &Remote{
		format:  types.Audio{MediaType: protocol.DefaultVoiceMediaType},
		handles: make(map[string]*remoteHandle),
	}
}

// Attach routes outgoing frames to send. The returned detach aborts any open
// recording and ends pending playback; it is a no-op once a newer connection
// has attached.
func (r *Remote) Attach(send func(v any) error) (detach func()) {
	r.mu.Lock()
	r.gen++
	gen := r.gen
	r.send = send
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		if r.gen != gen {
			r.mu.Unlock()
			return
		}
		r.send = nil
		r.rec = nil
		handles := r.handles
		r.handles = make(map[string]*remoteHandle)
		r.mu.Unlock()

		for _, h := range handles {
			h.finish(nil)
		}
	}
}

// SetInputFormat declares the format of the chunks that follow.
func (r *Remote) SetInputFormat(mediaType string, sampleRate int) {
	r.mu.Lock()
	r.format = types.Audio{MediaType: mediaType, SampleRate: sampleRate}
	r.mu.Unlock()
}

// Write appends a microphone chunk to the open recording.
func (r *Remote) Write(chunk []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rec == nil {
		return errNotRecording
	}
	r.rec.buf = append(r.rec.buf, chunk...)
	return nil
}

// Ended marks a clip as finished. A non-empty errMsg reports a renderer-side
// playback failure.
func (r *Remote) Ended(playbackID, errMsg string) {
	r.mu.Lock()
	h := r.handles[playbackID]
	delete(r.handles, playbackID)
	r.mu.Unlock()
	if h == nil {
		return
	}
	var err error
	if errMsg != "" {
		err = errors.New(errMsg)
	}
	h.finish(err)
}

// Open implements voice.Microphone.
func (r *Remote) Open(context.Context) (voice.Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.send == nil {
		return nil, errNoRenderer
	}
	rec := &remoteRecording{remote: r, format: r.format}
	r.rec = rec
	return rec, nil
}

// Play implements voice.Player.
func (r *Remote) Play(_ context.Context, audio types.Audio) (voice.PlaybackHandle, error) {
	r.mu.Lock()
	send := r.send
	if send == nil {
		r.mu.Unlock()
		return nil, errNoRenderer
	}
	h := &remoteHandle{id: "pb_" + uuid.NewString(), remote: r, done: make(chan struct{})}
	r.handles[h.id] = h
	r.mu.Unlock()

	err := send(protocol.ServerPlaybackAudio{
		Type:         protocol.TypePlaybackAudio,
		PlaybackID:   h.id,
		MediaType:    audio.MediaType,
		SampleRateHz: audio.SampleRate,
		DataB64:      base64.StdEncoding.EncodeToString(audio.Data),
	})
	if err != nil {
		r.mu.Lock()
		delete(r.handles, h.id)
		r.mu.Unlock()
		return nil, err
	}
	return h, nil
}

func (r *Remote) release(rec *remoteRecording) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rec == rec {
		r.rec = nil
	}
	data := rec.buf
	rec.buf = nil
	return data
}

type remoteRecording struct {
	remote *Remote
	format types.Audio
	buf    []byte
}

func (rec *remoteRecording) Stop() (types.Audio, error) {
	audio := rec.format
	audio.Data = rec.remote.release(rec)
	return audio, nil
}

func (rec *remoteRecording) Abort() error {
	rec.remote.release(rec)
	return nil
}

type remoteHandle struct {
	id     string
	remote *Remote
	done   chan struct{}
	once   sync.Once
	err    error
}

func (h *remoteHandle) finish(err error) bool {
	first := false
	h.once.Do(func() {
		h.err = err
		close(h.done)
		first = true
	})
	return first
}

// Stop tells the renderer to silence the clip.
func (h *remoteHandle) Stop() error {
	h.remote.mu.Lock()
	delete(h.remote.handles, h.id)
	send := h.remote.send
	h.remote.mu.Unlock()

	if !h.finish(nil) || send == nil {
		return nil
	}
	return send(protocol.ServerPlaybackStop{Type: protocol.TypePlaybackStop, PlaybackID: h.id})
}

func (h *remoteHandle) Done() <-chan struct{} { return h.done }

func (h *remoteHandle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}
