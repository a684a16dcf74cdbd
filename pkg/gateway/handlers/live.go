package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vango-go/vlearn/pkg/core"
	"github.com/vango-go/vlearn/pkg/core/prompt"
	"github.com/vango-go/vlearn/pkg/core/session"
	"github.com/vango-go/vlearn/pkg/core/types"
	"github.com/vango-go/vlearn/pkg/core/voice"
	"github.com/vango-go/vlearn/pkg/gateway/apierror"
	"github.com/vango-go/vlearn/pkg/gateway/config"
	"github.com/vango-go/vlearn/pkg/gateway/live/protocol"
	"github.com/vango-go/vlearn/pkg/gateway/live/sessions"
	"github.com/vango-go/vlearn/pkg/gateway/metrics"
	"github.com/vango-go/vlearn/pkg/gateway/mw"
)

var errConnClosed = errors.New("live connection closed")

// LiveOptions configures a LiveHandler. Capture and Playback are nil when
// voice is not configured.
type LiveOptions struct {
	Config   config.Config
	Logger   *slog.Logger
	Session  *session.Controller
	Capture  *voice.CaptureController
	Playback *voice.PlaybackController
	Remote   *Remote
	Sessions *sessions.Tracker
	Metrics  *metrics.Metrics
	Draining func() bool
}

// LiveHandler serves /v1/live: one renderer drives the session over a
// WebSocket and receives a state frame after every change.
type LiveHandler struct {
	opts LiveOptions

	mu      sync.Mutex
	current *liveConn
}

// NewLiveHandler subscribes to the controllers' change notifications.
func NewLiveHandler(opts LiveOptions) *LiveHandler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Remote == nil {
		opts.Remote = NewRemote()
	}
	h := &LiveHandler{opts: opts}
	opts.Session.OnChange(func(session.Snapshot) { h.broadcast() })
	if opts.Capture != nil {
		opts.Capture.OnChange(func(voice.CaptureSnapshot) { h.broadcast() })
	}
	if opts.Playback != nil {
		opts.Playback.OnChange(func(bool) { h.broadcast() })
	}
	return h
}

func (h *LiveHandler) voiceEnabled() bool {
	return h.opts.Capture != nil && h.opts.Playback != nil
}

func (h *LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	if h.opts.Draining != nil && h.opts.Draining() {
		apierror.WriteError(w, http.StatusServiceUnavailable, &core.Error{Type: core.ErrAPI, Message: "gateway is draining", RequestID: reqID})
		return
	}
	if !h.originAllowed(r) {
		apierror.WriteError(w, http.StatusForbidden, &core.Error{Type: core.ErrPermissionDenied, Message: "origin is not allowed", Param: "Origin", RequestID: reqID})
		return
	}

	upgrader := websocket.Upgrader{
		HandshakeTimeout: h.opts.Config.WSHandshakeTimeout,
		CheckOrigin:      func(*http.Request) bool { return true },
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()
	if h.opts.Config.WSMaxMessageBytes > 0 {
		ws.SetReadLimit(h.opts.Config.WSMaxMessageBytes)
	}
	_ = ws.SetReadDeadline(time.Now().Add(h.readWindow()))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.readWindow()))
	})

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	lc := &liveConn{
		id:           "live_" + uuid.NewString(),
		ws:           ws,
		writeTimeout: h.opts.Config.WSWriteTimeout,
	}
	if lc.writeTimeout <= 0 {
		lc.writeTimeout = 5 * time.Second
	}
	logger := h.opts.Logger.With("conn_id", lc.id, "request_id", reqID)

	unregister := h.opts.Sessions.Register(lc.id, sessions.Handle{
		Cancel: cancel,
		Warn: func(code, message string) error {
			return lc.writeJSON(protocol.ServerWarning{Type: protocol.TypeWarning, Code: code, Message: message})
		},
	})
	defer unregister()
	defer h.opts.Metrics.LiveOpened()()

	h.mu.Lock()
	h.current = lc
	h.mu.Unlock()
	detachRemote := h.opts.Remote.Attach(lc.writeJSON)

	logger.Info("live renderer connected")
	_ = lc.sendState(h.state)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.keepAlive(ctx, lc)
	}()

	h.readLoop(ctx, lc, &wg, logger)
	cancel()
	wg.Wait()

	h.mu.Lock()
	wasCurrent := h.current == lc
	if wasCurrent {
		h.current = nil
	}
	h.mu.Unlock()
	detachRemote()
	if wasCurrent && h.voiceEnabled() {
		h.opts.Capture.Cancel()
		h.opts.Playback.Stop()
	}
	logger.Info("live renderer disconnected")
}

func (h *LiveHandler) pingInterval() time.Duration {
	if h.opts.Config.WSPingInterval <= 0 {
		return 20 * time.Second
	}
	return h.opts.Config.WSPingInterval
}

// readWindow is how long the socket may stay silent, pongs included, before
// the renderer is considered gone.
func (h *LiveHandler) readWindow() time.Duration {
	return 3 * h.pingInterval()
}

func (h *LiveHandler) keepAlive(ctx context.Context, lc *liveConn) {
	ticker := time.NewTicker(h.pingInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			lc.close(websocket.CloseNormalClosure, "")
			return
		case <-ticker.C:
			if err := lc.ping(); err != nil {
				lc.close(websocket.CloseGoingAway, "")
				return
			}
		}
	}
}

func (h *LiveHandler) readLoop(ctx context.Context, lc *liveConn, wg *sync.WaitGroup, logger *slog.Logger) {
	for {
		messageType, data, err := lc.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && ctx.Err() == nil {
				logger.Debug("live read failed", "error", err)
			}
			return
		}
		_ = lc.ws.SetReadDeadline(time.Now().Add(h.readWindow()))
		if messageType == websocket.BinaryMessage {
			if err := h.opts.Remote.Write(data); err != nil {
				_ = lc.writeJSON(protocol.ErrorFrame(protocol.TypeVoiceAudio, core.NewPreconditionError(err.Error(), "voice")))
			}
			continue
		}

		msg, err := protocol.DecodeClientMessage(data)
		if err != nil {
			_ = lc.writeJSON(protocol.ErrorFrame("", err))
			continue
		}
		if typ, err := h.dispatch(ctx, lc, wg, msg); err != nil {
			logger.Debug("live request failed", "type", typ, "error", err)
			_ = lc.writeJSON(protocol.ErrorFrame(typ, err))
		}
	}
}

// dispatch applies one client frame. Turn requests and transcription run in
// their own goroutines so the read loop keeps serving cancels and audio.
func (h *LiveHandler) dispatch(ctx context.Context, lc *liveConn, wg *sync.WaitGroup, msg any) (string, error) {
	s := h.opts.Session
	switch m := msg.(type) {
	case protocol.SessionConfigure:
		if m.ChildAge != nil {
			if err := s.SetChildAge(*m.ChildAge); err != nil {
				return m.Type, err
			}
		}
		if m.FocusArea != "" {
			return m.Type, s.SetFocusArea(m.FocusArea)
		}
		return m.Type, nil
	case protocol.MediaSelect:
		return m.Type, s.SelectMedia(ctx, m.MediaID)
	case protocol.ModeSet:
		return m.Type, s.SetMode(ctx, m.Mode)
	case protocol.ChannelSet:
		if m.Channel == types.ChannelVoice && !h.voiceEnabled() {
			return m.Type, core.NewPreconditionError("voice is not configured on this gateway", "channel")
		}
		return m.Type, s.SetChannel(ctx, m.Channel)
	case protocol.TurnRequest:
		h.goTurn(ctx, lc, wg, m.Type, func(ctx context.Context) (session.TurnResult, error) {
			return s.RequestTurn(ctx, m.Text)
		})
		return m.Type, nil
	case protocol.VoiceStart:
		if !h.voiceEnabled() {
			return m.Type, core.NewPreconditionError("voice is not configured on this gateway", "voice")
		}
		h.opts.Remote.SetInputFormat(m.MediaType, m.SampleRateHz)
		return m.Type, h.opts.Capture.Start(ctx)
	case protocol.VoiceAudio:
		if err := h.opts.Remote.Write(m.Data); err != nil {
			return m.Type, core.NewPreconditionError(err.Error(), "voice")
		}
		return m.Type, nil
	case protocol.Command:
		return m.Type, h.command(ctx, lc, wg, m.Type)
	case protocol.PlaybackEnded:
		h.opts.Remote.Ended(m.PlaybackID, m.Error)
		return m.Type, nil
	case protocol.SessionReset:
		return m.Type, s.Reset(ctx, m.Scope)
	default:
		return "", core.NewInvalidRequestError("unsupported message")
	}
}

func (h *LiveHandler) command(ctx context.Context, lc *liveConn, wg *sync.WaitGroup, typ string) error {
	if typ == protocol.TypeVoiceSend {
		h.goTurn(ctx, lc, wg, typ, h.opts.Session.SendStagedTranscript)
		return nil
	}
	if !h.voiceEnabled() {
		return core.NewPreconditionError("voice is not configured on this gateway", "voice")
	}
	switch typ {
	case protocol.TypeVoiceStop:
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.opts.Capture.Stop(ctx); err != nil {
				_ = lc.writeJSON(protocol.ErrorFrame(typ, err))
			}
		}()
	case protocol.TypeVoiceCancel:
		h.opts.Capture.Cancel()
	case protocol.TypeVoiceAcknowledge:
		h.opts.Capture.Acknowledge()
	case protocol.TypePlaybackStop:
		h.opts.Playback.Stop()
	}
	return nil
}

func (h *LiveHandler) goTurn(ctx context.Context, lc *liveConn, wg *sync.WaitGroup, typ string, fn func(context.Context) (session.TurnResult, error)) {
	mode := string(h.opts.Session.Config().Mode)
	wg.Add(1)
	go func() {
		defer wg.Done()
		res, err := fn(ctx)
		h.opts.Metrics.ObserveTurn(mode, turnOutcome(res, err))
		if err != nil {
			_ = lc.writeJSON(protocol.ErrorFrame(typ, err))
			return
		}
		_ = lc.writeJSON(protocol.TurnCompleted(res))
	}()
}

func turnOutcome(res session.TurnResult, err error) string {
	switch {
	case err == nil && res.Stale:
		return metrics.OutcomeStale
	case err == nil:
		return metrics.OutcomeOK
	case core.IsType(err, core.ErrBusy), core.IsType(err, core.ErrPreconditionNotMet), core.IsType(err, core.ErrContentUnavailable):
		return metrics.OutcomeReject
	default:
		return metrics.OutcomeError
	}
}

func (h *LiveHandler) broadcast() {
	h.mu.Lock()
	lc := h.current
	h.mu.Unlock()
	if lc != nil {
		_ = lc.sendState(h.state)
	}
}

func (h *LiveHandler) state() protocol.ServerState {
	snap := h.opts.Session.Snapshot()
	st := protocol.ServerState{
		Type:     protocol.TypeState,
		Session:  snap,
		Capture:  protocol.CaptureState{State: voice.CaptureIdle},
		Starters: prompt.Starters(snap.Config.Channel),
	}
	if h.opts.Capture != nil {
		cs := h.opts.Capture.Snapshot()
		st.Capture.State = cs.State
		st.Capture.Transcript = cs.Transcript
		if cs.Err != nil {
			body := protocol.ErrorBodyFrom(cs.Err)
			st.Capture.Error = &body
		}
	}
	if h.opts.Playback != nil {
		st.Speaking = h.opts.Playback.IsSpeaking()
	}
	return st
}

func (h *LiveHandler) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	if mw.OriginAllowed(h.opts.Config, origin) {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, r.Host)
}

// liveConn serializes writes to one WebSocket.
type liveConn struct {
	id           string
	ws           *websocket.Conn
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

func (c *liveConn) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeLocked(data)
}

// sendState builds the frame under the write lock so frames leave in the
// order their snapshots were taken.
func (c *liveConn) sendState(build func() protocol.ServerState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := json.Marshal(build())
	if err != nil {
		return err
	}
	return c.writeLocked(data)
}

func (c *liveConn) writeLocked(data []byte) error {
	if c.closed {
		return errConnClosed
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *liveConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnClosed
	}
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
}

func (c *liveConn) close(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(c.writeTimeout))
	_ = c.ws.Close()
}
