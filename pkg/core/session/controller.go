// Package session sequences the turns of one caregiver session: media
// selection, configuration, the conversation log and the single in-flight
// model request.
//
// Every transition runs under the controller's lock. The model call, speech
// playback and every call into the capture and speaker controllers run with the
// lock released, since their change callbacks may read the session back. A
// request is marked in flight before the lock is dropped, so a second request
// sees Busy instead of interleaving with the first.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vango-go/vlearn/pkg/core"
	"github.com/vango-go/vlearn/pkg/core/prompt"
	"github.com/vango-go/vlearn/pkg/core/suggest"
	"github.com/vango-go/vlearn/pkg/core/types"
)

// ResetKind selects how much state Reset clears.
type ResetKind string

const (
	// ClearTurns empties the conversation log.
	ClearTurns ResetKind = "turns"
	// ClearAll also empties the media library and the selection.
	ClearAll ResetKind = "all"
)

// Options configures a Controller. Generator is required.
type Options struct {
	Generator Generator
	Capture   Capture
	Speaker   Speaker
	Persister Persister
	Logger    *slog.Logger

	// SuggestionCount is how many cards a suggestion prompt asks for.
	SuggestionCount int

	// Now overrides the turn clock, for tests.
	Now func() time.Time
}

// Snapshot is a copy of the controller state. Assets carry metadata only.
type Snapshot struct {
	SessionID          string               `json:"session_id"`
	Config             types.SessionConfig  `json:"config"`
	Selected           *types.MediaAsset    `json:"selected,omitempty"`
	Library            []types.MediaAsset   `json:"library"`
	Log                []types.Turn         `json:"log"`
	Cards              []types.ActivityCard `json:"cards,omitempty"`
	GenerationInFlight bool                 `json:"generation_in_flight"`
}

// TurnResult describes a completed RequestTurn.
type TurnResult struct {
	// UserTurn is the user turn appended before the request, if any.
	UserTurn *types.Turn
	// Assistant is the appended reply. Nil on failure or when Stale.
	Assistant *types.Turn
	// Cards holds the parsed activities in suggestion mode.
	Cards []types.ActivityCard
	// Spoken reports that playback of the reply started.
	Spoken bool
	// PlaybackErr is the playback_failed error when speaking the reply failed.
	// The turn itself still succeeded.
	PlaybackErr error
	// Stale means the log was cleared while the request was pending, so the
	// reply was dropped.
	Stale bool
}

// Controller owns the session state.
type Controller struct {
	id          string
	gen         Generator
	capture     Capture
	speaker     Speaker
	persister   Persister
	logger      *slog.Logger
	suggestions int
	clock       *TurnClock

	mu       sync.Mutex
	cfg      types.SessionConfig
	library  []types.MediaAsset
	selected *types.MediaAsset
	log      []types.Turn
	cards    []types.ActivityCard
	inFlight bool
	epoch    uint64
	onChange func(Snapshot)
}

// New creates a controller with the default configuration and an empty library.
func New(opts Options) *Controller {
	c := &Controller{
		id:          uuid.NewString(),
		gen:         opts.Generator,
		capture:     opts.Capture,
		speaker:     opts.Speaker,
		persister:   opts.Persister,
		logger:      opts.Logger,
		suggestions: opts.SuggestionCount,
		clock:       NewTurnClock(opts.Now),
		cfg:         types.DefaultSessionConfig(),
	}
	if c.capture == nil {
		c.capture = noopCapture{}
	}
	if c.speaker == nil {
		c.speaker = noopSpeaker{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.suggestions <= 0 {
		c.suggestions = prompt.DefaultSuggestionCount
	}
	c.logger = c.logger.With("session_id", c.id)
	return c
}

// ID returns the session identifier.
func (c *Controller) ID() string {
	return c.id
}

// OnChange registers a callback invoked with a fresh snapshot after every
// state change.
func (c *Controller) OnChange(fn func(Snapshot)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Config returns the current configuration.
func (c *Controller) Config() types.SessionConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Log returns a copy of the conversation log.
func (c *Controller) Log() []types.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.Turn(nil), c.log...)
}

// Cards returns the cards parsed from the latest suggestion reply.
func (c *Controller) Cards() []types.ActivityCard {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.ActivityCard(nil), c.cards...)
}

// Library returns metadata for every asset in the library.
func (c *Controller) Library() []types.MediaAsset {
	c.mu.Lock()
	defer c.mu.Unlock()
	return metadataOf(c.library)
}

// SetChildAge sets the child's age in years.
func (c *Controller) SetChildAge(age int) error {
	if age <= 0 {
		return core.NewInvalidRequestErrorWithParam("child age must be a positive number of years", "child_age")
	}
	c.mu.Lock()
	c.cfg.ChildAge = age
	snap, notify := c.changedLocked()
	c.mu.Unlock()
	notify(snap)
	return nil
}

// SetFocusArea sets the learning focus.
func (c *Controller) SetFocusArea(focus types.FocusArea) error {
	if !focus.Valid() {
		return core.NewInvalidRequestErrorWithParam(fmt.Sprintf("unknown focus area %q", focus), "focus_area")
	}
	c.mu.Lock()
	c.cfg.FocusArea = focus
	snap, notify := c.changedLocked()
	c.mu.Unlock()
	notify(snap)
	return nil
}

// SetMode switches between conversation and suggestion mode. It always clears
// the log, cancels voice capture and stops playback. Suggestion mode forces the
// text channel.
func (c *Controller) SetMode(ctx context.Context, mode types.Mode) error {
	if mode != types.ModeConversation && mode != types.ModeSuggestion {
		return core.NewInvalidRequestErrorWithParam(fmt.Sprintf("unknown mode %q", mode), "mode")
	}
	c.mu.Lock()
	c.cfg.Mode = mode
	if mode == types.ModeSuggestion {
		c.cfg.Channel = types.ChannelText
	}
	c.clearTurnsLocked(ctx)
	snap, notify := c.changedLocked()
	c.mu.Unlock()
	c.haltVoice()

	c.logger.Debug("mode set", "mode", mode)
	notify(snap)
	return nil
}

// SetChannel switches between text and voice. It always clears the log, cancels
// voice capture and stops playback. Voice is only offered in conversation mode.
func (c *Controller) SetChannel(ctx context.Context, channel types.Channel) error {
	if channel != types.ChannelText && channel != types.ChannelVoice {
		return core.NewInvalidRequestErrorWithParam(fmt.Sprintf("unknown channel %q", channel), "channel")
	}
	c.mu.Lock()
	if channel == types.ChannelVoice && c.cfg.Mode == types.ModeSuggestion {
		c.mu.Unlock()
		return core.NewInvalidRequestErrorWithParam("voice is only available in conversation mode", "channel")
	}
	c.cfg.Channel = channel
	c.clearTurnsLocked(ctx)
	snap, notify := c.changedLocked()
	c.mu.Unlock()
	c.haltVoice()

	c.logger.Debug("channel set", "channel", channel)
	notify(snap)
	return nil
}

// AddMedia adds an image to the library, replacing any asset with the same ID.
func (c *Controller) AddMedia(ctx context.Context, asset types.MediaAsset) error {
	if asset.ID == "" {
		return core.NewInvalidRequestErrorWithParam("media id is required", "id")
	}
	if !types.IsImageType(asset.MimeType) {
		return core.NewInvalidRequestErrorWithParam(fmt.Sprintf("unsupported media type %q; only images are accepted", asset.MimeType), "type")
	}
	c.mu.Lock()
	replaced := false
	for i := range c.library {
		if c.library[i].ID == asset.ID {
			c.library[i] = asset
			replaced = true
			break
		}
	}
	if !replaced {
		c.library = append(c.library, asset)
	}
	if c.selected != nil && c.selected.ID == asset.ID {
		sel := asset
		c.selected = &sel
	}
	c.saveMediaLocked(ctx)
	snap, notify := c.changedLocked()
	c.mu.Unlock()
	notify(snap)
	return nil
}

// AttachContent gives a metadata-only asset its bytes back so it can be selected.
func (c *Controller) AttachContent(ctx context.Context, id string, content types.ContentHandle) error {
	if content == nil {
		return core.NewInvalidRequestErrorWithParam("content is required", "content")
	}
	c.mu.Lock()
	i := c.indexLocked(id)
	if i < 0 {
		c.mu.Unlock()
		return core.NewNotFoundError(fmt.Sprintf("media %q not found", id))
	}
	c.library[i].Content = content
	snap, notify := c.changedLocked()
	c.mu.Unlock()
	notify(snap)
	return nil
}

// RemoveMedia drops an asset from the library. Removing the selected asset
// clears the selection and the log.
func (c *Controller) RemoveMedia(ctx context.Context, id string) error {
	c.mu.Lock()
	i := c.indexLocked(id)
	if i < 0 {
		c.mu.Unlock()
		return core.NewNotFoundError(fmt.Sprintf("media %q not found", id))
	}
	c.library = append(c.library[:i:i], c.library[i+1:]...)
	if c.selected != nil && c.selected.ID == id {
		c.selected = nil
		c.clearTurnsLocked(ctx)
	}
	c.saveMediaLocked(ctx)
	snap, notify := c.changedLocked()
	c.mu.Unlock()
	notify(snap)
	return nil
}

// SelectMedia selects a library asset and clears the log. An asset restored
// from metadata only fails with content_unavailable and the selection stays as
// it was.
func (c *Controller) SelectMedia(ctx context.Context, id string) error {
	c.mu.Lock()
	i := c.indexLocked(id)
	if i < 0 {
		c.mu.Unlock()
		return core.NewNotFoundError(fmt.Sprintf("media %q not found", id))
	}
	asset := c.library[i]
	if asset.NeedsContent() {
		c.mu.Unlock()
		return core.NewContentUnavailableError(id)
	}
	c.selected = &asset
	c.clearTurnsLocked(ctx)
	snap, notify := c.changedLocked()
	c.mu.Unlock()

	c.logger.Debug("media selected", "media_id", id)
	notify(snap)
	return nil
}

// Reset clears the log (ClearTurns) or everything including the library
// (ClearAll). ClearAll also cancels voice capture and stops playback.
func (c *Controller) Reset(ctx context.Context, kind ResetKind) error {
	if kind != ClearTurns && kind != ClearAll {
		return core.NewInvalidRequestErrorWithParam(fmt.Sprintf("unknown reset kind %q", kind), "kind")
	}
	c.mu.Lock()
	c.clearTurnsLocked(ctx)
	if kind == ClearAll {
		c.library = nil
		c.selected = nil
		if c.persister != nil {
			if err := c.persister.DeleteMedia(ctx); err != nil {
				c.logger.Warn("delete saved media", "error", err)
			}
		}
	}
	snap, notify := c.changedLocked()
	c.mu.Unlock()
	if kind == ClearAll {
		c.haltVoice()
	}

	c.logger.Debug("session reset", "kind", kind)
	notify(snap)
	return nil
}

// Restore loads the saved log and media metadata. Restored assets have no
// content and cannot be selected until AttachContent.
func (c *Controller) Restore(ctx context.Context) error {
	if c.persister == nil {
		return nil
	}
	turns, err := c.persister.LoadConversation(ctx)
	if err != nil {
		return fmt.Errorf("load conversation: %w", err)
	}
	assets, err := c.persister.LoadMedia(ctx)
	if err != nil {
		return fmt.Errorf("load media: %w", err)
	}

	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return core.NewBusyError("cannot restore while a response is being generated")
	}
	c.epoch++
	c.log = turns
	c.cards = nil
	for _, t := range turns {
		c.clock.Observe(t.ID)
	}
	c.library = metadataOf(assets)
	c.selected = nil
	snap, notify := c.changedLocked()
	c.mu.Unlock()

	c.logger.Info("session restored", "turns", len(turns), "media", len(assets))
	notify(snap)
	return nil
}

// RequestTurn asks the model for the next reply. userText may be empty (the
// opening turn or a plain "generate" in suggestion mode).
//
// It fails with busy while another request is pending and with
// precondition_not_met when no content-bearing asset is selected or the age or
// focus is missing; neither touches the log. A non-empty userText is appended
// as a user turn before the request when the log already has turns. A failed
// or empty reply surfaces generation_failed without adding an assistant turn.
func (c *Controller) RequestTurn(ctx context.Context, userText string) (TurnResult, error) {
	c.mu.Lock()
	if err := c.checkLocked(); err != nil {
		c.mu.Unlock()
		return TurnResult{}, err
	}
	return c.runTurnLocked(ctx, strings.TrimSpace(userText))
}

// SendStagedTranscript sends the staged voice transcript as the next turn. The
// transcript is consumed only after the busy and precondition checks pass, so
// a rejected send leaves it staged. The session is held busy while the
// transcript is consumed; if the session changed meanwhile so that the send can
// no longer proceed, the transcript is staged again.
func (c *Controller) SendStagedTranscript(ctx context.Context) (TurnResult, error) {
	c.mu.Lock()
	if err := c.checkLocked(); err != nil {
		c.mu.Unlock()
		return TurnResult{}, err
	}
	c.inFlight = true
	c.mu.Unlock()

	text, ok := c.capture.Consume()

	c.mu.Lock()
	c.inFlight = false
	if !ok {
		c.mu.Unlock()
		return TurnResult{}, core.NewPreconditionError("no staged transcript to send", "transcript")
	}
	if err := c.checkLocked(); err != nil {
		snap, notify := c.changedLocked()
		c.mu.Unlock()
		if !c.capture.Restage(text) {
			c.logger.Debug("dropping transcript; a new capture has started")
		}
		notify(snap)
		return TurnResult{}, err
	}
	return c.runTurnLocked(ctx, strings.TrimSpace(text))
}

func (c *Controller) checkLocked() error {
	if c.inFlight {
		return core.NewBusyError("a response is already being generated")
	}
	if c.selected == nil {
		return core.NewPreconditionError("select an image first", "media")
	}
	if c.selected.NeedsContent() {
		return core.NewPreconditionError(fmt.Sprintf("selected image %q has no content; upload it again", c.selected.ID), "media")
	}
	if c.cfg.ChildAge <= 0 {
		return core.NewPreconditionError("child age is required", "child_age")
	}
	if !c.cfg.FocusArea.Valid() {
		return core.NewPreconditionError("focus area is required", "focus_area")
	}
	return nil
}

// runTurnLocked is entered with c.mu held and returns with it released.
func (c *Controller) runTurnLocked(ctx context.Context, userText string) (TurnResult, error) {
	var result TurnResult
	cfg := c.cfg
	media := *c.selected
	history := len(c.log)
	p := prompt.Build(cfg, c.log, userText, c.suggestions)

	if userText != "" && len(c.log) > 0 {
		turn := c.newTurnLocked(types.RoleUser, userText)
		result.UserTurn = &turn
	}
	c.inFlight = true
	epoch := c.epoch
	c.saveConversationLocked(ctx)
	snap, notify := c.changedLocked()
	c.mu.Unlock()
	notify(snap)

	c.logger.Debug("requesting turn", "mode", cfg.Mode, "channel", cfg.Channel, "history", history)
	text, err := c.gen.Generate(ctx, p, media)
	text = strings.TrimSpace(text)
	c.capture.ClearStaged()

	c.mu.Lock()
	c.inFlight = false

	if c.epoch != epoch {
		result.Stale = true
		snap, notify = c.changedLocked()
		c.mu.Unlock()
		c.logger.Debug("dropping reply for a cleared conversation")
		notify(snap)
		return result, nil
	}

	if err != nil || text == "" {
		snap, notify = c.changedLocked()
		c.mu.Unlock()
		gerr := core.NewGenerationError(err)
		c.logger.Warn("generation failed", "error", gerr)
		notify(snap)
		return result, gerr
	}

	turn := c.newTurnLocked(types.RoleAssistant, text)
	result.Assistant = &turn
	if cfg.Mode == types.ModeSuggestion {
		c.cards = suggest.Parse(text)
		result.Cards = append([]types.ActivityCard(nil), c.cards...)
	}
	speak := c.cfg.Mode == types.ModeConversation && c.cfg.Channel == types.ChannelVoice
	c.saveConversationLocked(ctx)
	snap, notify = c.changedLocked()
	c.mu.Unlock()
	notify(snap)

	if speak {
		if err := c.speaker.Speak(context.WithoutCancel(ctx), text); err != nil {
			result.PlaybackErr = err
			c.logger.Warn("speaking reply failed", "error", err)
		} else {
			result.Spoken = true
		}
	}
	return result, nil
}

func (c *Controller) newTurnLocked(role types.Role, text string) types.Turn {
	id, now := c.clock.Next()
	turn := types.Turn{ID: id, Role: role, Text: text, CreatedAt: now}
	c.log = append(c.log, turn)
	return turn
}

// clearTurnsLocked empties the log and invalidates any pending reply.
func (c *Controller) clearTurnsLocked(ctx context.Context) {
	c.epoch++
	c.log = nil
	c.cards = nil
	if c.persister != nil {
		if err := c.persister.DeleteConversation(ctx); err != nil {
			c.logger.Warn("delete saved conversation", "error", err)
		}
	}
}

// haltVoice cancels capture and stops playback. It must run without c.mu held.
func (c *Controller) haltVoice() {
	c.capture.Cancel()
	c.speaker.Stop()
}

func (c *Controller) saveConversationLocked(ctx context.Context) {
	if c.persister == nil || len(c.log) == 0 {
		return
	}
	if err := c.persister.SaveConversation(ctx, c.log); err != nil {
		c.logger.Warn("save conversation", "error", err)
	}
}

func (c *Controller) saveMediaLocked(ctx context.Context) {
	if c.persister == nil {
		return
	}
	if err := c.persister.SaveMedia(ctx, metadataOf(c.library)); err != nil {
		c.logger.Warn("save media", "error", err)
	}
}

func (c *Controller) indexLocked(id string) int {
	for i := range c.library {
		if c.library[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		SessionID:          c.id,
		Config:             c.cfg,
		Library:            metadataOf(c.library),
		Log:                append([]types.Turn(nil), c.log...),
		Cards:              append([]types.ActivityCard(nil), c.cards...),
		GenerationInFlight: c.inFlight,
	}
	if c.selected != nil {
		sel := c.selected.Metadata()
		snap.Selected = &sel
	}
	return snap
}

func (c *Controller) changedLocked() (Snapshot, func(Snapshot)) {
	fn := c.onChange
	if fn == nil {
		return Snapshot{}, func(Snapshot) {}
	}
	return c.snapshotLocked(), fn
}

func metadataOf(assets []types.MediaAsset) []types.MediaAsset {
	out := make([]types.MediaAsset, len(assets))
	for i, a := range assets {
		out[i] = a.Metadata()
	}
	return out
}
