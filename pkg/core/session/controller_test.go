package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vango-go/vlearn/pkg/core"
	"github.com/vango-go/vlearn/pkg/core/types"
	"github.com/vango-go/vlearn/pkg/core/voice"
)

type fakeGenerator struct {
	mu        sync.Mutex
	responses []string
	err       error
	prompts   []string
	media     []types.MediaAsset

	entered chan struct{}
	release chan struct{}
}

func (g *fakeGenerator) Generate(_ context.Context, prompt string, media types.MediaAsset) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.media = append(g.media, media)
	var text string
	if len(g.responses) > 0 {
		text = g.responses[0]
		g.responses = g.responses[1:]
	}
	entered, release := g.entered, g.release
	g.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if release != nil {
		<-release
	}
	return text, g.err
}

func (g *fakeGenerator) lastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.prompts) == 0 {
		return ""
	}
	return g.prompts[len(g.prompts)-1]
}

type fakeCapture struct {
	staged   string
	has      bool
	cancels  int
	clears   int
	consumes int
	restages int
}

func (f *fakeCapture) Consume() (string, bool) {
	f.consumes++
	if !f.has {
		return "", false
	}
	f.has = false
	return f.staged, true
}

func (f *fakeCapture) Restage(text string) bool {
	f.restages++
	f.staged, f.has = text, true
	return true
}

func (f *fakeCapture) ClearStaged() {
	f.clears++
	f.has = false
}

func (f *fakeCapture) Cancel() {
	f.cancels++
	f.has = false
}

type fakeSpeaker struct {
	spoken []string
	stops  int
	err    error
}

func (f *fakeSpeaker) Speak(_ context.Context, text string) error {
	f.spoken = append(f.spoken, text)
	return f.err
}

func (f *fakeSpeaker) Stop() { f.stops++ }

type memPersister struct {
	log         []types.Turn
	media       []types.MediaAsset
	deletedLog  int
	deletedMeda int
}

func (m *memPersister) SaveConversation(_ context.Context, log []types.Turn) error {
	m.log = append([]types.Turn(nil), log...)
	return nil
}
func (m *memPersister) LoadConversation(context.Context) ([]types.Turn, error) { return m.log, nil }
func (m *memPersister) DeleteConversation(context.Context) error {
	m.deletedLog++
	m.log = nil
	return nil
}
func (m *memPersister) SaveMedia(_ context.Context, assets []types.MediaAsset) error {
	m.media = append([]types.MediaAsset(nil), assets...)
	return nil
}
func (m *memPersister) LoadMedia(context.Context) ([]types.MediaAsset, error) { return m.media, nil }
func (m *memPersister) DeleteMedia(context.Context) error {
	m.deletedMeda++
	m.media = nil
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func testAsset(id string) types.MediaAsset {
	return types.MediaAsset{
		ID:          id,
		DisplayName: id,
		MimeType:    "image/png",
		ByteSize:    3,
		Content:     types.BytesContent("png"),
	}
}

// newReady returns a controller with an image selected, age 5 and focus STEM.
func newReady(t *testing.T, opts Options) *Controller {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = testLogger()
	}
	c := New(opts)
	ctx := context.Background()
	if err := c.AddMedia(ctx, testAsset("shapes.png_1")); err != nil {
		t.Fatalf("AddMedia() error = %v", err)
	}
	if err := c.SelectMedia(ctx, "shapes.png_1"); err != nil {
		t.Fatalf("SelectMedia() error = %v", err)
	}
	if err := c.SetChildAge(5); err != nil {
		t.Fatalf("SetChildAge() error = %v", err)
	}
	if err := c.SetFocusArea(types.FocusSTEM); err != nil {
		t.Fatalf("SetFocusArea() error = %v", err)
	}
	return c
}

func frozenClock() func() time.Time {
	t0 := time.UnixMilli(1_700_000_000_000)
	return func() time.Time { return t0 }
}

func TestRequestTurn_EndToEnd(t *testing.T) {
	gen := &fakeGenerator{responses: []string{"Let's count the shapes!", "Three is right! What colors are they?"}}
	c := newReady(t, Options{Generator: gen, Now: frozenClock()})
	ctx := context.Background()

	res, err := c.RequestTurn(ctx, "")
	if err != nil {
		t.Fatalf("RequestTurn() error = %v", err)
	}
	if res.UserTurn != nil || res.Assistant == nil {
		t.Fatalf("RequestTurn() = %+v, want assistant turn only", res)
	}
	if !strings.HasPrefix(gen.lastPrompt(), "Begin a conversation") {
		t.Fatalf("first prompt = %q, want opening prompt", gen.lastPrompt())
	}
	log := c.Log()
	if len(log) != 1 || log[0].Role != types.RoleAssistant || log[0].Text != "Let's count the shapes!" {
		t.Fatalf("log = %+v", log)
	}

	if _, err := c.RequestTurn(ctx, "I see three"); err != nil {
		t.Fatalf("RequestTurn() error = %v", err)
	}
	log = c.Log()
	wantRoles := []types.Role{types.RoleAssistant, types.RoleUser, types.RoleAssistant}
	wantTexts := []string{"Let's count the shapes!", "I see three", "Three is right! What colors are they?"}
	if len(log) != 3 {
		t.Fatalf("len(log) = %d, want 3", len(log))
	}
	for i := range log {
		if log[i].Role != wantRoles[i] || log[i].Text != wantTexts[i] {
			t.Fatalf("log[%d] = %+v, want %s %q", i, log[i], wantRoles[i], wantTexts[i])
		}
		if i > 0 && log[i].ID <= log[i-1].ID {
			t.Fatalf("turn ids not increasing: %d then %d", log[i-1].ID, log[i].ID)
		}
	}

	p := gen.lastPrompt()
	if !strings.Contains(p, "Previous conversation:\nAssistant: Let's count the shapes!\n\n") {
		t.Fatalf("continuation prompt = %q", p)
	}
	if !strings.Contains(p, `Child's latest response: "I see three"`) {
		t.Fatalf("continuation prompt missing latest response: %q", p)
	}
	if c.Snapshot().GenerationInFlight {
		t.Fatal("GenerationInFlight = true after completion")
	}
}

func TestRequestTurn_BusyWhileInFlight(t *testing.T) {
	gen := &fakeGenerator{
		responses: []string{"Hello!"},
		entered:   make(chan struct{}, 1),
		release:   make(chan struct{}),
	}
	c := newReady(t, Options{Generator: gen})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := c.RequestTurn(ctx, "")
		done <- err
	}()
	<-gen.entered

	if !c.Snapshot().GenerationInFlight {
		t.Fatal("GenerationInFlight = false during request")
	}
	before := c.Log()
	_, err := c.RequestTurn(ctx, "hello?")
	if !core.IsType(err, core.ErrBusy) {
		t.Fatalf("RequestTurn() error = %v, want %s", err, core.ErrBusy)
	}
	if got := c.Log(); len(got) != len(before) {
		t.Fatalf("log changed by rejected request: %+v", got)
	}

	close(gen.release)
	if err := <-done; err != nil {
		t.Fatalf("first RequestTurn() error = %v", err)
	}
	if c.Snapshot().GenerationInFlight {
		t.Fatal("GenerationInFlight = true after completion")
	}
}

func TestRequestTurn_Preconditions(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{responses: []string{"never"}}

	c := New(Options{Generator: gen, Logger: testLogger()})
	if _, err := c.RequestTurn(ctx, ""); !core.IsType(err, core.ErrPreconditionNotMet) {
		t.Fatalf("no media: error = %v, want %s", err, core.ErrPreconditionNotMet)
	}

	_ = c.AddMedia(ctx, testAsset("a.png_1"))
	_ = c.SelectMedia(ctx, "a.png_1")
	if _, err := c.RequestTurn(ctx, ""); !core.IsType(err, core.ErrPreconditionNotMet) {
		t.Fatalf("no age: error = %v, want %s", err, core.ErrPreconditionNotMet)
	}

	_ = c.SetChildAge(4)
	if _, err := c.RequestTurn(ctx, ""); !core.IsType(err, core.ErrPreconditionNotMet) {
		t.Fatalf("no focus: error = %v, want %s", err, core.ErrPreconditionNotMet)
	}

	if len(gen.prompts) != 0 {
		t.Fatalf("generator called %d times, want 0", len(gen.prompts))
	}
	if len(c.Log()) != 0 {
		t.Fatalf("log = %+v, want empty", c.Log())
	}
}

func TestSelectMedia_NeedsContent(t *testing.T) {
	ctx := context.Background()
	c := newReady(t, Options{Generator: &fakeGenerator{}})
	_ = c.AddMedia(ctx, testAsset("restored.png_2").Metadata())

	err := c.SelectMedia(ctx, "restored.png_2")
	if !core.IsType(err, core.ErrContentUnavailable) {
		t.Fatalf("SelectMedia() error = %v, want %s", err, core.ErrContentUnavailable)
	}
	if sel := c.Snapshot().Selected; sel == nil || sel.ID != "shapes.png_1" {
		t.Fatalf("Selected = %+v, want shapes.png_1 unchanged", sel)
	}

	if err := c.AttachContent(ctx, "restored.png_2", types.BytesContent("png")); err != nil {
		t.Fatalf("AttachContent() error = %v", err)
	}
	if err := c.SelectMedia(ctx, "restored.png_2"); err != nil {
		t.Fatalf("SelectMedia() after attach error = %v", err)
	}
}

func TestSelectMedia_ClearsLog(t *testing.T) {
	ctx := context.Background()
	c := newReady(t, Options{Generator: &fakeGenerator{responses: []string{"hi"}}})
	_, _ = c.RequestTurn(ctx, "")
	_ = c.AddMedia(ctx, testAsset("b.png_3"))

	if err := c.SelectMedia(ctx, "b.png_3"); err != nil {
		t.Fatalf("SelectMedia() error = %v", err)
	}
	if len(c.Log()) != 0 {
		t.Fatalf("log = %+v, want empty", c.Log())
	}
	if err := c.SelectMedia(ctx, "missing"); !core.IsType(err, core.ErrNotFound) {
		t.Fatalf("SelectMedia(missing) error = %v, want %s", err, core.ErrNotFound)
	}
}

func TestAddMedia_RejectsNonImage(t *testing.T) {
	c := New(Options{Generator: &fakeGenerator{}, Logger: testLogger()})
	asset := testAsset("doc.pdf_1")
	asset.MimeType = "application/pdf"
	if err := c.AddMedia(context.Background(), asset); !core.IsType(err, core.ErrInvalidRequest) {
		t.Fatalf("AddMedia() error = %v, want %s", err, core.ErrInvalidRequest)
	}
}

func TestSetModeAndChannel_ResetVoiceAndLog(t *testing.T) {
	ctx := context.Background()
	mic := &stubMic{}
	capture := voice.NewCaptureController(mic, stubTranscriber{}, testLogger())
	player := &stubPlayer{}
	playback := voice.NewPlaybackController(stubSynth{}, player, testLogger())

	gen := &fakeGenerator{responses: []string{"one", "two", "three"}}
	c := newReady(t, Options{Generator: gen, Capture: capture, Speaker: playback})

	steps := []struct {
		name string
		run  func() error
	}{
		{"SetChannel(voice)", func() error { return c.SetChannel(ctx, types.ChannelVoice) }},
		{"SetChannel(text)", func() error { return c.SetChannel(ctx, types.ChannelText) }},
		{"SetMode(conversation)", func() error { return c.SetMode(ctx, types.ModeConversation) }},
	}
	for _, step := range steps {
		_ = c.SetChannel(ctx, types.ChannelVoice)
		if _, err := c.RequestTurn(ctx, ""); err != nil {
			t.Fatalf("%s: RequestTurn() error = %v", step.name, err)
		}
		if !playback.IsSpeaking() {
			t.Fatalf("%s: reply was not spoken", step.name)
		}
		if err := capture.Start(ctx); err != nil {
			t.Fatalf("%s: Start() error = %v", step.name, err)
		}

		if err := step.run(); err != nil {
			t.Fatalf("%s error = %v", step.name, err)
		}
		if len(c.Log()) != 0 {
			t.Fatalf("%s: log = %+v, want empty", step.name, c.Log())
		}
		if got := capture.Snapshot().State; got != voice.CaptureIdle {
			t.Fatalf("%s: capture state = %s, want idle", step.name, got)
		}
		if playback.IsSpeaking() {
			t.Fatalf("%s: still speaking", step.name)
		}
	}
}

func TestSetMode_SuggestionForcesTextAndParsesCards(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{responses: []string{
		"Activity 1: Find Colors\nLook for red and blue things.\nActivity 2: Count Shapes\nCount the circles.",
	}}
	speaker := &fakeSpeaker{}
	c := newReady(t, Options{Generator: gen, Speaker: speaker, SuggestionCount: 2})
	_ = c.SetChannel(ctx, types.ChannelVoice)

	if err := c.SetMode(ctx, types.ModeSuggestion); err != nil {
		t.Fatalf("SetMode() error = %v", err)
	}
	if got := c.Config().Channel; got != types.ChannelText {
		t.Fatalf("Channel = %s, want text", got)
	}
	if err := c.SetChannel(ctx, types.ChannelVoice); !core.IsType(err, core.ErrInvalidRequest) {
		t.Fatalf("SetChannel(voice) in suggestion mode error = %v, want %s", err, core.ErrInvalidRequest)
	}

	res, err := c.RequestTurn(ctx, "")
	if err != nil {
		t.Fatalf("RequestTurn() error = %v", err)
	}
	if !strings.Contains(gen.lastPrompt(), "Create 2 engaging activity suggestions") {
		t.Fatalf("prompt = %q, want suggestion prompt", gen.lastPrompt())
	}
	if len(res.Cards) != 2 || res.Cards[1].Title != "Count Shapes" {
		t.Fatalf("Cards = %+v", res.Cards)
	}
	if got := c.Cards(); len(got) != 2 {
		t.Fatalf("Cards() = %+v", got)
	}
	if len(speaker.spoken) != 0 {
		t.Fatalf("suggestion reply was spoken: %v", speaker.spoken)
	}
}

func TestRequestTurn_GenerationFailureKeepsUserTurn(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{responses: []string{"Hello!"}}
	capture := &fakeCapture{}
	c := newReady(t, Options{Generator: gen, Capture: capture})
	_, _ = c.RequestTurn(ctx, "")

	gen.err = core.NewNetworkError("gemini", errors.New("connection reset"))
	res, err := c.RequestTurn(ctx, "a triangle")
	if !core.IsType(err, core.ErrGenerationFailed) {
		t.Fatalf("RequestTurn() error = %v, want %s", err, core.ErrGenerationFailed)
	}
	if !core.IsType(err, core.ErrNetwork) {
		t.Fatalf("RequestTurn() error = %v, want network cause", err)
	}
	if res.UserTurn == nil || res.Assistant != nil {
		t.Fatalf("RequestTurn() = %+v", res)
	}
	log := c.Log()
	if len(log) != 2 || log[1].Role != types.RoleUser || log[1].Text != "a triangle" {
		t.Fatalf("log = %+v, want trailing user turn", log)
	}
	if c.Snapshot().GenerationInFlight {
		t.Fatal("GenerationInFlight = true after failure")
	}
	if capture.clears != 2 {
		t.Fatalf("staged transcript cleared %d times, want 2", capture.clears)
	}
}

func TestRequestTurn_EmptyReplyFails(t *testing.T) {
	c := newReady(t, Options{Generator: &fakeGenerator{responses: []string{"  "}}})
	_, err := c.RequestTurn(context.Background(), "")
	if !core.IsType(err, core.ErrGenerationFailed) {
		t.Fatalf("RequestTurn() error = %v, want %s", err, core.ErrGenerationFailed)
	}
	if len(c.Log()) != 0 {
		t.Fatalf("log = %+v, want empty", c.Log())
	}
}

func TestRequestTurn_VoiceSpeaksReply(t *testing.T) {
	ctx := context.Background()
	speaker := &fakeSpeaker{}
	c := newReady(t, Options{Generator: &fakeGenerator{responses: []string{"Hi!", "Yes!"}}, Speaker: speaker})
	_ = c.SetChannel(ctx, types.ChannelVoice)

	res, err := c.RequestTurn(ctx, "")
	if err != nil {
		t.Fatalf("RequestTurn() error = %v", err)
	}
	if !res.Spoken || len(speaker.spoken) != 1 || speaker.spoken[0] != "Hi!" {
		t.Fatalf("Spoken = %v, spoken = %v", res.Spoken, speaker.spoken)
	}

	speaker.err = core.NewPlaybackError(core.NewNoAudioContentError("google-tts"))
	res, err = c.RequestTurn(ctx, "hello")
	if err != nil {
		t.Fatalf("RequestTurn() error = %v, want playback failure to be non-fatal", err)
	}
	if res.Spoken || !core.IsType(res.PlaybackErr, core.ErrPlaybackFailed) {
		t.Fatalf("RequestTurn() = %+v, want playback error", res)
	}
	if len(c.Log()) != 3 {
		t.Fatalf("len(log) = %d, want 3", len(c.Log()))
	}
}

func TestRequestTurn_StaleReplyDropped(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{
		responses: []string{"late reply"},
		entered:   make(chan struct{}, 1),
		release:   make(chan struct{}),
	}
	c := newReady(t, Options{Generator: gen})

	type out struct {
		res TurnResult
		err error
	}
	done := make(chan out, 1)
	go func() {
		res, err := c.RequestTurn(ctx, "")
		done <- out{res, err}
	}()
	<-gen.entered

	if err := c.SetMode(ctx, types.ModeConversation); err != nil {
		t.Fatalf("SetMode() error = %v", err)
	}
	close(gen.release)
	got := <-done
	if got.err != nil || !got.res.Stale || got.res.Assistant != nil {
		t.Fatalf("RequestTurn() = %+v, %v, want stale", got.res, got.err)
	}
	if len(c.Log()) != 0 {
		t.Fatalf("log = %+v, want empty", c.Log())
	}
}

func TestSendStagedTranscript(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{responses: []string{"Hello!", "Three, yes!"}}
	capture := &fakeCapture{}
	c := newReady(t, Options{Generator: gen, Capture: capture})

	if _, err := c.SendStagedTranscript(ctx); !core.IsType(err, core.ErrPreconditionNotMet) {
		t.Fatalf("SendStagedTranscript() without transcript error = %v", err)
	}

	_, _ = c.RequestTurn(ctx, "")
	capture.staged, capture.has = "I see three", true
	if _, err := c.SendStagedTranscript(ctx); err != nil {
		t.Fatalf("SendStagedTranscript() error = %v", err)
	}
	log := c.Log()
	if len(log) != 3 || log[1].Text != "I see three" {
		t.Fatalf("log = %+v", log)
	}
	if _, err := c.SendStagedTranscript(ctx); !core.IsType(err, core.ErrPreconditionNotMet) {
		t.Fatalf("second SendStagedTranscript() error = %v, want %s", err, core.ErrPreconditionNotMet)
	}
}

func TestSendStagedTranscript_RejectedSendKeepsTranscript(t *testing.T) {
	capture := &fakeCapture{staged: "hello", has: true}
	c := New(Options{Generator: &fakeGenerator{}, Capture: capture, Logger: testLogger()})

	if _, err := c.SendStagedTranscript(context.Background()); !core.IsType(err, core.ErrPreconditionNotMet) {
		t.Fatalf("SendStagedTranscript() error = %v, want %s", err, core.ErrPreconditionNotMet)
	}
	if !capture.has || capture.consumes != 0 {
		t.Fatalf("transcript consumed by a rejected send")
	}
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	persister := &memPersister{}
	capture := &fakeCapture{}
	speaker := &fakeSpeaker{}
	c := newReady(t, Options{
		Generator: &fakeGenerator{responses: []string{"Hello!"}},
		Capture:   capture,
		Speaker:   speaker,
		Persister: persister,
	})
	_, _ = c.RequestTurn(ctx, "")
	if len(persister.log) != 1 {
		t.Fatalf("persisted log = %+v, want 1 turn", persister.log)
	}

	if err := c.Reset(ctx, ClearTurns); err != nil {
		t.Fatalf("Reset(ClearTurns) error = %v", err)
	}
	snap := c.Snapshot()
	if len(snap.Log) != 0 || snap.Selected == nil || len(snap.Library) != 1 {
		t.Fatalf("after ClearTurns: %+v", snap)
	}
	if persister.log != nil {
		t.Fatal("persisted log survived ClearTurns")
	}

	if err := c.Reset(ctx, ClearAll); err != nil {
		t.Fatalf("Reset(ClearAll) error = %v", err)
	}
	snap = c.Snapshot()
	if snap.Selected != nil || len(snap.Library) != 0 {
		t.Fatalf("after ClearAll: %+v", snap)
	}
	if persister.deletedMeda != 1 || capture.cancels != 1 || speaker.stops != 1 {
		t.Fatalf("deletedMedia=%d cancels=%d stops=%d, want 1 each", persister.deletedMeda, capture.cancels, speaker.stops)
	}
	if err := c.Reset(ctx, "everything"); !core.IsType(err, core.ErrInvalidRequest) {
		t.Fatalf("Reset(everything) error = %v", err)
	}
}

func TestRemoveMedia_SelectedClearsLog(t *testing.T) {
	ctx := context.Background()
	persister := &memPersister{}
	c := newReady(t, Options{Generator: &fakeGenerator{responses: []string{"Hi"}}, Persister: persister})
	_, _ = c.RequestTurn(ctx, "")

	if err := c.RemoveMedia(ctx, "shapes.png_1"); err != nil {
		t.Fatalf("RemoveMedia() error = %v", err)
	}
	snap := c.Snapshot()
	if snap.Selected != nil || len(snap.Log) != 0 || len(snap.Library) != 0 {
		t.Fatalf("after RemoveMedia: %+v", snap)
	}
	if len(persister.media) != 0 {
		t.Fatalf("persisted media = %+v, want empty", persister.media)
	}
	if err := c.RemoveMedia(ctx, "shapes.png_1"); !core.IsType(err, core.ErrNotFound) {
		t.Fatalf("second RemoveMedia() error = %v, want %s", err, core.ErrNotFound)
	}
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	persister := &memPersister{
		log: []types.Turn{
			{ID: 5_000_000_000_000, Role: types.RoleAssistant, Text: "Welcome back!"},
		},
		media: []types.MediaAsset{{ID: "cat.png_9", DisplayName: "cat.png", MimeType: "image/png", ByteSize: 10}},
	}
	gen := &fakeGenerator{responses: []string{"Nice cat!"}}
	c := New(Options{Generator: gen, Persister: persister, Logger: testLogger(), Now: frozenClock()})

	if err := c.Restore(ctx); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	snap := c.Snapshot()
	if len(snap.Log) != 1 || len(snap.Library) != 1 || !snap.Library[0].NeedsContent() {
		t.Fatalf("after Restore: %+v", snap)
	}
	if err := c.SelectMedia(ctx, "cat.png_9"); !core.IsType(err, core.ErrContentUnavailable) {
		t.Fatalf("SelectMedia() error = %v, want %s", err, core.ErrContentUnavailable)
	}

	_ = c.AttachContent(ctx, "cat.png_9", types.BytesContent("png"))
	_ = c.SelectMedia(ctx, "cat.png_9")
	_ = c.SetChildAge(6)
	_ = c.SetFocusArea(types.FocusCreativity)
	if _, err := c.RequestTurn(ctx, ""); err != nil {
		t.Fatalf("RequestTurn() error = %v", err)
	}
	if len(gen.media) != 1 || gen.media[0].NeedsContent() {
		t.Fatalf("generator media = %+v", gen.media)
	}
}

func TestTurnClock_StrictlyIncreasing(t *testing.T) {
	clock := NewTurnClock(frozenClock())
	a, _ := clock.Next()
	b, _ := clock.Next()
	if b != a+1 {
		t.Fatalf("Next() = %d then %d, want +1", a, b)
	}
	clock.Observe(a + 100)
	c, _ := clock.Next()
	if c != a+101 {
		t.Fatalf("Next() after Observe = %d, want %d", c, a+101)
	}
}

type stubMic struct{}

func (stubMic) Open(context.Context) (voice.Recording, error) { return stubRecording{}, nil }

type stubRecording struct{}

func (stubRecording) Stop() (types.Audio, error) {
	return types.Audio{Data: []byte("pcm"), MediaType: types.AudioL16}, nil
}
func (stubRecording) Abort() error { return nil }

type stubTranscriber struct{}

func (stubTranscriber) Transcribe(context.Context, types.Audio) (string, error) { return "hi", nil }

type stubSynth struct{}

func (stubSynth) Synthesize(_ context.Context, text string) (types.Audio, error) {
	return types.Audio{Data: []byte(text), MediaType: types.AudioMPEG}, nil
}

type stubPlayer struct{}

func (*stubPlayer) Play(context.Context, types.Audio) (voice.PlaybackHandle, error) {
	return &stubHandle{done: make(chan struct{})}, nil
}

type stubHandle struct {
	once sync.Once
	done chan struct{}
}

func (h *stubHandle) Stop() error {
	h.once.Do(func() { close(h.done) })
	return nil
}
func (h *stubHandle) Done() <-chan struct{} { return h.done }
func (h *stubHandle) Err() error            { return nil }

func TestRequestTurn_SelectedAssetLostContent(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{responses: []string{"never"}}
	c := newReady(t, Options{Generator: gen})

	if err := c.AddMedia(ctx, testAsset("shapes.png_1").Metadata()); err != nil {
		t.Fatalf("AddMedia() error = %v", err)
	}
	if _, err := c.RequestTurn(ctx, ""); !core.IsType(err, core.ErrPreconditionNotMet) {
		t.Fatalf("RequestTurn() error = %v, want %s", err, core.ErrPreconditionNotMet)
	}
	if len(gen.prompts) != 0 {
		t.Fatalf("generator called %d times, want 0", len(gen.prompts))
	}
}

// newVoiceSession wires real voice controllers whose change callbacks read the
// session back, the way the live handler broadcasts state.
func newVoiceSession(t *testing.T, gen *fakeGenerator) (*Controller, *voice.CaptureController, *voice.PlaybackController) {
	t.Helper()
	capture := voice.NewCaptureController(stubMic{}, stubTranscriber{}, testLogger())
	playback := voice.NewPlaybackController(stubSynth{}, &stubPlayer{}, testLogger())
	c := newReady(t, Options{Generator: gen, Capture: capture, Speaker: playback})
	capture.OnChange(func(voice.CaptureSnapshot) { c.Snapshot() })
	playback.OnChange(func(bool) { c.Snapshot() })
	c.OnChange(func(Snapshot) {
		capture.Snapshot()
		playback.IsSpeaking()
	})
	return c, capture, playback
}

func stageTranscript(t *testing.T, capture *voice.CaptureController) {
	t.Helper()
	ctx := context.Background()
	if err := capture.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if snap, err := capture.Stop(ctx); err != nil || snap.State != voice.CaptureStaged {
		t.Fatalf("Stop() = %+v, %v, want staged", snap, err)
	}
}

// within fails the test when fn does not return in time.
func within(t *testing.T, name string, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("%s did not return", name)
	}
}

func TestVoiceCallbacks_SendStagedTranscript(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{responses: []string{"Hello!", "Hi to you!"}}
	c, capture, _ := newVoiceSession(t, gen)

	if _, err := c.RequestTurn(ctx, ""); err != nil {
		t.Fatalf("RequestTurn() error = %v", err)
	}
	stageTranscript(t, capture)

	var err error
	within(t, "SendStagedTranscript()", func() { _, err = c.SendStagedTranscript(ctx) })
	if err != nil {
		t.Fatalf("SendStagedTranscript() error = %v", err)
	}
	log := c.Log()
	if len(log) != 3 || log[1].Text != "hi" || log[2].Text != "Hi to you!" {
		t.Fatalf("log = %+v", log)
	}
	if got := capture.Snapshot().State; got != voice.CaptureIdle {
		t.Fatalf("capture state = %s, want idle", got)
	}
}

func TestVoiceCallbacks_SendRefusedAfterConsumeRestagesTranscript(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{responses: []string{"never"}}
	c, capture, _ := newVoiceSession(t, gen)
	stageTranscript(t, capture)

	var once sync.Once
	var busyErr error
	capture.OnChange(func(s voice.CaptureSnapshot) {
		c.Snapshot()
		if s.State != voice.CaptureIdle {
			return
		}
		once.Do(func() {
			_, busyErr = c.RequestTurn(ctx, "")
			_ = c.RemoveMedia(ctx, "shapes.png_1")
		})
	})

	var err error
	within(t, "SendStagedTranscript()", func() { _, err = c.SendStagedTranscript(ctx) })
	if !core.IsType(err, core.ErrPreconditionNotMet) {
		t.Fatalf("SendStagedTranscript() error = %v, want %s", err, core.ErrPreconditionNotMet)
	}
	if !core.IsType(busyErr, core.ErrBusy) {
		t.Fatalf("RequestTurn() during consume error = %v, want %s", busyErr, core.ErrBusy)
	}
	if snap := capture.Snapshot(); snap.State != voice.CaptureStaged || snap.Transcript != "hi" {
		t.Fatalf("capture = %+v, want transcript staged again", snap)
	}
	if len(gen.prompts) != 0 || c.Snapshot().GenerationInFlight {
		t.Fatalf("prompts = %d, in flight = %v", len(gen.prompts), c.Snapshot().GenerationInFlight)
	}
}

func TestVoiceCallbacks_HaltWhileRecordingOrSpeaking(t *testing.T) {
	ctx := context.Background()
	ops := []struct {
		name string
		run  func(c *Controller) error
	}{
		{"SetMode(suggestion)", func(c *Controller) error { return c.SetMode(ctx, types.ModeSuggestion) }},
		{"SetMode(conversation)", func(c *Controller) error { return c.SetMode(ctx, types.ModeConversation) }},
		{"SetChannel(text)", func(c *Controller) error { return c.SetChannel(ctx, types.ChannelText) }},
		{"Reset(all)", func(c *Controller) error { return c.Reset(ctx, ClearAll) }},
	}
	for _, op := range ops {
		for _, speaking := range []bool{false, true} {
			name := op.name + " while recording"
			if speaking {
				name = op.name + " while speaking"
			}
			t.Run(name, func(t *testing.T) {
				gen := &fakeGenerator{responses: []string{"Look at the dog!"}}
				c, capture, playback := newVoiceSession(t, gen)
				if speaking {
					if err := c.SetChannel(ctx, types.ChannelVoice); err != nil {
						t.Fatalf("SetChannel(voice) error = %v", err)
					}
					if res, err := c.RequestTurn(ctx, ""); err != nil || !res.Spoken {
						t.Fatalf("RequestTurn() = %+v, %v, want spoken", res, err)
					}
				} else if err := capture.Start(ctx); err != nil {
					t.Fatalf("Start() error = %v", err)
				}

				var err error
				within(t, op.name, func() { err = op.run(c) })
				if err != nil {
					t.Fatalf("%s error = %v", op.name, err)
				}
				if got := capture.Snapshot().State; got != voice.CaptureIdle {
					t.Fatalf("capture state = %s, want idle", got)
				}
				if playback.IsSpeaking() {
					t.Fatal("still speaking")
				}
			})
		}
	}
}

func TestVoiceCallbacks_TurnEndsWithTranscriptStaged(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{
		responses: []string{"What do you see?"},
		entered:   make(chan struct{}, 1),
		release:   make(chan struct{}),
	}
	c, capture, _ := newVoiceSession(t, gen)

	type outcome struct {
		res TurnResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := c.RequestTurn(ctx, "")
		done <- outcome{res, err}
	}()
	<-gen.entered
	stageTranscript(t, capture)
	close(gen.release)

	var got outcome
	within(t, "RequestTurn()", func() { got = <-done })
	if got.err != nil || got.res.Assistant == nil {
		t.Fatalf("RequestTurn() = %+v, %v", got.res, got.err)
	}
	if state := capture.Snapshot().State; state != voice.CaptureIdle {
		t.Fatalf("capture state = %s, want idle", state)
	}
	if c.Snapshot().GenerationInFlight {
		t.Fatal("GenerationInFlight = true after completion")
	}
}
