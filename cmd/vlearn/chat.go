package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-go/vlearn/pkg/core"
	"github.com/vango-go/vlearn/pkg/core/prompt"
	"github.com/vango-go/vlearn/pkg/core/session"
	"github.com/vango-go/vlearn/pkg/core/types"
	"github.com/vango-go/vlearn/pkg/core/voice"
	"github.com/vango-go/vlearn/pkg/export"
)

const chatHelp = `Commands:
  /start              ask for the opening question
  /record, /stop      record an answer and transcribe it (voice channel)
  /send               send the staged transcript
  /cancel             discard the recording or staged transcript
  /ack                clear a failed recording
  /mode <m>           conversation or suggestion
  /channel <c>        text or voice
  /age <n>            set the child's age
  /focus <f>          literacy, stem, creativity, emotional_intelligence
  /library            list images
  /select <id|n>      select an image
  /reset [all]        clear the conversation (all: also the library)
  /starters           show conversation starters
  /export [format]    print the conversation (json, yaml, md)
  /quit               exit
Anything else is sent as the child's answer.`

func newChatCmd(deps cliDeps) *cobra.Command {
	var (
		image    string
		age      int
		focus    string
		mode     string
		useVoice bool
		noColor  bool
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk about an image in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if deps.loadConfig == nil || deps.openApp == nil {
				return fmt.Errorf("missing app dependency")
			}
			cfg, err := deps.loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := newLogger(cfg, cmd.ErrOrStderr())

			opts := appOptions{WithMedia: true, Restore: true}
			if useVoice {
				mic, err := newFFmpegMic()
				if err != nil {
					return err
				}
				player, err := newFFplayPlayer()
				if err != nil {
					return err
				}
				opts.Mic, opts.Player = mic, player
			}

			ctx := cmd.Context()
			a, err := deps.openApp(ctx, cfg, logger, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			p := newPrinter(cmd.OutOrStdout(), noColor)
			if useVoice && !a.VoiceEnabled() {
				p.warning("voice needs GOOGLE_CLOUD_API_KEY; continuing with text")
			}
			if err := configure(ctx, a.Session, age, focus); err != nil {
				return err
			}
			if mode != "" {
				m, err := types.ParseMode(mode)
				if err != nil {
					return err
				}
				if m != a.Session.Config().Mode {
					if err := a.Session.SetMode(ctx, m); err != nil {
						return err
					}
				}
			}
			if image != "" {
				asset, err := loadImage(image, time.Now())
				if err != nil {
					return err
				}
				if err := a.Session.AddMedia(ctx, asset); err != nil {
					return err
				}
				if err := a.Session.SelectMedia(ctx, asset.ID); err != nil {
					return err
				}
			}

			stdin := deps.stdin
			if stdin == nil {
				stdin = cmd.InOrStdin()
			}
			return runChat(ctx, stdin, newChat(a, p))
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&image, "image", "", "image file to talk about")
	flags.IntVar(&age, "age", 0, "child's age in years")
	flags.StringVar(&focus, "focus", "", "focus area")
	flags.StringVar(&mode, "mode", "", "conversation or suggestion")
	flags.BoolVar(&useVoice, "voice", false, "enable the microphone and speaker (needs ffmpeg and ffplay)")
	flags.BoolVar(&noColor, "no-color", false, "disable colored output")
	return cmd
}

// chat is the terminal front end of one session.
type chat struct {
	session  *session.Controller
	capture  *voice.CaptureController
	voice    bool
	printer  *printer
	exporter func(format string, w io.Writer) error
}

func newChat(a *app, p *printer) *chat {
	c := &chat{
		session: a.Session,
		capture: a.Capture,
		voice:   a.VoiceEnabled(),
		printer: p,
	}
	c.exporter = func(format string, w io.Writer) error {
		exp, err := export.NewExporter(format)
		if err != nil {
			return err
		}
		return exp.Export(export.Build(c.session.Snapshot(), time.Now()), w)
	}
	return c
}

func runChat(ctx context.Context, in io.Reader, c *chat) error {
	c.printer.heading("vlearn chat")
	c.printer.info("Type /help for commands.")
	c.printSummary()

	scanner := bufio.NewScanner(in)
	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(c.printer.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(c.printer.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		quit, err := c.handle(ctx, line)
		if err != nil {
			c.printer.warning("%s", describeError(err))
		}
		if quit {
			return nil
		}
	}
}

func (c *chat) printSummary() {
	cfg := c.session.Config()
	selected := "none"
	if snap := c.session.Snapshot(); snap.Selected != nil {
		selected = snap.Selected.DisplayName
	}
	age := "unset"
	if cfg.ChildAge > 0 {
		age = strconv.Itoa(cfg.ChildAge)
	}
	focus := "unset"
	if cfg.FocusArea != "" {
		focus = cfg.FocusArea.Label()
	}
	c.printer.info("age %s · focus %s · mode %s · channel %s · image %s", age, focus, cfg.Mode, cfg.Channel, selected)
	for _, t := range c.session.Log() {
		c.printer.turn(t)
	}
}

func (c *chat) handle(ctx context.Context, line string) (bool, error) {
	if !strings.HasPrefix(line, "/") {
		return false, c.turn(ctx, line)
	}
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]
	arg := strings.Join(args, " ")

	switch cmd {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(c.printer.out, chatHelp)
	case "/start":
		return false, c.turn(ctx, "")
	case "/record":
		if err := c.requireVoice(); err != nil {
			return false, err
		}
		if err := c.capture.Start(ctx); err != nil {
			return false, err
		}
		c.printer.info("Recording... /stop when done.")
	case "/stop":
		if err := c.requireVoice(); err != nil {
			return false, err
		}
		snap, err := c.capture.Stop(ctx)
		if err != nil {
			return false, err
		}
		if snap.State == voice.CaptureStaged {
			c.printer.info("Heard: %q (/send to send, /cancel to discard)", snap.Transcript)
		}
	case "/send":
		res, err := c.session.SendStagedTranscript(ctx)
		if err != nil {
			return false, err
		}
		if res.UserTurn != nil {
			c.printer.turn(*res.UserTurn)
		}
		c.show(res)
	case "/cancel":
		if c.capture != nil {
			c.capture.Cancel()
		}
	case "/ack":
		if c.capture != nil {
			c.capture.Acknowledge()
		}
	case "/mode":
		m, err := types.ParseMode(arg)
		if err != nil {
			return false, core.NewInvalidRequestErrorWithParam(err.Error(), "mode")
		}
		if err := c.session.SetMode(ctx, m); err != nil {
			return false, err
		}
		c.printSummary()
	case "/channel":
		ch, err := types.ParseChannel(arg)
		if err != nil {
			return false, core.NewInvalidRequestErrorWithParam(err.Error(), "channel")
		}
		if ch == types.ChannelVoice && !c.voice {
			return false, core.NewPreconditionError("voice is not available; start with --voice and set GOOGLE_CLOUD_API_KEY", "channel")
		}
		if err := c.session.SetChannel(ctx, ch); err != nil {
			return false, err
		}
		c.printSummary()
	case "/age":
		n, err := strconv.Atoi(arg)
		if err != nil {
			return false, core.NewInvalidRequestErrorWithParam("age must be a number", "child_age")
		}
		if err := c.session.SetChildAge(n); err != nil {
			return false, err
		}
	case "/focus":
		fa, err := types.ParseFocusArea(arg)
		if err != nil {
			return false, core.NewInvalidRequestErrorWithParam(err.Error(), "focus_area")
		}
		if err := c.session.SetFocusArea(fa); err != nil {
			return false, err
		}
	case "/library":
		c.printLibrary()
	case "/select":
		id, err := c.resolveMedia(arg)
		if err != nil {
			return false, err
		}
		if err := c.session.SelectMedia(ctx, id); err != nil {
			return false, err
		}
		c.printSummary()
	case "/reset":
		kind := session.ClearTurns
		if arg == "all" {
			kind = session.ClearAll
		}
		if err := c.session.Reset(ctx, kind); err != nil {
			return false, err
		}
		c.printer.info("Conversation cleared.")
	case "/starters":
		c.printer.starters(prompt.Starters(c.session.Config().Channel))
	case "/export":
		return false, c.exporter(arg, c.printer.out)
	default:
		return false, core.NewInvalidRequestError(fmt.Sprintf("unknown command %s; try /help", cmd))
	}
	return false, nil
}

func (c *chat) requireVoice() error {
	if !c.voice || c.capture == nil {
		return core.NewPreconditionError("voice is not available; start with --voice and set GOOGLE_CLOUD_API_KEY", "channel")
	}
	if c.session.Config().Channel != types.ChannelVoice {
		return core.NewPreconditionError("switch to the voice channel first (/channel voice)", "channel")
	}
	return nil
}

func (c *chat) turn(ctx context.Context, text string) error {
	if text != "" && c.session.Config().Channel == types.ChannelVoice {
		return core.NewPreconditionError("the voice channel takes recorded answers; use /record", "channel")
	}
	res, err := c.session.RequestTurn(ctx, text)
	if err != nil {
		return err
	}
	c.show(res)
	return nil
}

func (c *chat) show(res session.TurnResult) {
	switch {
	case res.Stale:
		c.printer.info("The conversation was cleared before the reply arrived.")
		return
	case len(res.Cards) > 0:
		c.printer.cards(res.Cards)
	case res.Assistant != nil:
		c.printer.turn(*res.Assistant)
	}
	if res.PlaybackErr != nil {
		c.printer.warning("%s", describeError(res.PlaybackErr))
	}
}

func (c *chat) printLibrary() {
	lib := c.session.Library()
	if len(lib) == 0 {
		c.printer.info("No images. Use --image or `vlearn media upload`.")
		return
	}
	var selected string
	if snap := c.session.Snapshot(); snap.Selected != nil {
		selected = snap.Selected.ID
	}
	for i, asset := range lib {
		mark := " "
		if asset.ID == selected {
			mark = "*"
		}
		fmt.Fprintf(c.printer.out, "%s %d. %s (%s)\n", mark, i+1, asset.DisplayName, asset.ID)
	}
}

// resolveMedia accepts an asset id or a 1-based library position.
func (c *chat) resolveMedia(arg string) (string, error) {
	if arg == "" {
		return "", core.NewInvalidRequestErrorWithParam("usage: /select <id|n>", "id")
	}
	lib := c.session.Library()
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(lib) {
			return "", core.NewNotFoundError(fmt.Sprintf("no image at position %d", n))
		}
		return lib[n-1].ID, nil
	}
	return arg, nil
}

func describeError(err error) string {
	var cerr *core.Error
	if errors.As(err, &cerr) {
		return fmt.Sprintf("%s: %s", cerr.Type, cerr.Message)
	}
	return err.Error()
}
