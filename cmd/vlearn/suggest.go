package main

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-go/vlearn/pkg/core/session"
	"github.com/vango-go/vlearn/pkg/core/types"
)

func newSuggestCmd(deps cliDeps) *cobra.Command {
	var (
		age     int
		focus   string
		count   int
		noColor bool
	)
	cmd := &cobra.Command{
		Use:   "suggest <image>",
		Short: "Print activity ideas for an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if deps.loadConfig == nil || deps.openApp == nil {
				return fmt.Errorf("missing app dependency")
			}
			cfg, err := deps.loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if count > 0 {
				cfg.SuggestionCount = count
			}
			asset, err := loadImage(args[0], time.Now())
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := deps.openApp(ctx, cfg, newLogger(cfg, cmd.ErrOrStderr()), appOptions{Ephemeral: true})
			if err != nil {
				return err
			}
			defer a.Close()

			ctrl := a.Session
			if err := configure(ctx, ctrl, age, focus); err != nil {
				return err
			}
			if err := ctrl.AddMedia(ctx, asset); err != nil {
				return err
			}
			if err := ctrl.SelectMedia(ctx, asset.ID); err != nil {
				return err
			}
			if err := ctrl.SetMode(ctx, types.ModeSuggestion); err != nil {
				return err
			}
			res, err := ctrl.RequestTurn(ctx, "")
			if err != nil {
				return err
			}

			p := newPrinter(cmd.OutOrStdout(), noColor)
			p.heading(fmt.Sprintf("Activities for %s (age %d, %s)", asset.DisplayName, age, ctrl.Config().FocusArea.Label()))
			p.cards(res.Cards)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.IntVar(&age, "age", 0, "child's age in years (required)")
	flags.StringVar(&focus, "focus", "", "focus area: literacy, stem, creativity, emotional_intelligence (required)")
	flags.IntVar(&count, "count", 0, "number of activities (1-6, default VLEARN_SUGGESTION_COUNT)")
	flags.BoolVar(&noColor, "no-color", false, "disable colored output")
	_ = cmd.MarkFlagRequired("age")
	_ = cmd.MarkFlagRequired("focus")
	return cmd
}

// configure applies age and focus when given.
func configure(ctx context.Context, ctrl *session.Controller, age int, focus string) error {
	if age != 0 {
		if err := ctrl.SetChildAge(age); err != nil {
			return err
		}
	}
	if strings.TrimSpace(focus) != "" {
		fa, err := types.ParseFocusArea(focus)
		if err != nil {
			return err
		}
		if err := ctrl.SetFocusArea(fa); err != nil {
			return err
		}
	}
	return nil
}

// loadImage reads an image file into an asset with its content attached.
func loadImage(path string, now time.Time) (types.MediaAsset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.MediaAsset{}, fmt.Errorf("read image: %w", err)
	}
	mimeType := detectMimeType(path, data)
	if !types.IsImageType(mimeType) {
		return types.MediaAsset{}, fmt.Errorf("%s is %s, not an image", path, mimeType)
	}
	name := filepath.Base(path)
	return types.MediaAsset{
		ID:          name + "_" + strconv.FormatInt(now.UnixMilli(), 10),
		DisplayName: name,
		MimeType:    mimeType,
		ByteSize:    int64(len(data)),
		Content:     types.BytesContent(data),
	}, nil
}

func detectMimeType(path string, data []byte) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); t != "" {
		if base, _, err := mime.ParseMediaType(t); err == nil {
			return base
		}
	}
	t := http.DetectContentType(data)
	if base, _, err := mime.ParseMediaType(t); err == nil {
		return base
	}
	return t
}
