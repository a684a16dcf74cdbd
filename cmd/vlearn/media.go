package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/vango-go/vlearn/pkg/core"
	"github.com/vango-go/vlearn/pkg/core/types"
	"github.com/vango-go/vlearn/pkg/mediastore"
)

func newMediaCmd(deps cliDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "media",
		Short: "Manage the image library",
	}
	cmd.AddCommand(newMediaListCmd(deps), newMediaUploadCmd(deps), newMediaDeleteCmd(deps))
	return cmd
}

func openMediaApp(cmd *cobra.Command, deps cliDeps) (*app, error) {
	if deps.loadConfig == nil || deps.openApp == nil {
		return nil, fmt.Errorf("missing app dependency")
	}
	cfg, err := deps.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	a, err := deps.openApp(cmd.Context(), cfg, newLogger(cfg, cmd.ErrOrStderr()), appOptions{WithMedia: true, Restore: true})
	if err != nil {
		return nil, err
	}
	if a.Media == nil {
		_ = a.Close()
		return nil, fmt.Errorf("media store is not configured")
	}
	return a, nil
}

func newMediaListCmd(deps cliDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List uploaded images",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openMediaApp(cmd, deps)
			if err != nil {
				return err
			}
			defer a.Close()

			files, err := a.Media.List(cmd.Context())
			if err != nil {
				return err
			}
			writeMediaTable(cmd.OutOrStdout(), files)
			return nil
		},
	}
}

func writeMediaTable(w io.Writer, files []mediastore.Metadata) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.Style().Options.SeparateHeader = true
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 2, Align: text.AlignLeft, AlignHeader: text.AlignCenter, WidthMax: 40},
		{Number: 3, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 4, Align: text.AlignRight, AlignHeader: text.AlignCenter},
		{Number: 5, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
	})
	tw.AppendHeader(table.Row{"ID", "Name", "Type", "Size", "Uploaded"})
	for _, f := range files {
		tw.AppendRow(table.Row{f.ID, f.Name, f.Type, f.Size, f.UploadedAt})
	}
	if len(files) == 0 {
		tw.AppendRow(table.Row{"-", "(no images)", "-", 0, "-"})
	}
	_ = tw.Render()
}

func newMediaUploadCmd(deps cliDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <image>...",
		Short: "Upload images into the library",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openMediaApp(cmd, deps)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read image: %w", err)
				}
				mimeType := detectMimeType(path, data)
				if !types.IsImageType(mimeType) {
					return core.NewInvalidRequestErrorWithParam(
						fmt.Sprintf("%s is %s; only images are accepted", path, mimeType), "fileType")
				}
				if limit := a.cfg.MaxUploadBytes; limit > 0 && int64(len(data)) > limit {
					return core.NewInvalidRequestErrorWithParam(
						fmt.Sprintf("%s exceeds %d bytes", path, limit), "fileData")
				}
				meta, err := a.Media.Put(ctx, filepath.Base(path), mimeType, int64(len(data)), data)
				if err != nil {
					return err
				}
				asset := meta.Asset()
				asset.Content = types.BytesContent(data)
				if err := a.Session.AddMedia(ctx, asset); err != nil {
					_ = a.Media.Delete(ctx, meta.ID)
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", meta.ID, meta.Name)
			}
			return nil
		},
	}
}

func newMediaDeleteCmd(deps cliDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an uploaded image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openMediaApp(cmd, deps)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			id := args[0]
			if err := a.Media.Delete(ctx, id); err != nil {
				return err
			}
			if err := a.Session.RemoveMedia(ctx, id); err != nil && !core.IsType(err, core.ErrNotFound) {
				a.logger.Warn("remove media from session", "id", id, "error", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
			return nil
		},
	}
}
