package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-go/vlearn/pkg/export"
)

func newExportCmd(deps cliDeps) *cobra.Command {
	var (
		format string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the saved conversation",
		Long:  "Export the saved conversation as JSON, YAML or Markdown. With --out set to a directory the file gets a timestamped name.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			exp, err := export.NewExporter(format)
			if err != nil {
				return err
			}
			if deps.loadConfig == nil || deps.openApp == nil {
				return fmt.Errorf("missing app dependency")
			}
			cfg, err := deps.loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a, err := deps.openApp(cmd.Context(), cfg, newLogger(cfg, cmd.ErrOrStderr()), appOptions{Restore: true})
			if err != nil {
				return err
			}
			defer a.Close()

			now := time.Now()
			doc := export.Build(a.Session.Snapshot(), now)
			if out == "" || out == "-" {
				return exp.Export(doc, cmd.OutOrStdout())
			}

			path := out
			if info, err := os.Stat(out); err == nil && info.IsDir() {
				path = filepath.Join(out, export.Filename(now, exp.Extension()))
			}
			if err := writeFile(path, func(w io.Writer) error { return exp.Export(doc, w) }); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d messages to %s\n", doc.TotalMessages, path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format: json, yaml, md")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file or directory (default stdout)")
	return cmd
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
