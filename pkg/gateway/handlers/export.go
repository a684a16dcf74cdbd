package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/vango-go/vlearn/pkg/core"
	"github.com/vango-go/vlearn/pkg/core/session"
	"github.com/vango-go/vlearn/pkg/export"
)

// ExportHandler downloads the current conversation as JSON, YAML or Markdown
// (?format=json|yaml|md).
type ExportHandler struct {
	Session *session.Controller
	Now     func() time.Time
}

func (h ExportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	exporter, err := export.NewExporter(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, r, core.NewInvalidRequestErrorWithParam(err.Error(), "format"))
		return
	}
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	at := now()
	doc := export.Build(h.Session.Snapshot(), at)

	var buf bytes.Buffer
	if err := exporter.Export(doc, &buf); err != nil {
		writeError(w, r, fmt.Errorf("export conversation: %w", err))
		return
	}
	w.Header().Set("Content-Type", exporter.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(at, exporter.Extension())))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
