package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/vango-go/vlearn/pkg/core"
	"github.com/vango-go/vlearn/pkg/core/session"
	"github.com/vango-go/vlearn/pkg/core/types"
	"github.com/vango-go/vlearn/pkg/gateway/apierror"
	"github.com/vango-go/vlearn/pkg/gateway/metrics"
	"github.com/vango-go/vlearn/pkg/gateway/mw"
	"github.com/vango-go/vlearn/pkg/mediastore"
)

// MediaHandler uploads, lists and deletes library images. Uploads are stored
// and added to the session with their content attached.
type MediaHandler struct {
	Store          *mediastore.Store
	Session        *session.Controller
	MaxUploadBytes int64
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
}

type uploadRequest struct {
	Filename string `json:"filename"`
	FileData string `json:"fileData"`
	FileType string `json:"fileType"`
	FileSize int64  `json:"fileSize,omitempty"`
}

type uploadResponse struct {
	Success bool                `json:"success"`
	File    mediastore.Metadata `json:"file"`
}

type deleteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type listResponse struct {
	Files []mediastore.Metadata `json:"files"`
}

func (h MediaHandler) List(w http.ResponseWriter, r *http.Request) {
	files, err := h.Store.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if files == nil {
		files = []mediastore.Metadata{}
	}
	writeJSON(w, http.StatusOK, listResponse{Files: files})
}

// Upload accepts the JSON body {filename, fileData (base64), fileType,
// fileSize} or a multipart form with a "file" part.
func (h MediaHandler) Upload(w http.ResponseWriter, r *http.Request) {
	req, data, err := h.readUpload(w, r)
	if err != nil {
		h.Metrics.ObserveUpload(false)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			reqID, _ := mw.RequestIDFrom(r.Context())
			apierror.WriteError(w, http.StatusRequestEntityTooLarge, &core.Error{
				Type:      core.ErrInvalidRequest,
				Message:   fmt.Sprintf("upload exceeds %d bytes", h.MaxUploadBytes),
				Param:     "fileData",
				RequestID: reqID,
			})
			return
		}
		writeError(w, r, err)
		return
	}

	meta, err := h.store(r.Context(), req, data)
	h.Metrics.ObserveUpload(err == nil)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{Success: true, File: meta})
}

func (h MediaHandler) store(ctx context.Context, req uploadRequest, data []byte) (mediastore.Metadata, error) {
	if req.FileType != "" && !types.IsImageType(req.FileType) {
		return mediastore.Metadata{}, core.NewInvalidRequestErrorWithParam(
			fmt.Sprintf("unsupported media type %q; only images are accepted", req.FileType), "fileType")
	}
	if h.MaxUploadBytes > 0 && int64(len(data)) > h.MaxUploadBytes {
		return mediastore.Metadata{}, core.NewInvalidRequestErrorWithParam(
			fmt.Sprintf("upload exceeds %d bytes", h.MaxUploadBytes), "fileData")
	}

	meta, err := h.Store.Put(ctx, req.Filename, req.FileType, req.FileSize, data)
	if err != nil {
		return mediastore.Metadata{}, err
	}
	if h.Session == nil {
		return meta, nil
	}
	asset := meta.Asset()
	asset.Content = types.BytesContent(data)
	if err := h.Session.AddMedia(ctx, asset); err != nil {
		if derr := h.Store.Delete(ctx, meta.ID); derr != nil {
			h.logger().Warn("roll back rejected upload", "id", meta.ID, "error", derr)
		}
		return mediastore.Metadata{}, err
	}
	return meta, nil
}

func (h MediaHandler) readUpload(w http.ResponseWriter, r *http.Request) (uploadRequest, []byte, error) {
	limit := h.MaxUploadBytes
	if limit <= 0 {
		limit = 10 << 20
	}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)
		file, header, err := r.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return uploadRequest{}, nil, err
			}
			return uploadRequest{}, nil, core.NewInvalidRequestErrorWithParam("multipart field \"file\" is required", "file")
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return uploadRequest{}, nil, fmt.Errorf("read upload: %w", err)
		}
		fileType := strings.TrimSpace(r.FormValue("fileType"))
		if fileType == "" {
			fileType = header.Header.Get("Content-Type")
		}
		return uploadRequest{Filename: header.Filename, FileType: fileType, FileSize: header.Size}, data, nil
	}

	// base64 inflates by 4/3; leave room for the JSON envelope.
	r.Body = http.MaxBytesReader(w, r.Body, limit/3*4+64<<10)
	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return uploadRequest{}, nil, err
		}
		return uploadRequest{}, nil, core.NewInvalidRequestError("request body must be JSON")
	}
	if req.Filename == "" || req.FileData == "" || req.FileType == "" {
		return uploadRequest{}, nil, core.NewInvalidRequestError("missing required fields")
	}
	data, err := decodeFileData(req.FileData)
	if err != nil {
		return uploadRequest{}, nil, core.NewInvalidRequestErrorWithParam("fileData is not valid base64", "fileData")
	}
	return req, data, nil
}

// decodeFileData accepts raw base64 or a data: URL.
func decodeFileData(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			s = s[i+1:]
		}
	}
	return base64.StdEncoding.DecodeString(s)
}

// Delete removes an upload by id, from the path or the fileId query parameter.
func (h MediaHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		id = strings.TrimSpace(r.URL.Query().Get("fileId"))
	}
	if id == "" {
		writeError(w, r, core.NewInvalidRequestErrorWithParam("file id is required", "fileId"))
		return
	}
	if err := h.Store.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	if h.Session != nil {
		if err := h.Session.RemoveMedia(r.Context(), id); err != nil && !core.IsType(err, core.ErrNotFound) {
			h.logger().Warn("remove media from session", "id", id, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, deleteResponse{Success: true, Message: "File deleted successfully"})
}

func (h MediaHandler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

// ReattachMedia gives every metadata-only library asset its stored content
// back so it can be selected after a restart. It returns how many assets were
// reattached.
func ReattachMedia(ctx context.Context, ctrl *session.Controller, store *mediastore.Store, logger *slog.Logger) int {
	if logger == nil {
		logger = slog.Default()
	}
	n := 0
	for _, asset := range ctrl.Library() {
		opened, err := store.Open(ctx, asset.ID)
		if err != nil {
			logger.Warn("media content unavailable", "id", asset.ID, "error", err)
			continue
		}
		if err := ctrl.AttachContent(ctx, asset.ID, opened.Content); err != nil {
			logger.Warn("reattach media", "id", asset.ID, "error", err)
			continue
		}
		n++
	}
	return n
}
