// Package handlers exposes the upload pipeline over HTTP and websocket.
package handlers

import (
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	appErrors "github.com/example/fileuploader/internal/errors"
	"github.com/example/fileuploader/internal/models"
	"github.com/example/fileuploader/internal/uploader"
)

// BatchHeader lets a client pick the batch id it subscribed to over /ws.
const BatchHeader = "X-Batch-ID"

// Uploader is the part of uploader.Uploader the HTTP layer drives.
type Uploader interface {
	UploadAll(ctx context.Context, in uploader.Input) (*uploader.Results, error)
	UploadFiles(ctx context.Context, files []uploader.FileField) (*uploader.Results, error)
	UploadBody(ctx context.Context, links []uploader.Link) (*uploader.Results, error)
	UploadQuery(ctx context.Context, links []uploader.Link) (*uploader.Results, error)
}

// UploadHandler decodes multipart forms, body and query parameters into an
// uploader.Input and runs one batch per request.
type UploadHandler struct {
	uploads    Uploader
	maxMemory  int64
	scratchDir string
	logger     *zap.Logger
}

// NewUploadHandler creates an upload handler. Multipart parts are spooled into
// scratchDir, or the system temp dir when empty.
func NewUploadHandler(u Uploader, maxMemory int64, scratchDir string, logger *zap.Logger) *UploadHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxMemory <= 0 {
		maxMemory = 32 << 20
	}
	return &UploadHandler{uploads: u, maxMemory: maxMemory, scratchDir: scratchDir, logger: logger}
}

// Register mounts the upload routes on r.
func (h *UploadHandler) Register(r *mux.Router) {
	r.HandleFunc("/api/upload", h.Upload).Methods(http.MethodPost)
	r.HandleFunc("/api/upload/{mode:all|files|body|query}", h.Upload).Methods(http.MethodPost)
}

// Upload runs one batch. The {mode} route variable picks the sources (files,
// body or query links; all when absent). The batch id comes from X-Batch-ID,
// or a new uuid, and is echoed as batchId in the response.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	batchID := strings.TrimSpace(r.Header.Get(BatchHeader))
	if batchID == "" {
		batchID = uuid.NewString()
	}
	data := map[string]string{"batchId": batchID}

	in, cleanup, err := h.readInput(r)
	defer cleanup()
	if err != nil {
		h.logger.Debug("upload request rejected", zap.Error(err))
		sendJSONError(w, appErrors.Wrap(err, appErrors.ErrTransport, "failed to parse the upload form"), data)
		return
	}

	ctx := uploader.WithBatchID(r.Context(), batchID)
	var results *uploader.Results
	switch mux.Vars(r)["mode"] {
	case "files":
		results, err = h.uploads.UploadFiles(ctx, in.Files)
	case "body":
		results, err = h.uploads.UploadBody(ctx, in.Body)
	case "query":
		results, err = h.uploads.UploadQuery(ctx, in.Query)
	default:
		results, err = h.uploads.UploadAll(ctx, in)
	}
	if err != nil {
		sendJSONError(w, err, data)
		return
	}

	sendJSONResponse(w, models.APIResponse{
		Success: true,
		Data:    models.NewUploadResponse(batchID, results),
	}, http.StatusOK)
}

// readInput parses the request. The returned cleanup removes every spooled
// part and must run once the batch has finished.
func (h *UploadHandler) readInput(r *http.Request) (uploader.Input, func(), error) {
	var (
		in      uploader.Input
		spooled []string
	)
	cleanup := func() {
		for _, p := range spooled {
			_ = os.Remove(p)
		}
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(h.maxMemory); err != nil {
			return in, cleanup, err
		}
		in.Files, spooled = h.spoolFiles(r.MultipartForm.File)
	} else if err := r.ParseForm(); err != nil {
		return in, cleanup, err
	}

	in.Body = links(r.PostForm)
	in.Query = links(r.URL.Query())
	return in, cleanup, nil
}

// spoolFiles copies every part to its own scratch file. Fields are ordered by
// name; a "name[]" field or a repeated name becomes an array field.
func (h *UploadHandler) spoolFiles(form map[string][]*multipart.FileHeader) ([]uploader.FileField, []string) {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var (
		fields  []uploader.FileField
		spooled []string
	)
	for _, key := range keys {
		headers := form[key]
		field := strings.TrimSuffix(key, "[]")
		ff := uploader.FileField{Field: field, Multiple: field != key || len(headers) > 1}
		for _, fh := range headers {
			path, code := h.spool(fh)
			if path != "" {
				spooled = append(spooled, path)
			}
			ff.Name = append(ff.Name, fh.Filename)
			ff.Type = append(ff.Type, fh.Header.Get("Content-Type"))
			ff.TmpName = append(ff.TmpName, path)
			ff.Error = append(ff.Error, code)
			ff.Size = append(ff.Size, fh.Size)
		}
		fields = append(fields, ff)
	}
	return fields, spooled
}

// spool returns the scratch path of one part and its native upload code.
func (h *UploadHandler) spool(fh *multipart.FileHeader) (string, int) {
	if fh.Filename == "" && fh.Size == 0 {
		return "", appErrors.ErrCodeNoFile
	}
	src, err := fh.Open()
	if err != nil {
		h.logger.Warn("multipart part unreadable", zap.String("name", fh.Filename), zap.Error(err))
		return "", appErrors.ErrCodePartial
	}
	defer src.Close()

	dst, err := os.CreateTemp(h.scratchDir, "upload-*")
	if err != nil {
		h.logger.Error("scratch file unavailable", zap.String("dir", h.scratchDir), zap.Error(err))
		return "", appErrors.ErrCodeNoTmpDir
	}
	_, err = io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dst.Name())
		h.logger.Error("scratch write failed", zap.String("name", fh.Filename), zap.Error(err))
		return "", appErrors.ErrCodeCantWrite
	}
	return dst.Name(), appErrors.ErrCodeOK
}

// links keeps the last value of each parameter, ordered by name. Values that
// are not URLs are dropped later by the uploader.
func links(values url.Values) []uploader.Link {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]uploader.Link, 0, len(keys))
	for _, k := range keys {
		vs := values[k]
		if len(vs) == 0 {
			continue
		}
		out = append(out, uploader.Link{Field: k, Value: vs[len(vs)-1]})
	}
	return out
}
