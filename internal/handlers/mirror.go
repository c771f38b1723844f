package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	appErrors "github.com/example/fileuploader/internal/errors"
	"github.com/example/fileuploader/internal/models"
	"github.com/example/fileuploader/internal/storage"
)

// MirrorStore is the read and delete side of storage.Mirror.
type MirrorStore interface {
	List(ctx context.Context, field string) ([]storage.FileInfo, error)
	Delete(ctx context.Context, id string) error
}

// ProviderStatus reports provider availability. storage.Factory implements it.
type ProviderStatus interface {
	IsProviderAvailable(providerType string) (bool, string)
}

// MirrorHandler lists and deletes mirrored copies of committed uploads.
type MirrorHandler struct {
	mirror    MirrorStore
	providers ProviderStatus
	active    string
	logger    *zap.Logger
}

// NewMirrorHandler creates a mirror handler. mirror may be nil when mirroring
// is disabled; the list and delete routes then answer 404.
func NewMirrorHandler(mirror MirrorStore, providers ProviderStatus, active string, logger *zap.Logger) *MirrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MirrorHandler{mirror: mirror, providers: providers, active: active, logger: logger}
}

// Register mounts the mirror routes on r.
func (h *MirrorHandler) Register(r *mux.Router) {
	r.HandleFunc("/api/mirror", h.List).Methods(http.MethodGet)
	r.HandleFunc("/api/mirror", h.Delete).Methods(http.MethodDelete)
	r.HandleFunc("/api/storage/status", h.Status).Methods(http.MethodGet)
}

var (
	errMirrorDisabled = appErrors.New(appErrors.KindConfiguration, "MIRROR_DISABLED", http.StatusNotFound, "mirroring is not configured")
	errMissingID      = appErrors.New(appErrors.KindTransport, "MISSING_ID", http.StatusBadRequest, "the id parameter is required")
	errMirrorDelete   = appErrors.New(appErrors.KindPersist, "MIRROR_DELETE", http.StatusNotFound, "the mirrored file could not be deleted")
)

// List returns the mirrored objects, optionally filtered by ?field=.
func (h *MirrorHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.mirror == nil {
		sendJSONError(w, errMirrorDisabled, nil)
		return
	}
	files, err := h.mirror.List(r.Context(), r.URL.Query().Get("field"))
	if err != nil {
		h.logger.Error("mirror list failed", zap.Error(err))
		sendJSONError(w, err, nil)
		return
	}
	if files == nil {
		files = []storage.FileInfo{}
	}
	sendJSONResponse(w, models.APIResponse{Success: true, Data: files}, http.StatusOK)
}

// Delete removes the mirrored object named by ?id=.
func (h *MirrorHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h.mirror == nil {
		sendJSONError(w, errMirrorDisabled, nil)
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		sendJSONError(w, errMissingID, nil)
		return
	}
	if err := h.mirror.Delete(r.Context(), id); err != nil {
		h.logger.Warn("mirror delete failed", zap.String("id", id), zap.Error(err))
		sendJSONError(w, appErrors.Wrap(err, errMirrorDelete, ""), nil)
		return
	}
	sendJSONResponse(w, models.APIResponse{Success: true, Message: "deleted"}, http.StatusOK)
}

// Status returns the availability of every known provider type.
func (h *MirrorHandler) Status(w http.ResponseWriter, r *http.Request) {
	status := make(map[string]any, 3)
	for _, name := range []string{"local", "s3", "gcs"} {
		ok, reason := true, ""
		if h.providers != nil {
			ok, reason = h.providers.IsProviderAvailable(name)
		}
		status[name] = map[string]any{
			"available": ok,
			"reason":    reason,
			"active":    name == h.active,
		}
	}
	sendJSONResponse(w, models.APIResponse{Success: true, Data: status}, http.StatusOK)
}
