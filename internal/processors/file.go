package processors

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	appErrors "github.com/example/fileuploader/internal/errors"
	"github.com/example/fileuploader/internal/policy"
)

// fileHandler holds the checks every variant runs first: size, type and naming.
type fileHandler struct {
	cfg     policy.Config
	logger  *zap.Logger
	scratch string
	dest    string
}

func (h *fileHandler) ScratchPath() string     { return h.scratch }
func (h *fileHandler) DestinationPath() string { return h.dest }

func (h *fileHandler) validate(ctx context.Context, src Source) (*ValidatedFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.scratch = src.Path

	info, err := os.Stat(src.Path)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNoFile, "")
	}
	size := info.Size()
	if h.cfg.MaxSize > 0 && size > h.cfg.MaxSize {
		return nil, appErrors.Clonef(appErrors.ErrFileTooLarge,
			"the file is %d bytes, the limit is %d", size, h.cfg.MaxSize)
	}

	contentType := "application/octet-stream"
	sniffedExt := ""
	if mt, err := mimetype.DetectFile(src.Path); err == nil {
		contentType = mt.String()
		sniffedExt = mt.Extension()
	} else {
		h.logger.Debug("content sniffing failed", zap.String("path", src.Path), zap.Error(err))
	}

	stem, ext, err := buildName(h.cfg, nameInput{
		declared:   src.Name,
		sniffedExt: sniffedExt,
		hash:       func() (string, error) { return contentHash(src.Path) },
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "could not compute the file name")
	}
	if !h.cfg.AllowedTypes.Contains(ext) {
		return nil, appErrors.Clonef(appErrors.ErrDisallowedType,
			"the filetype %q is not allowed, expected one of %s", strings.TrimPrefix(ext, "."), h.cfg.AllowedTypes)
	}

	if h.cfg.Directory == "" {
		return nil, appErrors.ErrUploadPath
	}
	name, attempt, err := pickName(h.cfg.Directory, stem, ext, h.cfg.Overwrite, h.cfg.CollisionRetryLimit)
	if err != nil {
		return nil, err
	}

	return &ValidatedFile{
		Field:        h.cfg.Field,
		Name:         name,
		Path:         filepath.Join(h.cfg.Directory, name),
		Size:         size,
		ContentType:  contentType,
		Kind:         h.cfg.Kind,
		Stem:         stem,
		Ext:          ext,
		Directory:    h.cfg.Directory,
		SourcePath:   src.Path,
		Overwrite:    h.cfg.Overwrite,
		Attempt:      attempt,
		AttemptLimit: h.cfg.CollisionRetryLimit,
	}, nil
}

func (h *fileHandler) accept(vf *ValidatedFile) *ValidatedFile {
	h.dest = vf.Path
	h.logger.Debug("upload validated",
		zap.String("name", vf.Name),
		zap.Int64("size", vf.Size),
		zap.String("type", vf.ContentType))
	return vf
}

// FileHandler applies only the generic checks.
type FileHandler struct {
	fileHandler
}

// Behave validates src and computes its destination.
func (h *FileHandler) Behave(ctx context.Context, src Source) (*ValidatedFile, error) {
	vf, err := h.validate(ctx, src)
	if err != nil {
		return nil, err
	}
	return h.accept(vf), nil
}
