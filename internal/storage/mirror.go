package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"

	"go.uber.org/zap"
)

// ErrNotMirrored is returned by Delete for ids outside the mirror.
var ErrNotMirrored = errors.New("object is not a mirrored upload")

// Mirror copies committed files to a Provider under prefix/field/name.
type Mirror struct {
	provider Provider
	prefix   string
	logger   *zap.Logger
}

// NewMirror wraps provider. A nil logger discards output.
func NewMirror(provider Provider, prefix string, logger *zap.Logger) *Mirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mirror{provider: provider, prefix: prefix, logger: logger}
}

// NewMirrorFromConfig returns nil when cfg.Provider is empty.
func NewMirrorFromConfig(f *Factory, cfg Config, logger *zap.Logger) (*Mirror, error) {
	if cfg.Provider == "" {
		return nil, nil
	}
	p, err := f.CreateProvider(cfg.Provider, cfg.Options)
	if err != nil {
		return nil, err
	}
	return NewMirror(p, cfg.Prefix, logger), nil
}

// Copy uploads the file at localPath and returns the remote object id.
func (m *Mirror) Copy(ctx context.Context, field, localPath, contentType string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open committed file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat committed file: %w", err)
	}
	key := path.Join(m.prefix, field, info.Name())
	id, err := m.provider.Store(ctx, key, f, info.Size(), map[string]string{
		"contentType": contentType,
		"field":       field,
	})
	if err != nil {
		return "", err
	}
	m.logger.Debug("upload mirrored", zap.String("id", id), zap.String("path", localPath))
	return id, nil
}

// List returns the mirrored objects of field, or of every field when field is
// empty.
func (m *Mirror) List(ctx context.Context, field string) ([]FileInfo, error) {
	prefix := path.Join(m.prefix, field)
	if prefix != "" {
		prefix += "/"
	}
	return m.provider.List(ctx, prefix)
}

// Delete removes a mirrored object by the id Copy returned. Ids that are not
// clean or that List does not report fail with ErrNotMirrored.
func (m *Mirror) Delete(ctx context.Context, id string) error {
	if id == "" || path.Clean("/" + id)[1:] != id {
		return fmt.Errorf("%w: %q", ErrNotMirrored, id)
	}
	files, err := m.List(ctx, "")
	if err != nil {
		return err
	}
	found := false
	for _, f := range files {
		if f.ID == id {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: %q", ErrNotMirrored, id)
	}
	if err := m.provider.Delete(ctx, id); err != nil {
		return err
	}
	m.logger.Debug("mirror object deleted", zap.String("id", id))
	return nil
}
