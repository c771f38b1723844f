package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	appErrors "github.com/example/fileuploader/internal/errors"
)

// Placement describes where a validated upload should land.
type Placement struct {
	Source    string
	Directory string
	// Names are tried in order; the first one that can be created exclusively wins.
	Names     []string
	Overwrite bool
}

// Committer moves scratch files to their final destination.
type Committer struct {
	logger *zap.Logger
}

// NewCommitter creates a Committer. A nil logger discards output.
func NewCommitter(logger *zap.Logger) *Committer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Committer{logger: logger}
}

// Commit copies p.Source into the first free name of p.Names and falls back to
// renaming the source when the copy fails. Without Overwrite each name is
// reserved with an exclusive create, so concurrent commits never share a file.
func (c *Committer) Commit(ctx context.Context, p Placement) (string, string, error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	if len(p.Names) == 0 {
		return "", "", appErrors.Clone(appErrors.ErrFileCopying, "no destination name to commit to")
	}

	if p.Overwrite {
		target := filepath.Join(p.Directory, p.Names[0])
		f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			if rerr := os.Rename(p.Source, target); rerr != nil {
				return "", "", appErrors.Wrap(errors.Join(err, rerr), appErrors.ErrFileCopying, "")
			}
			return target, p.Names[0], nil
		}
		if err := c.fill(f, p.Source, target); err != nil {
			return "", "", err
		}
		return target, p.Names[0], nil
	}

	for _, name := range p.Names {
		target := filepath.Join(p.Directory, name)
		f, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if errors.Is(err, fs.ErrExist) {
			c.logger.Debug("destination taken, trying next name", zap.String("path", target))
			continue
		}
		if err != nil {
			return "", "", appErrors.Wrap(err, appErrors.ErrFileCopying, "")
		}
		if err := c.fill(f, p.Source, target); err != nil {
			_ = os.Remove(target)
			return "", "", err
		}
		return target, name, nil
	}
	return "", "", appErrors.Clonef(appErrors.ErrFilenameCollision,
		"every candidate name in %s is taken", p.Directory)
}

// fill copies src into the already opened target, renaming src over target
// when the copy fails.
func (c *Committer) fill(f *os.File, src, target string) error {
	copyErr := copyInto(f, src)
	closeErr := f.Close()
	if copyErr == nil && closeErr == nil {
		return nil
	}
	err := errors.Join(copyErr, closeErr)
	c.logger.Warn("copy to destination failed, moving instead", zap.String("path", target), zap.Error(err))
	if rerr := os.Rename(src, target); rerr != nil {
		return appErrors.Wrap(errors.Join(err, rerr), appErrors.ErrFileCopying, "")
	}
	return nil
}

func copyInto(dst io.Writer, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()
	if _, err := io.Copy(dst, in); err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	return nil
}
