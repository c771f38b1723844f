package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	appErrors "github.com/example/fileuploader/internal/errors"
)

// PrepareDirectory creates dir if needed, resolves it to an absolute path with
// symlinks evaluated, and proves it is writable by creating a probe file.
func PrepareDirectory(dir string) (string, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return "", appErrors.Clone(appErrors.ErrUploadPath, "no upload destination directory configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrUploadPath, "")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrUploadPath, "")
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrUploadPath, "")
	}
	if !info.IsDir() {
		return "", appErrors.Clonef(appErrors.ErrUploadPath, "upload destination %s is not a directory", abs)
	}
	if err := probeWritable(abs); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrDirectoryNotWritable, "")
	}
	return abs, nil
}

func probeWritable(dir string) error {
	probe := filepath.Join(dir, ".write-probe-"+uuid.NewString())
	f, err := os.OpenFile(probe, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create probe file: %w", err)
	}
	_ = f.Close()
	return os.Remove(probe)
}
