package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const metaSuffix = ".meta"

// LocalStorage is a Provider backed by a directory, typically a backup volume.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates an uninitialised local provider.
func NewLocalStorage() *LocalStorage {
	return &LocalStorage{}
}

// Initialize reads "base_path" (default ./mirror) and creates it.
func (l *LocalStorage) Initialize(config map[string]string) error {
	l.basePath = config["base_path"]
	if l.basePath == "" {
		l.basePath = "./mirror"
	}
	if err := os.MkdirAll(l.basePath, 0o755); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}
	return nil
}

func (l *LocalStorage) resolve(key string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(key))
	if clean == string(filepath.Separator) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(l.basePath, clean), nil
}

// Store writes content to basePath/key, replacing any previous object.
func (l *LocalStorage) Store(ctx context.Context, key string, content io.Reader, size int64, metadata map[string]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	target, err := l.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("failed to create object directory: %w", err)
	}
	f, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := io.Copy(f, content); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write file content: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to write file content: %w", err)
	}
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err == nil {
			err = os.WriteFile(target+metaSuffix, raw, 0o644)
		}
		if err != nil {
			return "", fmt.Errorf("failed to write metadata: %w", err)
		}
	}
	rel, err := filepath.Rel(l.basePath, target)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// Delete removes an object and its metadata file.
func (l *LocalStorage) Delete(ctx context.Context, id string) error {
	target, err := l.resolve(id)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	_ = os.Remove(target + metaSuffix)
	return nil
}

// List walks basePath and returns objects whose key starts with prefix.
func (l *LocalStorage) List(ctx context.Context, prefix string) ([]FileInfo, error) {
	var files []FileInfo
	err := filepath.WalkDir(l.basePath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(d.Name(), metaSuffix) {
			return nil
		}
		rel, err := filepath.Rel(l.basePath, path)
		if err != nil {
			return err
		}
		id := filepath.ToSlash(rel)
		if !strings.HasPrefix(id, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		fi := FileInfo{ID: id, Name: d.Name(), Size: info.Size(), ModifiedAt: info.ModTime().Unix()}
		if raw, err := os.ReadFile(path + metaSuffix); err == nil {
			_ = json.Unmarshal(raw, &fi.Metadata)
			fi.ContentType = fi.Metadata["contentType"]
		}
		files = append(files, fi)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	return files, nil
}

// BasePath returns the provider root.
func (l *LocalStorage) BasePath() string {
	return l.basePath
}
