// Package storage persists validated uploads and optionally mirrors them to a
// secondary provider such as a local backup directory, Amazon S3 or Google
// Cloud Storage.
package storage

import (
	"context"
	"io"
	"strings"
)

// Provider is a secondary store committed uploads can be copied to.
type Provider interface {
	// Initialize sets up the provider from a flat option map.
	Initialize(config map[string]string) error

	// Store writes content under key and returns the stored object id.
	Store(ctx context.Context, key string, content io.Reader, size int64, metadata map[string]string) (string, error)

	// Delete removes the object stored under id.
	Delete(ctx context.Context, id string) error

	// List returns the objects whose key starts with prefix.
	List(ctx context.Context, prefix string) ([]FileInfo, error)
}

// FileInfo describes one stored object.
type FileInfo struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Size        int64             `json:"size"`
	ContentType string            `json:"content_type,omitempty"`
	ModifiedAt  int64             `json:"modified_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Config selects and configures the mirror provider.
type Config struct {
	// Provider type: "local", "s3" or "gcs". Empty disables mirroring.
	Provider string            `mapstructure:"provider" json:"provider"`
	Prefix   string            `mapstructure:"prefix" json:"prefix"`
	Options  map[string]string `mapstructure:"options" json:"options"`
}

// objectPrefix scopes a listing prefix under a provider's own key prefix.
func objectPrefix(base, prefix string) string {
	if base == "" {
		return prefix
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(prefix, "/")
}
