package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GoogleCloudStorage mirrors uploads into a GCS bucket.
type GoogleCloudStorage struct {
	client     *storage.Client
	bucketName string
	prefix     string
}

// NewGoogleCloudStorage creates an uninitialised GCS provider.
func NewGoogleCloudStorage() *GoogleCloudStorage {
	return &GoogleCloudStorage{}
}

// Initialize requires "bucket"; "prefix", "credential_file" and "endpoint" are optional.
func (g *GoogleCloudStorage) Initialize(config map[string]string) error {
	g.bucketName = config["bucket"]
	if g.bucketName == "" {
		return fmt.Errorf("bucket is required for Google Cloud Storage")
	}
	g.prefix = config["prefix"]

	var opts []option.ClientOption
	if credFile := config["credential_file"]; credFile != "" {
		opts = append(opts, option.WithCredentialsFile(credFile))
	}
	if endpoint := config["endpoint"]; endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint), option.WithoutAuthentication())
	}

	client, err := storage.NewClient(context.Background(), opts...)
	if err != nil {
		return fmt.Errorf("failed to create Google Cloud Storage client: %w", err)
	}
	g.client = client
	return nil
}

// Store writes content to prefix+key.
func (g *GoogleCloudStorage) Store(ctx context.Context, key string, content io.Reader, size int64, metadata map[string]string) (string, error) {
	objectName := path.Join(g.prefix, key)
	writer := g.client.Bucket(g.bucketName).Object(objectName).NewWriter(ctx)
	writer.Metadata = metadata
	writer.ContentType = metadata["contentType"]

	if _, err := io.Copy(writer, content); err != nil {
		writer.Close()
		return "", fmt.Errorf("failed to write file content to GCS: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize file upload to GCS: %w", err)
	}
	return objectName, nil
}

// Delete removes an object from the bucket.
func (g *GoogleCloudStorage) Delete(ctx context.Context, id string) error {
	if err := g.client.Bucket(g.bucketName).Object(id).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete file from GCS: %w", err)
	}
	return nil
}

// List returns the objects under the provider prefix joined with prefix.
func (g *GoogleCloudStorage) List(ctx context.Context, prefix string) ([]FileInfo, error) {
	it := g.client.Bucket(g.bucketName).Objects(ctx, &storage.Query{Prefix: objectPrefix(g.prefix, prefix)})

	var files []FileInfo
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list files from GCS: %w", err)
		}
		files = append(files, FileInfo{
			ID:          attrs.Name,
			Name:        path.Base(attrs.Name),
			Size:        attrs.Size,
			ContentType: attrs.ContentType,
			ModifiedAt:  attrs.Updated.Unix(),
			Metadata:    attrs.Metadata,
		})
	}
	return files, nil
}
