package storage

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// AmazonS3Storage mirrors uploads into an S3 bucket.
type AmazonS3Storage struct {
	bucket   string
	prefix   string
	s3Client *s3.S3
	uploader *s3manager.Uploader
}

// NewAmazonS3Storage creates an uninitialised S3 provider.
func NewAmazonS3Storage() *AmazonS3Storage {
	return &AmazonS3Storage{}
}

// Initialize requires "region" and "bucket"; "prefix", "endpoint",
// "access_key" and "secret_key" are optional. Without keys the default AWS
// credential chain is used.
func (a *AmazonS3Storage) Initialize(config map[string]string) error {
	region := config["region"]
	if region == "" {
		return fmt.Errorf("region is required for Amazon S3 storage")
	}
	a.bucket = config["bucket"]
	if a.bucket == "" {
		return fmt.Errorf("bucket is required for Amazon S3 storage")
	}
	a.prefix = config["prefix"]

	awsCfg := &aws.Config{Region: aws.String(region)}
	if endpoint := config["endpoint"]; endpoint != "" {
		awsCfg.Endpoint = aws.String(endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	if ak, sk := config["access_key"], config["secret_key"]; ak != "" && sk != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(ak, sk, "")
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return fmt.Errorf("failed to create AWS session: %w", err)
	}
	a.s3Client = s3.New(sess)
	a.uploader = s3manager.NewUploader(sess)
	return nil
}

// Store uploads content to prefix+key.
func (a *AmazonS3Storage) Store(ctx context.Context, key string, content io.Reader, size int64, metadata map[string]string) (string, error) {
	objectKey := path.Join(a.prefix, key)

	s3Metadata := make(map[string]*string, len(metadata))
	for k, v := range metadata {
		s3Metadata[k] = aws.String(v)
	}
	input := &s3manager.UploadInput{
		Bucket:   aws.String(a.bucket),
		Key:      aws.String(objectKey),
		Body:     content,
		Metadata: s3Metadata,
	}
	if ct := metadata["contentType"]; ct != "" {
		input.ContentType = aws.String(ct)
	}
	if _, err := a.uploader.UploadWithContext(ctx, input); err != nil {
		return "", fmt.Errorf("failed to upload file to S3: %w", err)
	}
	return objectKey, nil
}

// Delete removes an object from the bucket.
func (a *AmazonS3Storage) Delete(ctx context.Context, id string) error {
	_, err := a.s3Client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		return fmt.Errorf("failed to delete file from S3: %w", err)
	}
	return nil
}

// List returns the objects under the provider prefix joined with prefix.
func (a *AmazonS3Storage) List(ctx context.Context, prefix string) ([]FileInfo, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(objectPrefix(a.prefix, prefix)),
	}
	var files []FileInfo
	err := a.s3Client.ListObjectsV2PagesWithContext(ctx, input, func(out *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range out.Contents {
			fi := FileInfo{
				ID:   aws.StringValue(obj.Key),
				Name: path.Base(aws.StringValue(obj.Key)),
				Size: aws.Int64Value(obj.Size),
			}
			if obj.LastModified != nil {
				fi.ModifiedAt = obj.LastModified.Unix()
			}
			files = append(files, fi)
		}
		return !lastPage
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list files from S3: %w", err)
	}
	return files, nil
}
