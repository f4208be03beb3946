// Package storage keeps the original uploaded documents in MinIO.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/facturaIA/invoice-extraction-service/internal/models"
)

// ErrNotConfigured is returned when MINIO_ENDPOINT is unset.
var ErrNotConfigured = errors.New("object storage not configured")

// Config holds the MinIO connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// ConfigFromEnv reads MINIO_ENDPOINT, MINIO_ACCESS_KEY, MINIO_SECRET_KEY,
// MINIO_BUCKET and MINIO_USE_SSL.
func ConfigFromEnv() Config {
	cfg := Config{
		Endpoint:  os.Getenv("MINIO_ENDPOINT"),
		AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		SecretKey: os.Getenv("MINIO_SECRET_KEY"),
		Bucket:    os.Getenv("MINIO_BUCKET"),
		UseSSL:    os.Getenv("MINIO_USE_SSL") == "true",
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "invoices"
	}
	return cfg
}

// DocumentStore uploads documents under {dossier}/YYYY/MM/{filename}.
type DocumentStore struct {
	client *minio.Client
	bucket string
	now    func() time.Time
}

// New connects to MinIO and checks that the bucket exists.
func New(ctx context.Context, cfg Config) (*DocumentStore, error) {
	if cfg.Endpoint == "" {
		return nil, ErrNotConfigured
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %s does not exist", cfg.Bucket)
	}
	return &DocumentStore{client: client, bucket: cfg.Bucket, now: time.Now}, nil
}

// Put uploads doc and returns "bucket/object".
func (s *DocumentStore) Put(ctx context.Context, dossier string, doc models.Document) (string, error) {
	object := ObjectName(dossier, doc, s.now())
	contentType := doc.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, s.bucket, object, bytes.NewReader(doc.Data), int64(len(doc.Data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("failed to upload document: %w", err)
	}
	return s.bucket + "/" + object, nil
}

// PresignedURL returns a 24h download link for an object returned by Put.
func (s *DocumentStore) PresignedURL(ctx context.Context, objectPath string) (string, error) {
	object := strings.TrimPrefix(objectPath, s.bucket+"/")
	url, err := s.client.PresignedGetObject(ctx, s.bucket, object, 24*time.Hour, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return url.String(), nil
}

// Ping reports whether the bucket is reachable.
func (s *DocumentStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}

// ObjectName builds {dossier}/YYYY/MM/{timestamp}_{filename}. Documents
// without a dossier go under "unassigned".
func ObjectName(dossier string, doc models.Document, now time.Time) string {
	if dossier == "" {
		dossier = "unassigned"
	}
	name := path.Base(strings.ReplaceAll(doc.Filename, "\\", "/"))
	if name == "." || name == "/" {
		name = "document" + extensionFor(doc.ContentType)
	}
	return fmt.Sprintf("%s/%d/%02d/%s_%s", dossier, now.Year(), now.Month(), now.Format("20060102T150405"), name)
}

// extensionFor maps a content type to a file extension.
func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "application/pdf":
		return ".pdf"
	default:
		return ".bin"
	}
}
