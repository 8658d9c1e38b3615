package s3

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var ErrEmptyKey = errors.New("object key is empty")

const defaultPhotoURLTTL = 15 * time.Minute

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

func NewClient(cfg Config) (*minio.Client, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	return client, nil
}

// PhotoSigner issues short-lived read URLs for profile photos owned by the
// profile service.
type PhotoSigner struct {
	client *minio.Client
	bucket string
	ttl    time.Duration
}

func NewPhotoSigner(client *minio.Client, bucket string, ttl time.Duration) *PhotoSigner {
	if ttl <= 0 {
		ttl = defaultPhotoURLTTL
	}
	return &PhotoSigner{
		client: client,
		bucket: strings.TrimSpace(bucket),
		ttl:    ttl,
	}
}

func (s *PhotoSigner) PhotoURL(ctx context.Context, key string) (string, error) {
	if s == nil || s.client == nil {
		return "", fmt.Errorf("s3 client is nil")
	}
	if strings.TrimSpace(key) == "" {
		return "", ErrEmptyKey
	}

	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign photo %q: %w", key, err)
	}

	return presigned.String(), nil
}
