// Package s3 publishes exported calendar feeds to an S3-compatible bucket.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"slotkeeper/internal/app/policies"
)

type Options struct {
	Endpoint       string
	PublicEndpoint string
	AccessKey      string
	SecretKey      string
	Bucket         string
	UseSSL         bool
	// PublicRead grants anonymous GET on the bucket when it is created, so
	// calendar clients can subscribe to the feed URL directly.
	PublicRead bool
}

// Publisher stores calendar feeds and returns the URL they are served from.
type Publisher struct {
	bucket     string
	publicBase string
	publicRead bool
	client     *minio.Client
	logger     *slog.Logger

	bucketOnce sync.Once
	bucketErr  error
}

func NewPublisher(opts Options, logger *slog.Logger) (*Publisher, error) {
	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		return nil, errors.New("s3: endpoint is required")
	}
	bucket := strings.TrimSpace(opts.Bucket)
	if bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}

	client, err := minio.New(hostOf(endpoint), &minio.Options{
		Creds:  credentials.NewStaticV4(strings.TrimSpace(opts.AccessKey), strings.TrimSpace(opts.SecretKey), ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("s3: create client: %w", err)
	}

	base := strings.TrimSpace(opts.PublicEndpoint)
	if base == "" {
		base = endpoint
	}
	if !strings.Contains(base, "://") {
		scheme := "http://"
		if opts.UseSSL {
			scheme = "https://"
		}
		base = scheme + base
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		bucket:     bucket,
		publicBase: strings.TrimRight(base, "/"),
		publicRead: opts.PublicRead,
		client:     client,
		logger:     logger,
	}, nil
}

// Upload overwrites the object at key; feeds are regenerated, never appended.
func (p *Publisher) Upload(ctx context.Context, key string, reader io.Reader, contentType string) (string, error) {
	if reader == nil {
		return "", errors.New("s3: reader is required")
	}
	key = cleanKey(key)
	if key == "" {
		return "", errors.New("s3: object key is required")
	}
	if err := p.ensureBucket(ctx); err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	info, err := p.client.PutObject(ctx, p.bucket, key, reader, -1, minio.PutObjectOptions{
		ContentType:        contentType,
		ContentDisposition: fmt.Sprintf("inline; filename=%q", path.Base(key)),
		CacheControl:       "no-cache",
	})
	if err != nil {
		return "", fmt.Errorf("s3: put object: %w", err)
	}

	publicURL := p.objectURL(key)
	p.logger.InfoContext(ctx, "calendar feed published",
		slog.String("bucket", p.bucket),
		slog.String("key", key),
		slog.Int64("size", info.Size),
		slog.String("url", publicURL),
	)
	return publicURL, nil
}

// Ping reports whether the bucket endpoint answers.
func (p *Publisher) Ping(ctx context.Context) error {
	if _, err := p.client.BucketExists(ctx, p.bucket); err != nil {
		return fmt.Errorf("s3: %w", err)
	}
	return nil
}

func (p *Publisher) ensureBucket(ctx context.Context) error {
	p.bucketOnce.Do(func() {
		exists, err := p.client.BucketExists(ctx, p.bucket)
		if err != nil {
			p.bucketErr = fmt.Errorf("s3: check bucket: %w", err)
			return
		}
		if exists {
			return
		}
		if err := p.client.MakeBucket(ctx, p.bucket, minio.MakeBucketOptions{}); err != nil {
			p.bucketErr = fmt.Errorf("s3: create bucket: %w", err)
			return
		}
		if p.publicRead {
			p.bucketErr = p.client.SetBucketPolicy(ctx, p.bucket, readOnlyPolicy(p.bucket))
			if p.bucketErr != nil {
				p.bucketErr = fmt.Errorf("s3: set bucket policy: %w", p.bucketErr)
			}
		}
	})
	return p.bucketErr
}

func (p *Publisher) objectURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", p.publicBase, p.bucket, key)
}

func readOnlyPolicy(bucket string) string {
	return fmt.Sprintf(`{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["arn:aws:s3:::%s/*"]}]}`, bucket)
}

func cleanKey(key string) string {
	key = strings.Trim(strings.TrimSpace(key), "/")
	if key == "" {
		return ""
	}
	cleaned := path.Clean(key)
	if cleaned == "." || strings.HasPrefix(cleaned, "..") {
		return ""
	}
	return cleaned
}

func hostOf(endpoint string) string {
	if parsed, err := url.Parse(endpoint); err == nil && parsed.Host != "" {
		return parsed.Host
	}
	return endpoint
}

var _ policies.Uploader = (*Publisher)(nil)
