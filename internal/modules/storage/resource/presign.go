package resource

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/itorigin/site/internal/config"
)

// ErrStorageDisabled is returned when no bucket is configured.
var ErrStorageDisabled = errors.New("resource storage is not configured")

const defaultPresignTTL = 15 * time.Minute

// Presigner issues time-limited download links for stored objects.
type Presigner interface {
	PresignGet(ctx context.Context, key string) (url string, expires time.Time, err error)
}

// S3Presigner signs GET requests against an S3-compatible bucket. Signing is
// local; no request reaches the bucket.
type S3Presigner struct {
	client *s3.PresignClient
	bucket string
	ttl    time.Duration
	now    func() time.Time
}

// NewS3Presigner builds a presigner from static credentials. It returns
// ErrStorageDisabled when the bucket or keys are missing.
func NewS3Presigner(cfg config.StorageConfig) (*S3Presigner, error) {
	if cfg.Bucket == "" || cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, ErrStorageDisabled
	}
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
		UsePathStyle: cfg.PathStyle,
	}
	if endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/"); endpoint != "" {
		if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
			endpoint = "https://" + endpoint
		}
		opts.BaseEndpoint = aws.String(endpoint)
	}
	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = defaultPresignTTL
	}
	return &S3Presigner{
		client: s3.NewPresignClient(s3.New(opts)),
		bucket: cfg.Bucket,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

func (p *S3Presigner) PresignGet(ctx context.Context, key string) (string, time.Time, error) {
	issued := p.now()
	req, err := p.client.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket:                     aws.String(p.bucket),
		Key:                        aws.String(key),
		ResponseContentDisposition: aws.String(fmt.Sprintf("attachment; filename=%q", path.Base(key))),
	}, s3.WithPresignExpires(p.ttl))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("presign %s: %w", key, err)
	}
	return req.URL, issued.Add(p.ttl), nil
}
