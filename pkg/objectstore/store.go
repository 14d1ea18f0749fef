// Package objectstore resolves recording object keys to short-lived,
// signed download URLs (signed-URL collaborator, consumed by
// pkg/asr.ObjectStore). It also issues signed upload URLs and checks
// whether an object exists; no code in this module calls those two.
package objectstore

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DefaultSignedURLTTL bounds how long a presigned download URL stays
// valid before the caller must request a new one.
const DefaultSignedURLTTL = 15 * time.Minute

// Store issues presigned GET URLs against a single S3-compatible bucket.
type Store struct {
	client *s3.Client
	presign *s3.PresignClient
	bucket string
	signedTTL time.Duration
}

// New builds a Store from the ambient AWS configuration (environment,
// shared config file, or instance role), scoped to bucket.
func New(ctx context.Context, bucket string, optFns...func(*awsconfig.LoadOptions) error) (*Store, error) {
	cfg, err:= awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client:= s3.NewFromConfig(cfg)
	return &Store{
		client: client,
		presign: s3.NewPresignClient(client),
		bucket: bucket,
		signedTTL: DefaultSignedURLTTL,
	}, nil
}

// SignedURL implements pkg/asr.ObjectStore and any other collaborator
// needing a time-limited, directly fetchable URL for an object key.
func (s *Store) SignedURL(ctx context.Context, objectKey string) (string, error) {
	req, err:= s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key: aws.String(objectKey),
		}, s3.WithPresignExpires(s.signedTTL))
	if err != nil {
		return "", fmt.Errorf("presign object %s: %w", objectKey, err)
	}
	return req.URL, nil
}

// PutSignedURL returns a presigned PUT URL through which a client can
// push recording audio directly to the bucket.
func (s *Store) PutSignedURL(ctx context.Context, objectKey string, contentType string) (string, error) {
	req, err:= s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key: aws.String(objectKey),
			ContentType: aws.String(contentType),
		}, s3.WithPresignExpires(s.signedTTL))
	if err != nil {
		return "", fmt.Errorf("presign upload for %s: %w", objectKey, err)
	}
	return req.URL, nil
}

// Exists reports whether objectKey is present in the bucket. Any
// HeadObject error is reported as absent, with a nil error.
func (s *Store) Exists(ctx context.Context, objectKey string) (bool, error) {
	_, err:= s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key: aws.String(objectKey),
	})
	if err != nil {
		return false, nil
	}
	return true, nil
}
