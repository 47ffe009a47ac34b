// Package imagestores3 implements the image store on Amazon S3.
package imagestores3

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/relightlabs/relight/pkg/imagestore"
)

// S3Store implements imagestore.Store on an S3 bucket.
type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	prefix  string
}

// New creates an S3-backed image store. prefix may be empty; when set
// every key is stored under it.
func New(client *s3.Client, bucket, prefix string) *S3Store {
	return &S3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  bucket,
		prefix:  prefix,
	}
}

func (s *S3Store) Upload(ctx context.Context, key string, data []byte, meta imagestore.Meta) (string, error) {
	if len(data) == 0 {
		return "", imagestore.NewEmptyData()
	}

	fullKey := s.fullKey(key)
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fullKey),
		Body:   bytes.NewReader(data),
	}
	if meta.ContentType != "" {
		input.ContentType = aws.String(meta.ContentType)
	}
	if len(meta.Metadata) > 0 {
		input.Metadata = meta.Metadata
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", imagestore.WrapUpload(err).
			WithDetail("bucket", s.bucket).
			WithDetail("key", fullKey)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, fullKey), nil
}

func (s *S3Store) PresignedDownloadURL(ctx context.Context, key string, expiration time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
	}, s3.WithPresignExpires(expiration))
	if err != nil {
		return "", imagestore.WrapPresign(err).
			WithDetail("bucket", s.bucket).
			WithDetail("key", s.fullKey(key))
	}
	return req.URL, nil
}

func (s *S3Store) fullKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}
