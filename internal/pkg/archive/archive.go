// Package archive keeps a copy of every verified webhook payload in object storage.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2/log"
)

// Archiver stores raw webhook payloads.
type Archiver interface {
	Archive(ctx context.Context, eventID string, payload []byte) error
}

// Noop discards payloads.
type Noop struct{}

func (Noop) Archive(context.Context, string, []byte) error { return nil }

// S3API is the subset of the S3 client used by S3Archiver.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Archiver writes payloads to a bucket.
type S3Archiver struct {
	client S3API
	bucket string
	now    func() time.Time
}

// NewS3Client creates an S3 client. Custom endpoints (localstack, minio) use
// path-style addressing.
func NewS3Client(awsConfig aws.Config) *s3.Client {
	return s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if awsConfig.BaseEndpoint != nil {
			o.UsePathStyle = true
		}
	})
}

func NewS3Archiver(client S3API, bucket string) *S3Archiver {
	return &S3Archiver{client: client, bucket: bucket, now: time.Now}
}

// CheckBucket verifies the bucket is reachable.
func (a *S3Archiver) CheckBucket(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)})
	if err != nil {
		return fmt.Errorf("bucket %s not accessible: %w", a.bucket, err)
	}
	log.Infof("[Archive] Using bucket %s for webhook payloads", a.bucket)
	return nil
}

// ObjectKey returns webhooks/YYYY/MM/DD/<event id>.json for the given time.
func ObjectKey(eventID string, at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("webhooks/%04d/%02d/%02d/%s.json", at.Year(), int(at.Month()), at.Day(), eventID)
}

func (a *S3Archiver) Archive(ctx context.Context, eventID string, payload []byte) error {
	key := ObjectKey(eventID, a.now())
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(payload),
		ContentLength: aws.Int64(int64(len(payload))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", a.bucket, key, err)
	}
	return nil
}
