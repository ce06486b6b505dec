package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API is the subset of the S3 client used by S3Sink.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink writes each snapshot as a dated JSON object.
type S3Sink struct {
	client S3API
	bucket string
}

func NewS3Sink(client S3API, bucket string) *S3Sink {
	if client == nil {
		panic("snapshot: s3 client required")
	}
	if bucket == "" {
		panic("snapshot: bucket required")
	}
	return &S3Sink{client: client, bucket: bucket}
}

func (s *S3Sink) Name() string { return "s3" }

func (s *S3Sink) Write(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("snapshot: marshal: %w", err)
	}
	key := ObjectKey(snap.TakenAt)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("snapshot: s3 put %s: %w", key, err)
	}
	return nil
}

// ObjectKey returns snapshots/v1/YYYY/MM/DD/<unix>.json for t in UTC.
func ObjectKey(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("snapshots/v1/%d/%02d/%02d/%d.json", t.Year(), t.Month(), t.Day(), t.Unix())
}
