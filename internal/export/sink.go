package export

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/masivos/admin-gateway/internal/config"
)

// Sink stores export files.
type Sink interface {
	// Put stores body under name and returns where it was written.
	Put(ctx context.Context, name string, body []byte) (string, error)
	Name() string
}

// NewSink builds the sink selected by cfg.Sink.
func NewSink(ctx context.Context, cfg config.ExportConfig) (Sink, error) {
	switch cfg.Sink {
	case "", "file":
		return NewFileSink(cfg.LocalPath), nil
	case "s3":
		return NewS3Sink(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown export sink %q", cfg.Sink)
	}
}

// FileSink writes exports into a local directory.
type FileSink struct {
	Dir string
}

// NewFileSink creates a FileSink writing into dir.
func NewFileSink(dir string) *FileSink {
	if dir == "" {
		dir = "."
	}
	return &FileSink{Dir: dir}
}

func (s *FileSink) Name() string { return "file" }

func (s *FileSink) Put(_ context.Context, name string, body []byte) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("creating export dir: %w", err)
	}
	p := filepath.Join(s.Dir, filepath.Base(name))
	if err := os.WriteFile(p, body, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", p, err)
	}
	return p, nil
}

// S3API is the part of the S3 client used by S3Sink.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Sink uploads exports to an S3 bucket.
type S3Sink struct {
	client S3API
	bucket string
	prefix string
}

// NewS3Sink loads AWS configuration and creates an S3Sink. Static keys are
// used when set, the named profile or the default chain otherwise.
func NewS3Sink(ctx context.Context, cfg config.ExportConfig) (*S3Sink, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("export: s3 sink requires a bucket")
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSRegion)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	} else if cfg.AWSProfile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.AWSProfile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config for export sink: %w", err)
	}
	return NewS3SinkWithClient(s3.NewFromConfig(awsCfg), cfg.S3Bucket, cfg.S3Prefix), nil
}

// NewS3SinkWithClient creates an S3Sink around an existing client.
func NewS3SinkWithClient(client S3API, bucket, prefix string) *S3Sink {
	return &S3Sink{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (s *S3Sink) Name() string { return "s3" }

// Bucket returns the target bucket.
func (s *S3Sink) Bucket() string { return s.bucket }

func (s *S3Sink) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

func (s *S3Sink) Put(ctx context.Context, name string, body []byte) (string, error) {
	key := s.key(name)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("text/csv; charset=utf-8"),
	})
	if err != nil {
		return "", fmt.Errorf("S3 PutObject %s/%s: %w", s.bucket, key, err)
	}
	return "s3://" + s.bucket + "/" + key, nil
}

// Check verifies the bucket is reachable with the configured credentials.
func (s *S3Sink) Check(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return fmt.Errorf("S3 HeadBucket %s: %w", s.bucket, err)
	}
	return nil
}
