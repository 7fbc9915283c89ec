package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/pithecene-io/assay/types"
)

// S3Config holds configuration for the S3 audit backend.
type S3Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string
	// Prefix is the key prefix within the bucket (optional).
	Prefix string
	// Region is the AWS region (optional, uses default chain if empty).
	Region string
	// Endpoint is a custom S3 endpoint URL for S3-compatible providers
	// (e.g. Cloudflare R2, MinIO). Empty uses the default AWS endpoint.
	Endpoint string
	// UsePathStyle forces path-style addressing (bucket in path, not
	// subdomain). Required by most S3-compatible providers.
	UsePathStyle bool
}

// Validate checks that required S3 configuration is present.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("S3 bucket is required")
	}
	return nil
}

// ParseS3Path parses a path in format "bucket/prefix" or "bucket".
func ParseS3Path(path string) (bucket, prefix string) {
	parts := strings.SplitN(path, "/", 2)
	bucket = parts[0]
	if len(parts) > 1 {
		prefix = parts[1]
	}
	return bucket, prefix
}

// ObjectPutter is the slice of the S3 client the sink needs.
// Satisfied by *s3.Client; stubs satisfy it in tests.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink buffers the audit stream in memory and uploads it as one
// JSONL object at Close: <prefix>/scenario=<s>/day=<d>/run_id=<r>/audit.jsonl.
//
// The whole-object upload keeps the artifact atomic: a partial run
// never leaves a truncated audit object behind.
type S3Sink struct {
	client ObjectPutter
	bucket string
	key    string
	buf    bytes.Buffer
}

// NewS3Sink creates an S3 sink using the AWS SDK default credential
// chain (env vars, shared config, IAM role).
func NewS3Sink(ctx context.Context, s3cfg S3Config, p Partition) (*S3Sink, error) {
	if err := s3cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []func(*config.LoadOptions) error
	if s3cfg.Region != "" {
		opts = append(opts, config.WithRegion(s3cfg.Region))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if s3cfg.Endpoint != "" {
		endpoint := s3cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	if s3cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return newS3Sink(s3.NewFromConfig(awsConfig, s3Opts...), s3cfg, p), nil
}

// newS3Sink wires an S3 sink to a client; split from NewS3Sink so
// tests can inject an ObjectPutter.
func newS3Sink(client ObjectPutter, s3cfg S3Config, p Partition) *S3Sink {
	key := p.Path() + "/" + AuditFileName
	if s3cfg.Prefix != "" {
		key = strings.TrimSuffix(s3cfg.Prefix, "/") + "/" + key
	}
	return &S3Sink{client: client, bucket: s3cfg.Bucket, key: key}
}

// Key returns the object key the audit stream uploads to.
func (s *S3Sink) Key() string {
	return s.key
}

// WriteAudit appends the batch to the in-memory object body.
func (s *S3Sink) WriteAudit(_ context.Context, records []*types.AuditRecord) error {
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal audit record at seq %d: %w", rec.Seq, err)
		}
		s.buf.Write(data)
		s.buf.WriteByte('\n')
	}
	return nil
}

// Close uploads the audit object. An empty run uploads an empty
// object so the partition still records that the run happened.
func (s *S3Sink) Close() error {
	_, err := s.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &s.key,
		Body:   bytes.NewReader(s.buf.Bytes()),
	})
	if err != nil {
		return fmt.Errorf("upload audit object s3://%s/%s: %w", s.bucket, s.key, err)
	}
	return nil
}

// Verify S3Sink implements Sink.
var _ Sink = (*S3Sink)(nil)
