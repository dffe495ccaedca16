// Package s3 stores snapshots as JSON objects in Amazon S3 or an
// S3-compatible service.
package s3

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/kbukum/scribe/provider"
	"github.com/kbukum/scribe/store"
)

// DefaultRegion is the default AWS region.
const DefaultRegion = "us-east-1"

// Config holds S3 configuration.
type Config struct {
	Bucket string `yaml:"bucket" mapstructure:"bucket"`
	// Prefix is prepended to every object key, e.g. "snapshots/".
	Prefix string `yaml:"prefix" mapstructure:"prefix"`
	Region string `yaml:"region" mapstructure:"region"`
	// Endpoint is a custom S3-compatible endpoint (e.g. MinIO).
	Endpoint       string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKey      string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey      string `yaml:"secret_key" mapstructure:"secret_key"`
	ForcePathStyle bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
}

// ApplyDefaults fills in zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Region == "" {
		c.Region = DefaultRegion
	}
}

// Validate checks that the bucket is set.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return stderrors.New("s3: bucket is required")
	}
	return nil
}

// NewClient builds an S3 client from cfg.
func NewClient(ctx context.Context, cfg Config) (*awss3.Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}

	return awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	}), nil
}

// Store implements provider.ContextStore with one object per key. TTLs are
// recorded as object expiry metadata and enforced on Load.
type Store[C any] struct {
	client *awss3.Client
	bucket string
	prefix string
	now    func() time.Time
}

const expiresMeta = "expires-at"

// NewStore creates a typed store.
func NewStore[C any](client *awss3.Client, cfg Config) *Store[C] {
	return &Store[C]{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix, now: time.Now}
}

func (s *Store[C]) objectKey(key string) string {
	return s.prefix + strings.ReplaceAll(key, ":", "/") + ".json"
}

// Load returns (nil, nil) if the object is missing or expired.
func (s *Store[C]) Load(ctx context.Context, key string) (*C, error) {
	out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if stderrors.As(err, &nsk) {
			return nil, nil
		}
		return nil, fmt.Errorf("s3 store load %q: %w", key, err)
	}
	defer out.Body.Close() //nolint:errcheck // read-only body

	if v, ok := out.Metadata[expiresMeta]; ok {
		if deadline, perr := time.Parse(time.RFC3339Nano, v); perr == nil && store.Expired(deadline, s.now()) {
			_ = s.Delete(ctx, key)
			return nil, nil
		}
	}

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 store read %q: %w", key, err)
	}
	return store.Unmarshal[C](key, data)
}

// Save puts the object.
func (s *Store[C]) Save(ctx context.Context, key string, val *C, ttl time.Duration) error {
	data, err := store.Marshal(key, val)
	if err != nil {
		return err
	}
	input := &awss3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.objectKey(key)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	}
	if deadline := store.Expiry(ttl, s.now()); !deadline.IsZero() {
		input.Metadata = map[string]string{expiresMeta: deadline.UTC().Format(time.RFC3339Nano)}
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("s3 store save %q: %w", key, err)
	}
	return nil
}

// Delete removes the object. S3 treats a missing object as deleted.
func (s *Store[C]) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return fmt.Errorf("s3 store delete %q: %w", key, err)
	}
	return nil
}

var _ provider.ContextStore[any] = (*Store[any])(nil)
