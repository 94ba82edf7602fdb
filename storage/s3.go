// Package storage publishes bundled assets to S3-compatible object storage.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ErrNoBucket is returned when an S3 config has no bucket.
var ErrNoBucket = errors.New("s3 bucket is required")

// S3Config holds S3 connection settings. Credentials always come from the
// AWS default chain (env, shared config, IAM role).
type S3Config struct {
	// Bucket is the S3 bucket name.
	Bucket string `yaml:"bucket"`
	// Prefix is an optional key prefix.
	Prefix string `yaml:"prefix"`
	// Region overrides the region from the default chain.
	Region string `yaml:"region"`
	// Endpoint is a custom endpoint for R2, MinIO and similar providers.
	Endpoint string `yaml:"endpoint"`
	// UsePathStyle forces path-style addressing.
	UsePathStyle bool `yaml:"path_style"`
}

// NewS3Client builds an S3 client from the default AWS config chain with
// the optional region, endpoint and path-style overrides.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	if cfg.Bucket == "" {
		return nil, ErrNoBucket
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(awsConfig, s3Opts...), nil
}
