package storage

import (
	"context"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/pithecene-io/bundler/iox"
	"github.com/pithecene-io/bundler/log"
	"github.com/pithecene-io/bundler/metrics"
)

// PutObjectAPI is the subset of the S3 client the publisher uses.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// PublishResult lists what PublishDir uploaded.
type PublishResult struct {
	Keys  []string `json:"keys" yaml:"keys"`
	Bytes int64    `json:"bytes" yaml:"bytes"`
}

// Publisher uploads a local tree to a bucket.
type Publisher struct {
	client  PutObjectAPI
	bucket  string
	prefix  string
	logger  *log.Logger
	metrics *metrics.Collector
}

// NewPublisher creates a Publisher writing under bucket/prefix.
func NewPublisher(client PutObjectAPI, bucket, prefix string, logger *log.Logger, collector *metrics.Collector) *Publisher {
	return &Publisher{
		client:  client,
		bucket:  bucket,
		prefix:  strings.Trim(prefix, "/"),
		logger:  log.OrNop(logger).Named("storage"),
		metrics: collector,
	}
}

// PublishDir uploads every regular file under localDir. Object keys are
// prefix/keyPrefix/<path relative to localDir> with forward slashes.
// It stops at the first failed upload.
func (p *Publisher) PublishDir(ctx context.Context, localDir, keyPrefix string) (*PublishResult, error) {
	res := &PublishResult{Keys: []string{}}

	err := filepath.WalkDir(localDir, func(file string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(localDir, file)
		if err != nil {
			return err
		}
		key := p.objectKey(keyPrefix, filepath.ToSlash(rel))

		n, err := p.put(ctx, file, key)
		if err != nil {
			p.metrics.IncPublishFailure()
			return fmt.Errorf("publish %s: %w", key, err)
		}
		p.metrics.IncPublished()
		res.Keys = append(res.Keys, key)
		res.Bytes += n
		p.logger.Debug("object published", map[string]any{"key": key, "bytes": n})
		return nil
	})
	if err != nil {
		return res, err
	}

	p.logger.Info("directory published", map[string]any{
		"dir":     localDir,
		"bucket":  p.bucket,
		"objects": len(res.Keys),
		"bytes":   res.Bytes,
	})
	return res, nil
}

// PublishFile uploads one local file under prefix/key.
func (p *Publisher) PublishFile(ctx context.Context, localFile, key string) (int64, error) {
	key = p.objectKey("", strings.TrimLeft(filepath.ToSlash(key), "/"))
	n, err := p.put(ctx, localFile, key)
	if err != nil {
		p.metrics.IncPublishFailure()
		return 0, fmt.Errorf("publish %s: %w", key, err)
	}
	p.metrics.IncPublished()
	p.logger.Debug("object published", map[string]any{"key": key, "bytes": n})
	return n, nil
}

func (p *Publisher) put(ctx context.Context, file, key string) (int64, error) {
	f, err := os.Open(file)
	if err != nil {
		return 0, err
	}
	defer iox.DiscardClose(f)

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}

	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(ContentType(key)),
	})
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (p *Publisher) objectKey(keyPrefix, rel string) string {
	parts := make([]string, 0, 3)
	for _, s := range []string{p.prefix, strings.Trim(keyPrefix, "/"), rel} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return path.Join(parts...)
}

// ContentType maps a file name to its MIME type, defaulting to
// application/octet-stream.
func ContentType(name string) string {
	ext := strings.ToLower(path.Ext(name))
	switch ext {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".json":
		return "application/json"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
