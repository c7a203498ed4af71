// Package s3 provides an S3-compatible store for evaluation databases kept
// in object storage.
//
// This store works with:
//   - AWS S3
//   - Cloudflare R2
//   - MinIO
//   - Any S3-compatible object storage
//
// Basic usage:
//
//	store, err := s3.New(s3.Config{
//	    Bucket: "eval-data",
//	    Region: "eu-north-1",
//	})
//
// For S3-compatible services:
//
//	store, err := s3.New(s3.Config{
//	    Bucket:       "eval-data",
//	    Endpoint:     "http://localhost:9000",
//	    UsePathStyle: true,
//	})
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/evalkit/evaldb"
)

func init() {
	evaldb.Register("s3", NewFromConfig)
}

// ErrBucketRequired is returned when no bucket is configured.
var ErrBucketRequired = errors.New("s3: bucket is required")

// Store implements evaldb.Store over an S3 bucket (or a prefix within one).
type Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	config   Config
	closed   bool
	mu       sync.RWMutex
}

// New creates an S3 store with the given configuration.
func New(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.PartSize == 0 {
		cfg.PartSize = 5 * 1024 * 1024
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 5
	}

	var optFns []func(*config.LoadOptions) error
	if cfg.Region != "" {
		optFns = append(optFns, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			cfg.SessionToken,
		)
		optFns = append(optFns, config.WithCredentialsProvider(creds))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), optFns...)
	if err != nil {
		return nil, fmt.Errorf("s3: loading AWS config: %w", err)
	}

	var s3OptFns []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3OptFns = append(s3OptFns, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3OptFns = append(s3OptFns, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, s3OptFns...)
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = cfg.PartSize
		u.Concurrency = cfg.Concurrency
	})

	return &Store{
		client:   client,
		uploader: uploader,
		config:   cfg,
	}, nil
}

// NewFromConfig creates an S3 store from a config map.
// This is used by the evaldb registry.
func NewFromConfig(configMap map[string]string) (evaldb.Store, error) {
	return New(ConfigFromMap(configMap))
}

// NewWriter creates a writer for the given key. The object is uploaded when
// the writer is closed.
func (s *Store) NewWriter(ctx context.Context, key string) (io.WriteCloser, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &s3Writer{
		store: s,
		ctx:   ctx,
		key:   s.fullKey(key),
	}, nil
}

// NewReader creates a reader for the given key.
func (s *Store) NewReader(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	if err != nil {
		return nil, s.translateError(err, key)
	}
	return result.Body, nil
}

// Exists checks if a key holds an object.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := s.checkClosed(); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, s.translateError(err, key)
	}
	return true, nil
}

// Delete removes a key. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	if err != nil && !isNotFound(err) {
		return s.translateError(err, key)
	}
	return nil
}

// List lists keys with the given prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.config.Bucket),
		Prefix: aws.String(s.fullKey(prefix)),
	})
	for paginator.HasMorePages() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3: listing objects: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			rel := strings.TrimPrefix(*obj.Key, s.config.Prefix)
			rel = strings.TrimPrefix(rel, "/")
			if rel != "" {
				keys = append(keys, rel)
			}
		}
	}
	return keys, nil
}

// Close marks the store closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Stat returns metadata about the object at key. The modification time
// drives cache revalidation.
func (s *Store) Stat(ctx context.Context, key string) (evaldb.ObjectInfo, error) {
	if err := s.checkClosed(); err != nil {
		return evaldb.ObjectInfo{}, err
	}
	if err := ctx.Err(); err != nil {
		return evaldb.ObjectInfo{}, err
	}

	result, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	if err != nil {
		return evaldb.ObjectInfo{}, s.translateError(err, key)
	}

	info := evaldb.ObjectInfo{Key: key}
	if result.ContentLength != nil {
		info.Size = *result.ContentLength
	}
	if result.LastModified != nil {
		info.ModTime = *result.LastModified
	} else {
		info.ModTime = time.Time{}
	}
	return info, nil
}

// FilePath is not supported; objects live remotely.
func (s *Store) FilePath(ctx context.Context, key string) (string, error) {
	return "", fmt.Errorf("%w: S3 objects have no local file path", evaldb.ErrUnsupportedAccess)
}

// Features returns the capabilities of the S3 store.
func (s *Store) Features() evaldb.Features {
	return evaldb.Features{
		FilePath: false,
		Stat:     true,
	}
}

// fullKey returns the bucket key for a logical key.
func (s *Store) fullKey(key string) string {
	if s.config.Prefix == "" {
		return key
	}
	return path.Join(s.config.Prefix, key)
}

func (s *Store) checkClosed() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return evaldb.ErrBackendClosed
	}
	return nil
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr interface{ ErrorCode() string }
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

// translateError converts S3 errors to evaldb errors.
func (s *Store) translateError(err error, key string) error {
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		return fmt.Errorf("%w: %s", evaldb.ErrNotFound, key)
	}
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return fmt.Errorf("s3: bucket not found: %s", s.config.Bucket)
	}
	return fmt.Errorf("s3: %w", err)
}

// s3Writer buffers writes and uploads on Close.
type s3Writer struct {
	store  *Store
	ctx    context.Context
	key    string
	buffer bytes.Buffer
	closed bool
	mu     sync.Mutex
}

func (w *s3Writer) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, evaldb.ErrWriterClosed
	}
	return w.buffer.Write(p)
}

func (w *s3Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	_, err := w.store.uploader.Upload(w.ctx, &s3.PutObjectInput{
		Bucket: aws.String(w.store.config.Bucket),
		Key:    aws.String(w.key),
		Body:   bytes.NewReader(w.buffer.Bytes()),
	})
	if err != nil {
		return fmt.Errorf("s3: uploading object: %w", err)
	}
	return nil
}

var _ evaldb.ExtendedStore = (*Store)(nil)
