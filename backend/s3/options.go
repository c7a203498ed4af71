package s3

import (
	"os"
	"strconv"
)

// Config holds configuration for the S3 store.
type Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string

	// Region is the AWS region (e.g., "eu-north-1").
	// If empty, uses AWS_REGION or AWS_DEFAULT_REGION.
	Region string

	// Endpoint is a custom endpoint URL for S3-compatible services
	// (MinIO, Cloudflare R2, ...). Leave empty for AWS S3.
	Endpoint string

	// Prefix is an optional key prefix, scoping the database to a
	// sub-tree of the bucket.
	Prefix string

	// AccessKeyID is the AWS access key ID.
	// If empty, uses AWS_ACCESS_KEY_ID or the ambient IAM role.
	AccessKeyID string

	// SecretAccessKey is the AWS secret access key.
	// If empty, uses AWS_SECRET_ACCESS_KEY or the ambient IAM role.
	SecretAccessKey string

	// SessionToken is an optional session token for temporary credentials.
	SessionToken string

	// UsePathStyle forces path-style addressing. Required for MinIO and
	// some other S3-compatible services.
	UsePathStyle bool

	// PartSize is the multipart upload part size in bytes.
	// Default: 5MB (the S3 minimum).
	PartSize int64

	// Concurrency is the number of concurrent upload goroutines.
	// Default: 5.
	Concurrency int
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		PartSize:    5 * 1024 * 1024,
		Concurrency: 5,
	}
}

// ConfigFromEnv creates a Config from environment variables.
// Environment variables:
//   - EVALDB_S3_BUCKET or AWS_S3_BUCKET: bucket name
//   - EVALDB_S3_REGION or AWS_REGION or AWS_DEFAULT_REGION: region
//   - EVALDB_S3_ENDPOINT: custom endpoint
//   - EVALDB_S3_PREFIX: key prefix
//   - AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY, AWS_SESSION_TOKEN
//   - EVALDB_S3_USE_PATH_STYLE: "true" for path-style addressing
func ConfigFromEnv() Config {
	config := DefaultConfig()

	if v := os.Getenv("EVALDB_S3_BUCKET"); v != "" {
		config.Bucket = v
	} else if v := os.Getenv("AWS_S3_BUCKET"); v != "" {
		config.Bucket = v
	}

	if v := os.Getenv("EVALDB_S3_REGION"); v != "" {
		config.Region = v
	} else if v := os.Getenv("AWS_REGION"); v != "" {
		config.Region = v
	} else if v := os.Getenv("AWS_DEFAULT_REGION"); v != "" {
		config.Region = v
	}

	if v := os.Getenv("EVALDB_S3_ENDPOINT"); v != "" {
		config.Endpoint = v
	}
	if v := os.Getenv("EVALDB_S3_PREFIX"); v != "" {
		config.Prefix = v
	}

	// The SDK also picks these up on its own; keeping them here makes the
	// effective configuration visible in one place.
	config.AccessKeyID = os.Getenv("AWS_ACCESS_KEY_ID")
	config.SecretAccessKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	config.SessionToken = os.Getenv("AWS_SESSION_TOKEN")

	if v := os.Getenv("EVALDB_S3_USE_PATH_STYLE"); v == "true" || v == "1" {
		config.UsePathStyle = true
	}
	return config
}

// ConfigFromMap creates a Config from a string map, as found in backend
// descriptors ("s3:bucket=eval-data,region=eu-north-1").
// Supported keys:
//   - bucket: bucket name (required)
//   - region: AWS region
//   - endpoint: custom endpoint URL
//   - prefix: key prefix
//   - access_key_id, secret_access_key, session_token
//   - use_path_style: "true" for path-style addressing
//   - part_size: multipart upload part size in bytes
//   - concurrency: number of concurrent upload goroutines
func ConfigFromMap(m map[string]string) Config {
	config := DefaultConfig()

	if v, ok := m["bucket"]; ok {
		config.Bucket = v
	}
	if v, ok := m["region"]; ok {
		config.Region = v
	}
	if v, ok := m["endpoint"]; ok {
		config.Endpoint = v
	}
	if v, ok := m["prefix"]; ok {
		config.Prefix = v
	}
	if v, ok := m["access_key_id"]; ok {
		config.AccessKeyID = v
	}
	if v, ok := m["secret_access_key"]; ok {
		config.SecretAccessKey = v
	}
	if v, ok := m["session_token"]; ok {
		config.SessionToken = v
	}
	if v, ok := m["use_path_style"]; ok && (v == "true" || v == "1") {
		config.UsePathStyle = true
	}
	if v, ok := m["part_size"]; ok {
		if size, err := strconv.ParseInt(v, 10, 64); err == nil && size > 0 {
			config.PartSize = size
		}
	}
	if v, ok := m["concurrency"]; ok {
		if c, err := strconv.Atoi(v); err == nil && c > 0 {
			config.Concurrency = c
		}
	}
	return config
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.Bucket == "" {
		return ErrBucketRequired
	}
	return nil
}
