package archive

import (
	"context"
	"fmt"
)

// StoreType names an archive backend.
type StoreType string

const (
	StoreTypeNone StoreType = "none"
	StoreTypeFS   StoreType = "fs"
	StoreTypeS3   StoreType = "s3"
	StoreTypeGCS  StoreType = "gcs"
)

// Config selects and locates an archive backend.
type Config struct {
	Type     StoreType `json:"type" yaml:"type"`
	Path     string    `json:"path,omitempty" yaml:"path,omitempty"`
	Bucket   string    `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Region   string    `json:"region,omitempty" yaml:"region,omitempty"`
	Endpoint string    `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Prefix   string    `json:"prefix,omitempty" yaml:"prefix,omitempty"`
}

// NewStoreFromConfig builds the configured backend. It returns a nil Store
// for StoreTypeNone (or an empty type).
func NewStoreFromConfig(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Type {
	case "", StoreTypeNone:
		return nil, nil
	case StoreTypeFS:
		dir := cfg.Path
		if dir == "" {
			dir = "data/archive"
		}
		return NewFileStore(dir)
	case StoreTypeS3:
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("archive: bucket is required for s3")
		}
		region := cfg.Region
		if region == "" {
			region = "us-east-1"
		}
		return NewS3Store(ctx, S3Config{
			Bucket:   cfg.Bucket,
			Region:   region,
			Endpoint: cfg.Endpoint,
			Prefix:   cfg.Prefix,
		})
	case StoreTypeGCS:
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("archive: bucket is required for gcs")
		}
		return newGCSStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("archive: unsupported store type %q", cfg.Type)
	}
}
