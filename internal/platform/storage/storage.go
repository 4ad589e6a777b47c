package storage

import (
	"context"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("file not found")

// Store keeps generated documents by key.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

type Config struct {
	Backend   string
	Dir       string
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "local", "":
		return NewLocalStore(cfg.Dir)
	case "s3":
		return NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
