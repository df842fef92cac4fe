// Package common defines the storage adapter contract
package common

import (
	"context"
	"time"
)

// Adapter is implemented by every object storage backend
type Adapter interface {
	// TestConnection verifies the bucket is reachable with the configured credentials
	TestConnection(ctx context.Context) error

	// UploadFile stores localPath under remotePath with the given user metadata
	UploadFile(ctx context.Context, localPath, remotePath string, metadata map[string]string) (*UploadResult, error)

	// CleanupOldFiles deletes objects under prefix older than retentionDays and returns their keys
	CleanupOldFiles(ctx context.Context, retentionDays int, prefix string) ([]string, error)

	ListFiles(ctx context.Context, prefix string) ([]Object, error)
	DeleteFile(ctx context.Context, key string) error

	// Info describes the backend without credentials
	Info() map[string]any
}

// Object is a stored file
type Object struct {
	Key          string            `json:"key" yaml:"key"`
	Size         int64             `json:"size" yaml:"size"`
	LastModified time.Time         `json:"lastModified" yaml:"lastModified"`
	ETag         string            `json:"etag,omitempty" yaml:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// UploadResult describes a finished upload
type UploadResult struct {
	Key       string        `json:"key"`
	Location  string        `json:"location"`
	SizeBytes int64         `json:"sizeBytes"`
	ETag      string        `json:"etag,omitempty"`
	Duration  time.Duration `json:"duration"`
}
