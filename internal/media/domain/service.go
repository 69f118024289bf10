package domain

import (
	"context"
	"errors"
)

// MaxUploadBytes bounds an uploaded image.
const MaxUploadBytes = 5 << 20

type Service interface {
	UploadProductImage(ctx context.Context, req UploadRequest) (*UploadResult, error)
}

// Store persists public objects.
type Store interface {
	Put(ctx context.Context, key, contentType string, body []byte) error
	// URL is the public address of key.
	URL(key string) string
}

type UploadRequest struct {
	Filename string
	Data     []byte
}

type UploadResult struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	Resized     bool   `json:"resized"`
}

var (
	ErrEmptyFile          = errors.New("empty_file")
	ErrFileTooLarge       = errors.New("file_too_large")
	ErrUnsupportedType    = errors.New("unsupported_media_type")
	ErrStorageUnavailable = errors.New("storage_unavailable")
)
