// Package out defines outbound ports (driven ports) for the application.
package out

import (
	"context"
	"errors"
)

var (
	// ErrDocumentNotFound is returned when no document exists at a key.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrVersionConflict is returned when a conditional write loses a race.
	ErrVersionConflict = errors.New("document version conflict")
)

// Document is a stored JSON body and the opaque version it was read at.
type Document struct {
	Body    []byte
	Version string
}

// WriteCondition guards a Put. The zero value writes unconditionally.
type WriteCondition struct {
	// IfVersion succeeds only if the current version equals it.
	IfVersion string
	// IfAbsent succeeds only if no document exists yet.
	IfAbsent bool
}

// DocumentStore is a bucket/key JSON document store (S3, Mongo, memory).
type DocumentStore interface {
	Get(ctx context.Context, bucket, key string) (*Document, error)
	// Put writes body and returns the new version.
	Put(ctx context.Context, bucket, key string, body []byte, cond WriteCondition) (string, error)
	Exists(ctx context.Context, bucket, key string) (bool, error)
	// ListChildKeys returns the immediate child "directories" under prefix,
	// each as a full key ending in "/".
	ListChildKeys(ctx context.Context, bucket, prefix string) ([]string, error)
}
