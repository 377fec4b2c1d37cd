// Package common provides typed JSON helpers over the document store.
package common

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"calsync_server/core/port/out"
)

// DefaultUpdateRetries bounds UpdateJSON when writers keep colliding.
const DefaultUpdateRetries = 5

// ErrUndecodable marks a document that exists but is not valid JSON for the
// target type. ReadJSON still reports its version alongside it.
var ErrUndecodable = errors.New("document is not decodable")

// Found describes the outcome of a ReadJSON.
type Found struct {
	Exists  bool
	Version string
}

// Condition returns the write condition that keeps a read-modify-write safe:
// the version read, or create-only when nothing was there.
func (f Found) Condition() out.WriteCondition {
	if !f.Exists {
		return out.WriteCondition{IfAbsent: true}
	}
	return out.WriteCondition{IfVersion: f.Version}
}

// ReadJSON decodes the document at key into dest. A missing document is not
// an error: dest is left untouched and Found.Exists is false. A body that
// fails to decode returns ErrUndecodable with Found still set, so a caller
// can overwrite it conditionally.
func ReadJSON(ctx context.Context, store out.DocumentStore, bucket, key string, dest any) (Found, error) {
	doc, err := store.Get(ctx, bucket, key)
	if errors.Is(err, out.ErrDocumentNotFound) {
		return Found{}, nil
	}
	if err != nil {
		return Found{}, fmt.Errorf("get %s: %w", key, err)
	}
	found := Found{Exists: true, Version: doc.Version}
	if len(doc.Body) > 0 {
		if err := json.Unmarshal(doc.Body, dest); err != nil {
			return found, fmt.Errorf("decode %s: %w: %v", key, ErrUndecodable, err)
		}
	}
	return found, nil
}

// WriteJSON encodes v and writes it conditioned on found.
func WriteJSON(ctx context.Context, store out.DocumentStore, bucket, key string, v any, found Found) (string, error) {
	return PutJSON(ctx, store, bucket, key, v, found.Condition())
}

// PutJSON encodes v and writes it with an explicit condition.
func PutJSON(ctx context.Context, store out.DocumentStore, bucket, key string, v any, cond out.WriteCondition) (string, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", key, err)
	}
	version, err := store.Put(ctx, bucket, key, body, cond)
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return version, nil
}

// UpdateJSON runs a read-modify-write cycle on a JSON document of type T.
// mutate receives the current value (zero T when the document is missing)
// and returns the value to store. A version conflict re-reads and retries
// up to retries times.
func UpdateJSON[T any](ctx context.Context, store out.DocumentStore, bucket, key string, retries int, mutate func(current T, exists bool) (T, error)) (T, error) {
	if retries <= 0 {
		retries = DefaultUpdateRetries
	}
	var zero T
	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		var current T
		found, err := ReadJSON(ctx, store, bucket, key, &current)
		if err != nil {
			return zero, err
		}
		next, err := mutate(current, found.Exists)
		if err != nil {
			return zero, err
		}
		if _, err := WriteJSON(ctx, store, bucket, key, next, found); err != nil {
			if errors.Is(err, out.ErrVersionConflict) {
				lastErr = err
				continue
			}
			return zero, err
		}
		return next, nil
	}
	return zero, fmt.Errorf("update %s after %d attempts: %w", key, retries, lastErr)
}
