package objectstore

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"

	"calsync_server/core/port/out"
)

type memoryObject struct {
	body    []byte
	version int64
}

// MemoryStore is an in-process DocumentStore for tests and local runs.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	seq     int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

var _ out.DocumentStore = (*MemoryStore)(nil)

func memoryKey(bucket, key string) string { return bucket + "\x00" + key }

func (s *MemoryStore) Get(ctx context.Context, bucket, key string) (*out.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[memoryKey(bucket, key)]
	if !ok {
		return nil, out.ErrDocumentNotFound
	}
	body := make([]byte, len(obj.body))
	copy(body, obj.body)
	return &out.Document{Body: body, Version: strconv.FormatInt(obj.version, 10)}, nil
}

func (s *MemoryStore) Put(ctx context.Context, bucket, key string, body []byte, cond out.WriteCondition) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := memoryKey(bucket, key)
	cur, exists := s.objects[k]
	if cond.IfAbsent && exists {
		return "", out.ErrVersionConflict
	}
	if cond.IfVersion != "" && (!exists || strconv.FormatInt(cur.version, 10) != cond.IfVersion) {
		return "", out.ErrVersionConflict
	}

	s.seq++
	stored := make([]byte, len(body))
	copy(stored, body)
	s.objects[k] = memoryObject{body: stored, version: s.seq}
	return strconv.FormatInt(s.seq, 10), nil
}

func (s *MemoryStore) Exists(ctx context.Context, bucket, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[memoryKey(bucket, key)]
	return ok, nil
}

func (s *MemoryStore) ListChildKeys(ctx context.Context, bucket, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	head := memoryKey(bucket, prefix)
	for k := range s.objects {
		if !strings.HasPrefix(k, head) {
			continue
		}
		rest := strings.TrimPrefix(k, head)
		idx := strings.Index(rest, "/")
		if idx <= 0 {
			continue
		}
		seen[prefix+rest[:idx+1]] = struct{}{}
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
