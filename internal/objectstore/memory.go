package objectstore

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"photo-thumbnailer/internal/models"
)

type memoryObject struct {
	data        []byte
	contentType string
}

// MemoryStore keeps objects in process memory. It is safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	buckets map[string]map[string]memoryObject
	baseURL string
}

// NewMemoryStore returns an empty store. baseURL prefixes signed upload URLs.
func NewMemoryStore(baseURL string) *MemoryStore {
	if baseURL == "" {
		baseURL = "memory://"
	}
	return &MemoryStore{buckets: make(map[string]map[string]memoryObject), baseURL: baseURL}
}

func (m *MemoryStore) Download(_ context.Context, bucket, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.buckets[bucket][key]
	if !ok {
		return nil, fmt.Errorf("objectstore.Download: %s/%s: %w", bucket, key, models.ErrNotFound)
	}
	if len(obj.data) == 0 {
		return nil, fmt.Errorf("objectstore.Download: %s/%s: %w", bucket, key, models.ErrEmptyOriginal)
	}
	return append([]byte(nil), obj.data...), nil
}

func (m *MemoryStore) Upload(_ context.Context, bucket, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[bucket]
	if !ok {
		b = make(map[string]memoryObject)
		m.buckets[bucket] = b
	}
	b[key] = memoryObject{data: append([]byte(nil), data...), contentType: contentType}
	return nil
}

// Delete is idempotent, as S3 DeleteObject is.
func (m *MemoryStore) Delete(_ context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.buckets[bucket], key)
	return nil
}

func (m *MemoryStore) SignUpload(_ context.Context, bucket, key string, ttl time.Duration) (*SignedUpload, error) {
	token := uuid.NewString()
	u := fmt.Sprintf("%s%s/%s?token=%s", m.baseURL, url.PathEscape(bucket), key, url.QueryEscape(token))
	return &SignedUpload{URL: u, Token: token, ExpiresAt: time.Now().Add(ttl)}, nil
}

// Keys lists the keys of a bucket, sorted.
func (m *MemoryStore) Keys(bucket string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.buckets[bucket]))
	for k := range m.buckets[bucket] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ContentType reports the content type an object was uploaded with.
func (m *MemoryStore) ContentType(bucket, key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.buckets[bucket][key]
	return obj.contentType, ok
}
