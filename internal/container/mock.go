package container

import (
	"context"

	"github.com/soundtrace/soundtrace/internal/adapter"
	"github.com/soundtrace/soundtrace/internal/cache"
	"github.com/soundtrace/soundtrace/internal/index"
	"github.com/soundtrace/soundtrace/internal/ingest"
	"github.com/soundtrace/soundtrace/internal/ledger"
	"github.com/soundtrace/soundtrace/internal/logger"
	"github.com/soundtrace/soundtrace/internal/matcher"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MockContainer is a container designed for testing.
// It allows easy overriding of dependencies with test doubles (mocks, stubs, fakes).
type MockContainer struct {
	*Container
	overrides map[string]interface{}
}

// NewMock creates an empty mock container; test doubles are registered
// through the WithMock* methods.
func NewMock() *MockContainer {
	return &MockContainer{
		Container: New(),
		overrides: make(map[string]interface{}),
	}
}

// WithMockDB sets the database for testing
func (m *MockContainer) WithMockDB(db *gorm.DB) *MockContainer {
	m.SetDB(db)
	return m
}

// WithMockLogger sets a test logger
func (m *MockContainer) WithMockLogger(l *zap.Logger) *MockContainer {
	m.SetLogger(l)
	return m
}

// WithMockCache sets a mock Redis client
func (m *MockContainer) WithMockCache(c *cache.RedisClient) *MockContainer {
	m.SetCache(c)
	return m
}

// WithMockStore sets a mock index store
func (m *MockContainer) WithMockStore(store index.Store) *MockContainer {
	m.SetStore(store)
	return m
}

// WithMockMatcher sets a mock matcher
func (m *MockContainer) WithMockMatcher(match *matcher.Matcher) *MockContainer {
	m.SetMatcher(match)
	return m
}

// WithMockIngestPool sets a mock ingest pool
func (m *MockContainer) WithMockIngestPool(pool *ingest.Pool) *MockContainer {
	m.SetIngestPool(pool)
	return m
}

// WithMockLedger sets a mock task ledger
func (m *MockContainer) WithMockLedger(l ledger.Ledger) *MockContainer {
	m.SetLedger(l)
	return m
}

// WithMockPostingCache sets a mock posting cache
func (m *MockContainer) WithMockPostingCache(pc *cache.PostingCache) *MockContainer {
	m.SetPostingCache(pc)
	return m
}

// WithMockMetadataFetcher sets a mock metadata fetcher
func (m *MockContainer) WithMockMetadataFetcher(f adapter.MetadataFetcher) *MockContainer {
	m.SetMetadataFetcher(f)
	return m
}

// WithMockAudioFetcher sets a mock audio fetcher
func (m *MockContainer) WithMockAudioFetcher(f adapter.AudioFetcher) *MockContainer {
	m.SetAudioFetcher(f)
	return m
}

// Override sets a custom override for a specific dependency type
func (m *MockContainer) Override(key string, value interface{}) *MockContainer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[key] = value
	return m
}

// GetOverride retrieves an override if set
func (m *MockContainer) GetOverride(key string) (interface{}, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	val, ok := m.overrides[key]
	return val, ok
}

// MinimalMock creates a mock container with only the absolute minimum dependencies.
// Useful for isolated unit tests that don't exercise the recognition pipeline.
func MinimalMock() *MockContainer {
	mock := NewMock()
	mock.SetLogger(logger.Log)
	return mock
}

// Clean cleans up test containers after tests complete
func (m *MockContainer) Clean(ctx context.Context) error {
	return m.Cleanup(ctx)
}
