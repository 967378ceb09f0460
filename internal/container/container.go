// Package container provides dependency injection for the recognition
// engine. It consolidates every service behind a Service Locator and
// provides type-safe, mutex-guarded access to dependencies. It does not
// replace every package-level variable: database.DB, logger.Log, the
// Redis client kept by internal/cache, and the metrics registry remain
// process-wide.
package container

import (
	"context"
	"sync"

	"github.com/soundtrace/soundtrace/internal/adapter"
	"github.com/soundtrace/soundtrace/internal/cache"
	"github.com/soundtrace/soundtrace/internal/fingerprint"
	"github.com/soundtrace/soundtrace/internal/index"
	"github.com/soundtrace/soundtrace/internal/ingest"
	"github.com/soundtrace/soundtrace/internal/ledger"
	"github.com/soundtrace/soundtrace/internal/logger"
	"github.com/soundtrace/soundtrace/internal/matcher"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Container holds all application dependencies and provides type-safe
// access. It implements the Service Locator pattern with additional
// lifecycle management.
type Container struct {
	// Core infrastructure
	db     *gorm.DB
	logger *zap.Logger
	cache  *cache.RedisClient

	// Recognition core
	store   index.Store
	match   *matcher.Matcher
	pool    *ingest.Pool
	tasks   ledger.Ledger
	posting *cache.PostingCache
	params  fingerprint.Params

	// Adapters
	metaFetcher  adapter.MetadataFetcher
	audioFetcher adapter.AudioFetcher

	// Lifecycle hooks
	cleanupFuncs []func(context.Context) error
	mu           sync.RWMutex
}

// New creates a new empty container. Services are registered using Set*
// methods.
func New() *Container {
	return &Container{
		cleanupFuncs: make([]func(context.Context) error, 0),
		params:       fingerprint.DefaultParams(),
	}
}

// ============================================================================
// CORE INFRASTRUCTURE SETTERS/GETTERS
// ============================================================================

func (c *Container) SetDB(db *gorm.DB) *Container {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.db = db
	return c
}

func (c *Container) DB() *gorm.DB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db
}

func (c *Container) SetLogger(l *zap.Logger) *Container {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger = l
	return c
}

func (c *Container) Logger() *zap.Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.logger == nil {
		return logger.Log
	}
	return c.logger
}

func (c *Container) SetCache(client *cache.RedisClient) *Container {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = client
	return c
}

func (c *Container) Cache() *cache.RedisClient {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cache
}

// ============================================================================
// RECOGNITION CORE SETTERS/GETTERS
// ============================================================================

func (c *Container) SetStore(store index.Store) *Container {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store = store
	return c
}

func (c *Container) Store() index.Store {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store
}

func (c *Container) SetMatcher(m *matcher.Matcher) *Container {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.match = m
	return c
}

func (c *Container) Matcher() *matcher.Matcher {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.match
}

func (c *Container) SetIngestPool(pool *ingest.Pool) *Container {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pool = pool
	return c
}

func (c *Container) IngestPool() *ingest.Pool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pool
}

func (c *Container) SetLedger(l ledger.Ledger) *Container {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks = l
	return c
}

func (c *Container) Ledger() ledger.Ledger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tasks
}

func (c *Container) SetPostingCache(pc *cache.PostingCache) *Container {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.posting = pc
	return c
}

func (c *Container) PostingCache() *cache.PostingCache {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.posting
}

// SetParams registers the fingerprinting parameters every surface must
// share. Handlers read them back rather than reaching for defaults, so a
// tuned deployment can never fingerprint queries differently from ingests.
func (c *Container) SetParams(p fingerprint.Params) *Container {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.params = p
	return c
}

func (c *Container) Params() fingerprint.Params {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.params
}

// ============================================================================
// ADAPTER SETTERS/GETTERS
// ============================================================================

func (c *Container) SetMetadataFetcher(f adapter.MetadataFetcher) *Container {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metaFetcher = f
	return c
}

func (c *Container) MetadataFetcher() adapter.MetadataFetcher {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.metaFetcher
}

func (c *Container) SetAudioFetcher(f adapter.AudioFetcher) *Container {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.audioFetcher = f
	return c
}

func (c *Container) AudioFetcher() adapter.AudioFetcher {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.audioFetcher
}

// ============================================================================
// LIFECYCLE MANAGEMENT
// ============================================================================

// OnCleanup registers a cleanup function invoked during shutdown, LIFO.
func (c *Container) OnCleanup(fn func(context.Context) error) *Container {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupFuncs = append(c.cleanupFuncs, fn)
	return c
}

// Cleanup runs every registered cleanup function in reverse registration
// order, continuing past individual failures so one bad teardown doesn't
// strand the rest.
func (c *Container) Cleanup(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// c.mu is already held here, so read the logger field directly:
	// Logger() would try to take the read lock and block forever.
	log := c.logger
	if log == nil {
		log = logger.Log
	}
	for i := len(c.cleanupFuncs) - 1; i >= 0; i-- {
		if err := c.cleanupFuncs[i](ctx); err != nil {
			log.Error("cleanup function failed", zap.Int("index", i), zap.Error(err))
		}
	}

	return nil
}

// ============================================================================
// VALIDATION
// ============================================================================

// Validate checks that every dependency the HTTP/WS façade requires is
// registered. Call after wiring, before starting the server.
func (c *Container) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var missingDeps []string
	if c.db == nil {
		missingDeps = append(missingDeps, "database (DB)")
	}
	if c.store == nil {
		missingDeps = append(missingDeps, "index store")
	}
	if c.match == nil {
		missingDeps = append(missingDeps, "matcher")
	}
	if c.pool == nil {
		missingDeps = append(missingDeps, "ingest pool")
	}
	if c.tasks == nil {
		missingDeps = append(missingDeps, "task ledger")
	}
	if c.metaFetcher == nil {
		missingDeps = append(missingDeps, "metadata fetcher")
	}
	if c.audioFetcher == nil {
		missingDeps = append(missingDeps, "audio fetcher")
	}

	if len(missingDeps) > 0 {
		return NewInitializationError("missing required dependencies", missingDeps)
	}
	return nil
}

// ============================================================================
// FLUENT API SUPPORT
// ============================================================================

func (c *Container) WithDB(db *gorm.DB) *Container                   { return c.SetDB(db) }
func (c *Container) WithLogger(l *zap.Logger) *Container             { return c.SetLogger(l) }
func (c *Container) WithCache(client *cache.RedisClient) *Container  { return c.SetCache(client) }
func (c *Container) WithStore(store index.Store) *Container          { return c.SetStore(store) }
func (c *Container) WithMatcher(m *matcher.Matcher) *Container        { return c.SetMatcher(m) }
func (c *Container) WithIngestPool(pool *ingest.Pool) *Container      { return c.SetIngestPool(pool) }
func (c *Container) WithLedger(l ledger.Ledger) *Container            { return c.SetLedger(l) }
func (c *Container) WithPostingCache(pc *cache.PostingCache) *Container {
	return c.SetPostingCache(pc)
}
func (c *Container) WithParams(p fingerprint.Params) *Container { return c.SetParams(p) }
func (c *Container) WithMetadataFetcher(f adapter.MetadataFetcher) *Container {
	return c.SetMetadataFetcher(f)
}
func (c *Container) WithAudioFetcher(f adapter.AudioFetcher) *Container {
	return c.SetAudioFetcher(f)
}
