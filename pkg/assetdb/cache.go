package assetdb

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/majoor/assetindex/internal/logger"
)

// MetadataCache is the derived, ephemeral extractor-result cache keyed by
// (filepath, state_hash): a key-value store is the idiomatic fit because
// the cache may be dropped and rebuilt without data loss, unlike the
// relational tables in pkg/store.
type MetadataCache struct {
	db *badger.DB
}

// CachedExtraction is what a pluggable extractor produced the last time
// it ran against a given file state.
type CachedExtraction struct {
	StateHash string          `json:"state_hash"`
	Extractor string          `json:"extractor"`
	Payload   json.RawMessage `json:"payload"`
	CachedAt  int64           `json:"cached_at"`
}

// OpenMetadataCache opens (creating if needed) the badger store used to
// memoize extractor output.
func OpenMetadataCache(path string) (*MetadataCache, error) {
	opts := badger.DefaultOptions(path).WithLogger(badgerLoggerAdapter{})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &MetadataCache{db: db}, nil
}

func cacheKey(filepath, extractor string) []byte {
	return []byte(extractor + ":" + filepath)
}

// Get returns the cached extraction for (filepath, extractor) if present
// and its recorded state_hash still matches stateHash.
func (c *MetadataCache) Get(filepath, extractor, stateHash string) (*CachedExtraction, bool) {
	var entry CachedExtraction
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cacheKey(filepath, extractor))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false
	}
	if err != nil {
		logger.Warn("metadata cache read failed", "error", err)
		return nil, false
	}
	if entry.StateHash != stateHash {
		return nil, false
	}
	return &entry, true
}

// Put stores the extractor's result for later reuse while the file's
// state_hash is unchanged.
func (c *MetadataCache) Put(filepath string, entry CachedExtraction) error {
	entry.CachedAt = time.Now().Unix()
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(cacheKey(filepath, entry.Extractor), data)
	})
}

// Delete drops any cached extraction for filepath across extractors.
func (c *MetadataCache) Delete(filepath string, extractors []string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		for _, ext := range extractors {
			if err := txn.Delete(cacheKey(filepath, ext)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		return nil
	})
}

// RunValueLogGC triggers badger's value-log compaction; maintenance calls
// this periodically since the cache otherwise only grows.
func (c *MetadataCache) RunValueLogGC(discardRatio float64) error {
	err := c.db.RunValueLogGC(discardRatio)
	if errors.Is(err, badger.ErrNoRewrite) {
		return nil
	}
	return err
}

// Close releases the underlying badger database.
func (c *MetadataCache) Close() error {
	return c.db.Close()
}

// Reset drops every cached entry, used by the maintenance reset-index
// operation so a rebuilt index doesn't serve stale extractor results.
func (c *MetadataCache) Reset() error {
	return c.db.DropAll()
}

// badgerLoggerAdapter routes badger's internal logging through the
// application's structured logger instead of badger's default stderr
// writer.
type badgerLoggerAdapter struct{}

func (badgerLoggerAdapter) Errorf(format string, args ...any) {
	logger.Error(fmt.Sprintf(format, args...))
}
func (badgerLoggerAdapter) Warningf(format string, args ...any) {
	logger.Warn(fmt.Sprintf(format, args...))
}
func (badgerLoggerAdapter) Infof(format string, args ...any) {
	logger.Info(fmt.Sprintf(format, args...))
}
func (badgerLoggerAdapter) Debugf(format string, args ...any) {
	logger.Debug(fmt.Sprintf(format, args...))
}
