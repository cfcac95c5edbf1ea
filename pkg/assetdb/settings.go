package assetdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/majoor/assetindex/internal/apperr"
	"github.com/majoor/assetindex/pkg/store"
)

// Setting is a single versioned key/value row. Version increments on
// every write so callers can detect concurrent modification.
type Setting struct {
	Key       string
	ValueJSON string
	Version   int64
	UpdatedAt int64
}

// GetSetting fetches one settings row.
func GetSetting(ctx context.Context, s *store.Store, key string) (*Setting, *apperr.Error) {
	row := s.QueryRow(ctx, `SELECT key, value_json, version, updated_at FROM settings WHERE key = ?`, key)
	var st Setting
	if err := row.Scan(&st.Key, &st.ValueJSON, &st.Version, &st.UpdatedAt); err == sql.ErrNoRows {
		return nil, apperr.NotFoundf("setting %q not found", key)
	} else if err != nil {
		return nil, apperr.DB(err)
	}
	return &st, nil
}

// settingsVersionKey holds the store-wide monotonic counter bumped on
// every settings write, alongside each row's own version.
const settingsVersionKey = "__settings_version"

// PutSetting upserts a setting's value, bumping both its per-key
// version counter and the global __settings_version row.
func PutSetting(ctx context.Context, s *store.Store, key string, value any) (*Setting, *apperr.Error) {
	if key == settingsVersionKey {
		return nil, apperr.Invalid("%s is maintained by the store and cannot be written directly", settingsVersionKey)
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return nil, apperr.Invalid("invalid settings payload: %v", err)
	}
	now := time.Now().Unix()
	var version int64
	txErr := s.Transaction(ctx, store.TxImmediate, func(tx *store.Tx) error {
		row := tx.QueryRow(ctx, `SELECT version FROM settings WHERE key = ?`, key)
		var current int64
		if err := row.Scan(&current); err != nil && err != sql.ErrNoRows {
			return err
		}
		version = current + 1
		if _, err := tx.Exec(ctx, `
			INSERT INTO settings (key, value_json, version, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT (key) DO UPDATE SET value_json = excluded.value_json, version = excluded.version, updated_at = excluded.updated_at`,
			key, string(payload), version, now); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO settings (key, value_json, version, updated_at) VALUES (?, '0', 1, ?)
			ON CONFLICT (key) DO UPDATE SET version = settings.version + 1, updated_at = excluded.updated_at`,
			settingsVersionKey, now)
		return err
	})
	if txErr != nil {
		return nil, apperr.DB(txErr)
	}
	return &Setting{Key: key, ValueJSON: string(payload), Version: version, UpdatedAt: now}, nil
}

// SettingsVersion reads the global monotonic settings counter; zero
// means nothing has ever been written.
func SettingsVersion(ctx context.Context, s *store.Store) (int64, *apperr.Error) {
	row := s.QueryRow(ctx, `SELECT version FROM settings WHERE key = ?`, settingsVersionKey)
	var v int64
	if err := row.Scan(&v); err == sql.ErrNoRows {
		return 0, nil
	} else if err != nil {
		return 0, apperr.DB(err)
	}
	return v, nil
}

// SettingsCache is a short-TTL read-through cache in front of the
// settings table, sized for the maintenance surface's frequent polling
// of a handful of keys (safe_mode, write-access flags, rate-limit
// overrides) without hitting SQLite on every request.
type SettingsCache struct {
	store *store.Store
	ttl   time.Duration

	mu      sync.RWMutex
	entries map[string]cachedSetting
}

type cachedSetting struct {
	value     *Setting
	fetchedAt time.Time
}

// NewSettingsCache wraps s with a read-through cache of the given TTL.
func NewSettingsCache(s *store.Store, ttl time.Duration) *SettingsCache {
	return &SettingsCache{store: s, ttl: ttl, entries: make(map[string]cachedSetting)}
}

// Get returns a setting, serving from cache when fresh.
func (c *SettingsCache) Get(ctx context.Context, key string) (*Setting, *apperr.Error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && time.Since(entry.fetchedAt) < c.ttl {
		return entry.value, nil
	}

	val, err := GetSetting(ctx, c.store, key)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.entries[key] = cachedSetting{value: val, fetchedAt: time.Now()}
	c.mu.Unlock()
	return val, nil
}

// Put writes through and invalidates the cached entry for key.
func (c *SettingsCache) Put(ctx context.Context, key string, value any) (*Setting, *apperr.Error) {
	val, err := PutSetting(ctx, c.store, key, value)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.entries[key] = cachedSetting{value: val, fetchedAt: time.Now()}
	c.mu.Unlock()
	return val, nil
}

// Invalidate drops a single cached key, used after out-of-band writes
// (e.g. a maintenance reset) that bypass Put.
func (c *SettingsCache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}
