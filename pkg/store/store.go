// Package store is the embedded SQL storage engine (component A): the
// sole owner of persistent state. Every other package reaches the
// database only through Store's query/execute/transaction surface.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/glebarez/sqlite" // pure-Go sqlite driver registered as "sqlite"

	"github.com/majoor/assetindex/internal/apperr"
	"github.com/majoor/assetindex/internal/config"
	"github.com/majoor/assetindex/internal/logger"
	"github.com/majoor/assetindex/pkg/metrics"
)

// TxMode mirrors SQLite's three BEGIN modes.
type TxMode string

const (
	TxDeferred  TxMode = "DEFERRED"
	TxImmediate TxMode = "IMMEDIATE"
	TxExclusive TxMode = "EXCLUSIVE"
)

// Diagnostics reports the engine's self-reported health, mirrored by the
// maintenance HTTP endpoint.
type Diagnostics struct {
	Locked             bool   `json:"locked"`
	Malformed          bool   `json:"malformed"`
	RecoveryState      string `json:"recovery_state"`
	ActiveConns        int    `json:"active_conns"`
	AutoResetAttempts  int64  `json:"auto_reset_attempts"`
	AutoResetSuccesses int64  `json:"auto_reset_successes"`
	AutoResetFailures  int64  `json:"auto_reset_failures"`
}

// Store is the embedded SQL engine. It owns a single *sql.DB configured in
// WAL mode; database/sql already pools connections and serializes writer
// access the way the teacher's pgxpool wrapper does explicitly, so Store
// adds the acquire/query/hard timeout ceilings and self-heal behavior on
// top rather than reimplementing pooling.
type Store struct {
	cfg config.StorageConfig
	db  *sql.DB

	mu       sync.Mutex // serializes reset() against in-flight transactions
	closed   atomic.Bool
	lastReset time.Time

	autoResetAttempts  atomic.Int64
	autoResetSuccesses atomic.Int64
	autoResetFailures  atomic.Int64
}

// Open creates (if needed) and opens the SQLite database at cfg.Path,
// applies pragmas, runs migrations, and returns a ready Store.
func Open(ctx context.Context, cfg config.StorageConfig) (*Store, error) {
	s := &Store{cfg: cfg}
	if err := s.openDB(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) openDB(ctx context.Context) error {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", s.cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxOpenConns)

	pingCtx, cancel := context.WithTimeout(ctx, s.cfg.AcquireTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return fmt.Errorf("ping sqlite database: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return fmt.Errorf("run migrations: %w", err)
	}

	s.db = db
	return nil
}

// Query runs a read-only query with the engine's query timeout applied.
func (s *Store) Query(ctx context.Context, sqlStr string, args ...any) (*sql.Rows, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		cancel()
		return nil, s.classify(err)
	}
	return &cancelRows{Rows: rows, cancel: cancel}, nil
}

type cancelRows struct {
	*sql.Rows
	cancel context.CancelFunc
}

func (r *cancelRows) Close() error {
	defer r.cancel()
	return r.Rows.Close()
}

// QueryRow runs a read-only single-row query.
func (s *Store) QueryRow(ctx context.Context, sqlStr string, args ...any) *sql.Row {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()
	return s.db.QueryRowContext(ctx, sqlStr, args...)
}

// Execute runs a single-statement write and returns rows affected.
func (s *Store) Execute(ctx context.Context, sqlStr string, args ...any) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, s.classify(err)
	}
	return res.RowsAffected()
}

// ExecuteScript runs a multi-statement script outside a single prepared
// statement, for schema creation and ad-hoc maintenance SQL.
func (s *Store) ExecuteScript(ctx context.Context, script string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.HardTimeout)
	defer cancel()
	_, err := s.db.ExecContext(ctx, script)
	return s.classify(err)
}

// Tx is the handle passed into the Transaction closure. It wraps a raw
// connection rather than *sql.Tx because database/sql's BeginTx has no
// way to express SQLite's DEFERRED/IMMEDIATE/EXCLUSIVE modes; Transaction
// issues the BEGIN statement itself on a dedicated connection instead.
type Tx struct {
	conn *sql.Conn
}

func (t *Tx) Query(ctx context.Context, sqlStr string, args ...any) (*sql.Rows, error) {
	return t.conn.QueryContext(ctx, sqlStr, args...)
}

func (t *Tx) QueryRow(ctx context.Context, sqlStr string, args ...any) *sql.Row {
	return t.conn.QueryRowContext(ctx, sqlStr, args...)
}

func (t *Tx) Exec(ctx context.Context, sqlStr string, args ...any) (sql.Result, error) {
	return t.conn.ExecContext(ctx, sqlStr, args...)
}

// Transaction runs fn inside a scoped write transaction of the given
// mode; fn's error rolls back, nil commits. Retries once on SQLITE_BUSY
// the way the teacher's WithTransaction retries on deadlock/serialization
// failure.
func (s *Store) Transaction(ctx context.Context, mode TxMode, fn func(tx *Tx) error) error {
	if s.closed.Load() {
		return apperr.Maintenance()
	}

	const maxAttempts = 2
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := s.runTransactionOnce(ctx, mode, fn)
		if err == nil {
			return nil
		}
		if isBusy(err) && attempt+1 < maxAttempts {
			lastErr = err
			time.Sleep(time.Duration(attempt+1) * 20 * time.Millisecond)
			continue
		}
		return err
	}
	return s.classify(lastErr)
}

func (s *Store) runTransactionOnce(ctx context.Context, mode TxMode, fn func(tx *Tx) error) error {
	acquireCtx, cancel := context.WithTimeout(ctx, s.cfg.AcquireTimeout)
	conn, err := s.db.Conn(acquireCtx)
	cancel()
	if err != nil {
		return s.classify(err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, fmt.Sprintf("BEGIN %s", mode)); err != nil {
		return s.classify(err)
	}

	if err := fn(&Tx{conn: conn}); err != nil {
		_, _ = conn.ExecContext(ctx, "ROLLBACK")
		return err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return s.classify(err)
	}
	return nil
}

// QueryIn expands an `IN (?)` placeholder in sqlTemplate (which must
// contain exactly one "%s" for the placeholder list) across values,
// chunked to the engine's parameter limit, and returns the concatenated
// rows across chunks via visit.
func (s *Store) QueryIn(ctx context.Context, sqlTemplate string, values []string, visit func(*sql.Rows) error) error {
	chunkSize := s.cfg.InClauseChunkLimit
	if chunkSize <= 0 {
		chunkSize = 500
	}
	for start := 0; start < len(values); start += chunkSize {
		end := start + chunkSize
		if end > len(values) {
			end = len(values)
		}
		chunk := values[start:end]
		placeholders := make([]string, len(chunk))
		args := make([]any, len(chunk))
		for i, v := range chunk {
			placeholders[i] = "?"
			args[i] = v
		}
		query := fmt.Sprintf(sqlTemplate, strings.Join(placeholders, ","))
		queryCtx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
		rows, err := s.db.QueryContext(queryCtx, query, args...)
		if err != nil {
			cancel()
			return s.classify(err)
		}
		err = visit(rows)
		rows.Close()
		cancel()
		if err != nil {
			return err
		}
	}
	return nil
}

// Diagnostics reports the engine's self-observed health.
func (s *Store) Diagnostics(ctx context.Context) Diagnostics {
	d := Diagnostics{
		RecoveryState:      "ok",
		AutoResetAttempts:  s.autoResetAttempts.Load(),
		AutoResetSuccesses: s.autoResetSuccesses.Load(),
		AutoResetFailures:  s.autoResetFailures.Load(),
	}
	if s.db != nil {
		d.ActiveConns = s.db.Stats().InUse
		metrics.SetStoragePoolInUse(d.ActiveConns)
	}
	var result string
	if err := s.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		d.Malformed = true
		d.RecoveryState = "unknown"
		return d
	}
	if result != "ok" {
		d.Malformed = true
		d.RecoveryState = result
	}
	return d
}

// MaybeSelfHeal resets the store if diagnostics report corruption, auto
// reset is enabled, and the cooldown has elapsed. Returns true if a reset
// was attempted.
func (s *Store) MaybeSelfHeal(ctx context.Context) bool {
	if !s.cfg.AutoResetEnabled {
		return false
	}
	diag := s.Diagnostics(ctx)
	if !diag.Malformed {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if time.Since(s.lastReset) < s.cfg.AutoResetCooldown {
		metrics.RecordStorageSelfHeal("skipped_cooldown")
		return false
	}
	s.autoResetAttempts.Add(1)
	if err := s.resetLocked(ctx); err != nil {
		s.autoResetFailures.Add(1)
		metrics.RecordStorageSelfHeal("failed")
		logger.ErrorCtx(ctx, "self-heal reset failed", "error", err)
		return true
	}
	s.autoResetSuccesses.Add(1)
	metrics.RecordStorageSelfHeal("reset")
	s.lastReset = time.Now()
	logger.WarnCtx(ctx, "store self-healed after detected corruption")
	return true
}

// Reset drains connections, closes, deletes the store files, and
// reinitializes with an empty schema. It is serialized against any
// in-flight transaction via the same mutex self-heal uses.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resetLocked(ctx)
}

func (s *Store) resetLocked(ctx context.Context) error {
	if s.db != nil {
		s.db.Close()
	}
	for _, suffix := range []string{"", "-wal", "-shm", "-journal"} {
		_ = os.Remove(s.cfg.Path + suffix)
	}
	return s.openDB(ctx)
}

// Path returns the configured database file path, for components (the
// maintenance backup/restore flow) that need to locate the file itself
// rather than go through Store's query surface.
func (s *Store) Path() string {
	return s.cfg.Path
}

// RestoreFrom closes the live database, replaces it with the contents
// of srcPath (a file-level backup produced by BackupTo), and reopens,
// running migrations against the restored file the same way Open does
// against a fresh one. It is serialized against self-heal and explicit
// Reset via the same mutex.
func (s *Store) RestoreFrom(ctx context.Context, srcPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		s.db.Close()
	}
	for _, suffix := range []string{"-wal", "-shm", "-journal"} {
		_ = os.Remove(s.cfg.Path + suffix)
	}
	if err := copyFile(srcPath, s.cfg.Path); err != nil {
		// Best effort: reopen whatever is left rather than leaving the
		// store permanently closed.
		_ = s.openDB(ctx)
		return fmt.Errorf("copy backup into place: %w", err)
	}
	return s.openDB(ctx)
}

// ForceReset closes the database and deletes every store file (main,
// WAL, SHM, journal), retrying each removal up to retries times with a
// runtime.GC() and short backoff between attempts so a transient
// mmap/handle hold (notably on Windows, where a recently-closed memory
// mapped file can stay locked until its Go finalizer runs) doesn't
// leave stale data behind. It reopens with a fresh empty schema
// afterward regardless of outcome, but returns the first file it could
// not remove after exhausting retries so the caller can report
// StepFailed rather than silently keeping old data.
func (s *Store) ForceReset(ctx context.Context, retries int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		s.db.Close()
	}
	if retries <= 0 {
		retries = 1
	}

	var firstFailure string
	for _, suffix := range []string{"", "-wal", "-shm", "-journal"} {
		path := s.cfg.Path + suffix
		if !removeWithRetry(path, retries) && firstFailure == "" {
			if _, statErr := os.Stat(path); statErr == nil {
				firstFailure = path
			}
		}
	}

	if err := s.openDB(ctx); err != nil {
		return fmt.Errorf("reopen after force reset: %w", err)
	}
	if firstFailure != "" {
		return fmt.Errorf("could not remove %s after %d attempts", firstFailure, retries)
	}
	return nil
}

func removeWithRetry(path string, retries int) bool {
	for attempt := 0; attempt < retries; attempt++ {
		err := os.Remove(path)
		if err == nil || os.IsNotExist(err) {
			return true
		}
		runtime.GC()
		time.Sleep(time.Duration(attempt+1) * 50 * time.Millisecond)
	}
	_, statErr := os.Stat(path)
	return os.IsNotExist(statErr)
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	tmp := dst + ".restoring"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, dst)
}

// BackupTo writes a consistent, atomic snapshot of the live database to
// destPath using SQLite's VACUUM INTO, which is safe to run against a
// database open in WAL mode without blocking readers for long.
func (s *Store) BackupTo(ctx context.Context, destPath string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.HardTimeout)
	defer cancel()
	_, err := s.db.ExecContext(ctx, "VACUUM INTO ?", destPath)
	return s.classify(err)
}

// Close idempotently tears down the store.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func isBusy(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "locked")
}

func (s *Store) classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Timeoutf("database operation timed out")
	}
	if isBusy(err) {
		return apperr.Unavailable("database is busy")
	}
	return apperr.DB(err)
}
