package infra

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	sqlcipher "github.com/mutecomm/go-sqlcipher/v4"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

// Ensure sqlcipher driver is registered.
var _ = sqlcipher.ErrBusy

// StoreDBName is the database file name inside the data directory.
const StoreDBName = "store.db"

// SQLCipherStore implements domain.KVStore on a SQLCipher encrypted SQLite
// database shared by every webmon process on the host.
//
// Each Set bumps a global revision counter inside one transaction. Writes
// made by other processes are picked up by Watch, which polls the counter.
type SQLCipherStore struct {
	db     *sql.DB
	dbPath string
	origin string
	logger *zap.Logger
	subs   subscribers

	mu       sync.Mutex
	revision int64                      // highest revision already delivered
	seen     map[string]json.RawMessage // last known values, for OldValue
}

// OpenSQLCipherStore opens (or creates) the encrypted store in dataDir.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func OpenSQLCipherStore(dataDir string, key []byte, logger *zap.Logger) (*SQLCipherStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, StoreDBName)
	keyHex := hex.EncodeToString(key)

	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096&_busy_timeout=5000&_txlock=immediate",
		dbPath, keyHex)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}

	// A wrong key only shows up on first query.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	s := &SQLCipherStore{
		db:     db,
		dbPath: dbPath,
		origin: uuid.NewString(),
		logger: logger,
		seen:   make(map[string]json.RawMessage),
	}

	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	if err := s.prime(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read store: %w", err)
	}

	return s, nil
}

func (s *SQLCipherStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		revision INTEGER NOT NULL,
		origin TEXT NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR IGNORE INTO meta (key, value) VALUES ('revision', '0');
	`
	_, err := s.db.Exec(schema)
	return err
}

// prime loads the current values so the first Watch poll only reports
// writes made after open.
func (s *SQLCipherStore) prime() error {
	rev, err := readRevision(context.Background(), s.db)
	if err != nil {
		return err
	}

	rows, err := s.db.Query(`SELECT key, value FROM kv`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return err
		}
		s.seen[k] = json.RawMessage(v)
	}
	s.revision = rev
	return rows.Err()
}

// Get returns the requested keys that exist.
func (s *SQLCipherStore) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(keys))
	for _, k := range keys {
		var v string
		err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, k).Scan(&v)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[k] = json.RawMessage(v)
	}
	return out, nil
}

// Set writes every key in one transaction and notifies local subscribers.
func (s *SQLCipherStore) Set(ctx context.Context, items map[string]json.RawMessage) error {
	for k, v := range items {
		if !json.Valid(v) {
			return &invalidValueError{key: k}
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	prev, err := readRevision(ctx, tx)
	if err != nil {
		return err
	}
	rev := prev + 1

	changes := make(map[string]domain.StorageChange, len(items))
	now := time.Now().Unix()
	for k, v := range items {
		var old sql.NullString
		err := tx.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, k).Scan(&old)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO kv (key, value, revision, origin, updated_at)
			VALUES (?, ?, ?, ?, ?)`,
			k, string(v), rev, s.origin, now,
		)
		if err != nil {
			return err
		}

		var oldValue json.RawMessage
		if old.Valid {
			oldValue = json.RawMessage(old.String)
		}
		if bytes.Equal(oldValue, v) {
			continue
		}
		changes[k] = domain.StorageChange{OldValue: oldValue, NewValue: clone(v)}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE meta SET value = ? WHERE key = 'revision'`, fmt.Sprint(rev)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	s.mu.Lock()
	for k, v := range items {
		s.seen[k] = clone(v)
	}
	// Otherwise another process wrote in between; Poll delivers that write
	// and skips ours by origin.
	if s.revision == prev {
		s.revision = rev
	}
	s.mu.Unlock()

	if len(changes) > 0 {
		s.subs.notify(domain.ChangeEvent{Changes: changes, Area: StoreArea, Origin: s.origin})
	}
	return nil
}

// Subscribe registers fn for change events, local and cross-process.
// Cross-process events are only delivered while Watch is running.
func (s *SQLCipherStore) Subscribe(fn func(domain.ChangeEvent)) func() {
	return s.subs.add(fn)
}

// Watch polls the revision counter every interval and notifies subscribers of
// writes made by other processes. Blocks until ctx is done.
func (s *SQLCipherStore) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Poll(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("store poll failed", zap.Error(err))
			}
		}
	}
}

// Poll delivers every remote write newer than the last delivered revision.
func (s *SQLCipherStore) Poll(ctx context.Context) error {
	rev, err := readRevision(ctx, s.db)
	if err != nil {
		return err
	}

	s.mu.Lock()
	since := s.revision
	s.mu.Unlock()
	if rev <= since {
		return nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value, revision, origin FROM kv WHERE revision > ? ORDER BY revision`, since)
	if err != nil {
		return err
	}
	defer rows.Close()

	events := make(map[int64]*domain.ChangeEvent)
	var order []int64

	s.mu.Lock()
	for rows.Next() {
		var k, v, origin string
		var r int64
		if err := rows.Scan(&k, &v, &r, &origin); err != nil {
			s.mu.Unlock()
			return err
		}
		old := s.seen[k]
		s.seen[k] = json.RawMessage(v)
		if origin == s.origin || bytes.Equal(old, []byte(v)) {
			continue
		}

		ev, ok := events[r]
		if !ok {
			ev = &domain.ChangeEvent{
				Changes: make(map[string]domain.StorageChange),
				Area:    StoreArea,
				Origin:  origin,
			}
			events[r] = ev
			order = append(order, r)
		}
		ev.Changes[k] = domain.StorageChange{OldValue: old, NewValue: json.RawMessage(v)}
	}
	s.revision = rev
	s.mu.Unlock()

	if err := rows.Err(); err != nil {
		return err
	}

	for _, r := range order {
		s.subs.notify(*events[r])
	}
	return nil
}

// Revision returns the store's current global revision.
func (s *SQLCipherStore) Revision(ctx context.Context) (int64, error) {
	return readRevision(ctx, s.db)
}

// Origin returns this process's instance id.
func (s *SQLCipherStore) Origin() string {
	return s.origin
}

// Path returns the database file path.
func (s *SQLCipherStore) Path() string {
	return s.dbPath
}

// Close releases the database connection.
func (s *SQLCipherStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func readRevision(ctx context.Context, q queryRower) (int64, error) {
	var rev int64
	err := q.QueryRowContext(ctx, `SELECT CAST(value AS INTEGER) FROM meta WHERE key = 'revision'`).Scan(&rev)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return rev, err
}

// Ensure SQLCipherStore implements domain.KVStore.
var _ domain.KVStore = (*SQLCipherStore)(nil)
