// Package history keeps immutable snapshots of locally saved files with a
// bounded per-file count and a global byte budget.
package history

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const (
	DefaultMaxPerFile = 20
	DefaultMaxBytes   = 25 * 1024 * 1024
)

// ErrTooLarge is returned when a single snapshot exceeds the byte budget.
var ErrTooLarge = errors.New("snapshot exceeds the history size limit")

// ErrNotFound is returned for an unknown record id.
var ErrNotFound = errors.New("history record not found")

const historySchema = `
CREATE TABLE IF NOT EXISTS history (
    id TEXT PRIMARY KEY,
    file_path TEXT NOT NULL,
    file_name TEXT NOT NULL,
    content TEXT NOT NULL,
    timestamp INTEGER NOT NULL,
    size_bytes INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_history_file ON history(file_path, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_history_timestamp ON history(timestamp DESC);
`

// Record is one saved version of a file. Timestamp is in Unix milliseconds.
type Record struct {
	ID        string `json:"id"`
	FilePath  string `json:"filePath"`
	FileName  string `json:"fileName"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
	SizeBytes int64  `json:"sizeBytes"`
}

// RecordID derives the id of the snapshot of filePath taken at timestamp.
func RecordID(filePath string, timestamp int64) string {
	sum := sha256.Sum256([]byte(filePath + "\x00" + strconv.FormatInt(timestamp, 10)))
	return hex.EncodeToString(sum[:16])
}

// Store is the SQLite-backed history.
type Store struct {
	db         *sql.DB
	logger     *zap.Logger
	maxPerFile int
	maxBytes   int64
	now        func() time.Time

	mu   sync.Mutex
	last int64
}

// Option customises a Store.
type Option func(*Store)

// WithLimits overrides the retention limits.
func WithLimits(maxPerFile int, maxBytes int64) Option {
	return func(s *Store) {
		if maxPerFile > 0 {
			s.maxPerFile = maxPerFile
		}
		if maxBytes > 0 {
			s.maxBytes = maxBytes
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Open opens (or creates) the history database at dbPath.
func Open(dbPath string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	if _, err := db.Exec(historySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply history schema: %w", err)
	}

	s := &Store{
		db:         db,
		logger:     zap.NewNop(),
		maxPerFile: DefaultMaxPerFile,
		maxBytes:   DefaultMaxBytes,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Continue after the newest stored snapshot even if the clock went back.
	var last sql.NullInt64
	if err := db.QueryRow(`SELECT MAX(timestamp) FROM history`).Scan(&last); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read latest history timestamp: %w", err)
	}
	s.last = last.Int64
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// nextTimestamp keeps timestamps strictly increasing so ids never collide.
func (s *Store) nextTimestamp() int64 {
	ts := s.now().UnixMilli()
	if ts <= s.last {
		ts = s.last + 1
	}
	s.last = ts
	return ts
}

// SaveHistory records a snapshot of filePath. Retention runs before the
// insert with room reserved for the new record, so the new record is never
// evicted and both limits hold once it is stored.
func (s *Store) SaveHistory(filePath, fileName, content string) (Record, error) {
	size := int64(len(content))
	if size > s.maxBytes {
		return Record{}, fmt.Errorf("%w: %d bytes", ErrTooLarge, size)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := Record{
		FilePath:  filePath,
		FileName:  fileName,
		Content:   content,
		Timestamp: s.nextTimestamp(),
		SizeBytes: size,
	}
	rec.ID = RecordID(filePath, rec.Timestamp)

	tx, err := s.db.Begin()
	if err != nil {
		return Record{}, fmt.Errorf("failed to begin history tx: %w", err)
	}
	defer tx.Rollback()

	evicted, err := s.enforceRetention(tx, rec)
	if err != nil {
		return Record{}, err
	}

	_, err = tx.Exec(
		`INSERT INTO history (id, file_path, file_name, content, timestamp, size_bytes) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.FilePath, rec.FileName, rec.Content, rec.Timestamp, rec.SizeBytes)
	if err != nil {
		return Record{}, fmt.Errorf("failed to insert history record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Record{}, fmt.Errorf("failed to commit history record: %w", err)
	}

	s.logger.Debug("history saved",
		zap.String("file", filePath),
		zap.Int64("bytes", size),
		zap.Int("evicted", evicted))
	return rec, nil
}

// enforceRetention walks every record newest-first and deletes those past the
// per-file rank or beyond the global byte budget. incoming is counted first.
func (s *Store) enforceRetention(tx *sql.Tx, incoming Record) (int, error) {
	rows, err := tx.Query(`SELECT id, file_path, size_bytes FROM history ORDER BY timestamp DESC, id`)
	if err != nil {
		return 0, fmt.Errorf("failed to scan history: %w", err)
	}

	perFile := map[string]int{incoming.FilePath: 1}
	total := incoming.SizeBytes
	var evict []string
	for rows.Next() {
		var id, path string
		var size int64
		if err := rows.Scan(&id, &path, &size); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan history: %w", err)
		}
		if perFile[path] >= s.maxPerFile || total+size > s.maxBytes {
			evict = append(evict, id)
			continue
		}
		perFile[path]++
		total += size
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("failed to scan history: %w", err)
	}
	rows.Close()

	if len(evict) == 0 {
		return 0, nil
	}
	stmt, err := tx.Prepare(`DELETE FROM history WHERE id = ?`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	for _, id := range evict {
		if _, err := stmt.Exec(id); err != nil {
			return 0, fmt.Errorf("failed to evict history record: %w", err)
		}
	}
	return len(evict), nil
}

// GetFileHistory returns the most recent records of filePath, newest first.
func (s *Store) GetFileHistory(filePath string) ([]Record, error) {
	rows, err := s.db.Query(
		`SELECT id, file_path, file_name, content, timestamp, size_bytes FROM history
		 WHERE file_path = ? ORDER BY timestamp DESC LIMIT ?`, filePath, s.maxPerFile)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.FilePath, &r.FileName, &r.Content, &r.Timestamp, &r.SizeBytes); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Get returns one record by id.
func (s *Store) Get(id string) (Record, error) {
	var r Record
	err := s.db.QueryRow(
		`SELECT id, file_path, file_name, content, timestamp, size_bytes FROM history WHERE id = ?`, id).
		Scan(&r.ID, &r.FilePath, &r.FileName, &r.Content, &r.Timestamp, &r.SizeBytes)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r, err
}

// DeleteFileHistory removes every record of filePath.
func (s *Store) DeleteFileHistory(filePath string) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM history WHERE file_path = ?`, filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to delete history: %w", err)
	}
	return res.RowsAffected()
}

// ClearAllHistory removes every record.
func (s *Store) ClearAllHistory() (int64, error) {
	res, err := s.db.Exec(`DELETE FROM history`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear history: %w", err)
	}
	return res.RowsAffected()
}

// Usage reports the record count and stored bytes.
type Usage struct {
	Records int   `json:"records"`
	Files   int   `json:"files"`
	Bytes   int64 `json:"bytes"`
}

// Usage sums the store.
func (s *Store) Usage() (Usage, error) {
	var u Usage
	err := s.db.QueryRow(
		`SELECT COUNT(*), COUNT(DISTINCT file_path), COALESCE(SUM(size_bytes), 0) FROM history`).
		Scan(&u.Records, &u.Files, &u.Bytes)
	return u, err
}
