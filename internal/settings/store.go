// Package settings persists the UI's opaque JSON blobs under fixed keys.
package settings

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const (
	KeyConfigFiles = "configFiles"
	KeyAppSettings = "appSettings"
)

const settingsSchema = `
CREATE TABLE IF NOT EXISTS kv (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);
`

// AppSettings is the UI preference blob. Unknown fields from newer frontends
// are kept in Extra and written back untouched.
type AppSettings struct {
	Theme             string `json:"theme"`
	FontSize          int    `json:"fontSize"`
	WordWrap          bool   `json:"wordWrap"`
	Language          string `json:"language"`
	ConfirmBeforeSave bool   `json:"confirmBeforeSave"`

	Extra map[string]json.RawMessage `json:"-"`
}

// DefaultAppSettings returns the preferences of a fresh install.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		Theme:    "dark",
		FontSize: 14,
		WordWrap: true,
		Language: "en",
	}
}

var knownSettingsFields = map[string]bool{
	"theme": true, "fontSize": true, "wordWrap": true, "language": true, "confirmBeforeSave": true,
}

// UnmarshalJSON overlays the stored blob on top of the defaults.
func (a *AppSettings) UnmarshalJSON(data []byte) error {
	type plain AppSettings
	p := plain(DefaultAppSettings())
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for k, v := range all {
		if knownSettingsFields[k] {
			continue
		}
		if p.Extra == nil {
			p.Extra = map[string]json.RawMessage{}
		}
		p.Extra[k] = v
	}
	if p.FontSize <= 0 {
		p.FontSize = DefaultAppSettings().FontSize
	}
	*a = AppSettings(p)
	return nil
}

// MarshalJSON writes the known fields and every preserved extra field.
func (a AppSettings) MarshalJSON() ([]byte, error) {
	type plain AppSettings
	known, err := json.Marshal(plain(a))
	if err != nil {
		return nil, err
	}
	if len(a.Extra) == 0 {
		return known, nil
	}
	merged := map[string]json.RawMessage{}
	for k, v := range a.Extra {
		merged[k] = v
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// Store is a small key/value table in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the settings database at dbPath.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create settings dir: %w", err)
	}
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	if _, err := db.Exec(settingsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply settings schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// LoadRaw returns the blob stored under key, or nil when there is none.
func (s *Store) LoadRaw(key string) ([]byte, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", key, err)
	}
	return []byte(value), nil
}

// SaveRaw stores blob under key. The blob must be valid JSON.
func (s *Store) SaveRaw(key string, blob []byte) error {
	if !json.Valid(blob) {
		return fmt.Errorf("refusing to store %s: not valid JSON", key)
	}
	_, err := s.db.Exec(
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = datetime('now')`,
		key, string(blob))
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

// Load decodes the blob under key into v. A missing key leaves v untouched
// and reports false.
func (s *Store) Load(key string, v any) (bool, error) {
	raw, err := s.LoadRaw(key)
	if err != nil || raw == nil {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// Save encodes v under key.
func (s *Store) Save(key string, v any) error {
	blob, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.SaveRaw(key, blob)
}

// LoadAppSettings returns the stored preferences with defaults applied.
func (s *Store) LoadAppSettings() (AppSettings, error) {
	settings := DefaultAppSettings()
	if _, err := s.Load(KeyAppSettings, &settings); err != nil {
		return DefaultAppSettings(), err
	}
	return settings, nil
}

// SaveAppSettings stores the preferences.
func (s *Store) SaveAppSettings(settings AppSettings) error {
	return s.Save(KeyAppSettings, settings)
}
