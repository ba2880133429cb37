// Package config loads serverMeta.json, the server's environment contract,
// following the singleton-with-env-override idiom the rest of this codebase
// family uses for its YAML config — substituted to JSON here because the
// wire contract for this server is explicitly a JSON file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// Meta is the decoded shape of serverMeta.json.
type Meta struct {
	KeyPath              string `json:"keyPath"`
	DatabasePasswordPath string `json:"databasePasswordPath"`
	ServerPort           uint16 `json:"serverPort"`
	BackupPath           string `json:"backupPath"`
	LogFile              string `json:"logFile,omitempty"`
	ChangelogFile        string `json:"changelogFile,omitempty"`
	ErrorFile            string `json:"errorFile,omitempty"`

	// Connection details for the live and dev databases. Exposed as meta
	// fields rather than hardcoded so a deployment can point
	// at a real Postgres instance.
	DatabaseHost    string `json:"databaseHost,omitempty"`
	DatabaseName    string `json:"databaseName,omitempty"`
	DatabaseUser    string `json:"databaseUser,omitempty"`
	DevDatabaseHost string `json:"devDatabaseHost,omitempty"`
	DevDatabaseName string `json:"devDatabaseName,omitempty"`
	DevDatabaseUser string `json:"devDatabaseUser,omitempty"`

	// JWKSURL is the identity provider's key-set endpoint step 5 of the
	// handshake validates account JWTs against. Empty means no remote
	// JWKS is configured and the server falls back to an empty static
	// key set (every JWT then fails validation, leaving repeat-token
	// reauthentication as the only path in).
	JWKSURL string `json:"jwksURL,omitempty"`

	// RedisAddr, if set, attaches a write-through hot cache to every
	// catalog so a freshly started process can answer a Source*Table
	// request from its last run's data while the database-backed
	// rebuild is still in flight. Empty means catalogs run without a
	// cache, rebuilding from the database alone.
	RedisAddr string `json:"redisAddr,omitempty"`
}

// Load reads and decodes serverMeta.json from path, then applies
// environment overrides and defaults.
func Load(path string) (*Meta, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	var m Meta
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}

	m.applyEnvOverrides()
	m.applyDefaults()
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// applyDefaults fills in the stock database names for deployments that
// don't care to override them.
func (m *Meta) applyDefaults() {
	if m.DatabaseName == "" {
		m.DatabaseName = "screen_mat_database"
	}
	if m.DatabaseUser == "" {
		m.DatabaseUser = "db-server-user"
	}
	if m.DevDatabaseHost == "" {
		m.DevDatabaseHost = "scs.local"
	}
	if m.DevDatabaseName == "" {
		m.DevDatabaseName = "screen_mat_database_dev"
	}
	if m.DevDatabaseUser == "" {
		m.DevDatabaseUser = "dev"
	}
}

func (m *Meta) applyEnvOverrides() {
	if v := os.Getenv("OCX_DRAW_PORT"); v != "" {
		if port, err := strconv.ParseUint(v, 10, 16); err == nil {
			m.ServerPort = uint16(port)
		}
	}
	if v := os.Getenv("OCX_DRAW_BACKUP_PATH"); v != "" {
		m.BackupPath = v
	}
	if v := os.Getenv("OCX_DRAW_KEY_PATH"); v != "" {
		m.KeyPath = v
	}
}

// validate enforces the fatal-error-at-startup contract (§7): an unreadable
// or incomplete meta file should cause the caller to log-and-exit, not
// proceed with a half-configured server.
func (m *Meta) validate() error {
	if m.ServerPort == 0 {
		return fmt.Errorf("config: serverPort must be set and non-zero")
	}
	if m.KeyPath == "" {
		return fmt.Errorf("config: keyPath must be set")
	}
	if m.BackupPath == "" {
		return fmt.Errorf("config: backupPath must be set")
	}
	return nil
}
