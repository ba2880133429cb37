package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMeta(t *testing.T, dir string, body string) string {
	t.Helper()
	path := filepath.Join(dir, "serverMeta.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadValidMeta(t *testing.T) {
	dir := t.TempDir()
	path := writeMeta(t, dir, `{
		"keyPath": "/etc/draw/keys",
		"databasePasswordPath": "/etc/draw/db.pass",
		"serverPort": 7777,
		"backupPath": "/var/backups/draw"
	}`)

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint16(7777), m.ServerPort)
	assert.Equal(t, "/var/backups/draw", m.BackupPath)
}

func TestLoadRejectsMissingPort(t *testing.T) {
	dir := t.TempDir()
	path := writeMeta(t, dir, `{
		"keyPath": "/etc/draw/keys",
		"backupPath": "/var/backups/draw"
	}`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverridesPort(t *testing.T) {
	dir := t.TempDir()
	path := writeMeta(t, dir, `{
		"keyPath": "/etc/draw/keys",
		"serverPort": 7777,
		"backupPath": "/var/backups/draw"
	}`)

	t.Setenv("OCX_DRAW_PORT", "9999")

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint16(9999), m.ServerPort)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadFillsDatabaseDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeMeta(t, dir, `{
		"keyPath": "/etc/draw/keys",
		"serverPort": 7777,
		"backupPath": "/var/backups/draw"
	}`)

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "screen_mat_database", m.DatabaseName)
	assert.Equal(t, "db-server-user", m.DatabaseUser)
	assert.Equal(t, "screen_mat_database_dev", m.DevDatabaseName)
	assert.Equal(t, "dev", m.DevDatabaseUser)
	assert.Equal(t, "scs.local", m.DevDatabaseHost)
}

func TestLoadHonoursExplicitDatabaseFields(t *testing.T) {
	dir := t.TempDir()
	path := writeMeta(t, dir, `{
		"keyPath": "/etc/draw/keys",
		"serverPort": 7777,
		"backupPath": "/var/backups/draw",
		"databaseHost": "db.internal",
		"databaseName": "custom_db",
		"jwksURL": "https://idp.example.com/.well-known/jwks.json"
	}`)

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "db.internal", m.DatabaseHost)
	assert.Equal(t, "custom_db", m.DatabaseName)
	assert.Equal(t, "https://idp.example.com/.well-known/jwks.json", m.JWKSURL)
}
