package config

import (
	"bytes"
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inTempDir runs the test from an empty directory so no stray .env is read.
func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	inTempDir(t)

	cfg, err := Load(nil, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadLayers(t *testing.T) {
	dir := inTempDir(t)

	yamlPath := filepath.Join(dir, "leenbank.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
db: from-yaml.sqlite3
addr: ":9000"
email_domain: example.edu
token_ttl: 2h
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("LEENBANK_ADDR=:9100\nLEENBANK_SEED=true\n"), 0o644))
	t.Setenv("LEENBANK_ADMIN_USER", "beheer")

	cfg, err := Load([]string{"-config", yamlPath, "-d", "from-flag.sqlite3"}, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, "from-flag.sqlite3", cfg.DBPath, "flag beats yaml")
	assert.Equal(t, ":9100", cfg.Addr, ".env beats yaml")
	assert.Equal(t, "beheer", cfg.AdminUser)
	assert.Equal(t, "example.edu", cfg.EmailDomain)
	assert.Equal(t, 2*time.Hour, cfg.TokenTTL)
	assert.True(t, cfg.Seed)
	assert.Equal(t, 1024, cfg.ImageSize)
}

func TestEnvironmentBeatsDotEnv(t *testing.T) {
	dir := inTempDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("LEENBANK_ADDR=:9100\n"), 0o644))
	t.Setenv("LEENBANK_ADDR", ":9200")

	cfg, err := Load(nil, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, ":9200", cfg.Addr)
}

func TestLoadErrors(t *testing.T) {
	inTempDir(t)

	for name, args := range map[string][]string{
		"unknown flag":   {"-nope"},
		"extra argument": {"serve"},
		"missing file":   {"-config", "missing.yaml"},
		"bad ttl":        {"-token-ttl", "0s"},
		"bad domain":     {"-email-domain", "@school.nl"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(args, &bytes.Buffer{})
			assert.Error(t, err)
		})
	}
}

func TestLoadBadEnv(t *testing.T) {
	inTempDir(t)
	t.Setenv("LEENBANK_TOKEN_TTL", "forever")

	_, err := Load(nil, &bytes.Buffer{})
	assert.ErrorContains(t, err, "LEENBANK_TOKEN_TTL")
}

func TestLoadHelp(t *testing.T) {
	inTempDir(t)
	var out bytes.Buffer

	_, err := Load([]string{"-h"}, &out)
	assert.ErrorIs(t, err, flag.ErrHelp)
	assert.Contains(t, out.String(), "Usage: leenbank")
}
