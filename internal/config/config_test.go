package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithEnv(t *testing.T) {
	t.Setenv("HTTP_JWT_SECRET", "secret")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 24*time.Hour, cfg.HTTP.TokenTTL)
	assert.Equal(t, 2, cfg.Ledger.MonetizationThreshold)
	assert.Equal(t, 5, cfg.Ledger.MaxTxRetries)
	assert.Equal(t, "bite-official", cfg.Ledger.OfficialUserID)
	assert.Equal(t, 10*time.Minute, cfg.Cleanup.Interval)
	assert.Equal(t, "botify", cfg.Database.Name)
	assert.Equal(t, "postgres://botify:@localhost:5432/botify?sslmode=disable", cfg.Database.DSN())
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `
http:
  jwt_secret: from-file
telegram:
  token: abc
  admin_ids: [42, 7]
ledger:
  monetization_threshold: 3
redis:
  addr: localhost:6379
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.HTTP.JWTSecret)
	assert.Equal(t, 3, cfg.Ledger.MonetizationThreshold)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.True(t, cfg.IsAdmin(42))
	assert.True(t, cfg.IsAdmin(7))
	assert.False(t, cfg.IsAdmin(1))
}

func TestLoad_MissingSecret(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := Config{
		HTTP:   HTTPConfig{JWTSecret: "s"},
		Ledger: LedgerConfig{MonetizationThreshold: 2, MaxTxRetries: 5, OfficialUserID: "bite-official"},
	}
	require.NoError(t, base.Validate())

	c := base
	c.Ledger.MonetizationThreshold = 0
	assert.Error(t, c.Validate())

	c = base
	c.Ledger.SignupBonus = -1
	assert.Error(t, c.Validate())

	c = base
	c.Ledger.OfficialUserID = ""
	assert.Error(t, c.Validate())
}
