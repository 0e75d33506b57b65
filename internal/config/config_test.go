package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"port": 8080,
		"jwt_secret": "`+testSecret+`",
		"database": {"host": "localhost", "user": "rentdesk", "dbname": "rentdesk"},
		"redis": {"addrs": ["127.0.0.1:6379"]}
	}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 5432, cfg.Database.Port)
	require.Equal(t, 168, cfg.JWTTTLHours)
	require.Equal(t, FastTierRedis, cfg.FastTier.Type)
	require.Equal(t, 300, cfg.OTP.TTLSeconds)
	require.Equal(t, 60, cfg.OTP.ResendCooldownSeconds)
	require.Equal(t, 90, cfg.Device.TokenTTLDays)
	require.Equal(t, "rentdesk", cfg.GenericCache.Namespace)
	require.Equal(t, "17 3 * * *", cfg.Jobs.OTPCleanupSpec)
	require.Equal(t, "info", cfg.LogConfig.Level)
}

func TestLoadRejectsShortSecret(t *testing.T) {
	path := writeConfig(t, `{
		"port": 8080,
		"jwt_secret": "short",
		"database": {"dsn": "postgres://localhost/rentdesk"},
		"redis": {"addrs": ["127.0.0.1:6379"]}
	}`)
	_, err := Load(path)
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "jwt_secret"))
}

func TestLoadFastTierSelection(t *testing.T) {
	base := `"port": 8080, "jwt_secret": "` + testSecret + `", "database": {"dsn": "x"}, "redis": {"addrs": ["127.0.0.1:6379"]}`

	_, err := Load(writeConfig(t, `{`+base+`, "fast_tier": {"type": "etcd"}}`))
	require.Error(t, err)

	_, err = Load(writeConfig(t, `{`+base+`, "fast_tier": {"type": "memcached"}}`))
	require.Error(t, err)

	cfg, err := Load(writeConfig(t, `{`+base+`, "fast_tier": {"type": " Memory "}}`))
	require.NoError(t, err)
	require.Equal(t, FastTierMemory, cfg.FastTier.Type)
}

func TestLoadRequiresDatabase(t *testing.T) {
	_, err := Load(writeConfig(t, `{"port": 8080, "jwt_secret": "`+testSecret+`", "redis": {"addrs": ["r:6379"]}}`))
	require.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
