package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/steveyegge/graphd/internal/config"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddr)
	require.Equal(t, 30, cfg.JobLeaseSeconds)
	require.Equal(t, 24*time.Hour, cfg.TokenBlacklistTTL)
}

func TestLoadEnvOverridesDefault(t *testing.T) {
	t.Setenv("GRAPHD_HTTP_ADDR", ":9090")
	t.Setenv("GRAPHD_JOB_LEASE_SECONDS", "60")

	cfg, err := config.Load("")
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.HTTPAddr)
	require.Equal(t, 60, cfg.JobLeaseSeconds)
}

func TestLoadFileOverridesDefaultButNotEnv(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "graphd-*.toml")
	require.NoError(t, err)
	_, err = f.WriteString("http_addr = \":7070\"\njob_lease_seconds = 45\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	t.Setenv("GRAPHD_JOB_LEASE_SECONDS", "90")

	cfg, err := config.Load(f.Name())
	require.NoError(t, err)
	require.Equal(t, ":7070", cfg.HTTPAddr)
	require.Equal(t, 90, cfg.JobLeaseSeconds)
}

func TestTokenBlacklistExpires(t *testing.T) {
	bl := config.NewTokenBlacklist(10 * time.Millisecond)
	bl.Add("revoked-token")
	require.True(t, bl.Contains("revoked-token"))

	time.Sleep(20 * time.Millisecond)
	require.False(t, bl.Contains("revoked-token"))
}
