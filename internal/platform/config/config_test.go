package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rerfiler/internal/filing/rerx"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "sandbox", cfg.Environment)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, "memory", cfg.StoreBackend)
	assert.Equal(t, "local", cfg.TransportBackend)
	assert.Equal(t, 22, cfg.SFTPPort)
	assert.Equal(t, 30*time.Second, cfg.TransportTimeout)
	assert.Equal(t, 5*time.Minute, cfg.PollTick)
	assert.Equal(t, time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), cfg.MinFilingDate)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("RERX_ENVIRONMENT", "production")
	t.Setenv("RERX_STORE", "postgres")
	t.Setenv("RERX_SFTP_PORT", "2222")
	t.Setenv("RERX_POLL_TICK", "90s")
	t.Setenv("RERX_MIN_FILING_DATE", "20260301")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "postgres", cfg.StoreBackend)
	assert.Equal(t, 2222, cfg.SFTPPort)
	assert.Equal(t, 90*time.Second, cfg.PollTick)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), cfg.MinFilingDate)
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	t.Run("non-numeric port", func(t *testing.T) {
		t.Setenv("RERX_SFTP_PORT", "twenty-two")
		_, err := FromEnv()
		require.Error(t, err)
	})

	t.Run("bad duration", func(t *testing.T) {
		t.Setenv("RERX_POLL_TICK", "soon")
		_, err := FromEnv()
		require.Error(t, err)
	})

	t.Run("bad minimum filing date", func(t *testing.T) {
		t.Setenv("RERX_MIN_FILING_DATE", "2026-03-01")
		_, err := FromEnv()
		require.Error(t, err)
	})
}

// EffectiveTCC must never leak a production control code into sandbox traffic.
func TestEffectiveTCC(t *testing.T) {
	cfg := Config{Environment: "sandbox", TransmitterTCC: "PRODTCC1"}
	assert.Equal(t, rerx.SandboxTCC, cfg.EffectiveTCC())

	cfg.Environment = "staging"
	assert.Equal(t, rerx.SandboxTCC, cfg.EffectiveTCC())

	cfg.Environment = "production"
	assert.Equal(t, "PRODTCC1", cfg.EffectiveTCC())
}
