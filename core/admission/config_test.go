package admission_test

import (
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduplatform/gatekeeper/core/admission"
)

func TestConfig_EnvDefaultsMatchDefaultConfig(t *testing.T) {
	var cfg admission.Config
	require.NoError(t, env.Parse(&cfg))
	assert.Equal(t, admission.DefaultConfig(), cfg)
}

func TestConfig_EnvOverrides(t *testing.T) {
	t.Setenv("ANON_RATE_LIMIT_MINUTE", "5")
	t.Setenv("TOKEN_BUCKET_CAPACITY", "25")
	t.Setenv("RATE_LIMIT_WHITELIST_IPS", "10.0.0.1,10.0.0.2")
	t.Setenv("RATE_LIMIT_STORE_TIMEOUT", "150ms")

	var cfg admission.Config
	require.NoError(t, env.Parse(&cfg))
	assert.Equal(t, 5, cfg.TierLimits(admission.TierAnonymous).Minute)
	assert.Equal(t, 25.0, cfg.Bucket.Capacity)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, cfg.WhitelistIPs)
	assert.Equal(t, 150*time.Millisecond, cfg.StoreTimeout)
}

func TestConfig_TierLimits(t *testing.T) {
	t.Parallel()

	cfg := admission.DefaultConfig()
	assert.Equal(t, admission.TierLimits{Minute: 20, Hour: 100, Day: 1000}, cfg.TierLimits(admission.TierAnonymous))
	assert.Equal(t, admission.TierLimits{Minute: 60, Hour: 1000, Day: 10000}, cfg.TierLimits(admission.TierAuthenticated))
	assert.Equal(t, admission.TierLimits{Minute: 120, Hour: 2000, Day: 50000}, cfg.TierLimits(admission.TierPremium))
	assert.Equal(t, admission.TierLimits{Minute: 200, Hour: 5000, Day: 100000}, cfg.TierLimits(admission.TierAdmin))
	assert.Equal(t, cfg.TierLimits(admission.TierAnonymous), cfg.TierLimits("unknown"))
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	require.NoError(t, admission.DefaultConfig().Validate())

	cfg := admission.DefaultConfig()
	cfg.PremiumDay = 0
	assert.ErrorIs(t, cfg.Validate(), admission.ErrInvalidConfig)

	cfg = admission.DefaultConfig()
	cfg.StoreTimeout = 0
	assert.ErrorIs(t, cfg.Validate(), admission.ErrInvalidConfig)

	cfg = admission.DefaultConfig()
	cfg.Bucket.RefillRate = 0
	assert.ErrorIs(t, cfg.Validate(), admission.ErrInvalidConfig)
}
