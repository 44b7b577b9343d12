package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "v19.0", cfg.APIVersion)
	assert.Equal(t, 80, cfg.QuotaWarnPercent)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadConfig_ReadsEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("WABA_ID", "waba-1")
	t.Setenv("WHATSAPP_TOKEN", "token-1")
	t.Setenv("QUOTA_WARN_PERCENT", "90")

	cfg := LoadConfig()
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "waba-1", cfg.WhatsAppBusinessAccountID)
	assert.Equal(t, "token-1", cfg.WhatsAppToken)
	assert.Equal(t, 90, cfg.QuotaWarnPercent)
}

func TestLoadConfig_BadIntFallsBack(t *testing.T) {
	t.Setenv("QUOTA_WARN_PERCENT", "lots")
	cfg := LoadConfig()
	assert.Equal(t, 80, cfg.QuotaWarnPercent)
}

func TestIsEnabled(t *testing.T) {
	tests := []struct {
		name  string
		waba  string
		token string
		want  bool
	}{
		{name: "both present", waba: "waba-1", token: "token-1", want: true},
		{name: "missing token", waba: "waba-1", want: false},
		{name: "missing account id", token: "token-1", want: false},
		{name: "neither", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{WhatsAppBusinessAccountID: tt.waba, WhatsAppToken: tt.token}
			assert.Equal(t, tt.want, cfg.IsEnabled())
		})
	}
}
