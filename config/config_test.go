package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalTraderBot/internal/domain"
)

func TestParseTakeProfitLevels(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []domain.TakeProfitLevel
		wantErr bool
	}{
		{
			name:  "standard ladder",
			input: "1:50,2.5:50,5:100",
			want: []domain.TakeProfitLevel{
				{Percentage: 1, ClosePercentage: 50},
				{Percentage: 2.5, ClosePercentage: 50},
				{Percentage: 5, ClosePercentage: 100},
			},
		},
		{
			name:  "whitespace tolerated",
			input: " 1 : 50 , 3 : 100 ",
			want: []domain.TakeProfitLevel{
				{Percentage: 1, ClosePercentage: 50},
				{Percentage: 3, ClosePercentage: 100},
			},
		},
		{
			name:    "missing close percent",
			input:   "1:50,2.5",
			wantErr: true,
		},
		{
			name:    "negative percent",
			input:   "-1:50",
			wantErr: true,
		},
		{
			name:    "close percent over 100",
			input:   "1:150",
			wantErr: true,
		},
		{
			name:    "empty",
			input:   " , ",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTakeProfitLevels(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("BINANCE_API_KEY", "key")
	t.Setenv("BINANCE_API_SECRET", "secret")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.True(t, cfg.IsTestnet, "testnet must be the default")
	assert.Equal(t, 10, cfg.Leverage)
	assert.Equal(t, 24*time.Hour, cfg.CooldownWindow)
	assert.Equal(t, 5*time.Second, cfg.ReconcileInterval)
	assert.Equal(t, domain.DefaultTakeProfitLevels(), cfg.TakeProfitLevels)
	assert.Equal(t, "USDT", cfg.QuoteAsset)
	assert.True(t, cfg.PlaceProtectiveOrders)
}

func TestLoadConfigMissingKeys(t *testing.T) {
	t.Setenv("BINANCE_API_KEY", "")
	t.Setenv("BINANCE_API_SECRET", "")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BINANCE_API_KEY")
	assert.Contains(t, err.Error(), "BINANCE_API_SECRET")
}

func TestLoadConfigCustomLadderAndTiming(t *testing.T) {
	t.Setenv("BINANCE_API_KEY", "key")
	t.Setenv("BINANCE_API_SECRET", "secret")
	t.Setenv("TAKE_PROFIT_LEVELS", "2:25,4:50,8:100")
	t.Setenv("COOLDOWN_HOURS", "6")
	t.Setenv("RECONCILE_INTERVAL_SECONDS", "2")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 6*time.Hour, cfg.CooldownWindow)
	assert.Equal(t, 2*time.Second, cfg.ReconcileInterval)
	require.Len(t, cfg.TakeProfitLevels, 3)
	assert.Equal(t, 8.0, cfg.TakeProfitLevels[2].Percentage)

	account := cfg.AccountConfig()
	assert.Equal(t, cfg.TakeProfitLevels, account.TakeProfitLevels)
	assert.Equal(t, 6*time.Hour, account.CooldownWindow)
}

func TestLoadConfigTrailingValidation(t *testing.T) {
	t.Setenv("BINANCE_API_KEY", "key")
	t.Setenv("BINANCE_API_SECRET", "secret")
	t.Setenv("TRAILING_ENABLED", "true")
	t.Setenv("TRAILING_CALLBACK_PERCENT", "9")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TRAILING_CALLBACK_PERCENT")
}
