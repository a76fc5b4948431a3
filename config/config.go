package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"signalTraderBot/internal/adapters/logger"
	"signalTraderBot/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	// Binance API
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Account / Risk Parameters
	AccountID             string
	Leverage              int
	UsePercentBalance     bool
	BalancePercent        float64 // percent of available balance per trade
	FixedAmount           float64 // fixed quote notional per trade when not percent-sizing
	StopLossPercent       float64 // e.g. 2.0 for 2%
	TakeProfitLevels      []domain.TakeProfitLevel
	UseSignalSettings     bool
	PlaceProtectiveOrders bool
	QuoteAsset            string

	// Trailing stop
	TrailingEnabled           bool
	TrailingActivationPercent float64
	TrailingCallbackPercent   float64

	// Engine timing
	CooldownWindow    time.Duration
	ReconcileInterval time.Duration

	// Notifications
	WebhookURL string

	// Database
	DBPath string

	// Logging
	LogLevel logger.LogLevel
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety

	if cfg.APIKey == "" {
		errs = append(errs, "BINANCE_API_KEY must be set")
	}
	if cfg.SecretKey == "" {
		errs = append(errs, "BINANCE_API_SECRET must be set")
	}

	// Account / Risk Parameters
	cfg.AccountID = getEnv("ACCOUNT_ID", "default")
	cfg.QuoteAsset = getEnv("QUOTE_ASSET", "USDT")

	cfg.Leverage, err = getEnvAsIntRequired("LEVERAGE", 10)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid LEVERAGE: %v", err))
	} else if cfg.Leverage <= 0 || cfg.Leverage > 125 {
		errs = append(errs, "LEVERAGE must be between 1 and 125")
	}

	cfg.UsePercentBalance = getEnvAsBool("USE_PERCENT_BALANCE", true)
	cfg.BalancePercent, err = getEnvAsFloatRequired("BALANCE_PERCENT", 5.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid BALANCE_PERCENT: %v", err))
	} else if cfg.UsePercentBalance && (cfg.BalancePercent <= 0 || cfg.BalancePercent > 100) {
		errs = append(errs, "BALANCE_PERCENT must be between 0 and 100")
	}

	cfg.FixedAmount, err = getEnvAsFloatRequired("FIXED_AMOUNT", 50.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid FIXED_AMOUNT: %v", err))
	} else if !cfg.UsePercentBalance && cfg.FixedAmount <= 0 {
		errs = append(errs, "FIXED_AMOUNT must be positive when USE_PERCENT_BALANCE is false")
	}

	cfg.StopLossPercent, err = getEnvAsFloatRequired("STOP_LOSS_PERCENT", 2.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid STOP_LOSS_PERCENT: %v", err))
	} else if cfg.StopLossPercent < 0 || cfg.StopLossPercent >= 100 {
		errs = append(errs, "STOP_LOSS_PERCENT must be between 0 and 100")
	}

	// Take-profit ladder: "percent:closePercent" pairs, e.g. "1:50,2.5:50,5:100"
	ladderStr := getEnv("TAKE_PROFIT_LEVELS", "")
	if ladderStr == "" {
		cfg.TakeProfitLevels = domain.DefaultTakeProfitLevels()
	} else {
		cfg.TakeProfitLevels, err = ParseTakeProfitLevels(ladderStr)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid TAKE_PROFIT_LEVELS: %v", err))
		}
	}

	cfg.UseSignalSettings = getEnvAsBool("USE_SIGNAL_SETTINGS", true)
	cfg.PlaceProtectiveOrders = getEnvAsBool("PLACE_PROTECTIVE_ORDERS", true)

	// Trailing stop
	cfg.TrailingEnabled = getEnvAsBool("TRAILING_ENABLED", false)
	cfg.TrailingActivationPercent = getEnvAsFloat("TRAILING_ACTIVATION_PERCENT", 1.0)
	cfg.TrailingCallbackPercent = getEnvAsFloat("TRAILING_CALLBACK_PERCENT", 0.5)
	if cfg.TrailingEnabled {
		if cfg.TrailingActivationPercent <= 0 {
			errs = append(errs, "TRAILING_ACTIVATION_PERCENT must be positive when trailing is enabled")
		}
		// Binance accepts callback rates between 0.1 and 5 percent
		if cfg.TrailingCallbackPercent < 0.1 || cfg.TrailingCallbackPercent > 5 {
			errs = append(errs, "TRAILING_CALLBACK_PERCENT must be between 0.1 and 5")
		}
	}

	// Engine timing
	cooldownHours := getEnvAsInt("COOLDOWN_HOURS", 24)
	if cooldownHours < 0 {
		errs = append(errs, "COOLDOWN_HOURS cannot be negative")
	}
	cfg.CooldownWindow = time.Duration(cooldownHours) * time.Hour

	reconcileSeconds := getEnvAsInt("RECONCILE_INTERVAL_SECONDS", 5)
	if reconcileSeconds <= 0 {
		errs = append(errs, "RECONCILE_INTERVAL_SECONDS must be positive")
	}
	cfg.ReconcileInterval = time.Duration(reconcileSeconds) * time.Second

	// Notifications (optional)
	cfg.WebhookURL = getEnv("WEBHOOK_URL", "")

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/signal_trader.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// AccountConfig maps the loaded configuration onto the account risk profile
// consumed by the planner and execution engine.
func (c *Config) AccountConfig() *domain.AccountConfig {
	return &domain.AccountConfig{
		AccountID:                 c.AccountID,
		Leverage:                  c.Leverage,
		UsePercentBalance:         c.UsePercentBalance,
		BalancePercent:            c.BalancePercent,
		FixedAmount:               c.FixedAmount,
		StopLossPercent:           c.StopLossPercent,
		TakeProfitLevels:          c.TakeProfitLevels,
		UseSignalSettings:         c.UseSignalSettings,
		PlaceProtectiveOrders:     c.PlaceProtectiveOrders,
		TrailingEnabled:           c.TrailingEnabled,
		TrailingActivationPercent: c.TrailingActivationPercent,
		TrailingCallbackPercent:   c.TrailingCallbackPercent,
		CooldownWindow:            c.CooldownWindow,
	}
}

// ParseTakeProfitLevels parses a "percent:closePercent" comma list, e.g.
// "1:50,2.5:50,5:100".
func ParseTakeProfitLevels(s string) ([]domain.TakeProfitLevel, error) {
	parts := strings.Split(s, ",")
	levels := make([]domain.TakeProfitLevel, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		pair := strings.Split(part, ":")
		if len(pair) != 2 {
			return nil, fmt.Errorf("level '%s' must be formatted as percent:closePercent", part)
		}
		pct, err := strconv.ParseFloat(strings.TrimSpace(pair[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid percent in level '%s': %w", part, err)
		}
		closePct, err := strconv.ParseFloat(strings.TrimSpace(pair[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid close percent in level '%s': %w", part, err)
		}
		if pct <= 0 {
			return nil, fmt.Errorf("percent in level '%s' must be positive", part)
		}
		if closePct <= 0 || closePct > 100 {
			return nil, fmt.Errorf("close percent in level '%s' must be between 0 and 100", part)
		}
		levels = append(levels, domain.TakeProfitLevel{Percentage: pct, ClosePercentage: closePct})
	}
	if len(levels) == 0 {
		return nil, fmt.Errorf("no take-profit levels found in '%s'", s)
	}
	return levels, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
