// Package config loads the engine's operator-facing configuration from a
// YAML file with environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/tradedesk/riskmon/internal/risk"
	"github.com/tradedesk/riskmon/pkg/types"
)

// Config is the full configuration surface of the riskmon binary.
type Config struct {
	Monitor risk.Config
	Binance BinanceConfig
	NATS    NATSConfig
	Log     LogConfig
}

// BinanceConfig holds broker credentials. Empty keys select the paper
// exchange.
type BinanceConfig struct {
	APIKey    string
	SecretKey string
	Testnet   bool
}

// NATSConfig controls the optional event bridge.
type NATSConfig struct {
	Enabled bool
	URL     string
}

// LogConfig controls logrus.
type LogConfig struct {
	Level string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("monitor.interval_seconds", 30)
	v.SetDefault("monitor.notifications_enabled", true)
	v.SetDefault("monitor.sound_enabled", true)

	defaults := types.DefaultRiskThresholds()
	v.SetDefault("risk.thresholds.warning", defaults.Warning.InexactFloat64())
	v.SetDefault("risk.thresholds.danger", defaults.Danger.InexactFloat64())
	v.SetDefault("risk.thresholds.critical", defaults.Critical.InexactFloat64())
	v.SetDefault("risk.stop_offsets.warning", defaults.StopOffsetWarning.InexactFloat64())
	v.SetDefault("risk.stop_offsets.danger", defaults.StopOffsetDanger.InexactFloat64())
	v.SetDefault("risk.stop_offsets.critical", defaults.StopOffsetCritical.InexactFloat64())

	v.SetDefault("binance.testnet", true)
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("log.level", "info")
}

// Load reads configuration from path (optional; defaults apply when the
// file is missing) and from RISKMON_* environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("RISKMON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{
		Monitor: risk.Config{
			Interval:             time.Duration(v.GetInt("monitor.interval_seconds")) * time.Second,
			NotificationsEnabled: v.GetBool("monitor.notifications_enabled"),
			SoundEnabled:         v.GetBool("monitor.sound_enabled"),
			Thresholds: types.RiskThresholds{
				Warning:            decimal.NewFromFloat(v.GetFloat64("risk.thresholds.warning")),
				Danger:             decimal.NewFromFloat(v.GetFloat64("risk.thresholds.danger")),
				Critical:           decimal.NewFromFloat(v.GetFloat64("risk.thresholds.critical")),
				StopOffsetWarning:  decimal.NewFromFloat(v.GetFloat64("risk.stop_offsets.warning")),
				StopOffsetDanger:   decimal.NewFromFloat(v.GetFloat64("risk.stop_offsets.danger")),
				StopOffsetCritical: decimal.NewFromFloat(v.GetFloat64("risk.stop_offsets.critical")),
			},
		},
		Binance: BinanceConfig{
			APIKey:    v.GetString("binance.api_key"),
			SecretKey: v.GetString("binance.secret_key"),
			Testnet:   v.GetBool("binance.testnet"),
		},
		NATS: NATSConfig{
			Enabled: v.GetBool("nats.enabled"),
			URL:     v.GetString("nats.url"),
		},
		Log: LogConfig{
			Level: v.GetString("log.level"),
		},
	}

	if err := cfg.Monitor.Validate(); err != nil {
		return nil, fmt.Errorf("invalid monitor configuration: %w", err)
	}

	return cfg, nil
}
