// Package config loads the engine configuration from an optional YAML file
// plus ENGINE_-prefixed environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/atlas-desktop/adaptive-engine/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Load reads configuration. path may be empty, in which case only defaults
// and environment variables apply. Environment variables use the ENGINE_
// prefix with underscores, e.g. ENGINE_SYMBOLS, ENGINE_RISK_PER_TRADE.
func Load(path string) (types.EngineConfig, error) {
	v := viper.New()
	cfg := types.DefaultEngineConfig()

	v.SetDefault("mode", string(cfg.Mode))
	v.SetDefault("symbols", cfg.Symbols)
	v.SetDefault("timeframe", string(cfg.Timeframe))
	v.SetDefault("initial_capital", cfg.InitialCapital.String())
	v.SetDefault("buffer_capacity", cfg.BufferCapacity)
	v.SetDefault("minimum_bars", cfg.MinimumBars)
	v.SetDefault("decision_tick", cfg.DecisionTick)
	v.SetDefault("suppression_ttl", cfg.SuppressionTTL)
	v.SetDefault("auto_execute", cfg.AutoExecute)
	v.SetDefault("close_on_shutdown", cfg.CloseOnShutdown)
	v.SetDefault("performance_trades", cfg.PerformanceTrades)
	v.SetDefault("performance_equity", cfg.PerformanceEquity)
	v.SetDefault("restart_cooldown", cfg.RestartCooldown)

	v.SetDefault("risk_per_trade", cfg.Risk.RiskPerTrade)
	v.SetDefault("max_position_fraction", cfg.Risk.MaxPositionFraction)
	v.SetDefault("max_portfolio_risk", cfg.Risk.MaxPortfolioRisk)
	v.SetDefault("reward_risk_ratio", cfg.Risk.RewardRiskRatio)
	v.SetDefault("stop_loss_method", string(cfg.Risk.StopLossMethod))
	v.SetDefault("stop_loss_percent", cfg.Risk.StopLossPercent)
	v.SetDefault("stop_loss_atr_mult", cfg.Risk.StopLossATRMult)
	v.SetDefault("cash_floor", cfg.Risk.CashFloor)

	v.SetDefault("stream_url", cfg.Stream.URL)
	v.SetDefault("stream_reconnect_backoff", cfg.Stream.ReconnectBackoff)
	v.SetDefault("stream_reconnect_backoff_max", cfg.Stream.ReconnectBackoffMax)
	v.SetDefault("stream_reconnect_max_attempts", cfg.Stream.ReconnectMaxAttempts)
	v.SetDefault("stream_quiescent_delay", cfg.Stream.QuiescentDelay)

	v.SetEnvPrefix("ENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	mode := types.EngineMode(v.GetString("mode"))
	switch mode {
	case types.ModePaper, types.ModeLive, types.ModeMock:
	default:
		return cfg, fmt.Errorf("unknown engine mode %q", mode)
	}
	cfg.Mode = mode

	cfg.Symbols = v.GetStringSlice("symbols")
	if len(cfg.Symbols) == 0 {
		return cfg, fmt.Errorf("at least one symbol is required")
	}
	cfg.Timeframe = types.Timeframe(v.GetString("timeframe"))

	capital, err := decimal.NewFromString(v.GetString("initial_capital"))
	if err != nil {
		return cfg, fmt.Errorf("parse initial_capital: %w", err)
	}
	if capital.LessThanOrEqual(decimal.Zero) {
		return cfg, fmt.Errorf("initial_capital must be positive")
	}
	cfg.InitialCapital = capital
	cfg.Risk.Capital = capital

	cfg.BufferCapacity = v.GetInt("buffer_capacity")
	cfg.MinimumBars = v.GetInt("minimum_bars")
	cfg.DecisionTick = v.GetDuration("decision_tick")
	cfg.SuppressionTTL = v.GetDuration("suppression_ttl")
	cfg.AutoExecute = v.GetBool("auto_execute")
	cfg.CloseOnShutdown = v.GetBool("close_on_shutdown")
	cfg.PerformanceTrades = v.GetInt("performance_trades")
	cfg.PerformanceEquity = v.GetInt("performance_equity")
	cfg.RestartCooldown = v.GetDuration("restart_cooldown")

	cfg.Risk.RiskPerTrade = v.GetFloat64("risk_per_trade")
	if cfg.Risk.RiskPerTrade <= 0 || cfg.Risk.RiskPerTrade > 0.1 {
		return cfg, fmt.Errorf("risk_per_trade must be in (0, 0.1]")
	}
	cfg.Risk.MaxPositionFraction = v.GetFloat64("max_position_fraction")
	if cfg.Risk.MaxPositionFraction <= 0 || cfg.Risk.MaxPositionFraction > 1 {
		return cfg, fmt.Errorf("max_position_fraction must be in (0, 1]")
	}
	cfg.Risk.MaxPortfolioRisk = v.GetFloat64("max_portfolio_risk")
	cfg.Risk.RewardRiskRatio = v.GetFloat64("reward_risk_ratio")
	cfg.Risk.StopLossMethod = types.StopLossMethod(v.GetString("stop_loss_method"))
	cfg.Risk.StopLossPercent = v.GetFloat64("stop_loss_percent")
	cfg.Risk.StopLossATRMult = v.GetFloat64("stop_loss_atr_mult")
	cfg.Risk.CashFloor = v.GetFloat64("cash_floor")

	cfg.Stream.URL = v.GetString("stream_url")
	cfg.Stream.ReconnectBackoff = v.GetDuration("stream_reconnect_backoff")
	cfg.Stream.ReconnectBackoffMax = v.GetDuration("stream_reconnect_backoff_max")
	cfg.Stream.ReconnectMaxAttempts = v.GetInt("stream_reconnect_max_attempts")
	cfg.Stream.QuiescentDelay = v.GetDuration("stream_quiescent_delay")

	// Broker credentials stay opaque to the core.
	cfg.BrokerAPIKey = v.GetString("broker_api_key")
	cfg.BrokerAPISecret = v.GetString("broker_api_secret")

	return cfg, nil
}
