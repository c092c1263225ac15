// Package main provides the entry point for the adaptive trading engine:
// a stream-driven decision loop that classifies the market regime, selects
// the best-suited strategy, risk-checks every signal and publishes sized
// recommendations over the control API.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atlas-desktop/adaptive-engine/internal/api"
	"github.com/atlas-desktop/adaptive-engine/internal/broker"
	"github.com/atlas-desktop/adaptive-engine/internal/clock"
	"github.com/atlas-desktop/adaptive-engine/internal/config"
	"github.com/atlas-desktop/adaptive-engine/internal/engine"
	"github.com/atlas-desktop/adaptive-engine/internal/metrics"
	"github.com/atlas-desktop/adaptive-engine/internal/stream"
	"github.com/atlas-desktop/adaptive-engine/pkg/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	host := flag.String("host", "localhost", "Control server host")
	port := flag.Int("port", 8080, "Control server port")
	configPath := flag.String("config", "", "Optional config file (YAML)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	paper := flag.Bool("paper", true, "Force paper trading mode")
	flag.Parse()

	logger := setupLogger(*logLevel)
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	if *paper && cfg.Mode == types.ModeLive {
		logger.Warn("paper flag overrides live mode")
		cfg.Mode = types.ModePaper
	}

	logger.Info("starting adaptive trading engine",
		zap.Strings("symbols", cfg.Symbols),
		zap.String("timeframe", string(cfg.Timeframe)),
		zap.String("mode", string(cfg.Mode)),
		zap.String("capital", cfg.InitialCapital.String()),
	)

	metrics.Init()
	clk := clock.NewReal()

	var brokerPort broker.Broker
	switch cfg.Mode {
	case types.ModePaper, types.ModeMock:
		brokerPort = broker.NewPaper(logger, clk, cfg.InitialCapital)
	default:
		logger.Fatal("live mode requires a brokerage adapter; run paper or mock")
	}

	marketData := stream.NewBinanceStream(logger, cfg.Stream, clk)

	eng := engine.New(logger, cfg, engine.Deps{
		MarketData: marketData,
		Broker:     brokerPort,
		Clock:      clk,
	})

	serverConfig := &types.ServerConfig{
		Host:          *host,
		Port:          *port,
		WebSocketPath: "/ws",
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  30 * time.Second,
		EnableMetrics: true,
	}
	server := api.NewServer(logger, serverConfig, eng)

	if err := eng.Start(); err != nil {
		logger.Fatal("failed to start engine", zap.Error(err))
	}

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("control server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	if err := eng.Stop(15 * time.Second); err != nil {
		logger.Error("engine stop failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}

	logger.Info("stopped")
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := config.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
