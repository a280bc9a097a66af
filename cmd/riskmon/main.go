package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tradedesk/riskmon/internal/config"
	"github.com/tradedesk/riskmon/internal/events"
	"github.com/tradedesk/riskmon/internal/notify"
	"github.com/tradedesk/riskmon/internal/risk"
	natsbridge "github.com/tradedesk/riskmon/pkg/nats"
	"github.com/tradedesk/riskmon/pkg/types"
	"github.com/tradedesk/riskmon/services/binance"
	"github.com/tradedesk/riskmon/services/paper"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}

	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logrus.SetLevel(level)
	}
	logger := logrus.WithField("component", "riskmon")

	var portfolio types.Portfolio
	var broker types.Broker
	if cfg.Binance.APIKey != "" && cfg.Binance.SecretKey != "" {
		client := binance.New(cfg.Binance.APIKey, cfg.Binance.SecretKey, cfg.Binance.Testnet)
		portfolio, broker = client, client
		logger.Infof("using binance futures (testnet=%t)", cfg.Binance.Testnet)
	} else {
		ex := paper.New()
		portfolio, broker = ex, ex
		logger.Info("no API keys configured, using paper exchange")
	}

	dispatcher := events.NewDispatcher()
	sink := notify.NewMultiSink(notify.NewTerminalSink(os.Stdout), notify.NewLogSink())

	monitor, err := risk.NewMonitor(portfolio, dispatcher, sink, cfg.Monitor)
	if err != nil {
		logrus.Fatalf("failed to build monitor: %v", err)
	}
	executor := risk.NewEmergencyExecutor(broker, monitor)

	// Track the latest verdict per ticker so execute commands arriving
	// over NATS can be resolved to a full PositionRisk.
	latest := newSnapshotIndex()
	dispatcher.Subscribe(latest)

	var bridge *natsbridge.Bridge
	if cfg.NATS.Enabled {
		bridge, err = natsbridge.NewBridge(cfg.NATS.URL)
		if err != nil {
			logrus.Fatalf("failed to connect event bridge: %v", err)
		}
		defer bridge.Close()
		dispatcher.Subscribe(bridge)

		_, err = bridge.SubscribeExecute(func(req natsbridge.ExecuteRequest) {
			handleExecute(logger, bridge, executor, latest, req)
		})
		if err != nil {
			logrus.Fatalf("failed to subscribe to execute commands: %v", err)
		}
		logger.Infof("event bridge connected to %s", cfg.NATS.URL)
	}

	if err := monitor.Start(); err != nil {
		logrus.Fatalf("failed to start monitor: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutdown signal received")
	monitor.Stop()

	stats := monitor.Stats()
	logger.Infof("session summary: checks=%d alerts=%d api_calls=%d",
		stats.TotalChecks, stats.AlertsTriggered, stats.APICallsUsed)
}

func handleExecute(logger *logrus.Entry, bridge *natsbridge.Bridge, executor *risk.EmergencyExecutor, latest *snapshotIndex, req natsbridge.ExecuteRequest) {
	r, ok := latest.get(req.Ticker)
	if !ok {
		logger.Warnf("execute request for unknown ticker %s", req.Ticker)
		bridge.PublishOutcome(natsbridge.OutcomeMessage{
			Ticker: req.Ticker,
			Error:  "no monitored position for ticker",
		})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	outcome, err := executor.Execute(ctx, r)
	if err != nil {
		logger.Errorf("emergency execution for %s failed: %v", req.Ticker, err)
		bridge.PublishOutcome(natsbridge.OutcomeMessage{Ticker: req.Ticker, Error: err.Error()})
		return
	}
	bridge.PublishOutcome(natsbridge.OutcomeMessage{Ticker: req.Ticker, Outcome: outcome})
}

// snapshotIndex keeps the most recent PositionRisk per ticker.
type snapshotIndex struct {
	mu    sync.RWMutex
	risks map[string]*types.PositionRisk
}

func newSnapshotIndex() *snapshotIndex {
	return &snapshotIndex{risks: make(map[string]*types.PositionRisk)}
}

func (s *snapshotIndex) OnSnapshot(snap events.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.risks = make(map[string]*types.PositionRisk, len(snap.Risks))
	for _, r := range snap.Risks {
		s.risks[r.Position.Ticker] = r
	}
}

func (s *snapshotIndex) OnAlert(events.Alert)   {}
func (s *snapshotIndex) OnStatus(events.Status) {}

func (s *snapshotIndex) get(ticker string) (*types.PositionRisk, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.risks[ticker]
	return r, ok
}
