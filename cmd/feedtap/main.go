// feedtap connects to the market-data feed and streams decoded events to
// the console. Usage: go run ./cmd/feedtap --config configs/feedtap.example.yaml
//
// Optional environment variables (a .env file is loaded if present):
//
//	FEED_ACCESS_TOKEN - JWT for private channel subscriptions
//	FEED_ACCOUNT_NO   - account number for the private channel
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"marketfeed/internal/account"
	"marketfeed/internal/auth"
	"marketfeed/internal/channel"
	"marketfeed/internal/config"
	"marketfeed/internal/connection"
	"marketfeed/internal/dispatch"
	"marketfeed/internal/store"
	"marketfeed/internal/subscription"
	"marketfeed/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/feedtap.example.yaml", "path to config file")
	withBook := flag.Bool("book", false, "also subscribe order book channels for configured symbols")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.Log.Level),
	}))
	logger.Info("feedtap starting", "version", version.String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	// Wire the core: store ← dispatcher ← manager; registry → manager.
	st := store.NewStore(logger)
	st.Preload(cfg.Symbols)

	book := account.NewBook(logger)
	if cfg.Account.No != "" {
		book.Select(cfg.Account.No)
	}

	bus := dispatch.NewBus(logger)
	dispatcher := dispatch.NewDispatcher(st, book, bus, logger)

	tokens := &auth.TokenStore{}
	registry := subscription.NewRegistry(tokens, logger)

	mgrCfg := connection.DefaultManagerConfig()
	mgrCfg.URL = cfg.Feed.URL
	mgrCfg.ConnectTimeout = cfg.Feed.ConnectTimeout
	mgrCfg.PingTimeout = cfg.Feed.PingTimeout
	mgrCfg.WriteTimeout = cfg.Feed.WriteTimeout
	mgrCfg.BufferSize = cfg.Feed.BufferSize
	mgrCfg.ControlRate = cfg.Feed.ControlRate
	mgrCfg.ControlBurst = cfg.Feed.ControlBurst

	mgr := connection.NewManager(mgrCfg, registry, dispatcher, logger)

	if token := os.Getenv("FEED_ACCESS_TOKEN"); token != "" {
		mgr.SetAccessToken(token)
		logger.Info("access token set, private channel enabled")
	}

	unsubscribe := bus.Subscribe(printEvent)
	defer unsubscribe()

	if err := mgr.Connect(ctx); err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}

	mgr.SetDesired(desiredChannels(cfg, *withBook))
	if err := mgr.Reconcile(ctx); err != nil {
		logger.Error("failed to reconcile subscriptions", "error", err)
		os.Exit(1)
	}

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				mgrStats := mgr.Stats()
				dspStats := dispatcher.Stats()
				logger.Info("stats",
					"state", mgr.State(),
					"frames_received", mgrStats.FramesReceived,
					"decode_errors", mgrStats.DecodeErrors,
					"quotes_applied", dspStats.QuotesApplied,
					"events_published", dspStats.EventsPublished,
					"store_symbols", st.Len(),
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")
	<-ctx.Done()

	logger.Info("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := mgr.UnsubscribeAll(shutdownCtx); err != nil {
		logger.Warn("unsubscribe all failed", "error", err)
	}
	if err := mgr.Disconnect(); err != nil {
		logger.Warn("disconnect failed", "error", err)
	}

	logger.Info("shutdown complete")
}

// desiredChannels builds the subscription intent for this session.
func desiredChannels(cfg *config.Config, withBook bool) []channel.Channel {
	channels := []channel.Channel{channel.MarketQuote()}

	if withBook {
		for _, sym := range cfg.Symbols {
			channels = append(channels, channel.MarketOrderBook(sym))
		}
	}
	if cfg.Account.No != "" {
		channels = append(channels, channel.Private(cfg.Account.No))
	}

	return channels
}

func printEvent(ev dispatch.Event) {
	switch e := ev.(type) {
	case dispatch.DataUpdated:
		fmt.Printf("[QUOTE] symbol=%s price=%.2f bid=%.2f ask=%.2f\n",
			e.Symbol, e.Price, e.Bid, e.Ask)
	case dispatch.OrderBookUpdated:
		fmt.Printf("[BOOK] symbol=%s levels=%d\n", e.Symbol, len(e.Snapshot.Levels))
	case dispatch.OrderBookCancelled:
		fmt.Printf("[BOOK CANCEL] symbol=%s\n", e.Symbol)
	case dispatch.OrderAccepted:
		fmt.Printf("[ORDER ACCEPTED] account=%s order=%s symbol=%s side=%s\n",
			e.Order.AccountNo, e.Order.OrderNo, e.Order.StockCd, e.Order.Side)
	case dispatch.OrderRejected:
		fmt.Printf("[ORDER REJECTED] account=%s order=%s reason=%s\n",
			e.Order.AccountNo, e.Order.OrderNo, e.Reason)
	case dispatch.OrderExecuted:
		fmt.Printf("[FILL] account=%s order=%s price=%.2f qty=%d\n",
			e.Execution.AccountNo, e.Execution.OrderNo, e.Execution.ExecPrice, e.Execution.ExecQty)
	case dispatch.PositionUpdated:
		fmt.Printf("[POSITION] account=%s symbol=%s pl=%.2f\n",
			e.Position.AccountNo, e.Position.StockCd, e.Position.EvalProfitLoss)
	case dispatch.DepositUpdated:
		fmt.Printf("[DEPOSIT] account=%s deposit=%.2f\n",
			e.Deposit.AccountNo, e.Deposit.Deposit)
	}
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
