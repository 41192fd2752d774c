package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"WhaleSentinel/internal/config"
	"WhaleSentinel/internal/copytrade"
	"WhaleSentinel/internal/feed"
	"WhaleSentinel/internal/limiter"
	"WhaleSentinel/internal/model"
	"WhaleSentinel/internal/notifier"
	"WhaleSentinel/internal/pnl"
	"WhaleSentinel/internal/reconciler"
	"WhaleSentinel/internal/scheduler"
	"WhaleSentinel/internal/store"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("[INFO] WhaleSentinel starting...")

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("[FATAL] load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[FATAL] invalid config: %v", err)
	}
	log.Printf("[INFO] config loaded: %d tracked accounts", len(cfg.Accounts))

	st := openStore(cfg.Database.SQLitePath)
	defer st.Close()

	// Sync configured accounts into the store so passes and commands
	// read a single source of truth.
	for i := range cfg.Accounts {
		if err := st.UpsertAccount(&cfg.Accounts[i]); err != nil {
			log.Fatalf("[FATAL] upsert account %s: %v", cfg.Accounts[i].Wallet, err)
		}
	}

	source := feed.NewPolymarketSource(cfg.DataSource.BaseURL, cfg.Proxy, cfg.DataSource.RequestsPerSec)
	log.Printf("[INFO] data source: %s", source.Name())

	window := time.Duration(cfg.Limits.ResetWindowHours * float64(time.Hour))
	lim := limiter.NewFrequencyLimiter(st, window)
	pnlEngine := pnl.NewEngine(st, cfg.Limits.LedgerTolerance)
	copier := copytrade.NewEngine(st)

	tn := notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)

	rec := reconciler.New(st, source, lim, pnlEngine, copier, tn, cfg.Limits.MaxStoragePrice)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.NewScheduler(ctx, rec, lim, st, tn)
	if err := sched.RegisterAll(cfg.Schedule.ReconcileCron, cfg.Schedule.SweepCron, cfg.Schedule.DigestCron); err != nil {
		log.Fatalf("[FATAL] register cron tasks: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	// Live trade stream nudges the hinted wallet ahead of the next tick.
	wallets := make([]string, 0, len(cfg.Accounts))
	for i := range cfg.Accounts {
		wallets = append(wallets, cfg.Accounts[i].Wallet)
	}
	listener := feed.NewLiveListener(cfg.DataSource.WebsocketURL, wallets, func(wallet string) {
		account := findAccount(cfg.Accounts, wallet)
		if account == nil {
			return
		}
		go func() {
			if err := rec.ReconcileAccount(ctx, account); err != nil {
				log.Printf("[ERROR] fast-path reconcile %s: %v", wallet, err)
			}
		}()
	})
	listener.Start(ctx)
	defer listener.Stop()

	go tn.StartPolling(ctx, sched.HandleCommand)

	if os.Getenv("RUN_ON_START") == "true" {
		log.Println("[INFO] RUN_ON_START=true, executing reconcile pass immediately")
		go sched.RunReconcileNow()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[INFO] shutdown signal received")
	cancel()
	log.Println("[INFO] WhaleSentinel stopped")
}

// openStore opens the SQLite store, falling back to an in-memory store
// so the bot still runs when the database path is unusable.
func openStore(path string) store.Store {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Printf("[WARN] create data dir: %v, using in-memory store", err)
			return store.NewMemoryStore()
		}
	}
	st, err := store.NewSQLiteStore(path)
	if err != nil {
		log.Printf("[WARN] open sqlite store: %v, using in-memory store (state will not survive restarts)", err)
		return store.NewMemoryStore()
	}
	log.Printf("[INFO] sqlite store ready: %s", path)
	return st
}

func findAccount(accounts []model.Account, wallet string) *model.Account {
	for i := range accounts {
		// The live stream reports wallets lowercased.
		if strings.EqualFold(accounts[i].Wallet, wallet) {
			return &accounts[i]
		}
	}
	return nil
}
