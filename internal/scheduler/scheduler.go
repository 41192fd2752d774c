package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"WhaleSentinel/internal/limiter"
	"WhaleSentinel/internal/model"
	"WhaleSentinel/internal/notifier"
	"WhaleSentinel/internal/reconciler"
	"WhaleSentinel/internal/store"

	"github.com/robfig/cron/v3"
)

// Scheduler manages all cron tasks.
type Scheduler struct {
	Cron       *cron.Cron
	Reconciler *reconciler.Reconciler
	Limiter    *limiter.FrequencyLimiter
	Store      store.Store
	Notifier   *notifier.TelegramNotifier
	Ctx        context.Context
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, rec *reconciler.Reconciler, lim *limiter.FrequencyLimiter, st store.Store, tn *notifier.TelegramNotifier) *Scheduler {
	return &Scheduler{
		Cron:       cron.New(cron.WithSeconds()),
		Reconciler: rec,
		Limiter:    lim,
		Store:      st,
		Notifier:   tn,
		Ctx:        ctx,
	}
}

// RegisterAll registers the reconcile tick, the frequency sweep, and the daily digest.
func (s *Scheduler) RegisterAll(reconcileCron, sweepCron, digestCron string) error {
	if _, err := s.Cron.AddFunc(reconcileCron, s.reconcileTask); err != nil {
		return fmt.Errorf("register reconcile task: %w", err)
	}
	if _, err := s.Cron.AddFunc(sweepCron, s.sweepTask); err != nil {
		return fmt.Errorf("register sweep task: %w", err)
	}
	if _, err := s.Cron.AddFunc(digestCron, s.digestTask); err != nil {
		return fmt.Errorf("register digest task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Println("[INFO] scheduler started")
}

// Stop stops the cron scheduler gracefully.
func (s *Scheduler) Stop() {
	s.Cron.Stop()
	log.Println("[INFO] scheduler stopped")
}

// RunReconcileNow executes a reconcile pass immediately (manual trigger / RUN_ON_START).
func (s *Scheduler) RunReconcileNow() {
	s.reconcileTask()
}

func (s *Scheduler) reconcileTask() {
	s.Reconciler.RunPass(s.Ctx)
}

// sweepTask applies lazy frequency resets so persisted budget state
// stays warm even for accounts with no recent trades.
func (s *Scheduler) sweepTask() {
	accounts, err := s.Store.Accounts()
	if err != nil {
		log.Printf("[ERROR] sweep: load accounts: %v", err)
		return
	}
	if err := s.Limiter.Sweep(accounts); err != nil {
		log.Printf("[ERROR] frequency sweep: %v", err)
		return
	}
	log.Printf("[INFO] frequency sweep finished (%d accounts)", len(accounts))
}

func (s *Scheduler) digestTask() {
	log.Println("[INFO] running daily digest")
	since := time.Now().Add(-24 * time.Hour)
	activities, err := s.Store.ActivitiesSince(since)
	if err != nil {
		log.Printf("[ERROR] digest: load activities: %v", err)
		return
	}

	var realized float64
	for _, a := range activities {
		if a.RealizedPnl != nil {
			realized += *a.RealizedPnl
		}
	}

	s.trySend(notifier.FormatDigest(activities, realized))
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(command string) string {
	switch command {
	case "/whales", "查看账户":
		return s.formatAccounts()
	case "/positions", "查看持仓":
		positions, err := s.Store.AllOpenPositions()
		if err != nil {
			log.Printf("[ERROR] command /positions: %v", err)
			return "查询失败，请稍后重试"
		}
		return notifier.FormatPositions(positions)
	case "/pnl", "查看盈亏":
		return s.formatPnl()
	case "/run":
		go s.RunReconcileNow()
		return "已触发一次同步"
	default:
		return "可用命令:\n• /whales 查看账户\n• /positions 查看持仓\n• /pnl 查看盈亏\n• /run 立即同步"
	}
}

func (s *Scheduler) formatAccounts() string {
	accounts, err := s.Store.Accounts()
	if err != nil {
		log.Printf("[ERROR] command /whales: %v", err)
		return "查询失败，请稍后重试"
	}
	states := make(map[string]*model.FrequencyState, len(accounts))
	for _, a := range accounts {
		state, err := s.Limiter.State(a)
		if err != nil {
			log.Printf("[WARN] frequency state for %s: %v", a.Wallet, err)
			continue
		}
		states[a.Wallet] = state
	}
	return notifier.FormatAccounts(accounts, states)
}

func (s *Scheduler) formatPnl() string {
	accounts, err := s.Store.Accounts()
	if err != nil {
		log.Printf("[ERROR] command /pnl: %v", err)
		return "查询失败，请稍后重试"
	}
	var positions []*model.SimulatedPosition
	for _, a := range accounts {
		ps, err := s.Store.WalletPositions(a.Wallet)
		if err != nil {
			log.Printf("[WARN] positions for %s: %v", a.Wallet, err)
			continue
		}
		positions = append(positions, ps...)
	}
	return notifier.FormatPnlSummary(positions)
}

func (s *Scheduler) trySend(text string) {
	if _, err := s.Notifier.SendWithRetry(s.Ctx, text, 3); err != nil {
		log.Printf("[ERROR] send notification: %v", err)
	}
}
