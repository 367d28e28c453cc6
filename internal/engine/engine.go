package engine

import (
	"context"
	"fmt"
	"time"

	"commodity-market-go/internal/config"
	"commodity-market-go/internal/ledger"
	"commodity-market-go/internal/margin"
	"commodity-market-go/internal/market"
	"commodity-market-go/internal/models"
	"commodity-market-go/internal/notify"
	"commodity-market-go/internal/portfolio"
	"commodity-market-go/internal/scheduler"
	"commodity-market-go/internal/userlock"
	"commodity-market-go/internal/wallet"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OriginLimitOrder marks trades produced by limit order fills.
const OriginLimitOrder = "limit_order"

// Engine is the market simulation core: it owns the price engine, the
// portfolio manager, the margin engine and the periodic jobs that drive
// them.
type Engine struct {
	logger    *zap.Logger
	cfg       *config.Config
	store     *ledger.Store
	market    *market.Manager
	portfolio *portfolio.Manager
	margin    *margin.Engine
	wallet    wallet.Wallet
	notifier  notify.Notifier
	locks     *userlock.Locker
	sched     *scheduler.Scheduler
}

// NewEngine loads the item catalog and wires the engine together.
func NewEngine(logger *zap.Logger, cfg *config.Config, db *gorm.DB, w wallet.Wallet, n notify.Notifier) (*Engine, error) {
	store := ledger.NewStore(db)

	rows, err := store.Items()
	if err != nil {
		return nil, fmt.Errorf("could not load item catalog: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("item catalog is empty; configure market.items")
	}

	mkt := market.NewManager(&cfg.Market, rows, logger)
	locks := userlock.New()
	pf := portfolio.NewManager(logger, store, mkt, w)
	mg := margin.NewEngine(logger, &cfg.Loans, store, pf, w, n, locks)

	return &Engine{
		logger:    logger,
		cfg:       cfg,
		store:     store,
		market:    mkt,
		portfolio: pf,
		margin:    mg,
		wallet:    w,
		notifier:  n,
		locks:     locks,
		sched:     scheduler.New(logger),
	}, nil
}

// Market exposes the price engine, for the ops surface.
func (e *Engine) Market() *market.Manager { return e.market }

// Portfolio exposes the portfolio manager.
func (e *Engine) Portfolio() *portfolio.Manager { return e.portfolio }

// Margin exposes the margin engine.
func (e *Engine) Margin() *margin.Engine { return e.margin }

// Run schedules all periodic jobs and blocks until the context is
// cancelled, then flushes state one last time.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Info("Initializing market engine...",
		zap.Int("items", len(e.market.AllItems())))

	retention := time.Duration(e.cfg.Tasks.HistoryRetentionDays) * 24 * time.Hour
	if err := e.store.PurgeHistory(time.Now().Add(-retention)); err != nil {
		e.logger.Warn("Startup history purge failed", zap.Error(err))
	}

	now := time.Now()
	e.sched.Add(scheduler.Job{
		Name:         "noise",
		InitialDelay: scheduler.UntilNextMinute(now),
		Period:       time.Duration(e.cfg.Tasks.NoisePeriodMinutes) * time.Minute,
		Run:          e.OnNoiseTick,
	})
	e.sched.Add(scheduler.Job{
		Name:         "short_term_rollup",
		InitialDelay: scheduler.UntilNextMinute(now),
		Period:       time.Minute,
		Run:          e.OnShortTermTick,
	})
	e.sched.Add(scheduler.Job{
		Name:         "save",
		InitialDelay: time.Duration(e.cfg.Tasks.SavePeriodMinutes) * time.Minute,
		Period:       time.Duration(e.cfg.Tasks.SavePeriodMinutes) * time.Minute,
		Run:          e.OnSaveTick,
	})
	e.sched.Add(scheduler.Job{
		Name:         "hourly_reset",
		InitialDelay: scheduler.UntilNextHour(now),
		Period:       time.Hour,
		Run:          e.OnHourlyTick,
	})
	e.sched.Add(scheduler.Job{
		Name:         "margin_check",
		InitialDelay: 30 * time.Second,
		Period:       time.Duration(e.cfg.Tasks.MarginCheckPeriod) * time.Second,
		Run:          e.OnMarginCheckTick,
	})
	e.sched.Add(scheduler.Job{
		Name:         "interest_collector",
		InitialDelay: scheduler.UntilHourOfDay(now, e.cfg.Loans.InterestPaymentHour),
		Period:       24 * time.Hour,
		Run:          e.OnInterestTick,
	})
	e.sched.Add(scheduler.Job{
		Name:         "instant_snapshot",
		InitialDelay: time.Minute,
		Period:       time.Minute,
		Run:          e.OnInstantTick,
	})

	e.sched.Start(ctx)
	e.sched.Wait()

	e.logger.Info("Stopping market engine, flushing state...")
	e.saveEverything()
}

// OnNoiseTick applies the randomized price perturbation to every item, then
// rechecks standing limit orders against the moved prices.
func (e *Engine) OnNoiseTick(ctx context.Context) {
	e.market.NoisePass()
	e.matchLimitOrders(ctx)
}

// OnShortTermTick appends the per-minute short-term sample for every item
// and recomputes the rolling 1h market change.
func (e *Engine) OnShortTermTick(ctx context.Context) {
	e.market.ShortTermPass()
}

// OnSaveTick flushes items, CPI and portfolio worth snapshots to the store.
func (e *Engine) OnSaveTick(ctx context.Context) {
	e.saveEverything()
}

// OnHourlyTick resets per-hour price bounds, rolls an hourly instant into
// the month series and purges expired limit orders.
func (e *Engine) OnHourlyTick(ctx context.Context) {
	e.market.HourlyResetPass()

	now := time.Now()
	for _, item := range e.market.AllItems() {
		instant := models.Instant{
			ItemIdentifier: item.Identifier(),
			Granularity:    models.GranularityMonth,
			Timestamp:      now.Unix(),
			Price:          item.Price(),
			Volume:         item.Volume(),
		}
		if err := e.store.AppendInstant(&instant); err != nil {
			e.logger.Warn("Failed to append hourly instant",
				zap.String("item", item.Identifier()), zap.Error(err))
		}
	}

	if err := e.store.PurgeExpiredOrders(now); err != nil {
		e.logger.Warn("Failed to purge expired limit orders", zap.Error(err))
	}
}

// OnMarginCheckTick runs a margin-check pass over all debtors.
func (e *Engine) OnMarginCheckTick(ctx context.Context) {
	e.margin.CheckMarginsPass(ctx)
}

// OnInterestTick runs the daily interest accrual over all debtors.
func (e *Engine) OnInterestTick(ctx context.Context) {
	e.margin.InterestPass(ctx)
}

// OnInstantTick appends one minute-granularity instant per item and resets
// the rolling volume counters.
func (e *Engine) OnInstantTick(ctx context.Context) {
	now := time.Now()
	for _, item := range e.market.AllItems() {
		instant := models.Instant{
			ItemIdentifier: item.Identifier(),
			Granularity:    models.GranularityDay,
			Timestamp:      now.Unix(),
			Price:          item.Price(),
			Volume:         item.Volume(),
		}
		if err := e.store.AppendInstant(&instant); err != nil {
			e.logger.Warn("Failed to append instant",
				zap.String("item", item.Identifier()), zap.Error(err))
			continue
		}
		item.RestartVolume()
	}
}

// saveEverything flushes in-memory state to the store: item prices, the CPI
// snapshot, a history-granularity instant per item and portfolio worths.
// Store failures are logged; the next save cycle retries.
func (e *Engine) saveEverything() {
	now := time.Now()
	for _, item := range e.market.AllItems() {
		row := item.Snapshot()
		if err := e.store.SaveItem(&row); err != nil {
			e.logger.Error("Failed to save item",
				zap.String("item", row.Identifier), zap.Error(err))
		}
		instant := models.Instant{
			ItemIdentifier: row.Identifier,
			Granularity:    models.GranularityHistory,
			Timestamp:      now.Unix(),
			Price:          row.Price,
			Volume:         item.Volume(),
		}
		if err := e.store.AppendInstant(&instant); err != nil {
			e.logger.Warn("Failed to append history instant",
				zap.String("item", row.Identifier), zap.Error(err))
		}
	}

	if err := e.store.SaveCPI(e.market.ConsumerPriceIndex()); err != nil {
		e.logger.Warn("Failed to save CPI snapshot", zap.Error(err))
	}

	e.portfolio.SaveWorthSnapshots()
}

// GetMaxLoan returns the maximum loan a user's collateral allows right now.
func (e *Engine) GetMaxLoan(user uuid.UUID) float64 {
	return e.margin.MaxLoan(user)
}

// GetDebt returns a user's outstanding debt.
func (e *Engine) GetDebt(user uuid.UUID) float64 {
	return e.margin.Debt(user)
}

// ForceMarginCall triggers a margin call for a user outside the periodic
// check, e.g. from an admin surface.
func (e *Engine) ForceMarginCall(ctx context.Context, user uuid.UUID) {
	e.margin.ForceMarginCall(ctx, user)
}
