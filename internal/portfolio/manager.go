package portfolio

import (
	"context"
	"sort"
	"time"

	"commodity-market-go/internal/ledger"
	"commodity-market-go/internal/market"
	"commodity-market-go/internal/models"
	"commodity-market-go/internal/wallet"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OriginLiquidation marks trade records produced by forced liquidation.
const OriginLiquidation = "liquidation"

// Manager owns user holdings and executes liquidations against the price
// engine. Callers serialize per-user access; the manager itself does not
// lock.
type Manager struct {
	logger *zap.Logger
	store  *ledger.Store
	market *market.Manager
	wallet wallet.Wallet
}

// NewManager wires the portfolio manager to its collaborators.
func NewManager(logger *zap.Logger, store *ledger.Store, mkt *market.Manager, w wallet.Wallet) *Manager {
	return &Manager{
		logger: logger,
		store:  store,
		market: mkt,
		wallet: w,
	}
}

// Holdings returns a user's portfolio. A missing portfolio is an empty map.
func (m *Manager) Holdings(user uuid.UUID) (map[string]float64, error) {
	return m.store.Portfolio(user)
}

// SetHolding adjusts one position; quantities at or below zero remove the
// entry.
func (m *Manager) SetHolding(user uuid.UUID, identifier string, quantity float64) error {
	return m.store.SetHolding(user, identifier, quantity)
}

// GetValue computes a user's conservative worth: the net proceeds a full
// sell-down of every position would realize, not the spot valuation.
// Store failures degrade to zero so collateral math never sees garbage.
func (m *Manager) GetValue(user uuid.UUID) float64 {
	holdings, err := m.store.Portfolio(user)
	if err != nil {
		m.logger.Warn("Failed to load portfolio for valuation, treating as empty",
			zap.String("user", user.String()), zap.Error(err))
		return 0
	}

	var worth float64
	for identifier, quantity := range holdings {
		worth += m.market.SellValue(identifier, quantity)
	}
	return worth
}

// position is one holding staged for liquidation.
type position struct {
	identifier string
	quantity   float64
	value      float64
}

// Liquidate sells a user's holdings until cumulative realized value reaches
// targetAmount or the portfolio is exhausted, and returns what was actually
// realized. Positions go highest conservative value first, ties broken by
// item identifier, whole position at a time. Proceeds are deposited to the
// user's wallet as each position is sold.
//
// The sequence runs to completion before returning; per-user locking in the
// callers guarantees no other mutation on the portfolio interleaves.
func (m *Manager) Liquidate(ctx context.Context, user uuid.UUID, targetAmount float64) float64 {
	holdings, err := m.store.Portfolio(user)
	if err != nil {
		m.logger.Error("Cannot liquidate: failed to load portfolio",
			zap.String("user", user.String()), zap.Error(err))
		return 0
	}

	positions := make([]position, 0, len(holdings))
	for identifier, quantity := range holdings {
		positions = append(positions, position{
			identifier: identifier,
			quantity:   quantity,
			value:      m.market.SellValue(identifier, quantity),
		})
	}
	sort.Slice(positions, func(a, b int) bool {
		if positions[a].value != positions[b].value {
			return positions[a].value > positions[b].value
		}
		return positions[a].identifier < positions[b].identifier
	})

	var realized float64
	for _, pos := range positions {
		if realized >= targetAmount {
			break
		}

		exec, err := m.market.ApplyTrade(pos.identifier, pos.quantity, models.TradeSideSell)
		if err != nil {
			m.logger.Warn("Liquidation sell failed, skipping position",
				zap.String("user", user.String()),
				zap.String("item", pos.identifier),
				zap.Error(err))
			continue
		}
		realized += exec.Net

		if err := m.wallet.Deposit(ctx, user, exec.Net); err != nil {
			m.logger.Error("Failed to deposit liquidation proceeds",
				zap.String("user", user.String()),
				zap.Float64("amount", exec.Net),
				zap.Error(err))
		}

		m.recordSale(user, pos, exec)
	}

	m.logger.Info("Liquidation complete",
		zap.String("user", user.String()),
		zap.Float64("target", targetAmount),
		zap.Float64("realized", realized),
	)
	return realized
}

// recordSale persists the side effects of one liquidating sell: the trade
// record, the emptied portfolio entry and the day flow aggregate. Each write
// is best-effort; a store hiccup must not abort the sell-down.
func (m *Manager) recordSale(user uuid.UUID, pos position, exec market.Execution) {
	now := time.Now()

	trade := models.Trade{
		UserID:         user.String(),
		ItemIdentifier: pos.identifier,
		Side:           models.TradeSideSell,
		Quantity:       pos.quantity,
		Value:          exec.Net,
		Timestamp:      now.Unix(),
		Origin:         OriginLiquidation,
	}
	if err := m.store.AppendTrade(&trade); err != nil {
		m.logger.Error("Failed to record liquidation trade",
			zap.String("user", user.String()), zap.Error(err))
	}

	if err := m.store.SetHolding(user, pos.identifier, 0); err != nil {
		m.logger.Error("Failed to clear liquidated holding",
			zap.String("user", user.String()),
			zap.String("item", pos.identifier),
			zap.Error(err))
	}

	if err := m.store.AddDayFlow(ledger.DayNumber(now), exec.Gross, exec.Tax); err != nil {
		m.logger.Warn("Failed to update day flow aggregate", zap.Error(err))
	}
}

// SaveWorthSnapshots persists today's worth for every user holding items.
// One user's failure never blocks the rest of the pass.
func (m *Manager) SaveWorthSnapshots() {
	users, err := m.store.PortfolioUsers()
	if err != nil {
		m.logger.Error("Failed to list portfolio users for worth snapshots", zap.Error(err))
		return
	}

	day := ledger.DayNumber(time.Now())
	for _, user := range users {
		if err := m.store.SaveWorth(user, day, m.GetValue(user)); err != nil {
			m.logger.Warn("Failed to save worth snapshot",
				zap.String("user", user.String()), zap.Error(err))
		}
	}
}
