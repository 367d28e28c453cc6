package engine

import (
	"context"
	"fmt"
	"time"

	"commodity-market-go/internal/ledger"
	"commodity-market-go/internal/market"
	"commodity-market-go/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProcessTrade executes a market order for a user: moves the price, settles
// currency with the wallet and updates holdings, the trade log and the day
// flow aggregates. Serialized per user; the price move itself is serialized
// per item inside the market manager.
func (e *Engine) ProcessTrade(ctx context.Context, user uuid.UUID, identifier string, quantity float64, side, origin string) (market.Execution, error) {
	e.locks.Lock(user)
	defer e.locks.Unlock(user)
	return e.processTradeLocked(ctx, user, identifier, quantity, side, origin)
}

func (e *Engine) processTradeLocked(ctx context.Context, user uuid.UUID, identifier string, quantity float64, side, origin string) (market.Execution, error) {
	holdings, err := e.store.Portfolio(user)
	if err != nil {
		return market.Execution{}, fmt.Errorf("could not load portfolio: %w", err)
	}
	held := holdings[identifier]

	if side == models.TradeSideSell && held < quantity {
		return market.Execution{}, fmt.Errorf("insufficient holdings of %q: have %f, want %f", identifier, held, quantity)
	}

	exec, err := e.market.ApplyTrade(identifier, quantity, side)
	if err != nil {
		return market.Execution{}, err
	}

	// Settle currency. The price already moved; if settlement fails the
	// move is undone with a counter-trade so the book stays consistent.
	var settleErr error
	if side == models.TradeSideBuy {
		settleErr = e.wallet.Withdraw(ctx, user, exec.Net)
	} else {
		settleErr = e.wallet.Deposit(ctx, user, exec.Net)
	}
	if settleErr != nil {
		counter := models.TradeSideSell
		if side == models.TradeSideSell {
			counter = models.TradeSideBuy
		}
		if _, revErr := e.market.ApplyTrade(identifier, quantity, counter); revErr != nil {
			e.logger.Error("Failed to revert trade after settlement failure",
				zap.String("item", identifier), zap.Error(revErr))
		}
		return market.Execution{}, fmt.Errorf("settlement failed: %w", settleErr)
	}

	newHolding := held + quantity
	if side == models.TradeSideSell {
		newHolding = held - quantity
	}
	if err := e.store.SetHolding(user, identifier, newHolding); err != nil {
		e.logger.Error("Failed to persist holding after trade",
			zap.String("user", user.String()),
			zap.String("item", identifier),
			zap.Error(err))
	}

	now := time.Now()
	trade := models.Trade{
		UserID:         user.String(),
		ItemIdentifier: identifier,
		Side:           side,
		Quantity:       quantity,
		Value:          exec.Net,
		Timestamp:      now.Unix(),
		Origin:         origin,
	}
	if err := e.store.AppendTrade(&trade); err != nil {
		e.logger.Error("Failed to record trade", zap.Error(err))
	}
	if err := e.store.AddDayFlow(ledger.DayNumber(now), exec.Gross, exec.Tax); err != nil {
		e.logger.Warn("Failed to update day flow aggregate", zap.Error(err))
	}

	return exec, nil
}

// PlaceLimitOrder registers a standing order to be filled when the price
// crosses the target.
func (e *Engine) PlaceLimitOrder(user uuid.UUID, identifier, side string, targetPrice, quantity float64, expiresAt time.Time) error {
	if _, ok := e.market.Item(identifier); !ok {
		return fmt.Errorf("unknown item %q", identifier)
	}
	if quantity <= 0 || targetPrice <= 0 {
		return fmt.Errorf("limit order quantity and target price must be > 0")
	}

	order := models.LimitOrder{
		UserID:         user.String(),
		ItemIdentifier: identifier,
		Side:           side,
		TargetPrice:    targetPrice,
		Quantity:       quantity,
		ExpiresAt:      expiresAt.Unix(),
	}
	return e.store.SaveOrder(&order)
}

// matchLimitOrders fills standing orders whose target the current price has
// crossed: buys fill at or below target, sells at or above. A fill that
// fails (insufficient funds or holdings) is left for the next pass.
func (e *Engine) matchLimitOrders(ctx context.Context) {
	for _, item := range e.market.AllItems() {
		orders, err := e.store.OpenOrders(item.Identifier())
		if err != nil {
			e.logger.Warn("Failed to load limit orders",
				zap.String("item", item.Identifier()), zap.Error(err))
			continue
		}

		price := item.Price()
		for i := range orders {
			order := &orders[i]
			crossed := (order.Side == models.TradeSideBuy && price <= order.TargetPrice) ||
				(order.Side == models.TradeSideSell && price >= order.TargetPrice)
			if !crossed {
				continue
			}

			user, err := uuid.Parse(order.UserID)
			if err != nil {
				e.logger.Warn("Limit order with malformed user, dropping",
					zap.Uint("order", order.ID))
				if err := e.store.DeleteOrder(order); err != nil {
					e.logger.Warn("Failed to drop malformed order", zap.Error(err))
				}
				continue
			}

			remaining := order.Quantity - order.QuantityCompleted
			if remaining <= 0 {
				continue
			}

			exec, err := e.ProcessTrade(ctx, user, order.ItemIdentifier, remaining, order.Side, OriginLimitOrder)
			if err != nil {
				e.logger.Debug("Limit order fill deferred",
					zap.Uint("order", order.ID), zap.Error(err))
				continue
			}

			order.QuantityCompleted += remaining
			order.AccumulatedCost += exec.Net
			if order.QuantityCompleted >= order.Quantity {
				if err := e.store.DeleteOrder(order); err != nil {
					e.logger.Warn("Failed to remove completed order", zap.Error(err))
				}
				e.notifier.Notify(user, fmt.Sprintf(
					"Limit order filled: %s %.2f x %s at %.2f total.",
					order.Side, order.Quantity, order.ItemIdentifier, order.AccumulatedCost))
			} else if err := e.store.UpdateOrder(order); err != nil {
				e.logger.Warn("Failed to update partially filled order", zap.Error(err))
			}
		}
	}
}
