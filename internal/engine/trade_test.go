package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"commodity-market-go/internal/config"
	"commodity-market-go/internal/database"
	"commodity-market-go/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeWallet is an in-memory wallet that rejects overdrafts.
type fakeWallet struct {
	mu       sync.Mutex
	balances map[uuid.UUID]float64
}

func newFakeWallet() *fakeWallet {
	return &fakeWallet{balances: make(map[uuid.UUID]float64)}
}

func (w *fakeWallet) Balance(_ context.Context, user uuid.UUID) (float64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balances[user], nil
}

func (w *fakeWallet) Withdraw(_ context.Context, user uuid.UUID, amount float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.balances[user] < amount {
		return fmt.Errorf("insufficient funds: have %f, want %f", w.balances[user], amount)
	}
	w.balances[user] -= amount
	return nil
}

func (w *fakeWallet) Deposit(_ context.Context, user uuid.UUID, amount float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balances[user] += amount
	return nil
}

// fakeNotifier records delivered messages.
type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *fakeNotifier) Notify(_ uuid.UUID, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
}

func testConfig() config.Config {
	return config.Config{
		Market: config.Market{
			Items: []config.Item{
				{Identifier: "iron_ingot", InitialPrice: 10, Stock: 1000},
				{Identifier: "coal", InitialPrice: 2.5, Stock: 5000},
			},
			NoiseEnabled:   false,
			NoiseBound:     0.01,
			PriceFloor:     0.01,
			DefaultTaxRate: 0,
		},
		Loans: config.Loans{
			DailyInterest:       0.02,
			MinimumInterest:     1.0,
			SecurityMargin:      0.25,
			MaxSize:             10000,
			InterestPaymentHour: 6,
		},
		Tasks: config.Tasks{
			NoisePeriodMinutes:   1,
			MarginCheckPeriod:    300,
			SavePeriodMinutes:    5,
			HistoryRetentionDays: 365,
		},
		Database: config.Database{DSN: ":memory:"},
	}
}

func newTestEngine(t *testing.T) (*Engine, *fakeWallet) {
	t.Helper()

	cfg := testConfig()
	db, err := database.NewDatabase(&cfg)
	require.NoError(t, err)

	w := newFakeWallet()
	e, err := NewEngine(zap.NewNop(), &cfg, db, w, &fakeNotifier{})
	require.NoError(t, err)
	return e, w
}

func TestProcessTradeBuy(t *testing.T) {
	e, w := newTestEngine(t)
	user := uuid.New()
	ctx := context.Background()
	require.NoError(t, w.Deposit(ctx, user, 1000))

	exec, err := e.ProcessTrade(ctx, user, "iron_ingot", 10, models.TradeSideBuy, "game")
	require.NoError(t, err)
	assert.Greater(t, exec.UnitPrice, 10.0)

	balance, err := w.Balance(ctx, user)
	require.NoError(t, err)
	assert.InDelta(t, 1000-exec.Net, balance, 1e-9)

	holdings, err := e.portfolio.Holdings(user)
	require.NoError(t, err)
	assert.InDelta(t, 10, holdings["iron_ingot"], 1e-9)

	trades, err := e.store.TradesForUser(user, 0, 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, models.TradeSideBuy, trades[0].Side)
	assert.Equal(t, "game", trades[0].Origin)
}

func TestProcessTradeBuyInsufficientFundsReverts(t *testing.T) {
	e, _ := newTestEngine(t)
	user := uuid.New()
	item, _ := e.market.Item("iron_ingot")
	priceBefore := item.Price()
	stockBefore := item.Stock()

	_, err := e.ProcessTrade(context.Background(), user, "iron_ingot", 10, models.TradeSideBuy, "game")
	require.Error(t, err)

	// The price move was undone with a counter-trade.
	assert.InDelta(t, priceBefore, item.Price(), 1e-9)
	assert.InDelta(t, stockBefore, item.Stock(), 1e-9)

	holdings, err := e.portfolio.Holdings(user)
	require.NoError(t, err)
	assert.Empty(t, holdings)
}

func TestProcessTradeSell(t *testing.T) {
	e, w := newTestEngine(t)
	user := uuid.New()
	ctx := context.Background()
	require.NoError(t, e.store.SetHolding(user, "iron_ingot", 50))

	exec, err := e.ProcessTrade(ctx, user, "iron_ingot", 50, models.TradeSideSell, "game")
	require.NoError(t, err)
	assert.Less(t, exec.UnitPrice, 10.0)

	balance, err := w.Balance(ctx, user)
	require.NoError(t, err)
	assert.InDelta(t, exec.Net, balance, 1e-9)

	// The position hit zero and the entry is gone.
	holdings, err := e.portfolio.Holdings(user)
	require.NoError(t, err)
	assert.Empty(t, holdings)
}

func TestProcessTradeSellWithoutHoldings(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.ProcessTrade(context.Background(), uuid.New(), "iron_ingot", 5, models.TradeSideSell, "game")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient holdings")
}

func TestLimitOrderBuyFillsWhenPriceDrops(t *testing.T) {
	e, w := newTestEngine(t)
	buyer := uuid.New()
	seller := uuid.New()
	ctx := context.Background()
	require.NoError(t, w.Deposit(ctx, buyer, 10000))
	require.NoError(t, e.store.SetHolding(seller, "iron_ingot", 800))

	require.NoError(t, e.PlaceLimitOrder(buyer, "iron_ingot", models.TradeSideBuy, 8.0, 20, time.Now().Add(time.Hour)))

	// Price still at 10: nothing fills.
	e.matchLimitOrders(ctx)
	orders, err := e.store.OpenOrders("iron_ingot")
	require.NoError(t, err)
	require.Len(t, orders, 1)

	// Heavy selling pushes the price under the target.
	_, err = e.ProcessTrade(ctx, seller, "iron_ingot", 800, models.TradeSideSell, "game")
	require.NoError(t, err)
	item, _ := e.market.Item("iron_ingot")
	require.Less(t, item.Price(), 8.0)

	e.matchLimitOrders(ctx)

	orders, err = e.store.OpenOrders("iron_ingot")
	require.NoError(t, err)
	assert.Empty(t, orders, "completed order is removed")

	holdings, err := e.portfolio.Holdings(buyer)
	require.NoError(t, err)
	assert.InDelta(t, 20, holdings["iron_ingot"], 1e-9)
}

func TestLimitOrderDeferredWhenUnfunded(t *testing.T) {
	e, _ := newTestEngine(t)
	buyer := uuid.New()
	seller := uuid.New()
	ctx := context.Background()
	require.NoError(t, e.store.SetHolding(seller, "iron_ingot", 800))

	require.NoError(t, e.PlaceLimitOrder(buyer, "iron_ingot", models.TradeSideBuy, 8.0, 20, time.Now().Add(time.Hour)))

	_, err := e.ProcessTrade(ctx, seller, "iron_ingot", 800, models.TradeSideSell, "game")
	require.NoError(t, err)

	// The buyer cannot pay; the order stays open for the next pass.
	e.matchLimitOrders(ctx)
	orders, err := e.store.OpenOrders("iron_ingot")
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestPlaceLimitOrderValidation(t *testing.T) {
	e, _ := newTestEngine(t)
	user := uuid.New()
	expiry := time.Now().Add(time.Hour)

	assert.Error(t, e.PlaceLimitOrder(user, "unobtanium", models.TradeSideBuy, 8, 10, expiry))
	assert.Error(t, e.PlaceLimitOrder(user, "iron_ingot", models.TradeSideBuy, 0, 10, expiry))
	assert.Error(t, e.PlaceLimitOrder(user, "iron_ingot", models.TradeSideBuy, 8, 0, expiry))
}

func TestGetDebtAndMaxLoanPassthrough(t *testing.T) {
	e, _ := newTestEngine(t)
	user := uuid.New()

	assert.Zero(t, e.GetDebt(user))
	assert.Zero(t, e.GetMaxLoan(user))

	require.NoError(t, e.store.SetHolding(user, "iron_ingot", 100))
	assert.Positive(t, e.GetMaxLoan(user))
}
