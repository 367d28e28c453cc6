package ledger

import (
	"testing"
	"time"

	"commodity-market-go/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Item{},
		&models.Instant{},
		&models.PortfolioEntry{},
		&models.WorthSnapshot{},
		&models.DebtEntry{},
		&models.Trade{},
		&models.LimitOrder{},
		&models.CPISnapshot{},
		&models.DayFlow{},
	))
	return NewStore(db)
}

func TestDebtLifecycle(t *testing.T) {
	store := newTestStore(t)
	user := uuid.New()

	// A user without a ledger row owes nothing.
	debt, err := store.Debt(user)
	require.NoError(t, err)
	assert.Zero(t, debt)

	// First loan creates the row.
	require.NoError(t, store.IncreaseDebt(user, 100))
	debt, err = store.Debt(user)
	require.NoError(t, err)
	assert.InDelta(t, 100, debt, 1e-9)

	require.NoError(t, store.DecreaseDebt(user, 40))
	debt, err = store.Debt(user)
	require.NoError(t, err)
	assert.InDelta(t, 60, debt, 1e-9)

	// Overpaying clamps at zero, never negative.
	require.NoError(t, store.DecreaseDebt(user, 500))
	debt, err = store.Debt(user)
	require.NoError(t, err)
	assert.Zero(t, debt)
}

func TestInterestPaidOnlyGrows(t *testing.T) {
	store := newTestStore(t)
	user := uuid.New()
	require.NoError(t, store.IncreaseDebt(user, 50))

	require.NoError(t, store.AddInterestPaid(user, 2.5))
	require.NoError(t, store.AddInterestPaid(user, 1.5))

	paid, err := store.InterestPaid(user)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, paid, 1e-9)
}

func TestAllDebtorsSkipsRepaid(t *testing.T) {
	store := newTestStore(t)
	debtor := uuid.New()
	repaid := uuid.New()

	require.NoError(t, store.IncreaseDebt(debtor, 80))
	require.NoError(t, store.IncreaseDebt(repaid, 30))
	require.NoError(t, store.DecreaseDebt(repaid, 30))

	debtors, err := store.AllDebtors()
	require.NoError(t, err)
	require.Len(t, debtors, 1)
	assert.InDelta(t, 80, debtors[debtor], 1e-9)
}

func TestHoldingUpsertAndRemoval(t *testing.T) {
	store := newTestStore(t)
	user := uuid.New()

	require.NoError(t, store.SetHolding(user, "iron_ingot", 10))
	require.NoError(t, store.SetHolding(user, "iron_ingot", 25))
	require.NoError(t, store.SetHolding(user, "coal", 5))

	holdings, err := store.Portfolio(user)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"iron_ingot": 25, "coal": 5}, holdings)

	// Zero quantity removes the entry.
	require.NoError(t, store.SetHolding(user, "coal", 0))
	holdings, err = store.Portfolio(user)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"iron_ingot": 25}, holdings)
}

func TestPortfolioUsers(t *testing.T) {
	store := newTestStore(t)
	alice := uuid.New()
	bob := uuid.New()

	require.NoError(t, store.SetHolding(alice, "iron_ingot", 1))
	require.NoError(t, store.SetHolding(alice, "coal", 2))
	require.NoError(t, store.SetHolding(bob, "coal", 3))

	users, err := store.PortfolioUsers()
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{alice, bob}, users)
}

func TestInstantsNewestFirst(t *testing.T) {
	store := newTestStore(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.AppendInstant(&models.Instant{
			ItemIdentifier: "iron_ingot",
			Granularity:    models.GranularityDay,
			Timestamp:      int64(1000 + i),
			Price:          10 + float64(i),
		}))
	}

	instants, err := store.Instants("iron_ingot", models.GranularityDay, 2)
	require.NoError(t, err)
	require.Len(t, instants, 2)
	assert.Equal(t, int64(1002), instants[0].Timestamp)
	assert.Equal(t, int64(1001), instants[1].Timestamp)
}

func TestPurgeHistory(t *testing.T) {
	store := newTestStore(t)
	cutoff := time.Now()

	require.NoError(t, store.AppendInstant(&models.Instant{
		ItemIdentifier: "iron_ingot",
		Granularity:    models.GranularityHistory,
		Timestamp:      cutoff.Add(-48 * time.Hour).Unix(),
	}))
	require.NoError(t, store.AppendInstant(&models.Instant{
		ItemIdentifier: "iron_ingot",
		Granularity:    models.GranularityHistory,
		Timestamp:      cutoff.Add(time.Hour).Unix(),
	}))

	require.NoError(t, store.PurgeHistory(cutoff))

	instants, err := store.Instants("iron_ingot", models.GranularityHistory, 10)
	require.NoError(t, err)
	require.Len(t, instants, 1)
}

func TestLimitOrderLifecycle(t *testing.T) {
	store := newTestStore(t)
	user := uuid.New()

	order := models.LimitOrder{
		UserID:         user.String(),
		ItemIdentifier: "iron_ingot",
		Side:           models.TradeSideBuy,
		TargetPrice:    8.0,
		Quantity:       20,
		ExpiresAt:      time.Now().Add(-time.Hour).Unix(),
	}
	require.NoError(t, store.SaveOrder(&order))

	orders, err := store.OpenOrders("iron_ingot")
	require.NoError(t, err)
	require.Len(t, orders, 1)

	require.NoError(t, store.PurgeExpiredOrders(time.Now()))
	orders, err = store.OpenOrders("iron_ingot")
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestDayFlowAccumulates(t *testing.T) {
	store := newTestStore(t)
	day := DayNumber(time.Now())

	require.NoError(t, store.AddDayFlow(day, 100, 6))
	require.NoError(t, store.AddDayFlow(day, 50, 3))

	var row models.DayFlow
	require.NoError(t, store.db.Where("day = ?", day).First(&row).Error)
	assert.InDelta(t, 150, row.Flow, 1e-9)
	assert.InDelta(t, 9, row.Taxes, 1e-9)
}

func TestWorthSnapshotUpsert(t *testing.T) {
	store := newTestStore(t)
	user := uuid.New()
	day := DayNumber(time.Now())

	require.NoError(t, store.SaveWorth(user, day, 120))
	require.NoError(t, store.SaveWorth(user, day, 135))

	var count int64
	require.NoError(t, store.db.Model(&models.WorthSnapshot{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	var row models.WorthSnapshot
	require.NoError(t, store.db.First(&row).Error)
	assert.InDelta(t, 135, row.Worth, 1e-9)
}
