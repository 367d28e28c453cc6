package market

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"commodity-market-go/internal/config"
	"commodity-market-go/internal/models"
	"go.uber.org/zap"
)

// Execution is the result of one trade against the price engine.
type Execution struct {
	UnitPrice float64 // realized average price per unit
	Gross     float64 // UnitPrice * quantity
	Tax       float64
	Net       float64 // what the seller receives / the buyer pays
	NewPrice  float64 // item price after the trade
}

// Manager owns the in-memory item catalog and applies trades and noise to
// it. Per-item mutation is serialized by each item's own mutex; cross-item
// operations run in parallel.
type Manager struct {
	logger *zap.Logger

	items map[string]*Item
	order []string

	noiseEnabled bool
	noiseBound   float64
	priceFloor   float64

	rngMu sync.Mutex
	rng   *rand.Rand

	changeMu sync.Mutex
	change1h float64
}

// NewManager builds the runtime catalog from persisted item rows.
func NewManager(cfg *config.Market, rows []models.Item, logger *zap.Logger) *Manager {
	m := &Manager{
		logger:       logger,
		items:        make(map[string]*Item, len(rows)),
		noiseEnabled: cfg.NoiseEnabled,
		noiseBound:   cfg.NoiseBound,
		priceFloor:   cfg.PriceFloor,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, row := range rows {
		m.items[row.Identifier] = newItem(row)
		m.order = append(m.order, row.Identifier)
	}
	sort.Strings(m.order)
	return m
}

// Item looks up one catalog entry.
func (m *Manager) Item(identifier string) (*Item, bool) {
	item, ok := m.items[identifier]
	return item, ok
}

// AllItems returns every item in stable identifier order.
func (m *Manager) AllItems() []*Item {
	items := make([]*Item, 0, len(m.order))
	for _, id := range m.order {
		items = append(items, m.items[id])
	}
	return items
}

// ApplyTrade executes a market trade against an item. Selling adds to stock
// and depresses the price; buying takes from stock and raises it. The
// realized unit price is the average of the pre- and post-trade price, so
// larger trades always move it further.
func (m *Manager) ApplyTrade(identifier string, quantity float64, side string) (Execution, error) {
	item, ok := m.items[identifier]
	if !ok {
		return Execution{}, fmt.Errorf("unknown item %q", identifier)
	}
	if quantity <= 0 {
		return Execution{}, fmt.Errorf("trade quantity must be > 0, got %f", quantity)
	}

	item.mu.Lock()
	defer item.mu.Unlock()

	price := item.price
	stock := item.stock

	var newPrice float64
	switch side {
	case models.TradeSideSell:
		newPrice = price * stock / (stock + quantity)
		if newPrice < m.priceFloor {
			newPrice = m.priceFloor
		}
		item.stock = stock + quantity
	case models.TradeSideBuy:
		if quantity >= stock {
			return Execution{}, fmt.Errorf("insufficient stock for %q: have %f, want %f", identifier, stock, quantity)
		}
		newPrice = price * stock / (stock - quantity)
		item.stock = stock - quantity
	default:
		return Execution{}, fmt.Errorf("unknown trade side %q", side)
	}

	unit := (price + newPrice) / 2
	gross := unit * quantity
	tax := gross * item.taxRate

	exec := Execution{
		UnitPrice: unit,
		Gross:     gross,
		Tax:       tax,
		NewPrice:  newPrice,
	}
	if side == models.TradeSideSell {
		exec.Net = gross - tax
	} else {
		exec.Net = gross + tax
	}

	item.setPrice(newPrice)
	item.volume += quantity
	item.operations++

	m.logger.Debug("Executed trade",
		zap.String("item", identifier),
		zap.String("side", side),
		zap.Float64("quantity", quantity),
		zap.Float64("unit_price", unit),
		zap.Float64("new_price", newPrice),
	)

	return exec, nil
}

// SellValue quotes the net proceeds of selling a quantity without mutating
// the item. It uses the same impact curve as ApplyTrade, so valuations are
// as pessimistic as an actual full liquidation.
func (m *Manager) SellValue(identifier string, quantity float64) float64 {
	item, ok := m.items[identifier]
	if !ok || quantity <= 0 {
		return 0
	}

	item.mu.Lock()
	defer item.mu.Unlock()

	price := item.price
	stock := item.stock

	newPrice := price * stock / (stock + quantity)
	if newPrice < m.priceFloor {
		newPrice = m.priceFloor
	}
	unit := (price + newPrice) / 2
	gross := unit * quantity
	return gross - gross*item.taxRate
}

// ApplyNoise nudges an item's price by a random percentage within the
// configured bound. No-op when noise is disabled.
func (m *Manager) ApplyNoise(item *Item) {
	if !m.noiseEnabled {
		return
	}

	m.rngMu.Lock()
	factor := 1 + (m.rng.Float64()*2-1)*m.noiseBound
	m.rngMu.Unlock()

	item.mu.Lock()
	defer item.mu.Unlock()

	newPrice := item.price * factor
	if newPrice < m.priceFloor {
		newPrice = m.priceFloor
	}
	item.setPrice(newPrice)
}

// NoisePass applies noise to every item.
func (m *Manager) NoisePass() {
	if !m.noiseEnabled {
		return
	}
	for _, item := range m.AllItems() {
		m.ApplyNoise(item)
	}
}

// ShortTermPass appends the per-minute sample for every item, decays the
// operation counters and recomputes the rolling 1h market change.
func (m *Manager) ShortTermPass() {
	items := m.AllItems()
	if len(items) == 0 {
		return
	}

	var allChanges float64
	for _, item := range items {
		item.LowerOperations()
		item.AddValueToShortTermStorage()
		allChanges += item.Change()
	}

	m.changeMu.Lock()
	m.change1h = allChanges / float64(len(items))
	m.changeMu.Unlock()
}

// MarketChange1h returns the rolling 1-hour average market change.
func (m *Manager) MarketChange1h() float64 {
	m.changeMu.Lock()
	defer m.changeMu.Unlock()
	return m.change1h
}

// ConsumerPriceIndex is the mean of each item's price relative to its
// initial price, scaled to 100 at parity.
func (m *Manager) ConsumerPriceIndex() float64 {
	items := m.AllItems()
	if len(items) == 0 {
		return 100
	}
	var sum float64
	for _, item := range items {
		item.mu.Lock()
		if item.initialPrice > 0 {
			sum += item.price / item.initialPrice
		}
		item.mu.Unlock()
	}
	return sum / float64(len(items)) * 100
}

// HourlyResetPass resets per-hour bounds for every item.
func (m *Manager) HourlyResetPass() {
	for _, item := range m.AllItems() {
		item.RestartHourLimits()
	}
}
