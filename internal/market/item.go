package market

import (
	"sync"

	"commodity-market-go/internal/models"
)

// shortTermWindow is the number of minute-granularity samples kept for the
// rolling 1-hour market change.
const shortTermWindow = 60

// Item is the in-memory pricing state of one catalog entry. All mutation
// goes through its mutex: the noise job and foreground trades touch the
// same fields.
type Item struct {
	mu sync.Mutex

	identifier   string
	price        float64
	initialPrice float64
	lifetimeLow  float64
	lifetimeHigh float64
	stock        float64
	taxRate      float64

	hourHigh float64
	hourLow  float64
	volume   float64

	// operations counts trades since the last short-term pass; decayed each
	// minute so it reflects recent activity only.
	operations int

	shortTerm []float64
}

func newItem(row models.Item) *Item {
	return &Item{
		identifier:   row.Identifier,
		price:        row.Price,
		initialPrice: row.InitialPrice,
		lifetimeLow:  row.LifetimeLow,
		lifetimeHigh: row.LifetimeHigh,
		stock:        row.Stock,
		taxRate:      row.TaxRate,
		hourHigh:     row.Price,
		hourLow:      row.Price,
	}
}

// Identifier returns the unique item key.
func (i *Item) Identifier() string { return i.identifier }

// Price returns the current traded price.
func (i *Item) Price() float64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.price
}

// TaxRate returns the item's sell tax rate.
func (i *Item) TaxRate() float64 { return i.taxRate }

// Stock returns the currently available stock.
func (i *Item) Stock() float64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.stock
}

// Volume returns the volume traded since the last counter reset.
func (i *Item) Volume() float64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.volume
}

// HourLimits returns the per-hour low and high.
func (i *Item) HourLimits() (low, high float64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.hourLow, i.hourHigh
}

// setPrice records a new price and pushes the hour and lifetime bounds.
// Callers hold i.mu.
func (i *Item) setPrice(price float64) {
	i.price = price
	if price > i.hourHigh {
		i.hourHigh = price
	}
	if price < i.hourLow {
		i.hourLow = price
	}
	if price > i.lifetimeHigh {
		i.lifetimeHigh = price
	}
	if price < i.lifetimeLow {
		i.lifetimeLow = price
	}
}

// AddValueToShortTermStorage appends the current price to the short-term
// window, evicting the oldest sample past one hour of minutes.
func (i *Item) AddValueToShortTermStorage() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.shortTerm = append(i.shortTerm, i.price)
	if len(i.shortTerm) > shortTermWindow {
		i.shortTerm = i.shortTerm[1:]
	}
}

// Change returns the fractional price change across the short-term window.
func (i *Item) Change() float64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	if len(i.shortTerm) == 0 || i.shortTerm[0] == 0 {
		return 0
	}
	return (i.price - i.shortTerm[0]) / i.shortTerm[0]
}

// RestartHourLimits resets the per-hour bounds to the current price.
// Running it twice in a row is the same as running it once.
func (i *Item) RestartHourLimits() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.hourHigh = i.price
	i.hourLow = i.price
}

// RestartVolume resets the rolling volume counter.
func (i *Item) RestartVolume() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.volume = 0
}

// LowerOperations decays the per-item trade counter.
func (i *Item) LowerOperations() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.operations > 0 {
		i.operations--
	}
}

// Snapshot copies the persistable fields into a store row.
func (i *Item) Snapshot() models.Item {
	i.mu.Lock()
	defer i.mu.Unlock()
	return models.Item{
		Identifier:   i.identifier,
		Price:        i.price,
		InitialPrice: i.initialPrice,
		LifetimeLow:  i.lifetimeLow,
		LifetimeHigh: i.lifetimeHigh,
		Stock:        i.stock,
		TaxRate:      i.taxRate,
	}
}
