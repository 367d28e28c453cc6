package models

import "gorm.io/gorm"

// Granularities for the Instant time series.
const (
	GranularityDay     = "day"
	GranularityMonth   = "month"
	GranularityHistory = "history"
)

// Instant is one immutable price/volume snapshot of an item. Rows are
// append-only and purged beyond the retention horizon.
type Instant struct {
	gorm.Model
	ItemIdentifier string `gorm:"index:idx_instant_item_gran"`
	Granularity    string `gorm:"index:idx_instant_item_gran"`
	Timestamp      int64  `gorm:"not null"`
	Price          float64
	Volume         float64
}
