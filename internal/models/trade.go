package models

import "gorm.io/gorm"

// Trade sides.
const (
	TradeSideBuy  = "BUY"
	TradeSideSell = "SELL"
)

// Trade represents a completed trade record in the database. The log is
// append-only; rows older than the retention horizon are purged.
type Trade struct {
	gorm.Model
	UserID         string `json:"user_id" gorm:"index"`
	ItemIdentifier string `json:"item"`
	Side           string `json:"side"` // "BUY" or "SELL"
	Quantity       float64 `json:"quantity"`
	Value          float64 `json:"value"`
	Timestamp      int64   `json:"timestamp"`
	Origin         string  `json:"origin"` // channel the trade came from
}
