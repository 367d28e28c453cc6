package models

import "gorm.io/gorm"

// LimitOrder is a standing order filled incrementally as the price crosses
// its target. Removed on completion or expiration.
type LimitOrder struct {
	gorm.Model
	UserID            string `gorm:"index"`
	ItemIdentifier    string `gorm:"index"`
	Side              string // "BUY" or "SELL"
	TargetPrice       float64
	Quantity          float64
	QuantityCompleted float64
	AccumulatedCost   float64
	ExpiresAt         int64
}
