package models

import "gorm.io/gorm"

// PortfolioEntry is one user's holding of one item. Quantity is always > 0;
// an entry is deleted when the holding reaches zero.
type PortfolioEntry struct {
	gorm.Model
	UserID         string  `gorm:"uniqueIndex:idx_user_item"`
	ItemIdentifier string  `gorm:"uniqueIndex:idx_user_item"`
	Quantity       float64 `gorm:"not null"`
}

// WorthSnapshot is a user's portfolio worth persisted once per day, used for
// historical charting.
type WorthSnapshot struct {
	gorm.Model
	UserID string `gorm:"uniqueIndex:idx_worth_user_day"`
	Day    int    `gorm:"uniqueIndex:idx_worth_user_day"`
	Worth  float64
}
