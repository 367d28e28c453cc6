package models

import "gorm.io/gorm"

// Item is the persisted state of one catalog entry. The in-memory pricing
// state lives in the market package; this row is what survives restarts.
type Item struct {
	gorm.Model
	Identifier   string  `gorm:"uniqueIndex"`
	Price        float64 `gorm:"not null"`
	InitialPrice float64 `gorm:"not null"`
	LifetimeLow  float64
	LifetimeHigh float64
	Stock        float64 `gorm:"not null"`
	TaxRate      float64
}
