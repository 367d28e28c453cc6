package models

import "gorm.io/gorm"

// DebtEntry holds one user's outstanding debt and lifetime interest paid.
// Debt is >= 0 and the row is kept (at zero) once created; InterestPaid
// never decreases.
type DebtEntry struct {
	gorm.Model
	UserID       string  `gorm:"uniqueIndex"`
	Debt         float64 `gorm:"not null"`
	InterestPaid float64 `gorm:"not null"`
}
