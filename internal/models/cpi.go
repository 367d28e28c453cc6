package models

import "gorm.io/gorm"

// CPISnapshot is one recorded value of the consumer price index.
type CPISnapshot struct {
	gorm.Model
	Timestamp int64 `gorm:"not null"`
	Value     float64
}

// DayFlow aggregates traded flow and collected taxes per day.
type DayFlow struct {
	gorm.Model
	Day   int `gorm:"uniqueIndex"`
	Flow  float64
	Taxes float64
}
