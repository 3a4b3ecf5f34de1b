package models

import "time"

type User struct {
	ID        uint    `gorm:"primaryKey;autoIncrement"`
	Email     string  `gorm:"type:varchar(255);not null;uniqueIndex"`
	Balance   float64 `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
