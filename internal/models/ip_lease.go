package models

import "time"

// IPLease is one address from the fixed pool. At most one user holds a
// lease at a time; allocation happens inside the admission transaction.
type IPLease struct {
	Address   string `gorm:"primaryKey;type:varchar(45)"`
	Gateway   string `gorm:"type:varchar(45);not null"`
	Allocated bool   `gorm:"default:false;not null;index:idx_ip_leases_allocated"`
	UserID    *uint
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}
