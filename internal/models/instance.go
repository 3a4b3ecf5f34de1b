package models

import "time"

// Instance is a leased virtual machine owned by one user. VMID is assigned
// at admission time and never reused, even after the VM is deleted.
type Instance struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	UserID      uint   `gorm:"not null;index:idx_instances_user_id"`
	Name        string `gorm:"type:varchar(255);not null"`
	VMID        *int   `gorm:"column:vmid;uniqueIndex:idx_instances_vmid"`
	IPAddress   *string
	VCPU        int    `gorm:"not null"`
	RAMMB       int    `gorm:"not null"`
	DiskGB      int    `gorm:"not null"`
	OSTemplate  string `gorm:"type:varchar(255);not null"`
	Status      string `gorm:"type:varchar(50);not null;default:'pending';index:idx_instances_status"`
	Node        string `gorm:"type:varchar(255);not null"`
	HourlyPrice float64
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}
