package models

import (
	"time"

	"gorm.io/datatypes"
)

// Task is one queued hypervisor operation. Rows are claimed by the worker
// with a locking read, so status transitions never race between the API
// process and the worker process.
type Task struct {
	ID         uint           `gorm:"primaryKey;autoIncrement"`
	Action     string         `gorm:"type:varchar(50);not null"`
	Payload    datatypes.JSON `gorm:"type:jsonb"`
	Status     string         `gorm:"type:varchar(50);not null;default:'pending';index:idx_tasks_status"`
	Attempts   int            `gorm:"default:0;not null"`
	MaxRetries int            `gorm:"default:3"`
	Result     datatypes.JSON `gorm:"type:jsonb"`
	Error      string         `gorm:"type:text"`
	CreatedAt  time.Time      `gorm:"autoCreateTime"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime"`
	StartedAt  *time.Time
	FinishedAt *time.Time
}
