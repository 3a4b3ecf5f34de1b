package models

import "time"

// AuditLog records every user-initiated lifecycle request. Writes are
// best-effort and never block the request path.
type AuditLog struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	UserID    uint   `gorm:"not null;index:idx_audit_logs_user_id"`
	Action    string `gorm:"type:varchar(50);not null"`
	Detail    string `gorm:"type:text"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}
