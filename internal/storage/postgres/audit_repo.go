package postgres

import (
	"context"
	"fmt"

	"github.com/vmforge/vmforge/internal/models"
	"gorm.io/gorm"
)

type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Write(ctx context.Context, userID uint, action, detail string) error {
	entry := models.AuditLog{UserID: userID, Action: action, Detail: detail}
	if err := r.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}
