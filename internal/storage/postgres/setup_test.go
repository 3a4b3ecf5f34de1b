package postgres

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vmforge/vmforge/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func SetupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&models.User{},
		&models.Instance{},
		&models.Task{},
		&models.IPLease{},
		&models.AuditLog{},
	)
	require.NoError(t, err)

	return db
}

func seedUser(t *testing.T, db *gorm.DB, id uint, balance float64) {
	t.Helper()
	require.NoError(t, db.Create(&models.User{
		ID: id, Email: fmt.Sprintf("user%d@example.com", id), Balance: balance,
	}).Error)
}

func seedLease(t *testing.T, db *gorm.DB, address string) {
	t.Helper()
	require.NoError(t, db.Create(&models.IPLease{
		Address: address, Gateway: "192.168.100.1",
	}).Error)
}
