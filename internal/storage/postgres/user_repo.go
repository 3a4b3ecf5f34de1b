package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/vmforge/vmforge/internal/models"
	"gorm.io/gorm"
)

var ErrInsufficientBalance = errors.New("insufficient balance")

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) WithTx(tx *gorm.DB) *UserRepository {
	return &UserRepository{db: tx}
}

func (r *UserRepository) Get(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user not found: %w", err)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

// Debit subtracts amount from the user's balance under a row lock. Returns
// ErrInsufficientBalance without modifying the row when funds are short.
// Run inside the admission transaction so a later step failing rolls the
// deduction back.
func (r *UserRepository) Debit(ctx context.Context, id uint, amount float64) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := lockForUpdate(tx, false).First(&user, "id = ?", id).Error; err != nil {
			return err
		}

		if user.Balance < amount {
			return ErrInsufficientBalance
		}

		return tx.Model(&models.User{}).
			Where("id = ?", id).
			Update("balance", gorm.Expr("balance - ?", amount)).Error
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientBalance) {
			return err
		}
		return fmt.Errorf("debit user: %w", err)
	}
	return nil
}

// Credit adds amount to the user's balance.
func (r *UserRepository) Credit(ctx context.Context, id uint, amount float64) error {
	err := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Update("balance", gorm.Expr("balance + ?", amount)).Error
	if err != nil {
		return fmt.Errorf("credit user: %w", err)
	}
	return nil
}
