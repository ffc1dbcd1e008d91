package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Category classifies a transaction as money in or money out.
type Category string

const (
	CategoryExpense Category = "expense"
	CategoryIncome  Category = "income"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	return c == CategoryExpense || c == CategoryIncome
}

// Transaction is a single income or expense entry owned by one user.
type Transaction struct {
	ID          uuid.UUID       `json:"id" gorm:"type:char(36);primaryKey"`
	UserID      uuid.UUID       `json:"user_id" gorm:"type:char(36);not null;index:idx_transactions_user_date,priority:1"`
	Amount      decimal.Decimal `json:"amount" gorm:"type:decimal(20,2);not null"`
	Category    Category        `json:"category" gorm:"type:varchar(16);not null;index"`
	Description *string         `json:"description" gorm:"type:text"`
	Date        time.Time       `json:"date" gorm:"not null;index:idx_transactions_user_date,priority:2"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// BeforeCreate sets UUID before creating the record.
func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// Summary aggregates a user's transactions.
type Summary struct {
	TotalTransactions int64           `json:"total_transactions"`
	TotalIncome       decimal.Decimal `json:"total_income"`
	TotalExpense      decimal.Decimal `json:"total_expense"`
	Balance           decimal.Decimal `json:"balance"`
}
