package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"fintrack/internal/model"
)

// ListFilter narrows a transaction listing. From is inclusive, To is exclusive.
type ListFilter struct {
	Offset   int
	Limit    int
	Category model.Category
	From     *time.Time
	To       *time.Time
}

// TransactionRepository defines transaction persistence operations.
// Every read and write is scoped to the owning user.
type TransactionRepository interface {
	Create(ctx context.Context, tx *model.Transaction) error
	FindByIDForUser(ctx context.Context, id, userID uuid.UUID) (*model.Transaction, error)
	ListByUser(ctx context.Context, userID uuid.UUID, filter ListFilter) ([]model.Transaction, error)
	Update(ctx context.Context, tx *model.Transaction) error
	DeleteForUser(ctx context.Context, id, userID uuid.UUID) (*model.Transaction, error)
	Summarize(ctx context.Context, userID uuid.UUID, from, to *time.Time) (*model.Summary, error)
}

type transactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository creates a new transaction repository.
func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

// Create inserts a new transaction.
func (r *transactionRepository) Create(ctx context.Context, tx *model.Transaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

// FindByIDForUser finds a transaction by ID owned by userID.
func (r *transactionRepository) FindByIDForUser(ctx context.Context, id, userID uuid.UUID) (*model.Transaction, error) {
	var tx model.Transaction
	if err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&tx).Error; err != nil {
		return nil, err
	}
	return &tx, nil
}

// ListByUser lists a user's transactions, newest first.
func (r *transactionRepository) ListByUser(ctx context.Context, userID uuid.UUID, filter ListFilter) ([]model.Transaction, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if filter.Category != "" {
		q = q.Where("category = ?", filter.Category)
	}
	q = withDateRange(q, filter.From, filter.To)
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var txs []model.Transaction
	if err := q.Order("date DESC").Order("created_at DESC").Find(&txs).Error; err != nil {
		return nil, err
	}
	return txs, nil
}

// Update persists the mutable fields of a transaction, guarded by ownership.
func (r *transactionRepository) Update(ctx context.Context, tx *model.Transaction) error {
	return r.db.WithContext(ctx).Model(&model.Transaction{}).
		Where("id = ? AND user_id = ?", tx.ID, tx.UserID).
		Updates(map[string]interface{}{
			"amount":      tx.Amount,
			"category":    tx.Category,
			"description": tx.Description,
			"date":        tx.Date,
		}).Error
}

// DeleteForUser removes a transaction owned by userID and returns the removed row.
func (r *transactionRepository) DeleteForUser(ctx context.Context, id, userID uuid.UUID) (*model.Transaction, error) {
	var tx model.Transaction
	err := r.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		if err := db.Where("id = ? AND user_id = ?", id, userID).First(&tx).Error; err != nil {
			return err
		}
		return db.Delete(&tx).Error
	})
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

type summaryRow struct {
	TotalTransactions int64
	TotalIncome       decimal.Decimal
	TotalExpense      decimal.Decimal
}

// Summarize aggregates count and per-category sums in a single query.
func (r *transactionRepository) Summarize(ctx context.Context, userID uuid.UUID, from, to *time.Time) (*model.Summary, error) {
	q := r.db.WithContext(ctx).Model(&model.Transaction{}).
		Select(
			"COUNT(id) AS total_transactions, "+
				"COALESCE(SUM(CASE WHEN category = ? THEN amount ELSE 0 END), 0) AS total_income, "+
				"COALESCE(SUM(CASE WHEN category = ? THEN amount ELSE 0 END), 0) AS total_expense",
			model.CategoryIncome, model.CategoryExpense,
		).
		Where("user_id = ?", userID)
	q = withDateRange(q, from, to)

	var row summaryRow
	if err := q.Scan(&row).Error; err != nil {
		return nil, err
	}
	return &model.Summary{
		TotalTransactions: row.TotalTransactions,
		TotalIncome:       row.TotalIncome,
		TotalExpense:      row.TotalExpense,
		Balance:           row.TotalIncome.Sub(row.TotalExpense),
	}, nil
}

func withDateRange(q *gorm.DB, from, to *time.Time) *gorm.DB {
	if from != nil {
		q = q.Where("date >= ?", *from)
	}
	if to != nil {
		q = q.Where("date < ?", *to)
	}
	return q
}
