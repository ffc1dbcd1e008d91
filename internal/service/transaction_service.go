package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "fintrack/internal/errors"
	"fintrack/internal/event"
	"fintrack/internal/export"
	"fintrack/internal/model"
	"fintrack/internal/repository"
)

const (
	// DefaultPageSize is used when a listing does not specify a limit.
	DefaultPageSize = 10
	// MaxPageSize caps a single listing page.
	MaxPageSize = 100

	exportBatchSize = 500
)

// TransactionInput carries the fields of a new transaction.
type TransactionInput struct {
	Amount      decimal.Decimal
	Category    model.Category
	Description *string
	Date        *time.Time
}

// TransactionPatch carries a partial update. Nil fields are left untouched.
type TransactionPatch struct {
	Amount      *decimal.Decimal
	Category    *model.Category
	Description *string
	Date        *time.Time
}

// TransactionService handles owner-scoped transaction operations.
type TransactionService interface {
	Create(ctx context.Context, userID uuid.UUID, in TransactionInput) (*model.Transaction, error)
	List(ctx context.Context, userID uuid.UUID, filter repository.ListFilter) ([]model.Transaction, error)
	Get(ctx context.Context, userID, id uuid.UUID) (*model.Transaction, error)
	Update(ctx context.Context, userID, id uuid.UUID, patch TransactionPatch) (*model.Transaction, error)
	Delete(ctx context.Context, userID, id uuid.UUID) (*model.Transaction, error)
	Summary(ctx context.Context, userID uuid.UUID, from, to *time.Time) (*model.Summary, error)
	Export(ctx context.Context, user *model.User, format export.Format, w io.Writer) error
}

type transactionService struct {
	repo   repository.TransactionRepository
	events event.Publisher
	logger *slog.Logger
	now    func() time.Time
}

// NewTransactionService creates a new transaction service.
func NewTransactionService(repo repository.TransactionRepository, events event.Publisher, logger *slog.Logger) TransactionService {
	if events == nil {
		events = event.NoopPublisher{}
	}
	return &transactionService{
		repo:   repo,
		events: events,
		logger: logger,
		now:    time.Now,
	}
}

// Create records a new transaction for userID. A missing date defaults to now.
func (s *transactionService) Create(ctx context.Context, userID uuid.UUID, in TransactionInput) (*model.Transaction, error) {
	if !in.Category.Valid() {
		return nil, apperrors.ErrInvalidCategory
	}
	if !in.Amount.Equal(in.Amount.Round(2)) {
		return nil, fmt.Errorf("%w: at most two decimal places", apperrors.ErrInvalidAmount)
	}

	date := s.now().UTC()
	if in.Date != nil {
		date = in.Date.UTC()
	}

	tx := &model.Transaction{
		UserID:      userID,
		Amount:      in.Amount,
		Category:    in.Category,
		Description: in.Description,
		Date:        date,
	}
	if err := s.repo.Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	s.publish(ctx, event.TypeTransactionCreated, tx)
	return tx, nil
}

// List returns a page of the caller's transactions, newest first.
func (s *transactionService) List(ctx context.Context, userID uuid.UUID, filter repository.ListFilter) ([]model.Transaction, error) {
	if filter.Offset < 0 {
		return nil, apperrors.NewValidationError("skip must not be negative")
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultPageSize
	}
	if filter.Limit > MaxPageSize {
		return nil, apperrors.NewValidationError("limit must be at most %d", MaxPageSize)
	}
	if filter.Category != "" && !filter.Category.Valid() {
		return nil, apperrors.ErrInvalidCategory
	}
	if err := checkRange(filter.From, filter.To); err != nil {
		return nil, err
	}

	txs, err := s.repo.ListByUser(ctx, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	if txs == nil {
		txs = []model.Transaction{}
	}
	return txs, nil
}

// Get returns one of the caller's transactions.
func (s *transactionService) Get(ctx context.Context, userID, id uuid.UUID) (*model.Transaction, error) {
	tx, err := s.repo.FindByIDForUser(ctx, id, userID)
	if err != nil {
		return nil, notFound(err)
	}
	return tx, nil
}

// Update applies patch to one of the caller's transactions.
func (s *transactionService) Update(ctx context.Context, userID, id uuid.UUID, patch TransactionPatch) (*model.Transaction, error) {
	tx, err := s.repo.FindByIDForUser(ctx, id, userID)
	if err != nil {
		return nil, notFound(err)
	}

	if patch.Category != nil {
		if !patch.Category.Valid() {
			return nil, apperrors.ErrInvalidCategory
		}
		tx.Category = *patch.Category
	}
	if patch.Amount != nil {
		if !patch.Amount.Equal(patch.Amount.Round(2)) {
			return nil, fmt.Errorf("%w: at most two decimal places", apperrors.ErrInvalidAmount)
		}
		tx.Amount = *patch.Amount
	}
	if patch.Description != nil {
		tx.Description = patch.Description
	}
	if patch.Date != nil {
		tx.Date = patch.Date.UTC()
	}

	if err := s.repo.Update(ctx, tx); err != nil {
		return nil, fmt.Errorf("update transaction: %w", err)
	}

	s.publish(ctx, event.TypeTransactionUpdated, tx)
	return tx, nil
}

// Delete removes one of the caller's transactions and returns it.
func (s *transactionService) Delete(ctx context.Context, userID, id uuid.UUID) (*model.Transaction, error) {
	tx, err := s.repo.DeleteForUser(ctx, id, userID)
	if err != nil {
		return nil, notFound(err)
	}

	s.publish(ctx, event.TypeTransactionDeleted, tx)
	return tx, nil
}

// Summary aggregates the caller's transactions within the optional range.
func (s *transactionService) Summary(ctx context.Context, userID uuid.UUID, from, to *time.Time) (*model.Summary, error) {
	if err := checkRange(from, to); err != nil {
		return nil, err
	}
	summary, err := s.repo.Summarize(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("summarize transactions: %w", err)
	}
	return summary, nil
}

// Export writes the caller's full ledger to w.
func (s *transactionService) Export(ctx context.Context, user *model.User, format export.Format, w io.Writer) error {
	var all []model.Transaction
	for offset := 0; ; offset += exportBatchSize {
		batch, err := s.repo.ListByUser(ctx, user.ID, repository.ListFilter{Offset: offset, Limit: exportBatchSize})
		if err != nil {
			return fmt.Errorf("load transactions for export: %w", err)
		}
		all = append(all, batch...)
		if len(batch) < exportBatchSize {
			break
		}
	}

	summary, err := s.repo.Summarize(ctx, user.ID, nil, nil)
	if err != nil {
		return fmt.Errorf("summarize transactions: %w", err)
	}

	return export.Write(w, format, export.Statement{
		Owner:        user.Username,
		Transactions: all,
		Summary:      summary,
	})
}

func (s *transactionService) publish(ctx context.Context, eventType string, tx *model.Transaction) {
	publishEvent(ctx, s.events, s.logger, eventType, tx.ID.String(), tx.UserID.String(), tx)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.ErrTransactionNotFound
	}
	return fmt.Errorf("find transaction: %w", err)
}

func checkRange(from, to *time.Time) error {
	if from != nil && to != nil && from.After(*to) {
		return apperrors.ErrInvalidDateRange
	}
	return nil
}
