package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "fintrack/internal/errors"
	"fintrack/internal/model"
	"fintrack/internal/service"
)

type recordingService struct {
	service.TransactionService
	created []service.TransactionInput
	fail    error
}

func (r *recordingService) Create(_ context.Context, userID uuid.UUID, in service.TransactionInput) (*model.Transaction, error) {
	if r.fail != nil {
		return nil, r.fail
	}
	if !in.Category.Valid() {
		return nil, apperrors.ErrInvalidCategory
	}
	r.created = append(r.created, in)
	return &model.Transaction{ID: uuid.New(), UserID: userID, Amount: in.Amount, Category: in.Category}, nil
}

var _ service.TransactionService = (*recordingService)(nil)

func TestDecode(t *testing.T) {
	items, err := decode(strings.NewReader(`[
		{"amount": 12.5, "category": "expense", "description": "lunch", "date": "2024-01-02"},
		{"amount": "1000", "category": "Income"}
	]`))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "12.5", fmt.Sprint(items[0].Amount))
	assert.Equal(t, "1000", fmt.Sprint(items[1].Amount))

	_, err = decode(strings.NewReader(`{"not":"an array"}`))
	assert.Error(t, err)
}

func TestSeedTransactions(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	items, err := decode(strings.NewReader(`[
		{"amount": 12.5, "category": "expense", "description": "lunch", "date": "2024-01-02"},
		{"amount": "1000", "category": "Income", "date": "2024-01-03T10:00:00Z"},
		{"amount": "abc", "category": "expense"},
		{"amount": 3, "category": "gift"},
		{"amount": 3, "category": "expense", "date": "yesterday"}
	]`))
	require.NoError(t, err)

	svc := &recordingService{}
	created, skipped, err := seedTransactions(context.Background(), svc, uuid.New(), items, logger)
	require.NoError(t, err)
	assert.Equal(t, 2, created)
	assert.Equal(t, 3, skipped)

	require.Len(t, svc.created, 2)
	assert.True(t, svc.created[0].Amount.Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, "lunch", *svc.created[0].Description)
	assert.Equal(t, model.CategoryIncome, svc.created[1].Category)
	assert.Equal(t, 3, svc.created[1].Date.Day())
}

func TestSeedTransactions_StopsOnStorageFailure(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	items := []SeedTransactionData{{Amount: "1", Category: "expense"}}

	svc := &recordingService{fail: errors.New("connection refused")}
	_, _, err := seedTransactions(context.Background(), svc, uuid.New(), items, logger)
	assert.ErrorContains(t, err, "connection refused")
}
