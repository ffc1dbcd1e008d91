package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"fintrack/internal/auth"
	apperrors "fintrack/internal/errors"
	"fintrack/internal/export"
	"fintrack/internal/model"
	"fintrack/internal/repository"
	"fintrack/internal/service"
)

const dateLayout = "2006-01-02"

// TransactionHandler handles the owner-scoped transaction endpoints.
type TransactionHandler struct {
	transactionService service.TransactionService
}

// NewTransactionHandler creates a new transaction handler.
func NewTransactionHandler(transactionService service.TransactionService) *TransactionHandler {
	return &TransactionHandler{transactionService: transactionService}
}

// CreateTransactionRequest represents a new transaction.
type CreateTransactionRequest struct {
	Amount      *decimal.Decimal `json:"amount" validate:"required" swaggertype:"number"`
	Category    string           `json:"category" validate:"required"`
	Description *string          `json:"description" validate:"omitempty,max=255"`
	Date        *time.Time       `json:"date"`
}

// UpdateTransactionRequest represents a partial update. Omitted fields are kept.
type UpdateTransactionRequest struct {
	Amount      *decimal.Decimal `json:"amount" swaggertype:"number"`
	Category    *string          `json:"category"`
	Description *string          `json:"description" validate:"omitempty,max=255"`
	Date        *time.Time       `json:"date"`
}

// Create godoc
// @Summary Create a transaction
// @Tags transactions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateTransactionRequest true "Transaction"
// @Success 200 {object} model.Transaction
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /transactions/ [post]
func (h *TransactionHandler) Create(c echo.Context) error {
	user, err := requireUser(c)
	if err != nil {
		return err
	}

	var req CreateTransactionRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	tx, err := h.transactionService.Create(c.Request().Context(), user.ID, service.TransactionInput{
		Amount:      *req.Amount,
		Category:    model.Category(req.Category),
		Description: req.Description,
		Date:        req.Date,
	})
	if err != nil {
		return respondError(err)
	}

	return c.JSON(http.StatusOK, tx)
}

// List godoc
// @Summary List transactions
// @Description Newest first. from is inclusive; to is exclusive, and a date-only to covers that whole day.
// @Tags transactions
// @Produce json
// @Security BearerAuth
// @Param skip query int false "Offset" default(0)
// @Param limit query int false "Page size (max 100)" default(10)
// @Param category query string false "expense or income"
// @Param from query string false "RFC3339 timestamp or YYYY-MM-DD"
// @Param to query string false "RFC3339 timestamp or YYYY-MM-DD"
// @Success 200 {array} model.Transaction
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /transactions/ [get]
func (h *TransactionHandler) List(c echo.Context) error {
	user, err := requireUser(c)
	if err != nil {
		return err
	}

	skip, err := intQuery(c, "skip", 0)
	if err != nil {
		return respondError(err)
	}
	limit, err := intQuery(c, "limit", service.DefaultPageSize)
	if err != nil {
		return respondError(err)
	}
	from, to, err := dateRange(c)
	if err != nil {
		return respondError(err)
	}

	txs, err := h.transactionService.List(c.Request().Context(), user.ID, repository.ListFilter{
		Offset:   skip,
		Limit:    limit,
		Category: model.Category(c.QueryParam("category")),
		From:     from,
		To:       to,
	})
	if err != nil {
		return respondError(err)
	}

	return c.JSON(http.StatusOK, txs)
}

// Get godoc
// @Summary Get a transaction
// @Tags transactions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Transaction ID"
// @Success 200 {object} model.Transaction
// @Failure 401 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /transactions/{id} [get]
func (h *TransactionHandler) Get(c echo.Context) error {
	user, err := requireUser(c)
	if err != nil {
		return err
	}
	id, err := transactionID(c)
	if err != nil {
		return err
	}

	tx, err := h.transactionService.Get(c.Request().Context(), user.ID, id)
	if err != nil {
		return respondError(err)
	}
	return c.JSON(http.StatusOK, tx)
}

// Update godoc
// @Summary Update a transaction
// @Tags transactions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Transaction ID"
// @Param request body UpdateTransactionRequest true "Fields to change"
// @Success 200 {object} model.Transaction
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /transactions/{id} [put]
func (h *TransactionHandler) Update(c echo.Context) error {
	user, err := requireUser(c)
	if err != nil {
		return err
	}
	id, err := transactionID(c)
	if err != nil {
		return err
	}

	var req UpdateTransactionRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	patch := service.TransactionPatch{
		Amount:      req.Amount,
		Description: req.Description,
		Date:        req.Date,
	}
	if req.Category != nil {
		category := model.Category(*req.Category)
		patch.Category = &category
	}

	tx, err := h.transactionService.Update(c.Request().Context(), user.ID, id, patch)
	if err != nil {
		return respondError(err)
	}
	return c.JSON(http.StatusOK, tx)
}

// Delete godoc
// @Summary Delete a transaction
// @Tags transactions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Transaction ID"
// @Success 200 {object} model.Transaction
// @Failure 401 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /transactions/{id} [delete]
func (h *TransactionHandler) Delete(c echo.Context) error {
	user, err := requireUser(c)
	if err != nil {
		return err
	}
	id, err := transactionID(c)
	if err != nil {
		return err
	}

	tx, err := h.transactionService.Delete(c.Request().Context(), user.ID, id)
	if err != nil {
		return respondError(err)
	}
	return c.JSON(http.StatusOK, tx)
}

// Summary godoc
// @Summary Aggregate totals
// @Tags transactions
// @Produce json
// @Security BearerAuth
// @Param from query string false "RFC3339 timestamp or YYYY-MM-DD"
// @Param to query string false "RFC3339 timestamp or YYYY-MM-DD"
// @Success 200 {object} model.Summary
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Router /transactions/summary [get]
func (h *TransactionHandler) Summary(c echo.Context) error {
	user, err := requireUser(c)
	if err != nil {
		return err
	}
	from, to, err := dateRange(c)
	if err != nil {
		return respondError(err)
	}

	summary, err := h.transactionService.Summary(c.Request().Context(), user.ID, from, to)
	if err != nil {
		return respondError(err)
	}
	return c.JSON(http.StatusOK, summary)
}

// Export godoc
// @Summary Download the ledger
// @Tags transactions
// @Produce text/csv
// @Produce application/pdf
// @Security BearerAuth
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Router /transactions/export [get]
func (h *TransactionHandler) Export(c echo.Context) error {
	user, err := requireUser(c)
	if err != nil {
		return err
	}
	format, err := export.ParseFormat(c.QueryParam("format"))
	if err != nil {
		return respondError(err)
	}

	var buf bytes.Buffer
	if err := h.transactionService.Export(c.Request().Context(), user, format, &buf); err != nil {
		return respondError(err)
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", format.Filename()))
	return c.Blob(http.StatusOK, format.ContentType(), buf.Bytes())
}

func requireUser(c echo.Context) (*model.User, error) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		return nil, respondError(apperrors.ErrNotAuthenticated)
	}
	return user, nil
}

// transactionID parses the path id. Malformed ids are reported as not found.
func transactionID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, respondError(apperrors.ErrTransactionNotFound)
	}
	return id, nil
}

func intQuery(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.NewValidationError("%s must be an integer", name)
	}
	return v, nil
}

func dateRange(c echo.Context) (*time.Time, *time.Time, error) {
	from, _, err := parseDate(c.QueryParam("from"), "from")
	if err != nil {
		return nil, nil, err
	}
	to, dateOnly, err := parseDate(c.QueryParam("to"), "to")
	if err != nil {
		return nil, nil, err
	}
	if to != nil && dateOnly {
		next := to.AddDate(0, 0, 1)
		to = &next
	}
	return from, to, nil
}

// parseDate accepts RFC3339 or a plain date. dateOnly reports the latter.
func parseDate(raw, name string) (t *time.Time, dateOnly bool, err error) {
	if raw == "" {
		return nil, false, nil
	}
	if v, err := time.Parse(time.RFC3339, raw); err == nil {
		v = v.UTC()
		return &v, false, nil
	}
	v, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, false, apperrors.NewValidationError("%s must be RFC3339 or YYYY-MM-DD", name)
	}
	return &v, true, nil
}
