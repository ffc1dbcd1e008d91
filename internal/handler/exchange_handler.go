package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	apperrors "fintrack/internal/errors"
	"fintrack/internal/service"
)

// ExchangeHandler serves currency conversion.
type ExchangeHandler struct {
	exchangeService service.ExchangeService
}

// NewExchangeHandler creates a new exchange handler.
func NewExchangeHandler(exchangeService service.ExchangeService) *ExchangeHandler {
	return &ExchangeHandler{exchangeService: exchangeService}
}

// Rate godoc
// @Summary Convert an amount between currencies
// @Tags exchange
// @Produce json
// @Param from query string true "Source currency" default(USD)
// @Param to query string true "Target currency" default(EUR)
// @Param amount query number false "Amount to convert" default(1)
// @Success 200 {object} service.Conversion
// @Failure 400 {object} errors.ErrorResponse
// @Failure 502 {object} errors.ErrorResponse
// @Router /transactions/exchange-rate [get]
func (h *ExchangeHandler) Rate(c echo.Context) error {
	amount := decimal.NewFromInt(1)
	if raw := c.QueryParam("amount"); raw != "" {
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return respondError(apperrors.NewValidationError("amount must be a number"))
		}
		amount = v
	}

	conv, err := h.exchangeService.Convert(c.Request().Context(), c.QueryParam("from"), c.QueryParam("to"), amount)
	if err != nil {
		return respondError(err)
	}
	return c.JSON(http.StatusOK, conv)
}
