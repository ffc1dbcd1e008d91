package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"fintrack/internal/model"
)

var csvHeader = []string{"id", "date", "category", "amount", "description"}

// WriteCSV writes one row per transaction after a header row.
func WriteCSV(w io.Writer, txs []model.Transaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, tx := range txs {
		description := ""
		if tx.Description != nil {
			description = *tx.Description
		}
		record := []string{
			tx.ID.String(),
			tx.Date.UTC().Format(time.RFC3339),
			string(tx.Category),
			tx.Amount.StringFixed(2),
			description,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
