package export

import (
	"fmt"
	"io"
	"strings"

	apperrors "fintrack/internal/errors"
	"fintrack/internal/model"
)

// Format is an export file format.
type Format string

const (
	FormatCSV Format = "csv"
	FormatPDF Format = "pdf"
)

// ParseFormat validates a requested format name. Empty selects CSV.
func ParseFormat(v string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(v))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatPDF:
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("%w: %q", apperrors.ErrUnsupportedFormat, v)
	}
}

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	if f == FormatPDF {
		return "application/pdf"
	}
	return "text/csv; charset=utf-8"
}

// Filename returns the attachment filename for f.
func (f Format) Filename() string {
	return "transactions." + string(f)
}

// Statement is everything needed to render an export.
type Statement struct {
	Owner        string
	Transactions []model.Transaction
	Summary      *model.Summary
}

// Write renders st in format f to w.
func Write(w io.Writer, f Format, st Statement) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, st.Transactions)
	case FormatPDF:
		return WritePDF(w, st)
	default:
		return fmt.Errorf("%w: %q", apperrors.ErrUnsupportedFormat, f)
	}
}
