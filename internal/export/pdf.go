package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/phpdave11/gofpdf"

	"fintrack/internal/model"
)

const maxPDFRows = 500

var pdfColumns = []struct {
	title string
	width float64
	align string
}{
	{"DATE", 28, "C"},
	{"CATEGORY", 26, "C"},
	{"DESCRIPTION", 96, "L"},
	{"AMOUNT", 32, "R"},
}

// WritePDF renders a statement with a summary block and a transaction table.
func WritePDF(w io.Writer, st Statement) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(14, 14, 14)
	pdf.AddPage()

	pdf.SetTextColor(20, 20, 20)
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "Transaction Statement")
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(80, 80, 80)
	pdf.Cell(0, 6, "Account: "+st.Owner)
	pdf.Ln(5)
	pdf.Cell(0, 6, "Generated: "+time.Now().UTC().Format("2006-01-02 15:04 MST"))
	pdf.Ln(10)

	if st.Summary != nil {
		pdf.SetDrawColor(200, 200, 200)
		pdf.SetFillColor(248, 248, 248)
		pdf.SetTextColor(20, 20, 20)
		pdf.SetFont("Helvetica", "B", 11)
		for i, label := range []string{"Transactions", "Income", "Expense", "Balance"} {
			pdf.CellFormat(45.5, 9, label, "1", boolToLn(i == 3), "C", true, 0, "")
		}
		pdf.SetFont("Helvetica", "", 11)
		values := []string{
			fmt.Sprintf("%d", st.Summary.TotalTransactions),
			st.Summary.TotalIncome.StringFixed(2),
			st.Summary.TotalExpense.StringFixed(2),
			st.Summary.Balance.StringFixed(2),
		}
		for i, v := range values {
			pdf.CellFormat(45.5, 9, v, "1", boolToLn(i == 3), "C", false, 0, "")
		}
		pdf.Ln(6)
	}

	tableHeader(pdf)
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(30, 30, 30)

	for i, tx := range st.Transactions {
		if i >= maxPDFRows {
			pdf.SetFont("Helvetica", "I", 9)
			pdf.CellFormat(0, 8, "truncated: export as csv for the full ledger", "1", 1, "C", false, 0, "")
			break
		}
		if pdf.GetY() > 270 {
			pdf.AddPage()
			tableHeader(pdf)
			pdf.SetFont("Helvetica", "", 9)
		}

		description := ""
		if tx.Description != nil {
			description = trimTo(*tx.Description, 60)
		}
		cells := []string{
			tx.Date.UTC().Format("2006-01-02"),
			strings.ToUpper(string(tx.Category)),
			description,
			signedAmount(tx),
		}
		for j, col := range pdfColumns {
			pdf.CellFormat(col.width, 8, cells[j], "1", boolToLn(j == len(pdfColumns)-1), col.align, false, 0, "")
		}
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return nil
}

func tableHeader(pdf *gofpdf.Fpdf) {
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(245, 245, 245)
	pdf.SetTextColor(20, 20, 20)
	for j, col := range pdfColumns {
		pdf.CellFormat(col.width, 8, col.title, "1", boolToLn(j == len(pdfColumns)-1), "C", true, 0, "")
	}
}

func signedAmount(tx model.Transaction) string {
	if tx.Category == model.CategoryExpense {
		return "-" + tx.Amount.Abs().StringFixed(2)
	}
	return "+" + tx.Amount.Abs().StringFixed(2)
}

func boolToLn(last bool) int {
	if last {
		return 1
	}
	return 0
}

func trimTo(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "..."
}
