package export

import (
	"fmt"
	"time"

	"github.com/libops/library-api/internal/models"
)

// Ledger is the tabular form of a slice of transaction records,
// shared by the CSV and PDF renderers.
type Ledger struct {
	Title   string
	Headers []string
	Rows    [][]string
}

var ledgerHeaders = []string{"Timestamp", "Type", "Book", "Actor", "Due Date", "Fine", "Note"}

// LedgerFromTransactions flattens transactions into ledger rows, newest first
// order is preserved from the input.
func LedgerFromTransactions(title string, transactions []models.Transaction) Ledger {
	rows := make([][]string, 0, len(transactions))
	for _, tx := range transactions {
		rows = append(rows, []string{
			tx.CreatedAt.UTC().Format(time.RFC3339),
			string(tx.Type),
			tx.BookTitle,
			tx.UserName,
			formatDate(tx.DueDate),
			formatFine(tx.FineAmount),
			deref(tx.Note),
		})
	}
	return Ledger{Title: title, Headers: ledgerHeaders, Rows: rows}
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}

func formatFine(amount *float64) string {
	if amount == nil {
		return ""
	}
	return fmt.Sprintf("%.2f", *amount)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
