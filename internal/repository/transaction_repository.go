package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/libops/library-api/internal/models"
)

// TransactionRepository appends and reads the circulation ledger. The table
// is append-only: no update or delete statement exists here, and none should
// be added.
type TransactionRepository struct {
	db *sqlx.DB
}

// NewTransactionRepository constructs the repository.
func NewTransactionRepository(db *sqlx.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Append inserts one ledger entry. The timestamp is server-assigned here so
// entries order consistently regardless of the caller's clock.
func (r *TransactionRepository) Append(ctx context.Context, tx *models.Transaction) error {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	tx.CreatedAt = time.Now().UTC()

	const query = `INSERT INTO transactions
	(id, book_id, book_title, user_id, user_name, type, due_date, note, fine_amount, created_at)
	VALUES (:id, :book_id, :book_title, :user_id, :user_name, :type, :due_date, :note, :fine_amount, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, tx); err != nil {
		return fmt.Errorf("append transaction: %w", err)
	}
	return nil
}

// List returns ledger entries matching the filter, newest first, bounded.
func (r *TransactionRepository) List(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(`SELECT id, book_id, book_title, user_id, user_name, type, due_date, note, fine_amount, created_at
	FROM transactions`)

	conditions := make([]string, 0, 3)
	if filter.BookID != "" {
		args = append(args, filter.BookID)
		conditions = append(conditions, fmt.Sprintf("book_id = $%d", len(args)))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if len(filter.Types) > 0 {
		placeholders := make([]string, len(filter.Types))
		for i, txType := range filter.Types {
			args = append(args, txType)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("type IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d", limit))

	var transactions []models.Transaction
	if err := r.db.SelectContext(ctx, &transactions, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return transactions, nil
}
