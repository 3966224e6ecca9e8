package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/libops/library-api/internal/models"
)

func TestTransactionRepositoryAppend(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewTransactionRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO transactions")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	tx := &models.Transaction{
		BookID:    "book-1",
		BookTitle: "SICP",
		UserID:    "user-1",
		UserName:  "Ada Lovelace",
		Type:      models.TxIssueRequest,
	}
	require.NoError(t, repo.Append(context.Background(), tx))
	require.NotEmpty(t, tx.ID)
	require.False(t, tx.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewTransactionRepository(db)
	rows := sqlmock.NewRows([]string{"id", "book_id", "book_title", "user_id", "user_name", "type", "due_date", "note", "fine_amount", "created_at"}).
		AddRow("tx-1", "book-1", "SICP", "user-1", "Ada Lovelace", "renewal", time.Now(), nil, nil, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, book_id, book_title")).
		WithArgs("book-1", "renewal").
		WillReturnRows(rows)

	list, err := repo.List(context.Background(), models.TransactionFilter{
		BookID: "book-1",
		Types:  []models.TransactionType{models.TxRenewal},
	})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, models.TxRenewal, list[0].Type)
	require.NoError(t, mock.ExpectationsWereMet())
}
