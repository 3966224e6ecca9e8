package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/libops/library-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func bookRows(book models.Book) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "title", "author", "isbn", "category", "published_date", "description", "cover_url", "status",
		"issued_to", "issued_to_name", "issued_at", "due_date", "returned_at",
		"donor_id", "donor_name", "donated_at", "created_at", "updated_at",
	}).AddRow(
		book.ID, book.Title, book.Author, book.ISBN, book.Category, book.PublishedDate, book.Description, book.CoverURL, book.Status,
		book.IssuedTo, book.IssuedToName, book.IssuedAt, book.DueDate, book.ReturnedAt,
		book.DonorID, book.DonorName, book.DonatedAt, book.CreatedAt, book.UpdatedAt,
	)
}

func TestBookRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewBookRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO books")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	book := &models.Book{
		Title:  "The Go Programming Language",
		Author: "Donovan & Kernighan",
		ISBN:   "978-0134190440",
	}
	require.NoError(t, repo.Create(context.Background(), book))
	require.NotEmpty(t, book.ID)
	require.Equal(t, models.StatusAvailable, book.Status)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, title, author")).
		WithArgs(book.ID).
		WillReturnRows(bookRows(*book))

	found, err := repo.GetByID(context.Background(), book.ID)
	require.NoError(t, err)
	require.Equal(t, book.ID, found.ID)
	require.Nil(t, found.IssueDetails)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookRepositoryGetHydratesIssueDetails(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewBookRepository(db)
	holder := "user-1"
	holderName := "Ada Lovelace"
	issuedAt := time.Now().UTC().Add(-24 * time.Hour)
	due := issuedAt.AddDate(0, 0, 14)

	book := models.Book{
		ID:           "book-1",
		Title:        "SICP",
		Status:       models.StatusIssued,
		IssuedTo:     &holder,
		IssuedToName: &holderName,
		IssuedAt:     &issuedAt,
		DueDate:      &due,
	}
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, title, author")).
		WithArgs(book.ID).
		WillReturnRows(bookRows(book))

	found, err := repo.GetByID(context.Background(), book.ID)
	require.NoError(t, err)
	require.NotNil(t, found.IssueDetails)
	require.Equal(t, "user-1", found.IssueDetails.UserID)
	require.Equal(t, "Ada Lovelace", found.IssueDetails.UserName)
	require.NotNil(t, found.IssueDetails.DueDate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookRepositoryListStatusMembership(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewBookRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, title, author")).
		WithArgs("available", "donated_approved").
		WillReturnRows(bookRows(models.Book{ID: "book-1", Status: models.StatusAvailable}))

	books, err := repo.List(context.Background(), models.BookFilter{
		Status: []models.BookStatus{models.StatusAvailable, models.StatusDonatedApproved},
	})
	require.NoError(t, err)
	require.Len(t, books, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookRepositoryApplyTransitionGuardsStatus(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewBookRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE books SET")).WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.ApplyTransition(context.Background(), TransitionParams{
		ID:         "book-1",
		From:       []models.BookStatus{models.StatusReturnRequested},
		To:         models.StatusAvailable,
		ClearIssue: true,
	})
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE books SET")).WillReturnResult(sqlmock.NewResult(0, 0))
	err = repo.ApplyTransition(context.Background(), TransitionParams{
		ID:         "book-1",
		From:       []models.BookStatus{models.StatusReturnRequested},
		To:         models.StatusAvailable,
		ClearIssue: true,
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookRepositoryDeleteMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewBookRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM books")).
		WithArgs("book-404").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.ErrorIs(t, repo.Delete(context.Background(), "book-404"), sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
