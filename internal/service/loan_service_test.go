package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/libops/library-api/internal/lifecycle"
	"github.com/libops/library-api/internal/models"
	"github.com/libops/library-api/internal/repository"
	appErrors "github.com/libops/library-api/pkg/errors"
)

type stubBookStore struct {
	books map[string]*models.Book
}

func newStubBookStore(books ...*models.Book) *stubBookStore {
	store := &stubBookStore{books: make(map[string]*models.Book)}
	for _, book := range books {
		store.books[book.ID] = book
	}
	return store
}

func (s *stubBookStore) Create(_ context.Context, book *models.Book) error {
	if book.ID == "" {
		book.ID = fmt.Sprintf("book-%d", len(s.books)+1)
	}
	stored := *book
	s.books[book.ID] = &stored
	return nil
}

func (s *stubBookStore) GetByID(_ context.Context, id string) (*models.Book, error) {
	book, ok := s.books[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *book
	copied.HydrateNested()
	return &copied, nil
}

func (s *stubBookStore) List(_ context.Context, _ models.BookFilter) ([]models.Book, error) {
	books := make([]models.Book, 0, len(s.books))
	for _, book := range s.books {
		copied := *book
		copied.HydrateNested()
		books = append(books, copied)
	}
	return books, nil
}

func (s *stubBookStore) UpdateDetails(_ context.Context, book *models.Book) error {
	stored, ok := s.books[book.ID]
	if !ok {
		return sql.ErrNoRows
	}
	stored.Title = book.Title
	stored.Author = book.Author
	stored.ISBN = book.ISBN
	stored.Category = book.Category
	stored.PublishedDate = book.PublishedDate
	stored.Description = book.Description
	stored.CoverURL = book.CoverURL
	return nil
}

func (s *stubBookStore) ApplyTransition(_ context.Context, params repository.TransitionParams) error {
	book, ok := s.books[params.ID]
	if !ok {
		return sql.ErrNoRows
	}
	permitted := false
	for _, from := range params.From {
		if from == book.Status {
			permitted = true
		}
	}
	if !permitted {
		return sql.ErrNoRows
	}

	book.Status = params.To
	if params.SetIssue != nil {
		details := params.SetIssue
		book.IssuedTo = &details.UserID
		book.IssuedToName = &details.UserName
		issuedAt := details.IssuedAt
		book.IssuedAt = &issuedAt
		book.DueDate = details.DueDate
		book.ReturnedAt = details.ReturnedAt
	}
	if params.ClearIssue {
		book.IssuedTo, book.IssuedToName, book.IssuedAt, book.DueDate, book.ReturnedAt = nil, nil, nil, nil, nil
	}
	if params.SetDue != nil {
		due := *params.SetDue
		book.DueDate = &due
	}
	return nil
}

func (s *stubBookStore) Delete(_ context.Context, id string) error {
	if _, ok := s.books[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.books, id)
	return nil
}

type stubLedger struct {
	entries []models.Transaction
	err     error
}

func (s *stubLedger) Append(_ context.Context, tx *models.Transaction) error {
	if s.err != nil {
		return s.err
	}
	if tx.ID == "" {
		tx.ID = fmt.Sprintf("tx-%d", len(s.entries)+1)
	}
	tx.CreatedAt = time.Now().UTC()
	s.entries = append(s.entries, *tx)
	return nil
}

func (s *stubLedger) List(_ context.Context, filter models.TransactionFilter) ([]models.Transaction, error) {
	if s.err != nil {
		return nil, s.err
	}
	matched := make([]models.Transaction, 0, len(s.entries))
	for i := len(s.entries) - 1; i >= 0; i-- {
		tx := s.entries[i]
		if filter.BookID != "" && tx.BookID != filter.BookID {
			continue
		}
		if filter.UserID != "" && tx.UserID != filter.UserID {
			continue
		}
		matched = append(matched, tx)
	}
	return matched, nil
}

type stubUsers struct {
	users map[string]*models.User
}

func (s *stubUsers) FindByID(_ context.Context, id string) (*models.User, error) {
	user, ok := s.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

var (
	member = Actor{ID: "user-1", Name: "Ada Lovelace", Role: models.RoleUser}
	admin  = Actor{ID: "admin-1", Name: "Head Librarian", Role: models.RoleAdmin}

	fixedNow = time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)
)

func newLoanFixture(books ...*models.Book) (*LoanService, *stubBookStore, *stubLedger) {
	store := newStubBookStore(books...)
	ledger := &stubLedger{}
	users := &stubUsers{users: map[string]*models.User{
		"user-1": {ID: "user-1", FullName: "Ada Lovelace", Role: models.RoleUser, Active: true},
	}}
	svc := NewLoanService(store, ledger, users, lifecycle.DefaultPeriods(), zap.NewNop())
	svc.now = func() time.Time { return fixedNow }
	return svc, store, ledger
}

func availableBook() *models.Book {
	return &models.Book{ID: "book-1", Title: "SICP", Status: models.StatusAvailable}
}

func issuedBook(due time.Time) *models.Book {
	holder := "user-1"
	holderName := "Ada Lovelace"
	issuedAt := due.AddDate(0, 0, -14)
	return &models.Book{
		ID:           "book-1",
		Title:        "SICP",
		Status:       models.StatusIssued,
		IssuedTo:     &holder,
		IssuedToName: &holderName,
		IssuedAt:     &issuedAt,
		DueDate:      &due,
	}
}

func TestRequestIssue(t *testing.T) {
	svc, _, ledger := newLoanFixture(availableBook())

	book, err := svc.RequestIssue(context.Background(), "book-1", member)
	require.NoError(t, err)
	require.Equal(t, models.StatusIssueRequested, book.Status)
	require.NotNil(t, book.IssueDetails)
	require.Equal(t, "user-1", book.IssueDetails.UserID)
	require.Nil(t, book.IssueDetails.DueDate)

	require.Len(t, ledger.entries, 1)
	require.Equal(t, models.TxIssueRequest, ledger.entries[0].Type)
}

func TestRequestIssueUnavailable(t *testing.T) {
	svc, _, ledger := newLoanFixture(issuedBook(fixedNow.AddDate(0, 0, 7)))

	_, err := svc.RequestIssue(context.Background(), "book-1", member)
	require.Error(t, err)
	require.Equal(t, appErrors.ErrBookUnavailable.Code, appErrors.FromError(err).Code)
	require.Empty(t, ledger.entries)
}

func TestApproveIssueSetsDueDate(t *testing.T) {
	svc, _, ledger := newLoanFixture(availableBook())

	_, err := svc.RequestIssue(context.Background(), "book-1", member)
	require.NoError(t, err)

	book, err := svc.ApproveIssue(context.Background(), "book-1", admin)
	require.NoError(t, err)
	require.Equal(t, models.StatusIssued, book.Status)
	require.NotNil(t, book.IssueDetails.DueDate)
	require.Equal(t, fixedNow.AddDate(0, 0, 14), book.IssueDetails.DueDate.UTC())

	require.Len(t, ledger.entries, 2)
	issue := ledger.entries[1]
	require.Equal(t, models.TxIssue, issue.Type)
	require.Equal(t, "user-1", issue.UserID)
	require.NotNil(t, issue.DueDate)
}

func TestRenewExtendsDueDate(t *testing.T) {
	due := fixedNow.AddDate(0, 0, 2)
	svc, _, ledger := newLoanFixture(issuedBook(due))

	book, err := svc.Renew(context.Background(), "book-1", member)
	require.NoError(t, err)
	require.Equal(t, models.StatusIssued, book.Status)
	require.Equal(t, due.AddDate(0, 0, 7), book.IssueDetails.DueDate.UTC())

	require.Len(t, ledger.entries, 1)
	require.Equal(t, models.TxRenewal, ledger.entries[0].Type)
}

func TestRenewOverdueRefused(t *testing.T) {
	due := fixedNow.AddDate(0, 0, -1)
	svc, store, ledger := newLoanFixture(issuedBook(due))

	_, err := svc.Renew(context.Background(), "book-1", member)
	require.ErrorIs(t, err, appErrors.ErrLoanOverdue)

	require.Equal(t, due, store.books["book-1"].DueDate.UTC())
	require.Empty(t, ledger.entries)
}

func TestRenewForbiddenForOtherUser(t *testing.T) {
	svc, _, _ := newLoanFixture(issuedBook(fixedNow.AddDate(0, 0, 7)))

	stranger := Actor{ID: "user-2", Name: "Grace Hopper", Role: models.RoleUser}
	_, err := svc.Renew(context.Background(), "book-1", stranger)
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestReturnFlowClearsIssueDetails(t *testing.T) {
	svc, _, ledger := newLoanFixture(issuedBook(fixedNow.AddDate(0, 0, 7)))

	book, err := svc.RequestReturn(context.Background(), "book-1", member)
	require.NoError(t, err)
	require.Equal(t, models.StatusReturnRequested, book.Status)
	require.NotNil(t, book.IssueDetails)

	book, err = svc.ApproveReturn(context.Background(), "book-1", admin)
	require.NoError(t, err)
	require.Equal(t, models.StatusAvailable, book.Status)
	require.Nil(t, book.IssueDetails)

	require.Len(t, ledger.entries, 2)
	require.Equal(t, models.TxReturnRequest, ledger.entries[0].Type)
	require.Equal(t, models.TxReturn, ledger.entries[1].Type)
}

func TestRejectReturnKeepsLoan(t *testing.T) {
	due := fixedNow.AddDate(0, 0, 7)
	svc, _, ledger := newLoanFixture(issuedBook(due))

	_, err := svc.RequestReturn(context.Background(), "book-1", member)
	require.NoError(t, err)

	book, err := svc.RejectReturn(context.Background(), "book-1", admin, "book damaged, see librarian")
	require.NoError(t, err)
	require.Equal(t, models.StatusIssued, book.Status)
	require.NotNil(t, book.IssueDetails)
	require.Equal(t, due, book.IssueDetails.DueDate.UTC())

	require.Len(t, ledger.entries, 2)
	require.Equal(t, models.TxReturnReject, ledger.entries[1].Type)
	require.NotNil(t, ledger.entries[1].Note)
}

func TestLedgerFailureDoesNotBlockTransition(t *testing.T) {
	svc, store, ledger := newLoanFixture(availableBook())
	ledger.err = fmt.Errorf("ledger unavailable")

	book, err := svc.RequestIssue(context.Background(), "book-1", member)
	require.NoError(t, err)
	require.Equal(t, models.StatusIssueRequested, book.Status)
	require.Equal(t, models.StatusIssueRequested, store.books["book-1"].Status)
}

func TestAdminIssueUnknownUserFallback(t *testing.T) {
	svc, _, ledger := newLoanFixture(availableBook())

	book, err := svc.AdminIssue(context.Background(), "book-1", "user-404", admin)
	require.NoError(t, err)
	require.Equal(t, models.StatusIssued, book.Status)
	require.Equal(t, "Unknown User", book.IssueDetails.UserName)
	require.Equal(t, "Unknown User", ledger.entries[0].UserName)
}

func TestAdminReturnFromIssued(t *testing.T) {
	svc, _, ledger := newLoanFixture(issuedBook(fixedNow.AddDate(0, 0, 7)))

	book, err := svc.AdminReturn(context.Background(), "book-1", admin)
	require.NoError(t, err)
	require.Equal(t, models.StatusAvailable, book.Status)
	require.Nil(t, book.IssueDetails)
	require.Equal(t, models.TxReturn, ledger.entries[0].Type)
}

func TestRecordFinePaid(t *testing.T) {
	svc, _, ledger := newLoanFixture(issuedBook(fixedNow.AddDate(0, 0, -5)))

	tx, err := svc.RecordFinePaid(context.Background(), "book-1", 12.5, "late return", admin)
	require.NoError(t, err)
	require.Equal(t, models.TxFinePaid, tx.Type)
	require.Equal(t, "user-1", tx.UserID)
	require.NotNil(t, tx.FineAmount)
	require.Equal(t, 12.5, *tx.FineAmount)
	require.Len(t, ledger.entries, 1)

	_, err = svc.RecordFinePaid(context.Background(), "book-1", 0, "", admin)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestStateOfClassification(t *testing.T) {
	svc, _, _ := newLoanFixture()

	cases := []struct {
		name string
		due  time.Time
		want lifecycle.LoanState
	}{
		{"overdue yesterday", fixedNow.AddDate(0, 0, -1), lifecycle.LoanStateOverdue},
		{"due today", fixedNow, lifecycle.LoanStateDueSoon},
		{"due in three days", fixedNow.AddDate(0, 0, 3), lifecycle.LoanStateDueSoon},
		{"due in four days", fixedNow.AddDate(0, 0, 4), lifecycle.LoanStateIssued},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			book := issuedBook(tc.due)
			book.HydrateNested()
			require.Equal(t, tc.want, svc.StateOf(book))
		})
	}
}

func TestFullCirculationFlow(t *testing.T) {
	svc, _, ledger := newLoanFixture(availableBook())
	ctx := context.Background()

	_, err := svc.RequestIssue(ctx, "book-1", member)
	require.NoError(t, err)
	_, err = svc.ApproveIssue(ctx, "book-1", admin)
	require.NoError(t, err)
	_, err = svc.Renew(ctx, "book-1", member)
	require.NoError(t, err)
	_, err = svc.RequestReturn(ctx, "book-1", member)
	require.NoError(t, err)
	book, err := svc.ApproveReturn(ctx, "book-1", admin)
	require.NoError(t, err)

	require.Equal(t, models.StatusAvailable, book.Status)
	require.Nil(t, book.IssueDetails)

	types := make([]models.TransactionType, 0, len(ledger.entries))
	for _, tx := range ledger.entries {
		types = append(types, tx.Type)
	}
	require.Equal(t, []models.TransactionType{
		models.TxIssueRequest, models.TxIssue, models.TxRenewal,
		models.TxReturnRequest, models.TxReturn,
	}, types)
}
