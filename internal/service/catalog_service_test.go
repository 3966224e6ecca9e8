package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/libops/library-api/internal/lifecycle"
	"github.com/libops/library-api/internal/models"
	appErrors "github.com/libops/library-api/pkg/errors"
)

type stubCache struct {
	data map[string][]byte
}

func newStubCache() *stubCache {
	return &stubCache{data: make(map[string][]byte)}
}

func (c *stubCache) Get(_ context.Context, key string, dest interface{}) error {
	raw, ok := c.data[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *stubCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.data[key] = raw
	return nil
}

func (c *stubCache) DeleteByPattern(_ context.Context, _ string) error {
	c.data = make(map[string][]byte)
	return nil
}

type countingBookStore struct {
	*stubBookStore
	listCalls int
}

func (s *countingBookStore) List(ctx context.Context, filter models.BookFilter) ([]models.Book, error) {
	s.listCalls++
	return s.stubBookStore.List(ctx, filter)
}

func newCatalogFixture(books ...*models.Book) (*CatalogService, *countingBookStore, *stubCache) {
	store := &countingBookStore{stubBookStore: newStubBookStore(books...)}
	cache := newStubCache()
	svc := NewCatalogService(store, cache, 5*time.Minute, lifecycle.DefaultPeriods(), zap.NewNop())
	svc.now = func() time.Time { return fixedNow }
	return svc, store, cache
}

func TestCatalogListUsesCache(t *testing.T) {
	svc, store, _ := newCatalogFixture(availableBook())
	ctx := context.Background()

	first, err := svc.List(ctx, models.BookFilter{})
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.Equal(t, 1, store.listCalls)

	second, err := svc.List(ctx, models.BookFilter{})
	require.NoError(t, err)
	require.Len(t, second, 1)
	require.Equal(t, 1, store.listCalls)
}

func TestCatalogMutationInvalidatesCache(t *testing.T) {
	svc, store, cache := newCatalogFixture(availableBook())
	ctx := context.Background()

	_, err := svc.List(ctx, models.BookFilter{})
	require.NoError(t, err)
	require.NotEmpty(t, cache.data)

	_, err = svc.Create(ctx, BookInput{Title: "The Mythical Man-Month", Author: "Fred Brooks"})
	require.NoError(t, err)
	require.Empty(t, cache.data)

	books, err := svc.List(ctx, models.BookFilter{})
	require.NoError(t, err)
	require.Len(t, books, 2)
	require.Equal(t, 2, store.listCalls)
}

func TestCatalogListByLoanState(t *testing.T) {
	overdue := issuedBook(fixedNow.AddDate(0, 0, -2))
	overdue.ID = "book-overdue"
	dueSoon := issuedBook(fixedNow.AddDate(0, 0, 1))
	dueSoon.ID = "book-due-soon"
	comfortable := issuedBook(fixedNow.AddDate(0, 0, 10))
	comfortable.ID = "book-comfortable"

	svc, _, _ := newCatalogFixture(overdue, dueSoon, comfortable)

	books, err := svc.ListByLoanState(context.Background(), lifecycle.LoanStateOverdue)
	require.NoError(t, err)
	require.Len(t, books, 1)
	require.Equal(t, "book-overdue", books[0].ID)

	books, err = svc.ListByLoanState(context.Background(), lifecycle.LoanStateDueSoon)
	require.NoError(t, err)
	require.Len(t, books, 1)
	require.Equal(t, "book-due-soon", books[0].ID)
}

func TestCatalogMarkStatus(t *testing.T) {
	svc, store, _ := newCatalogFixture(availableBook())
	ctx := context.Background()

	book, err := svc.MarkStatus(ctx, "book-1", models.StatusMaintenance)
	require.NoError(t, err)
	require.Equal(t, models.StatusMaintenance, book.Status)
	require.Equal(t, models.StatusMaintenance, store.books["book-1"].Status)

	_, err = svc.MarkStatus(ctx, "book-1", models.StatusIssued)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCatalogMarkStatusLostClearsLoan(t *testing.T) {
	svc, store, _ := newCatalogFixture(issuedBook(fixedNow.AddDate(0, 0, 7)))

	book, err := svc.MarkStatus(context.Background(), "book-1", models.StatusLost)
	require.NoError(t, err)
	require.Equal(t, models.StatusLost, book.Status)
	require.Nil(t, book.IssueDetails)

	stored := store.books["book-1"]
	require.Nil(t, stored.IssuedTo)
	require.Nil(t, stored.IssuedAt)
	require.Nil(t, stored.DueDate)
}

func TestCatalogDeleteBlockedWhileIssued(t *testing.T) {
	svc, store, _ := newCatalogFixture(issuedBook(fixedNow.AddDate(0, 0, 7)))

	err := svc.Delete(context.Background(), "book-1")
	require.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	require.Contains(t, store.books, "book-1")
}
