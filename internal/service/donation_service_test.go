package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/libops/library-api/internal/models"
	appErrors "github.com/libops/library-api/pkg/errors"
)

func newDonationFixture(books ...*models.Book) (*DonationService, *stubBookStore, *stubLedger) {
	store := newStubBookStore(books...)
	ledger := &stubLedger{}
	svc := NewDonationService(store, ledger, zap.NewNop())
	svc.now = func() time.Time { return fixedNow }
	return svc, store, ledger
}

func pendingDonation() *models.Book {
	donorID := "user-1"
	donorName := "Ada Lovelace"
	donatedAt := fixedNow.AddDate(0, 0, -2)
	return &models.Book{
		ID:        "book-1",
		Title:     "Gödel, Escher, Bach",
		Status:    models.StatusDonatedPending,
		DonorID:   &donorID,
		DonorName: &donorName,
		DonatedAt: &donatedAt,
	}
}

func TestDonateCreatesPendingBook(t *testing.T) {
	svc, store, ledger := newDonationFixture()

	book, err := svc.Donate(context.Background(), DonationInput{
		Title:  "Gödel, Escher, Bach",
		Author: "Douglas Hofstadter",
	}, member)
	require.NoError(t, err)
	require.Equal(t, models.StatusDonatedPending, book.Status)
	require.NotNil(t, book.DonatedBy)
	require.Equal(t, "user-1", book.DonatedBy.UserID)
	require.Equal(t, fixedNow, book.DonatedBy.Time)

	require.Contains(t, store.books, book.ID)
	require.Len(t, ledger.entries, 1)
	require.Equal(t, models.TxDonateRequest, ledger.entries[0].Type)
}

func TestApproveDonationRetainsDonor(t *testing.T) {
	svc, _, ledger := newDonationFixture(pendingDonation())

	book, err := svc.Approve(context.Background(), "book-1", admin)
	require.NoError(t, err)
	require.Equal(t, models.StatusAvailable, book.Status)
	require.NotNil(t, book.DonatedBy)
	require.Equal(t, "Ada Lovelace", book.DonatedBy.UserName)

	require.Len(t, ledger.entries, 1)
	require.Equal(t, models.TxDonateApprove, ledger.entries[0].Type)
	require.Equal(t, "user-1", ledger.entries[0].UserID)
}

func TestApproveDonationWrongStatus(t *testing.T) {
	svc, _, ledger := newDonationFixture(availableBook())

	_, err := svc.Approve(context.Background(), "book-1", admin)
	require.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	require.Empty(t, ledger.entries)
}

func TestRejectDonationLogsThenDeletes(t *testing.T) {
	svc, store, ledger := newDonationFixture(pendingDonation())

	err := svc.Reject(context.Background(), "book-1", admin, "duplicate copy")
	require.NoError(t, err)

	require.NotContains(t, store.books, "book-1")
	require.Len(t, ledger.entries, 1)
	entry := ledger.entries[0]
	require.Equal(t, models.TxDonateReject, entry.Type)
	require.Equal(t, "book-1", entry.BookID)
	require.Equal(t, "Gödel, Escher, Bach", entry.BookTitle)
	require.NotNil(t, entry.Note)
	require.Equal(t, "duplicate copy", *entry.Note)
}

func TestDonationWorkflowInvalidatesListings(t *testing.T) {
	svc, _, _ := newDonationFixture(pendingDonation())
	cache := newStubCache()
	svc.WithListingCache(cache)
	ctx := context.Background()

	cache.data["catalog:list:stale"] = []byte("[]")
	_, err := svc.Donate(ctx, DonationInput{Title: "The Art of Computer Programming"}, member)
	require.NoError(t, err)
	require.Empty(t, cache.data)

	cache.data["catalog:list:stale"] = []byte("[]")
	err = svc.Reject(ctx, "book-1", admin, "")
	require.NoError(t, err)
	require.Empty(t, cache.data)
}

func TestRejectDonationWrongStatus(t *testing.T) {
	svc, store, ledger := newDonationFixture(availableBook())

	err := svc.Reject(context.Background(), "book-1", admin, "")
	require.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	require.Contains(t, store.books, "book-1")
	require.Empty(t, ledger.entries)
}
