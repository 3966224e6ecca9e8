package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/libops/library-api/internal/lifecycle"
	"github.com/libops/library-api/internal/models"
	"github.com/libops/library-api/internal/repository"
	appErrors "github.com/libops/library-api/pkg/errors"
)

type donationBookStore interface {
	Create(ctx context.Context, book *models.Book) error
	GetByID(ctx context.Context, id string) (*models.Book, error)
	ApplyTransition(ctx context.Context, params repository.TransitionParams) error
	Delete(ctx context.Context, id string) error
}

// DonationInput carries the catalog metadata of an offered book.
type DonationInput struct {
	Title         string
	Author        string
	ISBN          string
	Category      string
	PublishedDate string
	Description   string
	CoverURL      string
}

// DonationService handles the donation intake and review workflow. Donation
// provenance is written once at submission and survives approval; rejection is
// the one workflow that removes a book record, and the ledger entry written
// before the delete is all that remains of it.
type DonationService struct {
	books   donationBookStore
	ledger  ledgerStore
	cache   cacheStore
	logger  *zap.Logger
	metrics *Metrics
	now     func() time.Time
}

// NewDonationService constructs the service.
func NewDonationService(books donationBookStore, ledger ledgerStore, logger *zap.Logger) *DonationService {
	return &DonationService{
		books:  books,
		ledger: ledger,
		logger: logger,
		now:    time.Now,
	}
}

// WithMetrics attaches Prometheus counters to the workflow.
func (s *DonationService) WithMetrics(m *Metrics) *DonationService {
	s.metrics = m
	return s
}

// WithListingCache invalidates the catalog listing cache when donations add
// or remove book records.
func (s *DonationService) WithListingCache(cache cacheStore) *DonationService {
	s.cache = cache
	return s
}

// Donate registers an offered book pending admin review.
func (s *DonationService) Donate(ctx context.Context, input DonationInput, actor Actor) (*models.Book, error) {
	donatedAt := s.now().UTC()
	book := &models.Book{
		Title:         input.Title,
		Author:        input.Author,
		ISBN:          input.ISBN,
		Category:      input.Category,
		PublishedDate: input.PublishedDate,
		Description:   input.Description,
		CoverURL:      input.CoverURL,
		Status:        models.StatusDonatedPending,
		DonorID:       &actor.ID,
		DonorName:     &actor.Name,
		DonatedAt:     &donatedAt,
	}
	if err := s.books.Create(ctx, book); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "register donation")
	}
	book.HydrateNested()
	s.invalidateListings(ctx)

	s.appendLedger(ctx, &models.Transaction{
		BookID:    book.ID,
		BookTitle: book.Title,
		UserID:    actor.ID,
		UserName:  actor.Name,
		Type:      models.TxDonateRequest,
	})
	return book, nil
}

// Approve accepts a donated book into circulation. The donor attribution on
// the book record stays in place.
func (s *DonationService) Approve(ctx context.Context, bookID string, _ Actor) (*models.Book, error) {
	book, err := s.loadBook(ctx, bookID)
	if err != nil {
		return nil, err
	}

	next, err := lifecycle.Next(book.Status, lifecycle.EventApproveDonation)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "book has no pending donation")
	}
	if book.DonatedBy == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "book carries no donation record")
	}

	err = s.books.ApplyTransition(ctx, repository.TransitionParams{
		ID:   book.ID,
		From: []models.BookStatus{book.Status},
		To:   next,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "book status changed, retry the operation")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "approve donation")
	}
	s.invalidateListings(ctx)

	s.appendLedger(ctx, &models.Transaction{
		BookID:    book.ID,
		BookTitle: book.Title,
		UserID:    book.DonatedBy.UserID,
		UserName:  book.DonatedBy.UserName,
		Type:      models.TxDonateApprove,
	})
	return s.loadBook(ctx, bookID)
}

// Reject declines a pending donation and removes the book record. The ledger
// entry is appended before the delete so the rejection stays on record even
// though the book itself disappears.
func (s *DonationService) Reject(ctx context.Context, bookID string, _ Actor, note string) error {
	book, err := s.loadBook(ctx, bookID)
	if err != nil {
		return err
	}
	if book.Status != models.StatusDonatedPending {
		return appErrors.Clone(appErrors.ErrConflict, "book has no pending donation")
	}
	if book.DonatedBy == nil {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "book carries no donation record")
	}

	s.appendLedger(ctx, &models.Transaction{
		BookID:    book.ID,
		BookTitle: book.Title,
		UserID:    book.DonatedBy.UserID,
		UserName:  book.DonatedBy.UserName,
		Type:      models.TxDonateReject,
		Note:      optionalNote(note),
	})

	if err := s.books.Delete(ctx, book.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrConflict, "book already removed")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "reject donation")
	}
	s.invalidateListings(ctx)
	return nil
}

func (s *DonationService) invalidateListings(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, catalogCachePrefix+"*"); err != nil {
		s.logger.Warn("catalog cache invalidation failed", zap.Error(err))
	}
}

func (s *DonationService) loadBook(ctx context.Context, id string) (*models.Book, error) {
	book, err := s.books.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "book not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load book")
	}
	return book, nil
}

func (s *DonationService) appendLedger(ctx context.Context, tx *models.Transaction) {
	if err := s.ledger.Append(ctx, tx); err != nil {
		s.logger.Warn("transaction log append failed",
			zap.String("book_id", tx.BookID),
			zap.String("type", string(tx.Type)),
			zap.Error(err))
		return
	}
	if s.metrics != nil {
		s.metrics.LedgerAppends.Inc()
		s.metrics.Transitions.WithLabelValues(string(tx.Type)).Inc()
	}
}
