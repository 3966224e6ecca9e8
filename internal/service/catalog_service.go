package service

import (
	"context"
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/libops/library-api/internal/lifecycle"
	"github.com/libops/library-api/internal/models"
	"github.com/libops/library-api/internal/repository"
	appErrors "github.com/libops/library-api/pkg/errors"
)

const catalogCachePrefix = "catalog:list:"

type catalogBookStore interface {
	Create(ctx context.Context, book *models.Book) error
	GetByID(ctx context.Context, id string) (*models.Book, error)
	List(ctx context.Context, filter models.BookFilter) ([]models.Book, error)
	UpdateDetails(ctx context.Context, book *models.Book) error
	ApplyTransition(ctx context.Context, params repository.TransitionParams) error
	Delete(ctx context.Context, id string) error
}

type cacheStore interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// BookInput carries catalog metadata for create and update operations.
type BookInput struct {
	Title         string
	Author        string
	ISBN          string
	Category      string
	PublishedDate string
	Description   string
	CoverURL      string
}

// CatalogService manages book metadata and listings. Listing results are
// cached in Redis with a short TTL; catalog mutations invalidate the whole
// listing keyspace, workflow transitions rely on the TTL instead.
type CatalogService struct {
	books    catalogBookStore
	cache    cacheStore
	cacheTTL time.Duration
	periods  lifecycle.Periods
	logger   *zap.Logger
	now      func() time.Time
}

// NewCatalogService constructs the service.
func NewCatalogService(books catalogBookStore, cache cacheStore, cacheTTL time.Duration, periods lifecycle.Periods, logger *zap.Logger) *CatalogService {
	return &CatalogService{
		books:    books,
		cache:    cache,
		cacheTTL: cacheTTL,
		periods:  periods,
		logger:   logger,
		now:      time.Now,
	}
}

// Create adds a book to the catalog as available.
func (s *CatalogService) Create(ctx context.Context, input BookInput) (*models.Book, error) {
	book := &models.Book{
		Title:         input.Title,
		Author:        input.Author,
		ISBN:          input.ISBN,
		Category:      input.Category,
		PublishedDate: input.PublishedDate,
		Description:   input.Description,
		CoverURL:      input.CoverURL,
		Status:        models.StatusAvailable,
	}
	if err := s.books.Create(ctx, book); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "create book")
	}
	s.invalidateListings(ctx)
	return book, nil
}

// Get fetches one book.
func (s *CatalogService) Get(ctx context.Context, id string) (*models.Book, error) {
	book, err := s.books.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "book not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "get book")
	}
	return book, nil
}

// List returns books matching the filter, served from cache when possible.
func (s *CatalogService) List(ctx context.Context, filter models.BookFilter) ([]models.Book, error) {
	key := listCacheKey(filter)

	var cached []models.Book
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	} else if !errors.Is(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("catalog cache read failed", zap.String("key", key), zap.Error(err))
	}

	books, err := s.books.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list books")
	}

	if err := s.cache.Set(ctx, key, books, s.cacheTTL); err != nil {
		s.logger.Warn("catalog cache write failed", zap.String("key", key), zap.Error(err))
	}
	return books, nil
}

// ListByLoanState returns issued books whose derived loan state matches the
// requested classification. The state is computed per read, never stored.
func (s *CatalogService) ListByLoanState(ctx context.Context, state lifecycle.LoanState) ([]models.Book, error) {
	books, err := s.List(ctx, models.BookFilter{
		Status: []models.BookStatus{models.StatusIssued, models.StatusReturnRequested},
		SortBy: "due_date",
		Limit:  200,
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	matched := make([]models.Book, 0, len(books))
	for _, book := range books {
		if book.IssueDetails == nil || book.IssueDetails.DueDate == nil {
			continue
		}
		if s.periods.Classify(*book.IssueDetails.DueDate, now) == state {
			matched = append(matched, book)
		}
	}
	return matched, nil
}

// Update edits catalog metadata without touching loan or donation state.
func (s *CatalogService) Update(ctx context.Context, id string, input BookInput) (*models.Book, error) {
	book, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	book.Title = input.Title
	book.Author = input.Author
	book.ISBN = input.ISBN
	book.Category = input.Category
	book.PublishedDate = input.PublishedDate
	book.Description = input.Description
	book.CoverURL = input.CoverURL

	if err := s.books.UpdateDetails(ctx, book); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "book not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "update book")
	}
	s.invalidateListings(ctx)
	return s.Get(ctx, id)
}

// MarkStatus applies an administrative status override. Only the shelf
// conditions are reachable this way; workflow statuses stay with the workflow
// endpoints.
func (s *CatalogService) MarkStatus(ctx context.Context, id string, target models.BookStatus) (*models.Book, error) {
	switch target {
	case models.StatusLost, models.StatusMaintenance, models.StatusAvailable:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("status %q cannot be set directly", target))
	}

	book, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if book.Status == target {
		return book, nil
	}

	// Loan columns belong only with the issue-related statuses; every shelf
	// condition drops them.
	params := repository.TransitionParams{
		ID:         book.ID,
		From:       []models.BookStatus{book.Status},
		To:         target,
		ClearIssue: true,
	}
	if err := s.books.ApplyTransition(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "book status changed, retry the operation")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "mark book status")
	}
	s.invalidateListings(ctx)
	return s.Get(ctx, id)
}

// Delete removes a book from the catalog. Books with an active loan cannot be
// removed.
func (s *CatalogService) Delete(ctx context.Context, id string) error {
	book, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	switch book.Status {
	case models.StatusIssued, models.StatusIssueRequested, models.StatusReturnRequested:
		return appErrors.Clone(appErrors.ErrConflict, "book has an active loan")
	}

	if err := s.books.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "book not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "delete book")
	}
	s.invalidateListings(ctx)
	return nil
}

func (s *CatalogService) invalidateListings(ctx context.Context) {
	if err := s.cache.DeleteByPattern(ctx, catalogCachePrefix+"*"); err != nil {
		s.logger.Warn("catalog cache invalidation failed", zap.Error(err))
	}
}

func listCacheKey(filter models.BookFilter) string {
	statuses := make([]string, len(filter.Status))
	for i, status := range filter.Status {
		statuses[i] = string(status)
	}
	raw := fmt.Sprintf("%s|%s|%s|%s|%s|%d|%d",
		strings.Join(statuses, ","), filter.HolderID, filter.DonorID,
		strings.ToLower(filter.Search), filter.SortBy, filter.Limit, filter.Offset)
	sum := sha1.Sum([]byte(raw))
	return catalogCachePrefix + hex.EncodeToString(sum[:])
}
