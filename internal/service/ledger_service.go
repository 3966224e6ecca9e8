package service

import (
	"context"

	"github.com/libops/library-api/internal/models"
	appErrors "github.com/libops/library-api/pkg/errors"
)

type ledgerReader interface {
	List(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error)
}

// LedgerService exposes read access to the circulation ledger. Writes happen
// inside the workflow services; nothing here can alter history.
type LedgerService struct {
	ledger ledgerReader
}

// NewLedgerService constructs the service.
func NewLedgerService(ledger ledgerReader) *LedgerService {
	return &LedgerService{ledger: ledger}
}

// List returns ledger entries matching the filter. Non-admin callers are
// always scoped to their own entries regardless of the requested filter.
func (s *LedgerService) List(ctx context.Context, filter models.TransactionFilter, actor Actor) ([]models.Transaction, error) {
	if !actor.IsAdmin() {
		filter.UserID = actor.ID
	}

	transactions, err := s.ledger.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list transactions")
	}
	return transactions, nil
}

// ForBook returns the circulation history of one book, newest first.
func (s *LedgerService) ForBook(ctx context.Context, bookID string, limit int, actor Actor) ([]models.Transaction, error) {
	return s.List(ctx, models.TransactionFilter{BookID: bookID, Limit: limit}, actor)
}

// ForUser returns a user's own activity, newest first.
func (s *LedgerService) ForUser(ctx context.Context, userID string, limit int, actor Actor) ([]models.Transaction, error) {
	if !actor.IsAdmin() && userID != actor.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot view another user's transactions")
	}

	transactions, err := s.ledger.List(ctx, models.TransactionFilter{UserID: userID, Limit: limit})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list transactions")
	}
	return transactions, nil
}
