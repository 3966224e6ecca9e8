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

// Actor identifies who is performing an operation, derived from JWT claims.
type Actor struct {
	ID   string
	Name string
	Role models.UserRole
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

type bookStore interface {
	GetByID(ctx context.Context, id string) (*models.Book, error)
	ApplyTransition(ctx context.Context, params repository.TransitionParams) error
}

type ledgerStore interface {
	Append(ctx context.Context, tx *models.Transaction) error
}

type userDirectory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// LoanService drives the issue, return and renewal workflows. Every mutation
// follows the same shape: load the book, ask the lifecycle table whether the
// event is permitted, apply a conditional status write, then append a ledger
// entry. The ledger append is deliberately non-fatal; the status change is the
// primary record and a logging failure must not roll it back.
type LoanService struct {
	books   bookStore
	ledger  ledgerStore
	users   userDirectory
	periods lifecycle.Periods
	logger  *zap.Logger
	metrics *Metrics
	now     func() time.Time
}

// NewLoanService constructs the service.
func NewLoanService(books bookStore, ledger ledgerStore, users userDirectory, periods lifecycle.Periods, logger *zap.Logger) *LoanService {
	return &LoanService{
		books:   books,
		ledger:  ledger,
		users:   users,
		periods: periods,
		logger:  logger,
		now:     time.Now,
	}
}

// WithMetrics attaches Prometheus counters to the workflow.
func (s *LoanService) WithMetrics(m *Metrics) *LoanService {
	s.metrics = m
	return s
}

// StateOf classifies the book's active loan against its due date. Returns the
// empty string when the book carries no due date.
func (s *LoanService) StateOf(book *models.Book) lifecycle.LoanState {
	if book == nil || book.IssueDetails == nil || book.IssueDetails.DueDate == nil {
		return ""
	}
	return s.periods.Classify(*book.IssueDetails.DueDate, s.now())
}

// RequestIssue places a borrow request on an available book.
func (s *LoanService) RequestIssue(ctx context.Context, bookID string, actor Actor) (*models.Book, error) {
	book, err := s.loadBook(ctx, bookID)
	if err != nil {
		return nil, err
	}

	next, err := lifecycle.Next(book.Status, lifecycle.EventRequestIssue)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrBookUnavailable.Code, appErrors.ErrBookUnavailable.Status, appErrors.ErrBookUnavailable.Message)
	}

	requestedAt := s.now().UTC()
	err = s.books.ApplyTransition(ctx, repository.TransitionParams{
		ID:   book.ID,
		From: []models.BookStatus{book.Status},
		To:   next,
		SetIssue: &models.IssueDetails{
			UserID:   actor.ID,
			UserName: actor.Name,
			IssuedAt: requestedAt,
		},
	})
	if err != nil {
		return nil, s.transitionError(err)
	}

	s.appendLedger(ctx, &models.Transaction{
		BookID:    book.ID,
		BookTitle: book.Title,
		UserID:    actor.ID,
		UserName:  actor.Name,
		Type:      models.TxIssueRequest,
	})
	return s.loadBook(ctx, bookID)
}

// ApproveIssue confirms a pending borrow request. The loan starts at approval
// time, not at request time.
func (s *LoanService) ApproveIssue(ctx context.Context, bookID string, _ Actor) (*models.Book, error) {
	book, err := s.loadBook(ctx, bookID)
	if err != nil {
		return nil, err
	}

	next, err := lifecycle.Next(book.Status, lifecycle.EventApproveIssue)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "book has no pending issue request")
	}
	if book.IssueDetails == nil {
		return nil, appErrors.ErrNoActiveLoan
	}

	issuedAt := s.now().UTC()
	due := s.periods.DueDateOnIssue(issuedAt)
	err = s.books.ApplyTransition(ctx, repository.TransitionParams{
		ID:   book.ID,
		From: []models.BookStatus{book.Status},
		To:   next,
		SetIssue: &models.IssueDetails{
			UserID:   book.IssueDetails.UserID,
			UserName: book.IssueDetails.UserName,
			IssuedAt: issuedAt,
			DueDate:  &due,
		},
	})
	if err != nil {
		return nil, s.transitionError(err)
	}

	s.appendLedger(ctx, &models.Transaction{
		BookID:    book.ID,
		BookTitle: book.Title,
		UserID:    book.IssueDetails.UserID,
		UserName:  book.IssueDetails.UserName,
		Type:      models.TxIssue,
		DueDate:   &due,
	})
	return s.loadBook(ctx, bookID)
}

// RejectIssue declines a pending borrow request and releases the book.
func (s *LoanService) RejectIssue(ctx context.Context, bookID string, _ Actor, note string) (*models.Book, error) {
	book, err := s.loadBook(ctx, bookID)
	if err != nil {
		return nil, err
	}

	next, err := lifecycle.Next(book.Status, lifecycle.EventRejectIssue)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "book has no pending issue request")
	}
	if book.IssueDetails == nil {
		return nil, appErrors.ErrNoActiveLoan
	}

	err = s.books.ApplyTransition(ctx, repository.TransitionParams{
		ID:         book.ID,
		From:       []models.BookStatus{book.Status},
		To:         next,
		ClearIssue: true,
	})
	if err != nil {
		return nil, s.transitionError(err)
	}

	s.appendLedger(ctx, &models.Transaction{
		BookID:    book.ID,
		BookTitle: book.Title,
		UserID:    book.IssueDetails.UserID,
		UserName:  book.IssueDetails.UserName,
		Type:      models.TxIssueReject,
		Note:      optionalNote(note),
	})
	return s.loadBook(ctx, bookID)
}

// Renew extends the current loan by the renewal period. An overdue loan cannot
// be renewed; its due date stays untouched so the fine keeps accruing from the
// original date.
func (s *LoanService) Renew(ctx context.Context, bookID string, actor Actor) (*models.Book, error) {
	book, err := s.loadBook(ctx, bookID)
	if err != nil {
		return nil, err
	}

	next, err := lifecycle.Next(book.Status, lifecycle.EventRenew)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "book is not currently issued")
	}
	if book.IssueDetails == nil || book.IssueDetails.DueDate == nil {
		return nil, appErrors.ErrNoActiveLoan
	}
	if err := s.requireHolderOrAdmin(book, actor); err != nil {
		return nil, err
	}
	if !s.periods.CanRenew(*book.IssueDetails.DueDate, s.now()) {
		return nil, appErrors.ErrLoanOverdue
	}

	due := s.periods.RenewedDueDate(*book.IssueDetails.DueDate)
	err = s.books.ApplyTransition(ctx, repository.TransitionParams{
		ID:     book.ID,
		From:   []models.BookStatus{book.Status},
		To:     next,
		SetDue: &due,
	})
	if err != nil {
		return nil, s.transitionError(err)
	}

	s.appendLedger(ctx, &models.Transaction{
		BookID:    book.ID,
		BookTitle: book.Title,
		UserID:    book.IssueDetails.UserID,
		UserName:  book.IssueDetails.UserName,
		Type:      models.TxRenewal,
		DueDate:   &due,
	})
	return s.loadBook(ctx, bookID)
}

// RequestReturn asks to hand a borrowed book back.
func (s *LoanService) RequestReturn(ctx context.Context, bookID string, actor Actor) (*models.Book, error) {
	book, err := s.loadBook(ctx, bookID)
	if err != nil {
		return nil, err
	}

	next, err := lifecycle.Next(book.Status, lifecycle.EventRequestReturn)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "book is not currently issued")
	}
	if book.IssueDetails == nil {
		return nil, appErrors.ErrNoActiveLoan
	}
	if err := s.requireHolderOrAdmin(book, actor); err != nil {
		return nil, err
	}

	err = s.books.ApplyTransition(ctx, repository.TransitionParams{
		ID:   book.ID,
		From: []models.BookStatus{book.Status},
		To:   next,
	})
	if err != nil {
		return nil, s.transitionError(err)
	}

	s.appendLedger(ctx, &models.Transaction{
		BookID:    book.ID,
		BookTitle: book.Title,
		UserID:    book.IssueDetails.UserID,
		UserName:  book.IssueDetails.UserName,
		Type:      models.TxReturnRequest,
	})
	return s.loadBook(ctx, bookID)
}

// ApproveReturn completes a return. All loan details are cleared; the ledger
// keeps the history.
func (s *LoanService) ApproveReturn(ctx context.Context, bookID string, _ Actor) (*models.Book, error) {
	book, err := s.loadBook(ctx, bookID)
	if err != nil {
		return nil, err
	}

	next, err := lifecycle.Next(book.Status, lifecycle.EventApproveReturn)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "book has no pending return request")
	}
	if book.IssueDetails == nil {
		return nil, appErrors.ErrNoActiveLoan
	}

	err = s.books.ApplyTransition(ctx, repository.TransitionParams{
		ID:         book.ID,
		From:       []models.BookStatus{book.Status},
		To:         next,
		ClearIssue: true,
	})
	if err != nil {
		return nil, s.transitionError(err)
	}

	s.appendLedger(ctx, &models.Transaction{
		BookID:    book.ID,
		BookTitle: book.Title,
		UserID:    book.IssueDetails.UserID,
		UserName:  book.IssueDetails.UserName,
		Type:      models.TxReturn,
	})
	return s.loadBook(ctx, bookID)
}

// RejectReturn declines a return request; the loan continues unchanged.
func (s *LoanService) RejectReturn(ctx context.Context, bookID string, _ Actor, note string) (*models.Book, error) {
	book, err := s.loadBook(ctx, bookID)
	if err != nil {
		return nil, err
	}

	next, err := lifecycle.Next(book.Status, lifecycle.EventRejectReturn)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "book has no pending return request")
	}
	if book.IssueDetails == nil {
		return nil, appErrors.ErrNoActiveLoan
	}

	err = s.books.ApplyTransition(ctx, repository.TransitionParams{
		ID:   book.ID,
		From: []models.BookStatus{book.Status},
		To:   next,
	})
	if err != nil {
		return nil, s.transitionError(err)
	}

	s.appendLedger(ctx, &models.Transaction{
		BookID:    book.ID,
		BookTitle: book.Title,
		UserID:    book.IssueDetails.UserID,
		UserName:  book.IssueDetails.UserName,
		Type:      models.TxReturnReject,
		Note:      optionalNote(note),
	})
	return s.loadBook(ctx, bookID)
}

// AdminIssue issues a book directly to a user, skipping the request step. The
// holder's display name is resolved from the user directory; a missing record
// does not block the issue.
func (s *LoanService) AdminIssue(ctx context.Context, bookID, userID string, _ Actor) (*models.Book, error) {
	book, err := s.loadBook(ctx, bookID)
	if err != nil {
		return nil, err
	}

	next, err := lifecycle.Next(book.Status, lifecycle.EventAdminIssue)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrBookUnavailable.Code, appErrors.ErrBookUnavailable.Status, appErrors.ErrBookUnavailable.Message)
	}

	userName := "Unknown User"
	if user, lookupErr := s.users.FindByID(ctx, userID); lookupErr == nil {
		userName = user.FullName
	} else if !errors.Is(lookupErr, sql.ErrNoRows) {
		s.logger.Warn("resolve holder name failed",
			zap.String("user_id", userID),
			zap.Error(lookupErr))
	}

	issuedAt := s.now().UTC()
	due := s.periods.DueDateOnIssue(issuedAt)
	err = s.books.ApplyTransition(ctx, repository.TransitionParams{
		ID:   book.ID,
		From: []models.BookStatus{book.Status},
		To:   next,
		SetIssue: &models.IssueDetails{
			UserID:   userID,
			UserName: userName,
			IssuedAt: issuedAt,
			DueDate:  &due,
		},
	})
	if err != nil {
		return nil, s.transitionError(err)
	}

	s.appendLedger(ctx, &models.Transaction{
		BookID:    book.ID,
		BookTitle: book.Title,
		UserID:    userID,
		UserName:  userName,
		Type:      models.TxIssue,
		DueDate:   &due,
	})
	return s.loadBook(ctx, bookID)
}

// AdminReturn takes a book back directly, whether or not a return was
// requested first.
func (s *LoanService) AdminReturn(ctx context.Context, bookID string, _ Actor) (*models.Book, error) {
	book, err := s.loadBook(ctx, bookID)
	if err != nil {
		return nil, err
	}

	next, err := lifecycle.Next(book.Status, lifecycle.EventAdminReturn)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "book is not currently issued")
	}
	if book.IssueDetails == nil {
		return nil, appErrors.ErrNoActiveLoan
	}

	err = s.books.ApplyTransition(ctx, repository.TransitionParams{
		ID:         book.ID,
		From:       []models.BookStatus{book.Status},
		To:         next,
		ClearIssue: true,
	})
	if err != nil {
		return nil, s.transitionError(err)
	}

	s.appendLedger(ctx, &models.Transaction{
		BookID:    book.ID,
		BookTitle: book.Title,
		UserID:    book.IssueDetails.UserID,
		UserName:  book.IssueDetails.UserName,
		Type:      models.TxReturn,
	})
	return s.loadBook(ctx, bookID)
}

// RecordFinePaid appends a fine payment to the ledger. It touches no book
// state; unlike the workflow appends this one is the primary write, so a
// failure is returned to the caller.
func (s *LoanService) RecordFinePaid(ctx context.Context, bookID string, amount float64, note string, actor Actor) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "fine amount must be positive")
	}

	book, err := s.loadBook(ctx, bookID)
	if err != nil {
		return nil, err
	}

	userID, userName := actor.ID, actor.Name
	if book.IssueDetails != nil {
		userID, userName = book.IssueDetails.UserID, book.IssueDetails.UserName
	}

	tx := &models.Transaction{
		BookID:     book.ID,
		BookTitle:  book.Title,
		UserID:     userID,
		UserName:   userName,
		Type:       models.TxFinePaid,
		FineAmount: &amount,
		Note:       optionalNote(note),
	}
	if err := s.ledger.Append(ctx, tx); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "record fine payment")
	}
	return tx, nil
}

func (s *LoanService) loadBook(ctx context.Context, id string) (*models.Book, error) {
	book, err := s.books.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "book not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load book")
	}
	return book, nil
}

// transitionError maps a guarded-update miss to a conflict: the book moved to
// another status between the read and the write.
func (s *LoanService) transitionError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrConflict, "book status changed, retry the operation")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "apply book transition")
}

func (s *LoanService) requireHolderOrAdmin(book *models.Book, actor Actor) error {
	if actor.IsAdmin() {
		return nil
	}
	if book.IssueDetails == nil || book.IssueDetails.UserID != actor.ID {
		return appErrors.Clone(appErrors.ErrForbidden, "book is issued to another user")
	}
	return nil
}

func (s *LoanService) appendLedger(ctx context.Context, tx *models.Transaction) {
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

func optionalNote(note string) *string {
	if note == "" {
		return nil
	}
	return &note
}
