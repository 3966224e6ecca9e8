// Package lifecycle implements the book circulation state machine: which
// status transitions each event permits, and how loans are classified
// against their due date. It is pure computation; persistence and transaction
// logging stay with the callers.
package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/libops/library-api/internal/models"
)

// Event identifies a lifecycle transition request.
type Event string

const (
	EventRequestIssue    Event = "request_issue"
	EventApproveIssue    Event = "approve_issue"
	EventRejectIssue     Event = "reject_issue"
	EventRenew           Event = "renew"
	EventRequestReturn   Event = "request_return"
	EventApproveReturn   Event = "approve_return"
	EventRejectReturn    Event = "reject_return"
	EventAdminIssue      Event = "admin_issue"
	EventAdminReturn     Event = "admin_return"
	EventApproveDonation Event = "approve_donation"
)

// ErrInvalidTransition reports an event applied to a status that does not
// permit it.
var ErrInvalidTransition = errors.New("invalid status transition")

type rule struct {
	from []models.BookStatus
	to   models.BookStatus
}

var transitions = map[Event]rule{
	EventRequestIssue: {
		from: []models.BookStatus{models.StatusAvailable, models.StatusDonatedApproved},
		to:   models.StatusIssueRequested,
	},
	EventApproveIssue: {
		from: []models.BookStatus{models.StatusIssueRequested},
		to:   models.StatusIssued,
	},
	EventRejectIssue: {
		from: []models.BookStatus{models.StatusIssueRequested},
		to:   models.StatusAvailable,
	},
	EventRenew: {
		from: []models.BookStatus{models.StatusIssued},
		to:   models.StatusIssued,
	},
	EventRequestReturn: {
		from: []models.BookStatus{models.StatusIssued},
		to:   models.StatusReturnRequested,
	},
	EventApproveReturn: {
		from: []models.BookStatus{models.StatusReturnRequested},
		to:   models.StatusAvailable,
	},
	EventRejectReturn: {
		from: []models.BookStatus{models.StatusReturnRequested},
		to:   models.StatusIssued,
	},
	EventAdminIssue: {
		from: []models.BookStatus{models.StatusAvailable, models.StatusDonatedApproved},
		to:   models.StatusIssued,
	},
	EventAdminReturn: {
		from: []models.BookStatus{models.StatusIssued, models.StatusReturnRequested},
		to:   models.StatusAvailable,
	},
	EventApproveDonation: {
		from: []models.BookStatus{models.StatusDonatedPending},
		to:   models.StatusAvailable,
	},
}

// Next returns the status the event moves the book into, or
// ErrInvalidTransition when the current status does not permit the event.
func Next(current models.BookStatus, event Event) (models.BookStatus, error) {
	r, ok := transitions[event]
	if !ok {
		return "", fmt.Errorf("%w: unknown event %q", ErrInvalidTransition, event)
	}
	for _, from := range r.from {
		if from == current {
			return r.to, nil
		}
	}
	return "", fmt.Errorf("%w: %s does not permit %s", ErrInvalidTransition, current, event)
}

// LoanState is the derived classification of an active loan. It is computed
// on every read and never persisted as a book status.
type LoanState string

const (
	LoanStateIssued  LoanState = "issued"
	LoanStateDueSoon LoanState = "due_soon"
	LoanStateOverdue LoanState = "overdue"
)

// Periods fixes the circulation durations used for due-date arithmetic.
type Periods struct {
	Loan             time.Duration
	RenewalExtension time.Duration
	DueSoonDays      int
}

// DefaultPeriods returns the standard 14-day loan with a 7-day renewal
// extension and a 3-day due-soon window.
func DefaultPeriods() Periods {
	return Periods{
		Loan:             14 * 24 * time.Hour,
		RenewalExtension: 7 * 24 * time.Hour,
		DueSoonDays:      3,
	}
}

// DueDateOnIssue computes the due date for a loan issued at the given time.
func (p Periods) DueDateOnIssue(issuedAt time.Time) time.Time {
	return issuedAt.Add(p.Loan)
}

// RenewedDueDate advances an existing due date by the renewal extension.
func (p Periods) RenewedDueDate(current time.Time) time.Time {
	return current.Add(p.RenewalExtension)
}

// Classify derives the loan state from the due date at calendar-day
// granularity: overdue once the due day has passed, due_soon within the
// configured window (inclusive), issued otherwise.
func (p Periods) Classify(due, now time.Time) LoanState {
	dueDay := truncateToDay(due)
	today := truncateToDay(now)

	days := int(dueDay.Sub(today).Hours() / 24)
	switch {
	case days < 0:
		return LoanStateOverdue
	case days <= p.DueSoonDays:
		return LoanStateDueSoon
	default:
		return LoanStateIssued
	}
}

// CanRenew reports whether a loan with the given due date may be renewed now.
// Renewal is refused whenever the classification is overdue.
func (p Periods) CanRenew(due, now time.Time) bool {
	return p.Classify(due, now) != LoanStateOverdue
}

func truncateToDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
