package lifecycle

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/libops/library-api/internal/models"
)

func TestNextPermittedTransitions(t *testing.T) {
	cases := []struct {
		name  string
		from  models.BookStatus
		event Event
		want  models.BookStatus
	}{
		{"request issue from available", models.StatusAvailable, EventRequestIssue, models.StatusIssueRequested},
		{"request issue from donated_approved", models.StatusDonatedApproved, EventRequestIssue, models.StatusIssueRequested},
		{"approve issue", models.StatusIssueRequested, EventApproveIssue, models.StatusIssued},
		{"reject issue", models.StatusIssueRequested, EventRejectIssue, models.StatusAvailable},
		{"renew keeps issued", models.StatusIssued, EventRenew, models.StatusIssued},
		{"request return", models.StatusIssued, EventRequestReturn, models.StatusReturnRequested},
		{"approve return", models.StatusReturnRequested, EventApproveReturn, models.StatusAvailable},
		{"reject return", models.StatusReturnRequested, EventRejectReturn, models.StatusIssued},
		{"admin direct issue", models.StatusAvailable, EventAdminIssue, models.StatusIssued},
		{"admin return from issued", models.StatusIssued, EventAdminReturn, models.StatusAvailable},
		{"admin return from return_requested", models.StatusReturnRequested, EventAdminReturn, models.StatusAvailable},
		{"approve donation", models.StatusDonatedPending, EventApproveDonation, models.StatusAvailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			next, err := Next(tc.from, tc.event)
			require.NoError(t, err)
			require.Equal(t, tc.want, next)
		})
	}
}

func TestNextRejectedTransitions(t *testing.T) {
	cases := []struct {
		name  string
		from  models.BookStatus
		event Event
	}{
		{"issue an issued book", models.StatusIssued, EventRequestIssue},
		{"issue a requested book", models.StatusIssueRequested, EventRequestIssue},
		{"issue a lost book", models.StatusLost, EventRequestIssue},
		{"issue a book in maintenance", models.StatusMaintenance, EventAdminIssue},
		{"renew a return_requested book", models.StatusReturnRequested, EventRenew},
		{"approve issue on available", models.StatusAvailable, EventApproveIssue},
		{"approve return without request", models.StatusIssued, EventApproveReturn},
		{"approve donation on available", models.StatusAvailable, EventApproveDonation},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Next(tc.from, tc.event)
			require.ErrorIs(t, err, ErrInvalidTransition)
		})
	}
}

func TestNextUnknownEvent(t *testing.T) {
	_, err := Next(models.StatusAvailable, Event("burn"))
	require.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestClassifyCalendarDayBoundaries(t *testing.T) {
	periods := DefaultPeriods()
	now := time.Date(2026, time.March, 10, 15, 30, 0, 0, time.UTC)

	cases := []struct {
		name string
		due  time.Time
		want LoanState
	}{
		{"due yesterday is overdue", now.AddDate(0, 0, -1), LoanStateOverdue},
		{"due earlier today is due_soon", time.Date(2026, time.March, 10, 1, 0, 0, 0, time.UTC), LoanStateDueSoon},
		{"due in three days is due_soon", now.AddDate(0, 0, 3), LoanStateDueSoon},
		{"due in four days is issued", now.AddDate(0, 0, 4), LoanStateIssued},
		{"time of day does not matter", time.Date(2026, time.March, 13, 23, 59, 59, 0, time.UTC), LoanStateDueSoon},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, periods.Classify(tc.due, now))
		})
	}
}

func TestCanRenew(t *testing.T) {
	periods := DefaultPeriods()
	now := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)

	require.False(t, periods.CanRenew(now.AddDate(0, 0, -1), now))
	require.True(t, periods.CanRenew(now, now))
	require.True(t, periods.CanRenew(now.AddDate(0, 0, 2), now))
	require.True(t, periods.CanRenew(now.AddDate(0, 0, 10), now))
}

func TestDueDateArithmetic(t *testing.T) {
	periods := DefaultPeriods()
	issuedAt := time.Date(2026, time.January, 5, 12, 0, 0, 0, time.UTC)

	due := periods.DueDateOnIssue(issuedAt)
	require.Equal(t, issuedAt.AddDate(0, 0, 14), due)

	renewed := periods.RenewedDueDate(due)
	require.Equal(t, due.AddDate(0, 0, 7), renewed)
}
