package models

import "time"

// TransactionType enumerates lifecycle events recorded in the ledger.
type TransactionType string

const (
	TxIssue         TransactionType = "issue"
	TxIssueRequest  TransactionType = "issue_request"
	TxIssueReject   TransactionType = "issue_reject"
	TxReturn        TransactionType = "return"
	TxReturnRequest TransactionType = "return_request"
	TxReturnReject  TransactionType = "return_reject"
	TxDonateRequest TransactionType = "donate_request"
	TxDonateApprove TransactionType = "donate_approve"
	TxDonateReject  TransactionType = "donate_reject"
	TxRenewal       TransactionType = "renewal"
	TxFinePaid      TransactionType = "fine_paid"
)

// Transaction is an immutable audit record of one lifecycle event. Rows are
// inserted once and never updated or deleted; the ledger is the sole history
// of circulation activity. The book title is denormalized so entries survive
// book deletion (donation rejection).
type Transaction struct {
	ID         string          `db:"id" json:"id"`
	BookID     string          `db:"book_id" json:"bookId"`
	BookTitle  string          `db:"book_title" json:"bookTitle"`
	UserID     string          `db:"user_id" json:"userId"`
	UserName   string          `db:"user_name" json:"userName"`
	Type       TransactionType `db:"type" json:"type"`
	DueDate    *time.Time      `db:"due_date" json:"dueDate,omitempty"`
	Note       *string         `db:"note" json:"note,omitempty"`
	FineAmount *float64        `db:"fine_amount" json:"fineAmount,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"createdAt"`
}

// TransactionFilter constrains ledger queries.
type TransactionFilter struct {
	BookID string
	UserID string
	Types  []TransactionType
	Limit  int
}
