package dto

// AdminIssueRequest issues a book directly to a user.
type AdminIssueRequest struct {
	UserID string `json:"userId" validate:"required"`
}

// RejectRequest optionally explains a rejected request.
type RejectRequest struct {
	Note string `json:"note" validate:"max=500"`
}

// FinePaidRequest records a fine settlement against a book.
type FinePaidRequest struct {
	Amount float64 `json:"amount" validate:"required,gt=0"`
	Note   string  `json:"note" validate:"max=500"`
}
