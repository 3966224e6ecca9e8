package dto

// ReportRequest asks for an asynchronous ledger export.
type ReportRequest struct {
	Format string `json:"format" validate:"required,oneof=csv pdf"`
	BookID string `json:"bookId"`
	UserID string `json:"userId"`
	Limit  int    `json:"limit" validate:"omitempty,min=1,max=500"`
}
