package dto

import (
	"github.com/libops/library-api/internal/lifecycle"
	"github.com/libops/library-api/internal/models"
)

// BookRequest carries catalog metadata for create and update calls.
type BookRequest struct {
	Title         string `json:"title" validate:"required,max=300"`
	Author        string `json:"author" validate:"required,max=200"`
	ISBN          string `json:"isbn" validate:"max=20"`
	Category      string `json:"category" validate:"max=100"`
	PublishedDate string `json:"publishedDate" validate:"max=30"`
	Description   string `json:"description" validate:"max=2000"`
	CoverURL      string `json:"coverUrl" validate:"omitempty,url"`
}

// MarkStatusRequest sets an administrative shelf status.
type MarkStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=available lost maintenance"`
}

// BookResponse decorates a book with its derived loan state. The loanState
// field appears only for books carrying a due date.
type BookResponse struct {
	*models.Book
	LoanState lifecycle.LoanState `json:"loanState,omitempty"`
}

// NewBookResponse wraps a book with its classification.
func NewBookResponse(book *models.Book, state lifecycle.LoanState) BookResponse {
	return BookResponse{Book: book, LoanState: state}
}

// NewBookResponses wraps a listing, classifying each entry with the
// provided function.
func NewBookResponses(books []models.Book, classify func(*models.Book) lifecycle.LoanState) []BookResponse {
	responses := make([]BookResponse, len(books))
	for i := range books {
		responses[i] = NewBookResponse(&books[i], classify(&books[i]))
	}
	return responses
}
