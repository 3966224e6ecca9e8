package dto

// DonationRequest offers a book to the library.
type DonationRequest struct {
	Title         string `json:"title" validate:"required,max=300"`
	Author        string `json:"author" validate:"required,max=200"`
	ISBN          string `json:"isbn" validate:"max=20"`
	Category      string `json:"category" validate:"max=100"`
	PublishedDate string `json:"publishedDate" validate:"max=30"`
	Description   string `json:"description" validate:"max=2000"`
	CoverURL      string `json:"coverUrl" validate:"omitempty,url"`
}
