package models

import "time"

// BookStatus captures the lifecycle state of a volume.
type BookStatus string

const (
	StatusAvailable       BookStatus = "available"
	StatusIssueRequested  BookStatus = "issue_requested"
	StatusIssued          BookStatus = "issued"
	StatusReturnRequested BookStatus = "return_requested"
	StatusDonatedPending  BookStatus = "donated_pending_approval"
	StatusDonatedApproved BookStatus = "donated_approved"
	StatusLost            BookStatus = "lost"
	StatusMaintenance     BookStatus = "maintenance"
)

// IssueDetails holds the live loan state of a book. Present only while the
// book is in an issue-related status; cleared entirely when the book returns
// to available.
type IssueDetails struct {
	UserID     string     `json:"userId"`
	UserName   string     `json:"userName"`
	IssuedAt   time.Time  `json:"issuedAt"`
	DueDate    *time.Time `json:"dueDate,omitempty"`
	ReturnedAt *time.Time `json:"returnedAt,omitempty"`
}

// DonatedBy records donation provenance. Set once at donation submission and
// never cleared, even after approval.
type DonatedBy struct {
	UserID   string    `json:"userId"`
	UserName string    `json:"userName"`
	Time     time.Time `json:"time"`
}

// Book represents one physical (or donated) volume in the catalog.
type Book struct {
	ID            string     `db:"id" json:"id"`
	Title         string     `db:"title" json:"title"`
	Author        string     `db:"author" json:"author"`
	ISBN          string     `db:"isbn" json:"isbn"`
	Category      string     `db:"category" json:"category"`
	PublishedDate string     `db:"published_date" json:"publishedDate"`
	Description   string     `db:"description" json:"description"`
	CoverURL      string     `db:"cover_url" json:"coverUrl"`
	Status        BookStatus `db:"status" json:"status"`

	IssuedTo     *string    `db:"issued_to" json:"-"`
	IssuedToName *string    `db:"issued_to_name" json:"-"`
	IssuedAt     *time.Time `db:"issued_at" json:"-"`
	DueDate      *time.Time `db:"due_date" json:"-"`
	ReturnedAt   *time.Time `db:"returned_at" json:"-"`

	DonorID   *string    `db:"donor_id" json:"-"`
	DonorName *string    `db:"donor_name" json:"-"`
	DonatedAt *time.Time `db:"donated_at" json:"-"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`

	IssueDetails *IssueDetails `db:"-" json:"issueDetails,omitempty"`
	DonatedBy    *DonatedBy    `db:"-" json:"donatedBy,omitempty"`
}

// HydrateNested folds the flat loan/donation columns into the nested JSON shapes.
func (b *Book) HydrateNested() {
	if b.IssuedTo != nil && b.IssuedAt != nil {
		details := &IssueDetails{
			UserID:     *b.IssuedTo,
			IssuedAt:   *b.IssuedAt,
			DueDate:    b.DueDate,
			ReturnedAt: b.ReturnedAt,
		}
		if b.IssuedToName != nil {
			details.UserName = *b.IssuedToName
		}
		b.IssueDetails = details
	} else {
		b.IssueDetails = nil
	}

	if b.DonorID != nil && b.DonatedAt != nil {
		donated := &DonatedBy{
			UserID: *b.DonorID,
			Time:   *b.DonatedAt,
		}
		if b.DonorName != nil {
			donated.UserName = *b.DonorName
		}
		b.DonatedBy = donated
	} else {
		b.DonatedBy = nil
	}
}

// BookFilter constrains catalog listing queries.
type BookFilter struct {
	Status   []BookStatus
	HolderID string
	DonorID  string
	Search   string
	SortBy   string
	Limit    int
	Offset   int
}
