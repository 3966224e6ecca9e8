package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/libops/library-api/internal/models"
)

const bookColumns = `id, title, author, isbn, category, published_date, description, cover_url, status,
       issued_to, issued_to_name, issued_at, due_date, returned_at,
       donor_id, donor_name, donated_at, created_at, updated_at`

// BookRepository persists catalog records and applies lifecycle writes.
type BookRepository struct {
	db *sqlx.DB
}

// NewBookRepository constructs the repository.
func NewBookRepository(db *sqlx.DB) *BookRepository {
	return &BookRepository{db: db}
}

// Create inserts a new book row.
func (r *BookRepository) Create(ctx context.Context, book *models.Book) error {
	if book.ID == "" {
		book.ID = uuid.NewString()
	}
	if book.Status == "" {
		book.Status = models.StatusAvailable
	}
	now := time.Now().UTC()
	if book.CreatedAt.IsZero() {
		book.CreatedAt = now
	}
	book.UpdatedAt = now

	const query = `INSERT INTO books
	(id, title, author, isbn, category, published_date, description, cover_url, status,
	 issued_to, issued_to_name, issued_at, due_date, returned_at,
	 donor_id, donor_name, donated_at, created_at, updated_at)
	VALUES (:id, :title, :author, :isbn, :category, :published_date, :description, :cover_url, :status,
	 :issued_to, :issued_to_name, :issued_at, :due_date, :returned_at,
	 :donor_id, :donor_name, :donated_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, book); err != nil {
		return fmt.Errorf("create book: %w", err)
	}
	return nil
}

// GetByID fetches a book by identifier.
func (r *BookRepository) GetByID(ctx context.Context, id string) (*models.Book, error) {
	query := fmt.Sprintf(`SELECT %s FROM books WHERE id = $1 LIMIT 1`, bookColumns)
	var book models.Book
	if err := r.db.GetContext(ctx, &book, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get book by id: %w", err)
	}
	book.HydrateNested()
	return &book, nil
}

// List returns books matching the filter.
func (r *BookRepository) List(ctx context.Context, filter models.BookFilter) ([]models.Book, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 6)
	builder.WriteString(fmt.Sprintf("SELECT %s FROM books", bookColumns))

	conditions := make([]string, 0, 4)
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.HolderID != "" {
		args = append(args, filter.HolderID)
		conditions = append(conditions, fmt.Sprintf("issued_to = $%d", len(args)))
	}
	if filter.DonorID != "" {
		args = append(args, filter.DonorID)
		conditions = append(conditions, fmt.Sprintf("donor_id = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("(LOWER(title) LIKE $%d OR LOWER(author) LIKE $%d)", len(args), len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}

	switch filter.SortBy {
	case "due_date":
		builder.WriteString(" ORDER BY due_date ASC NULLS LAST")
	case "donated_at":
		builder.WriteString(" ORDER BY donated_at DESC NULLS LAST")
	default:
		builder.WriteString(" ORDER BY title ASC")
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var books []models.Book
	if err := r.db.SelectContext(ctx, &books, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	for i := range books {
		books[i].HydrateNested()
	}
	return books, nil
}

// UpdateDetails persists catalog metadata edits without touching loan state.
func (r *BookRepository) UpdateDetails(ctx context.Context, book *models.Book) error {
	const query = `UPDATE books SET
		title = :title, author = :author, isbn = :isbn, category = :category,
		published_date = :published_date, description = :description, cover_url = :cover_url,
		updated_at = :updated_at
	WHERE id = :id`
	book.UpdatedAt = time.Now().UTC()
	result, err := r.db.NamedExecContext(ctx, query, book)
	if err != nil {
		return fmt.Errorf("update book details: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check book update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// TransitionParams groups the columns a lifecycle write may touch. The From
// statuses guard the UPDATE: a concurrent transition that already moved the
// book out of the expected status surfaces as sql.ErrNoRows, not a lost update.
type TransitionParams struct {
	ID         string
	From       []models.BookStatus
	To         models.BookStatus
	SetIssue   *models.IssueDetails
	ClearIssue bool
	SetDue     *time.Time
}

// ApplyTransition performs a single conditional status write.
func (r *BookRepository) ApplyTransition(ctx context.Context, params TransitionParams) error {
	if params.ID == "" || params.To == "" || len(params.From) == 0 {
		return fmt.Errorf("transition requires id, target status, and expected statuses")
	}

	args := []interface{}{params.To, time.Now().UTC()}
	setParts := []string{"status = $1", "updated_at = $2"}

	if params.SetIssue != nil {
		details := params.SetIssue
		args = append(args, details.UserID)
		setParts = append(setParts, fmt.Sprintf("issued_to = $%d", len(args)))
		args = append(args, details.UserName)
		setParts = append(setParts, fmt.Sprintf("issued_to_name = $%d", len(args)))
		args = append(args, details.IssuedAt)
		setParts = append(setParts, fmt.Sprintf("issued_at = $%d", len(args)))
		args = append(args, details.DueDate)
		setParts = append(setParts, fmt.Sprintf("due_date = $%d", len(args)))
		args = append(args, details.ReturnedAt)
		setParts = append(setParts, fmt.Sprintf("returned_at = $%d", len(args)))
	}
	if params.ClearIssue {
		setParts = append(setParts,
			"issued_to = NULL", "issued_to_name = NULL", "issued_at = NULL", "due_date = NULL", "returned_at = NULL")
	}
	if params.SetDue != nil {
		args = append(args, *params.SetDue)
		setParts = append(setParts, fmt.Sprintf("due_date = $%d", len(args)))
	}

	args = append(args, params.ID)
	idPos := len(args)
	fromPlaceholders := make([]string, len(params.From))
	for i, status := range params.From {
		args = append(args, status)
		fromPlaceholders[i] = fmt.Sprintf("$%d", len(args))
	}

	query := fmt.Sprintf("UPDATE books SET %s WHERE id = $%d AND status IN (%s)",
		strings.Join(setParts, ", "), idPos, strings.Join(fromPlaceholders, ","))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("apply book transition: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check transition rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a book record. Donation rejection is the only workflow
// delete; everything else is an explicit admin action.
func (r *BookRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM books WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check book delete rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
