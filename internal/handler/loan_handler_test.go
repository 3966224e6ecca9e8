package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/libops/library-api/internal/lifecycle"
	"github.com/libops/library-api/internal/middleware"
	"github.com/libops/library-api/internal/models"
	"github.com/libops/library-api/internal/repository"
	"github.com/libops/library-api/internal/service"
	"github.com/libops/library-api/pkg/response"
)

type memoryBooks struct {
	books map[string]*models.Book
}

func (m *memoryBooks) GetByID(_ context.Context, id string) (*models.Book, error) {
	book, ok := m.books[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *book
	copied.HydrateNested()
	return &copied, nil
}

func (m *memoryBooks) ApplyTransition(_ context.Context, params repository.TransitionParams) error {
	book, ok := m.books[params.ID]
	if !ok {
		return sql.ErrNoRows
	}
	permitted := false
	for _, from := range params.From {
		if from == book.Status {
			permitted = true
		}
	}
	if !permitted {
		return sql.ErrNoRows
	}
	book.Status = params.To
	if params.SetIssue != nil {
		details := params.SetIssue
		book.IssuedTo = &details.UserID
		book.IssuedToName = &details.UserName
		issuedAt := details.IssuedAt
		book.IssuedAt = &issuedAt
		book.DueDate = details.DueDate
	}
	if params.ClearIssue {
		book.IssuedTo, book.IssuedToName, book.IssuedAt, book.DueDate, book.ReturnedAt = nil, nil, nil, nil, nil
	}
	if params.SetDue != nil {
		due := *params.SetDue
		book.DueDate = &due
	}
	return nil
}

type memoryLedger struct {
	entries []models.Transaction
}

func (m *memoryLedger) Append(_ context.Context, tx *models.Transaction) error {
	m.entries = append(m.entries, *tx)
	return nil
}

type memoryUsers struct{}

func (memoryUsers) FindByID(_ context.Context, _ string) (*models.User, error) {
	return nil, sql.ErrNoRows
}

func newLoanHandlerFixture(books ...*models.Book) (*LoanHandler, *memoryBooks, *memoryLedger) {
	store := &memoryBooks{books: make(map[string]*models.Book)}
	for _, book := range books {
		store.books[book.ID] = book
	}
	ledger := &memoryLedger{}
	loans := service.NewLoanService(store, ledger, memoryUsers{}, lifecycle.DefaultPeriods(), zap.NewNop())
	return NewLoanHandler(loans), store, ledger
}

func testContext(t *testing.T, method, path string, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Request = httptest.NewRequest(method, path, nil)
	if claims != nil {
		c.Set(middleware.ClaimsKey, claims)
	}
	return c, recorder
}

func memberClaims() *models.JWTClaims {
	return &models.JWTClaims{
		UserID:   "user-1",
		Role:     models.RoleUser,
		Email:    "ada@example.com",
		FullName: "Ada Lovelace",
	}
}

func decodeEnvelope(t *testing.T, recorder *httptest.ResponseRecorder) response.Envelope {
	t.Helper()
	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))
	return envelope
}

func TestLoanHandlerRequestIssue(t *testing.T) {
	h, store, ledger := newLoanHandlerFixture(&models.Book{
		ID:     "book-1",
		Title:  "SICP",
		Status: models.StatusAvailable,
	})

	c, recorder := testContext(t, http.MethodPost, "/books/book-1/issue-request", memberClaims())
	c.Params = gin.Params{{Key: "id", Value: "book-1"}}
	h.RequestIssue(c)

	require.Equal(t, http.StatusOK, recorder.Code)
	envelope := decodeEnvelope(t, recorder)
	require.Nil(t, envelope.Error)

	payload, err := json.Marshal(envelope.Data)
	require.NoError(t, err)
	var book models.Book
	require.NoError(t, json.Unmarshal(payload, &book))
	require.Equal(t, models.StatusIssueRequested, book.Status)
	require.NotNil(t, book.IssueDetails)
	require.Equal(t, "user-1", book.IssueDetails.UserID)

	require.Equal(t, models.StatusIssueRequested, store.books["book-1"].Status)
	require.Len(t, ledger.entries, 1)
	require.Equal(t, models.TxIssueRequest, ledger.entries[0].Type)
}

func TestLoanHandlerRequestIssueConflict(t *testing.T) {
	holder := "user-2"
	holderName := "Grace Hopper"
	issuedAt := time.Now().UTC().AddDate(0, 0, -1)
	due := issuedAt.AddDate(0, 0, 14)
	h, _, ledger := newLoanHandlerFixture(&models.Book{
		ID:           "book-1",
		Title:        "SICP",
		Status:       models.StatusIssued,
		IssuedTo:     &holder,
		IssuedToName: &holderName,
		IssuedAt:     &issuedAt,
		DueDate:      &due,
	})

	c, recorder := testContext(t, http.MethodPost, "/books/book-1/issue-request", memberClaims())
	c.Params = gin.Params{{Key: "id", Value: "book-1"}}
	h.RequestIssue(c)

	require.Equal(t, http.StatusConflict, recorder.Code)
	envelope := decodeEnvelope(t, recorder)
	require.NotNil(t, envelope.Error)
	require.Equal(t, "BOOK_UNAVAILABLE", envelope.Error.Code)
	require.Empty(t, ledger.entries)
}

func TestLoanHandlerUnauthenticated(t *testing.T) {
	h, _, _ := newLoanHandlerFixture()

	c, recorder := testContext(t, http.MethodPost, "/books/book-1/issue-request", nil)
	c.Params = gin.Params{{Key: "id", Value: "book-1"}}
	h.RequestIssue(c)

	require.Equal(t, http.StatusUnauthorized, recorder.Code)
}
