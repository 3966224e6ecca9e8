package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/libops/library-api/internal/dto"
	"github.com/libops/library-api/internal/lifecycle"
	"github.com/libops/library-api/internal/models"
	"github.com/libops/library-api/internal/service"
	appErrors "github.com/libops/library-api/pkg/errors"
	"github.com/libops/library-api/pkg/response"
)

// BookHandler exposes catalog reads and admin catalog management.
type BookHandler struct {
	catalog *service.CatalogService
	loans   *service.LoanService
}

// NewBookHandler constructs the handler.
func NewBookHandler(catalog *service.CatalogService, loans *service.LoanService) *BookHandler {
	return &BookHandler{catalog: catalog, loans: loans}
}

// List godoc
// @Summary List catalog books
// @Tags books
// @Produce json
// @Security BearerAuth
// @Param status query string false "Comma separated status filter"
// @Param search query string false "Title or author substring"
// @Param sort query string false "Sort key: title, due_date, donated_at"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} response.Envelope{data=[]dto.BookResponse}
// @Router /books [get]
func (h *BookHandler) List(c *gin.Context) {
	filter := models.BookFilter{
		Search: c.Query("search"),
		SortBy: c.Query("sort"),
		Limit:  intQuery(c, "limit"),
		Offset: intQuery(c, "offset"),
	}
	if raw := c.Query("status"); raw != "" {
		for _, status := range strings.Split(raw, ",") {
			filter.Status = append(filter.Status, models.BookStatus(strings.TrimSpace(status)))
		}
	}

	books, err := h.catalog.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewBookResponses(books, h.loans.StateOf), nil)
}

// Get godoc
// @Summary Get one book
// @Tags books
// @Produce json
// @Security BearerAuth
// @Param id path string true "Book ID"
// @Success 200 {object} response.Envelope{data=dto.BookResponse}
// @Failure 404 {object} response.Envelope
// @Router /books/{id} [get]
func (h *BookHandler) Get(c *gin.Context) {
	book, err := h.catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewBookResponse(book, h.loans.StateOf(book)), nil)
}

// ListOverdue godoc
// @Summary List overdue loans
// @Tags books
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope{data=[]dto.BookResponse}
// @Router /books/overdue [get]
func (h *BookHandler) ListOverdue(c *gin.Context) {
	h.listByState(c, lifecycle.LoanStateOverdue)
}

// ListDueSoon godoc
// @Summary List loans due within the warning window
// @Tags books
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope{data=[]dto.BookResponse}
// @Router /books/due-soon [get]
func (h *BookHandler) ListDueSoon(c *gin.Context) {
	h.listByState(c, lifecycle.LoanStateDueSoon)
}

func (h *BookHandler) listByState(c *gin.Context, state lifecycle.LoanState) {
	books, err := h.catalog.ListByLoanState(c.Request.Context(), state)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewBookResponses(books, h.loans.StateOf), nil)
}

// Create godoc
// @Summary Add a book to the catalog
// @Tags books
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.BookRequest true "Book metadata"
// @Success 201 {object} response.Envelope{data=dto.BookResponse}
// @Failure 400 {object} response.Envelope
// @Router /books [post]
func (h *BookHandler) Create(c *gin.Context) {
	req, ok := bindBookRequest(c)
	if !ok {
		return
	}

	book, err := h.catalog.Create(c.Request.Context(), bookInput(req))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.NewBookResponse(book, ""))
}

// Update godoc
// @Summary Edit catalog metadata
// @Tags books
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Book ID"
// @Param payload body dto.BookRequest true "Book metadata"
// @Success 200 {object} response.Envelope{data=dto.BookResponse}
// @Failure 404 {object} response.Envelope
// @Router /books/{id} [put]
func (h *BookHandler) Update(c *gin.Context) {
	req, ok := bindBookRequest(c)
	if !ok {
		return
	}

	book, err := h.catalog.Update(c.Request.Context(), c.Param("id"), bookInput(req))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewBookResponse(book, h.loans.StateOf(book)), nil)
}

// MarkStatus godoc
// @Summary Set a shelf status override
// @Tags books
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Book ID"
// @Param payload body dto.MarkStatusRequest true "Target status"
// @Success 200 {object} response.Envelope{data=dto.BookResponse}
// @Failure 400 {object} response.Envelope
// @Router /books/{id}/status [patch]
func (h *BookHandler) MarkStatus(c *gin.Context) {
	var req dto.MarkStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	if err := dto.Validate(req); err != nil {
		response.Error(c, err)
		return
	}

	book, err := h.catalog.MarkStatus(c.Request.Context(), c.Param("id"), models.BookStatus(req.Status))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewBookResponse(book, h.loans.StateOf(book)), nil)
}

// Delete godoc
// @Summary Remove a book from the catalog
// @Tags books
// @Produce json
// @Security BearerAuth
// @Param id path string true "Book ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /books/{id} [delete]
func (h *BookHandler) Delete(c *gin.Context) {
	if err := h.catalog.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListMine godoc
// @Summary List books issued to the caller
// @Tags books
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope{data=[]dto.BookResponse}
// @Router /me/books [get]
func (h *BookHandler) ListMine(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	books, err := h.catalog.List(c.Request.Context(), models.BookFilter{
		HolderID: actor.ID,
		SortBy:   "due_date",
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewBookResponses(books, h.loans.StateOf), nil)
}

// ListMyDonations godoc
// @Summary List books donated by the caller
// @Tags books
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope{data=[]dto.BookResponse}
// @Router /me/donations [get]
func (h *BookHandler) ListMyDonations(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	books, err := h.catalog.List(c.Request.Context(), models.BookFilter{
		DonorID: actor.ID,
		SortBy:  "donated_at",
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewBookResponses(books, h.loans.StateOf), nil)
}

func bindBookRequest(c *gin.Context) (dto.BookRequest, bool) {
	var req dto.BookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return req, false
	}
	if err := dto.Validate(req); err != nil {
		response.Error(c, err)
		return req, false
	}
	return req, true
}

func bookInput(req dto.BookRequest) service.BookInput {
	return service.BookInput{
		Title:         req.Title,
		Author:        req.Author,
		ISBN:          req.ISBN,
		Category:      req.Category,
		PublishedDate: req.PublishedDate,
		Description:   req.Description,
		CoverURL:      req.CoverURL,
	}
}

func intQuery(c *gin.Context, key string) int {
	raw := c.Query(key)
	if raw == "" {
		return 0
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return value
}
