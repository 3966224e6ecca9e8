package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/libops/library-api/internal/dto"
	"github.com/libops/library-api/internal/models"
	"github.com/libops/library-api/internal/service"
	appErrors "github.com/libops/library-api/pkg/errors"
	"github.com/libops/library-api/pkg/response"
)

// LoanHandler exposes the issue, return and renewal workflow endpoints.
type LoanHandler struct {
	loans *service.LoanService
}

// NewLoanHandler constructs the handler.
func NewLoanHandler(loans *service.LoanService) *LoanHandler {
	return &LoanHandler{loans: loans}
}

type loanOp func(c *gin.Context, bookID string, actor service.Actor) (*models.Book, error)

func (h *LoanHandler) run(c *gin.Context, op loanOp) {
	actor, ok := actorFrom(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	book, err := op(c, c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewBookResponse(book, h.loans.StateOf(book)), nil)
}

func (h *LoanHandler) bindNote(c *gin.Context) (string, bool) {
	if c.Request.ContentLength == 0 {
		return "", true
	}
	var req dto.RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return "", false
	}
	if err := dto.Validate(req); err != nil {
		response.Error(c, err)
		return "", false
	}
	return req.Note, true
}

// RequestIssue godoc
// @Summary Request to borrow a book
// @Tags loans
// @Produce json
// @Security BearerAuth
// @Param id path string true "Book ID"
// @Success 200 {object} response.Envelope{data=dto.BookResponse}
// @Failure 409 {object} response.Envelope
// @Router /books/{id}/issue-request [post]
func (h *LoanHandler) RequestIssue(c *gin.Context) {
	h.run(c, func(c *gin.Context, bookID string, actor service.Actor) (*models.Book, error) {
		return h.loans.RequestIssue(c.Request.Context(), bookID, actor)
	})
}

// ApproveIssue godoc
// @Summary Approve a borrow request
// @Tags loans
// @Produce json
// @Security BearerAuth
// @Param id path string true "Book ID"
// @Success 200 {object} response.Envelope{data=dto.BookResponse}
// @Failure 409 {object} response.Envelope
// @Router /books/{id}/issue-approve [post]
func (h *LoanHandler) ApproveIssue(c *gin.Context) {
	h.run(c, func(c *gin.Context, bookID string, actor service.Actor) (*models.Book, error) {
		return h.loans.ApproveIssue(c.Request.Context(), bookID, actor)
	})
}

// RejectIssue godoc
// @Summary Reject a borrow request
// @Tags loans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Book ID"
// @Param payload body dto.RejectRequest false "Optional note"
// @Success 200 {object} response.Envelope{data=dto.BookResponse}
// @Router /books/{id}/issue-reject [post]
func (h *LoanHandler) RejectIssue(c *gin.Context) {
	note, ok := h.bindNote(c)
	if !ok {
		return
	}
	h.run(c, func(c *gin.Context, bookID string, actor service.Actor) (*models.Book, error) {
		return h.loans.RejectIssue(c.Request.Context(), bookID, actor, note)
	})
}

// Renew godoc
// @Summary Renew an active loan
// @Tags loans
// @Produce json
// @Security BearerAuth
// @Param id path string true "Book ID"
// @Success 200 {object} response.Envelope{data=dto.BookResponse}
// @Failure 409 {object} response.Envelope
// @Router /books/{id}/renew [post]
func (h *LoanHandler) Renew(c *gin.Context) {
	h.run(c, func(c *gin.Context, bookID string, actor service.Actor) (*models.Book, error) {
		return h.loans.Renew(c.Request.Context(), bookID, actor)
	})
}

// RequestReturn godoc
// @Summary Request to return a borrowed book
// @Tags loans
// @Produce json
// @Security BearerAuth
// @Param id path string true "Book ID"
// @Success 200 {object} response.Envelope{data=dto.BookResponse}
// @Router /books/{id}/return-request [post]
func (h *LoanHandler) RequestReturn(c *gin.Context) {
	h.run(c, func(c *gin.Context, bookID string, actor service.Actor) (*models.Book, error) {
		return h.loans.RequestReturn(c.Request.Context(), bookID, actor)
	})
}

// ApproveReturn godoc
// @Summary Approve a return request
// @Tags loans
// @Produce json
// @Security BearerAuth
// @Param id path string true "Book ID"
// @Success 200 {object} response.Envelope{data=dto.BookResponse}
// @Router /books/{id}/return-approve [post]
func (h *LoanHandler) ApproveReturn(c *gin.Context) {
	h.run(c, func(c *gin.Context, bookID string, actor service.Actor) (*models.Book, error) {
		return h.loans.ApproveReturn(c.Request.Context(), bookID, actor)
	})
}

// RejectReturn godoc
// @Summary Reject a return request
// @Tags loans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Book ID"
// @Param payload body dto.RejectRequest false "Optional note"
// @Success 200 {object} response.Envelope{data=dto.BookResponse}
// @Router /books/{id}/return-reject [post]
func (h *LoanHandler) RejectReturn(c *gin.Context) {
	note, ok := h.bindNote(c)
	if !ok {
		return
	}
	h.run(c, func(c *gin.Context, bookID string, actor service.Actor) (*models.Book, error) {
		return h.loans.RejectReturn(c.Request.Context(), bookID, actor, note)
	})
}

// AdminIssue godoc
// @Summary Issue a book directly to a user
// @Tags loans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Book ID"
// @Param payload body dto.AdminIssueRequest true "Target user"
// @Success 200 {object} response.Envelope{data=dto.BookResponse}
// @Failure 409 {object} response.Envelope
// @Router /books/{id}/issue [post]
func (h *LoanHandler) AdminIssue(c *gin.Context) {
	var req dto.AdminIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	if err := dto.Validate(req); err != nil {
		response.Error(c, err)
		return
	}
	h.run(c, func(c *gin.Context, bookID string, actor service.Actor) (*models.Book, error) {
		return h.loans.AdminIssue(c.Request.Context(), bookID, req.UserID, actor)
	})
}

// AdminReturn godoc
// @Summary Take a book back directly
// @Tags loans
// @Produce json
// @Security BearerAuth
// @Param id path string true "Book ID"
// @Success 200 {object} response.Envelope{data=dto.BookResponse}
// @Router /books/{id}/return [post]
func (h *LoanHandler) AdminReturn(c *gin.Context) {
	h.run(c, func(c *gin.Context, bookID string, actor service.Actor) (*models.Book, error) {
		return h.loans.AdminReturn(c.Request.Context(), bookID, actor)
	})
}

// RecordFine godoc
// @Summary Record a fine payment
// @Tags loans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Book ID"
// @Param payload body dto.FinePaidRequest true "Fine details"
// @Success 201 {object} response.Envelope{data=models.Transaction}
// @Failure 400 {object} response.Envelope
// @Router /books/{id}/fine [post]
func (h *LoanHandler) RecordFine(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.FinePaidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	if err := dto.Validate(req); err != nil {
		response.Error(c, err)
		return
	}

	tx, err := h.loans.RecordFinePaid(c.Request.Context(), c.Param("id"), req.Amount, req.Note, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, tx)
}
