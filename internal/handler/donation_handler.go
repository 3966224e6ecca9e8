package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/libops/library-api/internal/dto"
	"github.com/libops/library-api/internal/service"
	appErrors "github.com/libops/library-api/pkg/errors"
	"github.com/libops/library-api/pkg/response"
)

// DonationHandler exposes the donation intake and review endpoints.
type DonationHandler struct {
	donations *service.DonationService
	loans     *service.LoanService
}

// NewDonationHandler constructs the handler.
func NewDonationHandler(donations *service.DonationService, loans *service.LoanService) *DonationHandler {
	return &DonationHandler{donations: donations, loans: loans}
}

// Donate godoc
// @Summary Offer a book to the library
// @Tags donations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.DonationRequest true "Book metadata"
// @Success 201 {object} response.Envelope{data=dto.BookResponse}
// @Failure 400 {object} response.Envelope
// @Router /donations [post]
func (h *DonationHandler) Donate(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.DonationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	if err := dto.Validate(req); err != nil {
		response.Error(c, err)
		return
	}

	book, err := h.donations.Donate(c.Request.Context(), service.DonationInput{
		Title:         req.Title,
		Author:        req.Author,
		ISBN:          req.ISBN,
		Category:      req.Category,
		PublishedDate: req.PublishedDate,
		Description:   req.Description,
		CoverURL:      req.CoverURL,
	}, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.NewBookResponse(book, ""))
}

// Approve godoc
// @Summary Accept a pending donation
// @Tags donations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Book ID"
// @Success 200 {object} response.Envelope{data=dto.BookResponse}
// @Failure 409 {object} response.Envelope
// @Router /books/{id}/donation-approve [post]
func (h *DonationHandler) Approve(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	book, err := h.donations.Approve(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewBookResponse(book, h.loans.StateOf(book)), nil)
}

// Reject godoc
// @Summary Decline a pending donation
// @Tags donations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Book ID"
// @Param payload body dto.RejectRequest false "Optional note"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /books/{id}/donation-reject [post]
func (h *DonationHandler) Reject(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	note := ""
	if c.Request.ContentLength > 0 {
		var req dto.RejectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
			return
		}
		if err := dto.Validate(req); err != nil {
			response.Error(c, err)
			return
		}
		note = req.Note
	}

	if err := h.donations.Reject(c.Request.Context(), c.Param("id"), actor, note); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
