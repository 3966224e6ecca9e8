package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/libops/library-api/internal/models"
	"github.com/libops/library-api/internal/service"
	appErrors "github.com/libops/library-api/pkg/errors"
	"github.com/libops/library-api/pkg/response"
)

// LedgerHandler exposes read access to the circulation ledger.
type LedgerHandler struct {
	ledger *service.LedgerService
}

// NewLedgerHandler constructs the handler.
func NewLedgerHandler(ledger *service.LedgerService) *LedgerHandler {
	return &LedgerHandler{ledger: ledger}
}

// List godoc
// @Summary List ledger entries
// @Tags transactions
// @Produce json
// @Security BearerAuth
// @Param bookId query string false "Filter by book"
// @Param userId query string false "Filter by user (admins only)"
// @Param type query string false "Comma separated transaction types"
// @Param limit query int false "Maximum entries"
// @Success 200 {object} response.Envelope{data=[]models.Transaction}
// @Router /transactions [get]
func (h *LedgerHandler) List(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter := models.TransactionFilter{
		BookID: c.Query("bookId"),
		UserID: c.Query("userId"),
		Limit:  intQuery(c, "limit"),
	}
	if raw := c.Query("type"); raw != "" {
		for _, txType := range strings.Split(raw, ",") {
			filter.Types = append(filter.Types, models.TransactionType(strings.TrimSpace(txType)))
		}
	}

	transactions, err := h.ledger.List(c.Request.Context(), filter, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, transactions, nil)
}

// ForBook godoc
// @Summary List a book's circulation history
// @Tags transactions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Book ID"
// @Param limit query int false "Maximum entries"
// @Success 200 {object} response.Envelope{data=[]models.Transaction}
// @Router /books/{id}/transactions [get]
func (h *LedgerHandler) ForBook(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	transactions, err := h.ledger.ForBook(c.Request.Context(), c.Param("id"), intQuery(c, "limit"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, transactions, nil)
}

// Mine godoc
// @Summary List the caller's activity
// @Tags transactions
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Maximum entries"
// @Success 200 {object} response.Envelope{data=[]models.Transaction}
// @Router /me/transactions [get]
func (h *LedgerHandler) Mine(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	transactions, err := h.ledger.ForUser(c.Request.Context(), actor.ID, intQuery(c, "limit"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, transactions, nil)
}
