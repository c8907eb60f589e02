// Agreement and ledger HTTP handlers.
//
//   - POST /agreements               (propose)
//   - GET  /agreements               (caller's agreements by role and status)
//   - GET  /agreements/{id}          (composed view, parties only)
//   - POST /agreements/{id}/resolve  (accept, decline or withdraw)
//   - GET  /transactions             (given or received history)
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-swap-backend/internal/services"
)

//
// DTOs
//

// ProposeRequest is the JSON payload for proposing an agreement.
type ProposeRequest struct {
	ListingID      string `json:"listingId"      binding:"required,max=64" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	CounterpartyID string `json:"counterpartyId" binding:"required,max=64" example:"user-bob"`
}

// ProposeResponse carries the new agreement's ID and composed view.
type ProposeResponse struct {
	AgreementID string                 `json:"agreementId"`
	Agreement   services.AgreementView `json:"agreement"`
}

// ResolveRequest is the JSON payload for resolving an agreement.
type ResolveRequest struct {
	Outcome string `json:"outcome" binding:"required,oneof=accept decline withdraw" example:"accept"`
}

// ListAgreementsResponse wraps a page of agreements.
type ListAgreementsResponse struct {
	Agreements []services.AgreementView `json:"agreements"`
	Pagination Pagination               `json:"pagination"`
}

// ListTransactionsResponse wraps a page of ledger entries.
type ListTransactionsResponse struct {
	Transactions []services.LedgerEntry `json:"transactions"`
	Pagination   Pagination             `json:"pagination"`
}

//
// Handlers
//

// ProposeAgreement godoc
// @ID          proposeAgreement
// @Summary     Propose an agreement
// @Description The listing owner proposes to hand the listing to counterpartyId. The listing moves to pending and a conversation between the two is opened or reused.
// @Tags        Agreements
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  handlers.ProposeRequest  true  "Proposal"
//
// @Success     201  {object}  handlers.ProposeResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Validation, listing_not_active or self_dealing"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the owner"
// @Failure     404  {object}  handlers.ErrorResponse  "Listing not found"
// @Failure     409  {object}  handlers.ErrorResponse  "duplicate_pending"
// @Failure     503  {object}  handlers.ErrorResponse  "Transient failure, retry"
// @Router      /agreements [post]
func (h *Handlers) ProposeAgreement(c *gin.Context) {
	var req ProposeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "listingId and counterpartyId are required")
		return
	}
	v, err := h.agreements.Propose(c.Request.Context(),
		strings.TrimSpace(req.ListingID), userID(c), strings.TrimSpace(req.CounterpartyID))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, ProposeResponse{AgreementID: v.Agreement.ID, Agreement: *v})
}

// ListAgreements godoc
// @ID          listAgreements
// @Summary     List the caller's agreements
// @Tags        Agreements
// @Produce     json
// @Security    BearerAuth
//
// @Param       role       query  string  false  "incoming (caller is counterparty) or outgoing (caller proposed); both when empty"  Enums(incoming,outgoing)
// @Param       status     query  string  false  "Agreement status"  Enums(pending,accepted,declined,withdrawn)
// @Param       page       query  int     false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int     false  "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListAgreementsResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad role or status"
// @Router      /agreements [get]
func (h *Handlers) ListAgreements(c *gin.Context) {
	page, pageSize := clampPagination(c)
	items, total, err := h.agreements.ListFor(c.Request.Context(), userID(c),
		strings.TrimSpace(c.Query("role")), strings.TrimSpace(c.Query("status")), page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListAgreementsResponse{Agreements: items, Pagination: paginate(page, pageSize, total)})
}

// GetAgreement godoc
// @ID          getAgreement
// @Summary     Get an agreement
// @Description Returns the agreement with its listing. Non-parties get 404.
// @Tags        Agreements
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  string  true  "Agreement ID"  format(uuid)
//
// @Success     200  {object}  services.AgreementView
// @Failure     404  {object}  handlers.ErrorResponse  "Agreement not found"
// @Router      /agreements/{id} [get]
func (h *Handlers) GetAgreement(c *gin.Context) {
	v, err := h.agreements.Get(c.Request.Context(), c.Param("id"), userID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, v)
}

// ResolveAgreement godoc
// @ID          resolveAgreement
// @Summary     Resolve an agreement
// @Description Counterparty accepts or declines; proposer withdraws. Accept completes the listing and records a transaction.
// @Tags        Agreements
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       id    path  string                   true  "Agreement ID"  format(uuid)
// @Param       body  body  handlers.ResolveRequest  true  "Outcome"
//
// @Success     200  {object}  services.ResolveResult
// @Failure     400  {object}  handlers.ErrorResponse  "Bad outcome"
// @Failure     403  {object}  handlers.ErrorResponse  "Not permitted for this agreement"
// @Failure     404  {object}  handlers.ErrorResponse  "Agreement not found"
// @Failure     409  {object}  handlers.ErrorResponse  "already_resolved"
// @Failure     503  {object}  handlers.ErrorResponse  "Transient failure, retry"
// @Router      /agreements/{id}/resolve [post]
func (h *Handlers) ResolveAgreement(c *gin.Context) {
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, services.ErrInvalidOutcome.Error())
		return
	}
	res, err := h.agreements.Resolve(c.Request.Context(), c.Param("id"), userID(c), req.Outcome)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// ListTransactions godoc
// @ID          listTransactions
// @Summary     List completed exchanges
// @Tags        Transactions
// @Produce     json
// @Security    BearerAuth
//
// @Param       role       query  string  true   "given or received"  Enums(given,received)
// @Param       page       query  int     false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int     false  "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListTransactionsResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad role"
// @Router      /transactions [get]
func (h *Handlers) ListTransactions(c *gin.Context) {
	page, pageSize := clampPagination(c)
	items, total, err := h.ledger.ListFor(c.Request.Context(), userID(c), strings.TrimSpace(c.Query("role")), page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListTransactionsResponse{Transactions: items, Pagination: paginate(page, pageSize, total)})
}
