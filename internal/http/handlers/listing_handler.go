// Listing HTTP handlers.
//
// This file exposes REST endpoints for listings:
//   - POST   /listings              (create)
//   - GET    /listings              (active browse, optional relevance query)
//   - GET    /listings/mine         (caller's listings, every status)
//   - GET    /listings/{id}         (get)
//   - POST   /listings/{id}/status  (owner transition)
//   - DELETE /listings/{id}         (soft remove)
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-swap-backend/internal/domain"
	"github.com/tbourn/go-swap-backend/internal/services"
)

//
// DTOs
//

// CreateListingRequest is the JSON payload for creating a listing.
type CreateListingRequest struct {
	Title       string `json:"title"       binding:"required,max=255" example:"Oak desk"`
	Description string `json:"description" binding:"max=5000"         example:"Solid oak, some scratches"`
	Intent      string `json:"intent"      binding:"required,intent"  example:"give" enums:"give,swap,sell,request,rehome"`
}

// ListingStatusRequest is the JSON payload for an owner status change.
type ListingStatusRequest struct {
	Status string `json:"status" binding:"required,listing_status" example:"pending" enums:"active,pending,removed"`
}

// ListListingsResponse wraps a page of listings and pagination information.
type ListListingsResponse struct {
	Listings   []domain.Listing `json:"listings"`
	Pagination Pagination       `json:"pagination"`
}

//
// Handlers
//

// CreateListing godoc
// @ID          createListing
// @Summary     Create a listing
// @Description Creates an active listing owned by the caller.
// @Tags        Listings
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  handlers.CreateListingRequest  true  "Listing payload"
//
// @Success     201  {object}  domain.Listing
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /listings [post]
func (h *Handlers) CreateListing(c *gin.Context) {
	var req CreateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "title and a valid intent are required")
		return
	}
	l, err := h.listings.Create(c.Request.Context(), userID(c), services.NewListing{
		Title:       req.Title,
		Description: req.Description,
		Intent:      req.Intent,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, l)
}

// BrowseListings godoc
// @ID          browseListings
// @Summary     Browse active listings
// @Description Returns active listings, newest first, or by relevance when q is set.
// @Tags        Listings
// @Produce     json
// @Security    BearerAuth
//
// @Param       intent     query  string  false  "Filter by intent"  Enums(give,swap,sell,request,rehome)
// @Param       q          query  string  false  "Free text query"
// @Param       owner      query  string  false  "Filter by owner"
// @Param       page       query  int     false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int     false  "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListListingsResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /listings [get]
func (h *Handlers) BrowseListings(c *gin.Context) {
	page, pageSize := clampPagination(c)
	items, total, err := h.listings.BrowseActive(c.Request.Context(), services.BrowseFilter{
		Intent:   strings.TrimSpace(c.Query("intent")),
		Query:    c.Query("q"),
		OwnerID:  strings.TrimSpace(c.Query("owner")),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListListingsResponse{Listings: items, Pagination: paginate(page, pageSize, total)})
}

// MyListings godoc
// @ID          myListings
// @Summary     List the caller's listings
// @Description Returns every listing owned by the caller regardless of status, newest first.
// @Tags        Listings
// @Produce     json
// @Security    BearerAuth
//
// @Param       page       query  int  false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int  false  "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListListingsResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /listings/mine [get]
func (h *Handlers) MyListings(c *gin.Context) {
	page, pageSize := clampPagination(c)
	items, total, err := h.listings.ListByOwner(c.Request.Context(), userID(c), page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListListingsResponse{Listings: items, Pagination: paginate(page, pageSize, total)})
}

// GetListing godoc
// @ID          getListing
// @Summary     Get a listing
// @Tags        Listings
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  string  true  "Listing ID"  format(uuid)
//
// @Success     200  {object}  domain.Listing
// @Failure     404  {object}  handlers.ErrorResponse  "Listing not found"
// @Router      /listings/{id} [get]
func (h *Handlers) GetListing(c *gin.Context) {
	l, err := h.listings.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, l)
}

// TransitionListing godoc
// @ID          transitionListing
// @Summary     Change a listing's status
// @Description Owner-driven transition: active to pending or removed, pending to active or removed.
// @Tags        Listings
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       id    path  string                         true  "Listing ID"  format(uuid)
// @Param       body  body  handlers.ListingStatusRequest  true  "Target status"
//
// @Success     200  {object}  domain.Listing
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid transition"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the owner"
// @Failure     404  {object}  handlers.ErrorResponse  "Listing not found"
// @Router      /listings/{id}/status [post]
func (h *Handlers) TransitionListing(c *gin.Context) {
	var req ListingStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "a valid status is required")
		return
	}
	l, err := h.listings.Transition(c.Request.Context(), c.Param("id"), userID(c), req.Status)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, l)
}

// RemoveListing godoc
// @ID          removeListing
// @Summary     Remove a listing
// @Description Soft-removes the listing. Open agreements on it are withdrawn.
// @Tags        Listings
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  string  true  "Listing ID"  format(uuid)
//
// @Success     200  {object}  domain.Listing
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid transition"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the owner"
// @Failure     404  {object}  handlers.ErrorResponse  "Listing not found"
// @Router      /listings/{id} [delete]
func (h *Handlers) RemoveListing(c *gin.Context) {
	l, err := h.listings.Remove(c.Request.Context(), c.Param("id"), userID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, l)
}
