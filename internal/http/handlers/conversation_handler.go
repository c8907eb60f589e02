// Conversation HTTP handlers.
//
//   - POST /conversations                 (get or create with a user)
//   - GET  /conversations                 (visible inbox)
//   - GET  /conversations/{id}            (thread with messages, weak ETag)
//   - POST /conversations/{id}/messages   (send, Idempotency-Key aware)
//   - POST /conversations/{id}/read       (mark inbound messages read)
//   - POST /conversations/{id}/hide       (hide for the caller only)
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous send with
// the same key exists for (user, conversation), the stored message is
// returned with 200 and `Idempotency-Replayed: true` instead of 201.
package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-swap-backend/internal/domain"
	"github.com/tbourn/go-swap-backend/internal/http/middleware"
	"github.com/tbourn/go-swap-backend/internal/repo"
)

//
// DTOs
//

// OpenConversationRequest is the JSON payload for opening a conversation.
type OpenConversationRequest struct {
	UserID    string  `json:"userId"    binding:"required,max=64" example:"user-bob"`
	ListingID *string `json:"listingId" binding:"omitempty,max=64" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
}

// SendMessageRequest is the JSON payload for posting a message.
type SendMessageRequest struct {
	Text string `json:"text" example:"Is the desk still available?"`
}

// SendMessageResponse wraps the stored message.
type SendMessageResponse struct {
	Message domain.Message `json:"message"`
}

// ListConversationsResponse wraps a page of the caller's inbox.
type ListConversationsResponse struct {
	Conversations []repo.ConversationSummary `json:"conversations"`
	Pagination    Pagination                 `json:"pagination"`
}

// MarkReadResponse reports how many messages changed state.
type MarkReadResponse struct {
	Updated int64 `json:"updated"`
}

//
// Handlers
//

// OpenConversation godoc
// @ID          openConversation
// @Summary     Open a conversation
// @Description Returns the conversation between the caller and userId (optionally about a listing), creating it on first use.
// @Tags        Conversations
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  handlers.OpenConversationRequest  true  "Participants"
//
// @Success     200  {object}  domain.Conversation
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Listing not found"
// @Router      /conversations [post]
func (h *Handlers) OpenConversation(c *gin.Context) {
	var req OpenConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "userId is required")
		return
	}
	if req.ListingID != nil && strings.TrimSpace(*req.ListingID) == "" {
		req.ListingID = nil
	}
	conv, err := h.conversations.GetOrCreate(c.Request.Context(), userID(c), strings.TrimSpace(req.UserID), req.ListingID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, conv)
}

// ListConversations godoc
// @ID          listConversations
// @Summary     List the caller's inbox
// @Description Conversations not hidden by the caller, most recent activity first, with unread counts.
// @Tags        Conversations
// @Produce     json
// @Security    BearerAuth
//
// @Param       page       query  int  false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int  false  "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListConversationsResponse
// @Router      /conversations [get]
func (h *Handlers) ListConversations(c *gin.Context) {
	page, pageSize := clampPagination(c)
	items, total, err := h.conversations.ListFor(c.Request.Context(), userID(c), page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListConversationsResponse{Conversations: items, Pagination: paginate(page, pageSize, total)})
}

// GetConversation godoc
// @ID          getConversation
// @Summary     Get a conversation
// @Description Full thread with messages, oldest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Conversations
// @Produce     json
// @Security    BearerAuth
//
// @Param       id             path    string  true   "Conversation ID"  format(uuid)
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
//
// @Success     200  {object}  services.ConversationView
// @Header      200  {string}  ETag  "Weak ETag for current thread state"
// @Success     304  {string}  string  "Not Modified"
// @Failure     404  {object}  handlers.ErrorResponse  "Conversation not found"
// @Router      /conversations/{id} [get]
func (h *Handlers) GetConversation(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)
	id := c.Param("id")

	view, err := h.conversations.Get(ctx, id, uid)
	if err != nil {
		failErr(c, err)
		return
	}

	// Read receipts change the thread without adding messages, so the tag
	// covers both counts.
	if st, err := h.conversations.Stats(ctx, id); err == nil {
		var ts int64
		if st.LastMessageAt != nil {
			ts = st.LastMessageAt.UnixNano()
		}
		etag := fmt.Sprintf(`W/"conv:%s:%s:%d:%d:%d"`, id, uid, st.Count, st.Read, ts)
		c.Header("ETag", etag)
		c.Header("Cache-Control", "private, no-cache")
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}
	ok(c, http.StatusOK, view)
}

// SendMessage godoc
// @ID          sendMessage
// @Summary     Send a message
// @Description Appends a message from the caller. The thread is un-hidden for the recipient, who is notified.
// @Tags        Conversations
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       id               path    string                       true   "Conversation ID"  format(uuid)
// @Param       Idempotency-Key  header  string                       false  "Client key for safe retries"
// @Param       body             body    handlers.SendMessageRequest  true   "Message"
//
// @Success     201  {object}  handlers.SendMessageResponse
// @Success     200  {object}  handlers.SendMessageResponse  "Idempotent replay"
// @Header      200  {string}  Idempotency-Replayed  "true on replay"
// @Failure     400  {object}  handlers.ErrorResponse  "Empty or too long"
// @Failure     403  {object}  handlers.ErrorResponse  "Not a participant"
// @Failure     404  {object}  handlers.ErrorResponse  "Conversation not found"
// @Failure     503  {object}  handlers.ErrorResponse  "Transient failure, retry"
// @Router      /conversations/{id}/messages [post]
func (h *Handlers) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	key, _ := middleware.GetIdempotencyKey(c)

	res, err := h.conversations.Send(c.Request.Context(), c.Param("id"), userID(c), req.Text, key)
	if err != nil {
		failErr(c, err)
		return
	}
	if res.Replayed {
		c.Header("Idempotency-Replayed", "true")
		ok(c, http.StatusOK, SendMessageResponse{Message: res.Message})
		return
	}
	ok(c, http.StatusCreated, SendMessageResponse{Message: res.Message})
}

// MarkConversationRead godoc
// @ID          markConversationRead
// @Summary     Mark a conversation read
// @Description Marks every message addressed to the caller as read and sends a read receipt to the other participant.
// @Tags        Conversations
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  string  true  "Conversation ID"  format(uuid)
//
// @Success     200  {object}  handlers.MarkReadResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Not a participant"
// @Failure     404  {object}  handlers.ErrorResponse  "Conversation not found"
// @Router      /conversations/{id}/read [post]
func (h *Handlers) MarkConversationRead(c *gin.Context) {
	n, err := h.conversations.MarkRead(c.Request.Context(), c.Param("id"), userID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, MarkReadResponse{Updated: n})
}

// HideConversation godoc
// @ID          hideConversation
// @Summary     Hide a conversation
// @Description Hides the thread from the caller's inbox only. A new inbound message un-hides it. Idempotent.
// @Tags        Conversations
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  string  true  "Conversation ID"  format(uuid)
//
// @Success     200  {object}  map[string]bool
// @Failure     403  {object}  handlers.ErrorResponse  "Not a participant"
// @Router      /conversations/{id}/hide [post]
func (h *Handlers) HideConversation(c *gin.Context) {
	if err := h.conversations.Hide(c.Request.Context(), c.Param("id"), userID(c)); err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"hidden": true})
}
