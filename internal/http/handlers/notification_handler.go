// Notification and realtime HTTP handlers.
//
//   - GET  /notifications               (inbox, newest first)
//   - GET  /notifications/unread-count
//   - POST /notifications/{id}/read
//   - POST /notifications/read-all
//   - GET  /realtime                    (websocket event stream)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-swap-backend/internal/http/middleware"
	"github.com/tbourn/go-swap-backend/internal/realtime"
	"github.com/tbourn/go-swap-backend/internal/services"
	"github.com/tbourn/go-swap-backend/internal/sysutil"
)

//
// DTOs
//

// ListNotificationsResponse wraps a page of the caller's notifications.
type ListNotificationsResponse struct {
	Notifications []services.NotificationView `json:"notifications"`
	Pagination    Pagination                  `json:"pagination"`
}

// UnreadCountResponse carries the unread badge count.
type UnreadCountResponse struct {
	Unread int64 `json:"unread"`
}

//
// Handlers
//

// ListNotifications godoc
// @ID          listNotifications
// @Summary     List notifications
// @Tags        Notifications
// @Produce     json
// @Security    BearerAuth
//
// @Param       unread     query  bool  false  "Only unread"
// @Param       page       query  int   false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int   false  "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListNotificationsResponse
// @Router      /notifications [get]
func (h *Handlers) ListNotifications(c *gin.Context) {
	page, pageSize := clampPagination(c)
	rows, total, err := h.notifications.List(c.Request.Context(), userID(c), sysutil.IsTruthy(c.Query("unread")), page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	views := make([]services.NotificationView, 0, len(rows))
	for _, n := range rows {
		views = append(views, services.ViewOf(n))
	}
	ok(c, http.StatusOK, ListNotificationsResponse{Notifications: views, Pagination: paginate(page, pageSize, total)})
}

// UnreadNotifications godoc
// @ID          unreadNotifications
// @Summary     Count unread notifications
// @Tags        Notifications
// @Produce     json
// @Security    BearerAuth
//
// @Success     200  {object}  handlers.UnreadCountResponse
// @Router      /notifications/unread-count [get]
func (h *Handlers) UnreadNotifications(c *gin.Context) {
	n, err := h.notifications.UnreadCount(c.Request.Context(), userID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, UnreadCountResponse{Unread: n})
}

// MarkNotificationRead godoc
// @ID          markNotificationRead
// @Summary     Mark a notification read
// @Tags        Notifications
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  string  true  "Notification ID"  format(uuid)
//
// @Success     200  {object}  services.NotificationView
// @Failure     403  {object}  handlers.ErrorResponse  "Not the recipient"
// @Failure     404  {object}  handlers.ErrorResponse  "Notification not found"
// @Router      /notifications/{id}/read [post]
func (h *Handlers) MarkNotificationRead(c *gin.Context) {
	n, err := h.notifications.MarkRead(c.Request.Context(), c.Param("id"), userID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, services.ViewOf(*n))
}

// MarkAllNotificationsRead godoc
// @ID          markAllNotificationsRead
// @Summary     Mark every notification read
// @Tags        Notifications
// @Produce     json
// @Security    BearerAuth
//
// @Success     200  {object}  handlers.MarkReadResponse
// @Router      /notifications/read-all [post]
func (h *Handlers) MarkAllNotificationsRead(c *gin.Context) {
	n, err := h.notifications.MarkAllRead(c.Request.Context(), userID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, MarkReadResponse{Updated: n})
}

// Realtime godoc
// @ID          realtime
// @Summary     Realtime event stream
// @Description Upgrades to a websocket streaming message, message.read and notification envelopes. Unread notifications are replayed first; clients dedupe by envelope id. Browsers pass the token as ?token=.
// @Tags        Realtime
// @Security    BearerAuth
//
// @Param       token  query  string  false  "JWT when headers cannot be set"
//
// @Success     101  {string}  string  "Switching Protocols"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     503  {object}  handlers.ErrorResponse  "Realtime disabled"
// @Router      /realtime [get]
func (h *Handlers) Realtime(c *gin.Context) {
	if h.hub == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "realtime is not enabled")
		return
	}
	ctx := c.Request.Context()
	uid := userID(c)

	// Subscribe before reading the backlog so nothing published in between
	// is lost; the overlap is deduped client-side by id.
	sub := h.hub.Subscribe(uid)
	var backlog []realtime.Envelope
	if h.backlog > 0 {
		var err error
		if backlog, err = h.notifications.Backlog(ctx, uid, h.backlog); err != nil {
			h.hub.Unsubscribe(sub)
			failErr(c, err)
			return
		}
	}

	conn, err := realtime.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.hub.Unsubscribe(sub)
		middleware.LoggerFrom(c).Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	middleware.LoggerFrom(c).Debug().Int("backlog", len(backlog)).Msg("realtime session opened")
	realtime.ServeConn(ctx, conn, h.hub, sub, backlog)
}
