package handlers

import (
	"net/http"

	"github.com/labstack/echo/v5"
	"github.com/opsboard/opsboard/internal/state"
	"github.com/opsboard/opsboard/internal/store"
)

type notificationsResponse struct {
	Notifications []state.Notification `json:"notifications"`
	UnreadCount   int                  `json:"unreadCount"`
}

func (h *Handlers) HandleNotifications(c *echo.Context) error {
	st := h.App.UI.State()
	items := st.Notifications
	if ParseBoolForm(c.QueryParam("unread")) {
		items = store.RemoveWhere(items, func(n state.Notification) bool { return n.Read })
	}
	if items == nil {
		items = []state.Notification{}
	}
	return c.JSON(http.StatusOK, notificationsResponse{Notifications: items, UnreadCount: st.UnreadCount})
}

func (h *Handlers) notificationExists(id string) bool {
	_, ok := store.FindByID(h.App.UI.State().Notifications, id, func(n state.Notification) string { return n.ID })
	return ok
}

func (h *Handlers) HandleNotificationRead(c *echo.Context) error {
	id := pathID(c, "id")
	if !h.notificationExists(id) {
		return renderNotFound(c)
	}
	h.App.UI.MarkRead(id)
	return c.NoContent(http.StatusNoContent)
}

func (h *Handlers) HandleNotificationsReadAll(c *echo.Context) error {
	h.App.UI.MarkAllRead()
	return c.NoContent(http.StatusNoContent)
}

func (h *Handlers) HandleNotificationDelete(c *echo.Context) error {
	id := pathID(c, "id")
	if !h.notificationExists(id) {
		return renderNotFound(c)
	}
	h.App.UI.RemoveNotification(id)
	return c.NoContent(http.StatusNoContent)
}
