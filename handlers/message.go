package handlers

import (
	"context"
	"net/http"

	"marketplace/models"
	"marketplace/store"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
)

type SendMessageRequest struct {
	Content string `json:"content" binding:"required,max=5000"`
}

// MessageHandler serves the chat thread attached to each registered service.
type MessageHandler struct {
	*Deps
}

func NewMessageHandler(d *Deps) *MessageHandler { return &MessageHandler{d} }

func (h *MessageHandler) List(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	reg, ok := h.loadRegistration(ctx, c, c.Param("serviceId"))
	if !ok {
		return
	}
	msgs, err := h.Store.Messages.List(ctx, store.Query{}.Eq("serviceId", reg.ID).Sort("timestamp", false))
	if err != nil {
		h.fail(c, err, "Message")
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *MessageHandler) Send(c *gin.Context) {
	var req SendMessageRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err, "Message")
		return
	}
	caller := identity(c)

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	reg, ok := h.loadRegistration(ctx, c, c.Param("serviceId"))
	if !ok {
		return
	}

	role := models.RoleUser
	if caller.IsAdmin() {
		role = models.RoleAdmin
	}
	msg := &models.Message{
		ServiceID:  reg.ID,
		SenderID:   caller.ID,
		SenderRole: role,
		Content:    req.Content,
		Timestamp:  h.now(),
	}
	if err := msg.Validate(); err != nil {
		h.fail(c, err, "Message")
		return
	}
	if err := h.Store.Messages.Create(ctx, msg); err != nil {
		h.fail(c, err, "Message")
		return
	}

	h.Log.WithFields(logrus.Fields{
		"registration": reg.ID.Hex(),
		"sender":       caller.Email,
		"role":         role,
	}).Debug("Message sent")
	h.publish("message.created", msg)

	recipients := []string{reg.UserEmail}
	if role != models.RoleAdmin {
		recipients = h.adminEmails(ctx)
	}
	h.Notify.Dispatch(recipients, notifyMessage(reg, msg))

	c.JSON(http.StatusCreated, msg)
}

// MarkRead flags every message in the thread that the caller did not send.
func (h *MessageHandler) MarkRead(c *gin.Context) {
	caller := identity(c)
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	reg, ok := h.loadRegistration(ctx, c, c.Param("serviceId"))
	if !ok {
		return
	}
	n, err := h.Store.Messages.UpdateMany(ctx, store.Query{}.
		Eq("serviceId", reg.ID).
		Ne("senderId", caller.ID).
		Eq("read", false), bson.M{"read": true})
	if err != nil {
		h.fail(c, err, "Message")
		return
	}
	if n > 0 {
		h.publish("message.read", gin.H{"serviceId": reg.ID.Hex(), "readBy": caller.ID, "count": n})
	}
	c.JSON(http.StatusOK, gin.H{"message": "Messages marked as read", "updated": n})
}
