package handlers

import (
	"context"
	"errors"
	"net/http"

	"marketplace/models"
	"marketplace/notify"

	"github.com/gin-gonic/gin"
)

type SubscribePushRequest struct {
	Endpoint string `json:"endpoint" binding:"required,url"`
	Keys     struct {
		P256dh string `json:"p256dh" binding:"required"`
		Auth   string `json:"auth" binding:"required"`
	} `json:"keys" binding:"required"`
}

type PushHandler struct {
	*Deps
}

func NewPushHandler(d *Deps) *PushHandler { return &PushHandler{d} }

func (h *PushHandler) VapidPublicKey(c *gin.Context) {
	if h.Push == nil || !h.Push.Enabled() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Push notifications are not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"publicKey": h.Push.PublicKey()})
}

// Subscribe stores the browser endpoint; resubscribing the same endpoint replaces its keys.
func (h *PushHandler) Subscribe(c *gin.Context) {
	var req SubscribePushRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err, "Subscription")
		return
	}
	if h.Push == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Push notifications are not configured"})
		return
	}
	caller := identity(c)

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	sub, err := h.Push.Subscribe(ctx, caller.ID, caller.Email, req.Endpoint, models.PushKeys{
		P256dh: req.Keys.P256dh,
		Auth:   req.Keys.Auth,
	})
	if errors.Is(err, notify.ErrPushDisabled) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Push notifications are not configured"})
		return
	}
	if err != nil {
		h.fail(c, err, "Subscription")
		return
	}
	h.Log.WithField("owner", caller.Email).Debug("Push subscription saved")
	c.JSON(http.StatusOK, gin.H{"message": "Push subscription saved successfully", "id": sub.ID.Hex()})
}
