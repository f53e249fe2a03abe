package handlers

import (
	"context"
	"net/http"

	"marketplace/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type IntegrationHandler struct {
	*Deps
}

func NewIntegrationHandler(d *Deps) *IntegrationHandler { return &IntegrationHandler{d} }

func (h *IntegrationHandler) List(c *gin.Context) {
	q, err := h.listQuery(c, "createdAt", "name", "description")
	if err != nil {
		h.fail(c, err, "Integration")
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	integrations, err := h.Store.Integrations.List(ctx, q)
	if err != nil {
		h.fail(c, err, "Integration")
		return
	}
	c.JSON(http.StatusOK, integrations)
}

func (h *IntegrationHandler) Get(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	in, err := h.Store.Integrations.Get(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err, "Integration")
		return
	}
	c.JSON(http.StatusOK, in)
}

func (h *IntegrationHandler) Create(c *gin.Context) {
	var in models.Integration
	if err := bind(c, &in); err != nil {
		h.fail(c, err, "Integration")
		return
	}
	in.ID = primitive.NilObjectID
	if in.Status == "" {
		in.Status = models.IntegrationDisconnected
	}
	if err := in.Validate(); err != nil {
		h.fail(c, err, "Integration")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	if err := h.Store.Integrations.Create(ctx, &in); err != nil {
		h.fail(c, err, "Integration")
		return
	}
	c.JSON(http.StatusCreated, in)
}

func (h *IntegrationHandler) Update(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	in, err := h.Store.Integrations.Get(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err, "Integration")
		return
	}
	set, err := patch(c, in, in.Validate, "name", "description", "category", "status", "isPopular", "icon", "config")
	if err != nil {
		h.fail(c, err, "Integration")
		return
	}
	updated, err := h.Store.Integrations.Update(ctx, in.ID.Hex(), set)
	if err != nil {
		h.fail(c, err, "Integration")
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *IntegrationHandler) Delete(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	in, err := h.Store.Integrations.Get(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err, "Integration")
		return
	}
	if err := h.Store.Integrations.Delete(ctx, in.ID.Hex()); err != nil {
		h.fail(c, err, "Integration")
		return
	}
	if _, err := h.Jobs.CancelPending(ctx, models.JobIntegrationToggle, in.ID); err != nil {
		h.Log.WithError(err).WithField("integration", in.ID.Hex()).Warn("Failed to cancel pending toggle")
	}
	c.JSON(http.StatusOK, gin.H{"message": "Integration deleted successfully"})
}

// Toggle flips the connection status now and schedules the connection bookkeeping.
// A toggle still pending for the same integration is superseded.
func (h *IntegrationHandler) Toggle(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	in, err := h.Store.Integrations.Get(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err, "Integration")
		return
	}
	if _, err := h.Jobs.CancelPending(ctx, models.JobIntegrationToggle, in.ID); err != nil {
		h.fail(c, err, "Integration")
		return
	}

	previous, next := in.Status, in.Toggled()
	updated, err := h.Store.Integrations.Update(ctx, in.ID.Hex(), bson.M{"status": next})
	if err != nil {
		h.fail(c, err, "Integration")
		return
	}
	job, err := h.Jobs.Schedule(ctx, models.JobIntegrationToggle, in.ID, h.ToggleDelay, map[string]string{
		"status":   next,
		"previous": previous,
	})
	if err != nil {
		h.fail(c, err, "Integration")
		return
	}

	h.Log.WithFields(logrus.Fields{
		"integration": in.Name,
		"from":        previous,
		"to":          next,
	}).Info("Integration toggled")
	h.publish("integration.status", updated)
	c.JSON(http.StatusOK, gin.H{
		"message":     "Integration " + next,
		"integration": updated,
		"jobId":       job.ID.Hex(),
	})
}
