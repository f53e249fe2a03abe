package handlers

import (
	"context"
	"errors"
	"net/http"

	"marketplace/models"
	"marketplace/store"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var serviceFields = []string{
	"name", "description", "category", "subCategories", "pricing", "availability", "metrics", "status",
}

type ServiceHandler struct {
	*Deps
}

func NewServiceHandler(d *Deps) *ServiceHandler { return &ServiceHandler{d} }

func (h *ServiceHandler) List(c *gin.Context) {
	q, err := h.listQuery(c, "createdAt", "name", "description")
	if err != nil {
		h.fail(c, err, "Service")
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	services, err := h.Store.Services.List(ctx, q)
	if err != nil {
		h.fail(c, err, "Service")
		return
	}
	c.JSON(http.StatusOK, services)
}

func (h *ServiceHandler) Get(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	svc, err := h.Store.Services.Get(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err, "Service")
		return
	}
	c.JSON(http.StatusOK, svc)
}

// Create is idempotent on name: a second create returns 409 with the existing service.
func (h *ServiceHandler) Create(c *gin.Context) {
	var svc models.Service
	if err := bind(c, &svc); err != nil {
		h.fail(c, err, "Service")
		return
	}
	svc.ID = primitive.NilObjectID
	if svc.Status == "" {
		svc.Status = models.ServiceActive
	}
	if err := svc.Validate(); err != nil {
		h.fail(c, err, "Service")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	err := h.Store.Services.Create(ctx, &svc)
	if errors.Is(err, store.ErrDuplicate) {
		existing, findErr := h.Store.Services.FindOne(ctx, store.Query{}.Eq("name", svc.Name))
		if findErr != nil {
			h.fail(c, findErr, "Service")
			return
		}
		c.JSON(http.StatusConflict, gin.H{
			"error":   "Service already exists",
			"service": existing,
		})
		return
	}
	if err != nil {
		h.fail(c, err, "Service")
		return
	}

	h.Log.WithField("service", svc.Name).Info("Service created")
	c.JSON(http.StatusCreated, svc)
}

func (h *ServiceHandler) Update(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	svc, err := h.Store.Services.Get(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err, "Service")
		return
	}
	set, err := patch(c, svc, svc.Validate, serviceFields...)
	if err != nil {
		h.fail(c, err, "Service")
		return
	}
	updated, err := h.Store.Services.Update(ctx, c.Param("id"), set)
	if err != nil {
		h.fail(c, err, "Service")
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *ServiceHandler) Delete(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	if err := h.Store.Services.Delete(ctx, c.Param("id")); err != nil {
		h.fail(c, err, "Service")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Service deleted successfully"})
}
