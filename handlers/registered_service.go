package handlers

import (
	"context"
	"net/http"

	"marketplace/auth"
	"marketplace/models"
	"marketplace/store"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
)

type RegisterServiceRequest struct {
	ServiceID    string                  `json:"serviceId" binding:"required,objectid"`
	Duration     string                  `json:"duration"`
	Features     []string                `json:"features"`
	Technologies []string                `json:"technologies"`
	UseCases     []string                `json:"useCases"`
	IconName     string                  `json:"iconName"`
	FormData     models.RegistrationForm `json:"formData"`
	// UserEmail lets an admin register on behalf of a user; ignored for everyone else.
	UserEmail string `json:"userEmail"`
}

type RegisteredServiceHandler struct {
	*Deps
}

func NewRegisteredServiceHandler(d *Deps) *RegisteredServiceHandler {
	return &RegisteredServiceHandler{d}
}

// scoped restricts q to the caller's own records unless the caller is an admin.
// It returns false when the caller cannot own records at all.
func scoped(q store.Query, id auth.Identity) (store.Query, bool) {
	if id.IsAdmin() {
		return q, true
	}
	if !id.OwnsRecords() {
		return q, false
	}
	return q.Eq("userEmail", models.NormalizeEmail(id.Email)), true
}

func (h *RegisteredServiceHandler) List(c *gin.Context) {
	q, err := h.listQuery(c, "registrationDate", "name", "description")
	if err != nil {
		h.fail(c, err, "Registered service")
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	q, ok := scoped(q, identity(c))
	if !ok {
		c.JSON(http.StatusOK, []models.RegisteredService{})
		return
	}
	regs, err := h.Store.RegisteredServices.List(ctx, q)
	if err != nil {
		h.fail(c, err, "Registered service")
		return
	}
	c.JSON(http.StatusOK, regs)
}

func (h *RegisteredServiceHandler) Create(c *gin.Context) {
	var req RegisterServiceRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err, "Registered service")
		return
	}
	caller := identity(c)

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	svc, err := h.Store.Services.Get(ctx, req.ServiceID)
	if err != nil {
		h.fail(c, err, "Service")
		return
	}

	owner := caller.Email
	if caller.IsAdmin() && req.UserEmail != "" {
		owner = req.UserEmail
	}
	reg := &models.RegisteredService{
		ServiceID:        svc.ID,
		Name:             svc.Name,
		Description:      svc.Description,
		Category:         svc.Category,
		Duration:         req.Duration,
		Features:         nonNil(req.Features),
		Technologies:     nonNil(req.Technologies),
		UseCases:         nonNil(req.UseCases),
		IconName:         req.IconName,
		Status:           models.RegistrationPending,
		RegistrationDate: h.now(),
		UserEmail:        models.NormalizeEmail(owner),
		FormData:         req.FormData,
	}
	if err := reg.Validate(); err != nil {
		h.fail(c, err, "Registered service")
		return
	}
	if err := h.Store.RegisteredServices.Create(ctx, reg); err != nil {
		h.fail(c, err, "Registered service")
		return
	}

	if _, err := h.Store.Services.Update(ctx, svc.ID.Hex(), bson.M{"metrics.bookings": svc.Metrics.Bookings + 1}); err != nil {
		h.Log.WithError(err).WithField("service", svc.Name).Warn("Failed to bump service bookings")
	}

	h.Log.WithFields(logrus.Fields{"service": reg.Name, "user": reg.UserEmail}).Info("Service registered")
	h.publish("registration.created", reg)
	c.JSON(http.StatusCreated, reg)
}

// loadRegistration fetches the registration and enforces owner-or-admin. It writes the response on failure.
func (d *Deps) loadRegistration(ctx context.Context, c *gin.Context, id string) (*models.RegisteredService, bool) {
	reg, err := d.Store.RegisteredServices.Get(ctx, id)
	if err != nil {
		d.fail(c, err, "Registered service")
		return nil, false
	}
	if !auth.IsOwnerOrAdmin(reg.Owner(), identity(c)) {
		forbidden(c)
		return nil, false
	}
	return reg, true
}

func (h *RegisteredServiceHandler) Get(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	reg, ok := h.loadRegistration(ctx, c, c.Param("id"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, reg)
}

// Update sets status and form data. Any status may follow any other.
func (h *RegisteredServiceHandler) Update(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	reg, ok := h.loadRegistration(ctx, c, c.Param("id"))
	if !ok {
		return
	}
	previous := reg.Status
	set, err := patch(c, reg, reg.Validate, "status", "formData")
	if err != nil {
		h.fail(c, err, "Registered service")
		return
	}
	updated, err := h.Store.RegisteredServices.Update(ctx, reg.ID.Hex(), set)
	if err != nil {
		h.fail(c, err, "Registered service")
		return
	}

	if updated.Status != previous {
		h.Log.WithFields(logrus.Fields{
			"registration": updated.ID.Hex(),
			"from":         previous,
			"to":           updated.Status,
		}).Info("Registration status changed")
		h.publish("registration.status", updated)
		h.Notify.Dispatch([]string{updated.UserEmail}, notifyStatus(updated))
	}
	c.JSON(http.StatusOK, updated)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
