package handlers

import (
	"context"
	"net/http"

	"marketplace/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
)

type UserStatusRequest struct {
	Status   string `json:"status" binding:"omitempty,oneof=active inactive suspended"`
	IsActive *bool  `json:"isActive"`
}

// UserHandler is the admin view over user accounts.
type UserHandler struct {
	*Deps
}

func NewUserHandler(d *Deps) *UserHandler { return &UserHandler{d} }

func (h *UserHandler) List(c *gin.Context) {
	q, err := h.listQuery(c, "createdAt", "email", "firstName", "lastName")
	if err != nil {
		h.fail(c, err, "User")
		return
	}
	if role := c.Query("role"); role != "" && role != "all" {
		q = q.Eq("role", role)
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	users, err := h.Store.Users.List(ctx, q)
	if err != nil {
		h.fail(c, err, "User")
		return
	}
	c.JSON(http.StatusOK, users)
}

// UpdateStatus sets status and/or isActive. Setting only status keeps isActive in step with it.
func (h *UserHandler) UpdateStatus(c *gin.Context) {
	var req UserStatusRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err, "User")
		return
	}
	if req.Status == "" && req.IsActive == nil {
		h.fail(c, models.ValidationErrors{{Field: "status", Message: "status or isActive is required"}}, "User")
		return
	}

	set := bson.M{}
	if req.Status != "" {
		set["status"] = req.Status
		set["isActive"] = req.Status == models.UserStatusActive
	}
	if req.IsActive != nil {
		set["isActive"] = *req.IsActive
		if req.Status == "" {
			set["status"] = models.UserStatusInactive
			if *req.IsActive {
				set["status"] = models.UserStatusActive
			}
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	if c.Param("id") == identity(c).ID && set["isActive"] == false {
		badRequest(c, "You cannot deactivate your own account")
		return
	}
	u, err := h.Store.Users.Update(ctx, c.Param("id"), set)
	if err != nil {
		h.fail(c, err, "User")
		return
	}
	h.Log.WithFields(logrus.Fields{"user": u.Email, "status": u.Status, "by": identity(c).Email}).Info("User status updated")
	c.JSON(http.StatusOK, u)
}

func (h *UserHandler) Delete(c *gin.Context) {
	if c.Param("id") == identity(c).ID {
		badRequest(c, "You cannot delete your own account")
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	if err := h.Store.Users.Delete(ctx, c.Param("id")); err != nil {
		h.fail(c, err, "User")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
}
