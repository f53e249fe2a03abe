package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"marketplace/auth"
	"marketplace/models"
	"marketplace/store"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
)

const maxAvatarBytes = 5 << 20

var (
	// freelancerFields are editable by admins.
	freelancerFields = []string{
		"firstName", "lastName", "title", "bio", "phone", "location", "skills", "projects",
		"hourlyRate", "availability", "metrics", "rating", "isActive",
	}
	// profileFields are editable by the freelancer on their own profile.
	profileFields = []string{
		"firstName", "lastName", "title", "bio", "phone", "location", "skills", "hourlyRate", "availability",
	}
)

type FreelancerHandler struct {
	*Deps
}

func NewFreelancerHandler(d *Deps) *FreelancerHandler { return &FreelancerHandler{d} }

// newFreelancer builds an active, available freelancer with a hashed password.
func newFreelancer(req FreelancerRegisterRequest) (*models.Freelancer, error) {
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	f := &models.Freelancer{
		Email:        models.NormalizeEmail(req.Email),
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Title:        req.Title,
		Bio:          req.Bio,
		Phone:        req.Phone,
		Location:     req.Location,
		Skills:       req.Skills,
		Projects:     []models.Project{},
		HourlyRate:   req.HourlyRate,
		Availability: models.FreelancerAvailability{Status: models.AvailabilityAvailable},
		IsActive:     true,
		Role:         models.RoleFreelancer,
	}
	if f.Skills == nil {
		f.Skills = []models.Skill{}
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

func (h *FreelancerHandler) List(c *gin.Context) {
	q, err := h.listQuery(c, "createdAt", "firstName", "lastName", "title", "bio")
	if err != nil {
		h.fail(c, err, "Freelancer")
		return
	}
	if a := c.Query("availability"); a != "" && a != "all" {
		q = q.Eq("availability.status", a)
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	freelancers, err := h.Store.Freelancers.List(ctx, q)
	if err != nil {
		h.fail(c, err, "Freelancer")
		return
	}
	c.JSON(http.StatusOK, freelancers)
}

func (h *FreelancerHandler) Get(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	f, err := h.Store.Freelancers.Get(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err, "Freelancer")
		return
	}
	c.JSON(http.StatusOK, f)
}

// Create lets an admin onboard a freelancer with an initial password.
func (h *FreelancerHandler) Create(c *gin.Context) {
	var req FreelancerRegisterRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err, "Freelancer")
		return
	}
	f, err := newFreelancer(req)
	if err != nil {
		h.fail(c, err, "Freelancer")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	if err := h.Store.Freelancers.Create(ctx, f); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"error": "Email already in use"})
			return
		}
		h.fail(c, err, "Freelancer")
		return
	}
	h.Log.WithFields(logrus.Fields{"email": f.Email, "by": identity(c).Email}).Info("Freelancer created")
	c.JSON(http.StatusCreated, f)
}

func (h *FreelancerHandler) update(c *gin.Context, id string, allowed []string) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	f, err := h.Store.Freelancers.Get(ctx, id)
	if err != nil {
		h.fail(c, err, "Freelancer")
		return
	}
	set, err := patch(c, f, f.Validate, allowed...)
	if err != nil {
		h.fail(c, err, "Freelancer")
		return
	}
	updated, err := h.Store.Freelancers.Update(ctx, f.ID.Hex(), set)
	if err != nil {
		h.fail(c, err, "Freelancer")
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *FreelancerHandler) Update(c *gin.Context) {
	h.update(c, c.Param("id"), freelancerFields)
}

func (h *FreelancerHandler) Delete(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	if err := h.Store.Freelancers.Delete(ctx, c.Param("id")); err != nil {
		h.fail(c, err, "Freelancer")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Freelancer deleted successfully"})
}

func (h *FreelancerHandler) Profile(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	f, err := h.Store.Freelancers.Get(ctx, identity(c).ID)
	if err != nil {
		h.fail(c, err, "Freelancer")
		return
	}
	c.JSON(http.StatusOK, f)
}

func (h *FreelancerHandler) UpdateProfile(c *gin.Context) {
	h.update(c, identity(c).ID, profileFields)
}

// UploadAvatar stores the multipart "avatar" image and points the profile at it.
func (h *FreelancerHandler) UploadAvatar(c *gin.Context) {
	if h.Media == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Image uploads are not configured"})
		return
	}
	header, err := c.FormFile("avatar")
	if err != nil {
		badRequest(c, "avatar file is required")
		return
	}
	if header.Size > maxAvatarBytes {
		badRequest(c, "avatar must be 5MB or smaller")
		return
	}
	if ct := header.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
		badRequest(c, "avatar must be an image")
		return
	}
	file, err := header.Open()
	if err != nil {
		h.fail(c, err, "Freelancer")
		return
	}
	defer file.Close()

	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*requestTimeout)
	defer cancel()

	id := identity(c).ID
	if _, err := h.Store.Freelancers.Get(ctx, id); err != nil {
		h.fail(c, err, "Freelancer")
		return
	}
	url, err := h.Media.UploadImage(ctx, file, "freelancer-"+id)
	if err != nil {
		h.Log.WithError(err).WithField("freelancer", id).Error("Avatar upload failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to upload avatar"})
		return
	}
	f, err := h.Store.Freelancers.Update(ctx, id, bson.M{"avatar": url})
	if err != nil {
		h.fail(c, err, "Freelancer")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Avatar updated", "avatar": url, "freelancer": f})
}
