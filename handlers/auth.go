package handlers

import (
	"context"
	"errors"
	"net/http"

	"marketplace/auth"
	"marketplace/middleware"
	"marketplace/models"
	"marketplace/store"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
)

type RegisterRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=6"`
	FirstName string `json:"firstName" binding:"required"`
	LastName  string `json:"lastName"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AuthHandler struct {
	*Deps
}

func NewAuthHandler(d *Deps) *AuthHandler { return &AuthHandler{d} }

// session is the token plus profile returned by every login path.
func (h *AuthHandler) session(c *gin.Context, status int, id auth.Identity, profile interface{}) {
	token, expires, err := h.Tokens.Issue(id)
	if err != nil {
		h.fail(c, err, "User")
		return
	}
	c.JSON(status, gin.H{
		"token":     token,
		"expiresAt": expires,
		"user":      profile,
	})
}

// CheckAccount rejects tokens whose account was deactivated, deleted or changed role
// after the token was issued.
func (d *Deps) CheckAccount(ctx context.Context, id auth.Identity) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var active bool
	var role models.Role
	if id.Role == models.RoleFreelancer {
		f, err := d.Store.Freelancers.Get(ctx, id.ID)
		if err != nil {
			return accountLookupError(err)
		}
		active, role = f.IsActive, models.RoleFreelancer
	} else {
		u, err := d.Store.Users.Get(ctx, id.ID)
		if err != nil {
			return accountLookupError(err)
		}
		active, role = u.IsActive, u.Role
	}

	if role != id.Role {
		return middleware.ErrAccountGone
	}
	if !active {
		return middleware.ErrAccountDisabled
	}
	return nil
}

func accountLookupError(err error) error {
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidID) {
		return middleware.ErrAccountGone
	}
	return err
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err, "User")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.fail(c, err, "User")
		return
	}
	user := &models.User{
		Email:        models.NormalizeEmail(req.Email),
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Role:         models.RoleUser,
		Status:       models.UserStatusActive,
		IsActive:     true,
		AuthProvider: "email",
	}
	if err := user.Validate(); err != nil {
		h.fail(c, err, "User")
		return
	}
	if err := h.Store.Users.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"error": "Email already in use"})
			return
		}
		h.fail(c, err, "User")
		return
	}

	h.Log.WithField("email", user.Email).Info("User registered")
	h.session(c, http.StatusCreated, auth.Identity{ID: user.ID.Hex(), Email: user.Email, Role: user.Role}, user)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err, "User")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	user, err := h.Store.Users.FindOne(ctx, store.Query{}.Eq("email", models.NormalizeEmail(req.Email)))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		h.fail(c, err, "User")
		return
	}
	if user == nil || user.PasswordHash == "" || !auth.CheckPassword(user.PasswordHash, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}
	if !user.IsActive {
		c.JSON(http.StatusForbidden, gin.H{"error": "Account is disabled"})
		return
	}

	now := h.now()
	if updated, err := h.Store.Users.Update(ctx, user.ID.Hex(), bson.M{"lastLogin": now}); err == nil {
		user = updated
	} else {
		h.Log.WithError(err).WithField("email", user.Email).Warn("Failed to stamp lastLogin")
	}

	h.Log.WithFields(logrus.Fields{"email": user.Email, "role": user.Role}).Info("User logged in")
	h.session(c, http.StatusOK, auth.Identity{ID: user.ID.Hex(), Email: user.Email, Role: user.Role}, user)
}

// Me returns the caller's profile from whichever pool issued the token.
func (h *AuthHandler) Me(c *gin.Context) {
	id := identity(c)
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	if id.Role == models.RoleFreelancer {
		f, err := h.Store.Freelancers.Get(ctx, id.ID)
		if err != nil {
			h.fail(c, err, "Freelancer")
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": f})
		return
	}
	user, err := h.Store.Users.Get(ctx, id.ID)
	if err != nil {
		h.fail(c, err, "User")
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

type FreelancerRegisterRequest struct {
	RegisterRequest
	Title      string         `json:"title"`
	Bio        string         `json:"bio"`
	Phone      string         `json:"phone"`
	Location   string         `json:"location"`
	Skills     []models.Skill `json:"skills"`
	HourlyRate float64        `json:"hourlyRate" binding:"gte=0"`
}

func (h *AuthHandler) FreelancerRegister(c *gin.Context) {
	var req FreelancerRegisterRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err, "Freelancer")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	f, err := newFreelancer(req)
	if err != nil {
		h.fail(c, err, "Freelancer")
		return
	}
	if err := h.Store.Freelancers.Create(ctx, f); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"error": "Email already in use"})
			return
		}
		h.fail(c, err, "Freelancer")
		return
	}

	h.Log.WithField("email", f.Email).Info("Freelancer registered")
	h.session(c, http.StatusCreated, auth.Identity{ID: f.ID.Hex(), Email: f.Email, Role: models.RoleFreelancer}, f)
}

func (h *AuthHandler) FreelancerLogin(c *gin.Context) {
	var req LoginRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err, "Freelancer")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	f, err := h.Store.Freelancers.FindOne(ctx, store.Query{}.Eq("email", models.NormalizeEmail(req.Email)))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		h.fail(c, err, "Freelancer")
		return
	}
	if f == nil || f.PasswordHash == "" || !auth.CheckPassword(f.PasswordHash, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}
	if !f.IsActive {
		c.JSON(http.StatusForbidden, gin.H{"error": "Account is disabled"})
		return
	}

	if updated, err := h.Store.Freelancers.Update(ctx, f.ID.Hex(), bson.M{"lastLogin": h.now()}); err == nil {
		f = updated
	}
	h.session(c, http.StatusOK, auth.Identity{ID: f.ID.Hex(), Email: f.Email, Role: models.RoleFreelancer}, f)
}
