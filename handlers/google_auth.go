package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"marketplace/auth"
	"marketplace/config"
	"marketplace/models"
	"marketplace/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
	oauthStateCookie  = "oauth_state"
)

// GoogleOAuthConfig builds the oauth2 config, or nil when Google sign-in is not configured.
func GoogleOAuthConfig(cfg config.GoogleConfig) *oauth2.Config {
	if !cfg.Enabled() {
		return nil
	}
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes: []string{
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		},
		Endpoint: google.Endpoint,
	}
}

type GoogleUserInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
}

type GoogleHandler struct {
	*Deps
	UserInfoURL string
}

func NewGoogleHandler(d *Deps) *GoogleHandler {
	return &GoogleHandler{Deps: d, UserInfoURL: googleUserInfoURL}
}

func (h *GoogleHandler) AuthURL(c *gin.Context) {
	if h.Google == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Google OAuth not configured"})
		return
	}
	state := uuid.NewString()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(oauthStateCookie, state, 600, "/api/auth/google", "", c.Request.TLS != nil, true)
	c.JSON(http.StatusOK, gin.H{"url": h.Google.AuthCodeURL(state, oauth2.AccessTypeOnline)})
}

func (h *GoogleHandler) Callback(c *gin.Context) {
	if h.Google == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Google OAuth not configured"})
		return
	}
	code := c.Query("code")
	if code == "" {
		badRequest(c, "Authorization code missing")
		return
	}
	if expected, err := c.Cookie(oauthStateCookie); err != nil || expected == "" || expected != c.Query("state") {
		badRequest(c, "Invalid OAuth state")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	token, err := h.Google.Exchange(ctx, code)
	if err != nil {
		h.Log.WithError(err).Warn("Google OAuth token exchange failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to exchange authorization code"})
		return
	}
	info, err := h.fetchUserInfo(ctx, token)
	if err != nil {
		h.Log.WithError(err).Warn("Google userinfo lookup failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to get user information"})
		return
	}
	if info.Email == "" || !info.VerifiedEmail {
		badRequest(c, "Google account has no verified email")
		return
	}

	user, created, err := h.findOrCreate(ctx, info)
	if err != nil {
		h.fail(c, err, "User")
		return
	}
	if !user.IsActive {
		c.JSON(http.StatusForbidden, gin.H{"error": "Account is disabled"})
		return
	}

	tokenString, expires, err := h.Tokens.Issue(auth.Identity{ID: user.ID.Hex(), Email: user.Email, Role: user.Role})
	if err != nil {
		h.fail(c, err, "User")
		return
	}
	h.Log.WithFields(logrus.Fields{"email": user.Email, "new": created}).Info("Google authentication successful")
	c.JSON(http.StatusOK, gin.H{
		"token":     tokenString,
		"expiresAt": expires,
		"user":      user,
		"isNewUser": created,
	})
}

func (h *GoogleHandler) fetchUserInfo(ctx context.Context, token *oauth2.Token) (*GoogleUserInfo, error) {
	resp, err := h.Google.Client(ctx, token).Get(h.UserInfoURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo status %d", resp.StatusCode)
	}
	var info GoogleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (h *GoogleHandler) findOrCreate(ctx context.Context, info *GoogleUserInfo) (*models.User, bool, error) {
	email := models.NormalizeEmail(info.Email)
	now := h.now()

	user, err := h.Store.Users.FindOne(ctx, store.Query{}.Eq("email", email))
	if err == nil {
		set := bson.M{"lastLogin": now}
		if user.GoogleID == "" {
			set["googleId"] = info.ID
		}
		if user.Avatar == "" && info.Picture != "" {
			set["avatar"] = info.Picture
		}
		updated, err := h.Store.Users.Update(ctx, user.ID.Hex(), set)
		return updated, false, err
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}

	first, last := info.GivenName, info.FamilyName
	if first == "" {
		first, last, _ = strings.Cut(info.Name, " ")
	}
	if first == "" {
		first, _, _ = strings.Cut(email, "@")
	}
	user = &models.User{
		Email:        email,
		FirstName:    first,
		LastName:     last,
		Role:         models.RoleUser,
		Status:       models.UserStatusActive,
		IsActive:     true,
		AuthProvider: "google",
		GoogleID:     info.ID,
		Avatar:       info.Picture,
		LastLogin:    &now,
	}
	if err := h.Store.Users.Create(ctx, user); err != nil {
		return nil, false, err
	}
	return user, true, nil
}
