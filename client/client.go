// Package client is a Go SDK for the marketplace API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"marketplace/models"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
	Details []models.FieldError
}

func (e *APIError) Error() string {
	return fmt.Sprintf("marketplace api: %d %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// TokenStore persists the session token between calls.
type TokenStore interface {
	Token() string
	SetToken(token string)
}

type memoryTokenStore struct {
	mu    sync.RWMutex
	token string
}

func (s *memoryTokenStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *memoryTokenStore) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.httpClient = hc } }
func WithTokenStore(ts TokenStore) Option   { return func(c *Client) { c.tokens = ts } }
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenStore
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tokens:     &memoryTokenStore{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session is returned by every sign-in call.
type Session struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      models.User `json:"user"`
}

type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName,omitempty"`
}

type RegisterServiceRequest struct {
	ServiceID    string                  `json:"serviceId"`
	Duration     string                  `json:"duration,omitempty"`
	Features     []string                `json:"features,omitempty"`
	Technologies []string                `json:"technologies,omitempty"`
	UseCases     []string                `json:"useCases,omitempty"`
	IconName     string                  `json:"iconName,omitempty"`
	FormData     models.RegistrationForm `json:"formData"`
}

type InitiatePaymentRequest struct {
	ServiceID     string            `json:"serviceId"`
	Amount        float64           `json:"amount"`
	Currency      string            `json:"currency,omitempty"`
	PaymentMethod string            `json:"paymentMethod,omitempty"`
	Notes         map[string]string `json:"notes,omitempty"`
}

type InitiatePaymentResponse struct {
	Payment models.Payment `json:"payment"`
	OrderID string         `json:"orderId"`
	KeyID   string         `json:"keyId"`
}

// ListOptions are the shared list filters. Zero values are omitted.
type ListOptions struct {
	Search   string
	Category string
	Status   string
	Range    string
}

func (o ListOptions) query() string {
	v := url.Values{}
	if o.Search != "" {
		v.Set("search", o.Search)
	}
	if o.Category != "" {
		v.Set("category", o.Category)
	}
	if o.Status != "" {
		v.Set("status", o.Status)
	}
	if o.Range != "" {
		v.Set("range", o.Range)
	}
	if len(v) == 0 {
		return ""
	}
	return "?" + v.Encode()
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	var s Session
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", req, &s); err != nil {
		return nil, err
	}
	c.tokens.SetToken(s.Token)
	return &s, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	var s Session
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", body, &s); err != nil {
		return nil, err
	}
	c.tokens.SetToken(s.Token)
	return &s, nil
}

func (c *Client) Logout() { c.tokens.SetToken("") }

func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var out struct {
		User models.User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

func (c *Client) Services(ctx context.Context, opts ListOptions) ([]models.Service, error) {
	var out []models.Service
	err := c.do(ctx, http.MethodGet, "/api/services"+opts.query(), nil, &out)
	return out, err
}

func (c *Client) Service(ctx context.Context, id string) (*models.Service, error) {
	var out models.Service
	if err := c.do(ctx, http.MethodGet, "/api/services/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RegisteredServices(ctx context.Context, opts ListOptions) ([]models.RegisteredService, error) {
	var out []models.RegisteredService
	err := c.do(ctx, http.MethodGet, "/api/registered-services"+opts.query(), nil, &out)
	return out, err
}

func (c *Client) RegisterService(ctx context.Context, req RegisterServiceRequest) (*models.RegisteredService, error) {
	var out models.RegisteredService
	if err := c.do(ctx, http.MethodPost, "/api/registered-services", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Messages(ctx context.Context, serviceID string) ([]models.Message, error) {
	var out []models.Message
	err := c.do(ctx, http.MethodGet, "/api/messages/service/"+url.PathEscape(serviceID), nil, &out)
	return out, err
}

func (c *Client) SendMessage(ctx context.Context, serviceID, content string) (*models.Message, error) {
	var out models.Message
	body := map[string]string{"content": content}
	if err := c.do(ctx, http.MethodPost, "/api/messages/service/"+url.PathEscape(serviceID), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MarkRead flags the thread's messages from other senders as read and returns how many changed.
func (c *Client) MarkRead(ctx context.Context, serviceID string) (int64, error) {
	var out struct {
		Updated int64 `json:"updated"`
	}
	err := c.do(ctx, http.MethodPatch, "/api/messages/service/"+url.PathEscape(serviceID)+"/read", nil, &out)
	return out.Updated, err
}

func (c *Client) InitiatePayment(ctx context.Context, req InitiatePaymentRequest) (*InitiatePaymentResponse, error) {
	var out InitiatePaymentResponse
	if err := c.do(ctx, http.MethodPost, "/api/payments/initiate", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var e struct {
			Error   string              `json:"error"`
			Message string              `json:"message"`
			Details []models.FieldError `json:"details"`
		}
		if json.Unmarshal(respBody, &e) == nil {
			if e.Error != "" {
				apiErr.Message = e.Error
			}
			if e.Message != "" {
				apiErr.Message += ": " + e.Message
			}
			apiErr.Details = e.Details
		}
		return apiErr
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
