package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"marketplace/auth"
	"marketplace/handlers"
	"marketplace/jobs"
	"marketplace/logger"
	"marketplace/models"
	"marketplace/notify"
	"marketplace/payment"
	"marketplace/store"
	"marketplace/store/memstore"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type sentNotification struct {
	recipient string
	n         notify.Notification
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (r *recordingNotifier) Notify(_ context.Context, recipient string, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentNotification{recipient: recipient, n: n})
	return nil
}

func (r *recordingNotifier) recipients() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sent))
	for _, s := range r.sent {
		out = append(out, s.recipient)
	}
	return out
}

type recordingEvents struct {
	mu    sync.Mutex
	types []string
}

func (e *recordingEvents) Publish(eventType string, _ interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.types = append(e.types, eventType)
}

func (e *recordingEvents) has(eventType string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, t := range e.types {
		if t == eventType {
			return true
		}
	}
	return false
}

type fakeUploader struct {
	publicID string
}

func (f *fakeUploader) UploadImage(_ context.Context, file io.Reader, publicID string) (string, error) {
	if _, err := io.ReadAll(file); err != nil {
		return "", err
	}
	f.publicID = publicID
	return "https://cdn.example.com/" + publicID + ".jpg", nil
}

type harness struct {
	t        *testing.T
	router   *gin.Engine
	store    *store.Store
	deps     *handlers.Deps
	notifier *recordingNotifier
	events   *recordingEvents
}

type harnessOption func(*handlers.Deps)

func withReportDelay(d time.Duration) harnessOption {
	return func(deps *handlers.Deps) { deps.ReportDelay = d }
}

func withUploader(u *fakeUploader) harnessOption {
	return func(deps *handlers.Deps) { deps.Media = u }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	log := logger.Discard()
	st := memstore.New()

	runner := jobs.NewRunner(st.Jobs, log)
	jobs.NewTasks(st, 0).Register(runner)
	t.Cleanup(runner.Stop)

	notifier := &recordingNotifier{}
	events := &recordingEvents{}
	deps := &handlers.Deps{
		Store:       st,
		Tokens:      auth.NewTokenManager("test-secret", time.Hour),
		Gateway:     payment.NewGateway("rzp_test_key", "rzp_test_secret"),
		Jobs:        runner,
		Events:      events,
		Notify:      notify.NewDispatcher(log, notifier),
		Log:         log,
		Currency:    models.DefaultCurrency,
		ReportDelay: 20 * time.Millisecond,
		ToggleDelay: 20 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(deps)
	}

	router, err := SetupRouter(deps, Options{CORSOrigins: []string{"http://localhost:3000"}})
	require.NoError(t, err)
	return &harness{t: t, router: router, store: st, deps: deps, notifier: notifier, events: events}
}

func (h *harness) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	h.t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(h.t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

type session struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// signup registers a user through the API and returns its token.
func (h *harness) signup(email, firstName string) session {
	h.t.Helper()
	w := h.do(http.MethodPost, "/api/auth/register", "", gin.H{
		"email":     email,
		"password":  "secret123",
		"firstName": firstName,
	})
	require.Equal(h.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[session](h.t, w)
}

// admin inserts an admin account directly and issues its token.
func (h *harness) admin() string {
	h.t.Helper()
	u := &models.User{
		Email:     "admin@example.com",
		FirstName: "Ada",
		Role:      models.RoleAdmin,
		Status:    models.UserStatusActive,
		IsActive:  true,
	}
	require.NoError(h.t, h.store.Users.Create(context.Background(), u))
	token, _, err := h.deps.Tokens.Issue(auth.Identity{ID: u.ID.Hex(), Email: u.Email, Role: u.Role})
	require.NoError(h.t, err)
	return token
}

func (h *harness) service(name string) *models.Service {
	h.t.Helper()
	svc := &models.Service{
		Name:        name,
		Description: name + " for growing teams",
		Category:    "development",
		Pricing:     models.Pricing{Base: 499},
		Status:      models.ServiceActive,
	}
	require.NoError(h.t, h.store.Services.Create(context.Background(), svc))
	return svc
}

func (h *harness) register(token string, svc *models.Service) models.RegisteredService {
	h.t.Helper()
	w := h.do(http.MethodPost, "/api/registered-services", token, gin.H{
		"serviceId": svc.ID.Hex(),
		"duration":  "3 months",
		"formData":  gin.H{"preferredDate": "2026-11-02", "paymentMethod": "card"},
	})
	require.Equal(h.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[models.RegisteredService](h.t, w)
}
