package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"marketplace/auth"
	"marketplace/handlers"
	"marketplace/logger"
	"marketplace/models"
	"marketplace/payment"
	"marketplace/routes"
	"marketplace/store"
	"marketplace/store/memstore"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) (*httptest.Server, *store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	st := memstore.New()
	deps := &handlers.Deps{
		Store:    st,
		Tokens:   auth.NewTokenManager("client-test", time.Hour),
		Gateway:  payment.NewGateway("key", "secret"),
		Log:      logger.Discard(),
		Currency: models.DefaultCurrency,
	}
	router, err := routes.SetupRouter(deps, routes.Options{})
	require.NoError(t, err)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, st
}

func seedService(t *testing.T, st *store.Store) *models.Service {
	t.Helper()
	svc := &models.Service{
		Name:        "Mobile App",
		Description: "iOS and Android",
		Category:    "development",
		Status:      models.ServiceActive,
	}
	require.NoError(t, st.Services.Create(context.Background(), svc))
	return svc
}

func TestClientWorkflow(t *testing.T) {
	srv, st := newServer(t)
	svc := seedService(t, st)
	ctx := context.Background()
	c := New(srv.URL)

	_, err := c.Me(ctx)
	assert.True(t, IsStatus(err, http.StatusUnauthorized))

	sess, err := c.Register(ctx, RegisterRequest{Email: "kim@example.com", Password: "secret123", FirstName: "Kim"})
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)

	me, err := c.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "kim@example.com", me.Email)

	services, err := c.Services(ctx, ListOptions{Search: "mobile"})
	require.NoError(t, err)
	require.Len(t, services, 1)

	reg, err := c.RegisterService(ctx, RegisterServiceRequest{
		ServiceID: services[0].ID.Hex(),
		FormData:  models.RegistrationForm{PaymentMethod: "upi"},
	})
	require.NoError(t, err)
	assert.Equal(t, svc.ID, reg.ServiceID)

	regs, err := c.RegisteredServices(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, regs, 1)

	_, err = c.SendMessage(ctx, reg.ID.Hex(), "Hi there")
	require.NoError(t, err)
	msgs, err := c.Messages(ctx, reg.ID.Hex())
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	n, err := c.MarkRead(ctx, reg.ID.Hex())
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = c.InitiatePayment(ctx, InitiatePaymentRequest{ServiceID: reg.ID.Hex(), Amount: 10.555})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	require.NotEmpty(t, apiErr.Details)
	assert.Equal(t, "amount", apiErr.Details[0].Field)

	pay, err := c.InitiatePayment(ctx, InitiatePaymentRequest{ServiceID: reg.ID.Hex(), Amount: 10.50})
	require.NoError(t, err)
	assert.Equal(t, "upi", pay.Payment.PaymentMethod)
	assert.Equal(t, pay.OrderID, pay.Payment.OrderID)

	c.Logout()
	_, err = c.RegisteredServices(ctx, ListOptions{})
	assert.True(t, IsStatus(err, http.StatusUnauthorized))
}

func TestPollMessagesReportsChanges(t *testing.T) {
	srv, st := newServer(t)
	seedService(t, st)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := New(srv.URL)
	_, err := c.Register(ctx, RegisterRequest{Email: "lee@example.com", Password: "secret123", FirstName: "Lee"})
	require.NoError(t, err)
	services, err := c.Services(ctx, ListOptions{})
	require.NoError(t, err)
	reg, err := c.RegisterService(ctx, RegisterServiceRequest{ServiceID: services[0].ID.Hex()})
	require.NoError(t, err)

	var mu sync.Mutex
	var seen []int
	done := errors.New("done")
	errCh := make(chan error, 1)
	go func() {
		errCh <- c.PollMessages(ctx, reg.ID.Hex(), 20*time.Millisecond, func(msgs []models.Message) error {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, len(msgs))
			if len(msgs) == 2 {
				return done
			}
			return nil
		})
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	}, time.Second, 5*time.Millisecond)

	_, err = c.SendMessage(ctx, reg.ID.Hex(), "first")
	require.NoError(t, err)
	_, err = c.SendMessage(ctx, reg.ID.Hex(), "second")
	require.NoError(t, err)

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, done)
	case <-ctx.Done():
		t.Fatal("poller did not observe the new messages")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, seen[0])
	assert.Equal(t, 2, seen[len(seen)-1])
}

func TestAPIErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"Forbidden","message":"You do not have access to this resource"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Service(context.Background(), "abc")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "Forbidden: You do not have access to this resource", apiErr.Message)
}
