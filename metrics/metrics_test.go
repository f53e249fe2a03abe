package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/api/services/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/services/123", nil))
	require.Equal(t, http.StatusOK, w.Code)

	m.RecordJob("report.generate", "completed", 10*time.Millisecond)
	m.RecordPayment("completed")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(w.Body)

	assert.Contains(t, string(body), `marketplace_http_requests_total{method="GET",path="/api/services/:id",status="200"} 1`)
	assert.Contains(t, string(body), `marketplace_jobs_runs_total{kind="report.generate",status="completed"} 1`)
	assert.Contains(t, string(body), `marketplace_payments_transitions_total{status="completed"} 1`)
}
