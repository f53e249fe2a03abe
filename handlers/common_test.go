package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"marketplace/jobs"
	"marketplace/logger"
	"marketplace/models"
	"marketplace/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testContext(method, target, body string) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, target, strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	return c, w
}

func TestFailMapsErrors(t *testing.T) {
	d := &Deps{Log: logger.Discard()}
	tests := []struct {
		name string
		err  error
		code int
		msg  string
	}{
		{"validation", models.ValidationErrors{{Field: "name", Message: "is required"}}, http.StatusBadRequest, "Validation failed"},
		{"invalid id", store.ErrInvalidID, http.StatusBadRequest, "Invalid report id"},
		{"not found", store.ErrNotFound, http.StatusNotFound, "Report not found"},
		{"duplicate", store.ErrDuplicate, http.StatusConflict, "Report already exists"},
		{"not cancellable", jobs.ErrNotCancellable, http.StatusConflict, "Job is no longer pending"},
		{"unexpected", errors.New("connection reset"), http.StatusInternalServerError, "Internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := testContext(http.MethodGet, "/api/reports/1", "")
			d.fail(c, tt.err, "Report")
			assert.Equal(t, tt.code, w.Code)
			assert.Contains(t, w.Body.String(), tt.msg)
			assert.NotContains(t, w.Body.String(), "connection reset")
		})
	}
}

func TestPatchOnlyTouchedFields(t *testing.T) {
	svc := &models.Service{Name: "Audit", Description: "Security audit", Category: "security", Status: models.ServiceActive}

	c, _ := testContext(http.MethodPut, "/", `{"status":"draft","name":"ignored","unknown":1}`)
	set, err := patch(c, svc, svc.Validate, "status")
	require.NoError(t, err)
	assert.Equal(t, "draft", set["status"])
	assert.NotContains(t, set, "name")

	c, _ = testContext(http.MethodPut, "/", `{"unknown":1}`)
	_, err = patch(c, svc, svc.Validate, "status")
	var verrs models.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "body", verrs[0].Field)

	c, _ = testContext(http.MethodPut, "/", `[1,2]`)
	_, err = patch(c, svc, svc.Validate, "status")
	assert.ErrorAs(t, err, &verrs)
}

func TestPatchIgnoresErrorsOnUntouchedFields(t *testing.T) {
	// stored document predates the category requirement
	svc := &models.Service{Name: "Legacy", Description: "Old record", Status: models.ServiceActive}

	c, _ := testContext(http.MethodPut, "/", `{"status":"inactive"}`)
	set, err := patch(c, svc, svc.Validate, "status", "category")
	require.NoError(t, err)
	assert.Equal(t, "inactive", set["status"])

	c, _ = testContext(http.MethodPut, "/", `{"category":""}`)
	_, err = patch(c, svc, svc.Validate, "status", "category")
	var verrs models.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "category", verrs[0].Field)
}

func TestListQuery(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	d := &Deps{Log: logger.Discard(), Now: func() time.Time { return now }}

	c, _ := testContext(http.MethodGet, "/?search=Seo&category=all&status=active&range=last7", "")
	q, err := d.listQuery(c, "createdAt", "name")
	require.NoError(t, err)
	assert.Equal(t, "Seo", q.Search)
	assert.Equal(t, "createdAt", q.SortBy)
	assert.True(t, q.Descending)
	require.Len(t, q.Filters, 2)
	assert.Equal(t, "status", q.Filters[0].Field)
	assert.Equal(t, store.OpGte, q.Filters[1].Op)
	assert.Equal(t, now.AddDate(0, 0, -7), q.Filters[1].Value)

	c, _ = testContext(http.MethodGet, "/?dateRange=forever", "")
	_, err = d.listQuery(c, "createdAt")
	var verrs models.ValidationErrors
	assert.ErrorAs(t, err, &verrs)
}
