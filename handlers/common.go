package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"marketplace/auth"
	"marketplace/jobs"
	"marketplace/media"
	"marketplace/middleware"
	"marketplace/models"
	"marketplace/notify"
	"marketplace/payment"
	"marketplace/store"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/oauth2"
)

const requestTimeout = 10 * time.Second

// Publisher receives realtime events for admin dashboards.
type Publisher interface {
	Publish(eventType string, payload interface{})
}

// Deps is the application context shared by every handler. It is built once in main.
type Deps struct {
	Store       *store.Store
	Tokens      *auth.TokenManager
	Gateway     *payment.Gateway
	Jobs        *jobs.Runner
	Events      Publisher
	Notify      *notify.Dispatcher
	Push        *notify.WebPush
	Media       media.Uploader
	Google      *oauth2.Config
	Payments    PaymentRecorder
	Log         *logrus.Logger
	Currency    string
	ReportDelay time.Duration
	ToggleDelay time.Duration
	Now         func() time.Time
}

// PaymentRecorder counts payment status transitions.
type PaymentRecorder interface {
	RecordPayment(status string)
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Deps) publish(eventType string, payload interface{}) {
	if d.Events != nil {
		d.Events.Publish(eventType, payload)
	}
}

// fail maps domain errors onto HTTP responses. entity names the resource in 404 messages.
func (d *Deps) fail(c *gin.Context, err error, entity string) {
	var verrs models.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed", "details": verrs})
	case errors.Is(err, store.ErrInvalidID):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + lowerFirst(entity) + " id"})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": entity + " not found"})
	case errors.Is(err, store.ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": entity + " already exists"})
	case errors.Is(err, jobs.ErrNotCancellable):
		c.JSON(http.StatusConflict, gin.H{"error": "Job is no longer pending"})
	default:
		d.Log.WithError(err).WithFields(logrus.Fields{
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		}).Error("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func forbidden(c *gin.Context) {
	c.JSON(http.StatusForbidden, gin.H{
		"error":   "Forbidden",
		"message": "You do not have access to this resource",
	})
}

// identity returns the caller; routes using it always sit behind JWTAuth.
func identity(c *gin.Context) auth.Identity {
	id, _ := middleware.CurrentIdentity(c)
	return id
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'A' && b[0] <= 'Z' {
		b[0] += 'a' - 'A'
	}
	return string(b)
}

// listQuery reads the shared list filters: search, category, status and a date range
// applied to recencyField, which also orders the result newest first.
func (d *Deps) listQuery(c *gin.Context, recencyField string, searchFields ...string) (store.Query, error) {
	q := store.Query{}.Sort(recencyField, true)
	if s := c.Query("search"); s != "" {
		q = q.Matching(s, searchFields...)
	}
	if cat := c.Query("category"); cat != "" && cat != "all" {
		q = q.Eq("category", cat)
	}
	if st := c.Query("status"); st != "" && st != "all" {
		q = q.Eq("status", st)
	}
	since, ok, err := store.RangeSince(firstNonEmpty(c.Query("range"), c.Query("dateRange")), d.now())
	if err != nil {
		return q, models.ValidationErrors{{Field: "range", Message: err.Error()}}
	}
	if ok {
		q = q.Gte(recencyField, since)
	}
	return q, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// patch merges a JSON body onto doc and returns the $set for the allowed keys present in it.
// validate runs against the merged document; only errors on touched fields count.
func patch(c *gin.Context, doc interface{}, validate func() error, allowed ...string) (bson.M, error) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, models.ValidationErrors{{Field: "body", Message: "must be a JSON object"}}
	}

	var touched []string
	for _, key := range allowed {
		if _, ok := raw[key]; ok {
			touched = append(touched, key)
		}
	}
	if len(touched) == 0 {
		return nil, models.ValidationErrors{{Field: "body", Message: "no updatable fields supplied"}}
	}

	if err := json.Unmarshal(body, doc); err != nil {
		return nil, models.ValidationErrors{{Field: "body", Message: err.Error()}}
	}
	if validate != nil {
		if err := validate(); err != nil {
			var verrs models.ValidationErrors
			if !errors.As(err, &verrs) {
				return nil, err
			}
			if relevant := verrs.Only(touched); len(relevant) > 0 {
				return nil, relevant
			}
		}
	}

	raw2, err := bson.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var full bson.M
	if err := bson.Unmarshal(raw2, &full); err != nil {
		return nil, err
	}
	set := bson.M{}
	for _, key := range touched {
		if v, ok := full[key]; ok {
			set[key] = v
		} else {
			set[key] = nil
		}
	}
	return set, nil
}

// bind decodes the request body and reports binding failures as validation errors.
func bind(c *gin.Context, req interface{}) error {
	err := c.ShouldBindJSON(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return models.ValidationErrors{{Field: "body", Message: err.Error()}}
	}
	out := make(models.ValidationErrors, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, models.FieldError{Field: fe.Field(), Message: tagMessage(fe)})
	}
	return out
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "oneof":
		return "must be one of " + fe.Param()
	case "objectid":
		return "must be a valid id"
	case "decimal2":
		return "must have at most 2 decimal places"
	}
	return "failed " + fe.Tag() + " validation"
}
