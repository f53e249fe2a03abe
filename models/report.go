package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	ReportCompleted  = "Completed"
	ReportProcessing = "Processing"
	ReportFailed     = "Failed"
)

// ReportMetrics is what a generation run computes.
type ReportMetrics struct {
	TotalUsers           int64   `bson:"totalUsers" json:"totalUsers"`
	ActiveUsers          int64   `bson:"activeUsers" json:"activeUsers"`
	TotalFreelancers     int64   `bson:"totalFreelancers" json:"totalFreelancers"`
	ActiveServices       int64   `bson:"activeServices" json:"activeServices"`
	Registrations        int64   `bson:"registrations" json:"registrations"`
	PendingRegistrations int64   `bson:"pendingRegistrations" json:"pendingRegistrations"`
	CompletedPayments    int64   `bson:"completedPayments" json:"completedPayments"`
	Revenue              float64 `bson:"revenue" json:"revenue"`
	ConversionRate       float64 `bson:"conversionRate" json:"conversionRate"`
}

// ReportData is the report payload. Keys other than the typed ones are kept in Extra.
type ReportData struct {
	Metrics *ReportMetrics         `bson:"metrics,omitempty" json:"metrics,omitempty"`
	Summary string                 `bson:"summary,omitempty" json:"summary,omitempty"`
	Extra   map[string]interface{} `bson:",inline" json:"-"`
}

func (d ReportData) MarshalJSON() ([]byte, error) {
	type known ReportData
	return marshalWithExtra(known(d), d.Extra)
}

func (d *ReportData) UnmarshalJSON(data []byte) error {
	type known ReportData
	var k known
	extra, err := splitExtra(data, &k, "metrics", "summary")
	if err != nil {
		return err
	}
	*d = ReportData(k)
	d.Extra = extra
	return nil
}

type Report struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name          string             `bson:"name" json:"name"`
	Category      string             `bson:"category" json:"category"`
	LastGenerated *time.Time         `bson:"lastGenerated,omitempty" json:"lastGenerated"`
	Status        string             `bson:"status" json:"status"`
	Data          ReportData         `bson:"data" json:"data"`
	CreatedAt     time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt" json:"updatedAt"`
}

func (r *Report) Validate() error {
	var c checker
	c.required("name", r.Name)
	c.required("category", r.Category)
	c.oneOf("status", r.Status, ReportCompleted, ReportProcessing, ReportFailed)
	return c.errs.OrNil()
}
