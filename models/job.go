package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type JobKind string

const (
	JobReportGenerate    JobKind = "report.generate"
	JobIntegrationToggle JobKind = "integration.toggle"
)

const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
	JobCancelled = "cancelled"
)

// Job is a persisted deferred action. Pending jobs survive restarts.
type Job struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Kind         JobKind            `bson:"kind" json:"kind"`
	TargetID     primitive.ObjectID `bson:"targetId" json:"targetId"`
	Status       string             `bson:"status" json:"status"`
	ScheduledFor time.Time          `bson:"scheduledFor" json:"scheduledFor"`
	Attempts     int                `bson:"attempts" json:"attempts"`
	LastError    string             `bson:"lastError,omitempty" json:"lastError,omitempty"`
	Payload      map[string]string  `bson:"payload,omitempty" json:"payload,omitempty"`
	FinishedAt   *time.Time         `bson:"finishedAt,omitempty" json:"finishedAt,omitempty"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// Terminal reports whether the job will not run again.
func (j *Job) Terminal() bool {
	switch j.Status {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}
