package jobs

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"marketplace/models"
	"marketplace/store"

	"go.mongodb.org/mongo-driver/bson"
)

var ErrSimulatedFailure = errors.New("simulated failure")

// Tasks holds the job handlers that act on reports and integrations.
type Tasks struct {
	Store *store.Store
	// FailureRate is the probability in [0,1] that a run fails on purpose.
	FailureRate float64
	Now         func() time.Time
	Rand        func() float64
}

func NewTasks(s *store.Store, failureRate float64) *Tasks {
	return &Tasks{Store: s, FailureRate: failureRate, Now: time.Now, Rand: rand.Float64}
}

// Register binds every task handler to r.
func (t *Tasks) Register(r *Runner) {
	r.Register(models.JobReportGenerate, t.GenerateReport)
	r.Register(models.JobIntegrationToggle, t.ToggleIntegration)
}

func (t *Tasks) fail() bool {
	return t.FailureRate > 0 && t.Rand() < t.FailureRate
}

// GenerateReport computes live marketplace metrics into the report and marks it Completed.
func (t *Tasks) GenerateReport(ctx context.Context, job *models.Job) error {
	id := job.TargetID.Hex()
	report, err := t.Store.Reports.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load report: %w", err)
	}

	m, err := t.ComputeMetrics(ctx)
	if err == nil && t.fail() {
		err = ErrSimulatedFailure
	}
	if err != nil {
		t.markReportFailed(ctx, id)
		return err
	}

	now := t.Now()
	_, err = t.Store.Reports.Update(ctx, id, bson.M{
		"status":        models.ReportCompleted,
		"lastGenerated": now,
		"data.metrics":  m,
		"data.summary":  fmt.Sprintf("%s report %q generated at %s", report.Category, report.Name, now.UTC().Format(time.RFC3339)),
	})
	if err != nil {
		t.markReportFailed(ctx, id)
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

func (t *Tasks) markReportFailed(ctx context.Context, id string) {
	_, _ = t.Store.Reports.Update(ctx, id, bson.M{"status": models.ReportFailed})
}

// ComputeMetrics counts the current state of the marketplace.
func (t *Tasks) ComputeMetrics(ctx context.Context) (*models.ReportMetrics, error) {
	s := t.Store
	var m models.ReportMetrics
	var err error

	counts := []struct {
		dst  *int64
		repo func() (int64, error)
	}{
		{&m.TotalUsers, func() (int64, error) { return s.Users.Count(ctx, store.Query{}) }},
		{&m.ActiveUsers, func() (int64, error) { return s.Users.Count(ctx, store.Query{}.Eq("isActive", true)) }},
		{&m.TotalFreelancers, func() (int64, error) { return s.Freelancers.Count(ctx, store.Query{}) }},
		{&m.ActiveServices, func() (int64, error) {
			return s.Services.Count(ctx, store.Query{}.Eq("status", models.ServiceActive))
		}},
		{&m.Registrations, func() (int64, error) { return s.RegisteredServices.Count(ctx, store.Query{}) }},
		{&m.PendingRegistrations, func() (int64, error) {
			return s.RegisteredServices.Count(ctx, store.Query{}.Eq("status", models.RegistrationPending))
		}},
	}
	for _, c := range counts {
		if *c.dst, err = c.repo(); err != nil {
			return nil, fmt.Errorf("count: %w", err)
		}
	}

	completed, err := s.Payments.List(ctx, store.Query{}.Eq("status", models.PaymentCompleted))
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	m.CompletedPayments = int64(len(completed))
	for _, p := range completed {
		m.Revenue += p.Amount
	}
	m.Revenue = round2(m.Revenue)
	if m.Registrations > 0 {
		m.ConversionRate = round2(float64(m.CompletedPayments) / float64(m.Registrations) * 100)
	}
	return &m, nil
}

// ToggleIntegration applies the status carried in the job payload and records
// the connection timestamps. On failure the previous status is restored.
func (t *Tasks) ToggleIntegration(ctx context.Context, job *models.Job) error {
	id := job.TargetID.Hex()
	if _, err := t.Store.Integrations.Get(ctx, id); err != nil {
		return fmt.Errorf("load integration: %w", err)
	}

	target := job.Payload["status"]
	previous := job.Payload["previous"]
	if target != models.IntegrationConnected && target != models.IntegrationDisconnected {
		return fmt.Errorf("invalid target status %q", target)
	}

	if t.fail() {
		_, _ = t.Store.Integrations.Update(ctx, id, bson.M{
			"status":                  previous,
			"config.connectionStatus": models.ConnectionError,
		})
		return ErrSimulatedFailure
	}

	now := t.Now()
	set := bson.M{"status": target}
	if target == models.IntegrationConnected {
		set["config.lastConnected"] = now
		set["config.connectionStatus"] = models.ConnectionActive
	} else {
		set["config.lastDisconnected"] = now
		set["config.connectionStatus"] = models.ConnectionInactive
	}
	if _, err := t.Store.Integrations.Update(ctx, id, set); err != nil {
		return fmt.Errorf("save integration: %w", err)
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
