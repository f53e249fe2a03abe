package jobs

import (
	"context"
	"testing"
	"time"

	"marketplace/models"
	"marketplace/store"
	"marketplace/store/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedMarketplace(t *testing.T, s *store.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Users.Create(ctx, &models.User{Email: "a@x.com", Role: models.RoleUser, IsActive: true}))
	require.NoError(t, s.Users.Create(ctx, &models.User{Email: "b@x.com", Role: models.RoleUser}))
	require.NoError(t, s.Services.Create(ctx, &models.Service{Name: "Logo", Status: models.ServiceActive}))
	require.NoError(t, s.Services.Create(ctx, &models.Service{Name: "Audit", Status: models.ServiceDraft}))
	for _, status := range []string{models.RegistrationPending, models.RegistrationActive, models.RegistrationPending, models.RegistrationCompleted} {
		require.NoError(t, s.RegisteredServices.Create(ctx, &models.RegisteredService{Name: "Logo", Status: status, UserEmail: "a@x.com"}))
	}
	require.NoError(t, s.Payments.Create(ctx, &models.Payment{TransactionID: "TXN1", Amount: 100.25, Status: models.PaymentCompleted}))
	require.NoError(t, s.Payments.Create(ctx, &models.Payment{TransactionID: "TXN2", Amount: 50.5, Status: models.PaymentPending}))
}

func fixedTasks(s *store.Store, roll float64) *Tasks {
	tasks := NewTasks(s, 0.5)
	tasks.Rand = func() float64 { return roll }
	tasks.Now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return tasks
}

func TestComputeMetrics(t *testing.T) {
	s := memstore.New()
	seedMarketplace(t, s)

	m, err := NewTasks(s, 0).ComputeMetrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), m.TotalUsers)
	assert.Equal(t, int64(1), m.ActiveUsers)
	assert.Equal(t, int64(1), m.ActiveServices)
	assert.Equal(t, int64(4), m.Registrations)
	assert.Equal(t, int64(2), m.PendingRegistrations)
	assert.Equal(t, int64(1), m.CompletedPayments)
	assert.InDelta(t, 100.25, m.Revenue, 1e-9)
	assert.InDelta(t, 25.0, m.ConversionRate, 1e-9)
}

func TestGenerateReport(t *testing.T) {
	ctx := context.Background()

	t.Run("completes with metrics", func(t *testing.T) {
		s := memstore.New()
		seedMarketplace(t, s)
		report := &models.Report{Name: "Monthly", Category: "Sales", Status: models.ReportProcessing}
		require.NoError(t, s.Reports.Create(ctx, report))

		err := fixedTasks(s, 0.9).GenerateReport(ctx, &models.Job{TargetID: report.ID})
		require.NoError(t, err)

		got, err := s.Reports.Get(ctx, report.ID.Hex())
		require.NoError(t, err)
		assert.Equal(t, models.ReportCompleted, got.Status)
		require.NotNil(t, got.LastGenerated)
		require.NotNil(t, got.Data.Metrics)
		assert.Equal(t, int64(2), got.Data.Metrics.TotalUsers)
		assert.Contains(t, got.Data.Summary, "Monthly")
	})

	t.Run("simulated failure marks report failed", func(t *testing.T) {
		s := memstore.New()
		report := &models.Report{Name: "Weekly", Category: "Ops", Status: models.ReportProcessing}
		require.NoError(t, s.Reports.Create(ctx, report))

		err := fixedTasks(s, 0.1).GenerateReport(ctx, &models.Job{TargetID: report.ID})
		assert.ErrorIs(t, err, ErrSimulatedFailure)

		got, _ := s.Reports.Get(ctx, report.ID.Hex())
		assert.Equal(t, models.ReportFailed, got.Status)
		assert.Nil(t, got.LastGenerated)
	})

	t.Run("deleted report is not recreated", func(t *testing.T) {
		s := memstore.New()
		report := &models.Report{Name: "Gone", Category: "Ops", Status: models.ReportProcessing}
		require.NoError(t, s.Reports.Create(ctx, report))
		require.NoError(t, s.Reports.Delete(ctx, report.ID.Hex()))

		err := fixedTasks(s, 0.9).GenerateReport(ctx, &models.Job{TargetID: report.ID})
		assert.ErrorIs(t, err, store.ErrNotFound)

		n, _ := s.Reports.Count(ctx, store.Query{})
		assert.Zero(t, n)
	})
}

func TestToggleIntegration(t *testing.T) {
	ctx := context.Background()
	newIntegration := func(t *testing.T, s *store.Store) *models.Integration {
		in := &models.Integration{Name: "Slack", Category: "chat", Status: models.IntegrationConnected}
		require.NoError(t, s.Integrations.Create(ctx, in))
		return in
	}

	t.Run("connect stamps lastConnected", func(t *testing.T) {
		s := memstore.New()
		in := newIntegration(t, s)
		job := &models.Job{TargetID: in.ID, Payload: map[string]string{"status": models.IntegrationConnected, "previous": models.IntegrationDisconnected}}

		require.NoError(t, fixedTasks(s, 0.9).ToggleIntegration(ctx, job))

		got, _ := s.Integrations.Get(ctx, in.ID.Hex())
		assert.Equal(t, models.IntegrationConnected, got.Status)
		assert.Equal(t, models.ConnectionActive, got.Config.ConnectionStatus)
		require.NotNil(t, got.Config.LastConnected)
		assert.Nil(t, got.Config.LastDisconnected)
	})

	t.Run("disconnect stamps lastDisconnected", func(t *testing.T) {
		s := memstore.New()
		in := newIntegration(t, s)
		job := &models.Job{TargetID: in.ID, Payload: map[string]string{"status": models.IntegrationDisconnected, "previous": models.IntegrationConnected}}

		require.NoError(t, fixedTasks(s, 0.9).ToggleIntegration(ctx, job))

		got, _ := s.Integrations.Get(ctx, in.ID.Hex())
		assert.Equal(t, models.IntegrationDisconnected, got.Status)
		assert.Equal(t, models.ConnectionInactive, got.Config.ConnectionStatus)
		assert.NotNil(t, got.Config.LastDisconnected)
	})

	t.Run("failure restores previous status", func(t *testing.T) {
		s := memstore.New()
		in := newIntegration(t, s)
		job := &models.Job{TargetID: in.ID, Payload: map[string]string{"status": models.IntegrationDisconnected, "previous": models.IntegrationConnected}}

		err := fixedTasks(s, 0.1).ToggleIntegration(ctx, job)
		assert.ErrorIs(t, err, ErrSimulatedFailure)

		got, _ := s.Integrations.Get(ctx, in.ID.Hex())
		assert.Equal(t, models.IntegrationConnected, got.Status)
		assert.Equal(t, models.ConnectionError, got.Config.ConnectionStatus)
	})

	t.Run("bad payload", func(t *testing.T) {
		s := memstore.New()
		in := newIntegration(t, s)
		err := fixedTasks(s, 0.9).ToggleIntegration(ctx, &models.Job{TargetID: in.ID})
		assert.Error(t, err)
	})
}

func TestTasksThroughRunner(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	report := &models.Report{Name: "Daily", Category: "Sales", Status: models.ReportProcessing}
	require.NoError(t, s.Reports.Create(ctx, report))

	r := newTestRunner(t, s.Jobs)
	fixedTasks(s, 0.9).Register(r)

	_, err := r.Schedule(ctx, models.JobReportGenerate, report.ID, 5*time.Millisecond, nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		got, err := s.Reports.Get(ctx, report.ID.Hex())
		return err == nil && got.Status == models.ReportCompleted
	}, 2*time.Second, 5*time.Millisecond)
}
