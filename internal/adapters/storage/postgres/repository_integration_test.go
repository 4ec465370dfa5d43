//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/hylla/fieldwork/internal/app"
	"github.com/hylla/fieldwork/internal/domain"
)

func TestRepositoryActivityLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := startRepository(t, ctx)

	now := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)
	march := domain.Period{Month: time.March, Year: 2026}
	start := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	activity, err := domain.NewActivity(domain.ActivityInput{
		ID:       "a1",
		Name:     "Household survey",
		Schedule: domain.Schedule{DataCollection: domain.DateRange{Start: &start}},
		HonorariumSettings: []domain.HonorariumSetting{
			{TaskType: domain.TaskTypeListing, UnitPrice: 5000},
			{TaskType: domain.TaskTypeEnumeration, UnitPrice: 15000},
		},
	}, now)
	require.NoError(t, err)
	_, err = activity.AddAssignment(domain.WorkerAssignmentInput{
		ID:       "as1",
		WorkerID: "w1",
		Phase:    domain.PhaseDataCollection,
		Units:    map[domain.TaskType]int64{domain.TaskTypeEnumeration: 100},
	}, now)
	require.NoError(t, err)
	require.NoError(t, repo.CreateActivity(ctx, activity))

	event, err := activity.SetStageValue("as1", domain.StageSubmitted, 40, "enumerator-1", now.Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, repo.UpdateActivityWithEvent(ctx, activity, event))

	stored, err := repo.GetActivity(ctx, "a1")
	require.NoError(t, err)
	as, ok := stored.Assignment("as1")
	require.True(t, ok)
	require.Equal(t, [domain.StageCount]int64{60, 40, 0, 0}, as.Counters.Values)
	require.Equal(t, int64(1500000), as.Honor())
	require.Equal(t, domain.TaskTypeListing, as.Details[0].TaskType)
	require.NotNil(t, stored.LastProgressAt)
	require.Equal(t, "enumerator-1", stored.LastProgressBy)

	found, err := repo.FindActivitiesPayingWorkerInMonth(ctx, "w1", march, "")
	require.NoError(t, err)
	require.Len(t, found, 1)
	excluded, err := repo.FindActivitiesPayingWorkerInMonth(ctx, "w1", march, "a1")
	require.NoError(t, err)
	require.Empty(t, excluded)

	events, err := repo.ListProgressEvents(ctx, "a1", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, int64(40), events[0].NewValue)

	_, err = repo.GetActivity(ctx, "missing")
	require.ErrorIs(t, err, app.ErrNotFound)
}

func TestRepositorySettingsAndDocuments(t *testing.T) {
	ctx := context.Background()
	repo := startRepository(t, ctx)

	_, ok, err := repo.GetHonorLimit(ctx)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, repo.SetHonorLimit(ctx, 3000000))
	limit, ok, err := repo.GetHonorLimit(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(3000000), limit)

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	activity, err := domain.NewActivity(domain.ActivityInput{ID: "a1", Name: "Survey"}, now)
	require.NoError(t, err)
	require.NoError(t, repo.CreateActivity(ctx, activity))

	doc, err := domain.NewDocumentRecord(domain.DocumentInput{ID: "d1", ActivityID: "a1", Phase: domain.PhaseDataCollection, Name: "Field report", Mandatory: true}, now)
	require.NoError(t, err)
	require.NoError(t, repo.UpsertDocument(ctx, doc))
	doc.Approval = domain.ApprovalApproved
	require.NoError(t, repo.UpsertDocument(ctx, doc))

	docs, err := repo.GetMandatoryDocuments(ctx, "a1", domain.PhaseDataCollection)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, domain.ApprovalApproved, docs[0].Approval)
}

func startRepository(t *testing.T, ctx context.Context) *Repository {
	t.Helper()
	pg, err := postgrescontainer.Run(ctx, "postgres:16-alpine",
		postgrescontainer.WithDatabase("fieldwork"),
		postgrescontainer.WithUsername("fieldwork"),
		postgrescontainer.WithPassword("fieldwork"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	repo, err := Open(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
