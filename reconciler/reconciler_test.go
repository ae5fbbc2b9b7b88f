package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoapitester/api-acceptor/types"
)

var fixedNow = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func newTestReconciler(t *testing.T) (*Reconciler, *Memstore) {
	t.Helper()
	store := NewMemstore()
	r, err := New(Config{Store: store, Now: func() time.Time { return fixedNow }})
	require.NoError(t, err)
	return r, store
}

func intPtr(v int) *int { return &v }

func seedJob(t *testing.T, r *Reconciler) *types.JobSchedule {
	t.Helper()
	job, err := r.UpsertJobSchedule(context.Background(), 1, "alice", &JobScheduleUpsert{
		Name:         "nightly",
		ScheduleType: types.ScheduleDaily,
		DailyTime:    "02:30",
		Suites: []SuiteUpsert{
			{
				Name:     "auth",
				Endpoint: "/api/login",
				Method:   "POST",
				Cases: []CaseUpsert{
					{Name: "valid login"},
					{Name: "bad password", ExpectedStatus: 401},
				},
			},
			{
				Name:     "users",
				Endpoint: "/api/users",
				Method:   "GET",
				Cases:    []CaseUpsert{{Name: "list"}},
			},
		},
	})
	require.NoError(t, err)
	return job
}

func TestUpsertCreatesNewTree(t *testing.T) {
	r, _ := newTestReconciler(t)
	job := seedJob(t, r)

	assert.False(t, job.ID.IsNew())
	assert.Equal(t, int64(1), job.UserID)
	assert.True(t, job.IsActive)
	require.NotNil(t, job.RunAtTime)
	assert.Equal(t, "02:30", job.RunAtTime.String())
	assert.Nil(t, job.IntervalMinutes)

	require.Len(t, job.Suites, 2)
	for _, s := range job.Suites {
		assert.False(t, s.ID.IsNew())
		assert.Equal(t, "alice", s.CreatedBy)
		for _, c := range s.Cases {
			assert.False(t, c.ID.IsNew())
		}
	}
	// Expected status defaults to 200 when unset.
	assert.Equal(t, 200, job.Suites[0].Cases[0].ExpectedStatus)
	assert.Equal(t, 401, job.Suites[0].Cases[1].ExpectedStatus)
}

func TestUpsertUnparsableDailyTimeKeptNil(t *testing.T) {
	r, _ := newTestReconciler(t)
	job, err := r.UpsertJobSchedule(context.Background(), 1, "alice", &JobScheduleUpsert{
		Name:         "loose",
		ScheduleType: types.ScheduleDaily,
		DailyTime:    "not-a-time",
	})
	require.NoError(t, err)
	assert.Nil(t, job.RunAtTime)
}

func TestUpsertIntervalHoursConvertedToMinutes(t *testing.T) {
	r, _ := newTestReconciler(t)
	job, err := r.UpsertJobSchedule(context.Background(), 1, "alice", &JobScheduleUpsert{
		Name:          "poller",
		ScheduleType:  types.ScheduleInterval,
		IntervalValue: intPtr(2),
		IntervalUnit:  "hours",
	})
	require.NoError(t, err)
	require.NotNil(t, job.IntervalMinutes)
	assert.Equal(t, 120, *job.IntervalMinutes)
	assert.Nil(t, job.RunAtTime)
}

func TestUpsertInvalidScheduleTypeRejected(t *testing.T) {
	r, _ := newTestReconciler(t)
	_, err := r.UpsertJobSchedule(context.Background(), 1, "alice", &JobScheduleUpsert{
		Name:         "bad",
		ScheduleType: "weekly",
	})
	require.Error(t, err)
}

func TestReconcileOrphanSuiteCascades(t *testing.T) {
	r, store := newTestReconciler(t)
	job := seedJob(t, r)
	jobID, _ := job.ID.Value()
	keptID, _ := job.Suites[0].ID.Value()

	// Resend the tree with only the first suite; the second is an orphan.
	updated, err := r.UpsertJobSchedule(context.Background(), 1, "alice", &JobScheduleUpsert{
		ID:           job.ID,
		Name:         "nightly",
		ScheduleType: types.ScheduleDaily,
		DailyTime:    "02:30",
		Suites: []SuiteUpsert{{
			ID:       job.Suites[0].ID,
			Name:     "auth",
			Endpoint: "/api/login",
			Method:   "POST",
			Cases: []CaseUpsert{
				{ID: job.Suites[0].Cases[0].ID, Name: "valid login"},
				{ID: job.Suites[0].Cases[1].ID, Name: "bad password", ExpectedStatus: 401},
			},
		}},
	})
	require.NoError(t, err)
	require.Len(t, updated.Suites, 1)

	stored, err := store.Load(context.Background(), jobID)
	require.NoError(t, err)
	require.Len(t, stored.Suites, 1)
	gotID, _ := stored.Suites[0].ID.Value()
	assert.Equal(t, keptID, gotID)
	// The surviving suite's cases are intact; the orphan's cases are gone
	// with it.
	assert.Len(t, stored.Suites[0].Cases, 2)
}

func TestReconcileNewIDAlwaysInserts(t *testing.T) {
	r, store := newTestReconciler(t)
	job := seedJob(t, r)
	jobID, _ := job.ID.Value()

	// Add a suite with no id duplicating an existing endpoint/method. It
	// must be inserted as a distinct row, not matched to the old one.
	dto := upsertFromJob(job)
	dto.Suites = append(dto.Suites, SuiteUpsert{
		Name:     "auth-copy",
		Endpoint: "/api/login",
		Method:   "POST",
		Cases:    []CaseUpsert{{Name: "dup"}},
	})
	_, err := r.UpsertJobSchedule(context.Background(), 1, "alice", dto)
	require.NoError(t, err)

	stored, err := store.Load(context.Background(), jobID)
	require.NoError(t, err)
	assert.Len(t, stored.Suites, 3)
}

func TestReconcileEmptySuiteNameKeepsStoredName(t *testing.T) {
	r, store := newTestReconciler(t)
	job := seedJob(t, r)
	jobID, _ := job.ID.Value()

	dto := upsertFromJob(job)
	dto.Suites[0].Name = ""
	dto.Suites[0].Endpoint = "/api/v2/login"
	_, err := r.UpsertJobSchedule(context.Background(), 1, "alice", dto)
	require.NoError(t, err)

	stored, err := store.Load(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, job.Suites[0].Name, stored.Suites[0].Name)
	assert.Equal(t, "/api/v2/login", stored.Suites[0].Endpoint)
}

func TestReconcileCaseLevelUpdateAndRemoval(t *testing.T) {
	r, store := newTestReconciler(t)
	job := seedJob(t, r)
	jobID, _ := job.ID.Value()

	dto := upsertFromJob(job)
	// Drop the second case of the first suite, rename the first, add one.
	dto.Suites[0].Cases = []CaseUpsert{
		{ID: job.Suites[0].Cases[0].ID, Name: "renamed login"},
		{Name: "brand new"},
	}
	_, err := r.UpsertJobSchedule(context.Background(), 1, "alice", dto)
	require.NoError(t, err)

	stored, err := store.Load(context.Background(), jobID)
	require.NoError(t, err)
	cases := stored.Suites[0].Cases
	require.Len(t, cases, 2)
	assert.Equal(t, "renamed login", cases[0].Name)
	assert.Equal(t, "brand new", cases[1].Name)
	firstID, _ := cases[0].ID.Value()
	wantID, _ := job.Suites[0].Cases[0].ID.Value()
	assert.Equal(t, wantID, firstID)
}

func TestReconcileUnknownSuiteIDAbortsWithoutMutation(t *testing.T) {
	r, store := newTestReconciler(t)
	job := seedJob(t, r)
	jobID, _ := job.ID.Value()

	dto := upsertFromJob(job)
	dto.Name = "should never land"
	dto.Suites[0].ID = types.ExistingID(9999)

	_, err := r.UpsertJobSchedule(context.Background(), 1, "alice", dto)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	// Nothing was staged: the stored tree is untouched, including the
	// job-level scalar fields updated before the failing suite.
	stored, loadErr := store.Load(context.Background(), jobID)
	require.NoError(t, loadErr)
	assert.Equal(t, "nightly", stored.Name)
	assert.Len(t, stored.Suites, 2)
}

func TestReconcileUnknownJobIDIsNotFound(t *testing.T) {
	r, _ := newTestReconciler(t)
	_, err := r.UpsertJobSchedule(context.Background(), 1, "alice", &JobScheduleUpsert{
		ID:           types.ExistingID(42),
		Name:         "ghost",
		ScheduleType: types.ScheduleDaily,
	})
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestUserScoping(t *testing.T) {
	r, _ := newTestReconciler(t)
	job := seedJob(t, r)
	jobID, _ := job.ID.Value()

	_, err := r.GetJobScheduleDetail(context.Background(), 2, jobID)
	assert.True(t, IsNotFound(err))

	dto := upsertFromJob(job)
	_, err = r.UpsertJobSchedule(context.Background(), 2, "mallory", dto)
	assert.True(t, IsNotFound(err))
}

func TestToggleActive(t *testing.T) {
	r, _ := newTestReconciler(t)
	job := seedJob(t, r)
	jobID, _ := job.ID.Value()

	active, err := r.ToggleActive(context.Background(), 1, jobID)
	require.NoError(t, err)
	assert.False(t, active)

	active, err = r.ToggleActive(context.Background(), 1, jobID)
	require.NoError(t, err)
	assert.True(t, active)
}

func TestListByUserNewestFirstWithoutTrees(t *testing.T) {
	r, _ := newTestReconciler(t)
	seedJob(t, r)

	jobs, err := r.GetJobSchedulesByUser(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Empty(t, jobs[0].Suites)

	jobs, err = r.GetJobSchedulesByUser(context.Background(), 2)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestDeleteJobSchedule(t *testing.T) {
	r, store := newTestReconciler(t)
	job := seedJob(t, r)
	jobID, _ := job.ID.Value()

	require.NoError(t, r.DeleteJobSchedule(context.Background(), 1, jobID))
	_, err := store.Load(context.Background(), jobID)
	assert.True(t, IsNotFound(err))
}

// upsertFromJob rebuilds the full-tree DTO a client would resend after
// loading the schedule detail.
func upsertFromJob(job *types.JobSchedule) *JobScheduleUpsert {
	dto := &JobScheduleUpsert{
		ID:           job.ID,
		Name:         job.Name,
		Description:  job.Description,
		ScheduleType: job.ScheduleType,
	}
	if job.RunAtTime != nil {
		dto.DailyTime = job.RunAtTime.String()
	}
	if job.IntervalMinutes != nil {
		dto.IntervalValue = job.IntervalMinutes
		dto.IntervalUnit = "minutes"
	}
	for _, s := range job.Suites {
		su := SuiteUpsert{
			ID:          s.ID,
			Name:        s.Name,
			Endpoint:    s.Endpoint,
			Method:      s.Method,
			Headers:     s.Headers,
			BasePayload: s.BasePayload,
			Description: s.Description,
		}
		for _, c := range s.Cases {
			su.Cases = append(su.Cases, CaseUpsert{
				ID:             c.ID,
				Name:           c.Name,
				Override:       c.Override,
				ExpectedStatus: c.ExpectedStatus,
			})
		}
		dto.Suites = append(dto.Suites, su)
	}
	return dto
}
