// Package reconciler syncs incoming job-schedule trees onto persisted trees.
// Clients always resend the full JobSchedule -> TestSuite -> TestCase tree;
// the reconciler diffs it against storage by identity and issues the
// resulting inserts, updates and orphan deletions in a single save.
package reconciler

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/autoapitester/api-acceptor/payload"
	"github.com/autoapitester/api-acceptor/types"
)

const defaultExpectedStatus = 200

// JobScheduleUpsert is the incoming tree for one job schedule. Identity
// fields distinguish edits of stored rows from inserts of new ones.
type JobScheduleUpsert struct {
	ID            types.EntityID     `json:"id"`
	Name          string             `json:"name"`
	Description   string             `json:"description"`
	ScheduleType  types.ScheduleType `json:"scheduleType"`
	DailyTime     string             `json:"dailyTime,omitempty"`     // "HH:MM", daily schedules
	IntervalValue *int               `json:"intervalValue,omitempty"` // interval schedules
	IntervalUnit  string             `json:"intervalUnit,omitempty"`  // "minutes" | "hours"
	Suites        []SuiteUpsert      `json:"testSuites"`
}

// SuiteUpsert is one incoming suite with its full case list.
type SuiteUpsert struct {
	ID          types.EntityID    `json:"id"`
	Name        string            `json:"name"`
	Endpoint    string            `json:"endpoint"`
	Method      string            `json:"method"`
	Headers     map[string]string `json:"headers,omitempty"`
	BasePayload payload.Value     `json:"basePayload,omitempty"`
	Description string            `json:"description,omitempty"`
	Cases       []CaseUpsert      `json:"testCases"`
}

// CaseUpsert is one incoming case variant.
type CaseUpsert struct {
	ID             types.EntityID `json:"id"`
	Name           string         `json:"caseName"`
	Override       payload.Value  `json:"testData,omitempty"`
	ExpectedStatus int            `json:"expectedStatus"`
}

// Config holds reconciler dependencies.
type Config struct {
	Store Store
	Log   *zap.SugaredLogger
	Now   func() time.Time // defaults to time.Now
}

// Reconciler applies incoming trees to a Store.
type Reconciler struct {
	store Store
	log   *zap.SugaredLogger
	now   func() time.Time
}

// New creates a Reconciler.
func New(cfg Config) (*Reconciler, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop().Sugar()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Reconciler{store: cfg.Store, log: cfg.Log, now: cfg.Now}, nil
}

// UpsertJobSchedule creates or updates a job schedule from the incoming
// tree. The merged tree is computed fully in memory first: a not-found id
// anywhere in the tree aborts before anything is persisted, so a failed
// reconciliation can never leave a partially-applied tree behind.
func (r *Reconciler) UpsertJobSchedule(ctx context.Context, userID int64, userName string, dto *JobScheduleUpsert) (*types.JobSchedule, error) {
	if dto == nil {
		return nil, errors.New("upsert payload is required")
	}
	if !dto.ScheduleType.IsValid() {
		return nil, errors.Errorf("invalid schedule type %q", dto.ScheduleType)
	}

	now := r.now().UTC()

	job, err := r.loadOrCreate(ctx, userID, dto, now)
	if err != nil {
		return nil, err
	}

	job.Name = dto.Name
	job.Description = dto.Description
	job.ScheduleType = dto.ScheduleType
	switch dto.ScheduleType {
	case types.ScheduleDaily:
		job.RunAtTime = NormalizeDaily(dto.DailyTime)
		job.IntervalMinutes = nil
	case types.ScheduleInterval:
		job.IntervalMinutes = NormalizeInterval(dto.IntervalValue, dto.IntervalUnit)
		job.RunAtTime = nil
	}
	if _, existing := job.ID.Value(); existing {
		job.UpdatedAt = &now
	}

	suites, err := r.reconcileSuites(job.Suites, dto.Suites, userName, now)
	if err != nil {
		return nil, err
	}
	job.Suites = suites

	if err := r.store.Save(ctx, job); err != nil {
		return nil, errors.Wrap(err, "saving job schedule tree")
	}

	r.log.Infow("job schedule upserted",
		"id", job.ID.String(),
		"user", userID,
		"suites", len(job.Suites))
	return job, nil
}

func (r *Reconciler) loadOrCreate(ctx context.Context, userID int64, dto *JobScheduleUpsert, now time.Time) (*types.JobSchedule, error) {
	id, existing := dto.ID.Value()
	if !existing {
		return &types.JobSchedule{
			ID:        types.NewID(),
			UserID:    userID,
			IsActive:  true,
			CreatedAt: now,
		}, nil
	}
	job, err := r.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		// Another user's schedule is indistinguishable from a missing one.
		return nil, &NotFoundError{Kind: "job schedule", ID: id}
	}
	return job, nil
}

// reconcileSuites partitions incoming suites by identity. Stored suites
// whose id is absent from the incoming set are dropped, which cascades to
// their cases; suites without an id are inserted wholesale; suites with a
// matching id are field-updated and their case lists reconciled in turn.
func (r *Reconciler) reconcileSuites(stored []*types.TestSuite, incoming []SuiteUpsert, userName string, now time.Time) ([]*types.TestSuite, error) {
	byID := make(map[int64]*types.TestSuite, len(stored))
	for _, s := range stored {
		if id, ok := s.ID.Value(); ok {
			byID[id] = s
		}
	}

	out := make([]*types.TestSuite, 0, len(incoming))
	for _, in := range incoming {
		id, existing := in.ID.Value()
		if !existing {
			out = append(out, newSuite(in, userName, now))
			continue
		}
		suite, ok := byID[id]
		if !ok {
			return nil, &NotFoundError{Kind: "test suite", ID: id}
		}
		if in.Name != "" {
			suite.Name = in.Name
		}
		suite.Endpoint = in.Endpoint
		suite.Method = in.Method
		suite.Headers = in.Headers
		suite.BasePayload = in.BasePayload
		suite.Description = in.Description
		suite.UpdatedAt = &now
		suite.UpdatedBy = userName

		cases, err := reconcileCases(suite.Cases, in.Cases)
		if err != nil {
			return nil, err
		}
		suite.Cases = cases
		out = append(out, suite)
	}
	return out, nil
}

func newSuite(in SuiteUpsert, userName string, now time.Time) *types.TestSuite {
	name := in.Name
	if name == "" {
		name = "Unnamed Suite"
	}
	s := &types.TestSuite{
		ID:          types.NewID(),
		Name:        name,
		Endpoint:    in.Endpoint,
		Method:      in.Method,
		Headers:     in.Headers,
		BasePayload: in.BasePayload,
		Description: in.Description,
		IsActive:    true,
		CreatedAt:   now,
		CreatedBy:   userName,
	}
	for _, c := range in.Cases {
		// Everything under a new suite is new; incoming case ids are
		// ignored rather than trusted.
		s.Cases = append(s.Cases, newCase(c))
	}
	return s
}

func newCase(in CaseUpsert) *types.TestCase {
	name := in.Name
	if name == "" {
		name = "Untitled Case"
	}
	expected := in.ExpectedStatus
	if expected == 0 {
		expected = defaultExpectedStatus
	}
	return &types.TestCase{
		ID:             types.NewID(),
		Name:           name,
		Override:       in.Override,
		ExpectedStatus: expected,
	}
}

func reconcileCases(stored []*types.TestCase, incoming []CaseUpsert) ([]*types.TestCase, error) {
	byID := make(map[int64]*types.TestCase, len(stored))
	for _, c := range stored {
		if id, ok := c.ID.Value(); ok {
			byID[id] = c
		}
	}

	out := make([]*types.TestCase, 0, len(incoming))
	for _, in := range incoming {
		id, existing := in.ID.Value()
		if !existing {
			out = append(out, newCase(in))
			continue
		}
		tc, ok := byID[id]
		if !ok {
			return nil, &NotFoundError{Kind: "test case", ID: id}
		}
		if in.Name != "" {
			tc.Name = in.Name
		}
		tc.Override = in.Override
		if in.ExpectedStatus != 0 {
			tc.ExpectedStatus = in.ExpectedStatus
		}
		out = append(out, tc)
	}
	return out, nil
}

// GetJobSchedulesByUser lists a user's schedules without their trees.
func (r *Reconciler) GetJobSchedulesByUser(ctx context.Context, userID int64) ([]*types.JobSchedule, error) {
	jobs, err := r.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "listing job schedules")
	}
	return jobs, nil
}

// GetJobScheduleDetail loads one schedule with its full tree, scoped to the
// owning user.
func (r *Reconciler) GetJobScheduleDetail(ctx context.Context, userID, id int64) (*types.JobSchedule, error) {
	job, err := r.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, &NotFoundError{Kind: "job schedule", ID: id}
	}
	return job, nil
}

// ToggleActive flips the schedule's active flag and returns the new state.
func (r *Reconciler) ToggleActive(ctx context.Context, userID, id int64) (bool, error) {
	job, err := r.GetJobScheduleDetail(ctx, userID, id)
	if err != nil {
		return false, err
	}
	now := r.now().UTC()
	job.IsActive = !job.IsActive
	job.UpdatedAt = &now
	if err := r.store.Save(ctx, job); err != nil {
		return false, errors.Wrap(err, "saving toggled schedule")
	}
	return job.IsActive, nil
}

// DeleteJobSchedule removes a schedule and its whole tree, scoped to the
// owning user.
func (r *Reconciler) DeleteJobSchedule(ctx context.Context, userID, id int64) error {
	if _, err := r.GetJobScheduleDetail(ctx, userID, id); err != nil {
		return err
	}
	return r.store.Delete(ctx, id)
}
