package reconciler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/autoapitester/api-acceptor/payload"
	"github.com/autoapitester/api-acceptor/types"
)

// Memstore is an in-memory Store. It assigns ids the way a database would
// and deep-copies trees on every boundary crossing, so callers can't reach
// into stored state. Used in tests and as an embedded backend.
type Memstore struct {
	mu     sync.Mutex
	nextID int64
	jobs   map[int64]*types.JobSchedule
}

var _ Store = (*Memstore)(nil)

// NewMemstore creates an empty in-memory store.
func NewMemstore() *Memstore {
	return &Memstore{nextID: 1, jobs: make(map[int64]*types.JobSchedule)}
}

func (m *Memstore) Load(ctx context.Context, id int64) (*types.JobSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, &NotFoundError{Kind: "job schedule", ID: id}
	}
	return cloneJob(job), nil
}

func (m *Memstore) Save(ctx context.Context, job *types.JobSchedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job.ID.IsNew() {
		job.ID = types.ExistingID(m.assignID())
	}
	for _, s := range job.Suites {
		if s.ID.IsNew() {
			s.ID = types.ExistingID(m.assignID())
		}
		for _, c := range s.Cases {
			if c.ID.IsNew() {
				c.ID = types.ExistingID(m.assignID())
			}
		}
	}

	id, _ := job.ID.Value()
	// Replacing the stored tree wholesale is the cascade: suites and cases
	// absent from the saved tree simply cease to exist.
	m.jobs[id] = cloneJob(job)
	return nil
}

func (m *Memstore) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[id]; !ok {
		return &NotFoundError{Kind: "job schedule", ID: id}
	}
	delete(m.jobs, id)
	return nil
}

func (m *Memstore) ListByUser(ctx context.Context, userID int64) ([]*types.JobSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*types.JobSchedule
	for _, job := range m.jobs {
		if job.UserID != userID {
			continue
		}
		j := cloneJob(job)
		j.Suites = nil
		out = append(out, j)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memstore) assignID() int64 {
	id := m.nextID
	m.nextID++
	return id
}

func cloneJob(job *types.JobSchedule) *types.JobSchedule {
	out := *job
	out.RunAtTime = cloneTimeOfDay(job.RunAtTime)
	out.IntervalMinutes = cloneInt(job.IntervalMinutes)
	out.LastRunAt = cloneTime(job.LastRunAt)
	out.NextRunAt = cloneTime(job.NextRunAt)
	out.UpdatedAt = cloneTime(job.UpdatedAt)
	out.Suites = make([]*types.TestSuite, len(job.Suites))
	for i, s := range job.Suites {
		out.Suites[i] = cloneSuite(s)
	}
	return &out
}

func cloneSuite(s *types.TestSuite) *types.TestSuite {
	out := *s
	out.Headers = cloneHeaders(s.Headers)
	out.BasePayload = payload.Clone(s.BasePayload)
	out.UpdatedAt = cloneTime(s.UpdatedAt)
	out.Cases = make([]*types.TestCase, len(s.Cases))
	for i, c := range s.Cases {
		cc := *c
		cc.Override = payload.Clone(c.Override)
		out.Cases[i] = &cc
	}
	return &out
}

func cloneHeaders(h map[string]string) map[string]string {
	if h == nil {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}

func cloneTimeOfDay(t *types.TimeOfDay) *types.TimeOfDay {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
