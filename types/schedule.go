package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/autoapitester/api-acceptor/payload"
)

// ScheduleType selects how a job schedule recurs.
type ScheduleType string

const (
	ScheduleDaily    ScheduleType = "daily"
	ScheduleInterval ScheduleType = "interval"
)

// IsValid reports whether the schedule type is one of the known kinds.
func (s ScheduleType) IsValid() bool {
	return s == ScheduleDaily || s == ScheduleInterval
}

// TimeOfDay is a wall-clock time-of-day in 24-hour form.
type TimeOfDay struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// ParseTimeOfDay parses a literal "HH:MM" string. Trailing content such as
// seconds is rejected rather than silently dropped.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("time of day %q out of range", s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

// JobSchedule is a named recurring test job owned by one user. The stored
// shape only; deciding when a schedule fires belongs to the caller's trigger,
// which maintains LastRunAt/NextRunAt.
type JobSchedule struct {
	ID           EntityID     `json:"id"`
	UserID       int64        `json:"userId"`
	Name         string       `json:"name"`
	Description  string       `json:"description,omitempty"`
	ScheduleType ScheduleType `json:"scheduleType"`

	RunAtTime       *TimeOfDay `json:"runAtTime,omitempty"`       // daily schedules
	IntervalMinutes *int       `json:"intervalMinutes,omitempty"` // interval schedules

	IsActive  bool       `json:"isActive"`
	LastRunAt *time.Time `json:"lastRunAt,omitempty"`
	NextRunAt *time.Time `json:"nextRunAt,omitempty"`

	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`

	Suites []*TestSuite `json:"testSuites"`
}

// TestSuite is one HTTP endpoint under test: method, headers, the canonical
// base payload, and an ordered list of case variants.
type TestSuite struct {
	ID          EntityID          `json:"id"`
	Name        string            `json:"name"`
	Endpoint    string            `json:"endpoint"`
	Method      string            `json:"method"`
	Headers     map[string]string `json:"headers,omitempty"`
	BasePayload payload.Value     `json:"basePayload,omitempty"`
	Description string            `json:"description,omitempty"`
	IsActive    bool              `json:"isActive"`

	CreatedAt time.Time  `json:"createdAt"`
	CreatedBy string     `json:"createdBy,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
	UpdatedBy string     `json:"updatedBy,omitempty"`

	Cases []*TestCase `json:"testCases"`
}

// TestCase is one request variant against its parent suite.
type TestCase struct {
	ID             EntityID      `json:"id"`
	Name           string        `json:"caseName"`
	Override       payload.Value `json:"testData,omitempty"`
	ExpectedStatus int           `json:"expectedStatus"`
}
