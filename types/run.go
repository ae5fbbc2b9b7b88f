package types

import "time"

// TestStatus is the outcome classification of a test case or run.
type TestStatus string

const (
	TestStatusPass TestStatus = "pass"
	TestStatusFail TestStatus = "fail"
)

// TestResult captures the outcome of one executed case. Field names follow
// the on-disk report format, which keeps history files diffable against
// earlier deployments of the tool.
type TestResult struct {
	Passed       bool   `json:"-"`
	TestName     string `json:"TestName"`
	HTTPStatus   int    `json:"HttpStatus"`
	APIStatus    *int   `json:"ApiStatus"`
	Message      string `json:"Message"`
	RequestBody  string `json:"RequestBody,omitempty"`
	ResponseBody string `json:"ResponseBody,omitempty"`
}

// TestRun is one sequential execution of a suite.
type TestRun struct {
	RunID    string        `json:"RunId"`
	Time     time.Time     `json:"Time"`
	Duration time.Duration `json:"Duration"`
	Total    int           `json:"Total"`
	Passed   int           `json:"Passed"`
	Failed   int           `json:"Failed"`
	Results  []TestResult  `json:"Results"`
}

// Status reports the aggregate outcome of the run.
func (r *TestRun) Status() TestStatus {
	if r.Failed > 0 {
		return TestStatusFail
	}
	return TestStatusPass
}

// RunReport is the durable per-(suite, calendar-day) history record. Runs
// are appended oldest first and never rewritten.
type RunReport struct {
	Suite    string    `json:"Suite"`
	Date     string    `json:"Date"` // YYYY-MM-DD
	TestRuns []TestRun `json:"TestRuns"`
}
