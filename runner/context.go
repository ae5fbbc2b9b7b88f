package runner

// RunContext carries the execution-time state for one suite run: the target
// base URL and the single mutable slot holding the most recently captured
// bearer token. It is owned by the caller and must never be shared across
// concurrent runs; token carry-over between runs happens only when the
// caller explicitly seeds a fresh context with a previous token.
type RunContext struct {
	baseURL string
	token   string
}

// NewRunContext creates a context targeting baseURL with no token held.
func NewRunContext(baseURL string) *RunContext {
	return &RunContext{baseURL: baseURL}
}

// WithToken seeds the context with a token carried over from an earlier run.
func (rc *RunContext) WithToken(token string) *RunContext {
	rc.token = token
	return rc
}

// BaseURL returns the target base URL.
func (rc *RunContext) BaseURL() string {
	return rc.baseURL
}

// Token returns the currently held bearer token, "" if none was captured.
func (rc *RunContext) Token() string {
	return rc.token
}

func (rc *RunContext) setToken(token string) {
	rc.token = token
}
