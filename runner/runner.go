// Package runner executes a test suite against a live HTTP endpoint. Cases
// run strictly in list order because later cases may depend on state
// established by earlier ones, specifically the captured bearer token. A
// failing case never aborts the run; only configuration errors do.
package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/autoapitester/api-acceptor/metrics"
	"github.com/autoapitester/api-acceptor/payload"
	"github.com/autoapitester/api-acceptor/types"
)

const (
	defaultHTTPTimeout = 30 * time.Second

	// bearerPlaceholder marks a suite header to be rewritten with the
	// currently held token at dispatch time.
	bearerPlaceholder = "Bearer "
)

// Token lookup paths, in fixed priority order. The first present non-empty
// value wins.
var tokenPaths = [][]string{
	{"data", "accessToken"},
	{"data", "access_token"},
	{"accessToken"},
	{"access_token"},
	{"token"},
}

// responseEnvelope is the optional generic body shape returned by endpoints
// under test. A body that doesn't parse into it is treated as no envelope.
type responseEnvelope struct {
	Status  *int   `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// Config holds runner dependencies.
type Config struct {
	Client *http.Client // defaults to a client with a 30s timeout
	Log    *zap.SugaredLogger
	Now    func() time.Time
}

// Runner executes suite definitions.
type Runner struct {
	client *http.Client
	log    *zap.SugaredLogger
	now    func() time.Time
}

// NewRunner creates a Runner.
func NewRunner(cfg Config) *Runner {
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop().Sugar()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Runner{client: cfg.Client, log: cfg.Log, now: cfg.Now}
}

// Run executes every case of the definition sequentially against the run
// context's base URL and returns the accumulated TestRun. Configuration
// errors (nil definition, missing endpoint, unsupported method) are fatal
// and nothing executes; per-case errors become failed results and the run
// continues.
func (r *Runner) Run(ctx context.Context, rc *RunContext, def *types.SuiteDefinition) (*types.TestRun, error) {
	if rc == nil {
		return nil, fmt.Errorf("run context is required")
	}
	if def == nil {
		return nil, fmt.Errorf("suite definition is required")
	}
	if def.Endpoint == "" {
		return nil, fmt.Errorf("suite %q has no endpoint", def.Name)
	}
	method := strings.ToUpper(def.Method)
	if !types.IsSupportedMethod(method) {
		return nil, fmt.Errorf("suite %q: unsupported HTTP method %q", def.Name, def.Method)
	}

	start := r.now()
	run := &types.TestRun{
		RunID: uuid.New().String(),
		Time:  start,
	}

	r.log.Infow("running suite",
		"suite", def.Name,
		"endpoint", def.Endpoint,
		"method", method,
		"cases", len(def.TestCases),
		"run_id", run.RunID)

	for i, caseDef := range def.TestCases {
		result := r.runCase(ctx, rc, def, method, caseDef, i+1)
		run.Results = append(run.Results, result)
		if result.Passed {
			run.Passed++
		} else {
			run.Failed++
		}
		r.log.Debugw("case finished",
			"suite", def.Name,
			"case", result.TestName,
			"passed", result.Passed,
			"http_status", result.HTTPStatus)
	}
	run.Total = len(run.Results)
	run.Duration = r.now().Sub(start)

	metrics.RecordRun(def.Name, run)
	return run, nil
}

// runCase prepares, dispatches and classifies a single case. Every error on
// the way is converted into a failed result carrying the error message.
func (r *Runner) runCase(ctx context.Context, rc *RunContext, def *types.SuiteDefinition, method string, caseDef types.CaseDefinition, index int) types.TestResult {
	name := caseDef.TestName()
	if name == "" {
		name = fmt.Sprintf("Test %d", index)
	}
	result := types.TestResult{TestName: name}

	body := payload.Compose(def.BasePayload, caseDef.Override())

	var requestBody []byte
	if method == http.MethodPost || method == http.MethodPut {
		encoded, err := json.Marshal(body)
		if err != nil {
			result.Message = fmt.Sprintf("encoding request body: %v", err)
			return result
		}
		requestBody = encoded
		result.RequestBody = string(encoded)
	}

	req, err := r.buildRequest(ctx, rc, def, method, requestBody)
	if err != nil {
		result.Message = err.Error()
		return result
	}

	resp, err := r.client.Do(req)
	if err != nil {
		result.Message = err.Error()
		return result
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		result.HTTPStatus = resp.StatusCode
		result.Message = fmt.Sprintf("reading response body: %v", err)
		return result
	}
	result.HTTPStatus = resp.StatusCode
	result.ResponseBody = string(responseBody)

	envelope := parseEnvelope(responseBody)
	if envelope != nil {
		result.APIStatus = envelope.Status
		result.Message = envelope.Message
	}

	expected := caseDef.ExpectedStatus()
	result.Passed = resp.StatusCode == expected &&
		(envelope == nil || envelope.Status == nil || *envelope.Status == 200)

	if caseDef.SaveToken() && result.Passed {
		if token := extractToken(responseBody); token != "" {
			rc.setToken(token)
			r.log.Debugw("token captured", "suite", def.Name, "case", name)
		}
	}
	return result
}

func (r *Runner) buildRequest(ctx context.Context, rc *RunContext, def *types.SuiteDefinition, method string, body []byte) (*http.Request, error) {
	url := rc.BaseURL() + def.Endpoint

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range def.Headers {
		if v == bearerPlaceholder && rc.Token() != "" {
			v = bearerPlaceholder + rc.Token()
		}
		req.Header.Set(k, v)
	}
	return req, nil
}

// parseEnvelope decodes the optional {status,message,data} body shape.
// Anything unparsable means the envelope is absent, not an error.
func parseEnvelope(body []byte) *responseEnvelope {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	var env responseEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil
	}
	return &env
}

// extractToken searches the raw JSON body for a bearer token following the
// fixed priority order of field paths.
func extractToken(body []byte) string {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return ""
	}
	for _, path := range tokenPaths {
		if token := lookupString(doc, path); token != "" {
			return token
		}
	}
	return ""
}

func lookupString(doc map[string]any, path []string) string {
	var cur any = doc
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur, ok = obj[key]
		if !ok {
			return ""
		}
	}
	s, _ := cur.(string)
	return s
}
