package runner

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoapitester/api-acceptor/types"
)

func newTestRunner() *Runner {
	return NewRunner(Config{})
}

func TestRunUnsupportedMethodIsFatal(t *testing.T) {
	r := newTestRunner()
	def := &types.SuiteDefinition{
		Name:      "bad",
		Endpoint:  "/x",
		Method:    "PATCH",
		TestCases: []types.CaseDefinition{{"testName": "never runs"}},
	}
	run, err := r.Run(context.Background(), NewRunContext("http://example.invalid"), def)
	require.Error(t, err)
	assert.Nil(t, run)
}

func TestRunMissingEndpointIsFatal(t *testing.T) {
	r := newTestRunner()
	_, err := r.Run(context.Background(), NewRunContext("http://example.invalid"), &types.SuiteDefinition{
		Name:   "no-endpoint",
		Method: "GET",
	})
	require.Error(t, err)
}

func TestClassification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		expected   int // case expectedStatus, 0 = default
		wantPassed bool
	}{
		{"transport 200 no body", 200, "", 0, true},
		{"transport 200 unparseable body", 200, "<html>ok</html>", 0, true},
		{"transport 200 envelope 200", 200, `{"status":200,"message":"ok"}`, 0, true},
		{"transport 200 envelope without status", 200, `{"message":"ok"}`, 0, true},
		{"transport 200 envelope 500", 200, `{"status":500,"message":"boom"}`, 0, false},
		{"transport 404", 404, `{"status":200}`, 0, false},
		{"transport 500", 500, "", 0, false},
		{"expected 404 matched", 404, "", 404, true},
		{"expected 404 but got 200", 200, "", 404, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			caseDef := types.CaseDefinition{"testName": tt.name}
			if tt.expected != 0 {
				caseDef["expectedStatus"] = tt.expected
			}
			def := &types.SuiteDefinition{
				Name:      "classify",
				Endpoint:  "/probe",
				Method:    "GET",
				TestCases: []types.CaseDefinition{caseDef},
			}
			run, err := runSuite(t, def, srv.URL)
			require.NoError(t, err)
			require.Len(t, run.Results, 1)
			assert.Equal(t, tt.wantPassed, run.Results[0].Passed)
			assert.Equal(t, tt.status, run.Results[0].HTTPStatus)
		})
	}
}

func runSuite(t *testing.T, def *types.SuiteDefinition, baseURL string) (*types.TestRun, error) {
	t.Helper()
	return newTestRunner().Run(context.Background(), NewRunContext(baseURL), def)
}

func TestSequentialTokenPropagation(t *testing.T) {
	var gotAuth string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/login", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status":200,"data":{"accessToken":"tok123"}}`)
	})
	mux.HandleFunc("/api/whoami", func(w http.ResponseWriter, req *http.Request) {
		gotAuth = req.Header.Get("Authorization")
		_, _ = io.WriteString(w, `{"status":200}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	rc := NewRunContext(srv.URL)
	r := newTestRunner()

	login := &types.SuiteDefinition{
		Name:     "login",
		Endpoint: "/api/login",
		Method:   "POST",
		TestCases: []types.CaseDefinition{
			{"testName": "login ok", "saveToken": true, "username": "alice"},
		},
	}
	run, err := r.Run(context.Background(), rc, login)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Passed)
	assert.Equal(t, "tok123", rc.Token())

	whoami := &types.SuiteDefinition{
		Name:     "whoami",
		Endpoint: "/api/whoami",
		Method:   "GET",
		Headers:  map[string]string{"Authorization": "Bearer "},
		TestCases: []types.CaseDefinition{
			{"testName": "authenticated"},
		},
	}
	_, err = r.Run(context.Background(), rc, whoami)
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok123", gotAuth)
}

func TestTokenPropagationWithinOneSuite(t *testing.T) {
	var gotAuth string
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		calls++
		if calls == 1 {
			_, _ = io.WriteString(w, `{"status":200,"data":{"accessToken":"tok123"}}`)
			return
		}
		gotAuth = req.Header.Get("Authorization")
		_, _ = io.WriteString(w, `{"status":200}`)
	}))
	defer srv.Close()

	def := &types.SuiteDefinition{
		Name:     "auth",
		Endpoint: "/api/login",
		Method:   "POST",
		Headers:  map[string]string{"Authorization": "Bearer "},
		TestCases: []types.CaseDefinition{
			{"testName": "login", "saveToken": true},
			{"testName": "uses token"},
		},
	}
	run, err := runSuite(t, def, srv.URL)
	require.NoError(t, err)
	assert.Equal(t, 2, run.Passed)
	assert.Equal(t, "Bearer tok123", gotAuth)
}

func TestTokenPriorityOrder(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"data.accessToken wins", `{"data":{"accessToken":"a","access_token":"b"},"token":"e"}`, "a"},
		{"data.access_token next", `{"data":{"access_token":"b"},"accessToken":"c"}`, "b"},
		{"top-level accessToken", `{"accessToken":"c","token":"e"}`, "c"},
		{"top-level access_token", `{"access_token":"d","token":"e"}`, "d"},
		{"bare token last", `{"token":"e"}`, "e"},
		{"empty values skipped", `{"data":{"accessToken":""},"token":"e"}`, "e"},
		{"nothing found", `{"status":200}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractToken([]byte(tt.body)))
		})
	}
}

func TestTokenNotSavedOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(401)
		_, _ = io.WriteString(w, `{"status":401,"data":{"accessToken":"stolen"}}`)
	}))
	defer srv.Close()

	rc := NewRunContext(srv.URL)
	def := &types.SuiteDefinition{
		Name:     "auth",
		Endpoint: "/api/login",
		Method:   "POST",
		TestCases: []types.CaseDefinition{
			{"testName": "login rejected", "saveToken": true},
		},
	}
	_, err := newTestRunner().Run(context.Background(), rc, def)
	require.NoError(t, err)
	assert.Empty(t, rc.Token())
}

func TestPayloadCompositionOnTheWire(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		_ = json.Unmarshal(body, &received)
		_, _ = io.WriteString(w, `{"status":200}`)
	}))
	defer srv.Close()

	def := &types.SuiteDefinition{
		Name:     "orders",
		Endpoint: "/api/orders",
		Method:   "POST",
		BasePayload: map[string]any{
			"customer": "alice",
			"items":    []any{"widget"},
			"amount":   float64(10),
		},
		TestCases: []types.CaseDefinition{
			{"testName": "override amount and items", "amount": float64(99), "items": []any{"gadget", "gizmo"}},
		},
	}
	run, err := runSuite(t, def, srv.URL)
	require.NoError(t, err)
	require.Equal(t, 1, run.Passed)

	assert.Equal(t, "alice", received["customer"])
	assert.Equal(t, float64(99), received["amount"])
	assert.Equal(t, []any{"gadget", "gizmo"}, received["items"])
	// The raw request body is preserved for diagnosability.
	assert.Contains(t, run.Results[0].RequestBody, `"customer":"alice"`)
}

func TestGetSendsNoBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		assert.Empty(t, body)
		assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
		_, _ = io.WriteString(w, `{"status":200}`)
	}))
	defer srv.Close()

	def := &types.SuiteDefinition{
		Name:        "ping",
		Endpoint:    "/ping",
		Method:      "GET",
		BasePayload: map[string]any{"ignored": true},
		TestCases:   []types.CaseDefinition{{"testName": "no body"}},
	}
	run, err := runSuite(t, def, srv.URL)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Passed)
	assert.Empty(t, run.Results[0].RequestBody)
}

func TestFailureIsolation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_, _ = io.WriteString(w, `{"status":200}`)
	}))
	defer srv.Close()

	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {}))
	dead.Close()

	def := &types.SuiteDefinition{
		Name:     "isolated",
		Endpoint: "/x",
		Method:   "POST",
		TestCases: []types.CaseDefinition{
			{"testName": "first"},
			{"testName": "second"},
			{"testName": "third"},
		},
	}

	// Run against the dead server: every case fails on transport but all
	// three still produce independent results.
	run, err := runSuite(t, def, dead.URL)
	require.NoError(t, err)
	assert.Equal(t, 3, run.Total)
	assert.Equal(t, 3, run.Failed)
	for _, res := range run.Results {
		assert.NotEmpty(t, res.Message)
	}

	// Against the live server everything passes, confirming order and
	// counts come from the case list.
	run, err = runSuite(t, def, srv.URL)
	require.NoError(t, err)
	assert.Equal(t, 3, run.Total)
	assert.Equal(t, 3, run.Passed)
	assert.Equal(t, []string{"first", "second", "third"}, []string{
		run.Results[0].TestName, run.Results[1].TestName, run.Results[2].TestName,
	})
}

func TestCompositionErrorIsolatedToItsCase(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_, _ = io.WriteString(w, `{"status":200}`)
	}))
	defer srv.Close()

	def := &types.SuiteDefinition{
		Name:     "mixed",
		Endpoint: "/x",
		Method:   "POST",
		TestCases: []types.CaseDefinition{
			{"testName": "first"},
			// A channel cannot be JSON-encoded; the composed body for
			// this case fails to serialize.
			{"testName": "second", "bad": make(chan int)},
			{"testName": "third"},
		},
	}
	run, err := runSuite(t, def, srv.URL)
	require.NoError(t, err)
	assert.Equal(t, 3, run.Total)
	assert.Equal(t, 2, run.Passed)
	assert.Equal(t, 1, run.Failed)
	assert.True(t, run.Results[0].Passed)
	assert.False(t, run.Results[1].Passed)
	assert.Contains(t, run.Results[1].Message, "encoding request body")
	assert.True(t, run.Results[2].Passed)
}

func TestUnnamedCasesGetPositionalNames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_, _ = io.WriteString(w, `{"status":200}`)
	}))
	defer srv.Close()

	def := &types.SuiteDefinition{
		Name:      "anon",
		Endpoint:  "/x",
		Method:    "GET",
		TestCases: []types.CaseDefinition{{}, {"name": "named via name field"}},
	}
	run, err := runSuite(t, def, srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Test 1", run.Results[0].TestName)
	assert.Equal(t, "named via name field", run.Results[1].TestName)
}

func TestEnvelopeMessageSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_, _ = io.WriteString(w, `{"status":500,"message":"validation failed"}`)
	}))
	defer srv.Close()

	def := &types.SuiteDefinition{
		Name:      "envelope",
		Endpoint:  "/x",
		Method:    "GET",
		TestCases: []types.CaseDefinition{{"testName": "surfaced"}},
	}
	run, err := runSuite(t, def, srv.URL)
	require.NoError(t, err)
	res := run.Results[0]
	assert.False(t, res.Passed)
	assert.Equal(t, "validation failed", res.Message)
	require.NotNil(t, res.APIStatus)
	assert.Equal(t, 500, *res.APIStatus)
}
