package types

import (
	"github.com/autoapitester/api-acceptor/payload"
)

// Supported HTTP methods for suite execution. Anything else is a
// configuration error, not a per-case failure.
var supportedMethods = map[string]bool{
	"GET":    true,
	"POST":   true,
	"PUT":    true,
	"DELETE": true,
}

// IsSupportedMethod reports whether the execution engine can dispatch the
// given HTTP method.
func IsSupportedMethod(method string) bool {
	return supportedMethods[method]
}

// SuiteDefinition is the execution-time description of a suite, as consumed
// by the runner. It is deliberately decoupled from the persisted TestSuite
// tree: suites run from disk documents and from storage alike.
type SuiteDefinition struct {
	Name        string            `yaml:"name" json:"name"`
	Endpoint    string            `yaml:"endpoint" json:"endpoint"`
	Method      string            `yaml:"method" json:"method"`
	Headers     map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	BasePayload payload.Value     `yaml:"basePayload,omitempty" json:"basePayload,omitempty"`
	TestCases   []CaseDefinition  `yaml:"testCases" json:"testCases"`
}

// CaseDefinition is one raw case document: the override payload fields plus
// the control fields testName/name, saveToken and expectedStatus, which are
// stripped before composition.
type CaseDefinition map[string]any

// Control field names carried inside a case document.
const (
	fieldTestName       = "testName"
	fieldName           = "name"
	fieldSaveToken      = "saveToken"
	fieldExpectedStatus = "expectedStatus"
)

// TestName returns the case's display name, or "" if unnamed.
func (c CaseDefinition) TestName() string {
	for _, key := range []string{fieldTestName, fieldName} {
		if s, ok := c[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// SaveToken reports whether a passing response should have its bearer token
// captured for subsequent cases.
func (c CaseDefinition) SaveToken() bool {
	b, _ := c[fieldSaveToken].(bool)
	return b
}

// ExpectedStatus returns the transport status the case expects, defaulting
// to 200. JSON decodes numbers as float64 and YAML as int; both are handled.
func (c CaseDefinition) ExpectedStatus() int {
	switch v := c[fieldExpectedStatus].(type) {
	case int:
		if v > 0 {
			return v
		}
	case float64:
		if v > 0 {
			return int(v)
		}
	}
	return 200
}

// Override returns the case payload with control fields stripped. The
// returned map is a copy; the definition itself is never mutated.
func (c CaseDefinition) Override() payload.Value {
	out := make(map[string]any, len(c))
	for k, v := range c {
		switch k {
		case fieldTestName, fieldName, fieldSaveToken, fieldExpectedStatus:
			continue
		}
		out[k] = payload.Clone(v)
	}
	return out
}

// DefinitionFromSuite bridges a persisted suite tree into the execution
// model. Case overrides are re-wrapped as raw documents so the runner sees
// one input shape regardless of origin.
func DefinitionFromSuite(s *TestSuite) *SuiteDefinition {
	def := &SuiteDefinition{
		Name:        s.Name,
		Endpoint:    s.Endpoint,
		Method:      s.Method,
		Headers:     s.Headers,
		BasePayload: s.BasePayload,
	}
	for _, tc := range s.Cases {
		doc := CaseDefinition{}
		if obj, ok := tc.Override.(map[string]any); ok {
			for k, v := range obj {
				doc[k] = payload.Clone(v)
			}
		}
		if tc.Name != "" {
			doc[fieldTestName] = tc.Name
		}
		if tc.ExpectedStatus != 0 {
			doc[fieldExpectedStatus] = tc.ExpectedStatus
		}
		def.TestCases = append(def.TestCases, doc)
	}
	return def
}
