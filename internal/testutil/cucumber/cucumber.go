// Package cucumber provides a godog-based BDD harness for the memory HTTP API.
//
// Variables are scoped to the scenario. Each named user gets a fresh UUID per
// scenario, exposed as ${user.<name>}; ${userId} is the current user's.
//
// Variable resolution supports:
//   - ${variableName}       → scenario variable lookup
//   - ${response.field}     → last response body field via gojq
//   - ${variable.field}     → nested map field access
package cucumber

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cucumber/godog"
	"github.com/cucumber/godog/colors"
	"github.com/google/uuid"
	"github.com/itchyny/gojq"
	"github.com/pmezard/go-difflib/difflib"
)

func NewTestSuite() *TestSuite {
	return &TestSuite{
		APIURL: "http://localhost:8000",
		Extra:  map[string]interface{}{},
	}
}

func DefaultOptions() godog.Options {
	return godog.Options{
		Output:      colors.Colored(os.Stdout),
		Format:      "progress",
		Paths:       []string{"features"},
		Randomize:   time.Now().UTC().UnixNano(),
		Concurrency: 10,
	}
}

// ApplyReportOptions configures junit XML output when GODOG_REPORT_DIR is set.
// Returns a cleanup function that must be called (or deferred) after the test runs.
func ApplyReportOptions(opts *godog.Options, testName string) func() {
	reportDir := os.Getenv("GODOG_REPORT_DIR")
	if reportDir == "" {
		return func() {}
	}
	if err := os.MkdirAll(reportDir, 0755); err != nil {
		return func() {}
	}
	path := filepath.Join(reportDir, strings.ReplaceAll(testName, "/", "-")+".xml")
	f, err := os.Create(path)
	if err != nil {
		return func() {}
	}
	opts.Output = f
	opts.Format = "junit"
	return func() { _ = f.Close() }
}

// TestSuite holds state global to all test scenarios.
type TestSuite struct {
	APIURL   string
	Mu       sync.Mutex
	TestingT *testing.T
	Extra    map[string]interface{} // additional test-scoped objects (e.g. mock providers)
}

// TestScenario holds state for a single scenario. Not accessed concurrently.
type TestScenario struct {
	Suite       *TestSuite
	Client      *http.Client
	CurrentUser string
	Users       map[string]string
	Variables   map[string]interface{}
	Resp        *http.Response
	RespBytes   []byte
	respJSON    interface{}
}

func (s *TestScenario) Logf(format string, args ...any) {
	s.Suite.TestingT.Logf(format, args...)
}

// UserID returns the UUID bound to name in this scenario, creating it on first use.
func (s *TestScenario) UserID(name string) string {
	id, ok := s.Users[name]
	if !ok {
		id = uuid.NewString()
		s.Users[name] = id
	}
	return id
}

// RespJSON returns the last HTTP response body as parsed JSON.
func (s *TestScenario) RespJSON() (interface{}, error) {
	if s.respJSON == nil {
		if s.RespBytes == nil {
			return nil, fmt.Errorf("no response body")
		}
		if err := json.Unmarshal(s.RespBytes, &s.respJSON); err != nil {
			return nil, fmt.Errorf("error parsing response json: %w\njson was:\n%s", err, s.RespBytes)
		}
	}
	return s.respJSON, nil
}

// Select runs a gojq selector against the last response body.
func (s *TestScenario) Select(selector string) (interface{}, error) {
	doc, err := s.RespJSON()
	if err != nil {
		return nil, err
	}
	query, err := gojq.Parse(selector)
	if err != nil {
		return nil, err
	}
	if next, found := query.Run(doc).Next(); found {
		if err, ok := next.(error); ok {
			return nil, fmt.Errorf("selector %s: %w", selector, err)
		}
		return next, nil
	}
	return nil, fmt.Errorf("response has no node that matches selector: %s", selector)
}

func (s *TestScenario) JSONMustMatch(actual, expected string) error {
	var actualParsed, expectedParsed interface{}
	if err := json.Unmarshal([]byte(actual), &actualParsed); err != nil {
		return fmt.Errorf("error parsing actual json: %w\njson was:\n%s", err, actual)
	}
	expanded, err := s.Expand(expected)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(expanded), &expectedParsed); err != nil {
		return fmt.Errorf("error parsing expected json: %w\njson was:\n%s", err, expanded)
	}
	if !reflect.DeepEqual(expectedParsed, actualParsed) {
		return fmt.Errorf("actual does not match expected, diff:\n%s", diff(expectedParsed, actualParsed))
	}
	return nil
}

func (s *TestScenario) JSONMustContain(actual, expected string) error {
	var actualParsed, expectedParsed interface{}
	if err := json.Unmarshal([]byte(actual), &actualParsed); err != nil {
		return fmt.Errorf("error parsing actual json: %w\njson was:\n%s", err, actual)
	}
	expanded, err := s.Expand(expected)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(expanded), &expectedParsed); err != nil {
		return fmt.Errorf("error parsing expected json: %w\njson was:\n%s", err, expanded)
	}
	if err := jsonSubset(expectedParsed, actualParsed, ""); err != nil {
		return fmt.Errorf("actual does not contain expected.\n  mismatch: %s\n  diff:\n%s", err, diff(expectedParsed, actualParsed))
	}
	return nil
}

func diff(expected, actual interface{}) string {
	e, _ := json.MarshalIndent(expected, "", "  ")
	a, _ := json.MarshalIndent(actual, "", "  ")
	out, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(e)),
		B:        difflib.SplitLines(string(a)),
		FromFile: "Expected",
		ToFile:   "Actual",
		Context:  1,
	})
	return out
}

// jsonSubset checks that every field in expected exists in actual with a matching value.
// Arrays must have the same length; elements are compared with subset semantics.
func jsonSubset(expected, actual interface{}, path string) error {
	switch exp := expected.(type) {
	case map[string]interface{}:
		act, ok := actual.(map[string]interface{})
		if !ok {
			return fmt.Errorf("at %s: expected object, got %T", pathOrRoot(path), actual)
		}
		for key, expVal := range exp {
			actVal, exists := act[key]
			if !exists {
				return fmt.Errorf("at %s: missing key %q", pathOrRoot(path), key)
			}
			if err := jsonSubset(expVal, actVal, path+"."+key); err != nil {
				return err
			}
		}
	case []interface{}:
		act, ok := actual.([]interface{})
		if !ok {
			return fmt.Errorf("at %s: expected array, got %T", pathOrRoot(path), actual)
		}
		if len(exp) != len(act) {
			return fmt.Errorf("at %s: expected array length %d, got %d", pathOrRoot(path), len(exp), len(act))
		}
		for i := range exp {
			if err := jsonSubset(exp[i], act[i], fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	default:
		if !reflect.DeepEqual(expected, actual) {
			return fmt.Errorf("at %s: expected %v (%T), got %v (%T)", pathOrRoot(path), expected, expected, actual, actual)
		}
	}
	return nil
}

func pathOrRoot(path string) string {
	if path == "" {
		return "$"
	}
	return "$" + path
}

// Expand replaces ${var} in the string based on scenario variables.
func (s *TestScenario) Expand(value string) (result string, rerr error) {
	return os.Expand(value, func(name string) string {
		res, err := s.Resolve(name)
		if err != nil {
			rerr = err
			return ""
		}
		return ToString(res)
	}), rerr
}

func (s *TestScenario) Resolve(name string) (interface{}, error) {
	switch {
	case name == "userId":
		return s.UserID(s.CurrentUser), nil
	case strings.HasPrefix(name, "user."):
		return s.UserID(strings.TrimPrefix(name, "user.")), nil
	case name == "response":
		return s.RespJSON()
	case strings.HasPrefix(name, "response.") || strings.HasPrefix(name, "response["):
		return s.Select(strings.TrimPrefix(name, "response"))
	}

	parts := strings.Split(name, ".")
	value, found := s.Variables[parts[0]]
	if !found {
		return nil, fmt.Errorf("variable ${%s} not defined yet", parts[0])
	}
	for _, part := range parts[1:] {
		m, ok := value.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("can't navigate to '%s' on %T", part, value)
		}
		if value, ok = m[part]; !ok {
			return nil, fmt.Errorf("map key %s not found", part)
		}
	}
	return value, nil
}

func ToString(value interface{}) string {
	switch value := value.(type) {
	case string:
		return value
	case nil:
		return ""
	case float64:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", value), "0"), ".")
	case bool, int, int64:
		return fmt.Sprintf("%v", value)
	}
	b, _ := json.Marshal(value)
	return string(b)
}

// StepModules is the list of functions used to register steps with a godog.ScenarioContext.
var StepModules []func(ctx *godog.ScenarioContext, s *TestScenario)

func (suite *TestSuite) InitializeScenario(ctx *godog.ScenarioContext) {
	s := &TestScenario{
		Suite:       suite,
		Client:      &http.Client{Timeout: 30 * time.Second},
		CurrentUser: "default",
		Users:       map[string]string{},
		Variables:   map[string]interface{}{},
	}
	for _, module := range StepModules {
		module(ctx, s)
	}
}
