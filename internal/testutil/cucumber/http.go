package cucumber

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cucumber/godog"
)

func init() {
	StepModules = append(StepModules, func(ctx *godog.ScenarioContext, s *TestScenario) {
		ctx.Step(`^I am user "([^"]*)"$`, s.iAmUser)
		ctx.Step(`^I (GET|POST|DELETE|OPTIONS) path "([^"]*)"$`, s.sendHTTPRequest)
		ctx.Step(`^I (GET|POST|DELETE) path "([^"]*)" with json body:$`, s.SendHTTPRequestWithJSONBody)
		ctx.Step(`^I wait up to "([^"]*)" seconds for a (GET|POST) on path "([^"]*)" response "([^"]*)" selection to match "([^"]*)"$`, s.iWaitForSelectionToMatch)

		ctx.Step(`^the response code should be (\d+)$`, s.theResponseCodeShouldBe)
		ctx.Step(`^the response should match json:$`, s.theResponseShouldMatchJSON)
		ctx.Step(`^the response should contain json:$`, s.theResponseShouldContainJSON)
		ctx.Step(`^the response should contain "([^"]*)"$`, s.theResponseShouldContain)
		ctx.Step(`^I store the "([^"]*)" selection from the response as \${([^}]*)}$`, s.iStoreTheSelectionFromTheResponseAs)
		ctx.Step(`^the "(.*)" selection from the response should match "([^"]*)"$`, s.theSelectionFromTheResponseShouldMatch)
		ctx.Step(`^the "([^"]*)" selection from the response should match:$`, s.theSelectionFromTheResponseShouldMatchText)
	})
}

func (s *TestScenario) iAmUser(name string) error {
	s.CurrentUser = name
	return nil
}

func (s *TestScenario) sendHTTPRequest(method, path string) error {
	return s.SendHTTPRequestWithJSONBody(method, path, nil)
}

func (s *TestScenario) SendHTTPRequestWithJSONBody(method, path string, jsonTxt *godog.DocString) error {
	body := &bytes.Buffer{}
	if jsonTxt != nil {
		expanded, err := s.Expand(jsonTxt.Content)
		if err != nil {
			return err
		}
		body.WriteString(expanded)
	}
	expandedPath, err := s.Expand(path)
	if err != nil {
		return err
	}

	s.Resp = nil
	s.RespBytes = nil
	s.respJSON = nil

	req, err := http.NewRequestWithContext(context.Background(), method, s.Suite.APIURL+expandedPath, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://localhost:3000")

	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	s.Resp = resp
	s.RespBytes, err = io.ReadAll(resp.Body)
	return err
}

func (s *TestScenario) iWaitForSelectionToMatch(timeout float64, method, path, selector, expected string) error {
	deadline := time.Now().Add(time.Duration(timeout * float64(time.Second)))
	var last error
	for {
		if err := s.sendHTTPRequest(method, path); err != nil {
			return err
		}
		if last = s.theSelectionFromTheResponseShouldMatch(selector, expected); last == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return last
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func (s *TestScenario) theResponseCodeShouldBe(expected int) error {
	if s.Resp == nil {
		return fmt.Errorf("no HTTP response available")
	}
	if actual := s.Resp.StatusCode; expected != actual {
		return fmt.Errorf("expected response code to be: %d, but actual is: %d, body: %s", expected, actual, string(s.RespBytes))
	}
	return nil
}

func (s *TestScenario) theResponseShouldMatchJSON(expected *godog.DocString) error {
	if len(s.RespBytes) == 0 {
		return fmt.Errorf("got an empty response from server, expected a json body")
	}
	return s.JSONMustMatch(string(s.RespBytes), expected.Content)
}

func (s *TestScenario) theResponseShouldContainJSON(expected *godog.DocString) error {
	if len(s.RespBytes) == 0 {
		return fmt.Errorf("got an empty response from server, expected a json body")
	}
	return s.JSONMustContain(string(s.RespBytes), expected.Content)
}

func (s *TestScenario) theResponseShouldContain(expected string) error {
	expanded, err := s.Expand(expected)
	if err != nil {
		return err
	}
	if !strings.Contains(string(s.RespBytes), expanded) {
		return fmt.Errorf("expected response to contain '%s', but it does not. Response body: %s", expanded, s.RespBytes)
	}
	return nil
}

func (s *TestScenario) iStoreTheSelectionFromTheResponseAs(selector, as string) error {
	value, err := s.Select(selector)
	if err != nil {
		return err
	}
	s.Variables[as] = value
	return nil
}

func (s *TestScenario) theSelectionFromTheResponseShouldMatch(selector, expected string) error {
	actual, err := s.Select(selector)
	if err != nil {
		return err
	}
	expected, err = s.Expand(expected)
	if err != nil {
		return err
	}
	text := "null"
	if actual != nil {
		text = ToString(actual)
	}
	if text != expected {
		return fmt.Errorf("selected JSON does not match. expected: %v, actual: %v", expected, text)
	}
	return nil
}

func (s *TestScenario) theSelectionFromTheResponseShouldMatchText(selector string, expected *godog.DocString) error {
	return s.theSelectionFromTheResponseShouldMatch(selector, expected.Content)
}
