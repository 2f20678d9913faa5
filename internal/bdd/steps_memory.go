package bdd

import (
	"context"
	"fmt"
	"strings"

	"github.com/cucumber/godog"
	"github.com/voice-engine-studio/memory-service/internal/testutil/cucumber"
)

func init() {
	cucumber.StepModules = append(cucumber.StepModules, func(ctx *godog.ScenarioContext, s *cucumber.TestScenario) {
		m := &memorySteps{s: s}
		ctx.Before(m.reset)
		ctx.Step(`^the completion model replies with:$`, m.theCompletionModelRepliesWith)
		ctx.Step(`^the completion model fails with status (\d+)$`, m.theCompletionModelFailsWith)
		ctx.Step(`^the completion model should have been called (\d+) times?$`, m.theCompletionModelShouldHaveBeenCalled)
		ctx.Step(`^I create a "([^"]*)" memory "([^"]*)"$`, m.iCreateAMemory)
		ctx.Step(`^the response should contain (\d+) memor(?:y|ies)$`, m.theResponseShouldContainMemories)
		ctx.Step(`^the memory contents should be "([^"]*)"$`, m.theMemoryContentsShouldBe)
	})
}

type memorySteps struct {
	s *cucumber.TestScenario
}

func (m *memorySteps) llm() *MockCompletion {
	return m.s.Suite.Extra["llm"].(*MockCompletion)
}

func (m *memorySteps) reset(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
	m.llm().Reset()
	return ctx, nil
}

func (m *memorySteps) theCompletionModelRepliesWith(reply *godog.DocString) error {
	m.llm().SetReply(reply.Content)
	return nil
}

func (m *memorySteps) theCompletionModelFailsWith(status int) error {
	m.llm().Fail(status)
	return nil
}

func (m *memorySteps) theCompletionModelShouldHaveBeenCalled(expected int) error {
	if actual := m.llm().Requests(); actual != expected {
		return fmt.Errorf("expected %d completion requests, got %d", expected, actual)
	}
	return nil
}

func (m *memorySteps) iCreateAMemory(category, content string) error {
	body := fmt.Sprintf(`{"content":%q,"category":%q}`, content, category)
	if err := m.s.SendHTTPRequestWithJSONBody("POST", "/api/memory/${userId}", &godog.DocString{Content: body}); err != nil {
		return err
	}
	if m.s.Resp.StatusCode != 200 {
		return fmt.Errorf("create memory failed: %d %s", m.s.Resp.StatusCode, m.s.RespBytes)
	}
	return nil
}

func (m *memorySteps) records() ([]interface{}, error) {
	doc, err := m.s.RespJSON()
	if err != nil {
		return nil, err
	}
	list, ok := doc.([]interface{})
	if !ok {
		return nil, fmt.Errorf("expected a json array, got: %s", m.s.RespBytes)
	}
	return list, nil
}

func (m *memorySteps) theResponseShouldContainMemories(expected int) error {
	list, err := m.records()
	if err != nil {
		return err
	}
	if len(list) != expected {
		return fmt.Errorf("expected %d memories, got %d: %s", expected, len(list), m.s.RespBytes)
	}
	return nil
}

// theMemoryContentsShouldBe compares the content fields, in order, against a
// comma separated list.
func (m *memorySteps) theMemoryContentsShouldBe(expected string) error {
	list, err := m.records()
	if err != nil {
		return err
	}
	contents := make([]string, 0, len(list))
	for _, item := range list {
		rec, ok := item.(map[string]interface{})
		if !ok {
			return fmt.Errorf("expected memory objects, got: %s", m.s.RespBytes)
		}
		contents = append(contents, cucumber.ToString(rec["content"]))
	}
	if actual := strings.Join(contents, ","); actual != expected {
		return fmt.Errorf("expected contents %q, got %q", expected, actual)
	}
	return nil
}
