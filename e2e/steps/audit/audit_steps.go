package audit

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Do(method, path string, body any, admin bool) error
	Events() ([]map[string]any, error)
	Field(path string) (any, error)
	GetRememberedID() int64
	SetRememberedID(id int64)
}

// RegisterSteps registers audit query step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &auditSteps{tc: tc}

	ctx.Step(`^I search events with body:$`, steps.searchWithBody)
	ctx.Step(`^at most (\d+) events should be returned$`, steps.atMostEvents)
	ctx.Step(`^every returned event should have "([^"]*)" equal to "([^"]*)"$`, steps.everyEventHas)
	ctx.Step(`^every returned user email should be "([^"]*)"$`, steps.everyEmailIs)
	ctx.Step(`^I remember the first returned event$`, steps.rememberFirstEvent)
	ctx.Step(`^I fetch the remembered event$`, steps.fetchRememberedEvent)
	ctx.Step(`^the event id should match the remembered event$`, steps.idMatchesRemembered)
}

type auditSteps struct {
	tc TestContext
}

func (s *auditSteps) searchWithBody(ctx context.Context, body *godog.DocString) error {
	return s.tc.Do("POST", "/audit/events/search", rawJSON(body.Content), true)
}

func (s *auditSteps) atMostEvents(ctx context.Context, limit int) error {
	events, err := s.tc.Events()
	if err != nil {
		return err
	}
	if len(events) > limit {
		return fmt.Errorf("expected at most %d events, got %d", limit, len(events))
	}
	return nil
}

func (s *auditSteps) everyEventHas(ctx context.Context, field, expected string) error {
	events, err := s.tc.Events()
	if err != nil {
		return err
	}
	for i, event := range events {
		if got := fmt.Sprint(event[field]); got != expected {
			return fmt.Errorf("event %d: %s is %s, expected %s", i, field, got, expected)
		}
	}
	return nil
}

func (s *auditSteps) everyEmailIs(ctx context.Context, expected string) error {
	events, err := s.tc.Events()
	if err != nil {
		return err
	}
	for i, event := range events {
		user, _ := event["user_context"].(map[string]any)
		if got := fmt.Sprint(user["email"]); got != expected {
			return fmt.Errorf("event %d: email is %s, expected %s", i, got, expected)
		}
	}
	return nil
}

func (s *auditSteps) rememberFirstEvent(ctx context.Context) error {
	events, err := s.tc.Events()
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return fmt.Errorf("no events returned; seed the server with cmd/audit-seed first")
	}
	id, ok := events[0]["id"].(float64)
	if !ok {
		return fmt.Errorf("first event has no numeric id")
	}
	s.tc.SetRememberedID(int64(id))
	return nil
}

func (s *auditSteps) fetchRememberedEvent(ctx context.Context) error {
	return s.tc.Do("GET", fmt.Sprintf("/audit/events/%d", s.tc.GetRememberedID()), nil, true)
}

func (s *auditSteps) idMatchesRemembered(ctx context.Context) error {
	id, err := s.tc.Field("id")
	if err != nil {
		return err
	}
	if got, ok := id.(float64); !ok || int64(got) != s.tc.GetRememberedID() {
		return fmt.Errorf("expected id %d, got %v", s.tc.GetRememberedID(), id)
	}
	return nil
}
