package services_test

import (
	"testing"

	"pulse-newsletter-backend/internal/models"
	"pulse-newsletter-backend/internal/services"
)

func TestClassifyEventSearchWithLocation(t *testing.T) {
	matcher := services.NewIntentMatcher()

	intent := matcher.Classify("find events in TS1 3BA")

	if intent.Kind != models.IntentEventSearch {
		t.Fatalf("expected event_search, got %s", intent.Kind)
	}
	if intent.Confidence < 0.7 || intent.Confidence > 0.9 {
		t.Errorf("confidence %.2f outside the expected band", intent.Confidence)
	}
	if intent.Slots["location"] != "TS1 3BA" {
		t.Errorf("expected location slot TS1 3BA, got %q", intent.Slots["location"])
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	matcher := services.NewIntentMatcher()

	message := "generate my newsletter please"
	first := matcher.Classify(message)
	for i := 0; i < 10; i++ {
		next := matcher.Classify(message)
		if next.Kind != first.Kind || next.Confidence != first.Confidence {
			t.Fatalf("classification changed between runs: %v vs %v", first, next)
		}
	}
	if first.Kind != models.IntentContentGeneration {
		t.Errorf("expected content_generation, got %s", first.Kind)
	}
}

func TestClassifyEmptyMessage(t *testing.T) {
	matcher := services.NewIntentMatcher()

	intent := matcher.Classify("   ")

	if intent.Kind != models.IntentGeneral {
		t.Errorf("expected general intent, got %s", intent.Kind)
	}
	if intent.Confidence != 0.5 {
		t.Errorf("expected confidence 0.5, got %.2f", intent.Confidence)
	}
}

func TestClassifyRuleOrder(t *testing.T) {
	matcher := services.NewIntentMatcher()

	cases := []struct {
		message string
		want    models.IntentKind
	}{
		{"search the web for street food markets", models.IntentWebSearch},
		{"what's on in Middlesbrough this weekend", models.IntentEventSearch},
		{"add some events about live music", models.IntentEventManagement},
		{"change the tone to playful", models.IntentCustomization},
		{"create a newsletter for my area", models.IntentContentGeneration},
		{"run the event_search tool", models.IntentToolExecution},
		{"what can you do", models.IntentHelp},
		{"good morning", models.IntentGeneral},
	}

	for _, tc := range cases {
		intent := matcher.Classify(tc.message)
		if intent.Kind != tc.want {
			t.Errorf("Classify(%q) = %s, want %s", tc.message, intent.Kind, tc.want)
		}
	}
}

func TestClassifyTrimsSlotPunctuation(t *testing.T) {
	matcher := services.NewIntentMatcher()

	intent := matcher.Classify("look up dog friendly cafes in Leeds!")

	if intent.Kind != models.IntentWebSearch {
		t.Fatalf("expected web_search, got %s", intent.Kind)
	}
	if intent.Slots["query"] != "dog friendly cafes in Leeds" {
		t.Errorf("expected trailing punctuation trimmed, got %q", intent.Slots["query"])
	}
}

func TestDecisionFromIntentConfidences(t *testing.T) {
	cases := []struct {
		message    string
		intent     models.Intent
		wantAction models.ActionType
		wantConf   float64
	}{
		{"make me a newsletter", models.Intent{Kind: models.IntentContentGeneration}, models.ActionGenerateNewsletter, 0.9},
		{"add more events", models.Intent{Kind: models.IntentEventManagement}, models.ActionAddEvents, 0.85},
		{"delete the park run event", models.Intent{Kind: models.IntentEventManagement}, models.ActionDeleteEvents, 0.8},
		{"swap the events out", models.Intent{Kind: models.IntentEventManagement}, models.ActionChangeEvents, 0.8},
		{"change the tone", models.Intent{Kind: models.IntentCustomization}, models.ActionChangeTone, 0.8},
		{"events near me", models.Intent{Kind: models.IntentEventSearch}, models.ActionSearchEvents, 0.8},
		{"google street food", models.Intent{Kind: models.IntentWebSearch}, models.ActionSearchWeb, 0.75},
		{"run the tone tool", models.Intent{Kind: models.IntentToolExecution}, models.ActionExecuteTool, 0.7},
		{"hello there", models.Intent{Kind: models.IntentGeneral}, models.ActionRespondInChat, 0.5},
	}

	for _, tc := range cases {
		decision := services.DecisionFromIntent(tc.intent, tc.message)
		if decision.ActionType != tc.wantAction {
			t.Errorf("%q: action %s, want %s", tc.message, decision.ActionType, tc.wantAction)
		}
		if decision.Confidence != tc.wantConf {
			t.Errorf("%q: confidence %.2f, want %.2f", tc.message, decision.Confidence, tc.wantConf)
		}
	}
}

func TestDecisionFromIntentMutatingActionsTargetNewsletter(t *testing.T) {
	mutating := []struct {
		message string
		intent  models.Intent
	}{
		{"generate newsletter", models.Intent{Kind: models.IntentContentGeneration}},
		{"add events", models.Intent{Kind: models.IntentEventManagement}},
		{"remove events", models.Intent{Kind: models.IntentEventManagement}},
		{"change the tone", models.Intent{Kind: models.IntentCustomization}},
	}

	for _, tc := range mutating {
		decision := services.DecisionFromIntent(tc.intent, tc.message)
		if !decision.ActionType.MutatesNewsletter() {
			t.Errorf("%q: expected a mutating action, got %s", tc.message, decision.ActionType)
			continue
		}
		if decision.Target != models.TargetNewsletter {
			t.Errorf("%q: mutating action targets %s, want newsletter", tc.message, decision.Target)
		}
	}
}

func TestDecisionFromIntentCarriesSlots(t *testing.T) {
	decision := services.DecisionFromIntent(models.Intent{
		Kind:  models.IntentEventSearch,
		Slots: map[string]string{"location": "TS1 3BA"},
	}, "find events in TS1 3BA")

	if decision.Parameters["location"] != "TS1 3BA" {
		t.Errorf("expected location parameter carried over, got %v", decision.Parameters["location"])
	}

	toolDecision := services.DecisionFromIntent(models.Intent{
		Kind:  models.IntentToolExecution,
		Slots: map[string]string{"tool": "web_search"},
	}, "run the web_search tool")

	if toolDecision.ActionType != models.ActionExecuteTool {
		t.Errorf("expected tool_execution action, got %s", toolDecision.ActionType)
	}
	if toolDecision.Parameters["tool"] != "web_search" {
		t.Errorf("expected tool parameter carried over, got %v", toolDecision.Parameters["tool"])
	}
}
