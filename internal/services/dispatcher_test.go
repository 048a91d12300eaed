package services_test

import (
	"context"
	"errors"
	"testing"

	"pulse-newsletter-backend/internal/config"
	"pulse-newsletter-backend/internal/models"
	"pulse-newsletter-backend/internal/pkg/logger"
	"pulse-newsletter-backend/internal/services"
)

// Stub collaborators shared by the service tests.

type stubModel struct {
	decideFn   func(ctx context.Context, message string, convo map[string]interface{}) (*models.ActionDecision, error)
	generateFn func(ctx context.Context, events []models.EventRecord, preferences models.UserPreferences, tone string) (*models.NewsletterContent, error)
	rewriteFn  func(ctx context.Context, content *models.NewsletterContent, tone string) (*models.NewsletterContent, error)
	replyFn    func(ctx context.Context, message string, convo map[string]interface{}) (string, error)
}

func (m *stubModel) DecideAction(ctx context.Context, message string, convo map[string]interface{}) (*models.ActionDecision, error) {
	if m.decideFn != nil {
		return m.decideFn(ctx, message, convo)
	}
	return nil, errors.New("decide not stubbed")
}

func (m *stubModel) GenerateNewsletterContent(ctx context.Context, events []models.EventRecord, preferences models.UserPreferences, tone string) (*models.NewsletterContent, error) {
	if m.generateFn != nil {
		return m.generateFn(ctx, events, preferences, tone)
	}
	return &models.NewsletterContent{
		Header:      "Community Pulse",
		MainChannel: "Welcome to this week's newsletter.",
		Events:      events,
	}, nil
}

func (m *stubModel) RewriteTone(ctx context.Context, content *models.NewsletterContent, tone string) (*models.NewsletterContent, error) {
	if m.rewriteFn != nil {
		return m.rewriteFn(ctx, content, tone)
	}
	rewritten := *content
	return &rewritten, nil
}

func (m *stubModel) ChatReply(ctx context.Context, message string, convo map[string]interface{}) (string, error) {
	if m.replyFn != nil {
		return m.replyFn(ctx, message, convo)
	}
	return "Happy to help with your newsletter.", nil
}

func (m *stubModel) HealthCheck(ctx context.Context) error { return nil }

type stubEvents struct {
	searchFn func(ctx context.Context, req *services.EventSearchRequest) ([]models.EventRecord, error)
}

func (e *stubEvents) Search(ctx context.Context, req *services.EventSearchRequest) ([]models.EventRecord, error) {
	if e.searchFn != nil {
		return e.searchFn(ctx, req)
	}
	return []models.EventRecord{}, nil
}

func (e *stubEvents) HealthCheck(ctx context.Context) error { return nil }

type stubWeb struct {
	searchFn func(ctx context.Context, query string) (*services.WebSearchResult, error)
}

func (w *stubWeb) Search(ctx context.Context, query string) (*services.WebSearchResult, error) {
	if w.searchFn != nil {
		return w.searchFn(ctx, query)
	}
	return &services.WebSearchResult{
		Query:   query,
		Summary: "sources for " + query,
		Sources: []services.WebSource{{Name: "BBC News", URL: "https://www.bbc.co.uk"}},
	}, nil
}

func testScraperConfig() config.ScraperConfig {
	return config.ScraperConfig{
		DefaultPostcode: "TS1 3BA",
		DefaultRadiusKm: 10,
		MinEvents:       5,
		MaxExpansions:   4,
	}
}

func twoVerifiedEvents() []models.EventRecord {
	return []models.EventRecord{
		{Title: "Riverside Market", Date: "2026-09-03", Location: "Town Hall Square"},
		{Title: "Park Run", Date: "2026-09-05", Location: "Albert Park"},
	}
}

func newTestDispatcher(model *stubModel, events *stubEvents, web *stubWeb) *services.Dispatcher {
	tools := services.NewToolsService(model, events, web, logger.NewNop())
	return services.NewDispatcher(model, events, web, services.NewHallucinationGuard(), tools, testScraperConfig(), logger.NewNop())
}

func TestGenerateNewsletterUsesOnlyVerifiedEvents(t *testing.T) {
	verified := twoVerifiedEvents()

	events := &stubEvents{
		searchFn: func(ctx context.Context, req *services.EventSearchRequest) ([]models.EventRecord, error) {
			if req.Postcode != "TS1 3BA" {
				t.Errorf("expected default postcode TS1 3BA, got %q", req.Postcode)
			}
			return verified, nil
		},
	}

	// the model tries to smuggle in an invented event
	model := &stubModel{
		generateFn: func(ctx context.Context, supplied []models.EventRecord, preferences models.UserPreferences, tone string) (*models.NewsletterContent, error) {
			return &models.NewsletterContent{
				Header:      "Community Pulse",
				MainChannel: "This week in your area.",
				Events: append(supplied, models.EventRecord{
					Title: "Grand Gala at Avalon", Date: "2026-09-04", Location: "Avalon Centre",
				}),
				Images: []string{"https://cdn.example.com/banner.png", "hero.jpg"},
			}, nil
		},
	}

	dispatcher := newTestDispatcher(model, events, &stubWeb{})
	store := services.NewContextStore()

	result := dispatcher.Execute(context.Background(), models.ActionDecision{
		ActionType: models.ActionGenerateNewsletter,
		Target:     models.TargetNewsletter,
		Parameters: map[string]interface{}{},
	}, store)

	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}

	if found := result.Result["events_found"]; found != 2 {
		t.Errorf("expected events_found 2, got %v", found)
	}

	state := store.NewsletterState()
	if state.Status != models.NewsletterStatusGenerated {
		t.Errorf("expected status generated, got %s", state.Status)
	}

	if len(state.Events) != 2 {
		t.Fatalf("expected 2 verified events to survive, got %d", len(state.Events))
	}
	for _, event := range state.Events {
		if event.Title == "Grand Gala at Avalon" {
			t.Error("invented event survived the guard")
		}
	}

	if len(state.Content.Images) != 1 || state.Content.Images[0] != "https://cdn.example.com/banner.png" {
		t.Errorf("expected bare filename image dropped, got %v", state.Content.Images)
	}
}

func TestGenerateNewsletterSearchFailure(t *testing.T) {
	events := &stubEvents{
		searchFn: func(ctx context.Context, req *services.EventSearchRequest) ([]models.EventRecord, error) {
			return nil, models.NewTimeoutError("EVENT_SEARCH_TIMEOUT", "search timed out")
		},
	}

	dispatcher := newTestDispatcher(&stubModel{}, events, &stubWeb{})
	store := services.NewContextStore()

	result := dispatcher.Execute(context.Background(), models.ActionDecision{
		ActionType: models.ActionGenerateNewsletter,
		Target:     models.TargetNewsletter,
		Parameters: map[string]interface{}{},
	}, store)

	if result.Success {
		t.Fatal("expected failure when the event search times out")
	}
	if result.Error == "" {
		t.Error("expected an error message in the envelope")
	}
	if store.NewsletterState().Status != models.NewsletterStatusError {
		t.Errorf("expected newsletter status error, got %s", store.NewsletterState().Status)
	}
}

func TestUnknownActionType(t *testing.T) {
	dispatcher := newTestDispatcher(&stubModel{}, &stubEvents{}, &stubWeb{})
	store := services.NewContextStore()

	result := dispatcher.Execute(context.Background(), models.ActionDecision{
		ActionType: models.ActionType("launch_rockets"),
		Target:     models.TargetSystem,
		Parameters: map[string]interface{}{},
	}, store)

	if result.Success {
		t.Fatal("expected failure for unknown action type")
	}
	if result.Error == "" {
		t.Error("expected error message for unknown action type")
	}
}

func TestAddAndDeleteEvents(t *testing.T) {
	dispatcher := newTestDispatcher(&stubModel{}, &stubEvents{
		searchFn: func(ctx context.Context, req *services.EventSearchRequest) ([]models.EventRecord, error) {
			return twoVerifiedEvents(), nil
		},
	}, &stubWeb{})
	store := services.NewContextStore()

	addResult := dispatcher.Execute(context.Background(), models.ActionDecision{
		ActionType: models.ActionAddEvents,
		Target:     models.TargetNewsletter,
		Parameters: map[string]interface{}{},
	}, store)

	if !addResult.Success {
		t.Fatalf("add_events failed: %s", addResult.Error)
	}
	if total := addResult.Result["events_total"]; total != 2 {
		t.Errorf("expected 2 events total, got %v", total)
	}

	// adding the same events again is a no-op thanks to dedupe
	dispatcher.Execute(context.Background(), models.ActionDecision{
		ActionType: models.ActionAddEvents,
		Target:     models.TargetNewsletter,
		Parameters: map[string]interface{}{},
	}, store)
	if got := len(store.NewsletterState().Events); got != 2 {
		t.Errorf("expected dedupe to keep 2 events, got %d", got)
	}

	deleteResult := dispatcher.Execute(context.Background(), models.ActionDecision{
		ActionType: models.ActionDeleteEvents,
		Target:     models.TargetNewsletter,
		Parameters: map[string]interface{}{"event": "park run"},
	}, store)

	if !deleteResult.Success {
		t.Fatalf("delete_events failed: %s", deleteResult.Error)
	}
	if removed := deleteResult.Result["events_removed"]; removed != 1 {
		t.Errorf("expected 1 event removed, got %v", removed)
	}
	if remaining := len(store.NewsletterState().Events); remaining != 1 {
		t.Errorf("expected 1 event remaining, got %d", remaining)
	}
}

func TestChangeToneBeforeGeneration(t *testing.T) {
	dispatcher := newTestDispatcher(&stubModel{}, &stubEvents{}, &stubWeb{})
	store := services.NewContextStore()

	result := dispatcher.Execute(context.Background(), models.ActionDecision{
		ActionType: models.ActionChangeTone,
		Target:     models.TargetNewsletter,
		Parameters: map[string]interface{}{"tone": "playful"},
	}, store)

	if !result.Success {
		t.Fatalf("change_tone failed: %s", result.Error)
	}
	if applied := result.Result["applied"]; applied != "next_generation" {
		t.Errorf("expected tone deferred to next generation, got %v", applied)
	}
	if store.NewsletterState().Tone != "playful" {
		t.Errorf("expected stored tone playful, got %q", store.NewsletterState().Tone)
	}
}

func TestUpdateNewsletterStatusTransitions(t *testing.T) {
	dispatcher := newTestDispatcher(&stubModel{}, &stubEvents{
		searchFn: func(ctx context.Context, req *services.EventSearchRequest) ([]models.EventRecord, error) {
			return twoVerifiedEvents(), nil
		},
	}, &stubWeb{})
	store := services.NewContextStore()

	// accepting before anything is generated is rejected
	premature := dispatcher.Execute(context.Background(), models.ActionDecision{
		ActionType: models.ActionUpdateNewsletter,
		Target:     models.TargetNewsletter,
		Parameters: map[string]interface{}{"status": "accept"},
	}, store)
	if premature.Success {
		t.Fatal("expected failure accepting an ungenerated newsletter")
	}

	dispatcher.Execute(context.Background(), models.ActionDecision{
		ActionType: models.ActionGenerateNewsletter,
		Target:     models.TargetNewsletter,
		Parameters: map[string]interface{}{},
	}, store)

	accepted := dispatcher.Execute(context.Background(), models.ActionDecision{
		ActionType: models.ActionUpdateNewsletter,
		Target:     models.TargetNewsletter,
		Parameters: map[string]interface{}{"status": "accept"},
	}, store)
	if !accepted.Success {
		t.Fatalf("accept failed: %s", accepted.Error)
	}
	if store.NewsletterState().Status != models.NewsletterStatusAccepted {
		t.Errorf("expected accepted status, got %s", store.NewsletterState().Status)
	}
}

func TestExecuteToolAction(t *testing.T) {
	web := &stubWeb{
		searchFn: func(ctx context.Context, query string) (*services.WebSearchResult, error) {
			if query != "middlesbrough news" {
				t.Errorf("expected tool query forwarded, got %q", query)
			}
			return &services.WebSearchResult{Query: query, Summary: "live sources"}, nil
		},
	}

	dispatcher := newTestDispatcher(&stubModel{}, &stubEvents{}, web)
	store := services.NewContextStore()

	result := dispatcher.Execute(context.Background(), models.ActionDecision{
		ActionType: models.ActionExecuteTool,
		Target:     models.TargetChat,
		Parameters: map[string]interface{}{"tool": "web_search", "query": "middlesbrough news"},
	}, store)

	if !result.Success {
		t.Fatalf("tool_execution failed: %s", result.Error)
	}
	execution, ok := result.Result["execution"].(models.ToolExecution)
	if !ok {
		t.Fatalf("expected a tool execution in the result, got %T", result.Result["execution"])
	}
	if !execution.Success || execution.ToolID != "web_search" {
		t.Errorf("unexpected execution envelope: %+v", execution)
	}
}

func TestExecuteToolActionUnknownTool(t *testing.T) {
	dispatcher := newTestDispatcher(&stubModel{}, &stubEvents{}, &stubWeb{})
	store := services.NewContextStore()

	result := dispatcher.Execute(context.Background(), models.ActionDecision{
		ActionType: models.ActionExecuteTool,
		Target:     models.TargetChat,
		Parameters: map[string]interface{}{"tool": "time_machine"},
	}, store)

	if result.Success {
		t.Fatal("expected failure for an unknown tool")
	}
	if result.Error == "" {
		t.Error("expected an error message for an unknown tool")
	}
}

func TestExecuteToolActionRequiresToolID(t *testing.T) {
	dispatcher := newTestDispatcher(&stubModel{}, &stubEvents{}, &stubWeb{})
	store := services.NewContextStore()

	result := dispatcher.Execute(context.Background(), models.ActionDecision{
		ActionType: models.ActionExecuteTool,
		Target:     models.TargetChat,
		Parameters: map[string]interface{}{},
	}, store)

	if result.Success {
		t.Fatal("expected failure when no tool is named")
	}
}

func TestSearchWebRequiresQuery(t *testing.T) {
	dispatcher := newTestDispatcher(&stubModel{}, &stubEvents{}, &stubWeb{})
	store := services.NewContextStore()

	result := dispatcher.Execute(context.Background(), models.ActionDecision{
		ActionType: models.ActionSearchWeb,
		Target:     models.TargetChat,
		Parameters: map[string]interface{}{},
	}, store)

	if result.Success {
		t.Fatal("expected failure without a query")
	}
}
