package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pulse-newsletter-backend/internal/config"
	"pulse-newsletter-backend/internal/models"
	"pulse-newsletter-backend/internal/pkg/logger"
)

type actionHandler func(ctx context.Context, decision models.ActionDecision, store *ContextStore) models.ActionResult

// Dispatcher routes one action decision to its handler. Handlers return
// the uniform result envelope, collaborator failures never escape as
// panics or raw errors.
type Dispatcher struct {
	model    ContentModel
	events   EventSearcher
	web      WebSearcher
	guard    *HallucinationGuard
	tools    *ToolsService
	config   config.ScraperConfig
	logger   *logger.Logger
	handlers map[models.ActionType]actionHandler
}

func NewDispatcher(model ContentModel, events EventSearcher, web WebSearcher, guard *HallucinationGuard, tools *ToolsService, cfg config.ScraperConfig, log *logger.Logger) *Dispatcher {
	dispatcher := &Dispatcher{
		model:  model,
		events: events,
		web:    web,
		guard:  guard,
		tools:  tools,
		config: cfg,
		logger: log,
	}

	dispatcher.handlers = map[models.ActionType]actionHandler{
		models.ActionGenerateNewsletter: dispatcher.handleGenerateNewsletter,
		models.ActionAddEvents:          dispatcher.handleAddEvents,
		models.ActionChangeEvents:       dispatcher.handleChangeEvents,
		models.ActionDeleteEvents:       dispatcher.handleDeleteEvents,
		models.ActionChangeTone:         dispatcher.handleChangeTone,
		models.ActionSearchEvents:       dispatcher.handleSearchEvents,
		models.ActionSearchWeb:          dispatcher.handleSearchWeb,
		models.ActionCustomizeContent:   dispatcher.handleCustomizeContent,
		models.ActionUpdateNewsletter:   dispatcher.handleUpdateNewsletter,
		models.ActionRespondInChat:      dispatcher.handleRespondInChat,
		models.ActionExecuteTool:        dispatcher.handleExecuteTool,
	}

	return dispatcher
}

func (dispatcher *Dispatcher) Execute(ctx context.Context, decision models.ActionDecision, store *ContextStore) models.ActionResult {
	startTime := time.Now()

	handler, ok := dispatcher.handlers[decision.ActionType]
	if !ok {
		return models.ActionResult{
			Success:     false,
			ActionTaken: string(decision.ActionType),
			Target:      decision.Target,
			Error:       fmt.Sprintf("unknown action type %q", decision.ActionType),
		}
	}

	result := handler(ctx, decision, store)
	result.ActionTaken = string(decision.ActionType)
	result.Target = decision.Target

	var err error
	if !result.Success {
		err = fmt.Errorf("%s", result.Error)
	}
	dispatcher.logger.LogAction("", string(decision.ActionType), time.Since(startTime), map[string]interface{}{
		"confidence": decision.Confidence,
	}, err)

	return result
}

// postcodeFor resolves the search postcode: explicit parameters first,
// then stored preferences, then the configured default.
func (dispatcher *Dispatcher) postcodeFor(decision models.ActionDecision, store *ContextStore) string {
	for _, key := range []string{"postcode", "location"} {
		if value, ok := decision.Parameters[key].(string); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}

	if value, ok := store.Preferences()["postcode"].(string); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}

	return dispatcher.config.DefaultPostcode
}

func windowDaysFor(decision models.ActionDecision) int {
	switch value := decision.Parameters["window_days"].(type) {
	case int:
		return value
	case float64:
		return int(value)
	}

	if scope, ok := decision.Parameters["scope"].(string); ok && strings.EqualFold(scope, "monthly") {
		return 30
	}
	return 7
}

func failure(message string) models.ActionResult {
	return models.ActionResult{Success: false, Error: message}
}

func (dispatcher *Dispatcher) handleGenerateNewsletter(ctx context.Context, decision models.ActionDecision, store *ContextStore) models.ActionResult {
	store.UpdateNewsletter(func(state *models.NewsletterState) {
		state.Status = models.NewsletterStatusGenerating
	})

	verified, err := dispatcher.events.Search(ctx, &EventSearchRequest{
		Postcode:   dispatcher.postcodeFor(decision, store),
		WindowDays: windowDaysFor(decision),
	})
	if err != nil {
		store.UpdateNewsletter(func(state *models.NewsletterState) {
			state.Status = models.NewsletterStatusError
		})
		return failure("event search failed: " + err.Error())
	}

	verified = dispatcher.guard.ValidateEvents(nil, verified)

	tone, _ := decision.Parameters["tone"].(string)
	if tone == "" {
		tone = store.NewsletterState().Tone
	}

	content, err := dispatcher.model.GenerateNewsletterContent(ctx, verified, store.Preferences(), tone)
	if err != nil {
		store.UpdateNewsletter(func(state *models.NewsletterState) {
			state.Status = models.NewsletterStatusError
		})
		return failure("newsletter generation failed: " + err.Error())
	}

	// generated events never survive, only the verified set does
	content.Events = dispatcher.guard.ValidateEvents(content.Events, verified)
	content.Images = SanitizeImages(content.Images)

	state := store.UpdateNewsletter(func(state *models.NewsletterState) {
		state.Status = models.NewsletterStatusGenerated
		state.Content = content
		state.Events = content.Events
		if tone != "" {
			state.Tone = tone
		}
	})

	return models.ActionResult{
		Success: true,
		Result: map[string]interface{}{
			"events_found": len(verified),
			"newsletter":   state,
		},
	}
}

func (dispatcher *Dispatcher) handleAddEvents(ctx context.Context, decision models.ActionDecision, store *ContextStore) models.ActionResult {
	verified, err := dispatcher.events.Search(ctx, &EventSearchRequest{
		Postcode:   dispatcher.postcodeFor(decision, store),
		WindowDays: windowDaysFor(decision),
	})
	if err != nil {
		return failure("event search failed: " + err.Error())
	}

	verified = dispatcher.guard.ValidateEvents(nil, verified)

	var added int
	state := store.UpdateNewsletter(func(state *models.NewsletterState) {
		before := len(state.Events)
		state.Events = mergeEvents(state.Events, verified)
		added = len(state.Events) - before
		if state.Content != nil {
			state.Content.Events = state.Events
		}
	})

	return models.ActionResult{
		Success: true,
		Result: map[string]interface{}{
			"events_found": len(verified),
			"events_added": added,
			"events_total": len(state.Events),
		},
	}
}

func (dispatcher *Dispatcher) handleChangeEvents(ctx context.Context, decision models.ActionDecision, store *ContextStore) models.ActionResult {
	verified, err := dispatcher.events.Search(ctx, &EventSearchRequest{
		Postcode:   dispatcher.postcodeFor(decision, store),
		WindowDays: windowDaysFor(decision),
	})
	if err != nil {
		return failure("event search failed: " + err.Error())
	}

	verified = dispatcher.guard.ValidateEvents(nil, verified)

	store.UpdateNewsletter(func(state *models.NewsletterState) {
		state.Events = verified
		if state.Content != nil {
			state.Content.Events = verified
		}
	})

	return models.ActionResult{
		Success: true,
		Result: map[string]interface{}{
			"events_found": len(verified),
		},
	}
}

func (dispatcher *Dispatcher) handleDeleteEvents(ctx context.Context, decision models.ActionDecision, store *ContextStore) models.ActionResult {
	reference, _ := decision.Parameters["event"].(string)
	reference = strings.ToLower(strings.TrimSpace(reference))

	var removed int
	state := store.UpdateNewsletter(func(state *models.NewsletterState) {
		if reference == "" {
			removed = len(state.Events)
			state.Events = []models.EventRecord{}
		} else {
			kept := state.Events[:0]
			for _, event := range state.Events {
				if strings.Contains(strings.ToLower(event.Title), reference) {
					removed++
					continue
				}
				kept = append(kept, event)
			}
			state.Events = kept
		}
		if state.Content != nil {
			state.Content.Events = state.Events
		}
	})

	return models.ActionResult{
		Success: true,
		Result: map[string]interface{}{
			"events_removed":   removed,
			"events_remaining": len(state.Events),
		},
	}
}

func (dispatcher *Dispatcher) handleChangeTone(ctx context.Context, decision models.ActionDecision, store *ContextStore) models.ActionResult {
	tone, _ := decision.Parameters["tone"].(string)
	tone = strings.TrimSpace(tone)
	if tone == "" {
		return failure("no tone specified")
	}

	current := store.NewsletterState()
	if current.Content == nil {
		// nothing generated yet, the tone applies to the next generation
		store.UpdateNewsletter(func(state *models.NewsletterState) {
			state.Tone = tone
		})
		return models.ActionResult{
			Success: true,
			Result: map[string]interface{}{
				"tone":    tone,
				"applied": "next_generation",
			},
		}
	}

	rewritten, err := dispatcher.model.RewriteTone(ctx, current.Content, tone)
	if err != nil {
		return failure("tone rewrite failed: " + err.Error())
	}

	rewritten.Events = dispatcher.guard.ValidateEvents(rewritten.Events, current.Events)
	rewritten.Images = SanitizeImages(rewritten.Images)

	store.UpdateNewsletter(func(state *models.NewsletterState) {
		state.Content = rewritten
		state.Tone = tone
	})

	return models.ActionResult{
		Success: true,
		Result: map[string]interface{}{
			"tone":    tone,
			"applied": "rewritten",
		},
	}
}

func (dispatcher *Dispatcher) handleSearchEvents(ctx context.Context, decision models.ActionDecision, store *ContextStore) models.ActionResult {
	verified, err := dispatcher.events.Search(ctx, &EventSearchRequest{
		Postcode:   dispatcher.postcodeFor(decision, store),
		WindowDays: windowDaysFor(decision),
	})
	if err != nil {
		return failure("event search failed: " + err.Error())
	}

	verified = dispatcher.guard.ValidateEvents(nil, verified)

	return models.ActionResult{
		Success: true,
		Result: map[string]interface{}{
			"events_found": len(verified),
			"events":       verified,
		},
	}
}

func (dispatcher *Dispatcher) handleSearchWeb(ctx context.Context, decision models.ActionDecision, store *ContextStore) models.ActionResult {
	query, _ := decision.Parameters["query"].(string)
	if strings.TrimSpace(query) == "" {
		return failure("no search query specified")
	}

	result, err := dispatcher.web.Search(ctx, query)
	if err != nil {
		return failure("web search failed: " + err.Error())
	}

	return models.ActionResult{
		Success: true,
		Result: map[string]interface{}{
			"query":   result.Query,
			"summary": result.Summary,
			"sources": result.Sources,
		},
	}
}

func (dispatcher *Dispatcher) handleCustomizeContent(ctx context.Context, decision models.ActionDecision, store *ContextStore) models.ActionResult {
	applied := map[string]interface{}{}

	if tone, ok := decision.Parameters["tone"].(string); ok && strings.TrimSpace(tone) != "" {
		toneDecision := decision
		toneDecision.Parameters = map[string]interface{}{"tone": tone}
		result := dispatcher.handleChangeTone(ctx, toneDecision, store)
		if !result.Success {
			return result
		}
		applied["tone"] = tone
	}

	preferences := models.UserPreferences{}
	for key, value := range decision.Parameters {
		if key == "tone" {
			continue
		}
		preferences[key] = value
		applied[key] = value
	}
	if len(preferences) > 0 {
		store.MergePreferences(preferences)
	}

	if len(applied) == 0 {
		return failure("no customization parameters specified")
	}

	return models.ActionResult{
		Success: true,
		Result:  map[string]interface{}{"applied": applied},
	}
}

func (dispatcher *Dispatcher) handleUpdateNewsletter(ctx context.Context, decision models.ActionDecision, store *ContextStore) models.ActionResult {
	requested, _ := decision.Parameters["status"].(string)

	var status models.NewsletterStatus
	switch strings.ToLower(strings.TrimSpace(requested)) {
	case "accept", "accepted":
		status = models.NewsletterStatusAccepted
	case "reject", "rejected":
		status = models.NewsletterStatusRejected
	default:
		return failure(fmt.Sprintf("unsupported newsletter status %q", requested))
	}

	current := store.NewsletterState()
	if current.Status != models.NewsletterStatusGenerated {
		return failure(fmt.Sprintf("cannot move newsletter from %q to %q", current.Status, status))
	}

	state := store.UpdateNewsletter(func(state *models.NewsletterState) {
		state.Status = status
	})

	return models.ActionResult{
		Success: true,
		Result: map[string]interface{}{
			"status": string(state.Status),
		},
	}
}

func (dispatcher *Dispatcher) handleRespondInChat(ctx context.Context, decision models.ActionDecision, store *ContextStore) models.ActionResult {
	reply, err := dispatcher.model.ChatReply(ctx, messageFromDecision(decision), store.Snapshot())
	if err != nil {
		return failure("chat reply failed: " + err.Error())
	}

	return models.ActionResult{
		Success: true,
		Result: map[string]interface{}{
			"reply": reply,
		},
	}
}

func (dispatcher *Dispatcher) handleExecuteTool(ctx context.Context, decision models.ActionDecision, store *ContextStore) models.ActionResult {
	toolID, _ := decision.Parameters["tool"].(string)
	if strings.TrimSpace(toolID) == "" {
		toolID, _ = decision.Parameters["tool_id"].(string)
	}
	toolID = strings.TrimSpace(toolID)
	if toolID == "" {
		return failure("no tool specified")
	}

	params := map[string]interface{}{}
	for key, value := range decision.Parameters {
		switch key {
		case "tool", "tool_id", "message":
			continue
		}
		params[key] = value
	}

	execution := dispatcher.tools.Execute(ctx, toolID, params)
	if !execution.Success {
		return failure("tool execution failed: " + execution.Error)
	}

	return models.ActionResult{
		Success: true,
		Result: map[string]interface{}{
			"tool_id":   toolID,
			"execution": execution,
		},
	}
}

func messageFromDecision(decision models.ActionDecision) string {
	if message, ok := decision.Parameters["message"].(string); ok {
		return message
	}
	return ""
}
