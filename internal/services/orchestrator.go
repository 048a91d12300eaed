package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"pulse-newsletter-backend/internal/models"
	"pulse-newsletter-backend/internal/pkg/logger"
)

// escalationThreshold: rule decisions at or below this confidence are
// offered to the model before dispatch.
const escalationThreshold = 0.7

// Orchestrator runs the conversation pipeline: classify, maybe escalate,
// dispatch, guard, record. One context store per session.
type Orchestrator struct {
	matcher    *IntentMatcher
	model      ContentModel
	dispatcher *Dispatcher
	guard      *HallucinationGuard
	redis      *RedisService // optional context persistence
	mongo      *MongoService // optional newsletter archive
	logger     *logger.Logger

	sessions  sync.Map // session_id -> *ContextStore
	startTime time.Time
}

func NewOrchestrator(matcher *IntentMatcher, model ContentModel, dispatcher *Dispatcher, guard *HallucinationGuard, redis *RedisService, mongo *MongoService, log *logger.Logger) *Orchestrator {
	orchestrator := &Orchestrator{
		matcher:    matcher,
		model:      model,
		dispatcher: dispatcher,
		guard:      guard,
		redis:      redis,
		mongo:      mongo,
		logger:     log,
		startTime:  time.Now(),
	}

	log.Info("Orchestrator initialized",
		"escalation_threshold", escalationThreshold,
		"redis_persistence", redis != nil,
		"mongo_archive", mongo != nil)

	return orchestrator
}

func (orchestrator *Orchestrator) session(sessionID string) *ContextStore {
	if sessionID == "" {
		sessionID = "default"
	}

	if value, ok := orchestrator.sessions.Load(sessionID); ok {
		return value.(*ContextStore)
	}

	store := NewContextStore()

	// best effort rehydration, the in-memory store stays authoritative
	if orchestrator.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		persisted, err := orchestrator.redis.LoadConversationContext(ctx, sessionID)
		cancel()

		if err != nil {
			orchestrator.logger.WithError(err).Warn("failed to rehydrate session", "session_id", sessionID)
		} else if persisted != nil {
			for _, turn := range persisted.History {
				store.RecordTurn(turn)
			}
			store.MergePreferences(persisted.Preferences)
		}
	}

	actual, _ := orchestrator.sessions.LoadOrStore(sessionID, store)
	return actual.(*ContextStore)
}

// HandleMessage runs one user message through the full pipeline: the
// rule matcher decides first and the model is only consulted for
// low-confidence decisions.
func (orchestrator *Orchestrator) HandleMessage(ctx context.Context, req *models.ChatRequest) *models.ResponseEnvelope {
	return orchestrator.handle(ctx, req, false)
}

// HandleMessageModelFirst always asks the model for the action decision,
// falling back to the rule decision when the model misbehaves.
func (orchestrator *Orchestrator) HandleMessageModelFirst(ctx context.Context, req *models.ChatRequest) *models.ResponseEnvelope {
	return orchestrator.handle(ctx, req, true)
}

// handle is the pipeline body. Panics anywhere below are converted into
// a fallback chat response.
func (orchestrator *Orchestrator) handle(ctx context.Context, req *models.ChatRequest, modelFirst bool) (envelope *models.ResponseEnvelope) {
	startTime := time.Now()

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = "default"
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			orchestrator.logger.Error("pipeline panic recovered",
				"session_id", sessionID,
				"panic", fmt.Sprintf("%v", recovered))
			envelope = &models.ResponseEnvelope{
				Success:     false,
				Response:    "Something went wrong while handling that. Your newsletter and conversation are untouched, please try again.",
				ActionTaken: "fallback_response",
				Target:      models.TargetChat,
				Error:       fmt.Sprintf("%v", recovered),
				Intent:      models.Intent{Kind: models.IntentGeneral, Confidence: 0.5},
				Timestamp:   time.Now(),
			}
		}
	}()

	store := orchestrator.session(sessionID)
	if len(req.Context) > 0 {
		store.MergePreferences(req.Context)
	}

	intent := orchestrator.matcher.Classify(req.Message)
	decision := DecisionFromIntent(intent, req.Message)
	decision.Parameters["message"] = req.Message

	if modelFirst || decision.Confidence <= escalationThreshold {
		escalated, err := orchestrator.model.DecideAction(ctx, req.Message, store.Snapshot())
		if err != nil {
			orchestrator.logger.WithError(err).Warn("escalation failed, keeping rule decision",
				"session_id", sessionID)
		} else {
			escalated.Parameters["message"] = req.Message
			decision = *escalated
		}
	}

	result := orchestrator.dispatcher.Execute(ctx, decision, store)
	response := orchestrator.renderResponse(decision, result)

	if orchestrator.guard.MessageConcernsEvents(req.Message) && orchestrator.guard.ContainsFabrication(response) {
		orchestrator.logger.Warn("fabricated events caught in response",
			"session_id", sessionID,
			"action", result.ActionTaken)
		response = orchestrator.guard.SafeReplacement(store.NewsletterState().Events)
	}

	store.RecordTurn(models.NewConversationTurn("user", req.Message, "", ""))
	store.RecordTurn(models.NewConversationTurn("assistant", response, result.ActionTaken, summarizeResult(result)))

	if orchestrator.redis != nil {
		go orchestrator.persistContextAsync(sessionID, store)
	}

	if orchestrator.mongo != nil && result.Success && decision.ActionType == models.ActionGenerateNewsletter {
		go orchestrator.archiveNewsletterAsync(sessionID, store)
	}

	state := store.NewsletterState()

	orchestrator.logger.LogAction(sessionID, result.ActionTaken, time.Since(startTime), map[string]interface{}{
		"intent":  string(intent.Kind),
		"success": result.Success,
	}, nil)

	return &models.ResponseEnvelope{
		Success:             result.Success,
		Response:            response,
		ActionTaken:         result.ActionTaken,
		Target:              result.Target,
		Reasoning:           decision.Reasoning,
		Confidence:          decision.Confidence,
		Intent:              intent,
		Result:              result.Result,
		Error:               result.Error,
		ConversationHistory: store.History(10),
		FunctionCalls:       functionCallsFrom(result),
		NewsletterState:     state,
		Suggestions:         suggestionsFor(result, state),
		Timestamp:           time.Now(),
	}
}

func functionCallsFrom(result models.ActionResult) []models.ToolExecution {
	if execution, ok := result.Result["execution"].(models.ToolExecution); ok {
		return []models.ToolExecution{execution}
	}
	return nil
}

func (orchestrator *Orchestrator) renderResponse(decision models.ActionDecision, result models.ActionResult) string {
	if !result.Success {
		return fmt.Sprintf("Sorry, I couldn't complete that: %s", result.Error)
	}

	switch decision.ActionType {
	case models.ActionRespondInChat:
		if reply, ok := result.Result["reply"].(string); ok && reply != "" {
			return reply
		}
		return "I can find verified local events, build your newsletter and adjust its tone. What would you like to do?"

	case models.ActionGenerateNewsletter:
		found, _ := result.Result["events_found"].(int)
		if found == 0 {
			return "I've generated your newsletter. No events could be verified right now, so the events section was left out rather than guessed."
		}
		return fmt.Sprintf("I've generated your newsletter with %d verified local events.", found)

	case models.ActionSearchEvents:
		events, _ := result.Result["events"].([]models.EventRecord)
		if len(events) == 0 {
			return "I couldn't verify any events for that area right now."
		}
		var builder strings.Builder
		builder.WriteString(fmt.Sprintf("I found %d verified events:\n", len(events)))
		for _, event := range events {
			builder.WriteString(fmt.Sprintf("- %s (%s) at %s\n", event.Title, event.Date, event.Location))
		}
		return builder.String()

	case models.ActionSearchWeb:
		summary, _ := result.Result["summary"].(string)
		sources, _ := result.Result["sources"].([]WebSource)
		var builder strings.Builder
		builder.WriteString(summary)
		for _, source := range sources {
			builder.WriteString(fmt.Sprintf("\n- %s: %s", source.Name, source.URL))
		}
		return builder.String()

	case models.ActionAddEvents:
		added, _ := result.Result["events_added"].(int)
		total, _ := result.Result["events_total"].(int)
		return fmt.Sprintf("Added %d verified events. Your newsletter now carries %d.", added, total)

	case models.ActionChangeEvents:
		found, _ := result.Result["events_found"].(int)
		return fmt.Sprintf("Replaced the newsletter events with %d freshly verified ones.", found)

	case models.ActionDeleteEvents:
		removed, _ := result.Result["events_removed"].(int)
		remaining, _ := result.Result["events_remaining"].(int)
		return fmt.Sprintf("Removed %d events, %d remain.", removed, remaining)

	case models.ActionChangeTone:
		tone, _ := result.Result["tone"].(string)
		if applied, _ := result.Result["applied"].(string); applied == "next_generation" {
			return fmt.Sprintf("Noted, I'll use a %s tone when the newsletter is generated.", tone)
		}
		return fmt.Sprintf("Done, the newsletter now reads in a %s tone.", tone)

	case models.ActionCustomizeContent:
		return "Applied your customization to the newsletter."

	case models.ActionUpdateNewsletter:
		status, _ := result.Result["status"].(string)
		return fmt.Sprintf("Newsletter marked as %s.", status)

	case models.ActionExecuteTool:
		execution, _ := result.Result["execution"].(models.ToolExecution)
		if execution.ToolName != "" {
			return fmt.Sprintf("Ran the %s tool for you.", execution.ToolName)
		}
		toolID, _ := result.Result["tool_id"].(string)
		return fmt.Sprintf("Ran the %s tool for you.", toolID)

	default:
		return "Done."
	}
}

func summarizeResult(result models.ActionResult) string {
	if !result.Success {
		return "failed: " + result.Error
	}

	parts := []string{}
	for _, key := range []string{"events_found", "events_added", "events_removed", "status", "tone", "tool_id"} {
		if value, ok := result.Result[key]; ok {
			parts = append(parts, fmt.Sprintf("%s=%v", key, value))
		}
	}
	if len(parts) == 0 {
		return "ok"
	}
	return strings.Join(parts, " ")
}

func suggestionsFor(result models.ActionResult, state *models.NewsletterState) []string {
	if !result.Success {
		return []string{"Try again", "Search events near a postcode", "Ask what I can do"}
	}

	switch state.Status {
	case models.NewsletterStatusGenerated:
		return []string{"Change the tone", "Add more events", "Accept the newsletter"}
	case models.NewsletterStatusAccepted:
		return []string{"Generate a new newsletter", "Search events near a postcode"}
	default:
		return []string{"Generate my newsletter", "Find events near TS1 3BA", "Change the tone to friendly"}
	}
}

func (orchestrator *Orchestrator) persistContextAsync(sessionID string, store *ContextStore) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := orchestrator.redis.SaveConversationContext(ctx, sessionID, store); err != nil {
		orchestrator.logger.WithError(err).Warn("failed to persist conversation context", "session_id", sessionID)
	}
}

func (orchestrator *Orchestrator) archiveNewsletterAsync(sessionID string, store *ContextStore) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	state := store.NewsletterState()
	if state.Content == nil {
		return
	}

	document := &models.NewsletterDocument{
		SessionID: sessionID,
		Status:    state.Status,
		Content:   *state.Content,
		Tone:      state.Tone,
	}

	if _, err := orchestrator.mongo.SaveNewsletter(ctx, document); err != nil {
		orchestrator.logger.WithError(err).Warn("failed to archive newsletter", "session_id", sessionID)
	}
}

// NewsletterState returns the current newsletter for a session.
func (orchestrator *Orchestrator) NewsletterState(sessionID string) *models.NewsletterState {
	return orchestrator.session(sessionID).NewsletterState()
}

// History returns up to limit recent turns for a session.
func (orchestrator *Orchestrator) History(sessionID string, limit int) []models.ConversationTurn {
	return orchestrator.session(sessionID).History(limit)
}

// SetPreferences merges preferences into a session additively.
func (orchestrator *Orchestrator) SetPreferences(sessionID string, preferences models.UserPreferences) models.UserPreferences {
	store := orchestrator.session(sessionID)
	store.MergePreferences(preferences)
	return store.Preferences()
}

// ResetSession drops a session's context entirely.
func (orchestrator *Orchestrator) ResetSession(ctx context.Context, sessionID string) {
	if sessionID == "" {
		sessionID = "default"
	}
	orchestrator.sessions.Delete(sessionID)

	if orchestrator.redis != nil {
		if err := orchestrator.redis.ClearConversationContext(ctx, sessionID); err != nil {
			orchestrator.logger.WithError(err).Warn("failed to clear persisted context", "session_id", sessionID)
		}
	}
}

// DeleteEvent removes one event from a session's newsletter by title
// reference.
func (orchestrator *Orchestrator) DeleteEvent(sessionID, reference string) (int, *models.NewsletterState) {
	store := orchestrator.session(sessionID)

	var removed int
	state := store.UpdateNewsletter(func(state *models.NewsletterState) {
		kept := state.Events[:0]
		for _, event := range state.Events {
			if strings.Contains(strings.ToLower(event.Title), strings.ToLower(reference)) {
				removed++
				continue
			}
			kept = append(kept, event)
		}
		state.Events = kept
		if state.Content != nil {
			state.Content.Events = state.Events
		}
	})

	return removed, state
}

func (orchestrator *Orchestrator) ActiveSessions() int {
	count := 0
	orchestrator.sessions.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}

func (orchestrator *Orchestrator) HealthCheck(ctx context.Context) map[string]string {
	health := map[string]string{"orchestrator": "ok"}

	checks := map[string]func(context.Context) error{
		"gemini": orchestrator.model.HealthCheck,
	}
	if orchestrator.redis != nil {
		checks["redis"] = orchestrator.redis.HealthCheck
	}
	if orchestrator.mongo != nil {
		checks["mongo"] = orchestrator.mongo.HealthCheck
	}

	for name, check := range checks {
		if err := check(ctx); err != nil {
			health[name] = err.Error()
		} else {
			health[name] = "ok"
		}
	}

	return health
}

func (orchestrator *Orchestrator) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"service":         "orchestrator",
		"uptime_seconds":  time.Since(orchestrator.startTime).Seconds(),
		"active_sessions": orchestrator.ActiveSessions(),
	}
}
