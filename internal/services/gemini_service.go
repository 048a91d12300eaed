package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"google.golang.org/genai"

	"pulse-newsletter-backend/internal/config"
	"pulse-newsletter-backend/internal/models"
	"pulse-newsletter-backend/internal/pkg/logger"
)

type GeminiService struct {
	client *genai.Client
	config config.GeminiConfig
	logger *logger.Logger
}

type GenerationRequest struct {
	Prompt          string
	MaxTokens       int32
	Temperature     *float32
	SystemRole      string
	Context         string
	TopP            *float32
	TopK            *float32
	DisableThinking bool
	ResponseFormat  string
}

type GenerationResponse struct {
	Content        string
	TokensUsed     int
	FinishReason   string
	ProcessingTime time.Duration
}

func NewGeminiService(config config.GeminiConfig, log *logger.Logger) (*GeminiService, error) {
	if config.APIKey == "" {
		return nil, errors.New("Gemini API key required")
	}

	ctx := context.Background()

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	service := &GeminiService{
		client: client,
		config: config,
		logger: log,
	}

	log.Info("Gemini service initialized",
		"model", config.Model,
		"max_tokens", config.MaxTokens,
		"temperature", config.Temperature)

	return service, nil
}

func (service *GeminiService) GenerateContent(ctx context.Context, request *GenerationRequest) (*GenerationResponse, error) {
	startTime := time.Now()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = service.config.RetryDelay

	response, err := backoff.Retry(ctx, func() (*GenerationResponse, error) {
		resp, genErr := service.makeGenerationRequest(ctx, request)
		if genErr != nil {
			service.logger.WithError(genErr).Warn("generation attempt failed")
			return nil, genErr
		}
		return resp, nil
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(service.config.MaxRetries)),
	)

	if err != nil {
		service.logger.LogService("gemini", "generate_content", time.Since(startTime), map[string]interface{}{
			"prompt_length": len(request.Prompt),
			"max_retries":   service.config.MaxRetries,
		}, err)

		if ctx.Err() != nil {
			return nil, models.NewTimeoutError("GEMINI_TIMEOUT", "content generation timed out").WithCause(ctx.Err())
		}
		return nil, models.WrapExternalError("GEMINI", err)
	}

	duration := time.Since(startTime)
	response.ProcessingTime = duration

	service.logger.LogService("gemini", "generate_content", duration, map[string]interface{}{
		"prompt_length":   len(request.Prompt),
		"response_length": len(response.Content),
		"tokens_used":     response.TokensUsed,
		"finish_reason":   response.FinishReason,
	}, nil)

	return response, nil
}

func (service *GeminiService) makeGenerationRequest(ctx context.Context, req *GenerationRequest) (*GenerationResponse, error) {
	genCtx, cancel := context.WithTimeout(ctx, service.config.Timeout)
	defer cancel()

	config := &genai.GenerateContentConfig{}

	if req.SystemRole != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemRole, genai.RoleUser)
	}

	if req.Temperature != nil {
		config.Temperature = req.Temperature
	} else {
		temp := float32(service.config.Temperature)
		config.Temperature = &temp
	}

	if req.MaxTokens != 0 {
		config.MaxOutputTokens = req.MaxTokens
	} else {
		config.MaxOutputTokens = int32(service.config.MaxTokens)
	}

	if req.TopP != nil {
		config.TopP = req.TopP
	}

	if req.TopK != nil {
		config.TopK = req.TopK
	}

	if req.ResponseFormat != "" {
		config.ResponseMIMEType = req.ResponseFormat
	}

	var budget int32 = 0
	if req.DisableThinking {
		config.ThinkingConfig = &genai.ThinkingConfig{
			ThinkingBudget: &budget,
		}
	}

	var content []*genai.Content
	if req.Context != "" {
		parts := []*genai.Part{
			genai.NewPartFromText(fmt.Sprintf("Context: %s\n\n", req.Context)),
			genai.NewPartFromText(req.Prompt),
		}
		content = []*genai.Content{
			genai.NewContentFromParts(parts, genai.RoleUser),
		}
	} else {
		content = genai.Text(req.Prompt)
	}

	result, err := service.client.Models.GenerateContent(genCtx, service.config.Model, content, config)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}

	if len(result.Candidates) == 0 {
		return nil, fmt.Errorf("no response candidates generated")
	}

	candidate := result.Candidates[0]

	text := ""
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			text += part.Text
		}
	}

	return &GenerationResponse{
		Content:      text,
		TokensUsed:   len(req.Prompt)/4 + len(text)/4,
		FinishReason: string(candidate.FinishReason),
	}, nil
}

// DecideAction escalates an ambiguous message to the model. The reply must
// be one JSON action decision; anything outside the closed action set is
// rejected so the caller can fall back to the rule decision.
func (service *GeminiService) DecideAction(ctx context.Context, message string, convo map[string]interface{}) (*models.ActionDecision, error) {
	prompt := service.buildActionDecisionPrompt(message, convo)

	req := &GenerationRequest{
		Prompt:          prompt,
		Temperature:     &[]float32{0.1}[0], // low temperature for consistent decisions
		SystemRole:      "You are the action router for a community newsletter assistant.",
		MaxTokens:       512,
		DisableThinking: true,
		ResponseFormat:  "application/json",
	}

	resp, err := service.GenerateContent(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("action decision failed: %w", err)
	}

	decision, err := parseActionDecision(resp.Content)
	if err != nil {
		return nil, err
	}

	service.logger.LogService("gemini", "decide_action", resp.ProcessingTime, map[string]interface{}{
		"message_length": len(message),
		"action_type":    string(decision.ActionType),
		"confidence":     decision.Confidence,
		"tokens_used":    resp.TokensUsed,
	}, nil)

	return decision, nil
}

func (service *GeminiService) buildActionDecisionPrompt(message string, convo map[string]interface{}) string {
	contextJSON, _ := json.Marshal(convo)

	return fmt.Sprintf(`Decide which single action the newsletter assistant should take for the user's message.

USER MESSAGE:
"%s"

CONVERSATION CONTEXT:
%s

VALID ACTION TYPES (you must pick exactly one):
generate_newsletter, add_events, change_events, change_tone, delete_events,
search_web, search_events, customize_content, respond_in_chat, update_newsletter,
tool_execution

VALID TARGETS: chat, newsletter, system
Actions that modify the newsletter must use target "newsletter".

Respond with only this JSON object, no markdown:
{
  "action_type": "...",
  "target": "...",
  "parameters": {},
  "reasoning": "one short sentence",
  "confidence": 0.0
}`, message, string(contextJSON))
}

func parseActionDecision(response string) (*models.ActionDecision, error) {
	cleaned := stripCodeFences(response)

	var decision models.ActionDecision
	if err := json.Unmarshal([]byte(cleaned), &decision); err != nil {
		return nil, fmt.Errorf("failed to parse action decision: %w", err)
	}

	if !decision.ActionType.IsValid() {
		return nil, fmt.Errorf("model returned unknown action type %q", decision.ActionType)
	}

	if decision.ActionType.MutatesNewsletter() {
		decision.Target = models.TargetNewsletter
	} else if decision.Target == "" {
		decision.Target = models.TargetChat
	}

	if decision.Parameters == nil {
		decision.Parameters = map[string]interface{}{}
	}

	return &decision, nil
}

// GenerateNewsletterContent writes the structured newsletter around the
// verified events it is given. It must not introduce events of its own,
// the guard replaces the events section afterwards regardless.
func (service *GeminiService) GenerateNewsletterContent(ctx context.Context, events []models.EventRecord, preferences models.UserPreferences, tone string) (*models.NewsletterContent, error) {
	prompt := service.buildNewsletterPrompt(events, preferences, tone)

	req := &GenerationRequest{
		Prompt:          prompt,
		Temperature:     &[]float32{0.6}[0],
		SystemRole:      "You are a community newsletter writer. You only mention events that are listed in the prompt.",
		MaxTokens:       8192,
		DisableThinking: true,
		ResponseFormat:  "application/json",
	}

	resp, err := service.GenerateContent(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("newsletter generation failed: %w", err)
	}

	content, err := parseNewsletterContent(resp.Content)
	if err != nil {
		return nil, err
	}

	service.logger.LogService("gemini", "generate_newsletter", resp.ProcessingTime, map[string]interface{}{
		"events_supplied": len(events),
		"tokens_used":     resp.TokensUsed,
	}, nil)

	return content, nil
}

func (service *GeminiService) buildNewsletterPrompt(events []models.EventRecord, preferences models.UserPreferences, tone string) string {
	eventsJSON, _ := json.MarshalIndent(events, "", "  ")
	prefsJSON, _ := json.Marshal(preferences)

	if tone == "" {
		tone = "friendly"
	}

	return fmt.Sprintf(`Write a local community newsletter in a %s tone.

VERIFIED EVENTS (the only events you may reference, copy them verbatim):
%s

USER PREFERENCES:
%s

RULES:
- Do not invent events, venues, dates or contact details.
- If the verified list is empty, write the newsletter without an events section.
- Image URLs must be full http(s) URLs or omitted entirely.

Respond with only this JSON object, no markdown:
{
  "header": "...",
  "main_channel": "...",
  "weekly_schedule": [{"day": "...", "activity": "...", "time": "..."}],
  "monthly_schedule": [{"day": "...", "activity": "...", "time": "..."}],
  "featured_venue": "...",
  "partner_spotlight": "...",
  "newsletter_highlights": ["..."],
  "events": [],
  "images": []
}`, tone, string(eventsJSON), string(prefsJSON))
}

func parseNewsletterContent(response string) (*models.NewsletterContent, error) {
	cleaned := stripCodeFences(response)

	var content models.NewsletterContent
	if err := json.Unmarshal([]byte(cleaned), &content); err != nil {
		return nil, fmt.Errorf("failed to parse newsletter content: %w", err)
	}

	content.Images = SanitizeImages(content.Images)
	return &content, nil
}

// RewriteTone rewrites the existing newsletter copy in the requested tone
// without touching the events.
func (service *GeminiService) RewriteTone(ctx context.Context, content *models.NewsletterContent, tone string) (*models.NewsletterContent, error) {
	currentJSON, err := json.Marshal(content)
	if err != nil {
		return nil, models.NewInternalError("SERIALIZATION_FAILED", "failed to serialize newsletter content").WithCause(err)
	}

	prompt := fmt.Sprintf(`Rewrite the text fields of this newsletter in a %s tone.
Keep the JSON structure identical. Do not add, remove or alter any event.

CURRENT NEWSLETTER:
%s

Respond with only the rewritten JSON object, no markdown.`, tone, string(currentJSON))

	req := &GenerationRequest{
		Prompt:          prompt,
		Temperature:     &[]float32{0.5}[0],
		SystemRole:      "You are a community newsletter editor.",
		MaxTokens:       8192,
		DisableThinking: true,
		ResponseFormat:  "application/json",
	}

	resp, err := service.GenerateContent(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("tone rewrite failed: %w", err)
	}

	rewritten, err := parseNewsletterContent(resp.Content)
	if err != nil {
		return nil, err
	}

	// events are never trusted from a rewrite
	rewritten.Events = content.Events

	return rewritten, nil
}

// ChatReply produces a plain conversational answer.
func (service *GeminiService) ChatReply(ctx context.Context, message string, convo map[string]interface{}) (string, error) {
	contextJSON, _ := json.Marshal(convo)

	prompt := fmt.Sprintf(`You are Pulse, the assistant behind a local community newsletter builder.
You help users find verified local events, build their newsletter and adjust its tone.

USER MESSAGE:
"%s"

CONVERSATION CONTEXT:
%s

Keep the reply short and practical. Never invent events or venues. If the
user seems to want events or a newsletter, point them at what you can do.`, message, string(contextJSON))

	req := &GenerationRequest{
		Prompt:          prompt,
		Temperature:     &[]float32{0.8}[0],
		SystemRole:      "You are a friendly community newsletter assistant.",
		MaxTokens:       1024,
		DisableThinking: true,
	}

	resp, err := service.GenerateContent(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat reply failed: %w", err)
	}

	return strings.TrimSpace(resp.Content), nil
}

func stripCodeFences(response string) string {
	cleaned := strings.TrimSpace(response)

	if strings.HasPrefix(cleaned, "```json") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimSuffix(cleaned, "```")
	} else if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(cleaned, "```")
	}

	return strings.TrimSpace(cleaned)
}

func (service *GeminiService) HealthCheck(ctx context.Context) error {
	testCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var temperature float32 = 0

	req := &GenerationRequest{
		Prompt:      "Respond with 'OK' if you can process this request",
		Temperature: &temperature,
		MaxTokens:   10,
	}

	resp, err := service.GenerateContent(testCtx, req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	if resp.Content == "" {
		return fmt.Errorf("empty response received")
	}

	return nil
}

func (service *GeminiService) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"service":     "gemini",
		"model":       service.config.Model,
		"max_tokens":  service.config.MaxTokens,
		"max_retries": service.config.MaxRetries,
	}
}

func (service *GeminiService) Close() error {
	// request/response client, nothing to tear down
	service.logger.Info("Gemini client closed")
	return nil
}
