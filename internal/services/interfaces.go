package services

import (
	"context"

	"pulse-newsletter-backend/internal/models"
)

// ContentModel is the language model surface the pipeline depends on.
// GeminiService is the production implementation, tests stub it.
type ContentModel interface {
	DecideAction(ctx context.Context, message string, convo map[string]interface{}) (*models.ActionDecision, error)
	GenerateNewsletterContent(ctx context.Context, events []models.EventRecord, preferences models.UserPreferences, tone string) (*models.NewsletterContent, error)
	RewriteTone(ctx context.Context, content *models.NewsletterContent, tone string) (*models.NewsletterContent, error)
	ChatReply(ctx context.Context, message string, convo map[string]interface{}) (string, error)
	HealthCheck(ctx context.Context) error
}

// EventSearcher is the verified event source.
type EventSearcher interface {
	Search(ctx context.Context, req *EventSearchRequest) ([]models.EventRecord, error)
	HealthCheck(ctx context.Context) error
}

// WebSearcher routes queries to live web sources.
type WebSearcher interface {
	Search(ctx context.Context, query string) (*WebSearchResult, error)
}
