package services_test

import (
	"context"
	"strings"
	"testing"

	"pulse-newsletter-backend/internal/models"
	"pulse-newsletter-backend/internal/pkg/logger"
	"pulse-newsletter-backend/internal/services"
)

func TestWebSearchEmptyQuery(t *testing.T) {
	service := services.NewWebSearchService(logger.NewNop())

	_, err := service.Search(context.Background(), "   ")
	if err == nil {
		t.Fatal("expected an error for an empty query")
	}
	if appErr := models.AsAppError(err); appErr.Type != models.ErrorTypeValidation {
		t.Errorf("expected a validation error, got %v", err)
	}
}

func TestWebSearchRoutesEventQueries(t *testing.T) {
	service := services.NewWebSearchService(logger.NewNop())

	result, err := service.Search(context.Background(), "festivals and events this weekend")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}

	var foundEventbrite bool
	for _, source := range result.Sources {
		if source.Name == "Eventbrite" {
			foundEventbrite = true
		}
	}
	if !foundEventbrite {
		t.Errorf("expected Eventbrite among event sources, got %v", result.Sources)
	}
}

func TestWebSearchFallbackSources(t *testing.T) {
	service := services.NewWebSearchService(logger.NewNop())

	result, err := service.Search(context.Background(), "quantum computing")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(result.Sources) == 0 {
		t.Fatal("expected fallback sources for an unrouted query")
	}
	for _, source := range result.Sources {
		if !strings.HasPrefix(source.URL, "https://") {
			t.Errorf("source %q has a non-https url %q", source.Name, source.URL)
		}
	}
}

func TestWebSearchSummaryLinksNotSummaries(t *testing.T) {
	service := services.NewWebSearchService(logger.NewNop())

	result, err := service.Search(context.Background(), "local news headlines")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if !strings.Contains(result.Summary, "live sources") {
		t.Errorf("expected the summary to explain source linking, got %q", result.Summary)
	}
	if result.Query != "local news headlines" {
		t.Errorf("expected the trimmed query echoed back, got %q", result.Query)
	}
}
