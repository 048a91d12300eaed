package services

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"pulse-newsletter-backend/internal/models"
	"pulse-newsletter-backend/internal/pkg/logger"
)

type WebSource struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Note string `json:"note,omitempty"`
}

type WebSearchResult struct {
	Query   string      `json:"query"`
	Summary string      `json:"summary"`
	Sources []WebSource `json:"sources"`
}

// WebSearchService routes a query to curated live sources instead of
// synthesizing article text. Linking out cannot hallucinate content.
type WebSearchService struct {
	logger *logger.Logger
}

func NewWebSearchService(log *logger.Logger) *WebSearchService {
	return &WebSearchService{logger: log}
}

type sourceRoute struct {
	keywords []string
	sources  []WebSource
}

func (service *WebSearchService) Search(ctx context.Context, query string) (*WebSearchResult, error) {
	startTime := time.Now()

	if ctx.Err() != nil {
		return nil, models.NewTimeoutError("WEB_SEARCH_TIMEOUT", "web search cancelled").WithCause(ctx.Err())
	}

	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, models.NewValidationError("EMPTY_QUERY", "search query is required")
	}

	escaped := url.QueryEscape(trimmed)
	lower := strings.ToLower(trimmed)

	routes := []sourceRoute{
		{
			keywords: []string{"event", "gig", "show", "festival", "what's on", "whats on"},
			sources: []WebSource{
				{Name: "Eventbrite", URL: "https://www.eventbrite.co.uk/d/united-kingdom/" + escaped + "/", Note: "local event listings"},
				{Name: "Google Maps", URL: "https://www.google.com/maps/search/" + escaped, Note: "venues near you"},
			},
		},
		{
			keywords: []string{"news", "headline", "story", "breaking"},
			sources: []WebSource{
				{Name: "BBC News", URL: "https://www.bbc.co.uk/search?q=" + escaped, Note: "national and local news"},
				{Name: "The Guardian", URL: "https://www.theguardian.com/search?q=" + escaped},
			},
		},
		{
			keywords: []string{"restaurant", "cafe", "food", "eat", "business", "shop"},
			sources: []WebSource{
				{Name: "Yelp", URL: "https://www.yelp.co.uk/search?find_desc=" + escaped, Note: "local business reviews"},
				{Name: "Google Maps", URL: "https://www.google.com/maps/search/" + escaped},
			},
		},
		{
			keywords: []string{"train", "rail", "travel", "journey"},
			sources: []WebSource{
				{Name: "National Rail", URL: "https://www.nationalrail.co.uk/", Note: "live train times"},
			},
		},
	}

	var sources []WebSource
	for _, route := range routes {
		for _, keyword := range route.keywords {
			if strings.Contains(lower, keyword) {
				sources = append(sources, route.sources...)
				break
			}
		}
	}

	if len(sources) == 0 {
		sources = []WebSource{
			{Name: "BBC News", URL: "https://www.bbc.co.uk/search?q=" + escaped},
			{Name: "Google", URL: "https://www.google.com/search?q=" + escaped},
		}
	}

	result := &WebSearchResult{
		Query:   trimmed,
		Summary: fmt.Sprintf("Found %d sources worth checking for %q. I link to live sources rather than summarising pages I haven't verified.", len(sources), trimmed),
		Sources: sources,
	}

	service.logger.LogService("web_search", "search", time.Since(startTime), map[string]interface{}{
		"query":   trimmed,
		"sources": len(sources),
	}, nil)

	return result, nil
}
