package services

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"pulse-newsletter-backend/internal/models"
	"pulse-newsletter-backend/internal/pkg/logger"
)

type ToolSchema struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

type toolHandler func(ctx context.Context, params map[string]interface{}) (interface{}, error)

type toolEntry struct {
	schema  ToolSchema
	handler toolHandler
}

// ToolsService holds the single table of tools. Schema and handler live
// side by side so the advertised surface cannot drift from the behavior.
type ToolsService struct {
	model  ContentModel
	events EventSearcher
	web    WebSearcher
	logger *logger.Logger
	tools  []toolEntry
}

func NewToolsService(model ContentModel, events EventSearcher, web WebSearcher, log *logger.Logger) *ToolsService {
	service := &ToolsService{
		model:  model,
		events: events,
		web:    web,
		logger: log,
	}
	service.tools = service.buildTable()

	log.Info("Tools service initialized", "tools", len(service.tools))
	return service
}

func (service *ToolsService) buildTable() []toolEntry {
	objectSchema := func(properties map[string]interface{}, required ...string) map[string]interface{} {
		schema := map[string]interface{}{
			"type":       "object",
			"properties": properties,
		}
		if len(required) > 0 {
			schema["required"] = required
		}
		return schema
	}

	return []toolEntry{
		{
			schema: ToolSchema{
				ID:          "web_search",
				Name:        "Web Search",
				Description: "Search the web and return curated live sources for a query",
				Parameters: objectSchema(map[string]interface{}{
					"query": map[string]interface{}{"type": "string"},
				}, "query"),
			},
			handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				return service.web.Search(ctx, stringParam(params, "query", ""))
			},
		},
		{
			schema: ToolSchema{
				ID:          "event_search",
				Name:        "Event Search",
				Description: "Find verified local events around a UK postcode",
				Parameters: objectSchema(map[string]interface{}{
					"postcode":    map[string]interface{}{"type": "string"},
					"window_days": map[string]interface{}{"type": "integer"},
					"category":    map[string]interface{}{"type": "string"},
				}),
			},
			handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				return service.events.Search(ctx, &EventSearchRequest{
					Postcode:   stringParam(params, "postcode", ""),
					WindowDays: intParam(params, "window_days", 7),
					Category:   stringParam(params, "category", ""),
				})
			},
		},
		{
			schema: ToolSchema{
				ID:          "local_business_search",
				Name:        "Local Business Search",
				Description: "Find local businesses and venues near a location",
				Parameters: objectSchema(map[string]interface{}{
					"query":    map[string]interface{}{"type": "string"},
					"location": map[string]interface{}{"type": "string"},
				}, "query"),
			},
			handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				query := stringParam(params, "query", "")
				if location := stringParam(params, "location", ""); location != "" {
					query = query + " near " + location
				}
				return service.web.Search(ctx, query)
			},
		},
		{
			schema: ToolSchema{
				ID:          "real_time_info",
				Name:        "Real-time Information",
				Description: "Look up current information like news, travel or weather sources",
				Parameters: objectSchema(map[string]interface{}{
					"topic": map[string]interface{}{"type": "string"},
				}, "topic"),
			},
			handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				return service.web.Search(ctx, stringParam(params, "topic", ""))
			},
		},
		{
			schema: ToolSchema{
				ID:          "newsletter_customization",
				Name:        "Newsletter Customization",
				Description: "Report which customization options can be applied to the newsletter",
				Parameters: objectSchema(map[string]interface{}{
					"tone":   map[string]interface{}{"type": "string"},
					"layout": map[string]interface{}{"type": "string"},
				}),
			},
			handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				accepted := map[string]interface{}{}
				if tone := stringParam(params, "tone", ""); tone != "" {
					accepted["tone"] = tone
				}
				if layout := stringParam(params, "layout", ""); layout != "" {
					accepted["layout"] = layout
				}
				return map[string]interface{}{
					"accepted":  accepted,
					"available": []string{"tone", "layout"},
				}, nil
			},
		},
		{
			schema: ToolSchema{
				ID:          "content_generation",
				Name:        "Content Generation",
				Description: "Write a short piece of newsletter copy about a topic",
				Parameters: objectSchema(map[string]interface{}{
					"topic": map[string]interface{}{"type": "string"},
				}, "topic"),
			},
			handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				topic := stringParam(params, "topic", "")
				if topic == "" {
					return nil, models.NewValidationError("MISSING_TOPIC", "topic is required")
				}
				return service.model.ChatReply(ctx, "Write a short community newsletter paragraph about: "+topic, nil)
			},
		},
		{
			schema: ToolSchema{
				ID:          "image_search",
				Name:        "Image Search",
				Description: "Return image sources for a subject, only full URLs survive",
				Parameters: objectSchema(map[string]interface{}{
					"subject": map[string]interface{}{"type": "string"},
				}, "subject"),
			},
			handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				subject := stringParam(params, "subject", "")
				if subject == "" {
					return nil, models.NewValidationError("MISSING_SUBJECT", "subject is required")
				}
				escaped := url.QueryEscape(subject)
				return SanitizeImages([]string{
					"https://unsplash.com/s/photos/" + escaped,
					"https://openverse.org/search/image?q=" + escaped,
				}), nil
			},
		},
		{
			schema: ToolSchema{
				ID:          "schedule_management",
				Name:        "Schedule Management",
				Description: "Build a schedule entry for the newsletter",
				Parameters: objectSchema(map[string]interface{}{
					"day":      map[string]interface{}{"type": "string"},
					"activity": map[string]interface{}{"type": "string"},
					"time":     map[string]interface{}{"type": "string"},
				}, "day", "activity"),
			},
			handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				day := stringParam(params, "day", "")
				activity := stringParam(params, "activity", "")
				if day == "" || activity == "" {
					return nil, models.NewValidationError("MISSING_SCHEDULE_FIELDS", "day and activity are required")
				}
				return models.ScheduleItem{
					Day:      day,
					Activity: activity,
					Time:     stringParam(params, "time", ""),
				}, nil
			},
		},
	}
}

// Available returns the advertised tool schemas in table order.
func (service *ToolsService) Available() []ToolSchema {
	schemas := make([]ToolSchema, len(service.tools))
	for i, entry := range service.tools {
		schemas[i] = entry.schema
	}
	return schemas
}

// Execute runs one tool by id. Unknown ids come back as a failed
// envelope, not an error.
func (service *ToolsService) Execute(ctx context.Context, toolID string, params map[string]interface{}) models.ToolExecution {
	startTime := time.Now()

	execution := models.ToolExecution{
		ToolID:    toolID,
		Timestamp: time.Now(),
	}

	var entry *toolEntry
	for i := range service.tools {
		if service.tools[i].schema.ID == toolID {
			entry = &service.tools[i]
			break
		}
	}

	if entry == nil {
		execution.Error = fmt.Sprintf("unknown tool %q", toolID)
		service.logger.Warn("tool execution rejected", "tool_id", toolID)
		return execution
	}

	execution.ToolName = entry.schema.Name

	if params == nil {
		params = map[string]interface{}{}
	}

	result, err := entry.handler(ctx, params)
	if err != nil {
		execution.Error = err.Error()
		service.logger.LogService("tools", toolID, time.Since(startTime), nil, err)
		return execution
	}

	execution.Success = true
	execution.Result = result

	service.logger.LogService("tools", toolID, time.Since(startTime), map[string]interface{}{
		"params": len(params),
	}, nil)

	return execution
}

func stringParam(params map[string]interface{}, key, fallback string) string {
	if value, ok := params[key].(string); ok {
		return value
	}
	return fallback
}

func intParam(params map[string]interface{}, key string, fallback int) int {
	switch value := params[key].(type) {
	case int:
		return value
	case float64:
		return int(value)
	default:
		return fallback
	}
}
