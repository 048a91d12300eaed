package services

import (
	"regexp"
	"strings"

	"pulse-newsletter-backend/internal/models"
)

// intentRule is one ordered pattern group. The first group whose patterns
// match wins, so classification is deterministic for a given message.
type intentRule struct {
	kind       models.IntentKind
	confidence float64
	slot       string
	patterns   []*regexp.Regexp
}

type IntentMatcher struct {
	rules []intentRule
}

func NewIntentMatcher() *IntentMatcher {
	return &IntentMatcher{
		rules: []intentRule{
			{
				kind:       models.IntentWebSearch,
				confidence: 0.9,
				slot:       "query",
				patterns: []*regexp.Regexp{
					regexp.MustCompile(`(?i)search the web for (.+)`),
					regexp.MustCompile(`(?i)\bgoogle (.+)`),
					regexp.MustCompile(`(?i)\blook up (.+)`),
					regexp.MustCompile(`(?i)what is happening in (.+)`),
				},
			},
			{
				kind:       models.IntentEventSearch,
				confidence: 0.9,
				slot:       "location",
				patterns: []*regexp.Regexp{
					regexp.MustCompile(`(?i)find (?:some )?events? (?:in|near|around) (.+)`),
					regexp.MustCompile(`(?i)\bevents? (?:near|in|around) (.+)`),
					regexp.MustCompile(`(?i)what'?s on (?:in|near|around) (.+)`),
					regexp.MustCompile(`(?i)what'?s on(?: this week(?:end)?)?\??$`),
					regexp.MustCompile(`(?i)(?:any|local) (?:local )?events\b`),
				},
			},
			{
				kind:       models.IntentEventManagement,
				confidence: 0.8,
				slot:       "event",
				patterns: []*regexp.Regexp{
					regexp.MustCompile(`(?i)(?:add|include) (?:more |some |the |an? )?events?\b\s*(.*)`),
					regexp.MustCompile(`(?i)(?:remove|delete|drop) (?:the |an? )?events?\b\s*(.*)`),
					regexp.MustCompile(`(?i)replace (?:the )?events?\b\s*(.*)`),
					regexp.MustCompile(`(?i)(?:swap|change) (?:the |those )?events?\b\s*(.*)`),
				},
			},
			{
				kind:       models.IntentCustomization,
				confidence: 0.8,
				slot:       "tone",
				patterns: []*regexp.Regexp{
					regexp.MustCompile(`(?i)(?:change|set|switch) (?:the )?tone(?: to)?\s*(.*)`),
					regexp.MustCompile(`(?i)make (?:it|the newsletter) (?:sound )?(?:more )?(\w+)`),
					regexp.MustCompile(`(?i)(?:change|update|adjust) (?:the )?(?:style|layout|look)\s*(.*)`),
					regexp.MustCompile(`(?i)use a (\w+) tone`),
				},
			},
			{
				kind:       models.IntentContentGeneration,
				confidence: 0.8,
				patterns: []*regexp.Regexp{
					regexp.MustCompile(`(?i)(?:generate|create|build|write|make) (?:me )?(?:my |the |a )?newsletter`),
					regexp.MustCompile(`(?i)put (?:the |a )?newsletter together`),
					regexp.MustCompile(`(?i)\bnewsletter\b.*\b(?:generate|create|draft)\b`),
				},
			},
			{
				kind:       models.IntentToolExecution,
				confidence: 0.7,
				slot:       "tool",
				patterns: []*regexp.Regexp{
					regexp.MustCompile(`(?i)use the ([\w_]+) tool`),
					regexp.MustCompile(`(?i)run (?:the )?([\w_]+) tool`),
					regexp.MustCompile(`(?i)execute (?:the )?([\w_]+)\b`),
				},
			},
			{
				kind:       models.IntentHelp,
				confidence: 0.9,
				patterns: []*regexp.Regexp{
					regexp.MustCompile(`(?i)^\s*help\s*[!?.]*\s*$`),
					regexp.MustCompile(`(?i)what can you do`),
					regexp.MustCompile(`(?i)how do(?:es)? (?:this|you) work`),
				},
			},
		},
	}
}

// Classify maps a user message onto an intent. The fallback is always
// general with confidence 0.5, never an error.
func (matcher *IntentMatcher) Classify(message string) models.Intent {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return models.Intent{Kind: models.IntentGeneral, Confidence: 0.5}
	}

	for _, rule := range matcher.rules {
		for _, pattern := range rule.patterns {
			match := pattern.FindStringSubmatch(trimmed)
			if match == nil {
				continue
			}

			intent := models.Intent{
				Kind:       rule.kind,
				Confidence: rule.confidence,
			}

			if rule.slot != "" && len(match) > 1 {
				value := strings.TrimSpace(strings.Trim(match[1], ".!?"))
				if value != "" {
					intent.Slots = map[string]string{rule.slot: value}
				}
			}

			return intent
		}
	}

	return models.Intent{Kind: models.IntentGeneral, Confidence: 0.5}
}

// DecisionFromIntent turns a matched intent into the action decision the
// dispatcher executes. Newsletter-mutating actions always target the
// newsletter.
func DecisionFromIntent(intent models.Intent, message string) models.ActionDecision {
	lowerMessage := strings.ToLower(message)

	decision := models.ActionDecision{
		ActionType: models.ActionRespondInChat,
		Target:     models.TargetChat,
		Parameters: map[string]interface{}{},
		Confidence: 0.5,
	}

	switch intent.Kind {
	case models.IntentContentGeneration:
		decision.ActionType = models.ActionGenerateNewsletter
		decision.Target = models.TargetNewsletter
		decision.Confidence = 0.9
		decision.Reasoning = "user asked for newsletter generation"

	case models.IntentEventManagement:
		if strings.Contains(lowerMessage, "delete") || strings.Contains(lowerMessage, "remove") || strings.Contains(lowerMessage, "drop") {
			decision.ActionType = models.ActionDeleteEvents
			decision.Confidence = 0.8
		} else if strings.Contains(lowerMessage, "replace") || strings.Contains(lowerMessage, "swap") || strings.Contains(lowerMessage, "change") {
			decision.ActionType = models.ActionChangeEvents
			decision.Confidence = 0.8
		} else {
			decision.ActionType = models.ActionAddEvents
			decision.Confidence = 0.85
		}
		decision.Target = models.TargetNewsletter
		decision.Reasoning = "user asked to manage newsletter events"
		if event, ok := intent.Slots["event"]; ok {
			decision.Parameters["event"] = event
		}

	case models.IntentCustomization:
		decision.ActionType = models.ActionChangeTone
		decision.Target = models.TargetNewsletter
		decision.Confidence = 0.8
		decision.Reasoning = "user asked to customize the newsletter"
		if tone, ok := intent.Slots["tone"]; ok {
			decision.Parameters["tone"] = tone
		}

	case models.IntentEventSearch:
		decision.ActionType = models.ActionSearchEvents
		decision.Confidence = 0.8
		decision.Reasoning = "user asked for local events"
		if location, ok := intent.Slots["location"]; ok {
			decision.Parameters["location"] = location
		}

	case models.IntentWebSearch:
		decision.ActionType = models.ActionSearchWeb
		decision.Confidence = 0.75
		decision.Reasoning = "user asked for a web search"
		if query, ok := intent.Slots["query"]; ok {
			decision.Parameters["query"] = query
		}

	case models.IntentToolExecution:
		decision.ActionType = models.ActionExecuteTool
		decision.Confidence = 0.7
		decision.Reasoning = "user referenced a tool directly"
		if tool, ok := intent.Slots["tool"]; ok {
			decision.Parameters["tool"] = tool
		}

	case models.IntentHelp:
		decision.Confidence = 0.9
		decision.Reasoning = "user asked for help"

	default:
		decision.Reasoning = "no strong intent matched"
	}

	return decision
}
