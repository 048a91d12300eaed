package models

import (
	"time"

	"github.com/google/uuid"
)

type ActionType string

const (
	ActionGenerateNewsletter ActionType = "generate_newsletter"
	ActionAddEvents          ActionType = "add_events"
	ActionChangeEvents       ActionType = "change_events"
	ActionChangeTone         ActionType = "change_tone"
	ActionDeleteEvents       ActionType = "delete_events"
	ActionSearchWeb          ActionType = "search_web"
	ActionSearchEvents       ActionType = "search_events"
	ActionCustomizeContent   ActionType = "customize_content"
	ActionRespondInChat      ActionType = "respond_in_chat"
	ActionUpdateNewsletter   ActionType = "update_newsletter"
	ActionExecuteTool        ActionType = "tool_execution"
)

var validActionTypes = map[ActionType]bool{
	ActionGenerateNewsletter: true,
	ActionAddEvents:          true,
	ActionChangeEvents:       true,
	ActionChangeTone:         true,
	ActionDeleteEvents:       true,
	ActionSearchWeb:          true,
	ActionSearchEvents:       true,
	ActionCustomizeContent:   true,
	ActionRespondInChat:      true,
	ActionUpdateNewsletter:   true,
	ActionExecuteTool:        true,
}

func (actionType ActionType) IsValid() bool {
	return validActionTypes[actionType]
}

// MutatesNewsletter reports whether the action writes newsletter state.
// Decisions with these action types always target the newsletter.
func (actionType ActionType) MutatesNewsletter() bool {
	switch actionType {
	case ActionGenerateNewsletter, ActionAddEvents, ActionChangeEvents,
		ActionChangeTone, ActionDeleteEvents, ActionCustomizeContent,
		ActionUpdateNewsletter:
		return true
	default:
		return false
	}
}

type ActionTarget string

const (
	TargetChat       ActionTarget = "chat"
	TargetNewsletter ActionTarget = "newsletter"
	TargetSystem     ActionTarget = "system"
)

type ActionDecision struct {
	ActionType ActionType             `json:"action_type"`
	Target     ActionTarget           `json:"target"`
	Parameters map[string]interface{} `json:"parameters"`
	Reasoning  string                 `json:"reasoning"`
	Confidence float64                `json:"confidence"`
}

type IntentKind string

const (
	IntentWebSearch         IntentKind = "web_search"
	IntentEventSearch       IntentKind = "event_search"
	IntentEventManagement   IntentKind = "event_management"
	IntentCustomization     IntentKind = "customization"
	IntentContentGeneration IntentKind = "content_generation"
	IntentToolExecution     IntentKind = "tool_execution"
	IntentHelp              IntentKind = "help"
	IntentGeneral           IntentKind = "general"
)

type Intent struct {
	Kind       IntentKind        `json:"kind"`
	Confidence float64           `json:"confidence"`
	Slots      map[string]string `json:"slots,omitempty"`
}

// ResultSummaryLimit bounds the stored per-turn result summary.
const ResultSummaryLimit = 200

// HistoryLimit bounds the conversation history, oldest turns evicted first.
const HistoryLimit = 50

type ConversationTurn struct {
	ID            string    `json:"id"`
	Role          string    `json:"role"`
	Message       string    `json:"message"`
	ActionTaken   string    `json:"action_taken,omitempty"`
	ResultSummary string    `json:"result_summary,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewConversationTurn(role, message, actionTaken, resultSummary string) ConversationTurn {
	return ConversationTurn{
		ID:            uuid.New().String(),
		Role:          role,
		Message:       message,
		ActionTaken:   actionTaken,
		ResultSummary: TruncateSummary(resultSummary),
		Timestamp:     time.Now(),
	}
}

func TruncateSummary(summary string) string {
	if len(summary) <= ResultSummaryLimit {
		return summary
	}
	return summary[:ResultSummaryLimit]
}

type UserPreferences map[string]interface{}

type ActionResult struct {
	Success     bool                   `json:"success"`
	ActionTaken string                 `json:"action_taken"`
	Target      ActionTarget           `json:"target"`
	Result      map[string]interface{} `json:"result,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

type ChatRequest struct {
	Message   string          `json:"message" binding:"required"`
	SessionID string          `json:"session_id"`
	Context   UserPreferences `json:"context,omitempty"`
}

// ToolExecution records the outcome of a single tool invocation.
type ToolExecution struct {
	Success   bool        `json:"success"`
	ToolID    string      `json:"tool_id"`
	ToolName  string      `json:"tool_name"`
	Result    interface{} `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type ResponseEnvelope struct {
	Success             bool                   `json:"success"`
	Response            string                 `json:"response"`
	ActionTaken         string                 `json:"action_taken"`
	Target              ActionTarget           `json:"target"`
	Reasoning           string                 `json:"reasoning,omitempty"`
	Confidence          float64                `json:"confidence"`
	Intent              Intent                 `json:"intent"`
	Result              map[string]interface{} `json:"result,omitempty"`
	Error               string                 `json:"error,omitempty"`
	ConversationHistory []ConversationTurn     `json:"conversation_history"`
	FunctionCalls       []ToolExecution        `json:"function_calls,omitempty"`
	NewsletterState     *NewsletterState       `json:"newsletter_state,omitempty"`
	Suggestions         []string               `json:"suggestions,omitempty"`
	Timestamp           time.Time              `json:"timestamp"`
}
