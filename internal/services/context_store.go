package services

import (
	"sync"
	"time"

	"pulse-newsletter-backend/internal/models"
)

// ContextStore holds everything the pipeline knows about one conversation:
// a bounded turn history, the single current newsletter state and the user
// preferences. All access is serialized, reads hand out copies.
type ContextStore struct {
	mu          sync.Mutex
	history     []models.ConversationTurn
	newsletter  *models.NewsletterState
	preferences models.UserPreferences
	createdAt   time.Time
}

func NewContextStore() *ContextStore {
	return &ContextStore{
		history:     []models.ConversationTurn{},
		newsletter:  models.NewNewsletterState(),
		preferences: models.UserPreferences{},
		createdAt:   time.Now(),
	}
}

// RecordTurn appends a turn, evicting the oldest once the history is full.
func (store *ContextStore) RecordTurn(turn models.ConversationTurn) {
	store.mu.Lock()
	defer store.mu.Unlock()

	turn.ResultSummary = models.TruncateSummary(turn.ResultSummary)
	store.history = append(store.history, turn)

	if len(store.history) > models.HistoryLimit {
		overflow := len(store.history) - models.HistoryLimit
		store.history = append([]models.ConversationTurn{}, store.history[overflow:]...)
	}
}

// History returns up to limit of the most recent turns, oldest first.
// limit <= 0 means everything retained.
func (store *ContextStore) History(limit int) []models.ConversationTurn {
	store.mu.Lock()
	defer store.mu.Unlock()

	start := 0
	if limit > 0 && len(store.history) > limit {
		start = len(store.history) - limit
	}

	result := make([]models.ConversationTurn, len(store.history)-start)
	copy(result, store.history[start:])
	return result
}

func (store *ContextStore) HistoryLength() int {
	store.mu.Lock()
	defer store.mu.Unlock()
	return len(store.history)
}

// NewsletterState returns a copy of the current newsletter document slot.
func (store *ContextStore) NewsletterState() *models.NewsletterState {
	store.mu.Lock()
	defer store.mu.Unlock()
	return copyNewsletterState(store.newsletter)
}

func (store *ContextStore) SetNewsletterState(state *models.NewsletterState) {
	store.mu.Lock()
	defer store.mu.Unlock()

	if state == nil {
		store.newsletter = models.NewNewsletterState()
		return
	}

	state.UpdatedAt = time.Now()
	store.newsletter = copyNewsletterState(state)
}

// UpdateNewsletter applies fn to the current state under the lock.
func (store *ContextStore) UpdateNewsletter(fn func(state *models.NewsletterState)) *models.NewsletterState {
	store.mu.Lock()
	defer store.mu.Unlock()

	fn(store.newsletter)
	store.newsletter.UpdatedAt = time.Now()
	return copyNewsletterState(store.newsletter)
}

// MergePreferences is additive: existing keys are overwritten by new
// values, keys absent from incoming survive untouched.
func (store *ContextStore) MergePreferences(incoming models.UserPreferences) {
	store.mu.Lock()
	defer store.mu.Unlock()

	for key, value := range incoming {
		store.preferences[key] = value
	}
}

func (store *ContextStore) Preferences() models.UserPreferences {
	store.mu.Lock()
	defer store.mu.Unlock()

	result := models.UserPreferences{}
	for key, value := range store.preferences {
		result[key] = value
	}
	return result
}

// Snapshot builds the enriched context handed to the model and the
// handlers, including temporal facts computed at read time.
func (store *ContextStore) Snapshot() map[string]interface{} {
	store.mu.Lock()
	defer store.mu.Unlock()

	now := time.Now()
	weekday := now.Weekday()

	recent := store.history
	if len(recent) > 10 {
		recent = recent[len(recent)-10:]
	}
	recentCopy := make([]models.ConversationTurn, len(recent))
	copy(recentCopy, recent)

	preferences := map[string]interface{}{}
	for key, value := range store.preferences {
		preferences[key] = value
	}

	return map[string]interface{}{
		"recent_history":    recentCopy,
		"history_length":    len(store.history),
		"preferences":       preferences,
		"newsletter_status": string(store.newsletter.Status),
		"newsletter_tone":   store.newsletter.Tone,
		"events_count":      len(store.newsletter.Events),
		"day_of_week":       weekday.String(),
		"is_weekend":        weekday == time.Saturday || weekday == time.Sunday,
		"session_started":   store.createdAt.Format(time.RFC3339),
	}
}

func copyNewsletterState(state *models.NewsletterState) *models.NewsletterState {
	result := &models.NewsletterState{
		Status:    state.Status,
		Tone:      state.Tone,
		UpdatedAt: state.UpdatedAt,
	}

	result.Events = make([]models.EventRecord, len(state.Events))
	copy(result.Events, state.Events)

	if state.Content != nil {
		content := *state.Content
		content.WeeklySchedule = append([]models.ScheduleItem{}, state.Content.WeeklySchedule...)
		content.MonthlySchedule = append([]models.ScheduleItem{}, state.Content.MonthlySchedule...)
		content.Highlights = append([]string{}, state.Content.Highlights...)
		content.Events = append([]models.EventRecord{}, state.Content.Events...)
		content.Images = append([]string{}, state.Content.Images...)
		result.Content = &content
	}

	return result
}
