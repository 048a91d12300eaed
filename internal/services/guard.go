package services

import (
	"fmt"
	"regexp"
	"strings"

	"pulse-newsletter-backend/internal/models"
)

// fabricationSignatures are markers seen in model output that invents
// events. Edit this table to tune the guard, nothing else consults the
// patterns directly.
var fabricationSignatures = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bavalon\b`),
	regexp.MustCompile(`(?i)all materials provided`),
	regexp.MustCompile(`(?i)\*\*event\*\*\s*[-–]\s*\*\*date:?\*\*`),
	regexp.MustCompile(`(?i)\*\*[^*]+\*\*\s*-\s*\*\*date:\*\*`),
	regexp.MustCompile(`(?i)no booking required[,.]?\s*just turn up`),
}

// eventTopicWords decide whether a user message concerns events at all.
// The fabrication scan only runs for those messages.
var eventTopicWords = []string{"event", "events", "what's on", "whats on", "activities", "things to do"}

// HallucinationGuard keeps model-invented events out of every artifact.
type HallucinationGuard struct{}

func NewHallucinationGuard() *HallucinationGuard {
	return &HallucinationGuard{}
}

// ValidateEvents replaces whatever the model produced with the verified
// list. The generated slice is never merged in, only counted.
func (guard *HallucinationGuard) ValidateEvents(generated, verified []models.EventRecord) []models.EventRecord {
	result := make([]models.EventRecord, len(verified))
	copy(result, verified)
	return result
}

// MessageConcernsEvents reports whether the guard should scan output
// produced for this user message.
func (guard *HallucinationGuard) MessageConcernsEvents(message string) bool {
	lower := strings.ToLower(message)
	for _, word := range eventTopicWords {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

// ContainsFabrication scans generated text for known invention markers.
func (guard *HallucinationGuard) ContainsFabrication(text string) bool {
	for _, signature := range fabricationSignatures {
		if signature.MatchString(text) {
			return true
		}
	}
	return false
}

// SafeReplacement is the chat text used when fabricated events are caught.
func (guard *HallucinationGuard) SafeReplacement(verified []models.EventRecord) string {
	if len(verified) == 0 {
		return "I couldn't verify any local events right now, so I've left events out rather than guess. Try an event search with a postcode and I'll use only what comes back."
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("Here are the %d verified local events I found:\n", len(verified)))
	for _, event := range verified {
		builder.WriteString(fmt.Sprintf("- %s (%s) at %s\n", event.Title, event.Date, event.Location))
	}
	return builder.String()
}

// SanitizeImages keeps only resolvable http(s) URLs. Bare filenames the
// model tends to invent are dropped.
func SanitizeImages(urls []string) []string {
	sanitized := []string{}
	for _, raw := range urls {
		trimmed := strings.TrimSpace(raw)
		if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
			sanitized = append(sanitized, trimmed)
		}
	}
	return sanitized
}
