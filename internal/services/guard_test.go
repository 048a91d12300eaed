package services_test

import (
	"strings"
	"testing"

	"pulse-newsletter-backend/internal/models"
	"pulse-newsletter-backend/internal/services"
)

func TestValidateEventsAlwaysReturnsVerified(t *testing.T) {
	guard := services.NewHallucinationGuard()
	verified := twoVerifiedEvents()

	generated := []models.EventRecord{
		{Title: "Candlelight Concert", Date: "2026-09-10", Location: "Avalon Hall"},
		{Title: "Riverside Market", Date: "2026-09-03", Location: "Town Hall Square"},
	}

	result := guard.ValidateEvents(generated, verified)

	if len(result) != len(verified) {
		t.Fatalf("expected %d events, got %d", len(verified), len(result))
	}
	for i, event := range result {
		if event.Key() != verified[i].Key() {
			t.Errorf("event %d: got %q, want %q", i, event.Title, verified[i].Title)
		}
	}
}

func TestValidateEventsNilGenerated(t *testing.T) {
	guard := services.NewHallucinationGuard()
	verified := twoVerifiedEvents()

	result := guard.ValidateEvents(nil, verified)
	if len(result) != 2 {
		t.Fatalf("expected verified events back, got %d", len(result))
	}

	// the returned slice is a copy, mutating it leaves verified intact
	result[0].Title = "mutated"
	if verified[0].Title == "mutated" {
		t.Error("ValidateEvents returned the backing slice instead of a copy")
	}
}

func TestValidateEventsEmptyVerified(t *testing.T) {
	guard := services.NewHallucinationGuard()

	result := guard.ValidateEvents(twoVerifiedEvents(), nil)
	if len(result) != 0 {
		t.Errorf("expected no events when nothing is verified, got %d", len(result))
	}
}

func TestContainsFabrication(t *testing.T) {
	guard := services.NewHallucinationGuard()

	fabricated := []string{
		"Join us at the Avalon Centre this Saturday",
		"Pottery workshop, all materials provided.",
		"**Event** - **Date:** 12 September",
		"No booking required, just turn up",
	}
	for _, text := range fabricated {
		if !guard.ContainsFabrication(text) {
			t.Errorf("expected fabrication signature in %q", text)
		}
	}

	clean := []string{
		"Riverside Market runs every Thursday at Town Hall Square.",
		"The park run starts at 9am in Albert Park.",
		"",
	}
	for _, text := range clean {
		if guard.ContainsFabrication(text) {
			t.Errorf("false positive on %q", text)
		}
	}
}

func TestMessageConcernsEvents(t *testing.T) {
	guard := services.NewHallucinationGuard()

	if !guard.MessageConcernsEvents("what's on this weekend?") {
		t.Error("expected what's on to concern events")
	}
	if !guard.MessageConcernsEvents("any local EVENTS near me") {
		t.Error("expected case-insensitive match")
	}
	if guard.MessageConcernsEvents("change the tone to formal") {
		t.Error("tone change does not concern events")
	}
}

func TestSafeReplacement(t *testing.T) {
	guard := services.NewHallucinationGuard()

	empty := guard.SafeReplacement(nil)
	if empty == "" {
		t.Fatal("expected a non-empty replacement with no verified events")
	}

	listed := guard.SafeReplacement(twoVerifiedEvents())
	if listed == empty {
		t.Error("expected verified events to be listed")
	}
	for _, event := range twoVerifiedEvents() {
		if !strings.Contains(listed, event.Title) {
			t.Errorf("replacement missing event %q", event.Title)
		}
	}
}

func TestSanitizeImages(t *testing.T) {
	input := []string{
		"https://cdn.example.com/banner.png",
		"hero.jpg",
		"http://images.example.com/venue.jpg",
		"  https://cdn.example.com/padded.png  ",
		"ftp://files.example.com/bad.png",
		"",
	}

	sanitized := services.SanitizeImages(input)

	want := []string{
		"https://cdn.example.com/banner.png",
		"http://images.example.com/venue.jpg",
		"https://cdn.example.com/padded.png",
	}
	if len(sanitized) != len(want) {
		t.Fatalf("expected %d urls, got %d: %v", len(want), len(sanitized), sanitized)
	}
	for i, url := range want {
		if sanitized[i] != url {
			t.Errorf("url %d: got %q, want %q", i, sanitized[i], url)
		}
	}
}

func TestSanitizeImagesNilInput(t *testing.T) {
	if got := services.SanitizeImages(nil); len(got) != 0 {
		t.Errorf("expected empty result for nil input, got %v", got)
	}
}
