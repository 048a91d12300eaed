package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"pulse-newsletter-backend/internal/config"
	"pulse-newsletter-backend/internal/models"
	"pulse-newsletter-backend/internal/pkg/logger"
)

func newStubbedEventService(t *testing.T) *EventService {
	t.Helper()

	service, err := NewEventService(config.ScraperConfig{
		DefaultPostcode: "TS1 3BA",
		DefaultRadiusKm: 10,
		MinEvents:       5,
		MaxExpansions:   4,
		Parallelism:     1,
		RequestTimeout:  time.Second,
	}, logger.NewNop())
	if err != nil {
		t.Fatalf("NewEventService: %v", err)
	}
	return service
}

func upcomingEvents(count int, prefix string) []models.EventRecord {
	events := make([]models.EventRecord, count)
	for i := range events {
		events[i] = models.EventRecord{
			Title:    fmt.Sprintf("%s %d", prefix, i+1),
			Date:     time.Now().AddDate(0, 0, 1).Format("2006-01-02"),
			Location: "Town Hall Square",
		}
	}
	return events
}

func TestSearchStopsWhenNoNewEventsAppear(t *testing.T) {
	service := newStubbedEventService(t)
	service.lookup = func(ctx context.Context, postcode string) (string, string, error) {
		return "Middlesbrough", "", nil
	}

	var calls int
	service.scrape = func(ctx context.Context, area, postcode string, radiusKm float64, category string) ([]models.EventRecord, error) {
		calls++
		return upcomingEvents(2, "Market"), nil
	}

	events, err := service.Search(context.Background(), &EventSearchRequest{Postcode: "TS1 3BA"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	// the second visit of the listing adds nothing, so the loop must
	// stop instead of burning the remaining attempts on the same page
	if calls != 2 {
		t.Errorf("expected 2 scrape calls, got %d", calls)
	}
	if len(events) != 2 {
		t.Errorf("expected 2 events, got %d", len(events))
	}
}

func TestSearchWidensAreaToRegion(t *testing.T) {
	service := newStubbedEventService(t)
	service.lookup = func(ctx context.Context, postcode string) (string, string, error) {
		return "Middlesbrough", "North East England", nil
	}

	var areas []string
	service.scrape = func(ctx context.Context, area, postcode string, radiusKm float64, category string) ([]models.EventRecord, error) {
		areas = append(areas, area)
		if area == "Middlesbrough" {
			return upcomingEvents(2, "Market"), nil
		}
		return upcomingEvents(3, "Fair"), nil
	}

	events, err := service.Search(context.Background(), &EventSearchRequest{Postcode: "TS1 3BA"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if len(areas) != 2 || areas[0] != "Middlesbrough" || areas[1] != "North East England" {
		t.Fatalf("expected the search to widen from district to region, got %v", areas)
	}
	if len(events) != 5 {
		t.Errorf("expected 5 merged events, got %d", len(events))
	}
}

func TestSearchLookupFailureFallsBackToPostcode(t *testing.T) {
	service := newStubbedEventService(t)
	service.lookup = func(ctx context.Context, postcode string) (string, string, error) {
		return "", "", fmt.Errorf("postcodes.io unreachable")
	}

	var searchedArea string
	service.scrape = func(ctx context.Context, area, postcode string, radiusKm float64, category string) ([]models.EventRecord, error) {
		searchedArea = area
		return upcomingEvents(5, "Market"), nil
	}

	if _, err := service.Search(context.Background(), &EventSearchRequest{Postcode: "TS1 3BA"}); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if searchedArea != "TS1 3BA" {
		t.Errorf("expected the raw postcode as the search area, got %q", searchedArea)
	}
}

func TestAreaForRadius(t *testing.T) {
	if got := areaForRadius(10, 10, "Middlesbrough", "North East England"); got != "Middlesbrough" {
		t.Errorf("expected the district at the requested radius, got %q", got)
	}
	if got := areaForRadius(15, 10, "Middlesbrough", "North East England"); got != "North East England" {
		t.Errorf("expected the region once the radius grew, got %q", got)
	}
	if got := areaForRadius(15, 10, "Middlesbrough", ""); got != "Middlesbrough" {
		t.Errorf("expected the district when no region is known, got %q", got)
	}
}

func TestMergeEventsDeduplicates(t *testing.T) {
	existing := []models.EventRecord{
		{Title: "Riverside Market", Location: "Town Hall Square"},
		{Title: "Park Run", Location: "Albert Park"},
	}
	incoming := []models.EventRecord{
		{Title: "riverside market", Location: "TOWN HALL SQUARE"}, // duplicate, case differs
		{Title: "Open Mic Night", Location: "The Crown"},
		{Title: "Park Run", Location: "Stewart Park"}, // same title, different venue
	}

	merged := mergeEvents(existing, incoming)

	if len(merged) != 4 {
		t.Fatalf("expected 4 events after merge, got %d", len(merged))
	}
	if merged[2].Title != "Open Mic Night" {
		t.Errorf("expected new events appended in order, got %q", merged[2].Title)
	}
}

func TestMergeEventsEmptyExisting(t *testing.T) {
	incoming := []models.EventRecord{{Title: "Park Run", Location: "Albert Park"}}

	merged := mergeEvents(nil, incoming)
	if len(merged) != 1 {
		t.Fatalf("expected 1 event, got %d", len(merged))
	}
}

func TestParseEventDateLayouts(t *testing.T) {
	cases := []string{
		"2026-09-05",
		"5 September 2026",
		"Sep 5, 2026",
		"Saturday, 5 September 2026",
	}

	for _, raw := range cases {
		parsed, ok := parseEventDate(raw)
		if !ok {
			t.Errorf("parseEventDate(%q) failed", raw)
			continue
		}
		if parsed.Month() != time.September || parsed.Day() != 5 {
			t.Errorf("parseEventDate(%q) = %v, expected September 5", raw, parsed)
		}
	}

	if _, ok := parseEventDate("sometime soon"); ok {
		t.Error("expected freeform text to fail parsing")
	}
	if _, ok := parseEventDate(""); ok {
		t.Error("expected empty date to fail parsing")
	}
}

func TestParseEventDateYearlessNeverInPast(t *testing.T) {
	// yearless layouts fill in the current year, rolling forward when the
	// result would land more than a day in the past
	yesterday := time.Now().AddDate(0, 0, -1)

	raw := yesterday.AddDate(0, 0, -30).Format("Mon, Jan 2")
	parsed, ok := parseEventDate(raw)
	if !ok {
		t.Skipf("layout mismatch for %q, weekday names drift across years", raw)
	}
	if parsed.Before(yesterday) {
		t.Errorf("parseEventDate(%q) = %v, landed in the past", raw, parsed)
	}
}

func TestFilterByWindow(t *testing.T) {
	now := time.Now()
	events := []models.EventRecord{
		{Title: "Tomorrow", Date: now.AddDate(0, 0, 1).Format("2006-01-02")},
		{Title: "Next Month", Date: now.AddDate(0, 0, 20).Format("2006-01-02")},
		{Title: "Last Week", Date: now.AddDate(0, 0, -7).Format("2006-01-02")},
		{Title: "Mystery Date", Date: "check the website"},
	}

	weekly := filterByWindow(events, 7)
	if len(weekly) != 2 {
		t.Fatalf("expected 2 events in the 7 day window, got %d", len(weekly))
	}
	for _, event := range weekly {
		if event.Title == "Next Month" || event.Title == "Last Week" {
			t.Errorf("event %q should be outside the 7 day window", event.Title)
		}
	}

	monthly := filterByWindow(events, 30)
	if len(monthly) != 3 {
		t.Errorf("expected 3 events in the 30 day window, got %d", len(monthly))
	}
}

func TestFilterByWindowKeepsUnparseableDates(t *testing.T) {
	events := []models.EventRecord{{Title: "Mystery", Date: "see poster"}}

	filtered := filterByWindow(events, 7)
	if len(filtered) != 1 {
		t.Error("unparseable dates must be kept, not dropped")
	}
}

func TestSortByDate(t *testing.T) {
	now := time.Now()
	events := []models.EventRecord{
		{Title: "Later", Date: now.AddDate(0, 0, 5).Format("2006-01-02")},
		{Title: "Unknown", Date: "tba"},
		{Title: "Sooner", Date: now.AddDate(0, 0, 1).Format("2006-01-02")},
	}

	sortByDate(events)

	if events[0].Title != "Sooner" || events[1].Title != "Later" {
		t.Errorf("expected dated events first in ascending order, got %q then %q", events[0].Title, events[1].Title)
	}
	if events[2].Title != "Unknown" {
		t.Errorf("expected undated events last, got %q", events[2].Title)
	}
}

func TestEventDedupeKeyIsCaseInsensitive(t *testing.T) {
	a := models.EventRecord{Title: "Park Run", Location: "Albert Park"}
	b := models.EventRecord{Title: "PARK RUN", Location: "albert park"}
	if a.Key() != b.Key() {
		t.Errorf("expected matching keys, got %q and %q", a.Key(), b.Key())
	}
}
