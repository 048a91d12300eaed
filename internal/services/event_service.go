package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/sony/gobreaker"

	"pulse-newsletter-backend/internal/config"
	"pulse-newsletter-backend/internal/models"
	"pulse-newsletter-backend/internal/pkg/logger"
)

// EventService is the verified event source. Everything the pipeline
// presents as an event has to come out of here.
type EventService struct {
	collector   *colly.Collector
	breaker     *gobreaker.CircuitBreaker
	config      config.ScraperConfig
	logger      *logger.Logger
	rateLimiter chan struct{}

	// swappable seams for the network-bound steps
	scrape func(ctx context.Context, area, postcode string, radiusKm float64, category string) ([]models.EventRecord, error)
	lookup func(ctx context.Context, postcode string) (string, string, error)

	mu         sync.Mutex
	userAgents []string
	uaIndex    int
}

type EventSearchRequest struct {
	Postcode   string  `json:"postcode"`
	RadiusKm   float64 `json:"radius_km"`
	WindowDays int     `json:"window_days"`
	Category   string  `json:"category"`
}

// postcodeLookup is the postcodes.io response slice we care about.
type postcodeLookup struct {
	Status int `json:"status"`
	Result struct {
		Postcode      string  `json:"postcode"`
		AdminDistrict string  `json:"admin_district"`
		Region        string  `json:"region"`
		Latitude      float64 `json:"latitude"`
		Longitude     float64 `json:"longitude"`
	} `json:"result"`
}

func NewEventService(config config.ScraperConfig, log *logger.Logger) (*EventService, error) {
	collector := colly.NewCollector(
		colly.UserAgent("Pulse-Newsletter-Assistant/1.0"),
		colly.AllowedDomains(), // allow all domains
	)

	collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: config.Parallelism,
		Delay:       config.RequestDelay,
	})

	collector.SetRequestTimeout(config.RequestTimeout)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "event-search",
		MaxRequests: 2,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	service := &EventService{
		collector:   collector,
		breaker:     breaker,
		config:      config,
		logger:      log,
		rateLimiter: make(chan struct{}, 5),
		userAgents: []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/120.0",
		},
	}
	service.scrape = service.scrapeEvents
	service.lookup = service.lookupPostcode

	log.Info("Event service initialized",
		"default_postcode", config.DefaultPostcode,
		"min_events", config.MinEvents,
		"max_expansions", config.MaxExpansions)

	return service, nil
}

// Search finds verified events around a postcode. The radius grows by
// half on each retry, widening the scraped area from the district to
// the region, until enough events are found, an attempt adds nothing
// new, or the expansion cap is hit.
func (service *EventService) Search(ctx context.Context, req *EventSearchRequest) ([]models.EventRecord, error) {
	startTime := time.Now()

	if req.Postcode == "" {
		req.Postcode = service.config.DefaultPostcode
	}
	if req.RadiusKm <= 0 {
		req.RadiusKm = service.config.DefaultRadiusKm
	}
	if req.WindowDays <= 0 {
		req.WindowDays = 7
	}

	select {
	case service.rateLimiter <- struct{}{}:
		defer func() { <-service.rateLimiter }()
	case <-ctx.Done():
		return nil, models.NewTimeoutError("EVENT_SEARCH_TIMEOUT", "rate limiter timeout").WithCause(ctx.Err())
	}

	district, region, err := service.lookup(ctx, req.Postcode)
	if err != nil {
		service.logger.WithError(err).Warn("postcode lookup failed, searching by raw postcode", "postcode", req.Postcode)
		district = req.Postcode
		region = ""
	}

	radius := req.RadiusKm
	previousArea := ""
	lastAdded := -1
	var events []models.EventRecord

	for attempt := 1; attempt <= service.config.MaxExpansions; attempt++ {
		area := areaForRadius(radius, req.RadiusKm, district, region)

		// re-scraping an unchanged listing cannot surface new events
		if area == previousArea && lastAdded == 0 {
			break
		}

		result, err := service.breaker.Execute(func() (interface{}, error) {
			return service.scrape(ctx, area, req.Postcode, radius, req.Category)
		})
		if err != nil {
			service.logger.LogService("events", "search", time.Since(startTime), map[string]interface{}{
				"postcode": req.Postcode,
				"attempt":  attempt,
			}, err)
			return nil, models.WrapExternalError("EVENT_SEARCH", err)
		}

		before := len(events)
		events = mergeEvents(events, result.([]models.EventRecord))
		lastAdded = len(events) - before

		if len(events) >= service.config.MinEvents {
			break
		}
		previousArea = area

		radius *= 1.5
		service.logger.Debug("expanding search radius",
			"attempt", attempt,
			"area", area,
			"events_so_far", len(events),
			"next_radius_km", radius)
	}

	events = filterByWindow(events, req.WindowDays)
	sortByDate(events)

	service.logger.LogService("events", "search", time.Since(startTime), map[string]interface{}{
		"postcode":    req.Postcode,
		"window_days": req.WindowDays,
		"events":      len(events),
	}, nil)

	return events, nil
}

// areaForRadius picks the listing area for the current radius: the
// district while the requested radius holds, the wider region once the
// radius has grown past it.
func areaForRadius(current, requested float64, district, region string) string {
	if current > requested && region != "" && !strings.EqualFold(region, district) {
		return region
	}
	return district
}

// lookupPostcode resolves a UK postcode to its district and region via
// postcodes.io.
func (service *EventService) lookupPostcode(ctx context.Context, postcode string) (string, string, error) {
	lookupURL := fmt.Sprintf("https://api.postcodes.io/postcodes/%s", url.PathEscape(strings.ReplaceAll(postcode, " ", "")))

	var lookup postcodeLookup
	var fetchErr error

	c := service.collector.Clone()

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "application/json")
	})

	c.OnResponse(func(r *colly.Response) {
		if err := json.Unmarshal(r.Body, &lookup); err != nil {
			fetchErr = fmt.Errorf("failed to parse postcode lookup: %w", err)
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		fetchErr = err
	})

	if err := c.Request("GET", lookupURL, nil, colly.NewContext(), nil); err != nil {
		return "", "", err
	}
	c.Wait()

	if fetchErr != nil {
		return "", "", fetchErr
	}

	if lookup.Status != 200 || lookup.Result.AdminDistrict == "" {
		return "", "", fmt.Errorf("postcode %q not found", postcode)
	}

	return lookup.Result.AdminDistrict, lookup.Result.Region, nil
}

// scrapeEvents pulls event cards from the public listing sources.
func (service *EventService) scrapeEvents(ctx context.Context, location, postcode string, radiusKm float64, category string) ([]models.EventRecord, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	slug := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(location), " ", "-"))
	listingURL := fmt.Sprintf("https://www.eventbrite.co.uk/d/united-kingdom--%s/events/", url.PathEscape(slug))
	if category != "" {
		listingURL = fmt.Sprintf("https://www.eventbrite.co.uk/d/united-kingdom--%s/%s--events/", url.PathEscape(slug), url.PathEscape(strings.ToLower(category)))
	}

	var events []models.EventRecord
	var scrapeErr error

	c := service.collector.Clone()

	c.OnRequest(func(r *colly.Request) {
		service.mu.Lock()
		userAgent := service.userAgents[service.uaIndex]
		service.uaIndex = (service.uaIndex + 1) % len(service.userAgents)
		service.mu.Unlock()

		r.Headers.Set("User-Agent", userAgent)
		r.Headers.Set("Accept-Language", "en-GB,en;q=0.9")
	})

	c.OnError(func(r *colly.Response, err error) {
		scrapeErr = err
	})

	c.OnHTML("body", func(e *colly.HTMLElement) {
		e.DOM.Find("[data-testid='search-event'], .search-event-card, .eds-event-card-content").Each(func(_ int, card *goquery.Selection) {
			event := extractEventCard(card, postcode)
			if event.Title != "" {
				events = append(events, event)
			}
		})
	})

	if err := c.Visit(listingURL); err != nil {
		return nil, err
	}
	c.Wait()

	if scrapeErr != nil && len(events) == 0 {
		return nil, scrapeErr
	}

	service.logger.Debug("scraped event listing",
		"url", listingURL,
		"radius_km", radiusKm,
		"events", len(events))

	return events, nil
}

func extractEventCard(card *goquery.Selection, postcode string) models.EventRecord {
	title := strings.TrimSpace(card.Find("h3, h2, .event-card__title").First().Text())
	location := strings.TrimSpace(card.Find("[data-testid='event-location'], .card-text--truncated, .event-card__venue").First().Text())
	date := strings.TrimSpace(card.Find("time, [data-testid='event-date'], .event-card__date").First().Text())
	link, _ := card.Find("a").First().Attr("href")
	description := strings.TrimSpace(card.Find("p").First().Text())

	return models.EventRecord{
		Title:       title,
		Date:        date,
		Location:    location,
		Description: description,
		URL:         link,
		Postcode:    postcode,
	}
}

// mergeEvents combines result sets, dropping duplicates by title+location.
func mergeEvents(existing, incoming []models.EventRecord) []models.EventRecord {
	seen := make(map[string]bool, len(existing))
	for _, event := range existing {
		seen[event.Key()] = true
	}

	merged := existing
	for _, event := range incoming {
		if seen[event.Key()] {
			continue
		}
		seen[event.Key()] = true
		merged = append(merged, event)
	}
	return merged
}

var eventDateLayouts = []string{
	"2006-01-02",
	"Mon, Jan 2",
	"Mon, 2 Jan",
	"Monday, 2 January 2006",
	"2 January 2006",
	"Jan 2, 2006",
}

func parseEventDate(raw string) (time.Time, bool) {
	trimmed := strings.TrimSpace(raw)
	for _, layout := range eventDateLayouts {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			// layouts without a year parse into year 0
			if parsed.Year() == 0 {
				now := time.Now()
				parsed = time.Date(now.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.Local)
				if parsed.Before(now.AddDate(0, 0, -1)) {
					parsed = parsed.AddDate(1, 0, 0)
				}
			}
			return parsed, true
		}
	}
	return time.Time{}, false
}

// filterByWindow keeps events inside the next windowDays days. Events
// with unparseable dates are kept, dropping them loses real events.
func filterByWindow(events []models.EventRecord, windowDays int) []models.EventRecord {
	now := time.Now()
	cutoff := now.AddDate(0, 0, windowDays)

	filtered := []models.EventRecord{}
	for _, event := range events {
		parsed, ok := parseEventDate(event.Date)
		if !ok {
			filtered = append(filtered, event)
			continue
		}
		if parsed.Before(now.AddDate(0, 0, -1)) || parsed.After(cutoff) {
			continue
		}
		filtered = append(filtered, event)
	}
	return filtered
}

func sortByDate(events []models.EventRecord) {
	sort.SliceStable(events, func(i, j int) bool {
		dateI, okI := parseEventDate(events[i].Date)
		dateJ, okJ := parseEventDate(events[j].Date)
		if !okI || !okJ {
			return okI && !okJ
		}
		return dateI.Before(dateJ)
	})
}

func (service *EventService) HealthCheck(ctx context.Context) error {
	if service.breaker.State() == gobreaker.StateOpen {
		return fmt.Errorf("event search circuit breaker is open")
	}
	return nil
}

func (service *EventService) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"service":          "events",
		"breaker_state":    service.breaker.State().String(),
		"default_postcode": service.config.DefaultPostcode,
		"min_events":       service.config.MinEvents,
	}
}
