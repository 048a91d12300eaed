package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type EventRecord struct {
	Title       string  `json:"title" bson:"title"`
	Date        string  `json:"date" bson:"date"`
	Time        string  `json:"time,omitempty" bson:"time,omitempty"`
	Location    string  `json:"location" bson:"location"`
	Description string  `json:"description,omitempty" bson:"description,omitempty"`
	Category    string  `json:"category,omitempty" bson:"category,omitempty"`
	URL         string  `json:"url,omitempty" bson:"url,omitempty"`
	Postcode    string  `json:"postcode,omitempty" bson:"postcode,omitempty"`
	DistanceKm  float64 `json:"distance_km,omitempty" bson:"distance_km,omitempty"`
}

// Key identifies an event for dedupe purposes.
func (event EventRecord) Key() string {
	return strings.ToLower(strings.TrimSpace(event.Title)) + "|" + strings.ToLower(strings.TrimSpace(event.Location))
}

type ScheduleItem struct {
	Day      string `json:"day" bson:"day"`
	Activity string `json:"activity" bson:"activity"`
	Time     string `json:"time,omitempty" bson:"time,omitempty"`
}

type NewsletterContent struct {
	Header           string         `json:"header" bson:"header"`
	MainChannel      string         `json:"main_channel" bson:"main_channel"`
	WeeklySchedule   []ScheduleItem `json:"weekly_schedule,omitempty" bson:"weekly_schedule,omitempty"`
	MonthlySchedule  []ScheduleItem `json:"monthly_schedule,omitempty" bson:"monthly_schedule,omitempty"`
	FeaturedVenue    string         `json:"featured_venue,omitempty" bson:"featured_venue,omitempty"`
	PartnerSpotlight string         `json:"partner_spotlight,omitempty" bson:"partner_spotlight,omitempty"`
	Highlights       []string       `json:"newsletter_highlights,omitempty" bson:"newsletter_highlights,omitempty"`
	Events           []EventRecord  `json:"events,omitempty" bson:"events,omitempty"`
	Images           []string       `json:"images,omitempty" bson:"images,omitempty"`
}

type NewsletterStatus string

const (
	NewsletterStatusEmpty      NewsletterStatus = "empty"
	NewsletterStatusGenerating NewsletterStatus = "generating"
	NewsletterStatusGenerated  NewsletterStatus = "generated"
	NewsletterStatusAccepted   NewsletterStatus = "accepted"
	NewsletterStatusRejected   NewsletterStatus = "rejected"
	NewsletterStatusError      NewsletterStatus = "error"
)

type NewsletterState struct {
	Status    NewsletterStatus   `json:"status"`
	Content   *NewsletterContent `json:"content,omitempty"`
	Tone      string             `json:"tone,omitempty"`
	Events    []EventRecord      `json:"events"`
	UpdatedAt time.Time          `json:"updated_at"`
}

func NewNewsletterState() *NewsletterState {
	return &NewsletterState{
		Status:    NewsletterStatusEmpty,
		Events:    []EventRecord{},
		UpdatedAt: time.Now(),
	}
}

// NewsletterDocument is the persisted form of a generated newsletter.
type NewsletterDocument struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	SessionID string             `json:"session_id" bson:"session_id"`
	Status    NewsletterStatus   `json:"status" bson:"status"`
	Content   NewsletterContent  `json:"content" bson:"content"`
	Tone      string             `json:"tone,omitempty" bson:"tone,omitempty"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time          `json:"updated_at" bson:"updated_at"`
}
