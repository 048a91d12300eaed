package services

import (
	"html/template"
	"strings"

	"pulse-newsletter-backend/internal/models"
)

var newsletterTemplate = template.Must(template.New("newsletter").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Header}}</title></head>
<body>
<h1>{{.Header}}</h1>
<p>{{.MainChannel}}</p>
{{if .WeeklySchedule}}<h2>This Week</h2>
<ul>{{range .WeeklySchedule}}<li><strong>{{.Day}}</strong>: {{.Activity}}{{if .Time}} at {{.Time}}{{end}}</li>{{end}}</ul>{{end}}
{{if .MonthlySchedule}}<h2>This Month</h2>
<ul>{{range .MonthlySchedule}}<li><strong>{{.Day}}</strong>: {{.Activity}}{{if .Time}} at {{.Time}}{{end}}</li>{{end}}</ul>{{end}}
{{if .FeaturedVenue}}<h2>Featured Venue</h2>
<p>{{.FeaturedVenue}}</p>{{end}}
{{if .PartnerSpotlight}}<h2>Partner Spotlight</h2>
<p>{{.PartnerSpotlight}}</p>{{end}}
{{if .Highlights}}<h2>Highlights</h2>
<ul>{{range .Highlights}}<li>{{.}}</li>{{end}}</ul>{{end}}
{{if .Events}}<h2>Local Events</h2>
<ul>{{range .Events}}<li><strong>{{.Title}}</strong> ({{.Date}}) at {{.Location}}{{if .Description}}<br>{{.Description}}{{end}}</li>{{end}}</ul>{{end}}
{{if .Images}}{{range .Images}}<img src="{{.}}" alt="">{{end}}{{end}}
</body>
</html>`))

// RenderNewsletter turns structured newsletter content into the HTML
// document. Image URLs are sanitized before templating.
func RenderNewsletter(content *models.NewsletterContent) (string, error) {
	if content == nil {
		return "", models.NewValidationError("EMPTY_CONTENT", "no newsletter content to render")
	}

	rendered := *content
	rendered.Images = SanitizeImages(rendered.Images)

	var builder strings.Builder
	if err := newsletterTemplate.Execute(&builder, rendered); err != nil {
		return "", models.NewInternalError("RENDER_FAILED", "newsletter template execution failed").WithCause(err)
	}

	return builder.String(), nil
}
