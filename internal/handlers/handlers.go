package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"pulse-newsletter-backend/internal/models"
	"pulse-newsletter-backend/internal/pkg/logger"
	"pulse-newsletter-backend/internal/services"
)

// Handler exposes the conversation pipeline over HTTP.
type Handler struct {
	orchestrator *services.Orchestrator
	tools        *services.ToolsService
	events       services.EventSearcher
	mongo        *services.MongoService // nil when the archive is disabled
	logger       *logger.Logger
}

func NewHandler(orchestrator *services.Orchestrator, tools *services.ToolsService, events services.EventSearcher, mongo *services.MongoService, log *logger.Logger) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		tools:        tools,
		events:       events,
		mongo:        mongo,
		logger:       log,
	}
}

func (handler *Handler) RegisterRoutes(router *gin.Engine) {
	router.POST("/chat", handler.Chat)
	router.POST("/ai-chat", handler.AIChat)
	router.POST("/context-chat", handler.Chat)

	router.GET("/newsletter-state", handler.NewsletterState)
	router.GET("/newsletter-html", handler.NewsletterHTML)
	router.GET("/conversation-history", handler.ConversationHistory)
	router.POST("/set-preferences", handler.SetPreferences)
	router.POST("/reset-context", handler.ResetContext)

	router.GET("/tools/available", handler.ToolsAvailable)
	router.POST("/tools/execute", handler.ToolsExecute)

	router.POST("/events/search", handler.EventsSearch)
	router.DELETE("/events/manage/:id", handler.EventsDelete)

	router.GET("/newsletters", handler.NewslettersList)
	router.GET("/newsletters/:id", handler.NewsletterByID)
	router.PATCH("/newsletters/:id/status", handler.NewsletterStatusUpdate)

	router.GET("/health", handler.Health)
}

func renderError(c *gin.Context, err error) {
	appError := models.AsAppError(err)
	c.JSON(appError.HTTPStatus(), gin.H{
		"error": gin.H{
			"type":    string(appError.Type),
			"code":    appError.Code,
			"message": appError.Message,
		},
	})
}

func sessionIDFrom(c *gin.Context) string {
	if sessionID := c.Query("session_id"); sessionID != "" {
		return sessionID
	}
	return "default"
}

func (handler *Handler) Chat(c *gin.Context) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, models.NewValidationError("INVALID_REQUEST", "message is required").WithCause(err))
		return
	}

	envelope := handler.orchestrator.HandleMessage(c.Request.Context(), &req)
	c.JSON(http.StatusOK, envelope)
}

func (handler *Handler) AIChat(c *gin.Context) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, models.NewValidationError("INVALID_REQUEST", "message is required").WithCause(err))
		return
	}

	envelope := handler.orchestrator.HandleMessageModelFirst(c.Request.Context(), &req)
	c.JSON(http.StatusOK, envelope)
}

func (handler *Handler) NewsletterState(c *gin.Context) {
	state := handler.orchestrator.NewsletterState(sessionIDFrom(c))
	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"newsletter_state": state,
		"has_newsletter":   state.Content != nil,
	})
}

func (handler *Handler) NewsletterHTML(c *gin.Context) {
	state := handler.orchestrator.NewsletterState(sessionIDFrom(c))

	html, err := services.RenderNewsletter(state.Content)
	if err != nil {
		renderError(c, err)
		return
	}

	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}

func (handler *Handler) ConversationHistory(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			renderError(c, models.NewValidationError("INVALID_LIMIT", "limit must be an integer"))
			return
		}
		limit = parsed
	}

	history := handler.orchestrator.History(sessionIDFrom(c), limit)
	c.JSON(http.StatusOK, gin.H{
		"success":              true,
		"conversation_history": history,
		"total_interactions":   len(history),
	})
}

type preferencesRequest struct {
	SessionID   string                 `json:"session_id"`
	Preferences models.UserPreferences `json:"preferences" binding:"required"`
}

func (handler *Handler) SetPreferences(c *gin.Context) {
	var req preferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, models.NewValidationError("INVALID_REQUEST", "preferences are required").WithCause(err))
		return
	}

	merged := handler.orchestrator.SetPreferences(req.SessionID, req.Preferences)
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"message":     "preferences updated",
		"preferences": merged,
	})
}

type resetRequest struct {
	SessionID string `json:"session_id"`
}

func (handler *Handler) ResetContext(c *gin.Context) {
	var req resetRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		renderError(c, models.NewValidationError("INVALID_REQUEST", "malformed reset request").WithCause(err))
		return
	}

	handler.orchestrator.ResetSession(c.Request.Context(), req.SessionID)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "conversation context reset",
	})
}

func (handler *Handler) ToolsAvailable(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tools": handler.tools.Available()})
}

type toolExecuteRequest struct {
	ToolID     string                 `json:"tool_id" binding:"required"`
	Parameters map[string]interface{} `json:"parameters"`
}

func (handler *Handler) ToolsExecute(c *gin.Context) {
	var req toolExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, models.NewValidationError("INVALID_REQUEST", "tool_id is required").WithCause(err))
		return
	}

	execution := handler.tools.Execute(c.Request.Context(), req.ToolID, req.Parameters)
	c.JSON(http.StatusOK, execution)
}

func (handler *Handler) EventsSearch(c *gin.Context) {
	var req services.EventSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, models.NewValidationError("INVALID_REQUEST", "malformed event search request").WithCause(err))
		return
	}

	events, err := handler.events.Search(c.Request.Context(), &req)
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
	})
}

func (handler *Handler) EventsDelete(c *gin.Context) {
	reference := c.Param("id")
	if reference == "" {
		renderError(c, models.NewValidationError("MISSING_EVENT", "event reference is required"))
		return
	}

	removed, state := handler.orchestrator.DeleteEvent(sessionIDFrom(c), reference)
	c.JSON(http.StatusOK, gin.H{
		"removed":          removed,
		"newsletter_state": state,
	})
}

func (handler *Handler) NewslettersList(c *gin.Context) {
	if handler.mongo == nil {
		renderError(c, models.NewNotFoundError("ARCHIVE_DISABLED", "newsletter archive is not configured"))
		return
	}

	documents, err := handler.mongo.ListNewsletters(c.Request.Context(), sessionIDFrom(c), 20)
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"newsletters": documents,
		"count":       len(documents),
	})
}

func (handler *Handler) NewsletterByID(c *gin.Context) {
	if handler.mongo == nil {
		renderError(c, models.NewNotFoundError("ARCHIVE_DISABLED", "newsletter archive is not configured"))
		return
	}

	document, err := handler.mongo.GetNewsletter(c.Request.Context(), c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, document)
}

type statusUpdateRequest struct {
	Status string `json:"status" binding:"required"`
}

func (handler *Handler) NewsletterStatusUpdate(c *gin.Context) {
	if handler.mongo == nil {
		renderError(c, models.NewNotFoundError("ARCHIVE_DISABLED", "newsletter archive is not configured"))
		return
	}

	var req statusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, models.NewValidationError("INVALID_REQUEST", "status is required").WithCause(err))
		return
	}

	status := models.NewsletterStatus(req.Status)
	switch status {
	case models.NewsletterStatusAccepted, models.NewsletterStatusRejected:
	default:
		renderError(c, models.NewValidationError("INVALID_STATUS", "status must be accepted or rejected"))
		return
	}

	if err := handler.mongo.UpdateNewsletterStatus(c.Request.Context(), c.Param("id"), status); err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": req.Status})
}

func (handler *Handler) Health(c *gin.Context) {
	health := handler.orchestrator.HealthCheck(c.Request.Context())

	if err := handler.events.HealthCheck(c.Request.Context()); err != nil {
		health["events"] = err.Error()
	} else {
		health["events"] = "ok"
	}

	status := http.StatusOK
	for _, value := range health {
		if value != "ok" {
			status = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(status, gin.H{
		"services":  health,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
