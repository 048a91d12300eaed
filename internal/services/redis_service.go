package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"pulse-newsletter-backend/internal/config"
	"pulse-newsletter-backend/internal/models"
	"pulse-newsletter-backend/internal/pkg/logger"
)

// RedisService persists conversation context per session so a restart
// does not lose it. The in-memory store stays authoritative while the
// process lives.
type RedisService struct {
	client *redis.Client
	logger *logger.Logger
	config config.RedisConfig
}

// PersistedContext is the slice of a session worth keeping across
// restarts.
type PersistedContext struct {
	History          []models.ConversationTurn `json:"history"`
	Preferences      models.UserPreferences    `json:"preferences"`
	NewsletterStatus string                    `json:"newsletter_status"`
}

func NewRedisService(config config.RedisConfig, log *logger.Logger) (*RedisService, error) {
	opt, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}

	opt.PoolSize = config.PoolSize
	opt.ReadTimeout = config.ReadTimeout
	opt.WriteTimeout = config.WriteTimeout
	opt.DialTimeout = config.DialTimeout

	service := &RedisService{
		client: redis.NewClient(opt),
		logger: log,
		config: config,
	}

	if err := service.testConnection(); err != nil {
		return nil, fmt.Errorf("connection to Redis failed: %w", err)
	}

	log.Info("Redis service initialized",
		"url", config.URL,
		"pool_size", config.PoolSize,
		"context_ttl", config.ContextTTL.String())

	return service, nil
}

func (service *RedisService) testConnection() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := service.client.Ping(ctx).Err(); err != nil {
		return err
	}

	service.logger.Info("Redis connection tested successfully")
	return nil
}

func contextKey(sessionID string) string {
	return fmt.Sprintf("session:%s:conversation_context", sessionID)
}

// SaveConversationContext writes the session snapshot as a hash with a
// sliding TTL.
func (service *RedisService) SaveConversationContext(ctx context.Context, sessionID string, store *ContextStore) error {
	key := contextKey(sessionID)
	startTime := time.Now()

	history := store.History(models.HistoryLimit)
	state := store.NewsletterState()

	data := make(map[string]interface{})

	historyJSON, err := json.Marshal(history)
	if err == nil {
		data["history"] = string(historyJSON)
	}

	prefsJSON, err := json.Marshal(store.Preferences())
	if err == nil {
		data["preferences"] = string(prefsJSON)
	}

	data["newsletter_status"] = string(state.Status)
	data["updated_at"] = time.Now().Format(time.RFC3339)

	pipe := service.client.Pipeline()
	pipe.HSet(ctx, key, data)
	pipe.Expire(ctx, key, service.config.ContextTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		service.logger.LogService("redis", "save_conversation_context", time.Since(startTime), map[string]interface{}{
			"session_id": sessionID,
			"key":        key,
		}, err)
		return models.NewExternalError("REDIS_SAVE_FAILED", "failed to save conversation context").WithCause(err)
	}

	service.logger.LogService("redis", "save_conversation_context", time.Since(startTime), map[string]interface{}{
		"session_id": sessionID,
		"turns":      len(history),
	}, nil)

	return nil
}

// LoadConversationContext reads a persisted session. A missing key is
// returned as nil, nil.
func (service *RedisService) LoadConversationContext(ctx context.Context, sessionID string) (*PersistedContext, error) {
	key := contextKey(sessionID)
	startTime := time.Now()

	data, err := service.client.HGetAll(ctx, key).Result()
	if err != nil {
		service.logger.LogService("redis", "load_conversation_context", time.Since(startTime), map[string]interface{}{
			"session_id": sessionID,
			"key":        key,
		}, err)
		return nil, models.NewExternalError("REDIS_GET_FAILED", "failed to load conversation context").WithCause(err)
	}

	if len(data) == 0 {
		return nil, nil
	}

	persisted := &PersistedContext{
		History:     []models.ConversationTurn{},
		Preferences: models.UserPreferences{},
	}

	if err := parseJSONField(data, "history", &persisted.History); err != nil {
		service.logger.WithError(err).Warn("failed to parse persisted history")
	}

	if err := parseJSONField(data, "preferences", &persisted.Preferences); err != nil {
		service.logger.WithError(err).Warn("failed to parse persisted preferences")
	}

	persisted.NewsletterStatus = data["newsletter_status"]

	service.logger.LogService("redis", "load_conversation_context", time.Since(startTime), map[string]interface{}{
		"session_id": sessionID,
		"turns":      len(persisted.History),
	}, nil)

	return persisted, nil
}

func parseJSONField(data map[string]string, field string, target interface{}) error {
	if value, exists := data[field]; exists && value != "" {
		return json.Unmarshal([]byte(value), target)
	}
	return nil
}

func (service *RedisService) ClearConversationContext(ctx context.Context, sessionID string) error {
	key := contextKey(sessionID)
	startTime := time.Now()

	if err := service.client.Del(ctx, key).Err(); err != nil {
		service.logger.LogService("redis", "clear_conversation_context", time.Since(startTime), map[string]interface{}{
			"session_id": sessionID,
			"key":        key,
		}, err)
		return models.NewExternalError("REDIS_DELETE_FAILED", "failed to clear conversation context").WithCause(err)
	}

	service.logger.LogService("redis", "clear_conversation_context", time.Since(startTime), map[string]interface{}{
		"session_id": sessionID,
	}, nil)

	return nil
}

func (service *RedisService) HealthCheck(ctx context.Context) error {
	if err := service.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection unhealthy: %w", err)
	}
	return nil
}

func (service *RedisService) GetStats() map[string]interface{} {
	poolStats := service.client.PoolStats()
	return map[string]interface{}{
		"service":     "redis",
		"hits":        poolStats.Hits,
		"misses":      poolStats.Misses,
		"total_conns": poolStats.TotalConns,
		"idle_conns":  poolStats.IdleConns,
	}
}

func (service *RedisService) Close() error {
	service.logger.Info("closing Redis service")

	if err := service.client.Close(); err != nil {
		return fmt.Errorf("error closing Redis connection: %w", err)
	}

	service.logger.Info("Redis service closed")
	return nil
}
