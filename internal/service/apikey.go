package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aman-churiwal/quota-gateway/internal/models"
	"github.com/aman-churiwal/quota-gateway/internal/repository"
	"github.com/aman-churiwal/quota-gateway/internal/storage"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	apiKeyCacheTTL  = 5 * time.Minute
	keyPrefixLength = 10
)

type APIKeyService struct {
	repository *repository.APIKeyRepository
	redis      *storage.RedisClient
}

func NewAPIKeyService(repo *repository.APIKeyRepository, redis *storage.RedisClient) *APIKeyService {
	return &APIKeyService{
		repository: repo,
		redis:      redis,
	}
}

// Issues a key for userID. The plain key is only returned here.
func (s *APIKeyService) Create(ctx context.Context, userID uuid.UUID, name string) (string, *models.APIKey, error) {
	// Generate random key
	keyBytes := make([]byte, 32)
	if _, err := rand.Read(keyBytes); err != nil {
		return "", nil, fmt.Errorf("failed to generate random key: %w", err)
	}

	key := "qg_" + base64.RawURLEncoding.EncodeToString(keyBytes)

	apiKey := &models.APIKey{
		UserID:   userID,
		KeyHash:  hashKey(key),
		Prefix:   key[:keyPrefixLength],
		Name:     name,
		IsActive: true,
	}

	if err := s.repository.Create(ctx, apiKey); err != nil {
		return "", nil, fmt.Errorf("failed to create API key: %w", err)
	}

	return key, apiKey, nil
}

// Resolves a plain key to its active record, or nil
func (s *APIKeyService) Validate(ctx context.Context, key string) (*models.APIKey, error) {
	keyHash := hashKey(key)

	// Check cache first
	cacheKey := cacheKeyFor(keyHash)
	cached, err := s.redis.Get(ctx, cacheKey)
	if err == nil && cached != "" {
		var apiKey models.APIKey
		if err := json.Unmarshal([]byte(cached), &apiKey); err == nil && apiKey.Usable() {
			return &apiKey, nil
		}
	}

	// Cache miss - query database
	apiKey, err := s.repository.FindByHash(ctx, keyHash)
	if err != nil {
		return nil, err
	}
	if apiKey == nil {
		return nil, nil
	}

	if encoded, err := json.Marshal(apiKey); err == nil {
		if err := s.redis.Set(ctx, cacheKey, encoded, apiKeyCacheTTL); err != nil {
			log.WithError(err).Debug("failed to cache api key")
		}
	}

	return apiKey, nil
}

func (s *APIKeyService) List(ctx context.Context, userID uuid.UUID) ([]models.APIKey, error) {
	return s.repository.ListByUser(ctx, userID)
}

// Deactivates a key and evicts it from the cache
func (s *APIKeyService) Revoke(ctx context.Context, userID, id uuid.UUID) (bool, error) {
	apiKey, err := s.repository.FindByID(ctx, userID, id)
	if err != nil || apiKey == nil {
		return false, err
	}

	revoked, err := s.repository.Revoke(ctx, userID, id)
	if err != nil {
		return false, err
	}

	if err := s.redis.Del(ctx, cacheKeyFor(apiKey.KeyHash)); err != nil {
		log.WithError(err).WithField("api_key_id", id).Warn("failed to evict revoked api key from cache")
	}

	return revoked, nil
}

func (s *APIKeyService) UpdateLastUsed(ctx context.Context, id uuid.UUID) {
	if err := s.repository.UpdateLastUsed(ctx, id, time.Now()); err != nil {
		log.WithError(err).WithField("api_key_id", id).Debug("failed to update api key last use")
	}
}

func hashKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

func cacheKeyFor(keyHash string) string {
	return "apikey:cache:" + keyHash
}
