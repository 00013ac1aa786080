package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// devFallbackSecret is used only when no master secret is configured and
// the environment is explicitly development. Never valid in production.
const devFallbackSecret = "docuvault-dev-master-secret"

// KeyService derives the per-tenant data encryption key deterministically:
// DEK = HMAC-SHA-256(masterSecret, tenantID). The same tenant always
// yields the same key, across restarts, as long as the master secret is
// unchanged. Nothing is persisted.
//
// The derivation deliberately uses a single global master secret with no
// per-tenant salt so keys are reproducible without a key-management
// service; the tradeoff is that a master-secret compromise exposes every
// tenant's keys at once.
type KeyService struct {
	masterSecret []byte

	mu    sync.RWMutex
	cache map[string][]byte
}

// NewKeyService validates the master secret against the environment.
// An empty secret is a configuration error unless env is "development",
// where a fixed insecure default is substituted and logged as a warning.
func NewKeyService(masterSecret, env string, logger *zap.Logger) (*KeyService, error) {
	if masterSecret == "" {
		if env != "development" {
			return nil, fmt.Errorf("master encryption key is required when env is %q", env)
		}
		logger.Warn("no master encryption key configured, using insecure development default",
			zap.String("env", env))
		masterSecret = devFallbackSecret
	}
	return &KeyService{
		masterSecret: []byte(masterSecret),
		cache:        make(map[string][]byte),
	}, nil
}

// DeriveKey returns the 256-bit DEK for a tenant. Results are cached for
// the process lifetime; recomputation on a cache miss is benign.
func (s *KeyService) DeriveKey(tenantID string) []byte {
	s.mu.RLock()
	key, ok := s.cache[tenantID]
	s.mu.RUnlock()
	if ok {
		return key
	}

	mac := hmac.New(sha256.New, s.masterSecret)
	mac.Write([]byte(tenantID))
	key = mac.Sum(nil)

	s.mu.Lock()
	s.cache[tenantID] = key
	s.mu.Unlock()
	return key
}
