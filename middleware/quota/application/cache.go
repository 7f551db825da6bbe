package application

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"verity-gateway/middleware/quota/domain"
)

const (
	// DefaultAuthTTL é o TTL do cache de validação de API key.
	DefaultAuthTTL = 5 * time.Minute
	// DefaultVerificationTTL é o TTL do cache de resultados de verificação.
	DefaultVerificationTTL = time.Hour
)

// CacheService encurta chamadas caras ao serviço de verificação usando cache
// endereçado por hash de conteúdo.
//
// O payload é um blob JSON opaco: o cache não interpreta nada. O hash
// (da claim normalizada ou do material da key) é responsabilidade de quem
// chama — este componente não define função de hash.
type CacheService struct {
	Store  domain.KV
	Logger *log.Logger
}

func (s *CacheService) logf(format string, args ...any) {
	if s.Logger != nil {
		s.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// put grava o blob com TTL. Retorna false (e loga) em falha de store.
func (s *CacheService) put(ctx context.Context, key string, payload json.RawMessage, ttl time.Duration) bool {
	if _, err := s.Store.Set(ctx, key, string(payload), domain.SetOptions{EX: ttl}); err != nil {
		s.logf("cache: store error on set %q: %v", key, err)
		return false
	}
	return true
}

// get lê o blob. (nil, nil) é miss legítimo; (nil, err) é store inacessível —
// para o fluxo tanto faz (segue para o downstream), mas quem quiser alertar
// consegue distinguir.
func (s *CacheService) get(ctx context.Context, key string) (json.RawMessage, error) {
	v, found, err := s.Store.Get(ctx, key)
	if err != nil {
		s.logf("cache: store error on get %q: %v", key, err)
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return json.RawMessage(v), nil
}

// CacheAPIKey guarda o resultado de validação de uma API key (hasheada).
// ttl <= 0 usa DefaultAuthTTL.
func (s *CacheService) CacheAPIKey(ctx context.Context, keyHash string, payload json.RawMessage, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = DefaultAuthTTL
	}
	return s.put(ctx, domain.APIKeyCacheKey(keyHash), payload, ttl)
}

// CachedAPIKey devolve o blob cacheado ou nil (miss/erro).
func (s *CacheService) CachedAPIKey(ctx context.Context, keyHash string) (json.RawMessage, error) {
	return s.get(ctx, domain.APIKeyCacheKey(keyHash))
}

// InvalidateAPIKey apaga a entrada imediatamente — usado quando a key é
// revogada e esperar o TTL seria um buraco de segurança.
func (s *CacheService) InvalidateAPIKey(ctx context.Context, keyHash string) bool {
	if _, err := s.Store.Del(ctx, domain.APIKeyCacheKey(keyHash)); err != nil {
		s.logf("cache: store error on invalidate %q: %v", keyHash, err)
		return false
	}
	return true
}

// CacheVerification guarda o resultado de verificação de um claim (hasheado).
// ttl <= 0 usa DefaultVerificationTTL.
func (s *CacheService) CacheVerification(ctx context.Context, claimHash string, payload json.RawMessage, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = DefaultVerificationTTL
	}
	return s.put(ctx, domain.VerificationCacheKey(claimHash), payload, ttl)
}

// CachedVerification devolve o blob cacheado ou nil (miss/erro).
func (s *CacheService) CachedVerification(ctx context.Context, claimHash string) (json.RawMessage, error) {
	return s.get(ctx, domain.VerificationCacheKey(claimHash))
}
