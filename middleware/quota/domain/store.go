package domain

import (
	"context"
	"time"
)

// SetOptions espelha as variações do comando SET.
// EX/PX são mutuamente exclusivos (PX vence se ambos vierem preenchidos);
// NX/XX idem.
type SetOptions struct {
	EX time.Duration
	PX time.Duration
	NX bool
	XX bool
}

// ZMember é um membro de sorted set com seu score.
type ZMember struct {
	Member string
	Score  float64
}

// KV é o contrato com o armazenamento remoto (Redis via cliente nativo,
// Redis via REST, memória para testes).
//
// Toda operação é uma chamada remota e pode falhar; implementações devem
// RETORNAR o erro, nunca engolir. A política fail-open (tratar erro como
// permitido/zero) pertence à camada application, que precisa distinguir
// "vazio de verdade" de "store inacessível".
type KV interface {
	// Get retorna (valor, encontrado, erro). Chave ausente não é erro.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set grava o valor. Com NX/XX, ok=false indica condição não satisfeita.
	Set(ctx context.Context, key, value string, opts SetOptions) (bool, error)
	Incr(ctx context.Context, key string) (int64, error)
	IncrBy(ctx context.Context, key string, n int64) (int64, error)
	// Expire retorna false quando a chave não existe.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// TTL segue a convenção do Redis: -1s sem expiração, -2s chave ausente.
	TTL(ctx context.Context, key string) (time.Duration, error)
	Del(ctx context.Context, keys ...string) (int64, error)

	ZAdd(ctx context.Context, key string, score float64, member string) (int64, error)
	ZRemRangeByScore(ctx context.Context, key string, min, max float64) (int64, error)
	ZCard(ctx context.Context, key string) (int64, error)
	ZRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ZRangeWithScores(ctx context.Context, key string, start, stop int64) ([]ZMember, error)

	HSet(ctx context.Context, key, field, value string) error
	HGet(ctx context.Context, key, field string) (string, bool, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HIncrBy(ctx context.Context, key, field string, n int64) (int64, error)
}
