package infra

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LocalStore é um guarda de rajada em processo, baseado em token-bucket
// (x/time/rate) com cache por chave e limpeza periódica.
//
// Ele não substitui a janela deslizante compartilhada: serve como primeira
// barreira barata (sem round trip ao store) contra rajadas de um mesmo
// cliente batendo na mesma instância do gateway.
type LocalStore struct {
	mu           sync.Mutex
	entries      map[string]*localEntry
	rps          rate.Limit
	burst        int
	idleTTL      time.Duration
	cleanupEvery time.Duration
}

type localEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type LocalOption func(*LocalStore)

func WithIdleTTL(d time.Duration) LocalOption {
	return func(s *LocalStore) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) LocalOption {
	return func(s *LocalStore) { s.cleanupEvery = d }
}

func NewLocalStore(rps float64, burst int, opts ...LocalOption) *LocalStore {
	s := &LocalStore{
		entries:      make(map[string]*localEntry),
		rps:          rate.Limit(rps),
		burst:        burst,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LocalStore) RPS() float64                { return float64(s.rps) }
func (s *LocalStore) Burst() int                  { return s.burst }
func (s *LocalStore) CleanupEvery() time.Duration { return s.cleanupEvery }

// Allow consome um token do bucket da chave (criando o bucket no primeiro
// acesso). Retorna false quando a rajada local estourou.
func (s *LocalStore) Allow(key string) bool {
	now := time.Now()

	s.mu.Lock()
	ent, ok := s.entries[key]
	if !ok {
		ent = &localEntry{lim: rate.NewLimiter(s.rps, s.burst)}
		s.entries[key] = ent
	}
	ent.lastSeen = now
	lim := ent.lim
	s.mu.Unlock()

	return lim.Allow()
}

func (s *LocalStore) Cleanup() {
	cutoff := time.Now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente.
// Pare cancelando o contexto.
func (s *LocalStore) StartJanitor(ctx DoneContext) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}

// DoneContext é o mínimo necessário para aceitar context.Context sem importar context aqui.
// (Permite reuso em libs sem acoplar.)
type DoneContext interface {
	Done() <-chan struct{}
}
