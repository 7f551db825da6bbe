package infra

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"verity-gateway/middleware/quota/domain"
)

// MemoryStore é uma implementação de domain.KV em memória.
// Útil para testes e desenvolvimento local (sem Redis).
//
// A expiração é avaliada de forma preguiçosa, no acesso, contra o relógio
// injetado — o que permite simular passagem de tempo nos testes sem sleep.
type MemoryStore struct {
	mu  sync.Mutex
	now func() time.Time
	err error // erro forçado para simular store fora do ar

	strings map[string]*memString
	zsets   map[string]*memZSet
	hashes  map[string]*memHash
}

type memString struct {
	val string
	exp time.Time // zero = sem expiração
}

type memZSet struct {
	members map[string]float64
	exp     time.Time
}

type memHash struct {
	fields map[string]string
	exp    time.Time
}

type MemoryOption func(*MemoryStore)

// WithClock injeta o relógio usado na expiração (padrão: time.Now).
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		now:     time.Now,
		strings: make(map[string]*memString),
		zsets:   make(map[string]*memZSet),
		hashes:  make(map[string]*memHash),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FailWith força todas as operações a retornarem err (nil desliga).
// Serve para exercitar a política fail-open das camadas de cima.
func (s *MemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func expired(exp, now time.Time) bool {
	return !exp.IsZero() && !exp.After(now)
}

// getString resolve a chave string viva ou nil. Chamar com mu preso.
func (s *MemoryStore) getString(key string, now time.Time) *memString {
	e, ok := s.strings[key]
	if !ok {
		return nil
	}
	if expired(e.exp, now) {
		delete(s.strings, key)
		return nil
	}
	return e
}

func (s *MemoryStore) getZSet(key string, now time.Time) *memZSet {
	z, ok := s.zsets[key]
	if !ok {
		return nil
	}
	if expired(z.exp, now) {
		delete(s.zsets, key)
		return nil
	}
	return z
}

func (s *MemoryStore) getHash(key string, now time.Time) *memHash {
	h, ok := s.hashes[key]
	if !ok {
		return nil
	}
	if expired(h.exp, now) {
		delete(s.hashes, key)
		return nil
	}
	return h
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", false, s.err
	}
	e := s.getString(key, s.now())
	if e == nil {
		return "", false, nil
	}
	return e.val, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string, opts domain.SetOptions) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	now := s.now()
	existing := s.getString(key, now)
	if opts.NX && existing != nil {
		return false, nil
	}
	if opts.XX && existing == nil {
		return false, nil
	}

	e := &memString{val: value}
	switch {
	case opts.PX > 0:
		e.exp = now.Add(opts.PX)
	case opts.EX > 0:
		e.exp = now.Add(opts.EX)
	}
	s.strings[key] = e
	return true, nil
}

func (s *MemoryStore) Incr(ctx context.Context, key string) (int64, error) {
	return s.IncrBy(ctx, key, 1)
}

func (s *MemoryStore) IncrBy(_ context.Context, key string, n int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	now := s.now()
	e := s.getString(key, now)
	if e == nil {
		e = &memString{}
		s.strings[key] = e
	}
	cur, _ := strconv.ParseInt(e.val, 10, 64)
	cur += n
	e.val = strconv.FormatInt(cur, 10)
	return cur, nil
}

func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	now := s.now()
	exp := now.Add(ttl)
	if e := s.getString(key, now); e != nil {
		e.exp = exp
		return true, nil
	}
	if z := s.getZSet(key, now); z != nil {
		z.exp = exp
		return true, nil
	}
	if h := s.getHash(key, now); h != nil {
		h.exp = exp
		return true, nil
	}
	return false, nil
}

func (s *MemoryStore) TTL(_ context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	now := s.now()
	var exp time.Time
	switch {
	case s.getString(key, now) != nil:
		exp = s.strings[key].exp
	case s.getZSet(key, now) != nil:
		exp = s.zsets[key].exp
	case s.getHash(key, now) != nil:
		exp = s.hashes[key].exp
	default:
		return -2 * time.Second, nil
	}
	if exp.IsZero() {
		return -1 * time.Second, nil
	}
	return exp.Sub(now), nil
}

func (s *MemoryStore) Del(_ context.Context, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	now := s.now()
	var n int64
	for _, key := range keys {
		if s.getString(key, now) != nil {
			delete(s.strings, key)
			n++
		}
		if s.getZSet(key, now) != nil {
			delete(s.zsets, key)
			n++
		}
		if s.getHash(key, now) != nil {
			delete(s.hashes, key)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ZAdd(_ context.Context, key string, score float64, member string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	z := s.getZSet(key, s.now())
	if z == nil {
		z = &memZSet{members: make(map[string]float64)}
		s.zsets[key] = z
	}
	_, exists := z.members[member]
	z.members[member] = score
	if exists {
		return 0, nil
	}
	return 1, nil
}

func (s *MemoryStore) ZRemRangeByScore(_ context.Context, key string, min, max float64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	z := s.getZSet(key, s.now())
	if z == nil {
		return 0, nil
	}
	var n int64
	for m, score := range z.members {
		if score >= min && score <= max {
			delete(z.members, m)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ZCard(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	z := s.getZSet(key, s.now())
	if z == nil {
		return 0, nil
	}
	return int64(len(z.members)), nil
}

func (s *MemoryStore) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	members, err := s.ZRangeWithScores(ctx, key, start, stop)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(members))
	for _, m := range members {
		out = append(out, m.Member)
	}
	return out, nil
}

func (s *MemoryStore) ZRangeWithScores(_ context.Context, key string, start, stop int64) ([]domain.ZMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	z := s.getZSet(key, s.now())
	if z == nil {
		return nil, nil
	}

	all := make([]domain.ZMember, 0, len(z.members))
	for m, score := range z.members {
		all = append(all, domain.ZMember{Member: m, Score: score})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Score != all[j].Score {
			return all[i].Score < all[j].Score
		}
		return all[i].Member < all[j].Member
	})

	// índices no estilo Redis: negativos contam do fim, stop é inclusivo.
	n := int64(len(all))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return nil, nil
	}
	return all[start : stop+1], nil
}

func (s *MemoryStore) HSet(_ context.Context, key, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	h := s.getHash(key, s.now())
	if h == nil {
		h = &memHash{fields: make(map[string]string)}
		s.hashes[key] = h
	}
	h.fields[field] = value
	return nil
}

func (s *MemoryStore) HGet(_ context.Context, key, field string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", false, s.err
	}
	h := s.getHash(key, s.now())
	if h == nil {
		return "", false, nil
	}
	v, ok := h.fields[field]
	return v, ok, nil
}

func (s *MemoryStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	h := s.getHash(key, s.now())
	if h == nil {
		return map[string]string{}, nil
	}
	out := make(map[string]string, len(h.fields))
	for f, v := range h.fields {
		out[f] = v
	}
	return out, nil
}

func (s *MemoryStore) HIncrBy(_ context.Context, key, field string, n int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	h := s.getHash(key, s.now())
	if h == nil {
		h = &memHash{fields: make(map[string]string)}
		s.hashes[key] = h
	}
	cur, _ := strconv.ParseInt(h.fields[field], 10, 64)
	cur += n
	h.fields[field] = strconv.FormatInt(cur, 10)
	return cur, nil
}
