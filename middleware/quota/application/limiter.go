package application

import (
	"context"
	"log"
	"strconv"
	"time"

	"verity-gateway/middleware/quota/domain"

	"github.com/google/uuid"
)

const (
	// DefaultWindow é a janela deslizante padrão dos planos (limites em req/min).
	DefaultWindow = 60 * time.Second

	// folga de TTL sobre a janela: a chave morre sozinha pouco depois de inútil
	windowTTLBuffer = 10 * time.Second

	// TTL do contador diário: um dia + folga para fuso/relógio
	dailyCounterTTL = 25 * time.Hour
)

// LimiterService decide se uma requisição passa, usando uma janela deslizante
// (sorted set por identidade) no store compartilhado.
//
// Política fail-open: erro de infraestrutura NUNCA bloqueia tráfego — a
// decisão sai Allowed=true com Err preenchido. Um limiter que falha fechado
// derrubaria a API inteira junto com o store; não "conserte" isso sem
// entender a troca de disponibilidade.
type LimiterService struct {
	Store  domain.KV
	Window time.Duration     // padrão: DefaultWindow
	Limits domain.PlanLimits // padrão: domain.DefaultPlanLimits()
	Logger *log.Logger       // padrão: logger global

	// hooks para testes determinísticos
	Now   func() time.Time
	Nonce func() string
}

func (s *LimiterService) clock() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *LimiterService) nonce() string {
	if s.Nonce != nil {
		return s.Nonce()
	}
	return uuid.NewString()
}

func (s *LimiterService) window() time.Duration {
	if s.Window > 0 {
		return s.Window
	}
	return DefaultWindow
}

func (s *LimiterService) limits() domain.PlanLimits {
	if s.Limits != nil {
		return s.Limits
	}
	return domain.DefaultPlanLimits()
}

func (s *LimiterService) logf(format string, args ...any) {
	if s.Logger != nil {
		s.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// failOpen monta a decisão permissiva usada quando o store falhou.
func (s *LimiterService) failOpen(op, identity string, limit int, now time.Time, err error) domain.Decision {
	s.logf("limiter: store error on %s for %q: %v", op, identity, err)
	return domain.Decision{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit,
		ResetAt:   now.Add(s.window()),
		Err:       err,
	}
}

// CheckLimit aplica a janela deslizante do plano à identidade.
//
// Sequência: purga entradas fora da janela, conta, e se couber insere o novo
// membro (timestamp+nonce) renovando o TTL. São três/quatro round trips NÃO
// atômicos: sob concorrência o limite pode vazar por até o número de
// requisições em voo da mesma identidade. Limitação conhecida e aceita —
// fechar a janela exigiria script no servidor.
func (s *LimiterService) CheckLimit(ctx context.Context, identity string, plan domain.Plan) domain.Decision {
	now := s.clock()
	window := s.window()
	limit := s.limits().Limit(plan)
	key := domain.RateLimitKey(identity)

	windowStart := now.Add(-window)
	if _, err := s.Store.ZRemRangeByScore(ctx, key, 0, float64(windowStart.UnixMilli())); err != nil {
		return s.failOpen("zremrangebyscore", identity, limit, now, err)
	}

	count, err := s.Store.ZCard(ctx, key)
	if err != nil {
		return s.failOpen("zcard", identity, limit, now, err)
	}

	if count >= int64(limit) {
		// reset calculado a partir do membro mais antigo que ainda conta:
		// é exatamente quando uma vaga abre
		resetAt := now.Add(window)
		if oldest, err := s.Store.ZRangeWithScores(ctx, key, 0, 0); err == nil && len(oldest) > 0 {
			resetAt = time.UnixMilli(int64(oldest[0].Score)).Add(window)
		}
		retryAfter := resetAt.Sub(now)
		if retryAfter <= 0 {
			retryAfter = time.Second
		}
		return domain.Decision{
			Allowed:    false,
			Limit:      limit,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: retryAfter,
		}
	}

	member := strconv.FormatInt(now.UnixMilli(), 10) + "-" + s.nonce()
	if _, err := s.Store.ZAdd(ctx, key, float64(now.UnixMilli()), member); err != nil {
		return s.failOpen("zadd", identity, limit, now, err)
	}

	dec := domain.Decision{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - int(count) - 1,
		ResetAt:   now.Add(window),
	}
	if _, err := s.Store.Expire(ctx, key, window+windowTTLBuffer); err != nil {
		// a entrada já foi gravada e a decisão vale; só registra
		s.logf("limiter: store error on expire for %q: %v", identity, err)
		dec.Err = err
	}
	return dec
}

// CheckDailyLimit aplica um teto absoluto por dia-calendário (UTC),
// independente da janela por minuto. dailyLimit <= 0 desliga o teto.
//
// É uma janela fixa: contador inteiro por dia com TTL de ~25h. Mesma política
// fail-open do CheckLimit.
func (s *LimiterService) CheckDailyLimit(ctx context.Context, identity string, dailyLimit int) domain.Decision {
	now := s.clock()
	if dailyLimit <= 0 {
		return domain.Decision{Allowed: true, Limit: dailyLimit}
	}

	key := domain.DailyLimitKey(identity, now)
	count, err := s.Store.Incr(ctx, key)
	if err != nil {
		s.logf("limiter: store error on daily incr for %q: %v", identity, err)
		return domain.Decision{
			Allowed:   true,
			Limit:     dailyLimit,
			Remaining: dailyLimit,
			ResetAt:   domain.NextMidnightUTC(now),
			Err:       err,
		}
	}
	if count == 1 {
		if _, err := s.Store.Expire(ctx, key, dailyCounterTTL); err != nil {
			s.logf("limiter: store error on daily expire for %q: %v", identity, err)
		}
	}

	resetAt := domain.NextMidnightUTC(now)
	if count > int64(dailyLimit) {
		retryAfter := resetAt.Sub(now)
		if retryAfter <= 0 {
			retryAfter = time.Second
		}
		return domain.Decision{
			Allowed:    false,
			Limit:      dailyLimit,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: retryAfter,
		}
	}
	return domain.Decision{
		Allowed:   true,
		Limit:     dailyLimit,
		Remaining: dailyLimit - int(count),
		ResetAt:   resetAt,
	}
}
