package application

import (
	"context"
	"log"
	"strconv"
	"time"

	"verity-gateway/middleware/quota/domain"
)

const (
	// retenção do hash mensal: mês + folga para reconciliação de billing
	monthlyRetention = 35 * 24 * time.Hour
	// retenção dos contadores diários: só o suficiente para os gráficos
	dailyRetention = 48 * time.Hour
)

// UsageService registra eventos faturáveis e responde consultas de uso para
// o dashboard.
//
// Escritas e leituras degradam em silêncio (fail-open): um store fora do ar
// não pode derrubar a API nem quebrar o dashboard — no pior caso o mês
// aparece zerado e o evento se perde, o que é reconciliável depois.
type UsageService struct {
	Store  domain.KV
	Costs  domain.CostTable // padrão: domain.DefaultCostTable()
	Logger *log.Logger

	// hook para testes determinísticos
	Now func() time.Time
}

func (s *UsageService) clock() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *UsageService) costs() domain.CostTable {
	if s.Costs != nil {
		return s.Costs
	}
	return domain.DefaultCostTable()
}

func (s *UsageService) logf(format string, args ...any) {
	if s.Logger != nil {
		s.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// Track registra um evento de uso: incrementa os campos do hash mensal
// (total, categoria, custo) e o contador escalar do dia, renovando os TTLs.
//
// costCents < 0 usa a tabela de preços; >= 0 sobrescreve (ex: desconto
// promocional aplicado pelo caller). Retorna false se alguma escrita falhou.
func (s *UsageService) Track(ctx context.Context, identity, category string, costCents int64) bool {
	if category == "" {
		category = "standard"
	}
	if costCents < 0 {
		costCents = s.costs().CostCents(category)
	}
	now := s.clock()
	ok := true

	monthKey := domain.MonthlyUsageKey(identity, now)
	if _, err := s.Store.HIncrBy(ctx, monthKey, domain.FieldTotalCount, 1); err != nil {
		s.logf("usage: store error on total for %q: %v", identity, err)
		ok = false
	}
	if _, err := s.Store.HIncrBy(ctx, monthKey, domain.CategoryField(category), 1); err != nil {
		s.logf("usage: store error on category %q for %q: %v", category, identity, err)
		ok = false
	}
	if _, err := s.Store.HIncrBy(ctx, monthKey, domain.FieldTotalCostCents, costCents); err != nil {
		s.logf("usage: store error on cost for %q: %v", identity, err)
		ok = false
	}
	if _, err := s.Store.Expire(ctx, monthKey, monthlyRetention); err != nil {
		s.logf("usage: store error on monthly expire for %q: %v", identity, err)
		ok = false
	}

	dayKey := domain.DailyUsageKey(identity, now)
	count, err := s.Store.Incr(ctx, dayKey)
	if err != nil {
		s.logf("usage: store error on daily incr for %q: %v", identity, err)
		return false
	}
	if count == 1 {
		if _, err := s.Store.Expire(ctx, dayKey, dailyRetention); err != nil {
			s.logf("usage: store error on daily expire for %q: %v", identity, err)
			ok = false
		}
	}
	return ok
}

// Monthly lê o consolidado do mês corrente. Hash inexistente ou store fora
// do ar viram registro zerado (com Err preenchido no segundo caso).
func (s *UsageService) Monthly(ctx context.Context, identity string) domain.MonthlyUsage {
	now := s.clock()
	month := domain.FormatMonth(now)

	h, err := s.Store.HGetAll(ctx, domain.MonthlyUsageKey(identity, now))
	u := domain.MonthlyUsageFromHash(identity, month, h)
	if err != nil {
		s.logf("usage: store error on monthly read for %q: %v", identity, err)
		u.Err = err
	}
	return u
}

// Daily devolve a série dos últimos `days` dias em ordem cronológica
// (mais antigo primeiro), sempre com exatamente `days` pontos — dias sem uso
// entram com count 0, nunca são omitidos (o gráfico precisa do eixo inteiro).
func (s *UsageService) Daily(ctx context.Context, identity string, days int) []domain.DailyUsage {
	if days <= 0 {
		days = 7
	}
	now := s.clock()

	out := make([]domain.DailyUsage, 0, days)
	for i := days - 1; i >= 0; i-- {
		day := now.AddDate(0, 0, -i)

		var count int64
		raw, found, err := s.Store.Get(ctx, domain.DailyUsageKey(identity, day))
		switch {
		case err != nil:
			s.logf("usage: store error on daily read for %q: %v", identity, err)
		case found:
			if n, perr := strconv.ParseInt(raw, 10, 64); perr == nil {
				count = n
			}
		}
		out = append(out, domain.DailyUsage{Date: domain.FormatDay(day), Count: count})
	}
	return out
}
