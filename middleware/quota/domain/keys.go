package domain

import "time"

// Convenções de nomes de chaves no store.
//
// ATENÇÃO: esses formatos são contrato com dados já existentes em produção
// (dashboard e billing leem as mesmas chaves). Não mudar sem migração.

const (
	layoutDay   = "2006-01-02"
	layoutMonth = "2006-01"
)

// FormatDay formata a data no padrão YYYY-MM-DD (UTC) usado nas chaves.
func FormatDay(t time.Time) string { return t.UTC().Format(layoutDay) }

// FormatMonth formata a data no padrão YYYY-MM (UTC) usado nas chaves.
func FormatMonth(t time.Time) string { return t.UTC().Format(layoutMonth) }

// RateLimitKey é o sorted set da janela deslizante por identidade.
func RateLimitKey(identity string) string { return "rate_limit:" + identity }

// DailyLimitKey é o contador inteiro do teto diário (janela fixa por dia).
func DailyLimitKey(identity string, day time.Time) string {
	return "daily_limit:" + identity + ":" + FormatDay(day)
}

// MonthlyUsageKey é o hash de uso do mês corrente.
func MonthlyUsageKey(identity string, t time.Time) string {
	return "usage:" + identity + ":" + FormatMonth(t)
}

// DailyUsageKey é o contador escalar de uso do dia.
func DailyUsageKey(identity string, day time.Time) string {
	return "usage:" + identity + ":" + FormatDay(day)
}

// APIKeyCacheKey guarda o resultado de validação de uma API key (hasheada).
func APIKeyCacheKey(keyHash string) string { return "api_key:" + keyHash }

// VerificationCacheKey guarda o resultado de verificação de um claim (hasheado).
func VerificationCacheKey(claimHash string) string { return "verification:" + claimHash }
