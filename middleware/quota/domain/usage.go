package domain

import (
	"strconv"
	"strings"
	"time"
)

// Campos do hash mensal de uso.
const (
	FieldTotalCount     = "total_count"
	FieldTotalCostCents = "total_cost_cents"

	categorySuffix = "_count"
)

// MonthlyUsage é o registro consolidado do mês para uma identidade.
//
// Err carrega um eventual erro de leitura do store (fail-open: o registro
// vem zerado e o dashboard degrada para "sem uso" em vez de quebrar).
type MonthlyUsage struct {
	Identity       string
	Month          string // YYYY-MM
	TotalCount     int64
	TotalCostCents int64
	ByCategory     map[string]int64

	Err error
}

// CostDollars expõe o custo em dólares para exibição.
func (u MonthlyUsage) CostDollars() float64 {
	return float64(u.TotalCostCents) / 100
}

// Count retorna o contador de uma categoria específica (0 se nunca usada).
func (u MonthlyUsage) Count(category string) int64 {
	return u.ByCategory[category]
}

// MonthlyUsageFromHash monta o registro a partir do hash cru do store.
// Hash ausente/vazio vira registro zerado; campos malformados são ignorados.
func MonthlyUsageFromHash(identity, month string, h map[string]string) MonthlyUsage {
	u := MonthlyUsage{
		Identity:   identity,
		Month:      month,
		ByCategory: make(map[string]int64),
	}
	for field, raw := range h {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		switch field {
		case FieldTotalCount:
			u.TotalCount = n
		case FieldTotalCostCents:
			u.TotalCostCents = n
		default:
			if cat, ok := strings.CutSuffix(field, categorySuffix); ok && cat != "" {
				u.ByCategory[cat] = n
			}
		}
	}
	return u
}

// CategoryField é o nome do campo no hash para uma categoria
// (ex: "standard" -> "standard_count").
func CategoryField(category string) string { return category + categorySuffix }

// DailyUsage é um ponto da série diária usada nos gráficos do dashboard.
type DailyUsage struct {
	Date  string `json:"date"` // YYYY-MM-DD
	Count int64  `json:"count"`
}

// CostTable mapeia categoria de verificação -> custo em centavos por chamada.
type CostTable map[string]int64

// DefaultCostTable é a tabela de preços por tipo de verificação.
// Fonte única: quem chama Track pode passar custo explícito, mas o padrão
// sai daqui.
func DefaultCostTable() CostTable {
	return CostTable{
		"standard": 6,
		"detailed": 15,
		"realtime": 10,
		"batch":    3,
	}
}

// CostCents retorna o custo da categoria; desconhecida cobra como standard.
func (ct CostTable) CostCents(category string) int64 {
	if c, ok := ct[category]; ok {
		return c
	}
	return ct["standard"]
}

// NextMidnightUTC retorna a próxima virada de dia em UTC — quando a janela
// fixa diária reabre.
func NextMidnightUTC(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}
