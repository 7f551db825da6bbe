package domain

// Plan identifica o tier de assinatura de um cliente da API Verity.
type Plan string

const (
	PlanFree       Plan = "free"
	PlanStarter    Plan = "api_starter"
	PlanPayPerUse  Plan = "pay_per_use"
	PlanDeveloper  Plan = "api_developer"
	PlanPro        Plan = "api_pro"
	PlanBusiness   Plan = "api_business"
	PlanEnterprise Plan = "api_enterprise"
)

// PlanLimits mapeia plano -> requisições permitidas por janela de 60s.
type PlanLimits map[Plan]int

// DefaultPlanLimits retorna a tabela oficial de limites por plano.
//
// Os valores precisam bater com o que o painel/billing anuncia; enterprise é
// tratado como praticamente ilimitado (10k/min).
func DefaultPlanLimits() PlanLimits {
	return PlanLimits{
		PlanFree:       10,
		PlanStarter:    60,
		PlanPayPerUse:  60,
		PlanDeveloper:  120,
		PlanPro:        240,
		PlanBusiness:   600,
		PlanEnterprise: 10000,
	}
}

// Limit retorna o limite do plano. Plano desconhecido cai no free
// (o mais restritivo dos tiers públicos).
func (pl PlanLimits) Limit(p Plan) int {
	if n, ok := pl[p]; ok {
		return n
	}
	return pl[PlanFree]
}
