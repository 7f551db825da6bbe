package domain

import "testing"

func TestDefaultPlanLimits_Table(t *testing.T) {
	limits := DefaultPlanLimits()

	want := map[Plan]int{
		PlanFree:       10,
		PlanStarter:    60,
		PlanPayPerUse:  60,
		PlanDeveloper:  120,
		PlanPro:        240,
		PlanBusiness:   600,
		PlanEnterprise: 10000,
	}
	for plan, n := range want {
		if got := limits.Limit(plan); got != n {
			t.Fatalf("expected limit %d for plan %q, got %d", n, plan, got)
		}
	}
}

func TestPlanLimits_UnknownPlanFallsBackToFree(t *testing.T) {
	limits := DefaultPlanLimits()

	if got := limits.Limit(Plan("plano-inventado")); got != limits.Limit(PlanFree) {
		t.Fatalf("expected free limit for unknown plan, got %d", got)
	}
}
