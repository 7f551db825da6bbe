package application

import (
	"context"
	"testing"
	"time"

	"verity-gateway/middleware/quota/domain"
	"verity-gateway/middleware/quota/infra"
)

func newUsage(clock *testClock) (*UsageService, *infra.MemoryStore) {
	store := infra.NewMemoryStore(infra.WithClock(clock.Now))
	svc := &UsageService{Store: store, Now: clock.Now, Logger: quietLog}
	return svc, store
}

func TestUsageService_TrackAccumulatesMonthly(t *testing.T) {
	clock := newTestClock()
	svc, _ := newUsage(clock)
	ctx := context.Background()

	const n = 5
	for i := 0; i < n; i++ {
		if !svc.Track(ctx, "u1", "standard", 6) {
			t.Fatalf("expected track %d to succeed", i+1)
		}
	}

	u := svc.Monthly(ctx, "u1")
	if u.Err != nil {
		t.Fatalf("unexpected err: %v", u.Err)
	}
	if u.TotalCount != n {
		t.Fatalf("expected total_count=%d, got %d", n, u.TotalCount)
	}
	if u.Count("standard") != n {
		t.Fatalf("expected standard_count=%d, got %d", n, u.Count("standard"))
	}
	if u.TotalCostCents != 6*n {
		t.Fatalf("expected total_cost_cents=%d, got %d", 6*n, u.TotalCostCents)
	}
	if u.CostDollars() != 0.30 {
		t.Fatalf("expected $0.30, got %v", u.CostDollars())
	}
}

func TestUsageService_TrackUsesCostTableWhenNegative(t *testing.T) {
	clock := newTestClock()
	svc, _ := newUsage(clock)
	ctx := context.Background()

	svc.Track(ctx, "u1", "detailed", -1)
	svc.Track(ctx, "u1", "", -1) // categoria vazia vira standard

	u := svc.Monthly(ctx, "u1")
	// detailed=15 + standard=6 pela tabela padrão
	if u.TotalCostCents != 21 {
		t.Fatalf("expected cost from table (21), got %d", u.TotalCostCents)
	}
	if u.Count("detailed") != 1 || u.Count("standard") != 1 {
		t.Fatalf("unexpected categories: %#v", u.ByCategory)
	}
}

func TestUsageService_TrackSetsRetentionTTLs(t *testing.T) {
	clock := newTestClock()
	svc, store := newUsage(clock)
	ctx := context.Background()

	svc.Track(ctx, "u1", "standard", 6)

	if ttl, _ := store.TTL(ctx, domain.MonthlyUsageKey("u1", clock.Now())); ttl != 35*24*time.Hour {
		t.Fatalf("expected monthly ttl=35d, got %s", ttl)
	}
	if ttl, _ := store.TTL(ctx, domain.DailyUsageKey("u1", clock.Now())); ttl != 48*time.Hour {
		t.Fatalf("expected daily ttl=48h, got %s", ttl)
	}
}

func TestUsageService_DailyAlwaysReturnsFullSeries(t *testing.T) {
	clock := newTestClock()
	svc, _ := newUsage(clock)
	ctx := context.Background()

	series := svc.Daily(ctx, "nunca-usou", 7)
	if len(series) != 7 {
		t.Fatalf("expected 7 entries, got %d", len(series))
	}
	for i, p := range series {
		if p.Count != 0 {
			t.Fatalf("expected zero count on day %d, got %d", i, p.Count)
		}
	}
	// ordem cronológica: mais antigo primeiro, terminando hoje
	if series[0].Date != "2025-03-01" || series[6].Date != "2025-03-07" {
		t.Fatalf("unexpected date range: %s .. %s", series[0].Date, series[6].Date)
	}
	for i := 1; i < len(series); i++ {
		if series[i].Date <= series[i-1].Date {
			t.Fatalf("expected ascending dates, got %s after %s", series[i].Date, series[i-1].Date)
		}
	}
}

func TestUsageService_DailyCountsLandOnTheRightDay(t *testing.T) {
	clock := newTestClock()
	svc, _ := newUsage(clock)
	ctx := context.Background()

	// dois eventos anteontem, um hoje
	clock.Advance(-48 * time.Hour)
	svc.Track(ctx, "u1", "standard", 6)
	svc.Track(ctx, "u1", "standard", 6)
	clock.Advance(48 * time.Hour)
	svc.Track(ctx, "u1", "standard", 6)

	series := svc.Daily(ctx, "u1", 3)
	if len(series) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(series))
	}
	if series[0].Count != 2 || series[1].Count != 0 || series[2].Count != 1 {
		t.Fatalf("unexpected counts: %#v", series)
	}
}

func TestUsageService_MonthlyFailOpenIsZeroRecord(t *testing.T) {
	svc := &UsageService{Store: errStore{}, Logger: quietLog}

	u := svc.Monthly(context.Background(), "u1")
	if u.Err == nil {
		t.Fatalf("expected Err to carry store error")
	}
	if u.TotalCount != 0 || u.TotalCostCents != 0 {
		t.Fatalf("expected zero record on store error, got %#v", u)
	}
}

func TestUsageService_DailyFailOpenIsZeroSeries(t *testing.T) {
	svc := &UsageService{Store: errStore{}, Logger: quietLog}

	series := svc.Daily(context.Background(), "u1", 7)
	if len(series) != 7 {
		t.Fatalf("expected full series even with store down, got %d", len(series))
	}
	for _, p := range series {
		if p.Count != 0 {
			t.Fatalf("expected zeros, got %#v", series)
		}
	}
}

func TestUsageService_TrackFailOpenReturnsFalse(t *testing.T) {
	svc := &UsageService{Store: errStore{}, Logger: quietLog}

	if svc.Track(context.Background(), "u1", "standard", 6) {
		t.Fatalf("expected Track to report failure with store down")
	}
}
