package application

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"verity-gateway/middleware/quota/domain"
	"verity-gateway/middleware/quota/infra"
)

var errDown = errors.New("store down")

// errStore simula o store completamente fora do ar.
type errStore struct{}

func (errStore) Get(context.Context, string) (string, bool, error) { return "", false, errDown }
func (errStore) Set(context.Context, string, string, domain.SetOptions) (bool, error) {
	return false, errDown
}
func (errStore) Incr(context.Context, string) (int64, error)          { return 0, errDown }
func (errStore) IncrBy(context.Context, string, int64) (int64, error) { return 0, errDown }
func (errStore) Expire(context.Context, string, time.Duration) (bool, error) {
	return false, errDown
}
func (errStore) TTL(context.Context, string) (time.Duration, error) { return 0, errDown }
func (errStore) Del(context.Context, ...string) (int64, error)      { return 0, errDown }
func (errStore) ZAdd(context.Context, string, float64, string) (int64, error) {
	return 0, errDown
}
func (errStore) ZRemRangeByScore(context.Context, string, float64, float64) (int64, error) {
	return 0, errDown
}
func (errStore) ZCard(context.Context, string) (int64, error) { return 0, errDown }
func (errStore) ZRange(context.Context, string, int64, int64) ([]string, error) {
	return nil, errDown
}
func (errStore) ZRangeWithScores(context.Context, string, int64, int64) ([]domain.ZMember, error) {
	return nil, errDown
}
func (errStore) HSet(context.Context, string, string, string) error { return errDown }
func (errStore) HGet(context.Context, string, string) (string, bool, error) {
	return "", false, errDown
}
func (errStore) HGetAll(context.Context, string) (map[string]string, error) { return nil, errDown }
func (errStore) HIncrBy(context.Context, string, string, int64) (int64, error) {
	return 0, errDown
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, time.March, 7, 12, 0, 0, 0, time.UTC)}
}

// silencia o log dos testes de fail-open
var quietLog = log.New(io.Discard, "", 0)

func newLimiter(clock *testClock) (*LimiterService, *infra.MemoryStore) {
	store := infra.NewMemoryStore(infra.WithClock(clock.Now))
	svc := &LimiterService{Store: store, Now: clock.Now, Logger: quietLog}
	return svc, store
}

func TestLimiterService_FreePlanScenario(t *testing.T) {
	clock := newTestClock()
	svc, _ := newLimiter(clock)
	ctx := context.Background()

	// free = 10/min: remaining deve contar 9,8,...,0
	for i := 0; i < 10; i++ {
		dec := svc.CheckLimit(ctx, "u1", domain.PlanFree)
		if !dec.Allowed {
			t.Fatalf("expected call %d to be allowed", i+1)
		}
		if want := 9 - i; dec.Remaining != want {
			t.Fatalf("expected remaining=%d on call %d, got %d", want, i+1, dec.Remaining)
		}
		if dec.Limit != 10 {
			t.Fatalf("expected limit=10, got %d", dec.Limit)
		}
		clock.Advance(10 * time.Millisecond)
	}

	dec := svc.CheckLimit(ctx, "u1", domain.PlanFree)
	if dec.Allowed {
		t.Fatalf("expected 11th call to be denied")
	}
	if dec.RetryAfter <= 0 {
		t.Fatalf("expected RetryAfter > 0, got %s", dec.RetryAfter)
	}
	if dec.Remaining != 0 {
		t.Fatalf("expected remaining=0 when denied, got %d", dec.Remaining)
	}
}

func TestLimiterService_EveryPlanExhaustsExactlyAtLimit(t *testing.T) {
	limits := domain.DefaultPlanLimits()
	for plan, limit := range limits {
		clock := newTestClock()
		svc, _ := newLimiter(clock)
		ctx := context.Background()
		identity := "plan-" + string(plan)

		for i := 0; i < limit; i++ {
			if dec := svc.CheckLimit(ctx, identity, plan); !dec.Allowed {
				t.Fatalf("plan %q: expected call %d/%d to be allowed", plan, i+1, limit)
			}
		}
		if dec := svc.CheckLimit(ctx, identity, plan); dec.Allowed {
			t.Fatalf("plan %q: expected call %d to be denied", plan, limit+1)
		}
	}
}

func TestLimiterService_WindowElapseReallows(t *testing.T) {
	clock := newTestClock()
	svc, _ := newLimiter(clock)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		svc.CheckLimit(ctx, "u1", domain.PlanFree)
	}
	if dec := svc.CheckLimit(ctx, "u1", domain.PlanFree); dec.Allowed {
		t.Fatalf("expected denial at limit")
	}

	// janela inteira passa: capacidade volta sozinha, sem reset manual
	clock.Advance(61 * time.Second)
	if dec := svc.CheckLimit(ctx, "u1", domain.PlanFree); !dec.Allowed {
		t.Fatalf("expected allow after window elapsed, err=%v", dec.Err)
	}
}

func TestLimiterService_ResetComesFromOldestMember(t *testing.T) {
	clock := newTestClock()
	svc, _ := newLimiter(clock)
	ctx := context.Background()
	start := clock.Now()

	// primeira requisição em t0, as outras 9 em t0+30s
	svc.CheckLimit(ctx, "u1", domain.PlanFree)
	clock.Advance(30 * time.Second)
	for i := 0; i < 9; i++ {
		svc.CheckLimit(ctx, "u1", domain.PlanFree)
	}

	dec := svc.CheckLimit(ctx, "u1", domain.PlanFree)
	if dec.Allowed {
		t.Fatalf("expected denial")
	}
	// a vaga abre quando o membro mais antigo (t0) sai da janela: t0+60s
	if want := start.Add(60 * time.Second); !dec.ResetAt.Equal(want) {
		t.Fatalf("expected ResetAt=%s, got %s", want, dec.ResetAt)
	}
	if dec.RetryAfter != 30*time.Second {
		t.Fatalf("expected RetryAfter=30s, got %s", dec.RetryAfter)
	}
}

func TestLimiterService_FailOpenOnStoreError(t *testing.T) {
	svc := &LimiterService{Store: errStore{}, Logger: quietLog}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		dec := svc.CheckLimit(ctx, "u1", domain.PlanFree)
		if !dec.Allowed {
			t.Fatalf("expected fail-open allow, got denial")
		}
		if dec.Err == nil {
			t.Fatalf("expected Err to carry the store error")
		}
	}
}

func TestLimiterService_WindowKeyGetsTTLWithBuffer(t *testing.T) {
	clock := newTestClock()
	svc, store := newLimiter(clock)
	ctx := context.Background()

	svc.CheckLimit(ctx, "u1", domain.PlanFree)

	ttl, err := store.TTL(ctx, domain.RateLimitKey("u1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ttl != 70*time.Second {
		t.Fatalf("expected ttl=70s (janela+folga), got %s", ttl)
	}
}

func TestLimiterService_DailyLimitFixedWindow(t *testing.T) {
	clock := newTestClock()
	svc, store := newLimiter(clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		dec := svc.CheckDailyLimit(ctx, "u1", 3)
		if !dec.Allowed {
			t.Fatalf("expected call %d to pass daily cap", i+1)
		}
		if want := 2 - i; dec.Remaining != want {
			t.Fatalf("expected remaining=%d, got %d", want, dec.Remaining)
		}
	}

	dec := svc.CheckDailyLimit(ctx, "u1", 3)
	if dec.Allowed {
		t.Fatalf("expected 4th call to hit daily cap")
	}
	if want := time.Date(2025, time.March, 8, 0, 0, 0, 0, time.UTC); !dec.ResetAt.Equal(want) {
		t.Fatalf("expected reset at next UTC midnight, got %s", dec.ResetAt)
	}

	ttl, _ := store.TTL(ctx, domain.DailyLimitKey("u1", clock.Now()))
	if ttl != 25*time.Hour {
		t.Fatalf("expected daily counter ttl=25h, got %s", ttl)
	}
}

func TestLimiterService_DailyLimitZeroDisables(t *testing.T) {
	clock := newTestClock()
	svc, _ := newLimiter(clock)

	if dec := svc.CheckDailyLimit(context.Background(), "u1", 0); !dec.Allowed {
		t.Fatalf("expected daily cap disabled with limit=0")
	}
}

func TestLimiterService_DailyLimitFailOpen(t *testing.T) {
	svc := &LimiterService{Store: errStore{}, Logger: quietLog}

	dec := svc.CheckDailyLimit(context.Background(), "u1", 5)
	if !dec.Allowed || dec.Err == nil {
		t.Fatalf("expected fail-open allow with Err, got allowed=%v err=%v", dec.Allowed, dec.Err)
	}
}
