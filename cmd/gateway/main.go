package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"verity-gateway/middleware/quota"
	"verity-gateway/middleware/quota/application"
	"verity-gateway/middleware/quota/domain"
	"verity-gateway/middleware/quota/infra"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func main() {
	// .env é conveniência de dev; em produção as vars vêm do ambiente
	_ = godotenv.Load()

	cfg, err := readConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	target, err := url.Parse(cfg.upstreamURL)
	if err != nil {
		log.Fatalf("invalid UPSTREAM_URL: %v", err)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Printf("proxy error: %v", err)
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		log.Fatalf("store error: %v", err)
	}
	defer closeStore()

	limiter := &application.LimiterService{Store: store, Window: cfg.window}
	usage := &application.UsageService{Store: store}
	cache := &application.CacheService{Store: store}

	var local *infra.LocalStore
	if cfg.localRPS > 0 {
		local = infra.NewLocalStore(cfg.localRPS, cfg.localBurst)
		local.StartJanitor(ctx)
	}

	h := http.Handler(proxy)
	if cfg.cacheEnabled {
		h = quota.CacheMiddleware(quota.CacheOptions{
			Cache:      cache,
			TTL:        cfg.cacheTTL,
			PathPrefix: cfg.cachePathPrefix,
		})(h)
	}
	h = quota.ConcurrencyMiddleware(quota.ConcurrencyOptions{
		Max:          cfg.concurrencyMax,
		RejectStatus: http.StatusServiceUnavailable,
		MaxWait:      cfg.concurrencyMaxWait,
	})(h)
	if cfg.rateEnabled {
		h = quota.Middleware(quota.Options{
			Limiter:             limiter,
			Usage:               usage,
			Local:               local,
			KeyHeader:           cfg.keyHeader,
			PlanHeader:          cfg.planHeader,
			TrustXForwardedFor:  cfg.trustXFF,
			DailyLimit:          cfg.dailyLimit,
			RejectStatus:        http.StatusTooManyRequests,
			AddRateLimitHeaders: cfg.addHeaders,
		})(h)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("GET /quota/usage", usageHandler(usage))
	mux.Handle("/", h)

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("gateway listening on %s -> %s", cfg.listenAddr, target)
	log.Printf("store: backend=%q window=%s dailyLimit=%d", cfg.storeBackend, cfg.window, cfg.dailyLimit)
	log.Printf("rate: enabled=%v keyHeader=%q planHeader=%q trustXFF=%v localRPS=%.3f", cfg.rateEnabled, cfg.keyHeader, cfg.planHeader, cfg.trustXFF, cfg.localRPS)
	log.Printf("cache: enabled=%v ttl=%s prefix=%q", cfg.cacheEnabled, cfg.cacheTTL, cfg.cachePathPrefix)
	log.Printf("concurrency: max=%d maxWait=%s", cfg.concurrencyMax, cfg.concurrencyMaxWait)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
}

// buildStore monta o domain.KV do backend configurado.
// A função de fechamento é no-op fora do backend redis.
func buildStore(ctx context.Context, cfg config) (domain.KV, func(), error) {
	noop := func() {}
	switch cfg.storeBackend {
	case "memory":
		return infra.NewMemoryStore(), noop, nil
	case "rest":
		if cfg.restURL == "" || cfg.restToken == "" {
			return nil, noop, errors.New("REST_URL and REST_TOKEN are required for STORE_BACKEND=rest")
		}
		return infra.NewRESTStore(cfg.restURL, cfg.restToken), noop, nil
	case "redis":
		if cfg.redisAddr == "" {
			return nil, noop, errors.New("REDIS_ADDR is required for STORE_BACKEND=redis")
		}
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.redisAddr,
			Password: cfg.redisPassword,
			DB:       cfg.redisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		cancel()
		if err != nil {
			_ = rdb.Close()
			return nil, noop, err
		}
		return infra.NewRedisStore(rdb), func() { _ = rdb.Close() }, nil
	default:
		return nil, noop, errors.New("STORE_BACKEND must be redis, rest or memory")
	}
}

// usageHandler expõe o consolidado mensal + série diária para o dashboard.
func usageHandler(usage *application.UsageService) http.HandlerFunc {
	type monthlyPayload struct {
		Identity       string           `json:"identity"`
		Month          string           `json:"month"`
		TotalCount     int64            `json:"total_count"`
		TotalCostCents int64            `json:"total_cost_cents"`
		CostDollars    float64          `json:"cost_dollars"`
		ByCategory     map[string]int64 `json:"by_category"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		identity := strings.TrimSpace(r.URL.Query().Get("identity"))
		if identity == "" {
			http.Error(w, "identity query param is required", http.StatusBadRequest)
			return
		}
		days := 7
		if v := r.URL.Query().Get("days"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 90 {
				days = n
			}
		}

		monthly := usage.Monthly(r.Context(), identity)
		resp := struct {
			Monthly monthlyPayload      `json:"monthly"`
			Daily   []domain.DailyUsage `json:"daily"`
		}{
			Monthly: monthlyPayload{
				Identity:       monthly.Identity,
				Month:          monthly.Month,
				TotalCount:     monthly.TotalCount,
				TotalCostCents: monthly.TotalCostCents,
				CostDollars:    monthly.CostDollars(),
				ByCategory:     monthly.ByCategory,
			},
			Daily: usage.Daily(r.Context(), identity, days),
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Printf("usage endpoint encode error: %v", err)
		}
	}
}

type config struct {
	listenAddr  string
	upstreamURL string

	storeBackend  string
	redisAddr     string
	redisPassword string
	redisDB       int
	restURL       string
	restToken     string

	rateEnabled bool
	window      time.Duration
	keyHeader   string
	planHeader  string
	trustXFF    bool
	addHeaders  bool
	dailyLimit  int

	localRPS   float64
	localBurst int

	cacheEnabled    bool
	cacheTTL        time.Duration
	cachePathPrefix string

	concurrencyMax     int
	concurrencyMaxWait time.Duration
}

func readConfig() (config, error) {
	cfg := config{}
	cfg.listenAddr = getenvDefault("LISTEN_ADDR", ":8080")
	cfg.upstreamURL = os.Getenv("UPSTREAM_URL")

	cfg.storeBackend = strings.ToLower(getenvDefault("STORE_BACKEND", "memory"))
	cfg.redisAddr = os.Getenv("REDIS_ADDR")
	cfg.redisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.redisDB = getenvIntDefault("REDIS_DB", 0)
	cfg.restURL = os.Getenv("REST_URL")
	cfg.restToken = os.Getenv("REST_TOKEN")

	cfg.rateEnabled = getenvBoolDefault("RATE_ENABLED", true)
	cfg.window = getenvDurationDefault("RATE_WINDOW", application.DefaultWindow)
	cfg.keyHeader = getenvDefault("KEY_HEADER", "X-Api-Key")
	cfg.planHeader = getenvDefault("PLAN_HEADER", "X-Verity-Plan")
	cfg.trustXFF = getenvBoolDefault("TRUST_XFF", false)
	cfg.addHeaders = getenvBoolDefault("ADD_RATELIMIT_HEADERS", true)
	cfg.dailyLimit = getenvIntDefault("DAILY_LIMIT", 0)

	cfg.localRPS = getenvFloatDefault("LOCAL_RPS", 0)
	cfg.localBurst = getenvIntDefault("LOCAL_BURST", 20)

	cfg.cacheEnabled = getenvBoolDefault("CACHE_ENABLED", true)
	cfg.cacheTTL = getenvDurationDefault("CACHE_TTL", application.DefaultVerificationTTL)
	cfg.cachePathPrefix = getenvDefault("CACHE_PATH_PREFIX", "/api/verify")

	cfg.concurrencyMax = getenvIntDefault("CONCURRENCY_MAX", 100)
	cfg.concurrencyMaxWait = getenvDurationDefault("CONCURRENCY_TIMEOUT", 0)

	if cfg.upstreamURL == "" {
		return config{}, errors.New("UPSTREAM_URL is required")
	}
	if cfg.window <= 0 {
		return config{}, errors.New("RATE_WINDOW must be > 0")
	}
	if cfg.localRPS > 0 && cfg.localBurst <= 0 {
		return config{}, errors.New("LOCAL_BURST must be > 0 when LOCAL_RPS is set")
	}
	if cfg.concurrencyMax < 0 {
		return config{}, errors.New("CONCURRENCY_MAX must be >= 0")
	}
	return cfg, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvFloatDefault(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
