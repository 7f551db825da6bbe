package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"verity-gateway/middleware/quota"
	"verity-gateway/middleware/quota/application"
	"verity-gateway/middleware/quota/infra"
)

// Exemplo: servidor de verificação de claims com a camada de quota injetada
// diretamente (sem proxy). Usa o store em memória e uma base local de
// conhecimento — serve de upstream de demonstração para o gateway.
func main() {
	store := infra.NewMemoryStore()
	limiter := &application.LimiterService{Store: store}
	usage := &application.UsageService{Store: store}
	cache := &application.CacheService{Store: store}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/verify", verifyHandler())

	h := http.Handler(mux)
	h = quota.CacheMiddleware(quota.CacheOptions{Cache: cache})(h)
	h = quota.ConcurrencyMiddleware(quota.ConcurrencyOptions{Max: 50})(h)
	h = quota.Middleware(quota.Options{
		Limiter:             limiter,
		Usage:               usage,
		KeyHeader:           "X-Api-Key", // ou vazio para usar IP
		PlanHeader:          "X-Verity-Plan",
		TrustXForwardedFor:  true,
		AddRateLimitHeaders: true,
	})(h)

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("example verification server listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

// verifyHandler responde com veredictos da base local de conhecimento —
// o mesmo papel do fallback usado quando o serviço real está indisponível.
func verifyHandler() http.HandlerFunc {
	type request struct {
		Claim string `json:"claim"`
	}
	type response struct {
		Claim   string   `json:"claim"`
		Verdict string   `json:"verdict"`
		Score   float64  `json:"score"`
		Sources []string `json:"sources"`
	}

	// base local mínima: claim normalizada -> veredicto
	known := map[string]response{
		"a terra é redonda": {Verdict: "true", Score: 0.99, Sources: []string{"local-kb"}},
		"vacinas causam autismo": {Verdict: "false", Score: 0.01, Sources: []string{"local-kb"}},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Claim) == "" {
			http.Error(w, "claim is required", http.StatusBadRequest)
			return
		}

		resp, ok := known[strings.ToLower(strings.TrimSpace(req.Claim))]
		if !ok {
			resp = response{Verdict: "unverified", Score: 0.5, Sources: nil}
		}
		resp.Claim = req.Claim

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Printf("encode error: %v", err)
		}
	}
}
