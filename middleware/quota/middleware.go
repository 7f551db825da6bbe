package quota

import (
	"net"
	"net/http"
	"strings"

	"verity-gateway/middleware/quota/application"
	"verity-gateway/middleware/quota/domain"
	"verity-gateway/middleware/quota/infra"
)

type KeyFunc func(r *http.Request) string

type PlanFunc func(r *http.Request) domain.Plan

type CategoryFunc func(r *http.Request) string

type Options struct {
	Limiter *application.LimiterService
	Usage   *application.UsageService
	// Local é o guarda de rajada em processo (opcional): corta rajadas
	// óbvias antes de gastar round trips no store compartilhado.
	Local *infra.LocalStore

	KeyFn      KeyFunc
	PlanFn     PlanFunc
	CategoryFn CategoryFunc

	KeyHeader          string
	PlanHeader         string
	TrustXForwardedFor bool

	// DailyLimit é o teto absoluto por dia-calendário (0 desliga).
	DailyLimit int

	RejectStatus        int
	AddRateLimitHeaders bool
}

func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			// pega o primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				parts := strings.Split(xff, ",")
				if len(parts) > 0 {
					ip := strings.TrimSpace(parts[0])
					if ip != "" {
						return ip
					}
				}
			}
		}

		// fallback: RemoteAddr
		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

// DefaultPlanFunc resolve o plano a partir de um header (injetado pela camada
// de autenticação, que já validou a API key). Ausente/vazio vira free.
func DefaultPlanFunc(planHeader string) PlanFunc {
	return func(r *http.Request) domain.Plan {
		if planHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(planHeader)); v != "" {
				return domain.Plan(v)
			}
		}
		return domain.PlanFree
	}
}

// statusRecorder captura o status para decidir se o evento vira uso cobrável.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func retryAfterSeconds(dec domain.Decision) string {
	secs := int(dec.RetryAfter.Seconds())
	if secs < 1 {
		secs = 1
	}
	return formatInt(secs)
}

// Middleware aplica, nesta ordem: guarda local de rajada, janela deslizante
// do plano e teto diário. Requisições que terminam sem erro de servidor nem
// rejeição viram evento de uso (billing/dashboard).
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.PlanFn == nil {
		opts.PlanFn = DefaultPlanFunc(opts.PlanHeader)
	}
	if opts.CategoryFn == nil {
		opts.CategoryFn = func(*http.Request) string { return "standard" }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.KeyFn(r)
			plan := opts.PlanFn(r)

			if opts.Local != nil && !opts.Local.Allow(key) {
				localRejectCounter.Inc()
				w.Header().Set("Retry-After", "1")
				http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
				return
			}

			var dec domain.Decision
			if opts.Limiter != nil {
				dec = opts.Limiter.CheckLimit(r.Context(), key, plan)
			} else {
				dec = domain.Decision{Allowed: true}
			}
			observeDecision(plan, dec.Allowed)
			if dec.Err != nil {
				observeStoreError("limiter")
			}

			if opts.AddRateLimitHeaders {
				w.Header().Set("X-RateLimit-Key", key)
				w.Header().Set("X-RateLimit-Limit", formatInt(dec.Limit))
				w.Header().Set("X-RateLimit-Remaining", formatInt(dec.Remaining))
				if !dec.ResetAt.IsZero() {
					w.Header().Set("X-RateLimit-Reset", formatInt64(dec.ResetAt.Unix()))
				}
				if opts.Local != nil {
					w.Header().Set("X-RateLimit-Local-RPS", formatFloat(opts.Local.RPS()))
					w.Header().Set("X-RateLimit-Local-Burst", formatInt(opts.Local.Burst()))
				}
			}

			if !dec.Allowed {
				w.Header().Set("Retry-After", retryAfterSeconds(dec))
				http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
				return
			}

			if opts.DailyLimit > 0 && opts.Limiter != nil {
				daily := opts.Limiter.CheckDailyLimit(r.Context(), key, opts.DailyLimit)
				if daily.Err != nil {
					observeStoreError("limiter")
				}
				if !daily.Allowed {
					w.Header().Set("Retry-After", retryAfterSeconds(daily))
					http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
					return
				}
			}

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			// uso só conta quando a chamada de fato serviu o cliente
			if opts.Usage != nil && rec.status < http.StatusBadRequest {
				if opts.Usage.Track(r.Context(), key, opts.CategoryFn(r), -1) {
					usageEventCounter.Inc()
				} else {
					observeStoreError("usage")
				}
			}
		})
	}
}
