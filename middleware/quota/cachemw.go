package quota

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"
	"time"

	"verity-gateway/middleware/quota/application"
)

type CacheOptions struct {
	Cache *application.CacheService
	// TTL da entrada (0 usa o padrão de verificação do CacheService).
	TTL time.Duration
	// PathPrefix limita o cache às rotas de verificação.
	PathPrefix string
	// MaxBodyBytes protege memória contra claims/respostas gigantes.
	MaxBodyBytes int64
}

// claimHash endereça o cache pelo conteúdo: sha256 do corpo (claim) com
// espaços das pontas removidos. Mesma claim => mesma chave, independente do
// cliente.
func claimHash(body []byte) string {
	sum := sha256.Sum256(bytes.TrimSpace(body))
	return hex.EncodeToString(sum[:])
}

// captureWriter espelha a resposta num buffer para poder cachear depois.
type captureWriter struct {
	http.ResponseWriter
	status   int
	buf      bytes.Buffer
	limit    int64
	overflow bool
}

func (w *captureWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *captureWriter) Write(p []byte) (int, error) {
	if !w.overflow {
		if int64(w.buf.Len()+len(p)) > w.limit {
			w.overflow = true
			w.buf.Reset()
		} else {
			w.buf.Write(p)
		}
	}
	return w.ResponseWriter.Write(p)
}

// CacheMiddleware encurta chamadas de verificação repetidas: POST no
// PathPrefix com o mesmo conteúdo devolve a resposta cacheada sem tocar o
// upstream. Só respostas 200 JSON entram no cache.
func CacheMiddleware(opts CacheOptions) func(next http.Handler) http.Handler {
	if opts.Cache == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.PathPrefix == "" {
		opts.PathPrefix = "/api/verify"
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || !strings.HasPrefix(r.URL.Path, opts.PathPrefix) {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, opts.MaxBodyBytes+1))
			if err != nil || int64(len(body)) > opts.MaxBodyBytes {
				// corpo grande/quebrado: repõe o que foi lido e segue sem cache
				r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), r.Body))
				next.ServeHTTP(w, r)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			hash := claimHash(body)
			cached, cerr := opts.Cache.CachedVerification(r.Context(), hash)
			switch {
			case cerr != nil:
				observeCache("error")
				observeStoreError("cache")
			case cached != nil:
				observeCache("hit")
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-Verity-Cache", "HIT")
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write(cached)
				return
			default:
				observeCache("miss")
			}

			rec := &captureWriter{ResponseWriter: w, status: http.StatusOK, limit: opts.MaxBodyBytes}
			rec.Header().Set("X-Verity-Cache", "MISS")
			next.ServeHTTP(rec, r)

			ct := rec.Header().Get("Content-Type")
			if rec.status == http.StatusOK && !rec.overflow && strings.HasPrefix(ct, "application/json") {
				opts.Cache.CacheVerification(r.Context(), hash, rec.buf.Bytes(), opts.TTL)
			}
		})
	}
}
