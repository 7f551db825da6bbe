package quota

import (
	"net/http"
	"time"

	"verity-gateway/middleware/quota/application"
	"verity-gateway/middleware/quota/infra"
)

type ConcurrencyOptions struct {
	Max          int
	RejectStatus int
	MaxWait      time.Duration
}

// ConcurrencyMiddleware limita quantas requisições atravessam o proxy ao
// mesmo tempo. Max <= 0 desliga o limite.
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}

	svc := application.ConcurrencyService{
		Pool:    infra.NewChanPool(opts.Max),
		MaxWait: opts.MaxWait,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, ok := svc.Acquire(r.Context())
			if !ok {
				http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
