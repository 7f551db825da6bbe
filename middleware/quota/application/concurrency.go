package application

import (
	"context"
	"time"

	"verity-gateway/middleware/quota/domain"
)

// ConcurrencyService concentra a regra de aquisição/liberação de vagas com
// tempo máximo de espera, sem saber nada sobre HTTP.
type ConcurrencyService struct {
	Pool    domain.SlotPool
	MaxWait time.Duration
}

// Acquire tenta adquirir uma vaga.
// - Se `MaxWait <= 0`, espera indefinidamente (até ctx cancelar).
// - Se `MaxWait > 0`, espera até o timeout.
// Retorna (release, ok). Se ok=false, nenhuma vaga foi adquirida.
func (s ConcurrencyService) Acquire(ctx context.Context) (func(), bool) {
	if s.Pool == nil {
		return func() {}, true
	}

	if s.MaxWait <= 0 {
		return s.Pool.Acquire(ctx)
	}

	acqCtx, cancel := context.WithTimeout(ctx, s.MaxWait)
	defer cancel()
	return s.Pool.Acquire(acqCtx)
}
