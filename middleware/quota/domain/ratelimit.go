package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import "time"

// Key identifica o cliente para fins de limite e uso
// (ex: user id, hash da API key).
type Key string

// Decision é o resultado de uma checagem de limite.
//
// Err carrega um eventual erro de infraestrutura que foi absorvido pela
// política fail-open: quando o store está fora, a decisão é Allowed=true e
// Err fica preenchido para observabilidade. Quem chama nunca precisa tratar
// Err para decidir o fluxo — só para alertar/medir.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int

	// ResetAt é quando a janela abre de novo (capacidade liberada).
	ResetAt time.Time
	// RetryAfter é o valor recomendado para o header Retry-After ao bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration

	Err error
}
