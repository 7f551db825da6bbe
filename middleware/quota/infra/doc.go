// Package infra contém implementações concretas (infraestrutura) para os
// contratos definidos no pacote domain.
//
// Exemplos:
//   - RESTStore: domain.KV sobre um Redis exposto via REST (um POST por comando)
//   - RedisStore: domain.KV sobre go-redis
//   - MemoryStore: domain.KV em memória com relógio injetável (testes/dev)
//   - LocalStore: guarda de rajada em processo usando golang.org/x/time/rate
//   - ChanPool: semáforo simples para limite de concorrência
package infra
