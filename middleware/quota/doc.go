// Package quota fornece adapters HTTP (net/http) para a camada de quota do
// gateway Verity: rate limit por plano, teto diário, limite de concorrência,
// contabilização de uso e cache de resultados de verificação.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (janela deslizante, teto diário, uso, cache)
//   - infra: implementações concretas de domain.KV (REST, go-redis, memória)
//     e guardas locais (token bucket, semáforo)
//   - quota (este pacote): middlewares HTTP + extração de chave/plano +
//     tradução para status/headers + métricas Prometheus
//
// Fluxo no gateway:
//
//  1. Extrai a identidade do cliente (header/XFF/IP) e o plano
//  2. Guarda local de rajada (opcional, sem round trip ao store)
//  3. Janela deslizante compartilhada decide allow/deny (fail-open)
//  4. Teto diário absoluto (opcional)
//  5. Cache de verificação encurta o round trip ao upstream
//  6. Resposta com sucesso registra o evento de uso para billing/dashboard
//
// Variáveis de ambiente do binário gateway (cmd/gateway) controlam o
// comportamento, como STORE_BACKEND, RATE_WINDOW, DAILY_LIMIT e LOCAL_RPS.
package quota
