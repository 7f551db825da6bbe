// Package domain define contratos e tipos de domínio para rate limit,
// contabilização de uso e cache de resultados do gateway Verity.
//
// Este pacote não depende de net/http nem de implementações concretas.
// A intenção é permitir testes de unidade puros e desacoplar regras de negócio
// de detalhes de infraestrutura (Redis, REST, memória).
package domain
