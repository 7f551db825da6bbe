// Package application contém os casos de uso da camada de quota do gateway
// Verity: janela deslizante por plano, teto diário, contabilização de uso e
// cache de resultados.
//
// Ele depende apenas do pacote domain e não conhece net/http. Todos os
// serviços seguem a mesma política fail-open: erro de infraestrutura degrada
// para permitir/zerar (com o erro exposto para observabilidade), nunca para
// bloquear tráfego ou quebrar o dashboard.
package application
