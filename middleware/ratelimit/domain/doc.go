// Package domain reúne tiers, chaves, regras e decisões do limitador, além dos
// contratos de store (janela, stats) e do pool de vagas.
//
// Sem net/http e sem Redis aqui: os tipos separam as regras de janela
// deslizante (tiers, chaves, decisões) dos detalhes de infraestrutura (Redis, memória).
package domain
