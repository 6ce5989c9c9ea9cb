// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - RedisWindowStore: janela deslizante compartilhada (sorted set + script Lua atômico)
//   - MemoryWindowStore: janela deslizante em memória, usada como fallback local
//   - RedisStatsStore/MemoryStatsStore: estatísticas best-effort das decisões
//   - SlotPool: semáforo sobre channel para o limite de requisições em voo
//   - PrometheusMetrics: contadores de negação por endpoint e tier
package infra
