// Package ratelimit liga o limitador de janela deslizante e o teto de requisições
// em voo ao net/http do gateway.
//
// Camadas:
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (checagem multi-tier, classes de endpoint, acquire/timeout) sem net/http
//   - infra: implementações concretas (janela deslizante Redis/memória, semáforo, stats, métricas)
//   - ratelimit (este pacote): middlewares HTTP + resolução de identidade + tradução para status/headers
//
// Por requisição:
//
//   1) Resolve a identidade do cliente (usuário autenticado, XFF, RemoteAddr)
//   2) Pede a Decision ao application.Service
//   3) Se bloqueado, responde 429 (rate limit) ou 503 (concorrência) com error_code estável
//   4) Se permitido, chama o próximo handler
//
// O endpoint de processamento (/v1/process) não passa por este middleware: o dispatcher
// chama o mesmo Service depois de validar o payload, para manter a ordem
// validação -> rate limit -> envio.
package ratelimit
