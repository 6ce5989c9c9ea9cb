// Package dispatch recebe uma requisição de análise, aplica validação e rate limit,
// traduz o payload para o schema do destino e chama o backend sob o circuit breaker.
//
// Ordem dentro de uma requisição: validação, rate limit, transformação, resolução
// do path e chamada. Quota consumida não é devolvida se o backend falhar.
package dispatch
