// Package application decide se uma chamada cabe nas cotas e se há vaga em voo.
//
// Só importa domain; HTTP fica no pacote ratelimit.
// Ex.: Service.Check(ctx, req) avalia todos os tiers (global, hora, burst, classe de
// endpoint, overrides) e retorna uma Decision (allow/deny + limit/remaining/retry-after).
package application
