// Package resilience isola falhas dos backends: um circuit breaker por destino e um
// executor de retry com backoff exponencial que só roda enquanto o breaker não está OPEN.
//
// Estados do breaker:
//
//	CLOSED    chamadas passam; falhas consecutivas >= threshold => OPEN
//	OPEN      rejeita sem tocar a rede até o cooldown passar; a próxima chamada vira HALF_OPEN
//	HALF_OPEN exatamente uma tentativa passa; sucesso => CLOSED, falha => OPEN (novo opened_at)
//
// Um Do que esgota os retries conta uma falha só, não uma por tentativa.
package resilience
