package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"time"
)

// Scope é o "espaço" de uma chave de rate limit.
type Scope string

const (
	ScopeGlobal   Scope = "global"
	ScopeEndpoint Scope = "endpoint"
	ScopeUser     Scope = "user"
	ScopeIP       Scope = "ip"
)

// Tier é a granularidade de janela da chave.
type Tier string

const (
	TierBurst  Tier = "burst"
	TierMinute Tier = "minute"
	TierHour   Tier = "hour"
)

// Key identifica de forma única uma janela deslizante.
// É usada apenas como chave de lookup, nunca é alterada.
type Key struct {
	Scope      Scope
	Identifier string
	Tier       Tier
}

// String devolve a forma serializada usada no store compartilhado.
func (k Key) String() string {
	return "ratelimit:" + string(k.Scope) + ":" + string(k.Tier) + ":" + k.Identifier
}

// Rule é o limite de uma janela: no máximo Limit requisições em Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Enabled indica se a regra deve ser avaliada.
func (r Rule) Enabled() bool { return r.Limit > 0 && r.Window > 0 }

// WindowResult é o resultado de um "prune-count-insert" atômico.
type WindowResult struct {
	Allowed bool
	// Count é o número de entradas na janela após a operação
	// (inclui a entrada recém inserida quando Allowed=true).
	Count int
}

// WindowStore executa, de forma atômica por chave, a operação de janela deslizante:
// remove entradas mais velhas que now-window, conta as restantes e, se ainda houver
// espaço, insere now.
//
// A implementação pode ser Redis (compartilhado) ou memória (fallback local).
type WindowStore interface {
	Hit(ctx context.Context, key Key, rule Rule, now time.Time) (WindowResult, error)
}

// Request é o que o limiter precisa saber sobre a chamada.
// É "agnóstico de HTTP": Method/Path podem vir de qualquer transporte.
type Request struct {
	// Identity é a identidade já resolvida (usuário autenticado, IP do XFF ou peer).
	Identity string
	UserID   string
	IP       string

	Method string
	Path   string
}

// TierStatus é a fotografia de um tier depois da checagem.
type TierStatus struct {
	Name      string
	Key       Key
	Limit     int
	Remaining int
	ResetAt   time.Time
	Allowed   bool
}

type Decision struct {
	Allowed bool
	// Tier é o nome do tier que negou (vazio quando Allowed=true).
	Tier     string
	Endpoint string

	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration

	// Degraded indica que o store compartilhado falhou e a decisão veio do fallback local.
	Degraded bool

	Tiers []TierStatus
}

// DenialRecorder recebe cada negação (observabilidade).
type DenialRecorder interface {
	RecordDenial(endpoint, tier string)
	RecordFallback(reason string)
}
