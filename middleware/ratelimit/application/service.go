package application

import (
	"context"
	"strings"
	"time"

	"guard-gateway/middleware/ratelimit/domain"

	"github.com/go-logr/logr"
	"golang.org/x/time/rate"
	"k8s.io/utils/clock"
)

const unknownIdentity = "unknown"

// Options configura o Service.
type Options struct {
	// Store é o contador compartilhado (ex: Redis). Se nil, usa apenas o Fallback.
	Store domain.WindowStore
	// Fallback responde quando o Store falha. Se nil, falhas do Store liberam a requisição.
	Fallback domain.WindowStore

	Limits     Limits
	Classifier Classifier

	Stats   domain.StatsStore
	Metrics domain.DenialRecorder

	Clock  clock.PassiveClock
	Logger logr.Logger

	// Disabled desliga o rate limit por completo (RATE_LIMIT_ENABLED=false).
	Disabled bool
}

// Service concentra a regra de aplicação do rate limit.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
// Falha do store compartilhado nunca nega uma requisição: o Service cai para o
// fallback local e, sem fallback, libera (fail open).
type Service struct {
	opts Options
	warn *rate.Sometimes
}

func NewService(opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Limits.Classes == nil {
		opts.Limits.Classes = DefaultLimits().Classes
	}
	if len(opts.Classifier.AdminPrefixes) == 0 {
		opts.Classifier = DefaultClassifier()
	}
	return &Service{
		opts: opts,
		warn: &rate.Sometimes{First: 1, Interval: 30 * time.Second},
	}
}

type tierPlan struct {
	name string
	key  domain.Key
	rule domain.Rule
}

// plan monta os tiers na ordem de avaliação.
func (s *Service) plan(req domain.Request, endpoint string) []tierPlan {
	l := s.opts.Limits
	id := req.Identity

	class := s.opts.Classifier.Classify(req.Method, req.Path)
	tiers := []tierPlan{
		{name: "global", key: domain.Key{Scope: domain.ScopeGlobal, Identifier: id, Tier: domain.TierMinute}, rule: l.Global},
		{name: "hourly", key: domain.Key{Scope: domain.ScopeGlobal, Identifier: id, Tier: domain.TierHour}, rule: l.Hourly},
		{name: "burst", key: domain.Key{Scope: domain.ScopeGlobal, Identifier: id, Tier: domain.TierBurst}, rule: l.Burst},
		{
			name: "endpoint",
			key:  domain.Key{Scope: domain.ScopeEndpoint, Identifier: endpoint + "|" + id, Tier: domain.TierMinute},
			rule: l.endpointRule(req.Method, req.Path, class),
		},
	}
	if req.UserID != "" {
		if r, ok := l.Users[req.UserID]; ok {
			tiers = append(tiers, tierPlan{name: "user", key: domain.Key{Scope: domain.ScopeUser, Identifier: req.UserID, Tier: domain.TierMinute}, rule: r})
		}
	}
	if req.IP != "" {
		if r, ok := l.IPs[req.IP]; ok {
			tiers = append(tiers, tierPlan{name: "ip", key: domain.Key{Scope: domain.ScopeIP, Identifier: req.IP, Tier: domain.TierMinute}, rule: r})
		}
	}
	return tiers
}

// Check avalia todos os tiers; todos precisam passar.
// Quota consumida por tiers anteriores a uma negação não é devolvida.
func (s *Service) Check(ctx context.Context, req domain.Request) domain.Decision {
	if s == nil || s.opts.Disabled {
		return domain.Decision{Allowed: true}
	}
	if strings.TrimSpace(req.Identity) == "" {
		req.Identity = unknownIdentity
	}

	now := s.opts.Clock.Now()
	endpoint := strings.TrimSpace(strings.ToUpper(req.Method) + " " + req.Path)
	dec := domain.Decision{Allowed: true, Endpoint: endpoint}

	st := checkState{store: s.opts.Store}
	for _, t := range s.plan(req, endpoint) {
		if !t.rule.Enabled() {
			continue
		}
		res := s.hit(ctx, &st, t, now)

		ts := domain.TierStatus{
			Name:      t.name,
			Key:       t.key,
			Limit:     t.rule.Limit,
			Remaining: max(t.rule.Limit-res.Count, 0),
			ResetAt:   now.Add(t.rule.Window),
			Allowed:   res.Allowed,
		}
		if !res.Allowed {
			ts.Remaining = 0
		}
		dec.Tiers = append(dec.Tiers, ts)

		if !res.Allowed {
			dec.Allowed = false
			dec.Tier = t.name
			dec.Limit = ts.Limit
			dec.Remaining = 0
			dec.ResetAt = ts.ResetAt
			dec.RetryAfter = t.rule.Window
			break
		}
	}

	if dec.Allowed {
		// o cabeçalho reflete o tier mais apertado
		for i, ts := range dec.Tiers {
			if i == 0 || ts.Remaining < dec.Remaining {
				dec.Limit, dec.Remaining, dec.ResetAt = ts.Limit, ts.Remaining, ts.ResetAt
			}
		}
	}
	dec.Degraded = st.degraded

	if !dec.Allowed && s.opts.Metrics != nil {
		s.opts.Metrics.RecordDenial(endpoint, dec.Tier)
	}
	if !dec.Allowed {
		s.opts.Logger.V(1).Info("rate limit exceeded", "identity", req.Identity, "endpoint", endpoint, "tier", dec.Tier)
	}
	s.record(ctx, req, dec, now)
	return dec
}

type checkState struct {
	store    domain.WindowStore
	degraded bool
}

func (s *Service) hit(ctx context.Context, st *checkState, t tierPlan, now time.Time) domain.WindowResult {
	if st.store != nil && !st.degraded {
		res, err := st.store.Hit(ctx, t.key, t.rule, now)
		if err == nil {
			return res
		}
		// a partir daqui o resto da checagem usa o fallback
		st.degraded = true
		if s.opts.Metrics != nil {
			s.opts.Metrics.RecordFallback("store_error")
		}
		s.warn.Do(func() {
			s.opts.Logger.Error(err, "rate limit store unavailable, using in-process fallback (fail open)")
		})
	}

	if s.opts.Fallback == nil {
		return domain.WindowResult{Allowed: true}
	}
	res, err := s.opts.Fallback.Hit(ctx, t.key, t.rule, now)
	if err != nil {
		s.opts.Logger.Error(err, "rate limit fallback failed, allowing request", "tier", t.name)
		return domain.WindowResult{Allowed: true}
	}
	return res
}

func (s *Service) record(ctx context.Context, req domain.Request, dec domain.Decision, now time.Time) {
	if s.opts.Stats == nil {
		return
	}
	err := s.opts.Stats.Record(ctx, domain.StatsEvent{
		Identity: req.Identity,
		Allowed:  dec.Allowed,
		Tier:     dec.Tier,
		Degraded: dec.Degraded,
		Method:   req.Method,
		Path:     req.Path,
		At:       now,
	})
	if err != nil {
		s.opts.Logger.V(1).Info("rate limit stats not recorded", "err", err.Error())
	}
}

// Limits devolve a configuração efetiva (útil para headers e diagnósticos).
func (s *Service) Limits() Limits { return s.opts.Limits }
