package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"guard-gateway/middleware/ratelimit/domain"
	"guard-gateway/middleware/threat"
	"guard-gateway/resilience"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"
)

// PayloadValidator é o que o Dispatcher usa do validador de ameaças.
type PayloadValidator interface {
	Validate(payload map[string]any) ([]threat.Finding, error)
	Sanitize(payload map[string]any) map[string]any
}

// Limiter decide o rate limit (application.Service).
type Limiter interface {
	Check(ctx context.Context, req domain.Request) domain.Decision
}

// Executor aplica breaker e retry (resilience.Executor).
type Executor interface {
	Do(ctx context.Context, service string, fn func(context.Context) error) error
}

// Caller descreve quem chama, para o rate limit.
type Caller struct {
	Identity string
	UserID   string
	IP       string
	Method   string
	Path     string
}

// Response é o resultado de sucesso: o corpo do destino sem alteração.
type Response struct {
	RequestID   string
	ServiceType ServiceType
	Status      int
	ContentType string
	Body        json.RawMessage
	RateLimit   domain.Decision
}

type Options struct {
	Validator PayloadValidator
	Limiter   Limiter
	Executor  Executor
	Backend   Backend
	Metrics   *Metrics
	Clock     clock.PassiveClock
	Logger    logr.Logger
}

type Dispatcher struct {
	opts Options
}

func NewDispatcher(opts Options) (*Dispatcher, error) {
	if opts.Validator == nil {
		return nil, errors.New("dispatch: validator is required")
	}
	if opts.Executor == nil {
		return nil, errors.New("dispatch: executor is required")
	}
	if opts.Backend == nil {
		return nil, errors.New("dispatch: backend is required")
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	return &Dispatcher{opts: opts}, nil
}

// Process executa validate -> rate limit -> transform -> resolve -> chamada.
// A falha devolvida é sempre classificável por Classify.
func (d *Dispatcher) Process(ctx context.Context, caller Caller, req Request) (*Response, error) {
	start := d.opts.Clock.Now()
	resp, err := d.process(ctx, caller, req)

	outcome := "OK"
	if err != nil {
		outcome = Classify(err).Code
	}
	d.opts.Metrics.observe(req.ServiceType, outcome, d.opts.Clock.Since(start))
	if err != nil {
		d.opts.Logger.V(1).Info("dispatch failed", "requestID", req.RequestID, "service", req.ServiceType, "code", outcome, "err", err.Error())
	}
	return resp, err
}

func (d *Dispatcher) process(ctx context.Context, caller Caller, req Request) (*Response, error) {
	if _, err := d.opts.Validator.Validate(req.Payload); err != nil {
		return nil, err
	}
	req = d.sanitize(req)

	var dec domain.Decision
	if d.opts.Limiter != nil {
		dec = d.opts.Limiter.Check(ctx, domain.Request{
			Identity: caller.Identity,
			UserID:   caller.UserID,
			IP:       caller.IP,
			Method:   caller.Method,
			Path:     caller.Path,
		})
		if !dec.Allowed {
			return nil, &RateLimitExceededError{Decision: dec}
		}
	}

	payload, err := Transform(&req)
	if err != nil {
		return nil, err
	}
	path, err := Resolve(req.ServiceType)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", req.ServiceType, err)
	}

	var out *BackendResponse
	err = d.opts.Executor.Do(ctx, string(req.ServiceType), func(ctx context.Context) error {
		r, err := d.opts.Backend.Post(ctx, req.ServiceType, path, body)
		var unsup *UnsupportedServiceTypeError
		if errors.As(err, &unsup) {
			return resilience.Permanent(err)
		}
		if err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Response{
		RequestID:   req.RequestID,
		ServiceType: req.ServiceType,
		Status:      out.Status,
		ContentType: out.ContentType,
		Body:        out.Body,
		RateLimit:   dec,
	}, nil
}

// sanitize higieniza os campos que os backends guardam ou ecoam.
// Devolve uma cópia; o payload original não é alterado.
func (d *Dispatcher) sanitize(req Request) Request {
	req.UserID = threat.SanitizeString(req.UserID)
	req.SessionID = threat.SanitizeString(req.SessionID)
	req.RequestID = threat.SanitizeString(req.RequestID)

	echoed := map[string]any{}
	for _, k := range []string{"metadata", "context", "user_id", "session_id", "request_id"} {
		if v, ok := req.Payload[k]; ok {
			echoed[k] = v
		}
	}
	if len(echoed) == 0 {
		return req
	}
	clean := d.opts.Validator.Sanitize(echoed)
	payload := make(map[string]any, len(req.Payload))
	for k, v := range req.Payload {
		payload[k] = v
	}
	for k, v := range clean {
		payload[k] = v
	}
	req.Payload = payload
	return req
}
