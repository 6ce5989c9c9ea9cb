package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"guard-gateway/middleware/ratelimit/domain"
	"guard-gateway/middleware/threat"
	"guard-gateway/resilience"
)

// Códigos estáveis devolvidos em error_code.
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodePayloadTooLarge   = "PAYLOAD_TOO_LARGE"
	CodeStructureTooDeep  = "STRUCTURE_TOO_DEEP"
	CodeUnsupportedType   = "UNSUPPORTED_SERVICE_TYPE"
	CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	CodeCircuitOpen       = "CIRCUIT_BREAKER_OPEN"
	CodeRetryExhausted    = "RETRY_EXHAUSTED"
	CodeRequestCanceled   = "REQUEST_CANCELED"
	CodeBadRequest        = "BAD_REQUEST"
	CodeConcurrencyLimit  = "CONCURRENCY_LIMIT"
	CodeInternal          = "INTERNAL_ERROR"
)

// statusClientClosedRequest segue a convenção do nginx para cancelamento pelo cliente.
const statusClientClosedRequest = 499

var ErrUnsupportedServiceType = errors.New("unsupported service type")

type UnsupportedServiceTypeError struct {
	Value string
	// Reason detalha quando o tipo existe mas não há backend configurado.
	Reason string
}

func (e *UnsupportedServiceTypeError) Error() string {
	msg := fmt.Sprintf("unsupported service type %q", e.Value)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *UnsupportedServiceTypeError) Is(target error) bool {
	return target == ErrUnsupportedServiceType
}

// RateLimitExceededError carrega a decisão que negou a requisição.
type RateLimitExceededError struct {
	Decision domain.Decision
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded (tier %s, limit %d)", e.Decision.Tier, e.Decision.Limit)
}

// BadRequestError indica um envelope de entrada malformado.
type BadRequestError struct {
	Err error
}

func (e *BadRequestError) Error() string { return "bad request: " + e.Err.Error() }
func (e *BadRequestError) Unwrap() error { return e.Err }

// UpstreamError é uma resposta não-2xx do backend.
type UpstreamError struct {
	Service ServiceType
	Status  int
	Body    []byte
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s responded %d", e.Service, e.Status)
}

// Failure é a forma da falha vista pelo chamador.
type Failure struct {
	HTTPStatus int
	Code       string
	Message    string
	RetryAfter time.Duration
	// Upstream é o corpo JSON do backend na última tentativa, se houve resposta.
	Upstream json.RawMessage
}

// Classify mapeia qualquer erro do Dispatcher para um código estável.
// A mensagem nunca inclui o texto que casou com um padrão.
func Classify(err error) Failure {
	var (
		vErr   *threat.ValidationError
		unsup  *UnsupportedServiceTypeError
		rl     *RateLimitExceededError
		open   *resilience.OpenError
		retry  *resilience.RetryExhaustedError
		badReq *BadRequestError
		maxErr *http.MaxBytesError
	)

	switch {
	case err == nil:
		return Failure{HTTPStatus: http.StatusOK}

	case errors.As(err, &vErr):
		switch vErr.Reason {
		case threat.ReasonPayloadTooLarge:
			return Failure{HTTPStatus: http.StatusRequestEntityTooLarge, Code: CodePayloadTooLarge, Message: vErr.Error()}
		case threat.ReasonStructureTooDeep:
			return Failure{HTTPStatus: http.StatusBadRequest, Code: CodeStructureTooDeep, Message: vErr.Error()}
		case threat.ReasonThreatDetected:
			return Failure{HTTPStatus: http.StatusBadRequest, Code: CodeValidation, Message: "payload failed threat validation"}
		default:
			return Failure{HTTPStatus: http.StatusBadRequest, Code: CodeValidation, Message: vErr.Error()}
		}

	case errors.As(err, &maxErr):
		return Failure{HTTPStatus: http.StatusRequestEntityTooLarge, Code: CodePayloadTooLarge, Message: fmt.Sprintf("payload exceeds %d bytes", maxErr.Limit)}

	case errors.As(err, &unsup):
		return Failure{HTTPStatus: http.StatusBadRequest, Code: CodeUnsupportedType, Message: unsup.Error()}

	case errors.As(err, &rl):
		return Failure{HTTPStatus: http.StatusTooManyRequests, Code: CodeRateLimitExceeded, Message: "rate limit exceeded", RetryAfter: rl.Decision.RetryAfter}

	case errors.As(err, &open):
		return Failure{HTTPStatus: http.StatusServiceUnavailable, Code: CodeCircuitOpen, Message: open.Error(), RetryAfter: open.RetryAfter}

	case errors.As(err, &retry):
		f := Failure{
			HTTPStatus: http.StatusBadGateway,
			Code:       CodeRetryExhausted,
			Message:    fmt.Sprintf("%s unavailable after %d attempt(s)", retry.Service, retry.Attempts),
		}
		var up *UpstreamError
		if errors.As(retry.Last, &up) {
			f.HTTPStatus = up.Status
			if json.Valid(up.Body) {
				f.Upstream = json.RawMessage(up.Body)
			}
		}
		return f

	case errors.Is(err, context.Canceled):
		return Failure{HTTPStatus: statusClientClosedRequest, Code: CodeRequestCanceled, Message: "request canceled"}

	case errors.Is(err, context.DeadlineExceeded):
		return Failure{HTTPStatus: http.StatusGatewayTimeout, Code: CodeRequestCanceled, Message: "request deadline exceeded"}

	case errors.As(err, &badReq):
		return Failure{HTTPStatus: http.StatusBadRequest, Code: CodeBadRequest, Message: badReq.Error()}

	default:
		return Failure{HTTPStatus: http.StatusInternalServerError, Code: CodeInternal, Message: "internal error"}
	}
}
