package dispatch

import (
	"strings"

	"github.com/google/uuid"
)

// ServiceType seleciona o backend de análise.
type ServiceType string

const (
	TokenGuard   ServiceType = "TOKEN_GUARD"
	TrustGuard   ServiceType = "TRUST_GUARD"
	ContextGuard ServiceType = "CONTEXT_GUARD"
	BiasGuard    ServiceType = "BIAS_GUARD"
	HealthGuard  ServiceType = "HEALTH_GUARD"
)

// ServiceTypes lista os destinos conhecidos, em ordem estável.
var ServiceTypes = []ServiceType{TokenGuard, TrustGuard, ContextGuard, BiasGuard, HealthGuard}

func (t ServiceType) Valid() bool {
	_, ok := servicePaths[t]
	return ok
}

func (t ServiceType) String() string { return string(t) }

// ParseServiceType aceita o nome canônico sem diferenciar caixa e com '-' no lugar de '_'.
func ParseServiceType(s string) (ServiceType, error) {
	t := ServiceType(strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), "-", "_"))
	if !t.Valid() {
		return "", &UnsupportedServiceTypeError{Value: s}
	}
	return t, nil
}

// Request é uma chamada de análise. Não é alterada depois de criada.
type Request struct {
	RequestID   string
	ServiceType ServiceType
	Payload     map[string]any
	UserID      string
	SessionID   string
}

// NewRequest preenche RequestID com um UUID quando vazio.
func NewRequest(t ServiceType, payload map[string]any, userID, sessionID, requestID string) Request {
	if strings.TrimSpace(requestID) == "" {
		requestID = uuid.NewString()
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return Request{
		RequestID:   requestID,
		ServiceType: t,
		Payload:     payload,
		UserID:      userID,
		SessionID:   sessionID,
	}
}
