package dispatch

import (
	"encoding/json"
	"fmt"
	"strconv"

	"guard-gateway/middleware/threat"
)

const defaultTokenConfidence = 0.7

// Payload é o corpo já no schema do destino. Só os tipos deste pacote o implementam.
type Payload interface {
	ServiceType() ServiceType
	isPayload()
}

type TokenGuardPayload struct {
	Content        string  `json:"content"`
	Confidence     float64 `json:"confidence"`
	LogprobsStream any     `json:"logprobs_stream,omitempty"`
	RequestID      string  `json:"request_id,omitempty"`
	UserID         string  `json:"user_id,omitempty"`
}

// TrustGuardPayload não leva metadados: o destino rejeita campos desconhecidos.
type TrustGuardPayload struct {
	ValidationType string `json:"validation_type"`
	Content        string `json:"content"`
	Context        any    `json:"context,omitempty"`
}

type ContextGuardPayload struct {
	CurrentCode  string `json:"current_code"`
	PreviousCode string `json:"previous_code"`
}

type BiasGuardPayload struct {
	Text    string `json:"text"`
	Context any    `json:"context,omitempty"`
}

type HealthSample struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

// HealthGuardPayload é sempre uma lista, mesmo com uma entrada só.
type HealthGuardPayload struct {
	Samples []HealthSample `json:"samples"`
}

func (TokenGuardPayload) ServiceType() ServiceType   { return TokenGuard }
func (TrustGuardPayload) ServiceType() ServiceType   { return TrustGuard }
func (ContextGuardPayload) ServiceType() ServiceType { return ContextGuard }
func (BiasGuardPayload) ServiceType() ServiceType    { return BiasGuard }
func (HealthGuardPayload) ServiceType() ServiceType  { return HealthGuard }

func (TokenGuardPayload) isPayload()   {}
func (TrustGuardPayload) isPayload()   {}
func (ContextGuardPayload) isPayload() {}
func (BiasGuardPayload) isPayload()    {}
func (HealthGuardPayload) isPayload()  {}

// Transform traduz o payload genérico para o schema do destino.
// É uma função pura de (ServiceType, Payload): não altera req e não compartilha
// maps com a entrada. Payload vazio gera o payload default do destino.
func Transform(req *Request) (Payload, error) {
	p := req.Payload
	switch req.ServiceType {
	case TokenGuard:
		out := TokenGuardPayload{
			Content:        firstString(p, "content", "text"),
			Confidence:     numberOr(p["confidence"], defaultTokenConfidence),
			LogprobsStream: cloneValue(p["logprobs_stream"]),
			RequestID:      req.RequestID,
			UserID:         req.UserID,
		}
		if out.RequestID == "" {
			out.RequestID = firstString(p, "request_id")
		}
		if out.UserID == "" {
			out.UserID = firstString(p, "user_id")
		}
		return out, nil

	case TrustGuard:
		vt := firstString(p, "validation_type")
		if vt == "" {
			vt = "general"
		}
		return TrustGuardPayload{
			ValidationType: vt,
			Content:        firstString(p, "content", "text", "input_text"),
			Context:        cloneValue(p["context"]),
		}, nil

	case ContextGuard:
		return ContextGuardPayload{
			CurrentCode:  firstString(p, "content", "text"),
			PreviousCode: firstString(p, "previous_code", "previous_content"),
		}, nil

	case BiasGuard:
		return BiasGuardPayload{
			Text:    firstString(p, "text", "content"),
			Context: cloneValue(p["context"]),
		}, nil

	case HealthGuard:
		return healthPayload(req)

	default:
		return nil, &UnsupportedServiceTypeError{Value: string(req.ServiceType)}
	}
}

// campos que viram id/content da amostra e não vão para metadata
var sampleCoreFields = map[string]bool{"id": true, "content": true, "text": true, "metadata": true, "samples": true}

func healthPayload(req *Request) (Payload, error) {
	raw, batch := req.Payload["samples"]
	if !batch || raw == nil {
		return HealthGuardPayload{Samples: []HealthSample{newSample(req.Payload, sampleID(req.RequestID, 1))}}, nil
	}

	list, ok := raw.([]any)
	if !ok {
		return nil, &threat.ValidationError{Reason: threat.ReasonInvalidPayload, Err: fmt.Errorf("samples must be a list")}
	}
	out := HealthGuardPayload{Samples: make([]HealthSample, 0, len(list))}
	for i, item := range list {
		id := sampleID(req.RequestID, i+1)
		switch v := item.(type) {
		case map[string]any:
			out.Samples = append(out.Samples, newSample(v, id))
		case string:
			out.Samples = append(out.Samples, HealthSample{ID: id, Content: v, Metadata: map[string]any{}})
		default:
			return nil, &threat.ValidationError{Reason: threat.ReasonInvalidPayload, Err: fmt.Errorf("samples[%d] must be an object or string", i)}
		}
	}
	return out, nil
}

func newSample(m map[string]any, defaultID string) HealthSample {
	s := HealthSample{
		ID:       firstString(m, "id"),
		Content:  firstString(m, "content", "text"),
		Metadata: map[string]any{},
	}
	if s.ID == "" {
		s.ID = defaultID
	}
	if md, ok := m["metadata"].(map[string]any); ok {
		for k, v := range md {
			s.Metadata[k] = cloneValue(v)
		}
	}
	// confidence e demais campos soltos entram em metadata
	for k, v := range m {
		if sampleCoreFields[k] {
			continue
		}
		s.Metadata[k] = cloneValue(v)
	}
	return s
}

func sampleID(requestID string, n int) string {
	if requestID == "" {
		return "sample-" + strconv.Itoa(n)
	}
	return requestID + "-" + strconv.Itoa(n)
}

// firstString devolve o primeiro campo presente (não nulo) convertido para texto.
func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		return stringify(v)
	}
	return ""
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}

func numberOr(v any, def float64) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
	case string:
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return f
		}
	}
	return def
}

// cloneValue copia maps e listas para que o payload de saída não divida memória com a entrada.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = cloneValue(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = cloneValue(child)
		}
		return out
	default:
		return v
	}
}
