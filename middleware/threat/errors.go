package threat

import (
	"fmt"
	"strings"
)

// Reason classifica a reprovação.
type Reason string

const (
	ReasonPayloadTooLarge  Reason = "payload_too_large"
	ReasonStructureTooDeep Reason = "structure_too_deep"
	ReasonThreatDetected   Reason = "threat_detected"
	ReasonInvalidPayload   Reason = "invalid_payload"
)

// ValidationError é devolvido por Validate quando o payload é reprovado.
// A mensagem nunca contém o texto casado.
type ValidationError struct {
	Reason   Reason
	Limit    int
	Findings []Finding
	Err      error
}

func (e *ValidationError) Error() string {
	switch e.Reason {
	case ReasonPayloadTooLarge:
		return fmt.Sprintf("payload exceeds %d bytes", e.Limit)
	case ReasonStructureTooDeep:
		return fmt.Sprintf("payload nested deeper than %d levels", e.Limit)
	case ReasonThreatDetected:
		return "payload rejected: " + strings.Join(e.FindingTypes(), ", ")
	default:
		if e.Err != nil {
			return "invalid payload: " + e.Err.Error()
		}
		return "invalid payload"
	}
}

func (e *ValidationError) Unwrap() error { return e.Err }

// FindingTypes devolve os tipos distintos, na ordem do primeiro achado.
func (e *ValidationError) FindingTypes() []string {
	seen := make(map[FindingType]bool, len(e.Findings))
	var out []string
	for _, f := range e.Findings {
		if !seen[f.Type] {
			seen[f.Type] = true
			out = append(out, string(f.Type))
		}
	}
	return out
}
