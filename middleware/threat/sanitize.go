package threat

import (
	"html"
	"strings"
	"unicode"
)

// Sanitize devolve uma cópia profunda do payload com todas as strings higienizadas.
// O map de entrada não é alterado.
func (v *Validator) Sanitize(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}
	out, _ := sanitizeValue(payload).(map[string]any)
	return out
}

// SanitizeString remove NUL e bytes de controle (mantém \t, \n, \r) e escapa HTML.
func SanitizeString(s string) string {
	s = strings.ToValidUTF8(s, "")
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\t', '\n', '\r':
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return html.EscapeString(s)
}

func sanitizeValue(val any) any {
	switch t := val.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = sanitizeValue(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = sanitizeValue(child)
		}
		return out
	case string:
		return SanitizeString(t)
	default:
		return val
	}
}
