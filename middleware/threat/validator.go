package threat

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/go-logr/logr"
)

const (
	DefaultMaxPayloadBytes = 10 << 20
	DefaultMaxDepth        = 10
)

// Config liga/desliga cada detector e define os limites estruturais.
type Config struct {
	MaxPayloadBytes int
	MaxDepth        int

	SQLInjection     bool
	XSS              bool
	PathTraversal    bool
	CommandInjection bool

	// AllowedPathPrefixes libera caminhos absolutos que o detector de
	// path traversal consideraria sensíveis (ex: /var/log/app).
	AllowedPathPrefixes []string
}

func DefaultConfig() Config {
	return Config{
		MaxPayloadBytes:  DefaultMaxPayloadBytes,
		MaxDepth:         DefaultMaxDepth,
		SQLInjection:     true,
		XSS:              true,
		PathTraversal:    true,
		CommandInjection: true,
	}
}

// FindingRecorder recebe cada achado (ex: contador Prometheus por tipo).
type FindingRecorder interface {
	RecordFinding(t FindingType)
}

type Validator struct {
	cfg     Config
	log     logr.Logger
	metrics FindingRecorder
	rules   []rule
}

type Option func(*Validator)

func WithLogger(l logr.Logger) Option {
	return func(v *Validator) { v.log = l }
}

func WithRecorder(r FindingRecorder) Option {
	return func(v *Validator) { v.metrics = r }
}

func New(cfg Config, opts ...Option) *Validator {
	if cfg.MaxPayloadBytes <= 0 {
		cfg.MaxPayloadBytes = DefaultMaxPayloadBytes
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	v := &Validator{cfg: cfg}
	if cfg.SQLInjection {
		v.rules = append(v.rules, sqlRules...)
	}
	if cfg.XSS {
		v.rules = append(v.rules, xssRules...)
	}
	if cfg.PathTraversal {
		v.rules = append(v.rules, traversalRules...)
	}
	if cfg.CommandInjection {
		v.rules = append(v.rules, commandRules...)
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate reprova o payload com *ValidationError. Sem erro, findings é vazio.
func (v *Validator) Validate(payload map[string]any) ([]Finding, error) {
	n, err := encodedSize(payload)
	if err != nil {
		return nil, &ValidationError{Reason: ReasonInvalidPayload, Err: err}
	}
	if err := v.CheckSize(n); err != nil {
		return nil, err
	}
	if depth(payload, 1, v.cfg.MaxDepth) > v.cfg.MaxDepth {
		return nil, &ValidationError{Reason: ReasonStructureTooDeep, Limit: v.cfg.MaxDepth}
	}

	findings := v.walk("", payload, nil)
	if len(findings) == 0 {
		return nil, nil
	}
	for _, f := range findings {
		v.log.Info("threat pattern detected", "type", f.Type, "rule", f.Pattern, "field", f.Field)
		if v.metrics != nil {
			v.metrics.RecordFinding(f.Type)
		}
	}
	return findings, &ValidationError{Reason: ReasonThreatDetected, Findings: findings}
}

// CheckSize aplica só o teto de tamanho; útil antes de decodificar um corpo HTTP.
func (v *Validator) CheckSize(n int) error {
	if n > v.cfg.MaxPayloadBytes {
		return &ValidationError{Reason: ReasonPayloadTooLarge, Limit: v.cfg.MaxPayloadBytes}
	}
	return nil
}

// encodedSize mede o JSON sem escapar <, > e &, que json.Marshal incharia para \u003c.
func encodedSize(payload map[string]any) (int, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return 0, err
	}
	// Encode termina com '\n'
	return buf.Len() - 1, nil
}

// depth mede o aninhamento de maps/slices, parando assim que passa de limit.
func depth(v any, level, limit int) int {
	if level > limit {
		return level
	}
	deepest := level
	switch t := v.(type) {
	case map[string]any:
		for _, child := range t {
			if d := depthOf(child, level, limit); d > deepest {
				deepest = d
			}
			if deepest > limit {
				return deepest
			}
		}
	case []any:
		for _, child := range t {
			if d := depthOf(child, level, limit); d > deepest {
				deepest = d
			}
			if deepest > limit {
				return deepest
			}
		}
	}
	return deepest
}

func depthOf(child any, level, limit int) int {
	switch child.(type) {
	case map[string]any, []any:
		return depth(child, level+1, limit)
	default:
		return level
	}
}

func (v *Validator) walk(field string, val any, out []Finding) []Finding {
	switch t := val.(type) {
	case map[string]any:
		for k, child := range t {
			path := k
			if field != "" {
				path = field + "." + k
			}
			out = v.scanString(path, k, out)
			out = v.walk(path, child, out)
		}
	case []any:
		for i, child := range t {
			out = v.walk(field+"["+strconv.Itoa(i)+"]", child, out)
		}
	case string:
		out = v.scanString(field, t, out)
	}
	return out
}

func (v *Validator) scanString(field, s string, out []Finding) []Finding {
	if s == "" {
		return out
	}
	out = scan(v.rules, field, s, out)
	if v.cfg.PathTraversal {
		out = scanSystemPaths(field, s, v.cfg.AllowedPathPrefixes, out)
	}
	return out
}
