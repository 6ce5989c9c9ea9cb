package dispatch

import (
	"encoding/json"
	"testing"

	"guard-gateway/middleware/threat"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransform_EmptyPayloadDefaults(t *testing.T) {
	cases := []struct {
		service ServiceType
		want    Payload
	}{
		{TokenGuard, TokenGuardPayload{Content: "", Confidence: 0.7}},
		{TrustGuard, TrustGuardPayload{ValidationType: "general"}},
		{ContextGuard, ContextGuardPayload{}},
		{BiasGuard, BiasGuardPayload{}},
		{HealthGuard, HealthGuardPayload{Samples: []HealthSample{{ID: "sample-1", Metadata: map[string]any{}}}}},
	}
	for _, tc := range cases {
		t.Run(string(tc.service), func(t *testing.T) {
			got, err := Transform(&Request{ServiceType: tc.service, Payload: map[string]any{}})
			require.NoError(t, err)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Transform(%s, {}) mismatch (-want +got):\n%s", tc.service, diff)
			}
		})
	}
}

func TestTransform_TokenGuardWire(t *testing.T) {
	got, err := Transform(&Request{ServiceType: TokenGuard, Payload: map[string]any{}})
	require.NoError(t, err)

	raw, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, `{"content":"","confidence":0.7}`, string(raw))
}

func TestTransform_DecodedNumbers(t *testing.T) {
	got, err := Transform(&Request{ServiceType: TokenGuard, Payload: map[string]any{
		"text":       json.Number("42"),
		"confidence": json.Number("0.35"),
	}})
	require.NoError(t, err)

	tg := got.(TokenGuardPayload)
	assert.Equal(t, "42", tg.Content)
	assert.InDelta(t, 0.35, tg.Confidence, 1e-9)
}

func TestTransform_NilPayload(t *testing.T) {
	for _, st := range ServiceTypes {
		_, err := Transform(&Request{ServiceType: st})
		assert.NoError(t, err, st)
	}
}

func TestTransform_FieldResolution(t *testing.T) {
	cases := []struct {
		name string
		req  Request
		want Payload
	}{
		{
			name: "token content wins over text, metadata kept",
			req: Request{ServiceType: TokenGuard, RequestID: "req-1", UserID: "u1", Payload: map[string]any{
				"content": "a", "text": "b", "confidence": 0.95, "logprobs_stream": []any{-0.1, -0.2},
			}},
			want: TokenGuardPayload{Content: "a", Confidence: 0.95, LogprobsStream: []any{-0.1, -0.2}, RequestID: "req-1", UserID: "u1"},
		},
		{
			name: "token falls back to text and payload metadata",
			req: Request{ServiceType: TokenGuard, Payload: map[string]any{
				"text": "b", "request_id": "p-1", "user_id": "p-user",
			}},
			want: TokenGuardPayload{Content: "b", Confidence: 0.7, RequestID: "p-1", UserID: "p-user"},
		},
		{
			name: "trust uses input_text and keeps context nested",
			req: Request{ServiceType: TrustGuard, UserID: "u1", SessionID: "s1", Payload: map[string]any{
				"input_text": "c", "validation_type": "factual", "context": map[string]any{"source": "kb"},
			}},
			want: TrustGuardPayload{ValidationType: "factual", Content: "c", Context: map[string]any{"source": "kb"}},
		},
		{
			name: "context guard previous_content",
			req: Request{ServiceType: ContextGuard, Payload: map[string]any{
				"text": "x = 2", "previous_content": "x = 1",
			}},
			want: ContextGuardPayload{CurrentCode: "x = 2", PreviousCode: "x = 1"},
		},
		{
			name: "bias prefers text",
			req: Request{ServiceType: BiasGuard, Payload: map[string]any{
				"text": "t", "content": "c", "context": "hiring",
			}},
			want: BiasGuardPayload{Text: "t", Context: "hiring"},
		},
		{
			name: "health folds extra fields into metadata",
			req: Request{ServiceType: HealthGuard, RequestID: "r", Payload: map[string]any{
				"text": "x", "confidence": 0.9, "metadata": map[string]any{"model": "m1"},
			}},
			want: HealthGuardPayload{Samples: []HealthSample{{
				ID: "r-1", Content: "x", Metadata: map[string]any{"confidence": 0.9, "model": "m1"},
			}}},
		},
		{
			name: "health batch",
			req: Request{ServiceType: HealthGuard, Payload: map[string]any{
				"samples": []any{
					map[string]any{"id": "a", "content": "one", "score": 1.0},
					"two",
				},
			}},
			want: HealthGuardPayload{Samples: []HealthSample{
				{ID: "a", Content: "one", Metadata: map[string]any{"score": 1.0}},
				{ID: "sample-2", Content: "two", Metadata: map[string]any{}},
			}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Transform(&tc.req)
			require.NoError(t, err)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTransform_Pure(t *testing.T) {
	in := map[string]any{"text": "x", "confidence": 0.9, "context": map[string]any{"k": "v"}}
	for _, st := range ServiceTypes {
		req := Request{ServiceType: st, RequestID: "id", Payload: in}
		a, err := Transform(&req)
		require.NoError(t, err)
		b, err := Transform(&req)
		require.NoError(t, err)
		assert.Empty(t, cmp.Diff(a, b), st)
	}
	assert.Equal(t, map[string]any{"text": "x", "confidence": 0.9, "context": map[string]any{"k": "v"}}, in)
}

func TestTransform_OutputDoesNotAliasInput(t *testing.T) {
	ctx := map[string]any{"k": "v"}
	got, err := Transform(&Request{ServiceType: TrustGuard, Payload: map[string]any{"context": ctx}})
	require.NoError(t, err)

	ctx["k"] = "changed"
	assert.Equal(t, map[string]any{"k": "v"}, got.(TrustGuardPayload).Context)
}

func TestTransform_TrustGuardDropsMetadata(t *testing.T) {
	got, err := Transform(&Request{ServiceType: TrustGuard, RequestID: "r", UserID: "u", SessionID: "s", Payload: map[string]any{
		"text": "hello", "user_id": "u", "session_id": "s",
	}})
	require.NoError(t, err)

	raw, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, `{"validation_type":"general","content":"hello"}`, string(raw))
}

func TestTransform_Unsupported(t *testing.T) {
	_, err := Transform(&Request{ServiceType: "NOPE", Payload: map[string]any{}})
	require.ErrorIs(t, err, ErrUnsupportedServiceType)
}

func TestTransform_HealthBadSamples(t *testing.T) {
	_, err := Transform(&Request{ServiceType: HealthGuard, Payload: map[string]any{"samples": "x"}})
	var vErr *threat.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, threat.ReasonInvalidPayload, vErr.Reason)

	_, err = Transform(&Request{ServiceType: HealthGuard, Payload: map[string]any{"samples": []any{1.0}}})
	require.ErrorAs(t, err, &vErr)
}

func TestResolve(t *testing.T) {
	want := map[ServiceType]string{
		TokenGuard:   "/scan",
		TrustGuard:   "/validate",
		ContextGuard: "/analyze",
		BiasGuard:    "/process",
		HealthGuard:  "/analyze",
	}
	for st, path := range want {
		got, err := Resolve(st)
		require.NoError(t, err)
		assert.Equal(t, path, got)
	}
	_, err := Resolve("OTHER")
	assert.ErrorIs(t, err, ErrUnsupportedServiceType)
}

func TestParseServiceType(t *testing.T) {
	for in, want := range map[string]ServiceType{
		"TOKEN_GUARD":   TokenGuard,
		"trust_guard":   TrustGuard,
		"context-guard": ContextGuard,
		" Bias_Guard ":  BiasGuard,
	} {
		got, err := ParseServiceType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseServiceType("MAGIC_GUARD")
	assert.ErrorIs(t, err, ErrUnsupportedServiceType)
}

func TestNewRequest_GeneratesID(t *testing.T) {
	a := NewRequest(TokenGuard, nil, "", "", "")
	b := NewRequest(TokenGuard, nil, "", "", "")
	assert.NotEmpty(t, a.RequestID)
	assert.NotEqual(t, a.RequestID, b.RequestID)
	assert.NotNil(t, a.Payload)

	c := NewRequest(TokenGuard, nil, "", "", "fixed")
	assert.Equal(t, "fixed", c.RequestID)
}
