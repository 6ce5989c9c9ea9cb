package threat

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "a&lt;b&gt; &amp; &#34;c&#34;", SanitizeString(`a<b> & "c"`))
	assert.Equal(t, "abc", SanitizeString("a\x00b\x07c"))
	assert.Equal(t, "line1\nline2\ttab", SanitizeString("line1\nline2\ttab"))
}

func TestSanitize_DeepCopyLeavesInputUntouched(t *testing.T) {
	v := New(DefaultConfig())
	in := map[string]any{
		"note":  "<b>hi</b>\x00",
		"score": 0.5,
		"tags":  []any{"<i>", 3.0},
		"meta":  map[string]any{"who": "a&b"},
	}
	orig := map[string]any{
		"note":  "<b>hi</b>\x00",
		"score": 0.5,
		"tags":  []any{"<i>", 3.0},
		"meta":  map[string]any{"who": "a&b"},
	}

	got := v.Sanitize(in)

	want := map[string]any{
		"note":  "&lt;b&gt;hi&lt;/b&gt;",
		"score": 0.5,
		"tags":  []any{"&lt;i&gt;", 3.0},
		"meta":  map[string]any{"who": "a&amp;b"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("sanitized payload mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(orig, in); diff != "" {
		t.Fatalf("input was mutated (-want +got):\n%s", diff)
	}
	assert.Nil(t, v.Sanitize(nil))
}
