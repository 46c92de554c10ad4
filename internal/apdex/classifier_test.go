package apdex

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		headers http.Header
		want    Outcome
	}{
		{"cache status wins over age 0", http.Header{"X-Cache-Status": {"HIT"}, "Age": {"0"}}, Hit},
		{"cache status miss is authoritative", http.Header{"X-Cache-Status": {"MISS"}, "Age": {"120"}, "X-Cache": {"HIT"}}, Miss},
		{"cache status expired", http.Header{"X-Cache-Status": {"EXPIRED"}}, Miss},
		{"positive age", http.Header{"Age": {"5"}}, Hit},
		{"zero age falls through", http.Header{"Age": {"0"}}, Miss},
		{"negative age falls through to x-cache", http.Header{"Age": {"-1"}, "X-Cache": {"Hit from cloudfront"}}, Hit},
		{"malformed age", http.Header{"Age": {"abc"}}, Miss},
		{"malformed age falls through to x-cache", http.Header{"Age": {"abc"}, "X-Cache": {"TCP_HIT"}}, Hit},
		{"x-cache contains hit", http.Header{"X-Cache": {"Hit from cache"}}, Hit},
		{"x-cache miss", http.Header{"X-Cache": {"Miss from cloudfront"}}, Miss},
		{"empty cache status falls through to age", http.Header{"X-Cache-Status": {""}, "Age": {"5"}}, Hit},
		{"blank cache status falls through to x-cache", http.Header{"X-Cache-Status": {"  "}, "X-Cache": {"HIT"}}, Hit},
		{"empty cache status alone", http.Header{"X-Cache-Status": {""}}, Miss},
		{"empty x-cache", http.Header{"X-Cache": {""}}, Miss},
		{"no signal", http.Header{}, Miss},
		{"nil headers", nil, Miss},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.headers))
		})
	}
}

func TestClassify_NonCanonicalKeys(t *testing.T) {
	t.Run("lowercase cache status", func(t *testing.T) {
		h := http.Header{"x-cache-status": {"hit"}}
		assert.Equal(t, Hit, Classify(h))
	})

	t.Run("lowercase age", func(t *testing.T) {
		h := http.Header{"age": {"30"}}
		assert.Equal(t, Hit, Classify(h))
	})

	t.Run("set via Header.Set", func(t *testing.T) {
		h := http.Header{}
		h.Set("x-cache", "hit")
		assert.Equal(t, Hit, Classify(h))
	})
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "HIT", Hit.String())
	assert.Equal(t, "MISS", Miss.String())
}
