package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"deadline exceeded sentinel", context.DeadlineExceeded, KindTimeout},
		{"timeout substring", errors.New("request timeout after 30s"), KindTimeout},
		{"unauthorized substring", errors.New("401 unauthorized: invalid api key"), KindAuthMissing},
		{"server error", errors.New("502 bad gateway"), KindUpstreamError},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, classify(c.err))
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := newError(KindUpstreamError, "openrouter", "gpt-4o-mini", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "openrouter/gpt-4o-mini")
}
