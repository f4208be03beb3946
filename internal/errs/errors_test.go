package errs

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithStage(t *testing.T) {
	base := Malformed("```json {broken", errors.New("unexpected end"))
	wrapped := fmt.Errorf("parse invoice: %w", base)

	err := WithStage(StageParse, wrapped)
	require.Error(t, err)
	assert.Equal(t, MalformedResponse, KindOf(err))
	assert.Equal(t, StageParse, StageOf(err))
	assert.Contains(t, err.Error(), "parse: malformed_response")

	// the original is not mutated
	assert.Empty(t, base.Stage)
}

func TestWithStage_PlainError(t *testing.T) {
	err := WithStage(StageAcquire, errors.New("disk full"))
	assert.Equal(t, StageAcquire, StageOf(err))
	assert.Equal(t, Kind(""), KindOf(err))
	assert.Nil(t, WithStage(StageAcquire, nil))
}

func TestUpstream(t *testing.T) {
	tests := []struct {
		name   string
		err    *Error
		expect string
	}{
		{"timeout", Upstream(CauseTimeout, 0, "", errors.New("deadline")), "upstream_unavailable (timeout): deadline"},
		{"status", Upstream(CauseStatus, 503, "busy", nil), "upstream_unavailable (status) status 503"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, tt.err.Error())
			assert.True(t, Is(tt.err, UpstreamUnavailable))
			assert.Equal(t, tt.name, CauseOf(fmt.Errorf("ask: %w", tt.err)))
		})
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("x", MaxPayload+10)
	e := Malformed(long, nil)
	assert.True(t, strings.HasSuffix(e.Payload, "...(truncated)"))
	assert.Equal(t, "abc", Truncate("abc", 10))

	// "é" and "€" are multi-byte; a cut inside them backs off to the rune start
	assert.Equal(t, "caf...(truncated)", Truncate("café au lait", 4))
	assert.Equal(t, "12 ...(truncated)", Truncate("12 € TTC", 5))
	for n := 0; n < len("Arrêtée à 1 250 €"); n++ {
		assert.True(t, utf8.ValidString(Truncate("Arrêtée à 1 250 €", n)), "cut at %d", n)
	}
}
