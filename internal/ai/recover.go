package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/yosuke-furukawa/json5/encoding/json5"

	"github.com/facturaIA/invoice-extraction-service/internal/errs"
)

var reFenced = regexp.MustCompile("```(?i:json)?\\s*([\\s\\S]+?)\\s*```")

// DecodeReply recovers a JSON document from a model answer. It tries, in
// order: the fenced block (or the whole answer) as strict JSON; the same
// text with stray backticks and a leading "json" removed; a lenient JSON5
// decode of that text. The document is returned re-encoded as strict JSON.
// When all three fail the error is a MalformedResponse carrying the answer.
func DecodeReply(answer string) ([]byte, error) {
	candidate := strings.TrimSpace(answer)
	if m := reFenced.FindStringSubmatch(answer); m != nil {
		candidate = m[1]
	}

	var v any
	firstErr := json.Unmarshal([]byte(candidate), &v)
	if firstErr == nil {
		return []byte(candidate), nil
	}

	cleaned := strings.TrimSpace(candidate)
	cleaned = strings.TrimLeft(cleaned, "`")
	cleaned = strings.TrimRight(cleaned, "`")
	if len(cleaned) >= 4 && strings.EqualFold(cleaned[:4], "json") {
		cleaned = strings.TrimSpace(cleaned[len("json"):])
	}
	if err := json.Unmarshal([]byte(cleaned), &v); err == nil {
		return []byte(cleaned), nil
	}

	if err := json5.Unmarshal([]byte(cleaned), &v); err == nil {
		out, err := json.Marshal(v)
		if err == nil {
			return out, nil
		}
	}
	return nil, errs.Malformed(answer, fmt.Errorf("decode reply: %w", firstErr))
}
