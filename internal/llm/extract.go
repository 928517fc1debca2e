package llm

import (
	"encoding/json"
	"regexp"

	"github.com/XIONGPEILIN/pico-banana-400k-subject-driven/internal/ledger"
)

// jsonSpanRegex grabs the first '{' through the last '}' greedily. The
// model may wrap its JSON in prose or code fences; this span heuristic
// is knowingly weak on nested or multiple objects and must stay that
// way for output compatibility.
var jsonSpanRegex = regexp.MustCompile(`(?s)\{.*\}`)

// ExtractAnalysis decodes the first JSON object embedded in a raw model
// reply. Missing and malformed spans are recorded as distinct ledger
// entries with the full reply attached; neither is retried. A decoded
// object is returned as-is, without schema validation — the upstream
// model is unreliable and downstream consumers tolerate missing keys.
func ExtractAnalysis(led *ledger.Ledger, itemIndex int, content string) (map[string]any, bool) {
	span := jsonSpanRegex.FindString(content)
	if span == "" {
		led.Record(itemIndex, "[WARN] No JSON block found in response.", map[string]any{"content": content})
		return nil, false
	}

	var analysis map[string]any
	if err := json.Unmarshal([]byte(span), &analysis); err != nil {
		led.Record(itemIndex, "[ERROR] Failed to parse JSON from content.", map[string]any{"content": content})
		return nil, false
	}
	return analysis, true
}
