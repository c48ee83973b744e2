package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"reflexruntime/internal/types"
)

// fencedJSONRe matches a markdown code block labeled as JSON; models wrap
// replies in one despite the prompt's instructions often enough that the
// recovery pass is load-bearing.
var fencedJSONRe = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")

// proposalPayload is the wire shape of a model reply. Confidence is a
// pointer so an absent field can be told apart from an explicit zero.
type proposalPayload struct {
	PatchCode   string   `json:"patch_code"`
	Explanation string   `json:"explanation"`
	Confidence  *float64 `json:"confidence"`
	TestCases   []string `json:"test_cases"`
}

// ParseProposal turns raw model output into a PatchProposal. The ladder is:
// strict JSON parse, then a fenced ```json block, then a balanced-brace
// object scan. All three failing is an error, not a fault; the caller treats
// it as "no proposal".
func ParseProposal(raw string) (*types.PatchProposal, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, fmt.Errorf("empty model response")
	}

	var payload proposalPayload
	if err := json.Unmarshal([]byte(text), &payload); err == nil {
		return payload.toProposal()
	}

	if m := fencedJSONRe.FindStringSubmatch(text); m != nil {
		if err := json.Unmarshal([]byte(m[1]), &payload); err == nil {
			return payload.toProposal()
		}
	}

	// Last resort: find the first balanced JSON object anywhere in the
	// reply and pull fields tolerantly.
	if obj := extractJSONObject(text); obj != "" && gjson.Valid(obj) {
		payload = proposalPayload{
			PatchCode:   gjson.Get(obj, "patch_code").String(),
			Explanation: gjson.Get(obj, "explanation").String(),
		}
		if c := gjson.Get(obj, "confidence"); c.Exists() {
			v := c.Float()
			payload.Confidence = &v
		}
		for _, tc := range gjson.Get(obj, "test_cases").Array() {
			payload.TestCases = append(payload.TestCases, tc.String())
		}
		return payload.toProposal()
	}

	return nil, fmt.Errorf("model response is not valid JSON")
}

func (p proposalPayload) toProposal() (*types.PatchProposal, error) {
	if strings.TrimSpace(p.PatchCode) == "" {
		return nil, fmt.Errorf("model response missing patch_code")
	}

	confidence := 0.5
	if p.Confidence != nil {
		confidence = *p.Confidence
	}
	if confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}

	testCases := p.TestCases
	if testCases == nil {
		testCases = []string{}
	}

	return &types.PatchProposal{
		PatchCode:   p.PatchCode,
		Explanation: p.Explanation,
		Confidence:  confidence,
		TestCases:   testCases,
	}, nil
}

// extractJSONObject scans for the first balanced JSON object in the text,
// tracking string and escape state so braces inside literals don't count.
func extractJSONObject(text string) string {
	start := strings.Index(text, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			escaped = true
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1]
				}
			}
		}
	}
	return ""
}
