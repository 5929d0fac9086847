// ABOUTME: Normalizes the agent endpoint's drifted response schemas
// ABOUTME: Ordered matchers map arbitrary JSON into display text plus structured data

package reply

import (
	"encoding/json"
	"math"
)

// FallbackText is the answer shown when no recognized shape matches.
const FallbackText = "I apologize, but I encountered an error. Please try again."

// Reply is the structured portion of a normalized agent response.
type Reply struct {
	Answer           string   `json:"answer"`
	Sources          []string `json:"sources,omitempty"`
	Confidence       *float64 `json:"confidence,omitempty"`
	SuggestedActions []string `json:"suggested_actions,omitempty"`
}

// Normalized is the canonical internal form of an agent response: the text to
// display, plus structured data when the payload carried any.
type Normalized struct {
	Text string
	Data *Reply
}

// matcher pairs a shape predicate with its extractor. Matchers are evaluated
// in declaration order; the first match wins.
type matcher struct {
	name    string
	match   func(payload map[string]any) bool
	extract func(payload map[string]any) Normalized
}

var matchers = []matcher{
	{
		name: "result_answer",
		match: func(p map[string]any) bool {
			obj, ok := asObject(p["result"])
			return ok && hasString(obj, "answer")
		},
		extract: func(p map[string]any) Normalized {
			obj, _ := asObject(p["result"])
			return fromAnswerObject(obj)
		},
	},
	{
		name: "result_object",
		match: func(p map[string]any) bool {
			_, ok := asObject(p["result"])
			return ok
		},
		extract: func(p map[string]any) Normalized {
			obj, _ := asObject(p["result"])
			return Normalized{Text: prettyJSON(obj)}
		},
	},
	{
		name: "success_response",
		match: func(p map[string]any) bool {
			return truthy(p["success"]) && truthy(p["response"])
		},
		extract: func(p map[string]any) Normalized {
			return extractResponse(p["response"])
		},
	},
	{
		name: "raw_response",
		match: func(p map[string]any) bool {
			return truthy(p["raw_response"])
		},
		extract: func(p map[string]any) Normalized {
			return extractRaw(p["raw_response"])
		},
	},
}

// Normalize maps an arbitrary agent payload into its canonical form. It is
// total: malformed JSON, null, and unrecognized shapes all produce the fixed
// fallback text with no structured data.
func Normalize(payload json.RawMessage) Normalized {
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return Normalized{Text: FallbackText}
	}

	obj, ok := asObject(decoded)
	if !ok {
		return Normalized{Text: FallbackText}
	}

	for _, m := range matchers {
		if m.match(obj) {
			return m.extract(obj)
		}
	}
	return Normalized{Text: FallbackText}
}

// ConfidencePercent renders a confidence fraction as a whole percentage,
// clamped to [0, 100].
func ConfidencePercent(v float64) int {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 100
	}
	return int(math.Round(v * 100))
}

// extractResponse handles the `success` + `response` shape, where response
// may be a plain string or one of several object layouts.
func extractResponse(v any) Normalized {
	if s, ok := v.(string); ok {
		return Normalized{Text: s}
	}

	obj, ok := asObject(v)
	if !ok {
		return Normalized{Text: prettyJSON(v)}
	}

	if hasString(obj, "answer") {
		return fromAnswerObject(obj)
	}
	if hasString(obj, "message") {
		return Normalized{Text: obj["message"].(string)}
	}
	if nested, ok := asObject(obj["result"]); ok && hasString(nested, "answer") {
		return fromAnswerObject(nested)
	}
	return Normalized{Text: prettyJSON(obj)}
}

// extractRaw handles the `raw_response` shape.
func extractRaw(v any) Normalized {
	if s, ok := v.(string); ok {
		return Normalized{Text: s}
	}
	if obj, ok := asObject(v); ok && hasString(obj, "answer") {
		return fromAnswerObject(obj)
	}
	return Normalized{Text: prettyJSON(v)}
}

// fromAnswerObject extracts the full structured reply from an object known to
// carry a non-empty answer. Sibling fields are optional.
func fromAnswerObject(obj map[string]any) Normalized {
	r := &Reply{
		Answer:           obj["answer"].(string),
		Sources:          toStringSlice(obj["sources"]),
		SuggestedActions: toStringSlice(obj["suggested_actions"]),
	}
	if f, ok := toFloat(obj["confidence"]); ok {
		r.Confidence = &f
	}
	return Normalized{Text: r.Answer, Data: r}
}

// asObject returns v as a JSON object if it is one.
func asObject(v any) (map[string]any, bool) {
	obj, ok := v.(map[string]any)
	return obj, ok
}

// hasString reports whether obj carries a non-empty string at key.
func hasString(obj map[string]any, key string) bool {
	s, ok := obj[key].(string)
	return ok && s != ""
}

// truthy mirrors loose boolean coercion: nil, false, zero, and the empty
// string are falsy, everything else is truthy.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	default:
		return true
	}
}

// toFloat returns v as a float64 if it is numeric.
func toFloat(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

// toStringSlice extracts the string elements of a JSON array, skipping
// anything else. Non-array input yields nil.
func toStringSlice(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, el := range arr {
		if s, ok := el.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// prettyJSON renders a decoded value as indented JSON for the schema-drift
// fallbacks. Encoding a value that came from json.Unmarshal cannot fail.
func prettyJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return FallbackText
	}
	return string(data)
}
