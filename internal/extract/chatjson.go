package extract

import (
	"encoding/json"
	"sort"
	"strings"
)

// Result is the outcome of a structured extraction. Response is only
// meaningful when Success is true.
type Result struct {
	Success  bool
	Response string
}

// ExtractJSONFromChatMessage looks for a JSON value inside content and pulls
// a "response" string out of it, either at the top level or one level down.
// The JSON may be wrapped in prose or fenced; malformed candidates get one
// pass through RepairJSON before being discarded. It never fails: anything
// unparseable or missing a response yields a zero Result.
func ExtractJSONFromChatMessage(content string) Result {
	for _, candidate := range chatCandidates(content) {
		value, ok := decodeLenient(candidate)
		if !ok {
			continue
		}
		if response, ok := findResponse(value); ok {
			return Result{Success: true, Response: response}
		}
	}
	return Result{}
}

func chatCandidates(content string) []string {
	trimmed := strings.TrimSpace(content)
	var candidates []string
	if IsLikelyJSON(trimmed) {
		candidates = append(candidates, trimmed)
	}
	for _, c := range findJSONCandidates(content) {
		if c != trimmed {
			candidates = append(candidates, c)
		}
	}
	return candidates
}

// decodeLenient parses raw, retrying once with the repaired text.
func decodeLenient(raw string) (any, bool) {
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err == nil {
		return value, true
	}
	repaired := RepairJSON(raw)
	if repaired == raw {
		return nil, false
	}
	if err := json.Unmarshal([]byte(repaired), &value); err != nil {
		return nil, false
	}
	return value, true
}

func findResponse(value any) (string, bool) {
	switch v := value.(type) {
	case map[string]any:
		if s, ok := responseField(v); ok {
			return s, true
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if nested, ok := v[k].(map[string]any); ok {
				if s, ok := responseField(nested); ok {
					return s, true
				}
			}
		}
	case []any:
		for _, elem := range v {
			if obj, ok := elem.(map[string]any); ok {
				if s, ok := responseField(obj); ok {
					return s, true
				}
			}
		}
	}
	return "", false
}

func responseField(obj map[string]any) (string, bool) {
	s, ok := obj["response"].(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}
