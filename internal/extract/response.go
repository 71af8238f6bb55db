package extract

import (
	"encoding/json"
	"regexp"
	"strings"
)

// NoResponseContent is returned for an empty payload.
const NoResponseContent = "No response content available."

// ResponseMarker starts the user-facing section of markdown agent output.
const ResponseMarker = "**Response:**"

var responseFieldPattern = regexp.MustCompile(`"response"\s*:\s*"((?:[^"\\]|\\.)*)"`)

// ExtractResponseFromContent reduces a raw backend payload to the text shown
// to the user. Strategies are tried in order and the first hit wins:
//
//  1. text after the first **Response:** marker
//  2. a "response" string pulled by pattern from protocol-shaped payloads,
//     even when the surrounding JSON does not parse
//  3. a "response" field found by ExtractJSONFromChatMessage
//  4. the content itself, unchanged
//
// An empty payload yields NoResponseContent. A marker with nothing after it
// yields "": the marker decides even when its section is blank.
func ExtractResponseFromContent(content string) string {
	if content == "" {
		return NoResponseContent
	}

	if _, after, found := strings.Cut(content, ResponseMarker); found {
		return strings.TrimSpace(after)
	}

	if IsLikelyProtocolPayload(content) {
		if response, ok := matchResponseField(content); ok {
			return response
		}
	}

	if result := ExtractJSONFromChatMessage(content); result.Success {
		return result.Response
	}

	return content
}

func matchResponseField(content string) (string, bool) {
	m := responseFieldPattern.FindStringSubmatch(content)
	if m == nil {
		return "", false
	}
	value := m[1]
	var unquoted string
	if err := json.Unmarshal([]byte(`"`+value+`"`), &unquoted); err == nil {
		value = unquoted
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}
