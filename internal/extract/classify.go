package extract

import "strings"

// protocolMarkers are field names that only show up in AIO protocol
// envelopes. Matching is by substring, so a hit is a hint, not a proof.
var protocolMarkers = []string{
	`"protocol"`,
	`"aioProtocol"`,
	`"protocolStep"`,
	`"trace_id"`,
}

// IsLikelyJSON reports whether text is shaped like a JSON object or array
// once surrounding whitespace is removed. It does not parse.
func IsLikelyJSON(text string) bool {
	t := strings.TrimSpace(text)
	if len(t) < 2 {
		return false
	}
	first, last := t[0], t[len(t)-1]
	return (first == '{' && last == '}') || (first == '[' && last == ']')
}

// IsLikelyProtocolPayload reports whether text mentions any AIO protocol
// marker field.
func IsLikelyProtocolPayload(text string) bool {
	for _, marker := range protocolMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}
