package extract

import "strings"

// RepairJSON rewrites near-valid JSON into something more likely to parse.
// It is a text transform, not a validator: the result may still be invalid
// and callers must handle a failed parse. When no repair applies, s is
// returned unchanged.
//
// Handled patterns:
//   - markdown code fences around the payload
//   - invalid escape sequences inside strings (e.g. \% or \Y)
//   - raw newlines, carriage returns and tabs inside strings
//   - trailing commas before a closing brace or bracket
//   - unterminated strings, objects and arrays at end of input
//   - a dangling key with no value at end of input
func RepairJSON(s string) string {
	body, changed := stripCodeFence(s)

	var buf strings.Builder
	buf.Grow(len(body) + 8)

	var closers []byte
	inString := false

	for i := 0; i < len(body); i++ {
		ch := body[i]

		if inString {
			switch ch {
			case '\\':
				if i+1 >= len(body) {
					// lone backslash at end of input
					changed = true
					continue
				}
				switch body[i+1] {
				case '"', '\\', '/', 'b', 'f', 'n', 'r', 't', 'u':
					buf.WriteByte(ch)
					buf.WriteByte(body[i+1])
					i++
				default:
					changed = true
				}
			case '"':
				inString = false
				buf.WriteByte(ch)
			case '\n':
				buf.WriteString(`\n`)
				changed = true
			case '\r':
				buf.WriteString(`\r`)
				changed = true
			case '\t':
				buf.WriteString(`\t`)
				changed = true
			default:
				buf.WriteByte(ch)
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			closers = append(closers, '}')
		case '[':
			closers = append(closers, ']')
		case '}', ']':
			if n := len(closers); n > 0 && closers[n-1] == ch {
				closers = closers[:n-1]
			}
		case ',':
			if next := nextSignificant(body, i+1); next == '}' || next == ']' || next == 0 {
				changed = true
				continue
			}
		}
		buf.WriteByte(ch)
	}

	if inString {
		buf.WriteByte('"')
		changed = true
	}

	if len(closers) > 0 {
		out := strings.TrimRight(buf.String(), " \t\r\n")
		if strings.HasSuffix(out, ":") {
			out += "null"
		}
		buf.Reset()
		buf.WriteString(out)
		for i := len(closers) - 1; i >= 0; i-- {
			buf.WriteByte(closers[i])
		}
		changed = true
	}

	if !changed {
		return s
	}
	return buf.String()
}

// stripCodeFence removes a surrounding ```json ... ``` block.
func stripCodeFence(s string) (string, bool) {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return s, false
	}

	body := trimmed[3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		// drop the language tag line
		body = body[nl+1:]
	} else {
		body = strings.TrimPrefix(strings.TrimPrefix(body, "json"), "JSON")
	}
	body = strings.TrimSpace(body)
	body = strings.TrimSuffix(body, "```")
	return strings.TrimSpace(body), true
}

// nextSignificant returns the next non-whitespace byte at or after i, or 0
// at end of input.
func nextSignificant(s string, i int) byte {
	for ; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\r', '\n':
			continue
		default:
			return s[i]
		}
	}
	return 0
}
