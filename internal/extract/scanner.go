package extract

// findJSONCandidates returns every top-level JSON object or array embedded
// in s, in order of appearance. Braces inside string literals are ignored.
// A value still open at end of input is returned as a final, truncated
// candidate so the caller can try to repair it.
//
// Iterating bytes is safe here: UTF-8 never encodes the ASCII delimiters
// we look for inside a multi-byte sequence.
func findJSONCandidates(s string) []string {
	var candidates []string
	depth := 0
	start := -1
	inString := false
	escape := false

	for i := 0; i < len(s); i++ {
		b := s[i]

		if escape {
			escape = false
			continue
		}
		if inString {
			if b == '\\' {
				escape = true
			} else if b == '"' {
				inString = false
			}
			continue
		}

		switch b {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{', '[':
			if depth == 0 {
				start = i
			}
			depth++
		case '}', ']':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				candidates = append(candidates, s[start:i+1])
				start = -1
			}
		}
	}

	if depth > 0 && start >= 0 {
		candidates = append(candidates, s[start:])
	}
	return candidates
}
