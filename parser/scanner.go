package parser

// firstObject returns the first balanced top-level {...} span in s. Braces inside
// JSON strings are ignored, and escapes inside strings are honored.
//
// Bytes are scanned directly: the delimiters are ASCII and UTF-8 never reuses
// ASCII bytes inside multi-byte sequences.
func firstObject(s string) (string, bool) {
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		b := s[i]
		if escaped {
			escaped = false
			continue
		}
		if inString {
			switch b {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
			continue
		}

		switch b {
		case '"':
			// outside an object a quote is prose
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
