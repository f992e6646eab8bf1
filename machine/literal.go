package machine

// ParseLiteral parses a numeric literal per spec.md §4.9: an optional
// radix prefix (# = 10, $ = 16, % = 2, otherwise defaultBase), an optional
// leading '+' or '-', then digits in that radix. It reports (0, false) for
// anything that isn't a clean, fully-consumed literal.
func ParseLiteral(word []byte, defaultBase uint16) (uint16, bool) {
	if len(word) == 0 {
		return 0, false
	}

	base := defaultBase
	rest := word
	switch rest[0] {
	case '#':
		base, rest = 10, rest[1:]
	case '$':
		base, rest = 16, rest[1:]
	case '%':
		base, rest = 2, rest[1:]
	}
	if len(rest) == 0 {
		return 0, false
	}

	neg := false
	switch rest[0] {
	case '-':
		neg, rest = true, rest[1:]
	case '+':
		rest = rest[1:]
	}
	if len(rest) == 0 {
		return 0, false
	}

	var mag uint32
	for _, c := range rest {
		d, ok := digitValue(byte(c))
		if !ok || uint16(d) >= base {
			return 0, false
		}
		mag = mag*uint32(base) + uint32(d)
		if mag > 0xFFFF {
			return 0, false
		}
	}

	if neg {
		// the magnitude must fit i16's negative range before it is
		// wrapped to its two's-complement u16 bit pattern.
		if mag > 32768 {
			return 0, false
		}
		return uint16(-int32(mag)), true
	}
	return uint16(mag), true
}

func digitValue(c byte) (int, bool) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), true
	case c >= 'A' && c <= 'Z':
		return int(c-'A') + 10, true
	case c >= 'a' && c <= 'z':
		return int(c-'a') + 10, true
	default:
		return 0, false
	}
}
