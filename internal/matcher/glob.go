package matcher

// Glob reports whether name matches pattern using shell wildcard rules:
// '*' matches any run of characters, '?' matches one character and
// "[...]" matches a character class ("[!...]" negates). Unlike path.Match
// the '/' character has no special meaning, which matters for ARNs.
func Glob(pattern, name string) bool {
	p := []rune(pattern)
	n := []rune(name)

	px, nx := 0, 0
	starP, starN := -1, -1
	for nx < len(n) {
		if px < len(p) {
			switch p[px] {
			case '*':
				starP, starN = px, nx
				px++
				continue
			case '?':
				px++
				nx++
				continue
			case '[':
				if ok, width, valid := matchClass(p[px:], n[nx]); valid {
					if ok {
						px += width
						nx++
						continue
					}
				} else if n[nx] == '[' {
					px++
					nx++
					continue
				}
			default:
				if p[px] == n[nx] {
					px++
					nx++
					continue
				}
			}
		}
		if starP >= 0 {
			starN++
			px, nx = starP+1, starN
			continue
		}
		return false
	}
	for px < len(p) && p[px] == '*' {
		px++
	}
	return px == len(p)
}

// matchClass evaluates a bracket expression at the start of p against r.
// valid is false when the bracket is unterminated, in which case '[' is a
// literal.
func matchClass(p []rune, r rune) (ok bool, width int, valid bool) {
	i := 1
	negate := false
	if i < len(p) && p[i] == '!' {
		negate = true
		i++
	}
	start := i
	for i < len(p) && (p[i] != ']' || i == start) {
		lo := p[i]
		hi := lo
		if i+2 < len(p) && p[i+1] == '-' && p[i+2] != ']' {
			hi = p[i+2]
			i += 2
		}
		if lo <= r && r <= hi {
			ok = true
		}
		i++
	}
	if i >= len(p) {
		return false, 0, false
	}
	return ok != negate, i + 1, true
}
