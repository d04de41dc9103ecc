package query

import "strings"

// orToken is the boolean operator. Matching is quote-aware: OR inside double
// quotes is plain text, never a boundary.
const orToken = "OR"

// Variants compiles a query into its distinct OR'd variants: top-level OR
// split first, then parenthesized group distribution, deduplicated.
func Variants(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, part := range SplitTopLevelOR(text) {
		for _, v := range Expand(part) {
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

// Expand recursively distributes parenthesized OR groups across their
// surrounding context: "(A OR B) by:x" becomes {"A by:x", "B by:x"}.
// Idempotent: expanding already-expanded output is a no-op.
func Expand(text string) []string {
	var out []string
	seen := make(map[string]struct{})

	work := []string{text}
	for len(work) > 0 {
		cur := work[len(work)-1]
		work = work[:len(work)-1]

		start, end, ok := findInnermostORGroup(cur)
		if !ok {
			norm := Normalize(cur)
			if _, dup := seen[norm]; !dup {
				seen[norm] = struct{}{}
				out = append(out, norm)
			}
			continue
		}

		prefix, inner, suffix := cur[:start], cur[start+1:end], cur[end+1:]
		for _, alt := range splitUnquotedOR(inner) {
			work = append(work, splice(prefix, strings.TrimSpace(alt), suffix))
		}
	}
	return out
}

// SplitTopLevelOR splits on OR tokens that sit outside quotes and outside any
// parenthesized group: `"A OR B" OR C` yields ["A OR B", "C"].
func SplitTopLevelOR(text string) []string {
	var parts []string
	var cur strings.Builder
	depth := 0

	for _, f := range splitKeepingQuotes(text) {
		switch {
		case f.quoted:
			// quoted phrase, never a boundary
		case depth == 0 && f.raw == orToken:
			parts = append(parts, cur.String())
			cur.Reset()
			continue
		default:
			depth += strings.Count(f.raw, "(") - strings.Count(f.raw, ")")
			if depth < 0 {
				depth = 0
			}
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(f.raw)
	}
	parts = append(parts, cur.String())

	out := parts[:0]
	for _, p := range parts {
		if n := Normalize(p); n != "" {
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		out = append(out, "")
	}
	return out
}

type field struct {
	raw    string // original token, quotes included
	quoted bool
}

// splitKeepingQuotes tokenizes on whitespace while keeping double-quoted
// phrases as single tokens.
func splitKeepingQuotes(s string) []field {
	var fields []field
	var cur strings.Builder
	inQuote := false

	flush := func() {
		if cur.Len() == 0 {
			return
		}
		tok := cur.String()
		fields = append(fields, field{raw: tok, quoted: strings.HasPrefix(tok, `"`)})
		cur.Reset()
	}

	for _, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
			cur.WriteRune(r)
		case !inQuote && (r == ' ' || r == '\t' || r == '\n'):
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return fields
}

// findInnermostORGroup locates the deepest parenthesized group whose content
// contains an unquoted OR token. Returns the indices of the opening and
// closing parenthesis.
func findInnermostORGroup(s string) (int, int, bool) {
	inQuote := false
	var stack []int
	bestStart, bestEnd, bestDepth := -1, -1, -1

	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			inQuote = !inQuote
		case '(':
			if !inQuote {
				stack = append(stack, i)
			}
		case ')':
			if inQuote || len(stack) == 0 {
				continue
			}
			open := stack[len(stack)-1]
			depth := len(stack)
			stack = stack[:len(stack)-1]
			if depth > bestDepth && containsUnquotedOR(s[open+1:i]) {
				bestStart, bestEnd, bestDepth = open, i, depth
			}
		}
	}
	if bestStart < 0 {
		return 0, 0, false
	}
	return bestStart, bestEnd, true
}

func containsUnquotedOR(s string) bool {
	for _, f := range splitKeepingQuotes(s) {
		if !f.quoted && f.raw == orToken {
			return true
		}
	}
	return false
}

// splitUnquotedOR splits a group body on unquoted OR tokens.
func splitUnquotedOR(s string) []string {
	var parts []string
	var cur strings.Builder
	for _, f := range splitKeepingQuotes(s) {
		if !f.quoted && f.raw == orToken {
			parts = append(parts, cur.String())
			cur.Reset()
			continue
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(f.raw)
	}
	parts = append(parts, cur.String())
	return parts
}

// splice rejoins the surrounding context around one alternative, inserting a
// disambiguating space only where plain concatenation would fuse two tokens
// (for example a bare word directly followed by a dot-extension).
func splice(prefix, alt, suffix string) string {
	var b strings.Builder
	b.WriteString(prefix)
	if needsSpace(lastByte(prefix), firstByte(alt)) {
		b.WriteByte(' ')
	}
	b.WriteString(alt)
	joined := b.String()
	if needsSpace(lastByte(joined), firstByte(suffix)) {
		joined += " "
	}
	return joined + suffix
}

func needsSpace(prev, next byte) bool {
	if prev == 0 || next == 0 {
		return false
	}
	return isTokenByte(prev) && (isTokenByte(next) || next == '.')
}

func isTokenByte(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	case b == '_', b == '#', b == '@', b == '"', b == '.', b == ':':
		return true
	}
	return false
}

func lastByte(s string) byte {
	if s == "" {
		return 0
	}
	return s[len(s)-1]
}

func firstByte(s string) byte {
	if s == "" {
		return 0
	}
	return s[0]
}
