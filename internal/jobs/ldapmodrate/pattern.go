package ldapmodrate

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
)

// Pattern is a DN template with numeric ranges. "[low-high]" expands to a
// random number in the range and "[low:high]" walks it in order, wrapping
// at the end. "[[" and "]]" produce literal brackets.
type Pattern struct {
	raw   string
	parts []patternPart
}

type patternPart struct {
	literal    string
	ranged     bool
	sequential bool
	low, high  int64
}

func ParsePattern(s string) (*Pattern, error) {
	p := &Pattern{raw: s}
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			p.parts = append(p.parts, patternPart{literal: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '[' && i+1 < len(s) && s[i+1] == '[':
			lit.WriteByte('[')
			i++
		case c == ']' && i+1 < len(s) && s[i+1] == ']':
			lit.WriteByte(']')
			i++
		case c == '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("pattern %q: unclosed '[' at offset %d", s, i)
			}
			part, err := parseRange(s[i+1 : i+end])
			if err != nil {
				return nil, fmt.Errorf("pattern %q: %w", s, err)
			}
			flush()
			p.parts = append(p.parts, part)
			i += end
		case c == ']':
			return nil, fmt.Errorf("pattern %q: unexpected ']' at offset %d", s, i)
		default:
			lit.WriteByte(c)
		}
	}
	flush()
	return p, nil
}

func parseRange(body string) (patternPart, error) {
	sep := strings.IndexAny(body, "-:")
	if sep <= 0 {
		return patternPart{}, fmt.Errorf("range %q must be low-high or low:high", body)
	}
	low, err := strconv.ParseInt(strings.TrimSpace(body[:sep]), 10, 64)
	if err != nil {
		return patternPart{}, fmt.Errorf("range %q: %w", body, err)
	}
	high, err := strconv.ParseInt(strings.TrimSpace(body[sep+1:]), 10, 64)
	if err != nil {
		return patternPart{}, fmt.Errorf("range %q: %w", body, err)
	}
	if high < low {
		return patternPart{}, fmt.Errorf("range %q: upper bound below lower bound", body)
	}
	return patternPart{ranged: true, sequential: body[sep] == ':', low: low, high: high}, nil
}

func (p *Pattern) String() string { return p.raw }

// Generator returns an independent expansion of p. Sequential ranges keep
// their position per generator; generators are not safe for concurrent use.
func (p *Pattern) Generator(rng *rand.Rand) *Generator {
	g := &Generator{pattern: p, rng: rng, next: make([]int64, len(p.parts))}
	for i, part := range p.parts {
		g.next[i] = part.low
	}
	return g
}

type Generator struct {
	pattern *Pattern
	rng     *rand.Rand
	next    []int64
	buf     strings.Builder
}

func (g *Generator) Next() string {
	g.buf.Reset()
	for i, part := range g.pattern.parts {
		if !part.ranged {
			g.buf.WriteString(part.literal)
			continue
		}
		var n int64
		if part.sequential {
			n = g.next[i]
			if n >= part.high {
				g.next[i] = part.low
			} else {
				g.next[i] = n + 1
			}
		} else {
			n = part.low + g.rng.Int64N(part.high-part.low+1)
		}
		g.buf.WriteString(strconv.FormatInt(n, 10))
	}
	return g.buf.String()
}
