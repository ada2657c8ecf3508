package tree

import (
	"fmt"
	"strconv"
	"strings"
)

// Segment is one step of a concrete path: a mapping key or a sequence index.
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

// Key returns a mapping-key segment.
func Key(k string) Segment { return Segment{Key: k} }

// Idx returns a sequence-index segment.
func Idx(i int) Segment { return Segment{Index: i, IsIndex: true} }

// Path is the sequence of keys and indices leading from a snapshot root to
// a node.
type Path []Segment

// Append returns a new path with seg added; p is left untouched.
func (p Path) Append(seg Segment) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, seg)
}

// HasPrefix reports whether p starts with prefix.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i := range prefix {
		if p[i] != prefix[i] {
			return false
		}
	}
	return true
}

// String renders p in dotted form, e.g. IAM.Roles[0].Arn. Keys that
// contain separators are written as ["quoted"] segments.
func (p Path) String() string {
	var b strings.Builder
	for i, seg := range p {
		switch {
		case seg.IsIndex:
			b.WriteString("[" + strconv.Itoa(seg.Index) + "]")
		case needsQuoting(seg.Key):
			b.WriteString("[" + strconv.Quote(seg.Key) + "]")
		default:
			if i > 0 {
				b.WriteByte('.')
			}
			b.WriteString(seg.Key)
		}
	}
	return b.String()
}

func needsQuoting(k string) bool {
	return k == "" || k == "*" || strings.ContainsAny(k, `.[]"`)
}

// ParsePath parses the dotted form produced by Path.String. Wildcards are
// rejected.
func ParsePath(s string) (Path, error) {
	pat, err := ParsePattern(s)
	if err != nil {
		return nil, err
	}
	p := make(Path, 0, len(pat))
	for _, seg := range pat {
		switch seg.Kind {
		case MatchKey:
			p = append(p, Key(seg.Key))
		case MatchIndex:
			p = append(p, Idx(seg.Index))
		default:
			return nil, fmt.Errorf("path %q: wildcards are not allowed in a concrete path", s)
		}
	}
	return p, nil
}

// MustParsePath is ParsePath for literals known to be valid.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}
