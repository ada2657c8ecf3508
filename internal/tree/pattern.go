package tree

import (
	"fmt"
	"strconv"
	"strings"
)

// MatchKind selects how a pattern segment matches tree children.
type MatchKind uint8

const (
	// MatchKey matches one named mapping key.
	MatchKey MatchKind = iota
	// MatchAnyKey matches every key of a mapping ("*").
	MatchAnyKey
	// MatchIndex matches one sequence index ("[3]").
	MatchIndex
	// MatchAnyIndex matches every element of a sequence ("[]" or "[*]").
	MatchAnyIndex
)

// PatternSegment is one step of a Pattern.
type PatternSegment struct {
	Kind  MatchKind
	Key   string
	Index int
}

// Pattern addresses a set of nodes. It is a Path whose segments may be
// wildcards.
type Pattern []PatternSegment

// String renders the pattern in the syntax accepted by ParsePattern.
func (p Pattern) String() string {
	var b strings.Builder
	for i, seg := range p {
		switch seg.Kind {
		case MatchAnyIndex:
			b.WriteString("[*]")
		case MatchIndex:
			b.WriteString("[" + strconv.Itoa(seg.Index) + "]")
		case MatchAnyKey:
			if i > 0 {
				b.WriteByte('.')
			}
			b.WriteByte('*')
		default:
			if needsQuoting(seg.Key) {
				b.WriteString("[" + strconv.Quote(seg.Key) + "]")
				continue
			}
			if i > 0 {
				b.WriteByte('.')
			}
			b.WriteString(seg.Key)
		}
	}
	return b.String()
}

// ParsePattern parses a dotted pattern such as
// "EC2.Regions.*.Instances[*].IamInstanceProfile.Arn". A bare "*" segment
// matches any mapping key; "[]" or "[*]" match any sequence index; "[n]"
// matches one index; ["quoted"] matches a key containing separators.
// The empty string parses to the empty pattern, which matches the root.
func ParsePattern(s string) (Pattern, error) {
	var out Pattern
	i := 0
	expectName := true
	for i < len(s) {
		switch c := s[i]; {
		case c == '[':
			end, seg, err := parseBracket(s, i)
			if err != nil {
				return nil, err
			}
			out = append(out, seg)
			i = end
			expectName = false
		case c == '.':
			if expectName {
				return nil, fmt.Errorf("pattern %q: empty segment at offset %d", s, i)
			}
			i++
			expectName = true
			if i == len(s) {
				return nil, fmt.Errorf("pattern %q: trailing separator", s)
			}
		default:
			if !expectName {
				return nil, fmt.Errorf("pattern %q: missing separator at offset %d", s, i)
			}
			j := i
			for j < len(s) && s[j] != '.' && s[j] != '[' {
				if s[j] == ']' || s[j] == '"' {
					return nil, fmt.Errorf("pattern %q: unexpected %q at offset %d", s, s[j], j)
				}
				j++
			}
			name := s[i:j]
			if name == "*" {
				out = append(out, PatternSegment{Kind: MatchAnyKey})
			} else {
				out = append(out, PatternSegment{Kind: MatchKey, Key: name})
			}
			i = j
			expectName = false
		}
	}
	return out, nil
}

// parseBracket parses the bracket group starting at s[start] == '['.
func parseBracket(s string, start int) (int, PatternSegment, error) {
	body := s[start+1:]
	if strings.HasPrefix(body, `"`) {
		quoted, err := strconv.QuotedPrefix(body)
		if err != nil {
			return 0, PatternSegment{}, fmt.Errorf("pattern %q: bad quoted key at offset %d: %w", s, start, err)
		}
		key, _ := strconv.Unquote(quoted)
		rest := body[len(quoted):]
		if !strings.HasPrefix(rest, "]") {
			return 0, PatternSegment{}, fmt.Errorf("pattern %q: unterminated bracket at offset %d", s, start)
		}
		return start + 1 + len(quoted) + 1, PatternSegment{Kind: MatchKey, Key: key}, nil
	}
	closeAt := strings.IndexByte(body, ']')
	if closeAt < 0 {
		return 0, PatternSegment{}, fmt.Errorf("pattern %q: unterminated bracket at offset %d", s, start)
	}
	inner := body[:closeAt]
	end := start + 1 + closeAt + 1
	if inner == "" || inner == "*" {
		return end, PatternSegment{Kind: MatchAnyIndex}, nil
	}
	idx, err := strconv.Atoi(inner)
	if err != nil || idx < 0 {
		return 0, PatternSegment{}, fmt.Errorf("pattern %q: invalid index %q", s, inner)
	}
	return end, PatternSegment{Kind: MatchIndex, Index: idx}, nil
}

// MustParsePattern is ParsePattern for literals known to be valid.
func MustParsePattern(s string) Pattern {
	p, err := ParsePattern(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Match is one concrete node selected by a pattern.
type Match struct {
	Path Path
	Node *Node
}

// MatchAll expands pattern against root and returns every concrete match in
// document order. Segments that address the wrong container kind or absent
// keys simply produce no matches.
func MatchAll(root *Node, pattern Pattern) []Match {
	if root == nil {
		return nil
	}
	var out []Match
	var walk func(n *Node, depth int, at Path)
	walk = func(n *Node, depth int, at Path) {
		if depth == len(pattern) {
			out = append(out, Match{Path: at, Node: n})
			return
		}
		seg := pattern[depth]
		switch seg.Kind {
		case MatchKey:
			if c, ok := n.Child(seg.Key); ok {
				walk(c, depth+1, at.Append(Key(seg.Key)))
			}
		case MatchAnyKey:
			if n.Kind() != KindMap {
				return
			}
			for _, k := range n.keys {
				walk(n.children[k], depth+1, at.Append(Key(k)))
			}
		case MatchIndex:
			if c, ok := n.Index(seg.Index); ok {
				walk(c, depth+1, at.Append(Idx(seg.Index)))
			}
		case MatchAnyIndex:
			if n.Kind() != KindSeq {
				return
			}
			for i, c := range n.items {
				walk(c, depth+1, at.Append(Idx(i)))
			}
		}
	}
	walk(root, 0, Path{})
	return out
}
