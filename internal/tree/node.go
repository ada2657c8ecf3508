// Package tree models a service configuration snapshot as a tagged tree of
// leaves, mappings and sequences. Mappings keep their keys in insertion
// order so traversal follows the document order of the fetched data.
package tree

import (
	"fmt"
	"sort"
	"strconv"
)

// Kind tags the variant held by a Node.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindMap
	KindSeq
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindMap:
		return "mapping"
	case KindSeq:
		return "sequence"
	default:
		return "unknown"
	}
}

// Node is one value in a configuration tree. The zero value is a null leaf.
type Node struct {
	kind     Kind
	str      string
	num      float64
	boolean  bool
	keys     []string
	children map[string]*Node
	items    []*Node
}

// Null returns a null leaf.
func Null() *Node { return &Node{kind: KindNull} }

// String returns a string leaf.
func String(s string) *Node { return &Node{kind: KindString, str: s} }

// Number returns a numeric leaf.
func Number(f float64) *Node { return &Node{kind: KindNumber, num: f} }

// Bool returns a boolean leaf.
func Bool(b bool) *Node { return &Node{kind: KindBool, boolean: b} }

// NewMap returns an empty mapping.
func NewMap() *Node { return &Node{kind: KindMap, children: make(map[string]*Node)} }

// NewSeq returns an empty sequence.
func NewSeq() *Node { return &Node{kind: KindSeq} }

// Kind returns the variant tag of n. A nil node reports KindNull.
func (n *Node) Kind() Kind {
	if n == nil {
		return KindNull
	}
	return n.kind
}

// IsLeaf reports whether n is a scalar or null.
func (n *Node) IsLeaf() bool {
	k := n.Kind()
	return k != KindMap && k != KindSeq
}

// Set stores child under key. Replacing an existing key keeps its position.
// Set panics when n is not a mapping.
func (n *Node) Set(key string, child *Node) *Node {
	if n.kind != KindMap {
		panic(fmt.Sprintf("tree: Set on %s node", n.kind))
	}
	if child == nil {
		child = Null()
	}
	if _, exists := n.children[key]; !exists {
		n.keys = append(n.keys, key)
	}
	n.children[key] = child
	return n
}

// Append adds child to the end of a sequence. Append panics when n is not a
// sequence.
func (n *Node) Append(child *Node) *Node {
	if n.kind != KindSeq {
		panic(fmt.Sprintf("tree: Append on %s node", n.kind))
	}
	if child == nil {
		child = Null()
	}
	n.items = append(n.items, child)
	return n
}

// Child returns the child stored under key. It reports false when n is not
// a mapping or the key is absent.
func (n *Node) Child(key string) (*Node, bool) {
	if n.Kind() != KindMap {
		return nil, false
	}
	c, ok := n.children[key]
	return c, ok
}

// Index returns the i-th element of a sequence.
func (n *Node) Index(i int) (*Node, bool) {
	if n.Kind() != KindSeq || i < 0 || i >= len(n.items) {
		return nil, false
	}
	return n.items[i], true
}

// Keys returns the mapping keys in insertion order.
func (n *Node) Keys() []string {
	if n.Kind() != KindMap {
		return nil
	}
	return append([]string(nil), n.keys...)
}

// Items returns the sequence elements in order.
func (n *Node) Items() []*Node {
	if n.Kind() != KindSeq {
		return nil
	}
	return append([]*Node(nil), n.items...)
}

// Len returns the number of children of a mapping or sequence, the length of
// a string leaf, and 0 otherwise.
func (n *Node) Len() int {
	switch n.Kind() {
	case KindMap:
		return len(n.keys)
	case KindSeq:
		return len(n.items)
	case KindString:
		return len(n.str)
	default:
		return 0
	}
}

// Str returns the string value of a string leaf.
func (n *Node) Str() (string, bool) {
	if n.Kind() != KindString {
		return "", false
	}
	return n.str, true
}

// Num returns the value of a numeric leaf.
func (n *Node) Num() (float64, bool) {
	if n.Kind() != KindNumber {
		return 0, false
	}
	return n.num, true
}

// BoolValue returns the value of a boolean leaf.
func (n *Node) BoolValue() (bool, bool) {
	if n.Kind() != KindBool {
		return false, false
	}
	return n.boolean, true
}

// Text renders a leaf as plain text: strings verbatim, numbers in shortest
// form, booleans as true/false, null as "". Containers render as "".
func (n *Node) Text() string {
	switch n.Kind() {
	case KindString:
		return n.str
	case KindNumber:
		return strconv.FormatFloat(n.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(n.boolean)
	default:
		return ""
	}
}

// Get returns the node at p, or false when any segment is absent or
// addresses the wrong container kind.
func (n *Node) Get(p Path) (*Node, bool) {
	cur := n
	for _, seg := range p {
		var ok bool
		if seg.IsIndex {
			cur, ok = cur.Index(seg.Index)
		} else {
			cur, ok = cur.Child(seg.Key)
		}
		if !ok {
			return nil, false
		}
	}
	return cur, cur != nil
}

// Interface converts n into plain Go values: map[string]any, []any,
// string, float64, bool or nil.
func (n *Node) Interface() any {
	switch n.Kind() {
	case KindString:
		return n.str
	case KindNumber:
		return n.num
	case KindBool:
		return n.boolean
	case KindMap:
		m := make(map[string]any, len(n.keys))
		for _, k := range n.keys {
			m[k] = n.children[k].Interface()
		}
		return m
	case KindSeq:
		s := make([]any, len(n.items))
		for i, it := range n.items {
			s[i] = it.Interface()
		}
		return s
	default:
		return nil
	}
}

// FromValue builds a tree from plain Go values as produced by
// encoding/json or yaml decoding into interface{}. Go maps carry no order,
// so their keys are sorted to keep the result deterministic.
func FromValue(v any) (*Node, error) {
	switch t := v.(type) {
	case nil:
		return Null(), nil
	case *Node:
		return t, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Number(float64(t)), nil
	case int32:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case uint64:
		return Number(float64(t)), nil
	case []string:
		seq := NewSeq()
		for _, s := range t {
			seq.Append(String(s))
		}
		return seq, nil
	case []any:
		seq := NewSeq()
		for i, item := range t {
			c, err := FromValue(item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			seq.Append(c)
		}
		return seq, nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := NewMap()
		for _, k := range keys {
			c, err := FromValue(t[k])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			m.Set(k, c)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}
