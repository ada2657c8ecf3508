package tree

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// MarshalJSON implements json.Marshaler. Mapping keys are written in
// insertion order, so a tree decoded with ParseJSON re-encodes with the
// same key order.
func (n *Node) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := n.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (n *Node) encode(buf *bytes.Buffer) error {
	switch n.Kind() {
	case KindString:
		b, err := json.Marshal(n.str)
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindNumber:
		if math.IsNaN(n.num) || math.IsInf(n.num, 0) {
			buf.WriteString("null")
			return nil
		}
		buf.WriteString(strconv.FormatFloat(n.num, 'f', -1, 64))
	case KindBool:
		buf.WriteString(strconv.FormatBool(n.boolean))
	case KindMap:
		buf.WriteByte('{')
		for i, k := range n.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := n.children[k].encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case KindSeq:
		buf.WriteByte('[')
		for i, it := range n.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := it.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		buf.WriteString("null")
	}
	return nil
}

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := &Node{kind: n.kind, str: n.str, num: n.num, boolean: n.boolean}
	switch n.kind {
	case KindMap:
		out.keys = append([]string(nil), n.keys...)
		out.children = make(map[string]*Node, len(n.children))
		for k, c := range n.children {
			out.children[k] = c.Clone()
		}
	case KindSeq:
		out.items = make([]*Node, len(n.items))
		for i, c := range n.items {
			out.items[i] = c.Clone()
		}
	}
	return out
}
