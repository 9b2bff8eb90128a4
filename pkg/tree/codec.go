package tree

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/fxamacker/cbor/v2"
)

// Value returns the plain Go representation of n with priorities stripped:
// nil, bool, float64, string, or map[string]any.
func (n *Node) Value() any {
	switch n.kind {
	case KindNull:
		return nil
	case KindBool:
		return n.boolVal
	case KindNumber:
		return n.numVal
	case KindString:
		return n.strVal
	default:
		m := make(map[string]any, len(n.children))
		for _, c := range n.children {
			m[c.Key] = c.Node.Value()
		}
		return m
	}
}

// Export returns the export representation of n, which preserves priorities:
// a prioritized leaf becomes {".value": v, ".priority": p} and a prioritized
// map carries a ".priority" entry. ValueOf is its inverse.
func (n *Node) Export() any {
	pri := n.Priority()

	if n.kind == KindMap {
		m := make(map[string]any, len(n.children)+1)
		for _, c := range n.children {
			m[c.Key] = c.Node.Export()
		}
		if !pri.IsEmpty() {
			m[".priority"] = pri.Value()
		}
		return m
	}

	if pri.IsEmpty() {
		return n.Value()
	}
	return map[string]any{
		".value":    n.Value(),
		".priority": pri.Value(),
	}
}

// MarshalCBOR encodes n in its export representation.
func (n *Node) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(n.Export())
}

// UnmarshalCBOR decodes an export representation produced by MarshalCBOR.
func (n *Node) UnmarshalCBOR(data []byte) error {
	var raw any
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return err
	}
	decoded, err := ValueOf(raw)
	if err != nil {
		return err
	}
	*n = *decoded
	return nil
}

// Hash returns a stable 64-bit digest of n including priorities and child
// order. Equal trees hash equally; the digest serves as the transaction
// pre-image version.
func (n *Node) Hash() uint64 {
	d := xxhash.New()
	n.hashInto(d)
	return d.Sum64()
}

func (n *Node) hashInto(d *xxhash.Digest) {
	var buf [8]byte

	_, _ = d.Write([]byte{byte(n.kind)})
	switch n.kind {
	case KindBool:
		if n.boolVal {
			_, _ = d.Write([]byte{1})
		} else {
			_, _ = d.Write([]byte{0})
		}
	case KindNumber:
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(n.numVal))
		_, _ = d.Write(buf[:])
	case KindString:
		_, _ = d.WriteString(n.strVal)
	case KindMap:
		for _, c := range n.children {
			_, _ = d.WriteString(c.Key)
			_, _ = d.Write([]byte{0})
			c.Node.hashInto(d)
		}
	}

	if pri := n.Priority(); !pri.IsEmpty() {
		_, _ = d.Write([]byte{0xfe})
		pri.hashInto(d)
	}
}
