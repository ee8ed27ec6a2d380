// Package id implements the fixed-width decimal node identifier and the
// pure topology arithmetic (parent, children, depth) that is derived
// from it. A node's position in the tree is fully encoded in its id;
// there is no separate membership or discovery mechanism.
package id

import (
	"strconv"
	"strings"

	"golang.org/x/xerrors"
)

// Width is the fixed length of every NodeId.
const Width = 5

// MaxDepth is the deepest a node can be (a leaf at the last position).
const MaxDepth = Width - 1

// NodeId is a 5-character decimal address encoding a node's position in
// the hierarchy. Position 0 is a fixed realm digit. The first '0' in the
// string marks the start of the unassigned suffix; everything before it
// (excluding position 0) is the node's path from the root.
type NodeId string

// ErrInvalid is returned when a string is not a well-formed NodeId.
var ErrInvalid = xerrors.New("invalid node id")

// New validates s as a NodeId. s must be exactly Width decimal digits.
func New(s string) (NodeId, error) {
	if len(s) != Width {
		return "", xerrors.Errorf("%w: want %d digits, got %q", ErrInvalid, Width, s)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", xerrors.Errorf("%w: non-digit in %q", ErrInvalid, s)
		}
	}
	return NodeId(s), nil
}

// RoutingKey returns the dot-joined digit form, e.g. "21300" -> "2.1.3.0.0".
func (n NodeId) RoutingKey() string {
	digits := make([]string, len(n))
	for i, r := range string(n) {
		digits[i] = string(r)
	}
	return strings.Join(digits, ".")
}

// Port returns the raw digit form (the NodeId itself).
func (n NodeId) Port() string {
	return string(n)
}

// FromRoutingKey parses the dot-joined form back into a NodeId.
func FromRoutingKey(key string) (NodeId, error) {
	parts := strings.Split(key, ".")
	if len(parts) != Width {
		return "", xerrors.Errorf("%w: routing key %q has %d parts, want %d", ErrInvalid, key, len(parts), Width)
	}
	var b strings.Builder
	for _, p := range parts {
		if len(p) != 1 || p[0] < '0' || p[0] > '9' {
			return "", xerrors.Errorf("%w: routing key %q has non-digit segment %q", ErrInvalid, key, p)
		}
		b.WriteString(p)
	}
	return New(b.String())
}

// Depth returns the index of the first '0' digit minus one, or MaxDepth
// if the id has no '0' (a full-depth leaf).
func (n NodeId) Depth() int {
	s := string(n)
	for i := 1; i < len(s); i++ {
		if s[i] == '0' {
			return i - 1
		}
	}
	return MaxDepth
}

// Parent returns the id's parent by replacing the rightmost non-zero
// digit with '0'. It returns ("", false) if n is already a realm root
// (e.g. "20000").
func (n NodeId) Parent() (NodeId, bool) {
	s := []byte(string(n))
	for i := len(s) - 1; i >= 1; i-- {
		if s[i] != '0' {
			s[i] = '0'
			return NodeId(s), true
		}
	}
	return "", false
}

// Children returns the A direct children of n, numbered 1..A at the
// leftmost '0' position. It returns an error if n has no '0' (it is
// already a full-depth leaf) or if that '0' is at position 0.
func (n NodeId) Children(arity int) ([]NodeId, error) {
	if arity < 1 || arity > 9 {
		return nil, xerrors.Errorf("%w: arity %d out of range [1,9]", ErrInvalid, arity)
	}
	s := string(n)
	pos := -1
	for i := 0; i < len(s); i++ {
		if s[i] == '0' {
			pos = i
			break
		}
	}
	if pos == -1 {
		return nil, xerrors.Errorf("%w: %q is a full-depth leaf, has no children", ErrInvalid, n)
	}
	if pos == 0 {
		return nil, xerrors.Errorf("%w: %q has its leftmost zero at the realm digit", ErrInvalid, n)
	}
	out := make([]NodeId, arity)
	for k := 1; k <= arity; k++ {
		b := []byte(s)
		b[pos] = byte('0' + k)
		out[k-1] = NodeId(b)
	}
	return out, nil
}

// PortInt returns the numeric port value of the id.
func (n NodeId) PortInt() (int, error) {
	return strconv.Atoi(string(n))
}

// String implements fmt.Stringer.
func (n NodeId) String() string {
	return string(n)
}
