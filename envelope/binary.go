package envelope

import (
	"bytes"
	"encoding/binary"
	"math"

	"golang.org/x/xerrors"
)

// Binary tag bytes, one per Kind.
const (
	tagWhite byte = iota + 1
	tagBlue
	tagOrange
	tagRed
)

func writeString(buf *bytes.Buffer, s string) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s)))
	buf.Write(lenBuf[:])
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	var lenBuf [4]byte
	if _, err := r.Read(lenBuf[:]); err != nil {
		return "", xerrors.Errorf("reading length prefix: %w", err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	s := make([]byte, n)
	if _, err := r.Read(s); err != nil {
		return "", xerrors.Errorf("reading %d-byte field: %w", n, err)
	}
	return string(s), nil
}

func writeFloat64(buf *bytes.Buffer, f float64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(f))
	buf.Write(b[:])
}

func readFloat64(r *bytes.Reader) (float64, error) {
	var b [8]byte
	if _, err := r.Read(b[:]); err != nil {
		return 0, xerrors.Errorf("reading float64: %w", err)
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b[:])), nil
}

// EncodeBinary serialises e into the tagged, length-prefixed binary
// form: one tag byte followed by the kind's fields, each string
// preceded by a 4-byte big-endian length and each float64 as 8
// big-endian bytes.
func EncodeBinary(e Envelope) ([]byte, error) {
	var buf bytes.Buffer
	switch e.Tag {
	case White:
		buf.WriteByte(tagWhite)
		if e.WhiteMsg == nil {
			return nil, xerrors.Errorf("encode binary: White missing body")
		}
		writeString(&buf, e.WhiteMsg.Action)
	case Blue:
		buf.WriteByte(tagBlue)
		if e.BlueMsg == nil {
			return nil, xerrors.Errorf("encode binary: Blue missing body")
		}
		writeString(&buf, e.BlueMsg.State)
	case Orange:
		buf.WriteByte(tagOrange)
		if e.OrangeMsg == nil {
			return nil, xerrors.Errorf("encode binary: Orange missing body")
		}
		writeString(&buf, e.OrangeMsg.Name)
		writeFloat64(&buf, e.OrangeMsg.ChanceToFail)
	case Red:
		buf.WriteByte(tagRed)
		if e.RedMsg == nil {
			return nil, xerrors.Errorf("encode binary: Red missing body")
		}
		writeString(&buf, e.RedMsg.Sender)
		writeString(&buf, e.RedMsg.ToState)
		writeFloat64(&buf, e.RedMsg.Ts)
	default:
		return nil, xerrors.Errorf("encode binary: unknown tag %q", e.Tag)
	}
	return buf.Bytes(), nil
}

// DecodeBinary parses the form produced by EncodeBinary.
func DecodeBinary(b []byte) (Envelope, error) {
	r := bytes.NewReader(b)
	tag, err := r.ReadByte()
	if err != nil {
		return Envelope{}, xerrors.Errorf("decode binary: reading tag: %w", err)
	}
	switch tag {
	case tagWhite:
		action, err := readString(r)
		if err != nil {
			return Envelope{}, err
		}
		return Envelope{Tag: White, WhiteMsg: &WhiteMsg{Action: action}}, nil
	case tagBlue:
		s, err := readString(r)
		if err != nil {
			return Envelope{}, err
		}
		return Envelope{Tag: Blue, BlueMsg: &BlueMsg{State: s}}, nil
	case tagOrange:
		name, err := readString(r)
		if err != nil {
			return Envelope{}, err
		}
		p, err := readFloat64(r)
		if err != nil {
			return Envelope{}, err
		}
		return Envelope{Tag: Orange, OrangeMsg: &OrangeMsg{Name: name, ChanceToFail: p}}, nil
	case tagRed:
		sender, err := readString(r)
		if err != nil {
			return Envelope{}, err
		}
		toState, err := readString(r)
		if err != nil {
			return Envelope{}, err
		}
		ts, err := readFloat64(r)
		if err != nil {
			return Envelope{}, err
		}
		return Envelope{Tag: Red, RedMsg: &RedMsg{Sender: sender, ToState: toState, Ts: ts}}, nil
	default:
		return Envelope{}, xerrors.Errorf("decode binary: unknown tag byte %d", tag)
	}
}
