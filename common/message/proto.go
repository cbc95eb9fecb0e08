package message

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

var ErrMalformed = errors.New("message: malformed record")

// Encoder builds one protobuf-wire record field by field.
type Encoder struct {
	buf []byte
}

func (e *Encoder) Uint(num protowire.Number, v uint64) {
	e.buf = protowire.AppendTag(e.buf, num, protowire.VarintType)
	e.buf = protowire.AppendVarint(e.buf, v)
}

func (e *Encoder) Bytes(num protowire.Number, b []byte) {
	e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
	e.buf = protowire.AppendBytes(e.buf, b)
}

func (e *Encoder) Encode() []byte {
	return e.buf
}

// Field is a decoded varint or bytes field.
type Field struct {
	Num    protowire.Number
	Varint uint64
	Bytes  []byte
}

// Walk calls fn for every varint or bytes field of msg. Other wire types are
// skipped.
func Walk(msg []byte, fn func(f Field) error) error {
	for len(msg) > 0 {
		num, typ, n := protowire.ConsumeTag(msg)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		msg = msg[n:]
		f := Field{Num: num}
		switch typ {
		case protowire.VarintType:
			f.Varint, n = protowire.ConsumeVarint(msg)
		case protowire.BytesType:
			f.Bytes, n = protowire.ConsumeBytes(msg)
		default:
			n = protowire.ConsumeFieldValue(num, typ, msg)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			msg = msg[n:]
			continue
		}
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		msg = msg[n:]
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

// AppendDelimited appends msg prefixed with its varint length.
func AppendDelimited(dst, msg []byte) []byte {
	return protowire.AppendBytes(dst, msg)
}

// ReadDelimited splits one length-prefixed record off data.
func ReadDelimited(data []byte) (msg, rest []byte, err error) {
	msg, n := protowire.ConsumeBytes(data)
	if n < 0 {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
	}
	return msg, data[n:], nil
}
