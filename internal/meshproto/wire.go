package meshproto

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// wireField is one decoded protobuf field. Exactly one of the value members
// is meaningful, selected by typ.
type wireField struct {
	num     protowire.Number
	typ     protowire.Type
	varint  uint64
	fixed32 uint32
	fixed64 uint64
	bytes   []byte
}

func (f wireField) float32() float32 { return math.Float32frombits(f.fixed32) }
func (f wireField) sfixed32() int32  { return int32(f.fixed32) }
func (f wireField) int32() int32     { return int32(int64(f.varint)) }
func (f wireField) bool() bool       { return f.varint != 0 }

// scanFields walks a protobuf wire-format buffer and invokes fn for every
// field. Unknown field numbers are fn's business to ignore; malformed input
// stops the scan with an error. Group-typed fields (not used by the mesh
// message set) are skipped wholesale.
func scanFields(b []byte, fn func(f wireField) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		f := wireField{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			f.varint = v
			b = b[n:]
		case protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			f.fixed32 = v
			b = b[n:]
		case protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			f.fixed64 = v
			b = b[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			f.bytes = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			continue
		}

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

// packedVarints decodes a packed repeated varint field into signed values.
func packedVarints(b []byte) ([]int32, error) {
	var out []int32
	for len(b) > 0 {
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		out = append(out, int32(int64(v)))
		b = b[n:]
	}
	return out, nil
}

// packedFixed32 decodes a packed repeated fixed32 field.
func packedFixed32(b []byte) ([]uint32, error) {
	var out []uint32
	for len(b) > 0 {
		v, n := protowire.ConsumeFixed32(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		out = append(out, v)
		b = b[n:]
	}
	return out, nil
}
