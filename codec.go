package rerun

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/encoding/protowire"
)

// codecName is the gRPC content subtype the search messages travel under.
const codecName = "rerun-search"

// wireMessage is implemented by every message of the search protocol.
type wireMessage interface {
	marshalWire() []byte
	unmarshalWire(b []byte) error
}

var (
	_ wireMessage = (*SearchDatasetRequest)(nil)
	_ wireMessage = (*SearchDatasetResponse)(nil)
)

type wireCodec struct{}

func init() {
	encoding.RegisterCodec(wireCodec{})
}

func (wireCodec) Marshal(v any) ([]byte, error) {
	m, ok := v.(wireMessage)
	if !ok {
		return nil, fmt.Errorf("%s: cannot marshal %T", codecName, v)
	}
	return m.marshalWire(), nil
}

func (wireCodec) Unmarshal(data []byte, v any) error {
	m, ok := v.(wireMessage)
	if !ok {
		return fmt.Errorf("%s: cannot unmarshal into %T", codecName, v)
	}
	return m.unmarshalWire(data)
}

func (wireCodec) Name() string { return codecName }

var errWireType = errors.New("unexpected wire type")

func (r *SearchDatasetRequest) marshalWire() []byte {
	var b []byte
	b = appendString(b, 1, r.DatasetID)
	b = appendString(b, 2, r.Column)
	if r.Query != nil {
		b = appendMessage(b, 3, r.Query.marshalWire())
	}
	if r.ScanParameters != nil {
		b = appendMessage(b, 4, r.ScanParameters.marshalWire())
	}
	return b
}

func (r *SearchDatasetRequest) unmarshalWire(b []byte) error {
	*r = SearchDatasetRequest{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeBytes(typ, b)
			r.DatasetID = string(v)
			return n, err
		case 2:
			v, n, err := consumeBytes(typ, b)
			r.Column = string(v)
			return n, err
		case 3:
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return n, err
			}
			r.Query = new(SearchQuery)
			return n, r.Query.unmarshalWire(v)
		case 4:
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return n, err
			}
			r.ScanParameters = new(ScanParameters)
			return n, r.ScanParameters.unmarshalWire(v)
		}
		return skipField(num, typ, b)
	})
}

func (q *SearchQuery) marshalWire() []byte {
	var b []byte
	b = appendString(b, 1, q.Text)
	if len(q.Embedding) > 0 {
		packed := make([]byte, 0, 4*len(q.Embedding))
		for _, f := range q.Embedding {
			packed = protowire.AppendFixed32(packed, math.Float32bits(f))
		}
		b = appendMessage(b, 2, packed)
	}
	return b
}

func (q *SearchQuery) unmarshalWire(b []byte) error {
	*q = SearchQuery{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeBytes(typ, b)
			q.Text = string(v)
			return n, err
		case 2:
			if typ == protowire.Fixed32Type {
				v, n := protowire.ConsumeFixed32(b)
				if n < 0 {
					return 0, protowire.ParseError(n)
				}
				q.Embedding = append(q.Embedding, math.Float32frombits(v))
				return n, nil
			}
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return n, err
			}
			for len(v) > 0 {
				f, m := protowire.ConsumeFixed32(v)
				if m < 0 {
					return 0, protowire.ParseError(m)
				}
				q.Embedding = append(q.Embedding, math.Float32frombits(f))
				v = v[m:]
			}
			return n, nil
		}
		return skipField(num, typ, b)
	})
}

func (p *ScanParameters) marshalWire() []byte {
	var b []byte
	if p.LimitLen != nil {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(*p.LimitLen))
	}
	if p.LimitOffset != 0 {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(p.LimitOffset))
	}
	return b
}

func (p *ScanParameters) unmarshalWire(b []byte) error {
	*p = ScanParameters{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeVarint(typ, b)
			limit := int64(v)
			p.LimitLen = &limit
			return n, err
		case 2:
			v, n, err := consumeVarint(typ, b)
			p.LimitOffset = int64(v)
			return n, err
		}
		return skipField(num, typ, b)
	})
}

func (r *SearchDatasetResponse) marshalWire() []byte {
	if r.Data == nil {
		return nil
	}
	return appendMessage(nil, 1, r.Data.marshalWire())
}

func (r *SearchDatasetResponse) unmarshalWire(b []byte) error {
	*r = SearchDatasetResponse{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return n, err
			}
			r.Data = new(DataframePart)
			return n, r.Data.unmarshalWire(v)
		}
		return skipField(num, typ, b)
	})
}

func (p *DataframePart) marshalWire() []byte {
	var b []byte
	if p.EncoderVersion != EncoderVersionUnspecified {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(p.EncoderVersion))
	}
	if len(p.Payload) > 0 {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, p.Payload)
	}
	return b
}

func (p *DataframePart) unmarshalWire(b []byte) error {
	*p = DataframePart{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeVarint(typ, b)
			p.EncoderVersion = EncoderVersion(int32(v))
			return n, err
		case 2:
			v, n, err := consumeBytes(typ, b)
			p.Payload = append([]byte(nil), v...)
			return n, err
		}
		return skipField(num, typ, b)
	})
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

// consumeFields walks the fields of a message, handing each value to fn.
// fn returns the number of bytes of b it consumed.
func consumeFields(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		m, err := fn(num, typ, b)
		if err != nil {
			return fmt.Errorf("field %d: %w", num, err)
		}
		b = b[m:]
	}
	return nil
}

func skipField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	n := protowire.ConsumeFieldValue(num, typ, b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	return n, nil
}

func consumeBytes(typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, errWireType
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeVarint(typ protowire.Type, b []byte) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, errWireType
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}
