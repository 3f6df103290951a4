package rerun

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

// EncodeDataframePart encodes the given record batches as an Arrow IPC stream.
//
// All batches must share schema. With no batches, only the schema is written,
// which is what a zero-row probe is answered with.
func EncodeDataframePart(schema *arrow.Schema, batches ...arrow.Record) (part *DataframePart, err error) {
	if schema == nil {
		return nil, errors.New("cannot encode dataframe part without schema")
	}

	var buf bytes.Buffer
	writer := ipc.NewWriter(&buf, ipc.WithSchema(schema))
	defer func() {
		err = errors.Join(err, writer.Close())
		if err == nil {
			part = &DataframePart{
				EncoderVersion: EncoderVersionArrowIPC,
				Payload:        buf.Bytes(),
			}
		}
	}()

	for _, batch := range batches {
		if !batch.Schema().Equal(schema) {
			return nil, errors.New("schema mismatch")
		}
		if err := writer.Write(batch); err != nil {
			return nil, err
		}
	}
	return
}

// Decode decodes the part into a single record batch allocated from mem.
//
// The caller owns the returned record and must Release it.
func (p *DataframePart) Decode(mem memory.Allocator) (arrow.Record, error) {
	if p.EncoderVersion != EncoderVersionArrowIPC {
		return nil, newError(ErrDecode, fmt.Sprintf("unsupported encoder version %d", p.EncoderVersion))
	}
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	rec, err := decodeRecordBatches(mem, p.Payload)
	if err != nil {
		return nil, decodeError("arrow ipc", err)
	}
	return rec, nil
}

// decodeRecordBatches reads an Arrow IPC stream into one record.
func decodeRecordBatches(mem memory.Allocator, data []byte) (arrow.Record, error) {
	reader, err := ipc.NewReader(bytes.NewReader(data), ipc.WithAllocator(mem))
	if err != nil {
		return nil, err
	}
	defer reader.Release()

	batches := make([]arrow.Record, 0, 1)
	defer func() {
		for _, batch := range batches {
			batch.Release()
		}
	}()
	for reader.Next() {
		batch := reader.Record()
		batch.Retain()
		batches = append(batches, batch)
	}
	if err := reader.Err(); err != nil {
		return nil, err
	}

	switch len(batches) {
	case 0:
		return emptyRecord(mem, reader.Schema()), nil
	case 1:
		batches[0].Retain()
		return batches[0], nil
	default:
		return concatRecords(mem, reader.Schema(), batches)
	}
}

func emptyRecord(mem memory.Allocator, schema *arrow.Schema) arrow.Record {
	cols := make([]arrow.Array, schema.NumFields())
	for i, field := range schema.Fields() {
		cols[i] = array.MakeArrayOfNull(mem, field.Type, 0)
	}
	defer releaseArrays(cols)
	return array.NewRecord(schema, cols, 0)
}

func concatRecords(mem memory.Allocator, schema *arrow.Schema, batches []arrow.Record) (arrow.Record, error) {
	var rows int64
	cols := make([]arrow.Array, 0, schema.NumFields())
	defer func() { releaseArrays(cols) }()

	for i := 0; i < schema.NumFields(); i++ {
		parts := make([]arrow.Array, len(batches))
		for j, batch := range batches {
			parts[j] = batch.Column(i)
		}
		col, err := array.Concatenate(parts, mem)
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	for _, batch := range batches {
		rows += batch.NumRows()
	}
	return array.NewRecord(schema, cols, rows), nil
}

func releaseArrays(arrs []arrow.Array) {
	for _, arr := range arrs {
		if arr != nil {
			arr.Release()
		}
	}
}
