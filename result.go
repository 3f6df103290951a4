/*
 * Copyright 2024 ScopeDB, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package rerun

import (
	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
)

// Value stores the contents of a single cell of a search result.
type Value any

// ResultSet stores every batch of a finished scan.
type ResultSet struct {
	// TotalRows is the total number of rows in the result set.
	TotalRows uint64
	// Schema describes the fields of the result set.
	Schema Schema
	// Records are the batches in the order they were received.
	Records []arrow.Record

	arrowSchema *arrow.Schema
}

// CollectResultSet drains reader. It does not release reader.
//
// If the reader fails, the batches read so far are released and the error is returned.
func CollectResultSet(reader array.RecordReader) (*ResultSet, error) {
	rs := &ResultSet{
		Schema:      NewSchema(reader.Schema()),
		arrowSchema: reader.Schema(),
	}
	for reader.Next() {
		rec := reader.Record()
		rec.Retain()
		rs.Records = append(rs.Records, rec)
		rs.TotalRows += uint64(rec.NumRows())
	}
	if err := reader.Err(); err != nil {
		rs.Release()
		return nil, err
	}
	return rs, nil
}

// ArrowSchema returns the Arrow schema of the result set.
func (rs *ResultSet) ArrowSchema() *arrow.Schema {
	return rs.arrowSchema
}

// Release releases every batch of the result set.
func (rs *ResultSet) Release() {
	for _, rec := range rs.Records {
		rec.Release()
	}
	rs.Records = nil
}

// ToValues returns the rows as a 2D array of values, i.e., rows of value lists.
//
// Nulls are returned as nil.
func (rs *ResultSet) ToValues() [][]Value {
	valueLists := make([][]Value, 0, rs.TotalRows)
	for _, rec := range rs.Records {
		for row := 0; row < int(rec.NumRows()); row++ {
			values := make([]Value, rec.NumCols())
			for col := range values {
				values[col] = cellValue(rec.Column(col), row)
			}
			valueLists = append(valueLists, values)
		}
	}
	return valueLists
}

func cellValue(arr arrow.Array, i int) Value {
	if arr.IsNull(i) {
		return nil
	}
	switch a := arr.(type) {
	case *array.Int64:
		return a.Value(i)
	case *array.Int32:
		return a.Value(i)
	case *array.Uint64:
		return a.Value(i)
	case *array.Uint32:
		return a.Value(i)
	case *array.Float32:
		return a.Value(i)
	case *array.Float64:
		return a.Value(i)
	case *array.Boolean:
		return a.Value(i)
	case *array.String:
		return a.Value(i)
	case *array.LargeString:
		return a.Value(i)
	case *array.Binary:
		return a.Value(i)
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return a.Value(i).ToTime(unit)
	default:
		return a.GetOneForMarshal(i)
	}
}

// Schema describes the fields of a table or result set.
type Schema []*FieldSchema

// FieldSchema describes a single field.
type FieldSchema struct {
	// Name is the field name.
	Name string
	// Type is the Arrow data type name, e.g. "int64" or "utf8".
	Type string
	// Nullable reports whether the field may hold nulls.
	Nullable bool
}

// NewSchema describes an Arrow schema.
func NewSchema(schema *arrow.Schema) Schema {
	if schema == nil {
		return nil
	}
	out := make(Schema, 0, schema.NumFields())
	for _, f := range schema.Fields() {
		out = append(out, &FieldSchema{
			Name:     f.Name,
			Type:     f.Type.String(),
			Nullable: f.Nullable,
		})
	}
	return out
}
