package searchtest

import (
	"testing"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/require"

	"github.com/ErakhtinB/rerun"
)

// ScoreSchema is the schema of search hits: {id: Int64, score: Float32}.
func ScoreSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "score", Type: arrow.PrimitiveTypes.Float32},
	}, nil)
}

// ScoreBatch builds n hits with ids starting at first and decreasing scores.
func ScoreBatch(mem memory.Allocator, first int64, n int) arrow.Record {
	b := array.NewRecordBuilder(mem, ScoreSchema())
	defer b.Release()
	for i := 0; i < n; i++ {
		b.Field(0).(*array.Int64Builder).Append(first + int64(i))
		b.Field(1).(*array.Float32Builder).Append(1 / float32(first+int64(i)+1))
	}
	return b.NewRecord()
}

// RandomScoreBatch builds n hits with fake ids and scores.
func RandomScoreBatch(f *gofakeit.Faker, mem memory.Allocator, n int) arrow.Record {
	b := array.NewRecordBuilder(mem, ScoreSchema())
	defer b.Release()
	for i := 0; i < n; i++ {
		b.Field(0).(*array.Int64Builder).Append(f.Int64())
		b.Field(1).(*array.Float32Builder).Append(f.Float32Range(0, 1))
	}
	return b.NewRecord()
}

// Response encodes recs, which must share schema, into one search response.
// The records are released.
func Response(t testing.TB, schema *arrow.Schema, recs ...arrow.Record) *rerun.SearchDatasetResponse {
	t.Helper()
	defer func() {
		for _, rec := range recs {
			rec.Release()
		}
	}()
	part, err := rerun.EncodeDataframePart(schema, recs...)
	require.NoError(t, err)
	return &rerun.SearchDatasetResponse{Data: part}
}

// ScoreResponses encodes one response per batch size, with consecutive ids.
func ScoreResponses(t testing.TB, sizes ...int) []*rerun.SearchDatasetResponse {
	t.Helper()
	var first int64
	responses := make([]*rerun.SearchDatasetResponse, len(sizes))
	for i, n := range sizes {
		responses[i] = Response(t, ScoreSchema(), ScoreBatch(memory.DefaultAllocator, first, n))
		first += int64(n)
	}
	return responses
}

// ProbeResponse is the answer to a zero-row request over ScoreSchema.
func ProbeResponse(t testing.TB) *rerun.SearchDatasetResponse {
	t.Helper()
	return Response(t, ScoreSchema())
}
