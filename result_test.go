package rerun_test

import (
	"testing"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/stretchr/testify/require"

	"github.com/ErakhtinB/rerun"
	"github.com/ErakhtinB/rerun/internal/searchtest"
)

func TestCollectResultSet(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	first := searchtest.ScoreBatch(mem, 0, 2)
	second := searchtest.ScoreBatch(mem, 2, 1)
	reader, err := array.NewRecordReader(searchtest.ScoreSchema(), []arrow.Record{first, second})
	require.NoError(t, err)
	first.Release()
	second.Release()

	rs, err := rerun.CollectResultSet(reader)
	reader.Release()
	require.NoError(t, err)
	defer rs.Release()

	require.EqualValues(t, 3, rs.TotalRows)
	require.Equal(t, rerun.Schema{
		{Name: "id", Type: "int64"},
		{Name: "score", Type: "float32"},
	}, rs.Schema)
	require.Equal(t, [][]rerun.Value{
		{int64(0), float32(1)},
		{int64(1), float32(0.5)},
		{int64(2), float32(1) / 3},
	}, rs.ToValues())
}
