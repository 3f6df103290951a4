package rerun_test

import (
	"context"
	"testing"
	"time"

	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ErakhtinB/rerun"
	"github.com/ErakhtinB/rerun/internal/searchtest"
)

func searchRequest() *rerun.SearchDatasetRequest {
	return &rerun.SearchDatasetRequest{
		DatasetID: "dataset-1",
		Column:    "text",
		Query:     &rerun.SearchQuery{Text: "red car"},
	}
}

func TestNewSearchResultsTableRejectsScanParameters(t *testing.T) {
	client := &searchtest.Client{}
	req := searchRequest()
	limit := int64(5)
	req.ScanParameters = &rerun.ScanParameters{LimitLen: &limit}

	_, err := rerun.NewSearchResultsTable(client, req)
	require.ErrorIs(t, err, rerun.ErrConfiguration)
	require.Empty(t, client.Requests())

	_, err = rerun.NewSearchResultsTable(nil, searchRequest())
	require.ErrorIs(t, err, rerun.ErrConfiguration)
	_, err = rerun.NewSearchResultsTable(client, nil)
	require.ErrorIs(t, err, rerun.ErrConfiguration)
}

func TestFetchSchemaIssuesZeroRowProbe(t *testing.T) {
	client := &searchtest.Client{
		Probe: searchtest.Replies(searchtest.ProbeResponse(t), searchtest.ProbeResponse(t)),
	}
	adapter, err := rerun.NewSearchResultsTable(client, searchRequest())
	require.NoError(t, err)

	schema, err := adapter.FetchSchema(context.Background())
	require.NoError(t, err)
	require.True(t, schema.Equal(searchtest.ScoreSchema()))

	requests := client.Requests()
	require.Len(t, requests, 1)
	require.NotNil(t, requests[0].ScanParameters)
	require.NotNil(t, requests[0].ScanParameters.LimitLen)
	require.EqualValues(t, 0, *requests[0].ScanParameters.LimitLen)
	require.Equal(t, "dataset-1", requests[0].DatasetID)
	require.Equal(t, "red car", requests[0].Query.Text)

	stream := client.Streams()[0]
	require.Equal(t, 1, stream.Recvs(), "only the first response is consumed")
	require.True(t, stream.Closed())

	require.Nil(t, adapter.Request().ScanParameters, "the base request must stay untouched")
}

func TestFetchSchemaFailures(t *testing.T) {
	garbage := &rerun.SearchDatasetResponse{Data: &rerun.DataframePart{
		EncoderVersion: rerun.EncoderVersionArrowIPC,
		Payload:        []byte("not arrow"),
	}}

	for name, tc := range map[string]struct {
		client *searchtest.Client
		want   error
	}{
		"empty stream": {
			client: &searchtest.Client{},
			want:   rerun.ErrEmptyStream,
		},
		"missing payload": {
			client: &searchtest.Client{Probe: searchtest.Replies(&rerun.SearchDatasetResponse{})},
			want:   rerun.ErrMissingPayload,
		},
		"undecodable payload": {
			client: &searchtest.Client{Probe: searchtest.Replies(garbage)},
			want:   rerun.ErrDecode,
		},
		"open failure": {
			client: &searchtest.Client{OpenErr: status.Error(codes.Unavailable, "down")},
			want:   rerun.ErrTransport,
		},
		"stream failure": {
			client: &searchtest.Client{Probe: []searchtest.Reply{{Err: status.Error(codes.Internal, "boom")}}},
			want:   rerun.ErrTransport,
		},
	} {
		t.Run(name, func(t *testing.T) {
			adapter, err := rerun.NewSearchResultsTable(tc.client, searchRequest())
			require.NoError(t, err)

			_, err = adapter.IntoTable(context.Background())
			require.ErrorIs(t, err, tc.want)
			for _, other := range []error{
				rerun.ErrEmptyStream, rerun.ErrMissingPayload, rerun.ErrDecode, rerun.ErrTransport,
			} {
				if other != tc.want {
					require.NotErrorIs(t, err, other)
				}
			}
		})
	}
}

func TestSearchTableScan(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	client := &searchtest.Client{
		Probe: searchtest.Replies(searchtest.ProbeResponse(t)),
		Scan:  searchtest.Replies(searchtest.ScoreResponses(t, 10, 10, 3)...),
	}
	adapter, err := rerun.NewSearchResultsTable(client, searchRequest())
	require.NoError(t, err)
	adapter.Allocator = mem

	table, err := adapter.IntoTable(context.Background())
	require.NoError(t, err)
	schema, err := table.Schema(context.Background())
	require.NoError(t, err)

	reader, err := table.Scan(context.Background(), nil)
	require.NoError(t, err)
	defer reader.Release()

	var sizes []int64
	var ids []int64
	for reader.Next() {
		rec := reader.Record()
		require.True(t, rec.Schema().Equal(schema))
		sizes = append(sizes, rec.NumRows())
		ids = append(ids, rec.Column(0).(*array.Int64).Int64Values()...)
	}
	require.NoError(t, reader.Err())
	require.Equal(t, []int64{10, 10, 3}, sizes)
	require.Len(t, ids, 23)
	for i, id := range ids {
		require.EqualValues(t, i, id)
	}

	requests := client.Requests()
	require.Len(t, requests, 2, "schema is probed once and the scan opens one stream")
	require.Nil(t, requests[1].ScanParameters)
	require.True(t, client.Streams()[1].Closed())
}

func TestSearchTableScansAreIndependent(t *testing.T) {
	client := &searchtest.Client{
		Probe: searchtest.Replies(searchtest.ProbeResponse(t)),
		Scan:  searchtest.Replies(searchtest.ScoreResponses(t, 4, 2)...),
	}
	adapter, err := rerun.NewSearchResultsTable(client, searchRequest())
	require.NoError(t, err)
	table, err := adapter.IntoTable(context.Background())
	require.NoError(t, err)

	collect := func() []int64 {
		reader, err := table.Scan(context.Background(), nil)
		require.NoError(t, err)
		defer reader.Release()
		var ids []int64
		for reader.Next() {
			ids = append(ids, reader.Record().Column(0).(*array.Int64).Int64Values()...)
		}
		require.NoError(t, reader.Err())
		return ids
	}

	first := collect()
	second := collect()
	require.Equal(t, first, second)
	require.Len(t, first, 6)
	require.Len(t, client.Streams(), 3)
}

func TestSearchTableScanMissingPayloadMidStream(t *testing.T) {
	responses := searchtest.ScoreResponses(t, 10, 10)
	client := &searchtest.Client{
		Probe: searchtest.Replies(searchtest.ProbeResponse(t)),
		Scan:  searchtest.Replies(responses[0], &rerun.SearchDatasetResponse{}, responses[1]),
	}
	adapter, err := rerun.NewSearchResultsTable(client, searchRequest())
	require.NoError(t, err)
	table, err := adapter.IntoTable(context.Background())
	require.NoError(t, err)

	reader, err := table.Scan(context.Background(), nil)
	require.NoError(t, err)
	defer reader.Release()

	require.True(t, reader.Next())
	require.EqualValues(t, 10, reader.Record().NumRows())
	require.False(t, reader.Next())
	require.ErrorIs(t, reader.Err(), rerun.ErrMissingPayload)
	require.False(t, reader.Next())

	stream := client.Streams()[1]
	require.Equal(t, 2, stream.Recvs(), "no third response is pulled")
	require.True(t, stream.Closed())
}

func TestSearchTableScanTransportErrorMidStream(t *testing.T) {
	responses := searchtest.ScoreResponses(t, 3)
	client := &searchtest.Client{
		Probe: searchtest.Replies(searchtest.ProbeResponse(t)),
		Scan: []searchtest.Reply{
			{Response: responses[0]},
			{Err: status.Error(codes.Unavailable, "connection reset")},
		},
	}
	adapter, err := rerun.NewSearchResultsTable(client, searchRequest())
	require.NoError(t, err)
	table, err := adapter.IntoTable(context.Background())
	require.NoError(t, err)

	reader, err := table.Scan(context.Background(), nil)
	require.NoError(t, err)
	defer reader.Release()

	require.True(t, reader.Next())
	require.False(t, reader.Next())
	require.ErrorIs(t, reader.Err(), rerun.ErrTransport)
	require.True(t, rerun.Retryable(reader.Err()))
	require.Equal(t, codes.Unavailable, status.Code(reader.Err()))
}

func TestReleasingPartialScanClosesStream(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	client := &searchtest.Client{
		Probe: searchtest.Replies(searchtest.ProbeResponse(t)),
		Scan:  searchtest.Replies(searchtest.ScoreResponses(t, 5, 5, 5)...),
	}
	adapter, err := rerun.NewSearchResultsTable(client, searchRequest())
	require.NoError(t, err)
	table, err := adapter.IntoTable(context.Background())
	require.NoError(t, err)

	reader, err := table.Scan(context.Background(), nil)
	require.NoError(t, err)
	require.True(t, reader.Next())
	reader.Release()

	stream := client.Streams()[1]
	require.True(t, stream.Closed())
	require.Equal(t, 1, stream.Recvs())
}

func TestSearchTableScanWithCanceledContext(t *testing.T) {
	client := &searchtest.Client{
		Probe: searchtest.Replies(searchtest.ProbeResponse(t)),
		Scan:  searchtest.Replies(searchtest.ScoreResponses(t, 5)...),
	}
	adapter, err := rerun.NewSearchResultsTable(client, searchRequest())
	require.NoError(t, err)
	table, err := adapter.IntoTable(context.Background(), rerun.WithExecutor(rerun.InlineExecutor{}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = table.Scan(ctx, nil)
	require.ErrorIs(t, err, rerun.ErrRuntimeScheduling)
	require.Len(t, client.Streams(), 1, "only the probe stream was opened")
}

func TestSearchTableScanCanceledWhileOpeningClosesStream(t *testing.T) {
	client := &searchtest.Client{
		Probe: searchtest.Replies(searchtest.ProbeResponse(t)),
		Scan:  searchtest.Replies(searchtest.ScoreResponses(t, 5)...),
		Gate:  make(chan struct{}),
	}
	adapter, err := rerun.NewSearchResultsTable(client, searchRequest())
	require.NoError(t, err)
	table, err := adapter.IntoTable(context.Background(), rerun.WithExecutor(rerun.SpawnExecutor{}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err = table.Scan(ctx, nil)
	require.ErrorIs(t, err, rerun.ErrRuntimeScheduling)
	require.ErrorIs(t, err, context.Canceled)

	close(client.Gate)
	require.Eventually(t, func() bool {
		streams := client.Streams()
		return len(streams) == 2 && streams[1].Closed()
	}, time.Second, 5*time.Millisecond, "the stream opened after the scan gave up must be closed")
	require.Zero(t, client.Streams()[1].Recvs())
}
