package rerun

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Table is the contract a query engine consumes from a data source.
type Table interface {
	// Schema returns the schema every scanned batch agrees with.
	Schema(ctx context.Context) (*arrow.Schema, error)
	// Scan opens a fresh, lazy sequence of record batches.
	//
	// The caller must Release the returned reader. Releasing it before it is
	// exhausted closes the underlying stream.
	Scan(ctx context.Context, opts *ScanOptions) (array.RecordReader, error)
}

// ScanOptions carries the optional hints of a scan.
type ScanOptions struct {
	// Columns projects the batches onto the named columns, in that order.
	// Nil keeps every column.
	Columns []string
	// Limit caps the total number of rows yielded. Nil means unlimited.
	Limit *int64
}

// StreamToTable supplies the three capabilities a StreamTable is built from.
//
// Implementations bind one streaming RPC, R being its response type.
type StreamToTable[R any] interface {
	// FetchSchema learns the schema without reading the data.
	FetchSchema(ctx context.Context) (*arrow.Schema, error)
	// SendStreamingRequest opens a new stream over the full data.
	SendStreamingRequest(ctx context.Context) (Stream[R], error)
	// ProcessResponse decodes one streamed response into a record batch.
	ProcessResponse(resp R) (arrow.Record, error)
}

// StreamTable exposes a StreamToTable as a Table.
//
// The schema is probed at most once per StreamTable and shared by every scan.
// Every scan opens its own stream. A StreamTable is safe for concurrent use.
type StreamTable[R any] struct {
	adapter StreamToTable[R]
	cfg     tableConfig

	schema atomic.Pointer[arrow.Schema]
	probe  singleflight.Group
}

var _ Table = (*StreamTable[any])(nil)

type tableConfig struct {
	executor Executor
	logger   *zap.Logger
	metrics  *Metrics
}

// TableOption configures a StreamTable.
type TableOption func(*tableConfig)

// WithExecutor sets the executor driving schema probes and stream opening.
func WithExecutor(ex Executor) TableOption {
	return func(c *tableConfig) {
		c.executor = ex
	}
}

// WithLogger sets the logger of the table.
func WithLogger(logger *zap.Logger) TableOption {
	return func(c *tableConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the metrics the table records into.
func WithMetrics(m *Metrics) TableOption {
	return func(c *tableConfig) {
		c.metrics = m
	}
}

// NewStreamTable creates a table over adapter. The schema is probed lazily on first use.
func NewStreamTable[R any](adapter StreamToTable[R], opts ...TableOption) *StreamTable[R] {
	cfg := tableConfig{
		executor: DetectExecutor(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &StreamTable[R]{adapter: adapter, cfg: cfg}
}

// Prepare creates a table over adapter and materializes its schema.
func Prepare[R any](ctx context.Context, adapter StreamToTable[R], opts ...TableOption) (*StreamTable[R], error) {
	t := NewStreamTable(adapter, opts...)
	if _, err := t.Schema(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// Schema returns the table schema, probing it on the first call.
//
// Concurrent first calls share one probe, which is not bound to any single
// caller's ctx. Each caller stops waiting when its own ctx is done. A failed
// probe is not cached.
func (t *StreamTable[R]) Schema(ctx context.Context) (*arrow.Schema, error) {
	if s := t.schema.Load(); s != nil {
		return s, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, wrapError(ErrRuntimeScheduling, "schema probe not started", err)
	}

	probeCtx := context.WithoutCancel(ctx)
	ch := t.probe.DoChan("schema", func() (any, error) {
		if s := t.schema.Load(); s != nil {
			return s, nil
		}

		t.cfg.logger.Debug("probing schema")
		s, err := Run(probeCtx, t.cfg.executor, t.adapter.FetchSchema)
		if err == nil && s == nil {
			err = newError(ErrDecode, "schema probe returned no schema")
		}
		t.cfg.metrics.probe(err)
		if err != nil {
			return nil, err
		}

		t.cfg.logger.Debug("schema probed", zap.Int("fields", s.NumFields()))
		t.schema.Store(s)
		return s, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*arrow.Schema), nil
	case <-ctx.Done():
		return nil, wrapError(ErrRuntimeScheduling, "schema probe abandoned", ctx.Err())
	}
}

// Scan opens a new stream and returns a reader pulling one batch per Next.
func (t *StreamTable[R]) Scan(ctx context.Context, opts *ScanOptions) (array.RecordReader, error) {
	if opts == nil {
		opts = &ScanOptions{}
	}

	schema, err := t.Schema(ctx)
	if err != nil {
		return nil, err
	}
	schema, err = projectSchema(schema, opts.Columns)
	if err != nil {
		return nil, err
	}

	limit := int64(-1)
	if opts.Limit != nil {
		if *opts.Limit < 0 {
			return nil, newError(ErrConfiguration, fmt.Sprintf("scan limit must not be negative, got %d", *opts.Limit))
		}
		limit = *opts.Limit
	}
	if limit == 0 {
		return array.NewRecordReader(schema, nil)
	}

	logger := t.cfg.logger.With(zap.String("scan_id", uuid.NewString()))
	logger.Debug("opening scan stream")

	handoff := &streamHandoff[R]{}
	stream, err := Run(ctx, t.cfg.executor, func(ctx context.Context) (Stream[R], error) {
		s, err := t.adapter.SendStreamingRequest(ctx)
		if err != nil {
			return nil, err
		}
		return handoff.deliver(s)
	})
	if err != nil {
		handoff.abandon(logger)
		err = transportError("open stream", err)
		t.cfg.metrics.failure(err)
		return nil, err
	}
	t.cfg.metrics.scan()

	return newStreamReader(stream, t.adapter.ProcessResponse, readerConfig{
		schema:  schema,
		columns: opts.Columns,
		limit:   limit,
		logger:  logger,
		metrics: t.cfg.metrics,
	}), nil
}

// streamHandoff passes a stream opened by the executor to the scan.
//
// A stream delivered after the scan gave up, or delivered but never
// received, is closed by whichever side comes second.
type streamHandoff[R any] struct {
	mu        sync.Mutex
	stream    Stream[R]
	abandoned bool
}

func (h *streamHandoff[R]) deliver(s Stream[R]) (Stream[R], error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.abandoned {
		_ = s.Close()
		return nil, newError(ErrRuntimeScheduling, "scan abandoned before the stream was handed over")
	}
	h.stream = s
	return s, nil
}

func (h *streamHandoff[R]) abandon(logger *zap.Logger) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.abandoned = true
	if h.stream != nil {
		logger.Debug("closing stream of abandoned scan")
		_ = h.stream.Close()
		h.stream = nil
	}
}

// projectSchema returns the schema of schema's columns named in columns.
func projectSchema(schema *arrow.Schema, columns []string) (*arrow.Schema, error) {
	if columns == nil {
		return schema, nil
	}
	fields := make([]arrow.Field, len(columns))
	for i, name := range columns {
		idx := schema.FieldIndices(name)
		if len(idx) == 0 {
			return nil, newError(ErrConfiguration, fmt.Sprintf("unknown column %q", name))
		}
		fields[i] = schema.Field(idx[0])
	}
	md := schema.Metadata()
	return arrow.NewSchema(fields, &md), nil
}
