package rerun

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"go.uber.org/zap"
)

type readerConfig struct {
	schema  *arrow.Schema
	columns []string
	limit   int64 // -1 means unlimited
	logger  *zap.Logger
	metrics *Metrics
}

// streamReader is an array.RecordReader pulling one response per Next.
//
// It holds at most one decoded batch. The stream is closed when it ends,
// fails, reaches the row limit, or when the last reference is released.
type streamReader[R any] struct {
	refCount atomic.Int64

	stream  Stream[R]
	process func(R) (arrow.Record, error)
	cfg     readerConfig

	remaining int64
	cur       arrow.Record
	err       error
	done      bool
	closeOnce sync.Once

	batches int
	rows    int64
}

var _ array.RecordReader = (*streamReader[any])(nil)

func newStreamReader[R any](stream Stream[R], process func(R) (arrow.Record, error), cfg readerConfig) *streamReader[R] {
	r := &streamReader[R]{
		stream:    stream,
		process:   process,
		cfg:       cfg,
		remaining: cfg.limit,
	}
	r.refCount.Add(1)
	return r
}

func (r *streamReader[R]) Retain() {
	r.refCount.Add(1)
}

func (r *streamReader[R]) Release() {
	if r.refCount.Add(-1) != 0 {
		return
	}
	if r.cur != nil {
		r.cur.Release()
		r.cur = nil
	}
	if !r.done {
		r.done = true
		r.cfg.logger.Debug("scan abandoned", zap.Int("batches", r.batches), zap.Int64("rows", r.rows))
	}
	r.close()
}

func (r *streamReader[R]) Schema() *arrow.Schema { return r.cfg.schema }

func (r *streamReader[R]) Record() arrow.Record { return r.cur }

func (r *streamReader[R]) Err() error { return r.err }

func (r *streamReader[R]) Next() bool {
	if r.cur != nil {
		r.cur.Release()
		r.cur = nil
	}
	if r.done {
		return false
	}
	if r.remaining == 0 {
		r.finish(nil)
		return false
	}

	resp, err := r.stream.Recv()
	if err != nil {
		if isEndOfStream(err) {
			r.finish(nil)
		} else {
			r.finish(transportError("receive", err))
		}
		return false
	}

	rec, err := r.process(resp)
	if err != nil {
		r.finish(decodeError("process response", err))
		return false
	}
	rec, err = r.shape(rec)
	if err != nil {
		r.finish(err)
		return false
	}

	r.cur = rec
	r.batches++
	r.rows += rec.NumRows()
	r.cfg.metrics.batch(rec.NumRows())
	if r.remaining == 0 {
		// Limit reached, no further pulls.
		r.close()
	}
	return true
}

// shape applies the projection and the row limit to rec, consuming it.
func (r *streamReader[R]) shape(rec arrow.Record) (arrow.Record, error) {
	if r.cfg.columns != nil {
		projected, err := projectRecord(rec, r.cfg.columns)
		rec.Release()
		if err != nil {
			return nil, err
		}
		rec = projected
	}
	if r.remaining < 0 {
		return rec, nil
	}
	if rec.NumRows() > r.remaining {
		sliced := rec.NewSlice(0, r.remaining)
		rec.Release()
		rec = sliced
	}
	r.remaining -= rec.NumRows()
	return rec, nil
}

func (r *streamReader[R]) finish(err error) {
	r.done = true
	r.err = err
	r.close()

	switch {
	case err == nil:
		r.cfg.logger.Debug("scan finished", zap.Int("batches", r.batches), zap.Int64("rows", r.rows))
	case isCanceled(err):
		r.cfg.logger.Debug("scan canceled", zap.Error(err))
		r.cfg.metrics.failure(err)
	default:
		r.cfg.logger.Warn("scan failed", zap.String("kind", KindOf(err)), zap.Int("batches", r.batches), zap.Error(err))
		r.cfg.metrics.failure(err)
	}
}

func (r *streamReader[R]) close() {
	r.closeOnce.Do(func() {
		if err := r.stream.Close(); err != nil {
			r.cfg.logger.Debug("closing stream", zap.Error(err))
		}
	})
}

// projectRecord selects the named columns of rec by name.
func projectRecord(rec arrow.Record, columns []string) (arrow.Record, error) {
	schema := rec.Schema()
	fields := make([]arrow.Field, len(columns))
	cols := make([]arrow.Array, len(columns))
	for i, name := range columns {
		idx := schema.FieldIndices(name)
		if len(idx) == 0 {
			return nil, newError(ErrDecode, fmt.Sprintf("batch is missing column %q", name))
		}
		fields[i] = schema.Field(idx[0])
		cols[i] = rec.Column(idx[0])
	}
	md := schema.Metadata()
	return array.NewRecord(arrow.NewSchema(fields, &md), cols, rec.NumRows()), nil
}
