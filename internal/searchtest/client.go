// Package searchtest provides fakes of the search service for tests.
package searchtest

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ErakhtinB/rerun"
)

// Reply is one element of a fake response stream: a response, or an error
// ending the stream.
type Reply struct {
	Response *rerun.SearchDatasetResponse
	Err      error
}

// Replies wraps responses into replies.
func Replies(responses ...*rerun.SearchDatasetResponse) []Reply {
	replies := make([]Reply, len(responses))
	for i, resp := range responses {
		replies[i] = Reply{Response: resp}
	}
	return replies
}

// Client is an in-memory rerun.SearchClient.
//
// Zero-row requests are answered with Probe, every other request with Scan.
type Client struct {
	Probe []Reply
	Scan  []Reply
	// OpenErr, if set, fails every SearchDataset call.
	OpenErr error
	// Gate, if set, holds every non-probe SearchDataset call until it is
	// closed, regardless of the call's ctx.
	Gate chan struct{}

	mu       sync.Mutex
	requests []*rerun.SearchDatasetRequest
	streams  []*Stream
}

var _ rerun.SearchClient = (*Client)(nil)

func (c *Client) SearchDataset(ctx context.Context, req *rerun.SearchDatasetRequest) (rerun.SearchStream, error) {
	if c.Gate != nil && !IsProbe(req) {
		<-c.Gate
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests = append(c.requests, req.Clone())
	if c.OpenErr != nil {
		return nil, c.OpenErr
	}

	replies := c.Scan
	if IsProbe(req) {
		replies = c.Probe
	}
	s := &Stream{ctx: ctx, replies: replies}
	c.streams = append(c.streams, s)
	return s, nil
}

// Requests returns the requests received so far.
func (c *Client) Requests() []*rerun.SearchDatasetRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*rerun.SearchDatasetRequest(nil), c.requests...)
}

// Streams returns the streams opened so far.
func (c *Client) Streams() []*Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Stream(nil), c.streams...)
}

// Stream is a fake response stream replaying a fixed list of replies.
type Stream struct {
	ctx     context.Context
	replies []Reply
	pos     int

	recvs  atomic.Int64
	closed atomic.Bool
}

func (s *Stream) Recv() (*rerun.SearchDatasetResponse, error) {
	if s.closed.Load() {
		return nil, status.Error(codes.Canceled, "stream closed")
	}
	if err := s.ctx.Err(); err != nil {
		return nil, status.FromContextError(err).Err()
	}
	s.recvs.Add(1)
	if s.pos >= len(s.replies) {
		return nil, io.EOF
	}
	r := s.replies[s.pos]
	s.pos++
	return r.Response, r.Err
}

func (s *Stream) Close() error {
	s.closed.Store(true)
	return nil
}

// Closed reports whether Close was called.
func (s *Stream) Closed() bool { return s.closed.Load() }

// Recvs returns how many times Recv pulled from the stream.
func (s *Stream) Recvs() int { return int(s.recvs.Load()) }

// IsProbe reports whether req asks for the schema only.
func IsProbe(req *rerun.SearchDatasetRequest) bool {
	sp := req.ScanParameters
	return sp != nil && sp.LimitLen != nil && *sp.LimitLen == 0
}
