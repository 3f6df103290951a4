package rerun

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Stream is an open, cancellable sequence of responses of one RPC invocation.
//
// Recv returns io.EOF once the stream ends. A Stream is not reusable; Close
// releases it and may be called at any time, more than once.
type Stream[R any] interface {
	Recv() (R, error)
	Close() error
}

// SearchStream is the response stream of a dataset search.
type SearchStream = Stream[*SearchDatasetResponse]

// SearchClient is the interface for issuing dataset searches.
//
// Implementations may be shared between goroutines; every call owns its own stream.
type SearchClient interface {
	// SearchDataset issues the search RPC and returns the response stream.
	SearchDataset(ctx context.Context, req *SearchDatasetRequest) (SearchStream, error)
}

// Client is the major entrance for searching datasets as tables.
type Client struct {
	conn SearchClient

	executor Executor
	logger   *zap.Logger
	metrics  *Metrics
	closer   func() error
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientLogger sets the logger of the client and of the tables it creates.
func WithClientLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithClientMetrics registers the client metrics on reg.
func WithClientMetrics(reg prometheus.Registerer) ClientOption {
	return func(c *Client) {
		c.metrics = NewMetrics(reg)
	}
}

// WithClientExecutor overrides the executor chosen from the configuration.
func WithClientExecutor(ex Executor) ClientOption {
	return func(c *Client) {
		c.executor = ex
	}
}

// NewClient opens a connection described by config and wraps it in a Client.
func NewClient(config *Config, opts ...ClientOption) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	executor, err := ExecutorByName(config.Executor)
	if err != nil {
		return nil, err
	}

	c := &Client{executor: executor, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}

	conn, err := Open(config, WithConnLogger(c.logger))
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.closer = conn.Close
	return c, nil
}

// NewClientWith wraps an existing SearchClient.
//
// Closing the returned Client does not close conn.
func NewClientWith(conn SearchClient, opts ...ClientOption) *Client {
	c := &Client{conn: conn, executor: DetectExecutor(), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close releases the underlying connection if the client owns it.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

func (c *Client) tableOptions() []TableOption {
	return []TableOption{
		WithExecutor(c.executor),
		WithLogger(c.logger),
		WithMetrics(c.metrics),
	}
}
