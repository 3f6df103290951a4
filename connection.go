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
	"context"
	"crypto/tls"
	"fmt"
	"net"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

const requestIDKey = "x-request-id"

// Connection is a gRPC connection to the search service.
//
// It is safe for concurrent use; every SearchDataset call owns its own stream.
type Connection struct {
	config *Config
	cc     *grpc.ClientConn
	logger *zap.Logger
}

var _ SearchClient = (*Connection)(nil)

type connOptions struct {
	logger      *zap.Logger
	dialOptions []grpc.DialOption
}

// ConnOption configures a Connection.
type ConnOption func(*connOptions)

// WithConnLogger sets the logger of the connection.
func WithConnLogger(logger *zap.Logger) ConnOption {
	return func(o *connOptions) {
		o.logger = logger
	}
}

// WithDialOptions appends gRPC dial options, e.g. a custom dialer.
func WithDialOptions(opts ...grpc.DialOption) ConnOption {
	return func(o *connOptions) {
		o.dialOptions = append(o.dialOptions, opts...)
	}
}

// Open creates a new connection.
//
// No I/O happens until the first request; connection failures surface as
// ErrTransport from SearchDataset or from the returned stream.
func Open(config *Config, opts ...ConnOption) (*Connection, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	o := connOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	auth := NewAuthDecorator(config.Token, o.logger)
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(transportCredentials(config)),
		grpc.WithChainUnaryInterceptor(auth.UnaryClientInterceptor()),
		grpc.WithChainStreamInterceptor(auth.StreamClientInterceptor()),
	}
	if sc := retryServiceConfig(config.MaxRetryAttempts); sc != "" {
		dialOpts = append(dialOpts, grpc.WithDefaultServiceConfig(sc))
	}
	dialOpts = append(dialOpts, o.dialOptions...)

	cc, err := grpc.NewClient(config.Endpoint, dialOpts...)
	if err != nil {
		return nil, wrapError(ErrTransport, "create client", err)
	}
	o.logger.Debug("connection opened", zap.String("endpoint", config.Endpoint), zap.Bool("tls", config.TLS))

	return &Connection{
		config: config,
		cc:     cc,
		logger: o.logger,
	}, nil
}

// Close closes the connection. Open streams fail with ErrTransport afterwards.
func (conn *Connection) Close() error {
	return conn.cc.Close()
}

// SearchDataset issues the search RPC.
//
// The returned stream must be closed; closing it cancels the call.
func (conn *Connection) SearchDataset(ctx context.Context, req *SearchDatasetRequest) (SearchStream, error) {
	ctx, cancel := context.WithCancel(ctx)
	requestID := uuid.NewString()
	ctx = metadata.AppendToOutgoingContext(ctx, requestIDKey, requestID)

	stream, err := searchDataset(ctx, conn.cc, req)
	if err != nil {
		cancel()
		return nil, transportError("search dataset", err)
	}
	conn.logger.Debug("search stream opened",
		zap.String("request_id", requestID),
		zap.String("dataset", req.DatasetID),
	)
	return &grpcStream[SearchDatasetResponse]{stream: stream, cancel: cancel}, nil
}

// grpcStream adapts a gRPC server stream to Stream.
type grpcStream[R any] struct {
	stream grpc.ServerStreamingClient[R]
	cancel context.CancelFunc
}

func (s *grpcStream[R]) Recv() (*R, error) {
	return s.stream.Recv()
}

func (s *grpcStream[R]) Close() error {
	s.cancel()
	return nil
}

func transportCredentials(config *Config) credentials.TransportCredentials {
	if !config.TLS {
		return insecure.NewCredentials()
	}
	host := config.Endpoint
	if h, _, err := net.SplitHostPort(config.Endpoint); err == nil {
		host = h
	}
	return credentials.NewTLS(&tls.Config{ServerName: host, MinVersion: tls.VersionTLS12})
}

// retryServiceConfig returns a service config retrying unavailable search streams,
// or "" when attempts leaves no room for a retry.
func retryServiceConfig(attempts int) string {
	if attempts <= 1 {
		return ""
	}
	return fmt.Sprintf(`{
		"methodConfig": [{
			"name": [{"service": %q}],
			"retryPolicy": {
				"maxAttempts": %d,
				"initialBackoff": "0.1s",
				"maxBackoff": "1s",
				"backoffMultiplier": 2,
				"retryableStatusCodes": ["UNAVAILABLE"]
			}
		}]
	}`, SearchServiceName, attempts)
}
