package searchtest

import (
	"context"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/test/bufconn"

	"github.com/ErakhtinB/rerun"
)

// Call is a request received by Server, with the metadata it carried.
type Call struct {
	Request  *rerun.SearchDatasetRequest
	Metadata metadata.MD
}

// Server is a fake search service. Zero-row requests are answered with Probe,
// every other request with Scan followed by ScanErr.
type Server struct {
	Probe   []*rerun.SearchDatasetResponse
	Scan    []*rerun.SearchDatasetResponse
	ScanErr error

	mu    sync.Mutex
	calls []Call
}

var _ rerun.SearchServer = (*Server)(nil)

func (s *Server) SearchDataset(req *rerun.SearchDatasetRequest, stream grpc.ServerStreamingServer[rerun.SearchDatasetResponse]) error {
	md, _ := metadata.FromIncomingContext(stream.Context())
	s.mu.Lock()
	s.calls = append(s.calls, Call{Request: req, Metadata: md})
	s.mu.Unlock()

	if IsProbe(req) {
		return sendAll(stream, s.Probe)
	}
	if err := sendAll(stream, s.Scan); err != nil {
		return err
	}
	return s.ScanErr
}

func sendAll(stream grpc.ServerStreamingServer[rerun.SearchDatasetResponse], responses []*rerun.SearchDatasetResponse) error {
	for _, resp := range responses {
		if err := stream.Send(resp); err != nil {
			return err
		}
	}
	return nil
}

// Calls returns the calls received so far.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Serve runs srv on an in-memory listener and returns a connection to it.
// Both are torn down when the test ends.
func Serve(t testing.TB, srv rerun.SearchServer, config *rerun.Config, opts ...rerun.ConnOption) *rerun.Connection {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	rerun.RegisterSearchServer(gs, srv)
	go func() { _ = gs.Serve(lis) }()

	if config == nil {
		config = &rerun.Config{}
	}
	if config.Endpoint == "" {
		config.Endpoint = "passthrough:///bufnet"
	}
	dialer := func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}
	opts = append(opts, rerun.WithDialOptions(grpc.WithContextDialer(dialer)))

	conn, err := rerun.Open(config, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
		gs.Stop()
	})
	return conn
}
