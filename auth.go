package rerun

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	authorizationKey = "authorization"
	tokenPrefix      = "Bearer "
)

// AuthDecorator attaches a bearer credential to outgoing requests.
//
// Without a credential requests are sent unauthenticated.
type AuthDecorator struct {
	token  string
	logger *zap.Logger
}

// NewAuthDecorator creates a decorator for token, which may be empty.
func NewAuthDecorator(token string, logger *zap.Logger) *AuthDecorator {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &AuthDecorator{
		token:  strings.TrimSpace(token),
		logger: logger,
	}
	d.warnIfExpired(time.Now())
	return d
}

// Decorate returns ctx carrying the authorization metadata.
//
// It fails only if the credential cannot be sent as a header value.
func (d *AuthDecorator) Decorate(ctx context.Context) (context.Context, error) {
	if d == nil || d.token == "" {
		return ctx, nil
	}
	if !validHeaderValue(d.token) {
		d.logger.Error("malformed token", zap.Int("length", len(d.token)))
		return ctx, status.Error(codes.InvalidArgument, "malformed token")
	}
	return metadata.AppendToOutgoingContext(ctx, authorizationKey, tokenPrefix+d.token), nil
}

// UnaryClientInterceptor decorates unary calls.
func (d *AuthDecorator) UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx, err := d.Decorate(ctx)
		if err != nil {
			return err
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// StreamClientInterceptor decorates streaming calls.
func (d *AuthDecorator) StreamClientInterceptor() grpc.StreamClientInterceptor {
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		ctx, err := d.Decorate(ctx)
		if err != nil {
			return nil, err
		}
		return streamer(ctx, desc, cc, method, opts...)
	}
}

// warnIfExpired logs when the credential is a JWT past its expiry.
// Opaque tokens are not inspected; the server stays the judge of validity.
func (d *AuthDecorator) warnIfExpired(now time.Time) {
	if d.token == "" {
		return
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(d.token, &claims); err != nil {
		return
	}
	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(now) {
		d.logger.Warn("credential expired",
			zap.Time("expired_at", claims.ExpiresAt.Time),
			zap.String("subject", claims.Subject),
		)
	}
}

// validHeaderValue reports whether s is printable ASCII, as gRPC metadata requires.
func validHeaderValue(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			return false
		}
	}
	return true
}
