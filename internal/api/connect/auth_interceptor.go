package connect

import (
	"context"
	"crypto/subtle"
	"net/http"

	"connectrpc.com/connect"
)

const (
	// AdminTokenHeader is the header name for admin authentication token.
	AdminTokenHeader = "X-Admin-Token"
)

// adminAuthInterceptor rejects requests without the admin token,
// for unary calls and server streams alike.
type adminAuthInterceptor struct {
	token string
}

// NewAdminAuthInterceptor creates a server interceptor that validates the admin token header.
func NewAdminAuthInterceptor(token string) connect.Interceptor {
	return &adminAuthInterceptor{token: token}
}

func (i *adminAuthInterceptor) check(h http.Header) error {
	got := h.Get(AdminTokenHeader)
	if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(i.token)) != 1 {
		return connect.NewError(connect.CodeUnauthenticated, nil)
	}
	return nil
}

func (i *adminAuthInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if err := i.check(req.Header()); err != nil {
			return nil, err
		}
		return next(ctx, req)
	}
}

func (i *adminAuthInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (i *adminAuthInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		if err := i.check(conn.RequestHeader()); err != nil {
			return err
		}
		return next(ctx, conn)
	}
}

// tokenInterceptor attaches the admin token to outgoing requests.
type tokenInterceptor struct {
	token string
}

// NewTokenInterceptor creates a client interceptor that sends the admin token header.
func NewTokenInterceptor(token string) connect.Interceptor {
	return &tokenInterceptor{token: token}
}

func (i *tokenInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		req.Header().Set(AdminTokenHeader, i.token)
		return next(ctx, req)
	}
}

func (i *tokenInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return func(ctx context.Context, procedure connect.Spec) connect.StreamingClientConn {
		conn := next(ctx, procedure)
		conn.RequestHeader().Set(AdminTokenHeader, i.token)
		return conn
	}
}

func (i *tokenInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return next
}
