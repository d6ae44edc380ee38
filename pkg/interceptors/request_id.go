package interceptors

import (
	"context"

	"connectrpc.com/connect"
	"github.com/google/uuid"
)

// NewRequestIDInterceptor propagates or generates a request id and echoes it
// back in the response header.
func NewRequestIDInterceptor(header string) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			id := req.Header().Get(header)
			if id == "" {
				id = uuid.NewString()
			}
			ctx = ContextWithRequestID(ctx, id)

			resp, err := next(ctx, req)
			if resp != nil {
				resp.Header().Set(header, id)
			}
			var connectErr *connect.Error
			if err != nil && asConnectError(err, &connectErr) {
				connectErr.Meta().Set(header, id)
			}
			return resp, err
		}
	}
}

func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}
