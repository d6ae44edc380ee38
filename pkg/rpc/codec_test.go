package rpc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoRequest struct {
	Name string         `json:"name"`
	Data map[string]any `json:"data,omitempty"`
}

type echoResponse struct {
	Greeting string `json:"greeting"`
}

func newEchoServer(t *testing.T) *httptest.Server {
	t.Helper()
	svc := NewService("peakheight.test.v1.EchoService")
	Unary(svc, "Echo", func(_ context.Context, req *connect.Request[echoRequest]) (*connect.Response[echoResponse], error) {
		if req.Msg.Name == "" {
			return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("name is required"))
		}
		return connect.NewResponse(&echoResponse{Greeting: "hello " + req.Msg.Name}), nil
	})

	mux := http.NewServeMux()
	path, handler := svc.Handler()
	assert.Equal(t, "/peakheight.test.v1.EchoService/", path)
	mux.Handle(path, handler)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestUnary_ConnectClientRoundTrip(t *testing.T) {
	srv := newEchoServer(t)

	client := connect.NewClient[echoRequest, echoResponse](
		srv.Client(),
		srv.URL+"/peakheight.test.v1.EchoService/Echo",
		connect.WithCodec(JSONCodec{}),
	)

	resp, err := client.CallUnary(context.Background(), connect.NewRequest(&echoRequest{Name: "ada"}))
	require.NoError(t, err)
	assert.Equal(t, "hello ada", resp.Msg.Greeting)

	_, err = client.CallUnary(context.Background(), connect.NewRequest(&echoRequest{}))
	require.Error(t, err)
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}

func TestUnary_PlainJSONPost(t *testing.T) {
	srv := newEchoServer(t)

	resp, err := srv.Client().Post(srv.URL+"/peakheight.test.v1.EchoService/Echo", "application/json",
		strings.NewReader(`{"name":"grace"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestJSONCodec_EmptyBody(t *testing.T) {
	var req echoRequest
	require.NoError(t, JSONCodec{}.Unmarshal([]byte("  "), &req))
	assert.Empty(t, req.Name)

	assert.Error(t, JSONCodec{}.Unmarshal([]byte("{"), &req))
}
