// Package rpc holds the Connect plumbing shared by the hand-written services:
// a JSON codec for plain Go structs and a small handler registration helper.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
)

const codecName = "json"

// JSONCodec marshals request and response structs with encoding/json.
// It replaces connect's protojson codec, which only accepts proto messages.
type JSONCodec struct{}

var _ connect.Codec = JSONCodec{}

func (JSONCodec) Name() string { return codecName }

func (JSONCodec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (JSONCodec) Unmarshal(data []byte, msg any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("decode %T: %w", msg, err)
	}
	return nil
}

// Service collects unary procedures under one service path, the way generated
// connect code does.
type Service struct {
	name string
	mux  *http.ServeMux
	opts []connect.HandlerOption
}

func NewService(name string, opts ...connect.HandlerOption) *Service {
	return &Service{
		name: name,
		mux:  http.NewServeMux(),
		opts: append([]connect.HandlerOption{connect.WithCodec(JSONCodec{})}, opts...),
	}
}

// Procedure returns the full procedure path for method.
func (s *Service) Procedure(method string) string {
	return "/" + s.name + "/" + method
}

// Path is the prefix the service mounts on.
func (s *Service) Path() string {
	return "/" + s.name + "/"
}

// Unary registers fn as method of svc.
func Unary[Req, Res any](svc *Service, method string, fn func(ctx context.Context, req *connect.Request[Req]) (*connect.Response[Res], error)) {
	procedure := svc.Procedure(method)
	svc.mux.Handle(procedure, connect.NewUnaryHandler(procedure, fn, svc.opts...))
}

// Handler returns the mount path and handler for the service.
func (s *Service) Handler() (string, http.Handler) {
	return s.Path(), s.mux
}
