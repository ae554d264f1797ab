// Package grpc serves the relmap API over gRPC as service relmap.v1.Relmap.
// Requests and responses are google.protobuf.Struct messages carrying the
// JSON shape of the api package types.
package grpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/relmap/relmap/internal/api"
	relerr "github.com/relmap/relmap/internal/errors"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "relmap.v1.Relmap"

// Full method names.
const (
	QueryMethod  = "/" + ServiceName + "/Query"
	CountMethod  = "/" + ServiceName + "/Count"
	InsertMethod = "/" + ServiceName + "/Insert"
	UpsertMethod = "/" + ServiceName + "/Upsert"
)

// RelmapServer is the server API of relmap.v1.Relmap.
type RelmapServer interface {
	Query(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Count(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Insert(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Upsert(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes relmap.v1.Relmap for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RelmapServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Query", Handler: unary(QueryMethod, RelmapServer.Query)},
		{MethodName: "Count", Handler: unary(CountMethod, RelmapServer.Count)},
		{MethodName: "Insert", Handler: unary(InsertMethod, RelmapServer.Insert)},
		{MethodName: "Upsert", Handler: unary(UpsertMethod, RelmapServer.Upsert)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "relmap/v1/relmap.proto",
}

type method func(RelmapServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(fullMethod string, m method) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return m(srv.(RelmapServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return m(srv.(RelmapServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Register registers a server for svc on s.
func Register(s *grpc.Server, svc *api.Service) {
	s.RegisterService(&ServiceDesc, NewServer(svc))
}

// Server implements RelmapServer on an api.Service.
type Server struct {
	service *api.Service
}

var _ RelmapServer = (*Server)(nil)

// NewServer returns a server for svc.
func NewServer(svc *api.Service) *Server {
	return &Server{service: svc}
}

// Query runs an api.QueryRequest.
func (s *Server) Query(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req api.QueryRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	resp, err := s.service.Query(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(ctx, resp)
}

// Count counts the objects matching an api.QueryRequest.
func (s *Server) Count(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req api.QueryRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	n, err := s.service.Count(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(ctx, map[string]any{"entity": req.Entity, "count": n})
}

// Insert inserts the object of an api.WriteRequest.
func (s *Server) Insert(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req api.WriteRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	req.Upsert = nil
	return s.write(ctx, req)
}

// Upsert upserts the object of an api.WriteRequest.
func (s *Server) Upsert(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req api.WriteRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	if req.Upsert == nil {
		return nil, status.Error(codes.InvalidArgument, "upsert options are required")
	}
	return s.write(ctx, req)
}

func (s *Server) write(ctx context.Context, req api.WriteRequest) (*structpb.Struct, error) {
	resp, err := s.service.Write(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(ctx, resp)
}

// fromStruct decodes in through its JSON form, keeping numbers exact.
func fromStruct(in *structpb.Struct, v any) error {
	raw, err := in.MarshalJSON()
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	return nil
}

func toStruct(ctx context.Context, v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	m["request_id"] = RequestID(ctx)
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

// toStatus maps relmap errors to gRPC status codes.
func toStatus(err error) error {
	msg := err.Error()
	switch relerr.GetCode(err) {
	case relerr.CodeHeadingNotFound, relerr.CodeRowNotFound, relerr.CodePartitionNotFound, relerr.CodeObjectNotFound:
		return status.Error(codes.NotFound, msg)
	}
	switch relerr.GetCategory(err) {
	case relerr.ErrCategorySchema, relerr.ErrCategoryValue:
		return status.Error(codes.InvalidArgument, msg)
	}
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, msg)
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, msg)
	}
	return status.Error(codes.Internal, fmt.Sprintf("internal error: %s", msg))
}

// RequestID returns the x-request-id metadata of an incoming call, or a
// new id.
func RequestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get("x-request-id"); len(ids) > 0 && ids[0] != "" {
			return ids[0]
		}
	}
	return uuid.New().String()
}
