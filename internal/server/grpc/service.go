package grpc

import (
	"context"
	"encoding/json"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dmitrijs2005/keepershare/internal/common"
)

// ServiceName is the fully-qualified gRPC service name. Every method takes
// and returns a google.protobuf.Struct whose fields mirror the JSON form of
// the request and response types in handler.go.
const ServiceName = "keepershare.v1.VaultService"

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateItem", Handler: unary("CreateItem", (*GRPCServer).CreateItem)},
		{MethodName: "ImportItems", Handler: unary("ImportItems", (*GRPCServer).ImportItems)},
		{MethodName: "UpdateItem", Handler: unary("UpdateItem", (*GRPCServer).UpdateItem)},
		{MethodName: "GetItem", Handler: unary("GetItem", (*GRPCServer).GetItem)},
		{MethodName: "ListItems", Handler: unary("ListItems", (*GRPCServer).ListItems)},
		{MethodName: "ListTrash", Handler: unary("ListTrash", (*GRPCServer).ListTrash)},
		{MethodName: "SetFavorite", Handler: unary("SetFavorite", (*GRPCServer).SetFavorite)},
		{MethodName: "DeleteItem", Handler: unary("DeleteItem", (*GRPCServer).DeleteItem)},
		{MethodName: "RestoreItem", Handler: unary("RestoreItem", (*GRPCServer).RestoreItem)},
		{MethodName: "PurgeItem", Handler: unary("PurgeItem", (*GRPCServer).PurgeItem)},
		{MethodName: "RestoreVersion", Handler: unary("RestoreVersion", (*GRPCServer).RestoreVersion)},
		{MethodName: "GrantShare", Handler: unary("GrantShare", (*GRPCServer).GrantShare)},
		{MethodName: "RevokeShare", Handler: unary("RevokeShare", (*GRPCServer).RevokeShare)},
		{MethodName: "ListGrants", Handler: unary("ListGrants", (*GRPCServer).ListGrants)},
		{MethodName: "ListReceived", Handler: unary("ListReceived", (*GRPCServer).ListReceived)},
		{MethodName: "IssueLink", Handler: unary("IssueLink", (*GRPCServer).IssueLink)},
		{MethodName: "CheckBreaches", Handler: unary("CheckBreaches", (*GRPCServer).CheckBreaches)},
		{MethodName: "ListAudit", Handler: unary("ListAudit", (*GRPCServer).ListAudit)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "keepershare/v1/vault.proto",
}

// FullMethod returns the gRPC path of a VaultService method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// unary adapts a typed handler to grpc.MethodHandler, decoding the Struct
// request into Req and encoding Resp back into a Struct.
func unary[Req, Resp any](method string, fn func(*GRPCServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := &structpb.Struct{}
		if err := dec(in); err != nil {
			return nil, err
		}

		call := func(ctx context.Context, req any) (any, error) {
			r := new(Req)
			if err := FromStruct(req.(*structpb.Struct), r); err != nil {
				return nil, status.Error(codes.InvalidArgument, err.Error())
			}
			resp, err := fn(srv.(*GRPCServer), ctx, r)
			if err != nil {
				return nil, err
			}
			out, err := ToStruct(resp)
			if err != nil {
				return nil, status.Error(codes.Internal, "response encoding failed")
			}
			return out, nil
		}

		if interceptor == nil {
			return call(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
		return interceptor(ctx, in, info, call)
	}
}

// ToStruct converts v to a Struct through its JSON encoding.
func ToStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	m := map[string]any{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

// FromStruct fills v from s through its JSON encoding.
func FromStruct(s *structpb.Struct, v any) error {
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// toStatus maps domain errors onto gRPC status codes.
func (s *GRPCServer) toStatus(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, common.ErrValidationFailed), errors.Is(err, common.ErrInvalidIndex):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrAlreadyShared):
		return status.Error(codes.AlreadyExists, "already shared")
	case errors.Is(err, common.ErrExpired):
		return status.Error(codes.FailedPrecondition, "expired")
	case errors.Is(err, common.ErrExhausted):
		return status.Error(codes.FailedPrecondition, "exhausted")
	case errors.Is(err, common.ErrorUnauthorized):
		return status.Error(codes.PermissionDenied, "permission denied")
	case errors.Is(err, common.ErrVersionConflict):
		return status.Error(codes.Aborted, "concurrent modification, retry")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "canceled")
	}
	s.logger.Error(ctx, "request failed", "error", err)
	return status.Error(codes.Internal, "internal error")
}
