// ABOUTME: gRPC service descriptor and client for pagefinder.v1.TableSearch
// ABOUTME: Messages are google.protobuf.Struct so no generated code is needed

package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "pagefinder.v1.TableSearch"

// TableSearchServer is the server API for the TableSearch service.
type TableSearchServer interface {
	grpcSearchDocument(context.Context, *structpb.Struct) (*structpb.Struct, error)
	grpcSearchAll(context.Context, *structpb.Struct) (*structpb.Struct, error)
	grpcListDocuments(context.Context, *structpb.Struct) (*structpb.Struct, error)
	grpcStats(context.Context, *structpb.Struct) (*structpb.Struct, error)
	grpcHealth(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterTableSearchServer registers srv on s.
func RegisterTableSearchServer(s grpc.ServiceRegistrar, srv *Server) {
	s.RegisterService(&TableSearchServiceDesc, srv)
}

type structHandler func(TableSearchServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(method string, call structHandler) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(TableSearchServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(TableSearchServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// TableSearchServiceDesc describes the TableSearch service.
var TableSearchServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TableSearchServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("SearchDocument", TableSearchServer.grpcSearchDocument),
		unary("SearchAll", TableSearchServer.grpcSearchAll),
		unary("ListDocuments", TableSearchServer.grpcListDocuments),
		unary("Stats", TableSearchServer.grpcStats),
		unary("Health", TableSearchServer.grpcHealth),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pagefinder/v1/table_search.proto",
}

// Client calls the TableSearch service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a client connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if in == nil {
		in = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// SearchDocument searches one document. Fields: doc_id, min_confidence.
func (c *Client) SearchDocument(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "SearchDocument", in, opts...)
}

// SearchAll searches the corpus. Fields: doc_ids, min_confidence.
func (c *Client) SearchAll(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "SearchAll", in, opts...)
}

func (c *Client) ListDocuments(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "ListDocuments", nil, opts...)
}

func (c *Client) Stats(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Stats", nil, opts...)
}

func (c *Client) Health(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Health", nil, opts...)
}
