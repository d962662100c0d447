package solver

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/cavesweep/internal/settings"
)

// RunMethod is the full gRPC method name of the remote solver.
const RunMethod = "/cavecalc.v1.Solver/Run"

// GRPCAdapter calls a remote solver service. Requests and responses are
// google.protobuf.Struct values carrying the same JSON shapes as ExecAdapter.
type GRPCAdapter struct {
	conn    grpc.ClientConnInterface
	catalog Catalog
}

// NewGRPCAdapter wraps an existing connection.
func NewGRPCAdapter(conn grpc.ClientConnInterface, catalog Catalog) *GRPCAdapter {
	return &GRPCAdapter{conn: conn, catalog: catalog}
}

// DialGRPC connects to a solver service at addr without transport security.
// The caller closes the returned connection.
func DialGRPC(addr string, catalog Catalog, opts ...grpc.DialOption) (*GRPCAdapter, *grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("dial solver %s: %w", addr, err)
	}
	return NewGRPCAdapter(conn, catalog), conn, nil
}

// Run implements Adapter.
func (a *GRPCAdapter) Run(ctx context.Context, cfg settings.Configuration) (RunResult, error) {
	req, err := newRequest(a.catalog, cfg)
	if err != nil {
		return RunResult{}, err
	}
	in, err := structpb.NewStruct(map[string]interface{}{
		"database": req.Database,
		"settings": req.Settings,
	})
	if err != nil {
		return RunResult{}, fmt.Errorf("encode request: %w", err)
	}

	out := new(structpb.Struct)
	if err := a.conn.Invoke(ctx, RunMethod, in, out); err != nil {
		return RunResult{}, fmt.Errorf("invoke %s: %w", RunMethod, err)
	}
	return DecodeColumns(out.AsMap())
}

// SolverServer is implemented by remote solver services.
type SolverServer interface {
	Run(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes the solver service for registration on a
// grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "cavecalc.v1.Solver",
	HandlerType: (*SolverServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Run",
			Handler:    runHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cavecalc/v1/solver.proto",
}

func runHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SolverServer).Run(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: RunMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SolverServer).Run(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}
