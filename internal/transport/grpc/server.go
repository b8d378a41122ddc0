package grpc

import (
	"context"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"rewardgate/internal/repository"
	"rewardgate/internal/service"
)

const ledgerServiceName = "rewardgate.v1.RewardLedger"

// RewardLedgerServer is the read-only balance query surface offered to the
// user-management system. Messages are the protobuf well-known wrappers, so
// no generated code is needed.
type RewardLedgerServer interface {
	GetBalance(ctx context.Context, userID *wrapperspb.StringValue) (*wrapperspb.Int64Value, error)
}

var rewardLedgerServiceDesc = grpc.ServiceDesc{
	ServiceName: ledgerServiceName,
	HandlerType: (*RewardLedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetBalance",
			Handler:    getBalanceHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rewardgate/v1/ledger.proto",
}

func getBalanceHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RewardLedgerServer).GetBalance(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + ledgerServiceName + "/GetBalance",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RewardLedgerServer).GetBalance(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

type Server struct {
	store   service.LedgerStore
	srv     *grpc.Server
	health  *health.Server
	addr    string
	log     *zap.Logger
	timeout time.Duration
}

func NewServer(addr string, store service.LedgerStore, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		store:   store,
		addr:    addr,
		srv:     grpc.NewServer(),
		health:  health.NewServer(),
		log:     log.Named("grpc"),
		timeout: 5 * time.Second,
	}
	s.srv.RegisterService(&rewardLedgerServiceDesc, s)
	healthpb.RegisterHealthServer(s.srv, s.health)
	s.health.SetServingStatus(ledgerServiceName, healthpb.HealthCheckResponse_SERVING)
	return s
}

func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.log.Info("gRPC server listening", zap.String("addr", s.addr))
	return s.srv.Serve(lis)
}

func (s *Server) Stop(ctx context.Context) error {
	s.health.Shutdown()
	s.srv.GracefulStop()
	return nil
}

func (s *Server) GetBalance(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.Int64Value, error) {
	userID := req.GetValue()
	if userID == "" {
		return nil, status.Error(codes.InvalidArgument, "user id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	balance, err := s.store.Balance(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, status.Error(codes.NotFound, "user not found")
	}
	if err != nil {
		s.log.Error("balance lookup failed", zap.String("user_id", userID), zap.Error(err))
		return nil, status.Error(codes.Internal, "balance lookup failed")
	}
	return wrapperspb.Int64(balance), nil
}
