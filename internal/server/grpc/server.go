package grpc

import (
	"context"
	"net"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dmitrijs2005/keepershare/internal/logging"
)

// Services bundles the domain components the gRPC surface exposes.
type Services struct {
	Vault  VaultService
	Shares ShareService
	Links  LinkService
	Breach BreachService
	Audit  AuditLog
}

// LinkSettings controls how issued links are presented to callers.
type LinkSettings struct {
	DefaultTTL    time.Duration
	PublicBaseURL string
}

type GRPCServer struct {
	address   string
	vault     VaultService
	shares    ShareService
	links     LinkService
	breach    BreachService
	audit     AuditLog
	linkCfg   LinkSettings
	logger    logging.Logger
	jwtSecret []byte
	health    *health.Server
}

func NewGRPCServer(a string, l logging.Logger, svc Services, linkCfg LinkSettings, secretKey string) *GRPCServer {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		vault:     svc.Vault,
		shares:    svc.Shares,
		links:     svc.Links,
		breach:    svc.Breach,
		audit:     svc.Audit,
		linkCfg:   linkCfg,
		jwtSecret: []byte(secretKey),
		health:    health.NewServer(),
	}
}

// Register attaches the vault and health services to srv.
func (s *GRPCServer) Register(srv *grpc.Server) {
	srv.RegisterService(&serviceDesc, s)
	healthpb.RegisterHealthServer(srv, s.health)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
}

// NewServer builds a grpc.Server with the access token interceptor and all
// services registered.
func (s *GRPCServer) NewServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.accessTokenInterceptor))
	s.Register(srv)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := s.NewServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", s.address)

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}

func (s *GRPCServer) shareURL(id string) string {
	return strings.TrimRight(s.linkCfg.PublicBaseURL, "/") + "/share/" + id
}
