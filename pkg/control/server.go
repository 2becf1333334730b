package control

import (
	"context"
	"net"

	"github.com/core-tools/hsu-procmaster/pkg/logging"

	"google.golang.org/grpc"
)

type ServerOptions struct {
	// Endpoint, when set, takes precedence over Port (e.g. unix:///run/procman.sock)
	Endpoint      string
	Port          int // 0 picks a free port
	ServerOptions []grpc.ServerOption
}

type Server interface {
	Port() int
	Address() string
	GRPC() grpc.ServiceRegistrar
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

func NewServer(options ServerOptions, logger logging.Logger) (Server, error) {
	endpoint, err := options.endpoint()
	if err != nil {
		return nil, err
	}

	logger.Infof("Creating control server on endpoint: %s", endpoint)

	listener, err := endpoint.Listen()
	if err != nil {
		return nil, err
	}

	return NewServerWithListener(listener, options, logger), nil
}

func (o ServerOptions) endpoint() (Endpoint, error) {
	if o.Endpoint != "" {
		return ParseEndpoint(o.Endpoint)
	}
	port := o.Port
	if port < 0 {
		port = 0
	}
	return TCPEndpoint(port), nil
}

// NewServerWithListener serves on an existing listener, e.g. an in-memory one
func NewServerWithListener(listener net.Listener, options ServerOptions, logger logging.Logger) Server {
	serverOptions := options.ServerOptions
	if len(serverOptions) == 0 {
		serverOptions = []grpc.ServerOption{
			grpc.WriteBufferSize(1 * 1024 * 1024),
			grpc.InitialWindowSize(1 * 1024 * 1024),
			grpc.InitialConnWindowSize(1 * 1024 * 1024),
		}
		logger.Debugf("Using default gRPC server options")
	}

	port := 0
	if tcpAddr, ok := listener.Addr().(*net.TCPAddr); ok {
		port = tcpAddr.Port
	}

	logger.Infof("Control server listening at %s", listener.Addr().String())

	return &server{
		port:     port,
		impl:     grpc.NewServer(serverOptions...),
		listener: listener,
		logger:   logger,
	}
}

type server struct {
	port     int
	impl     *grpc.Server
	listener net.Listener
	logger   logging.Logger
}

func (s *server) Port() int {
	return s.port
}

// Address is the endpoint clients dial, see ParseEndpoint
func (s *server) Address() string {
	addr := s.listener.Addr()
	if addr.Network() == NetworkUnix {
		return Endpoint{Network: NetworkUnix, Address: addr.String()}.String()
	}
	return addr.String()
}

func (s *server) GRPC() grpc.ServiceRegistrar {
	return s.impl
}

func (s *server) Start(ctx context.Context) error {
	s.logger.Infof("Starting control server at %s", s.listener.Addr().String())

	go func() {
		err := s.impl.Serve(s.listener)
		if err != nil {
			s.logger.Errorf("Control server serve failed at %s: %v", s.listener.Addr().String(), err)
			return
		}
		s.logger.Infof("Control server stopped serving at %s", s.listener.Addr().String())
	}()

	return nil
}

func (s *server) Stop(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	stopped := make(chan struct{})

	s.logger.Infof("Stopping control server...")
	go func() {
		s.impl.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		s.logger.Infof("Control server stopped gracefully")
	case <-ctx.Done():
		s.logger.Infof("Control server shutdown timed out, forcing stop")
		s.impl.Stop()
	}

	return nil
}
