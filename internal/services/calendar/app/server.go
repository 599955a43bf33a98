// Package server wires the calendar runtime and gRPC lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/mirakulix/play-together-api/internal/platform/config"
	"github.com/mirakulix/play-together-api/internal/services/calendar/bus"
	"github.com/mirakulix/play-together-api/internal/services/calendar/feeds"
	"github.com/mirakulix/play-together-api/internal/services/calendar/friends"
	"github.com/mirakulix/play-together-api/internal/services/calendar/service"
	calendarsqlite "github.com/mirakulix/play-together-api/internal/services/calendar/storage/sqlite"
	"github.com/mirakulix/play-together-api/internal/services/calendar/token"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

type serverEnv struct {
	DBPath string `env:"PLAY_TOGETHER_CALENDAR_DB_PATH"`
}

func loadServerEnv() serverEnv {
	var cfg serverEnv
	_ = config.ParseEnv(&cfg)
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = filepath.Join("data", "calendar.db")
	}
	return cfg
}

// Server hosts the calendar runtime and the gRPC health lifecycle.
type Server struct {
	listener   net.Listener
	grpcServer *grpc.Server
	health     *health.Server
	store      *calendarsqlite.Store
	changeBus  *bus.Bus
	feeds      *feeds.Feeds
	service    *service.Service
}

// New creates a configured calendar server listening on the provided port.
func New(port int) (*Server, error) {
	return NewWithAddr(fmt.Sprintf(":%d", port))
}

// NewWithAddr creates a configured calendar server for the provided address.
func NewWithAddr(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	srvEnv := loadServerEnv()
	store, err := openCalendarStore(srvEnv.DBPath)
	if err != nil {
		_ = listener.Close()
		return nil, err
	}

	tokenCfg, err := token.LoadConfigFromEnv(nil)
	if err != nil {
		_ = listener.Close()
		_ = store.Close()
		return nil, fmt.Errorf("load token config: %w", err)
	}
	resolver, err := token.NewResolver(tokenCfg)
	if err != nil {
		_ = listener.Close()
		_ = store.Close()
		return nil, fmt.Errorf("build token resolver: %w", err)
	}

	changeBus := bus.New()
	graph := friends.NewStoreGraph(store)
	feedLayer, err := feeds.New(changeBus, store, graph, resolver, nil)
	if err != nil {
		_ = listener.Close()
		_ = store.Close()
		changeBus.Close()
		return nil, fmt.Errorf("build feeds: %w", err)
	}
	calendarService, err := service.New(service.Config{Store: store, Bus: changeBus, Graph: graph})
	if err != nil {
		_ = listener.Close()
		_ = store.Close()
		changeBus.Close()
		return nil, fmt.Errorf("build calendar service: %w", err)
	}

	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(accessLogInterceptor(), errorMappingInterceptor()),
	)
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("calendar.v1.CalendarService", grpc_health_v1.HealthCheckResponse_SERVING)

	return &Server{
		listener:   listener,
		grpcServer: grpcServer,
		health:     healthServer,
		store:      store,
		changeBus:  changeBus,
		feeds:      feedLayer,
		service:    calendarService,
	}, nil
}

// Addr returns the listener address for the server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Feeds returns the subscription layer backed by this server's runtime.
func (s *Server) Feeds() *feeds.Feeds {
	if s == nil {
		return nil
	}
	return s.feeds
}

// Service returns the mutation service backed by this server's runtime.
func (s *Server) Service() *service.Service {
	if s == nil {
		return nil
	}
	return s.service
}

// Run creates and serves a calendar server until context cancellation.
func Run(ctx context.Context, port int) error {
	server, err := New(port)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve starts the gRPC server until context cancellation.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	log.Printf("calendar server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.grpcServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		if s.health != nil {
			s.health.Shutdown()
		}
		s.grpcServer.GracefulStop()
		err := <-serveErr
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	case err := <-serveErr:
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	}
}

// Close releases calendar server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.health != nil {
		s.health.Shutdown()
	}
	if s.grpcServer != nil {
		s.grpcServer.Stop()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	if s.changeBus != nil {
		s.changeBus.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close calendar store: %v", err)
		}
	}
}

func openCalendarStore(path string) (*calendarsqlite.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := calendarsqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open calendar sqlite store: %w", err)
	}
	return store, nil
}
