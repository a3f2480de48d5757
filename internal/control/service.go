// Package control exposes a running instance to other CLI invocations over a
// local gRPC service. Payloads are protobuf well-known types, so no generated
// code is needed.
package control

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/nodemailer/nodemailer/internal/messaging"
	"github.com/nodemailer/nodemailer/internal/node"
	"github.com/nodemailer/nodemailer/internal/registry"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "nodemailer.control.v1.Control"

const (
	methodListPeers      = "ListPeers"
	methodToggleFavorite = "ToggleFavorite"
	methodSendMail       = "SendMail"
	methodStatus         = "Status"
)

// Backend is the running instance the service forwards to
type Backend interface {
	Peers(ctx context.Context) ([]registry.Peer, error)
	ToggleFavorite(ctx context.Context, name string) (registry.Peer, error)
	SendMail(ctx context.Context, peerName, message, nodeString string) (messaging.Mail, error)
	Status(ctx context.Context) (node.Status, error)
}

// controlServer is the handler interface checked by grpc.RegisterService
type controlServer interface {
	ListPeers(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	ToggleFavorite(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	SendMail(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	Status(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*controlServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: methodListPeers,
			Handler: unaryHandler(methodListPeers, func() proto.Message { return new(emptypb.Empty) },
				func(s controlServer, ctx context.Context, req proto.Message) (proto.Message, error) {
					return s.ListPeers(ctx, req.(*emptypb.Empty))
				}),
		},
		{
			MethodName: methodToggleFavorite,
			Handler: unaryHandler(methodToggleFavorite, func() proto.Message { return new(wrapperspb.StringValue) },
				func(s controlServer, ctx context.Context, req proto.Message) (proto.Message, error) {
					return s.ToggleFavorite(ctx, req.(*wrapperspb.StringValue))
				}),
		},
		{
			MethodName: methodSendMail,
			Handler: unaryHandler(methodSendMail, func() proto.Message { return new(structpb.Struct) },
				func(s controlServer, ctx context.Context, req proto.Message) (proto.Message, error) {
					return s.SendMail(ctx, req.(*structpb.Struct))
				}),
		},
		{
			MethodName: methodStatus,
			Handler: unaryHandler(methodStatus, func() proto.Message { return new(emptypb.Empty) },
				func(s controlServer, ctx context.Context, req proto.Message) (proto.Message, error) {
					return s.Status(ctx, req.(*emptypb.Empty))
				}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "nodemailer/control/v1/control.proto",
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// unaryHandler adapts a typed call to grpc.MethodHandler, honouring interceptors
func unaryHandler(
	method string,
	newReq func() proto.Message,
	call func(controlServer, context.Context, proto.Message) (proto.Message, error),
) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := newReq()
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(controlServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(controlServer), ctx, req.(proto.Message))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Server serves the control service for one backend
type Server struct {
	grpcServer *grpc.Server
	ln         net.Listener
}

// NewServer creates a control server forwarding to backend
func NewServer(backend Backend, opts ...grpc.ServerOption) *Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(logUnary))
	gs := grpc.NewServer(opts...)
	gs.RegisterService(&serviceDesc, &service{backend: backend})
	return &Server{grpcServer: gs}
}

// Start listens on addr and serves in the background
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.ln = ln
	go func() {
		if err := s.Serve(ln); err != nil {
			log.Printf("[ERROR] control: serve failed: %v", err)
		}
	}()
	log.Printf("[INFO] control: listening on %s", ln.Addr())
	return nil
}

// Serve serves on an existing listener until Stop
func (s *Server) Serve(ln net.Listener) error {
	err := s.grpcServer.Serve(ln)
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

// Stop stops the server, letting in-flight calls finish
func (s *Server) Stop() {
	s.grpcServer.GracefulStop()
}

// Addr returns the bound address after Start
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	if err != nil {
		log.Printf("[DEBUG] control: %s failed after %v: %v", info.FullMethod, time.Since(start), err)
	} else {
		log.Printf("[DEBUG] control: %s ok in %v", info.FullMethod, time.Since(start))
	}
	return resp, err
}

// service implements controlServer on top of a Backend
type service struct {
	backend Backend
}

func (s *service) ListPeers(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	peers, err := s.backend.Peers(ctx)
	if err != nil {
		return nil, toStatus(err)
	}

	values := make([]any, len(peers))
	for i, p := range peers {
		values[i] = peerToMap(p)
	}
	list, err := structpb.NewList(values)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode peers: %v", err)
	}
	return list, nil
}

func (s *service) ToggleFavorite(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	name := req.GetValue()
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "peer name is required")
	}

	p, err := s.backend.ToggleFavorite(ctx, name)
	if err != nil {
		return nil, toStatus(err)
	}
	out, err := structpb.NewStruct(peerToMap(p))
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode peer: %v", err)
	}
	return out, nil
}

func (s *service) SendMail(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	fields := req.GetFields()
	to := fields["to"].GetStringValue()
	if to == "" {
		return nil, status.Error(codes.InvalidArgument, "to is required")
	}

	_, err := s.backend.SendMail(ctx, to, fields["message"].GetStringValue(), fields["node_string"].GetStringValue())
	if err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *service) Status(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	st, err := s.backend.Status(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	out, err := structpb.NewStruct(map[string]any{
		"name":           st.Name,
		"peers":          st.Peers,
		"favorites":      st.Favorites,
		"broadcast_port": st.BroadcastPort,
		"messaging_addr": st.MessagingAddr,
		"started_at":     st.StartedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode status: %v", err)
	}
	return out, nil
}

func peerToMap(p registry.Peer) map[string]any {
	return map[string]any{
		"name":      p.Name,
		"address":   p.Address,
		"favorite":  p.Favorite,
		"last_seen": p.LastSeen.UTC().Format(time.RFC3339Nano),
	}
}

// toStatus maps domain errors onto gRPC status codes
func toStatus(err error) error {
	var connErr *messaging.ConnectionError
	switch {
	case errors.Is(err, registry.ErrPeerNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.As(err, &connErr):
		return status.Error(codes.Unavailable, connErr.Error())
	case errors.Is(err, node.ErrStopped):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
