package control

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/nodemailer/nodemailer/internal/node"
	"github.com/nodemailer/nodemailer/internal/registry"
)

// Client talks to the control service of a running instance
type Client struct {
	conn *grpc.ClientConn
}

// Dial creates a client for addr. The connection is established lazily.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create control client for %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close releases the connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// ListPeers returns the peers known to the running instance
func (c *Client) ListPeers(ctx context.Context) ([]registry.Peer, error) {
	out := new(structpb.ListValue)
	if err := c.conn.Invoke(ctx, fullMethod(methodListPeers), &emptypb.Empty{}, out); err != nil {
		return nil, err
	}

	peers := make([]registry.Peer, 0, len(out.GetValues()))
	for _, v := range out.GetValues() {
		peers = append(peers, peerFromStruct(v.GetStructValue()))
	}
	return peers, nil
}

// ToggleFavorite flips the favorite flag of a peer on the running instance
func (c *Client) ToggleFavorite(ctx context.Context, name string) (registry.Peer, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, fullMethod(methodToggleFavorite), wrapperspb.String(name), out); err != nil {
		return registry.Peer{}, err
	}
	return peerFromStruct(out), nil
}

// SendMail asks the running instance to send a mail to the named peer
func (c *Client) SendMail(ctx context.Context, to, message, nodeString string) error {
	in, err := structpb.NewStruct(map[string]any{
		"to":          to,
		"message":     message,
		"node_string": nodeString,
	})
	if err != nil {
		return err
	}
	return c.conn.Invoke(ctx, fullMethod(methodSendMail), in, new(emptypb.Empty))
}

// Status returns a snapshot of the running instance
func (c *Client) Status(ctx context.Context) (node.Status, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, fullMethod(methodStatus), &emptypb.Empty{}, out); err != nil {
		return node.Status{}, err
	}

	f := out.GetFields()
	st := node.Status{
		Name:          f["name"].GetStringValue(),
		Peers:         int(f["peers"].GetNumberValue()),
		Favorites:     int(f["favorites"].GetNumberValue()),
		BroadcastPort: int(f["broadcast_port"].GetNumberValue()),
		MessagingAddr: f["messaging_addr"].GetStringValue(),
	}
	st.StartedAt, _ = time.Parse(time.RFC3339, f["started_at"].GetStringValue())
	return st, nil
}

func peerFromStruct(s *structpb.Struct) registry.Peer {
	f := s.GetFields()
	p := registry.Peer{
		Name:     f["name"].GetStringValue(),
		Address:  f["address"].GetStringValue(),
		Favorite: f["favorite"].GetBoolValue(),
	}
	p.LastSeen, _ = time.Parse(time.RFC3339Nano, f["last_seen"].GetStringValue())
	return p
}
