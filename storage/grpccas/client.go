package grpccas

import (
	"context"
	"time"

	"github.com/ipfs/go-cid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"xdao.co/resultledger/cidutil"
	"xdao.co/resultledger/storage"
)

// Client implements storage.CAS over the CAS gRPC service served by
// resultledger-casd.
type Client struct {
	cc  *grpc.ClientConn
	rpc casClient

	// Timeout applies per RPC when non-zero, in addition to the caller's context.
	Timeout time.Duration
}

var _ storage.CAS = (*Client)(nil)

type DialOptions struct {
	// Timeout applies to the initial dial when non-zero.
	Timeout time.Duration

	// MaxMsgBytes sets both send/recv max sizes when non-zero.
	MaxMsgBytes int
}

func Dial(target string, opts DialOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if opts.MaxMsgBytes > 0 {
		dialOpts = append(dialOpts,
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(opts.MaxMsgBytes),
				grpc.MaxCallSendMsgSize(opts.MaxMsgBytes),
			),
		)
	}

	ctx := context.Background()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cc, err := grpc.DialContext(ctx, target, dialOpts...)
	if err != nil {
		return nil, storage.Unavailable("grpc dial", err)
	}
	return NewClient(cc), nil
}

// NewClient wraps an existing connection.
func NewClient(cc *grpc.ClientConn) *Client {
	return &Client{cc: cc, rpc: casClient{cc: cc}}
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

func (c *Client) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	if c == nil || c.cc == nil {
		return cid.Undef, storage.Unavailable("grpc put", errNoConn)
	}
	expected, err := cidutil.Fingerprint(data)
	if err != nil {
		return cid.Undef, err
	}

	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.rpc.put(ctx, data)
	if err != nil {
		return cid.Undef, mapRPC(err)
	}
	id, err := cid.Decode(reply)
	if err != nil || !id.Defined() {
		return cid.Undef, storage.ErrInvalidCID
	}
	if !id.Equals(expected) {
		return cid.Undef, storage.ErrCIDMismatch
	}
	return id, nil
}

func (c *Client) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	if c == nil || c.cc == nil {
		return nil, storage.Unavailable("grpc get", errNoConn)
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	b, err := c.rpc.get(ctx, id.String())
	if err != nil {
		return nil, mapRPC(err)
	}
	if !cidutil.Matches(id, b) {
		return nil, storage.ErrCIDMismatch
	}
	return b, nil
}

func (c *Client) Has(ctx context.Context, id cid.Cid) bool {
	if !id.Defined() || c == nil || c.cc == nil {
		return false
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	ok, err := c.rpc.has(ctx, id.String())
	return err == nil && ok
}

func (c *Client) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, c.Timeout)
}
