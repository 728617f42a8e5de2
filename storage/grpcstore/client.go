package grpcstore

import (
	"context"
	"time"

	"github.com/ipfs/go-cid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"nearfs.io/upload/cidutil"
	"nearfs.io/upload/model"
	"nearfs.io/upload/storage"
)

// Client implements storage.Backend over a BlockStore gRPC service.
type Client struct {
	cc     *grpc.ClientConn
	client BlockStoreClient
	target string

	// Timeout applies per RPC when non-zero.
	Timeout time.Duration
}

var (
	_ storage.Backend = (*Client)(nil)
	_ storage.Getter  = (*Client)(nil)
)

type DialOptions struct {
	// Timeout applies to the initial dial when non-zero.
	Timeout time.Duration

	// MaxMsgBytes sets both send/recv max sizes when non-zero.
	MaxMsgBytes int
}

func Dial(target string, opts DialOptions) (*Client, error) {
	return DialContext(context.Background(), target, opts)
}

// DialContext is Dial with extra grpc.DialOptions, used with in-process listeners.
func DialContext(ctx context.Context, target string, opts DialOptions, extra ...grpc.DialOption) (*Client, error) {
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
	dialOpts = append(dialOpts, extra...)

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cc, err := grpc.DialContext(ctx, target, dialOpts...)
	if err != nil {
		return nil, model.WrapError(model.KindNetwork, err, "grpcstore: dial %s", target)
	}
	return &Client{cc: cc, client: NewBlockStoreClient(cc), target: target}, nil
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

func (c *Client) Has(ctx context.Context, id cid.Cid) (bool, error) {
	if !id.Defined() {
		return false, nil
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.Has(ctx, wrapperspb.String(cidutil.String(id)))
	if err != nil {
		return false, mapRPC(err)
	}
	return reply.GetValue(), nil
}

// Submit verifies the whole batch locally, then puts blocks one per RPC.
func (c *Client) Submit(ctx context.Context, blocks []model.Block) (storage.Receipt, error) {
	for _, b := range blocks {
		if !b.CID.Defined() {
			return storage.Receipt{}, model.WrapError(model.KindCIDMismatch, storage.ErrInvalidCID, "grpcstore")
		}
		if err := cidutil.Verify(b.CID, b.Data); err != nil {
			return storage.Receipt{}, err
		}
	}
	for _, b := range blocks {
		if err := c.put(ctx, b); err != nil {
			return storage.Receipt{}, err
		}
	}
	return storage.Receipt{ID: c.target, CIDs: model.CIDs(blocks)}, nil
}

func (c *Client) put(ctx context.Context, b model.Block) error {
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.Put(ctx, wrapperspb.Bytes(joinPut(b)))
	if err != nil {
		return mapRPC(err)
	}
	id, err := cid.Decode(reply.GetValue())
	if err != nil || !id.Equals(b.CID) {
		return model.WrapError(model.KindCIDMismatch, storage.ErrCIDMismatch, "grpcstore: server stored %q", reply.GetValue()).WithCIDs(b.CID)
	}
	return nil
}

func (c *Client) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.Get(ctx, wrapperspb.String(cidutil.String(id)))
	if err != nil {
		return nil, mapRPC(err)
	}
	b := reply.GetValue()
	if err := cidutil.Verify(id, b); err != nil {
		return nil, storage.ErrCIDMismatch
	}
	return b, nil
}

func (c *Client) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, c.Timeout)
}
