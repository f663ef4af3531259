package submit

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/agentwallet-labs/gasless-cli/internal/account"
	clierr "github.com/agentwallet-labs/gasless-cli/internal/errors"
)

// Bundler reads user-operation receipts over ERC-4337 bundler JSON-RPC.
type Bundler struct {
	client *rpc.Client
}

func DialBundler(ctx context.Context, url string) (*Bundler, error) {
	if strings.TrimSpace(url) == "" {
		return nil, clierr.New(clierr.CodeUsage, "bundler url is required")
	}
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "connect bundler rpc", err)
	}
	return &Bundler{client: client}, nil
}

func NewBundler(client *rpc.Client) *Bundler {
	return &Bundler{client: client}
}

func (b *Bundler) Close() {
	if b != nil && b.client != nil {
		b.client.Close()
	}
}

type userOpReceipt struct {
	Success bool `json:"success"`
	Receipt struct {
		BlockNumber     hexutil.Uint64 `json:"blockNumber"`
		TransactionHash string         `json:"transactionHash"`
	} `json:"receipt"`
}

// OperationReceipt returns (nil, nil) while the bundler has no receipt yet.
func (b *Bundler) OperationReceipt(ctx context.Context, handle account.OperationHandle) (*OperationReceipt, error) {
	var raw *userOpReceipt
	if err := b.client.CallContext(ctx, &raw, "eth_getUserOperationReceipt", string(handle)); err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "read user operation receipt", err)
	}
	if raw == nil {
		return nil, nil
	}
	return &OperationReceipt{
		Success:         raw.Success,
		BlockNumber:     uint64(raw.Receipt.BlockNumber),
		TransactionHash: raw.Receipt.TransactionHash,
	}, nil
}

func (b *Bundler) HeadBlockNumber(ctx context.Context) (uint64, error) {
	var head hexutil.Uint64
	if err := b.client.CallContext(ctx, &head, "eth_blockNumber"); err != nil {
		return 0, clierr.Wrap(clierr.CodeUnavailable, "read head block number", err)
	}
	return uint64(head), nil
}
