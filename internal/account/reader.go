package account

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	clierr "github.com/agentwallet-labs/gasless-cli/internal/errors"
	"github.com/agentwallet-labs/gasless-cli/internal/registry"
)

var erc20ABI = mustABI(registry.ERC20MinimalABI)

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// ContractCaller is the slice of ethclient the reader needs. Tests substitute
// an in-memory implementation.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Reader answers token queries over a JSON-RPC endpoint.
type Reader struct {
	caller ContractCaller
}

func NewReader(caller ContractCaller) *Reader {
	return &Reader{caller: caller}
}

// Dial connects a Reader to an HTTP RPC endpoint. The connection is lazy;
// errors surface on first call.
func Dial(ctx context.Context, rpcURL string) (*Reader, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "connect chain rpc", err)
	}
	return NewReader(client), nil
}

func (r *Reader) TokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	out, err := r.call(ctx, token, "decimals")
	if err != nil {
		return 0, err
	}
	decimals, ok := out[0].(uint8)
	if !ok {
		return 0, clierr.New(clierr.CodeUnavailable, "invalid decimals response type")
	}
	return decimals, nil
}

func (r *Reader) TokenAllowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	out, err := r.call(ctx, token, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	allowance, ok := out[0].(*big.Int)
	if !ok {
		return nil, clierr.New(clierr.CodeUnavailable, "invalid allowance response type")
	}
	return allowance, nil
}

func (r *Reader) TokenBalance(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	out, err := r.call(ctx, token, "balanceOf", holder)
	if err != nil {
		return nil, err
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, clierr.New(clierr.CodeUnavailable, "invalid balance response type")
	}
	return balance, nil
}

func (r *Reader) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := r.caller.BlockNumber(ctx)
	if err != nil {
		return 0, clierr.Wrap(clierr.CodeUnavailable, "read block number", err)
	}
	return n, nil
}

func (r *Reader) call(ctx context.Context, token common.Address, method string, args ...any) ([]any, error) {
	data, err := erc20ABI.Pack(method, args...)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack "+method+" call", err)
	}
	raw, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "read "+method, err)
	}
	out, err := erc20ABI.Unpack(method, raw)
	if err != nil || len(out) == 0 {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "decode "+method, err)
	}
	return out, nil
}
