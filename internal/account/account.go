// Package account abstracts the smart-contract account a session operates
// through and the read-only chain access commands use for lookups. The CLI
// never holds a signing key; submission goes through a sponsor relay that
// wraps calls in paymaster-funded user operations.
package account

import (
	"context"
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// OperationHandle identifies a submitted user operation. It is the hash the
// bundler tracks, not an L1 transaction hash.
type OperationHandle string

// TransactionRequest is the single call shape every flow reduces to:
// a target, calldata, and a native value. Gas fields are absent on purpose;
// the sponsor prices and funds execution.
type TransactionRequest struct {
	To    common.Address
	Data  []byte
	Value *big.Int
}

type Balance struct {
	Token         common.Address
	Symbol        string
	AmountDecimal string
}

// SmartAccount is the value-holding capability. Implementations submit
// sponsored operations and answer account-scoped queries.
type SmartAccount interface {
	Address(ctx context.Context) (common.Address, error)
	SendTransaction(ctx context.Context, req TransactionRequest) (OperationHandle, error)
	Balances(ctx context.Context, tokens []common.Address) ([]Balance, error)
	SignTypedData(ctx context.Context, typedData json.RawMessage) ([]byte, error)
}

// ChainReader is the non-mutating capability handed to read-only actions.
type ChainReader interface {
	TokenDecimals(ctx context.Context, token common.Address) (uint8, error)
	TokenAllowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	TokenBalance(ctx context.Context, token, holder common.Address) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
}
