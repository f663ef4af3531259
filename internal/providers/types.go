package providers

import (
	"context"

	"github.com/agentwallet-labs/gasless-cli/internal/id"
	"github.com/agentwallet-labs/gasless-cli/internal/model"
)

// SwapQuoter returns same-chain swap quotes. A quote without an executable
// transaction payload is a valid estimation-only answer.
type SwapQuoter interface {
	QuoteSwap(ctx context.Context, req SwapRequest) (model.SwapQuote, error)
}

// BridgeQuoter creates cross-chain orders. When the service requires a
// preliminary approval it returns the allowance target and value instead of
// a transaction payload.
type BridgeQuoter interface {
	CreateOrder(ctx context.Context, req BridgeRequest) (model.BridgeOrder, error)
}

type SwapRequest struct {
	Chain           id.Chain
	FromAsset       id.Asset
	ToAsset         id.Asset
	AmountBaseUnits string
	AmountDecimal   string
	FromAddress     string
	SlippageBps     int64
}

type BridgeRequest struct {
	FromChain       id.Chain
	ToChain         id.Chain
	FromAsset       id.Asset
	ToAsset         id.Asset
	AmountBaseUnits string
	AmountDecimal   string
	Sender          string
	Recipient       string
	SlippageBps     int64
}
