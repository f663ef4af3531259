package flows

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/agentwallet-labs/gasless-cli/internal/account"
	clierr "github.com/agentwallet-labs/gasless-cli/internal/errors"
	"github.com/agentwallet-labs/gasless-cli/internal/id"
	"github.com/agentwallet-labs/gasless-cli/internal/model"
	"github.com/agentwallet-labs/gasless-cli/internal/registry"
	"github.com/agentwallet-labs/gasless-cli/internal/submit"
)

var erc20ABI = mustABI(registry.ERC20MinimalABI)

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

type TransferParams struct {
	Chain         id.Chain
	Asset         id.Asset
	Recipient     string
	AmountDecimal string
}

type TransferResult struct {
	Operation string           `json:"operation"`
	ChainID   string           `json:"chain_id"`
	AssetID   string           `json:"asset_id"`
	Recipient string           `json:"recipient"`
	Amount    model.AmountInfo `json:"amount"`
}

// Transfer submits a sponsored transfer of a native or ERC-20 asset. Native
// transfers carry value directly; token transfers call the token contract.
func (o *Orchestrator) Transfer(ctx context.Context, params TransferParams) (TransferResult, error) {
	if err := o.requireAccount(); err != nil {
		return TransferResult{}, err
	}
	if !common.IsHexAddress(params.Recipient) {
		return TransferResult{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid recipient address %q", params.Recipient))
	}
	if err := id.ValidatePositiveDecimal(params.AmountDecimal); err != nil {
		return TransferResult{}, err
	}

	decimals, err := o.assetDecimals(ctx, params.Asset)
	if err != nil {
		return TransferResult{}, err
	}
	amount, err := id.DecimalToBase(params.AmountDecimal, decimals)
	if err != nil {
		return TransferResult{}, err
	}

	recipient := common.HexToAddress(params.Recipient)
	var req account.TransactionRequest
	if params.Asset.Native {
		req = account.TransactionRequest{To: recipient, Value: amount}
	} else {
		data, err := erc20ABI.Pack("transfer", recipient, amount)
		if err != nil {
			return TransferResult{}, clierr.Wrap(clierr.CodeInternal, "pack transfer calldata", err)
		}
		req = account.TransactionRequest{To: common.HexToAddress(params.Asset.Address), Data: data}
	}

	result := o.Submitter.Submit(ctx, o.Account, req, submit.SubmitMeta{Kind: "transfer", ChainID: params.Chain.CAIP2})
	if !result.Success {
		return TransferResult{}, clierr.New(clierr.CodeSponsorRejected, result.Err)
	}

	return TransferResult{
		Operation: string(result.Handle),
		ChainID:   params.Chain.CAIP2,
		AssetID:   params.Asset.AssetID,
		Recipient: recipient.Hex(),
		Amount: model.AmountInfo{
			AmountBaseUnits: amount.String(),
			AmountDecimal:   params.AmountDecimal,
			Decimals:        decimals,
		},
	}, nil
}
