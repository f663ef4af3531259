package flows

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/agentwallet-labs/gasless-cli/internal/account"
	clierr "github.com/agentwallet-labs/gasless-cli/internal/errors"
	"github.com/agentwallet-labs/gasless-cli/internal/id"
	"github.com/agentwallet-labs/gasless-cli/internal/submit"
)

type DisperseRecipient struct {
	Address       string `json:"address"`
	AmountDecimal string `json:"amount"`
}

type DisperseParams struct {
	Chain      id.Chain
	Asset      id.Asset
	Recipients []DisperseRecipient
}

type DisperseItem struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
	Operation string `json:"operation,omitempty"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

type DisperseResult struct {
	ChainID   string         `json:"chain_id"`
	AssetID   string         `json:"asset_id"`
	Items     []DisperseItem `json:"items"`
	Requested int            `json:"requested"`
	Submitted int            `json:"submitted"`
	Failed    int            `json:"failed"`
	Total     string         `json:"total_base_units"`
}

// Disperse sends one sponsored transfer per recipient. Every recipient and
// amount is validated before the first submission; a bad entry aborts the
// whole batch with nothing sent. Submissions after that point are
// independent, and one failure does not stop the rest.
func (o *Orchestrator) Disperse(ctx context.Context, params DisperseParams) (DisperseResult, error) {
	if err := o.requireAccount(); err != nil {
		return DisperseResult{}, err
	}
	if len(params.Recipients) == 0 {
		return DisperseResult{}, clierr.New(clierr.CodeUsage, "disperse requires at least one recipient")
	}

	decimals, err := o.assetDecimals(ctx, params.Asset)
	if err != nil {
		return DisperseResult{}, err
	}

	amounts := make([]*big.Int, len(params.Recipients))
	total := new(big.Int)
	for i, r := range params.Recipients {
		if !common.IsHexAddress(r.Address) {
			return DisperseResult{}, clierr.New(clierr.CodeUsage,
				fmt.Sprintf("recipient %d has invalid address %q; nothing was sent", i+1, r.Address))
		}
		if err := id.ValidatePositiveDecimal(r.AmountDecimal); err != nil {
			return DisperseResult{}, clierr.New(clierr.CodeUsage,
				fmt.Sprintf("recipient %d has invalid amount %q; nothing was sent", i+1, r.AmountDecimal))
		}
		amount, err := id.DecimalToBase(r.AmountDecimal, decimals)
		if err != nil {
			return DisperseResult{}, clierr.New(clierr.CodeUsage,
				fmt.Sprintf("recipient %d has invalid amount %q; nothing was sent", i+1, r.AmountDecimal))
		}
		amounts[i] = amount
		total.Add(total, amount)
	}

	result := DisperseResult{
		ChainID:   params.Chain.CAIP2,
		AssetID:   params.Asset.AssetID,
		Requested: len(params.Recipients),
		Total:     total.String(),
	}

	for i, r := range params.Recipients {
		recipient := common.HexToAddress(r.Address)
		var req account.TransactionRequest
		if params.Asset.Native {
			req = account.TransactionRequest{To: recipient, Value: amounts[i]}
		} else {
			data, err := erc20ABI.Pack("transfer", recipient, amounts[i])
			if err != nil {
				return result, clierr.Wrap(clierr.CodeInternal, "pack transfer calldata", err)
			}
			req = account.TransactionRequest{To: common.HexToAddress(params.Asset.Address), Data: data}
		}

		item := DisperseItem{Recipient: recipient.Hex(), Amount: r.AmountDecimal}
		submitted := o.Submitter.Submit(ctx, o.Account, req, submit.SubmitMeta{Kind: "disperse", ChainID: params.Chain.CAIP2})
		if submitted.Success {
			item.Success = true
			item.Operation = string(submitted.Handle)
			result.Submitted++
		} else {
			item.Error = humanizeRevert(submitted.Err)
			result.Failed++
			o.Log.Warn("disperse item failed", "recipient", item.Recipient, "err", submitted.Err)
		}
		result.Items = append(result.Items, item)
	}
	return result, nil
}
