package flows

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/agentwallet-labs/gasless-cli/internal/account"
	"github.com/agentwallet-labs/gasless-cli/internal/allowance"
	clierr "github.com/agentwallet-labs/gasless-cli/internal/errors"
	"github.com/agentwallet-labs/gasless-cli/internal/id"
	"github.com/agentwallet-labs/gasless-cli/internal/model"
	"github.com/agentwallet-labs/gasless-cli/internal/providers"
	"github.com/agentwallet-labs/gasless-cli/internal/submit"
)

type SwapParams struct {
	Chain         id.Chain
	FromAsset     id.Asset
	ToAsset       id.Asset
	AmountDecimal string
	SlippageBps   int64
	ApproveMax    bool
	EstimateOnly  bool
}

type SwapResult struct {
	Quote     model.SwapQuote   `json:"quote"`
	Approval  *allowance.Result `json:"approval,omitempty"`
	Operation string            `json:"operation,omitempty"`
	Submitted bool              `json:"submitted"`
	Note      string            `json:"note,omitempty"`
}

// Swap quotes and executes a same-chain swap. A quote without executable
// calldata is reported as an estimation, not an error; callers can pass
// EstimateOnly to stop there deliberately.
func (o *Orchestrator) Swap(ctx context.Context, params SwapParams) (SwapResult, error) {
	if o.Swaps == nil {
		return SwapResult{}, clierr.New(clierr.CodeCapability, "no swap service configured")
	}
	if err := id.ValidatePositiveDecimal(params.AmountDecimal); err != nil {
		return SwapResult{}, err
	}
	if params.FromAsset.AssetID == params.ToAsset.AssetID {
		return SwapResult{}, clierr.New(clierr.CodeUsage, "swap requires two distinct assets")
	}

	decimals, err := o.assetDecimals(ctx, params.FromAsset)
	if err != nil {
		return SwapResult{}, err
	}
	amount, err := id.DecimalToBase(params.AmountDecimal, decimals)
	if err != nil {
		return SwapResult{}, err
	}

	slippage := params.SlippageBps
	if slippage <= 0 {
		slippage = o.SlippageBps
	}

	var fromAddress string
	if o.Account != nil {
		addr, err := o.Account.Address(ctx)
		if err != nil {
			return SwapResult{}, err
		}
		fromAddress = addr.Hex()
	}

	quote, err := o.Swaps.QuoteSwap(ctx, providers.SwapRequest{
		Chain:           params.Chain,
		FromAsset:       params.FromAsset,
		ToAsset:         params.ToAsset,
		AmountBaseUnits: amount.String(),
		AmountDecimal:   params.AmountDecimal,
		FromAddress:     fromAddress,
		SlippageBps:     slippage,
	})
	if err != nil {
		return SwapResult{}, err
	}

	if params.EstimateOnly {
		return SwapResult{Quote: quote, Note: "estimation only, nothing was submitted"}, nil
	}
	if quote.Tx == nil {
		return SwapResult{Quote: quote, Note: "service returned an estimate without executable calldata; retry with a sender address to get a transaction"}, nil
	}
	if err := o.requireAccount(); err != nil {
		return SwapResult{}, err
	}

	result := SwapResult{Quote: quote}

	if !params.FromAsset.Native {
		if err := o.requireAllowances(); err != nil {
			return SwapResult{}, err
		}
		spender := firstNonEmptyAddr(quote.ApprovalAddress, quote.Tx.To)
		if spender == "" {
			return SwapResult{}, clierr.New(clierr.CodeUnavailable, "swap quote names no spender for the input token")
		}
		approval, err := o.Allowances.EnsureConfirmed(ctx, o.Account,
			common.HexToAddress(params.FromAsset.Address), common.HexToAddress(spender),
			amount, params.ApproveMax, o.Wait)
		if err != nil {
			return SwapResult{}, err
		}
		if approval.Submitted || approval.Reason != "" {
			result.Approval = &approval
		}
	}

	req, err := txPayloadToRequest(quote.Tx)
	if err != nil {
		return SwapResult{}, err
	}
	submitted := o.Submitter.Submit(ctx, o.Account, req, submit.SubmitMeta{Kind: "swap", ChainID: params.Chain.CAIP2})
	if !submitted.Success {
		msg := humanizeRevert(submitted.Err)
		if isAllowanceRevert(submitted.Err) {
			msg = fmt.Sprintf("%s; the router pulled more than the approved amount, retry with approve_max to grant an unlimited allowance", msg)
		}
		return SwapResult{}, clierr.New(clierr.CodeChainRevert, msg)
	}

	result.Operation = string(submitted.Handle)
	result.Submitted = true
	return result, nil
}

func txPayloadToRequest(tx *model.TxPayload) (account.TransactionRequest, error) {
	if tx == nil || !common.IsHexAddress(tx.To) {
		return account.TransactionRequest{}, clierr.New(clierr.CodeUnavailable, "quote transaction payload is incomplete")
	}
	data := common.FromHex(tx.Data)
	value := big.NewInt(0)
	if strings.TrimSpace(tx.Value) != "" {
		parsed, ok := new(big.Int).SetString(tx.Value, 10)
		if !ok {
			return account.TransactionRequest{}, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("invalid transaction value %q", tx.Value))
		}
		value = parsed
	}
	return account.TransactionRequest{To: common.HexToAddress(tx.To), Data: data, Value: value}, nil
}

func firstNonEmptyAddr(values ...string) string {
	for _, v := range values {
		if common.IsHexAddress(strings.TrimSpace(v)) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
