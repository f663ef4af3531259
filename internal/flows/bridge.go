package flows

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/agentwallet-labs/gasless-cli/internal/allowance"
	clierr "github.com/agentwallet-labs/gasless-cli/internal/errors"
	"github.com/agentwallet-labs/gasless-cli/internal/id"
	"github.com/agentwallet-labs/gasless-cli/internal/model"
	"github.com/agentwallet-labs/gasless-cli/internal/providers"
	"github.com/agentwallet-labs/gasless-cli/internal/submit"
)

type BridgeParams struct {
	FromChain     id.Chain
	ToChain       id.Chain
	FromAsset     id.Asset
	ToAsset       id.Asset
	AmountDecimal string
	Recipient     string
	SlippageBps   int64
	ApproveMax    bool
	SkipNativeFee bool
	EstimateOnly  bool
}

type BridgeResult struct {
	Order     model.BridgeOrder `json:"order"`
	Approval  *allowance.Result `json:"approval,omitempty"`
	Operation string            `json:"operation,omitempty"`
	Submitted bool              `json:"submitted"`
	Note      string            `json:"note,omitempty"`
	Warnings  []string          `json:"warnings,omitempty"`
}

// Bridge creates a cross-chain order and executes it. When the order service
// withholds calldata pending an allowance, the flow approves the named
// target, waits for confirmation, and re-quotes exactly once.
func (o *Orchestrator) Bridge(ctx context.Context, params BridgeParams) (BridgeResult, error) {
	if o.Bridges == nil {
		return BridgeResult{}, clierr.New(clierr.CodeCapability, "no bridge service configured")
	}
	if err := id.ValidatePositiveDecimal(params.AmountDecimal); err != nil {
		return BridgeResult{}, err
	}

	decimals, err := o.assetDecimals(ctx, params.FromAsset)
	if err != nil {
		return BridgeResult{}, err
	}
	amount, err := id.DecimalToBase(params.AmountDecimal, decimals)
	if err != nil {
		return BridgeResult{}, err
	}

	var sender string
	if o.Account != nil {
		addr, err := o.Account.Address(ctx)
		if err != nil {
			return BridgeResult{}, err
		}
		sender = addr.Hex()
	}
	recipient := strings.TrimSpace(params.Recipient)
	if recipient == "" {
		recipient = sender
	}
	if recipient != "" && !common.IsHexAddress(recipient) {
		return BridgeResult{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid recipient address %q", recipient))
	}

	req := providers.BridgeRequest{
		FromChain:       params.FromChain,
		ToChain:         params.ToChain,
		FromAsset:       params.FromAsset,
		ToAsset:         params.ToAsset,
		AmountBaseUnits: amount.String(),
		AmountDecimal:   params.AmountDecimal,
		Sender:          sender,
		Recipient:       recipient,
		SlippageBps:     params.SlippageBps,
	}

	order, err := o.Bridges.CreateOrder(ctx, req)
	if err != nil {
		return BridgeResult{}, err
	}

	if params.EstimateOnly {
		return BridgeResult{Order: order, Note: "estimation only, nothing was submitted"}, nil
	}
	if err := o.requireAccount(); err != nil {
		return BridgeResult{}, err
	}

	result := BridgeResult{Order: order}

	if order.Tx == nil && order.AllowanceTarget != "" {
		if err := o.requireAllowances(); err != nil {
			return BridgeResult{}, err
		}
		required := amount
		if v, ok := new(big.Int).SetString(order.AllowanceValue, 10); ok && v.Sign() > 0 {
			required = v
		}
		o.Log.Info("bridge order needs allowance before calldata", "target", order.AllowanceTarget, "value", required.String())
		approval, err := o.Allowances.EnsureConfirmed(ctx, o.Account,
			common.HexToAddress(params.FromAsset.Address), common.HexToAddress(order.AllowanceTarget),
			required, true, o.Wait)
		if err != nil {
			return BridgeResult{}, err
		}
		result.Approval = &approval

		order, err = o.Bridges.CreateOrder(ctx, req)
		if err != nil {
			return BridgeResult{}, err
		}
		result.Order = order
		if order.Tx == nil {
			return BridgeResult{}, clierr.New(clierr.CodeQuoteIncomplete,
				"bridge service still returned no executable transaction after the approval confirmed; not retrying further")
		}
	}
	if order.Tx == nil {
		return BridgeResult{}, clierr.New(clierr.CodeQuoteIncomplete, "bridge service returned no executable transaction")
	}

	if !params.FromAsset.Native && result.Approval == nil {
		if err := o.requireAllowances(); err != nil {
			return BridgeResult{}, err
		}
		spender := firstNonEmptyAddr(order.AllowanceTarget, order.Tx.To)
		approval, err := o.Allowances.EnsureConfirmed(ctx, o.Account,
			common.HexToAddress(params.FromAsset.Address), common.HexToAddress(spender),
			amount, params.ApproveMax, o.Wait)
		if err != nil {
			return BridgeResult{}, err
		}
		if approval.Submitted || approval.Reason != "" {
			result.Approval = &approval
		}
	}

	txReq, err := txPayloadToRequest(order.Tx)
	if err != nil {
		return BridgeResult{}, err
	}
	if params.SkipNativeFee && txReq.Value.Sign() > 0 {
		o.Log.Warn("bridge native fee stripped on request", "fee_wei", txReq.Value.String())
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("native protocol fee of %s wei was stripped from the transaction; the order may be rejected on-chain", txReq.Value.String()))
		txReq.Value = big.NewInt(0)
	}

	submitted := o.Submitter.Submit(ctx, o.Account, txReq, submit.SubmitMeta{Kind: "bridge", ChainID: params.FromChain.CAIP2})
	if !submitted.Success {
		return BridgeResult{}, clierr.New(clierr.CodeChainRevert, fmt.Sprintf(
			"bridge submission failed: %s; check the input token balance, the native fee value, and that the allowance covers the amount",
			humanizeRevert(submitted.Err)))
	}

	result.Operation = string(submitted.Handle)
	result.Submitted = true
	return result, nil
}
