package actions

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/agentwallet-labs/gasless-cli/internal/account"
	"github.com/agentwallet-labs/gasless-cli/internal/allowance"
	clierr "github.com/agentwallet-labs/gasless-cli/internal/errors"
	"github.com/agentwallet-labs/gasless-cli/internal/flows"
	"github.com/agentwallet-labs/gasless-cli/internal/id"
	"github.com/agentwallet-labs/gasless-cli/internal/submit"
)

// RegisterBuiltin installs the full action catalog.
func RegisterBuiltin(r *Registry) error {
	for _, desc := range builtinActions() {
		if err := r.Register(desc); err != nil {
			return err
		}
	}
	return nil
}

func builtinActions() []Descriptor {
	return []Descriptor{
		{
			Name:        "get_address",
			Description: "Return the sponsored account address that holds and moves funds.",
			Schema:      `{"type":"object","properties":{},"additionalProperties":false}`,
			Requires:    RequireAccount,
			Handler:     handleGetAddress,
		},
		{
			Name:        "get_balances",
			Description: "List token balances held by the sponsored account on the active chain.",
			Schema:      `{"type":"object","properties":{"tokens":{"type":"array","items":{"type":"string"},"description":"Token symbols or addresses to query; defaults to well-known tokens on the active chain."}},"additionalProperties":false}`,
			Requires:    RequireAccount,
			Handler:     handleGetBalances,
		},
		{
			Name:        "check_allowance",
			Description: "Read the current ERC-20 allowance the account has granted to a spender.",
			Schema:      `{"type":"object","required":["token","spender"],"properties":{"token":{"type":"string"},"spender":{"type":"string"},"chain":{"type":"string"}},"additionalProperties":false}`,
			Requires:    RequireAccount | RequireReader,
			Handler:     handleCheckAllowance,
		},
		{
			Name:        "approve_token",
			Description: "Grant or raise an ERC-20 allowance for a spender through a sponsored approval.",
			Schema:      `{"type":"object","required":["token","spender"],"properties":{"token":{"type":"string"},"spender":{"type":"string"},"amount":{"type":"string","description":"Decimal amount to approve. Omit with approve_max for an unlimited allowance."},"approve_max":{"type":"boolean"},"chain":{"type":"string"}},"additionalProperties":false}`,
			Requires:    RequireAccount | RequireReader,
			Handler:     handleApproveToken,
		},
		{
			Name:        "transfer",
			Description: "Send a native or ERC-20 amount to a recipient, gas paid by the sponsor.",
			Schema:      `{"type":"object","required":["token","recipient","amount"],"properties":{"token":{"type":"string"},"recipient":{"type":"string"},"amount":{"type":"string"},"chain":{"type":"string"}},"additionalProperties":false}`,
			Requires:    RequireAccount,
			Handler:     handleTransfer,
		},
		{
			Name:        "smart_swap",
			Description: "Swap one token for another on the same chain, handling the allowance automatically.",
			Schema:      `{"type":"object","required":["from_token","to_token","amount"],"properties":{"from_token":{"type":"string"},"to_token":{"type":"string"},"amount":{"type":"string"},"slippage_bps":{"type":"integer","minimum":1,"maximum":9999},"approve_max":{"type":"boolean"},"estimate_only":{"type":"boolean"},"chain":{"type":"string"}},"additionalProperties":false}`,
			Requires:    RequireAccount,
			Handler:     handleSmartSwap,
		},
		{
			Name:        "smart_bridge",
			Description: "Move a token to another chain, handling approval and re-quoting automatically.",
			Schema:      `{"type":"object","required":["from_chain","to_chain","from_token","to_token","amount"],"properties":{"from_chain":{"type":"string"},"to_chain":{"type":"string"},"from_token":{"type":"string"},"to_token":{"type":"string"},"amount":{"type":"string"},"recipient":{"type":"string"},"approve_max":{"type":"boolean"},"skip_native_fee":{"type":"boolean"},"estimate_only":{"type":"boolean"}},"additionalProperties":false}`,
			Requires:    RequireAccount,
			Handler:     handleSmartBridge,
		},
		{
			Name:        "disperse",
			Description: "Send one token to many recipients in a batch of sponsored transfers.",
			Schema:      `{"type":"object","required":["token","recipients"],"properties":{"token":{"type":"string"},"recipients":{"type":"array","minItems":1,"items":{"type":"object","required":["address","amount"],"properties":{"address":{"type":"string"},"amount":{"type":"string"}},"additionalProperties":false}},"chain":{"type":"string"}},"additionalProperties":false}`,
			Requires:    RequireAccount,
			Handler:     handleDisperse,
		},
		{
			Name:        "get_operation_status",
			Description: "Check once whether a submitted operation has confirmed, failed, or is still pending.",
			Schema:      `{"type":"object","required":["operation"],"properties":{"operation":{"type":"string"}},"additionalProperties":false}`,
			Requires:    RequireBundler,
			Handler:     handleOperationStatus,
		},
		{
			Name:        "wait_operation",
			Description: "Wait for a submitted operation to reach a confirmation depth, within a time budget.",
			Schema:      `{"type":"object","required":["operation"],"properties":{"operation":{"type":"string"},"confirmations":{"type":"integer","minimum":1},"max_duration_s":{"type":"integer","minimum":1},"interval_s":{"type":"integer","minimum":1}},"additionalProperties":false}`,
			Requires:    RequireBundler,
			Handler:     handleWaitOperation,
		},
	}
}

func strArg(args map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := args[k]; ok {
			if s, ok := v.(string); ok {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func boolArg(args map[string]any, key string) bool {
	v, ok := args[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

func intArg(args map[string]any, key string) (int64, bool) {
	switch n := args[key].(type) {
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}

func resolveChain(env Env, args map[string]any, keys ...string) (id.Chain, error) {
	if len(keys) == 0 {
		keys = []string{"chain"}
	}
	if raw := strArg(args, keys...); raw != "" {
		return id.ParseChain(raw)
	}
	if env.Chain.CAIP2 == "" {
		return id.Chain{}, clierr.New(clierr.CodeUsage, "no chain selected; pass a chain argument or configure a default chain")
	}
	return env.Chain, nil
}

func resolveAsset(env Env, chain id.Chain, raw string) (id.Asset, error) {
	if raw == "" {
		return id.Asset{}, clierr.New(clierr.CodeUsage, "token is required")
	}
	return id.ParseAsset(raw, chain)
}

func assetDisplayDecimals(ctx context.Context, env Env, asset id.Asset) int {
	if asset.Decimals > 0 {
		return asset.Decimals
	}
	if asset.Native {
		return 18
	}
	if env.Reader != nil {
		if d, err := env.Reader.TokenDecimals(ctx, common.HexToAddress(asset.Address)); err == nil {
			return int(d)
		}
	}
	return 18
}

func handleGetAddress(ctx context.Context, env Env, args map[string]any) (string, error) {
	addr, err := env.Account.Address(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("The sponsored account address is %s. Funds sent here are controlled by this session.", addr.Hex()), nil
}

func handleGetBalances(ctx context.Context, env Env, args map[string]any) (string, error) {
	chain, err := resolveChain(env, args)
	if err != nil {
		return "", err
	}

	var symbols []string
	if raw, ok := args["tokens"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				symbols = append(symbols, strings.TrimSpace(s))
			}
		}
	}
	if len(symbols) == 0 {
		symbols = []string{chain.NativeSym, "USDC", "USDT", "DAI", "WETH"}
	}

	var tokens []common.Address
	labels := map[common.Address]string{}
	for _, sym := range symbols {
		asset, err := id.ParseAsset(sym, chain)
		if err != nil {
			continue
		}
		addr := common.HexToAddress(asset.Address)
		tokens = append(tokens, addr)
		labels[addr] = asset.Symbol
	}

	balances, err := env.Account.Balances(ctx, tokens)
	if err != nil {
		return "", err
	}
	if len(balances) == 0 {
		return fmt.Sprintf("The account holds none of the queried tokens on %s.", chain.Name), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Balances on %s:", chain.Name)
	for _, bal := range balances {
		symbol := bal.Symbol
		if symbol == "" {
			symbol = labels[bal.Token]
		}
		fmt.Fprintf(&b, "\n- %s %s (%s)", bal.AmountDecimal, symbol, bal.Token.Hex())
	}
	return b.String(), nil
}

func handleCheckAllowance(ctx context.Context, env Env, args map[string]any) (string, error) {
	chain, err := resolveChain(env, args)
	if err != nil {
		return "", err
	}
	asset, err := resolveAsset(env, chain, strArg(args, "token"))
	if err != nil {
		return "", err
	}
	if asset.Native {
		return fmt.Sprintf("%s is the native asset on %s and never needs an allowance.", asset.Symbol, chain.Name), nil
	}
	spender := strArg(args, "spender")
	if !common.IsHexAddress(spender) {
		return "", clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid spender address %q", spender))
	}
	owner, err := env.Account.Address(ctx)
	if err != nil {
		return "", err
	}
	current, err := env.Reader.TokenAllowance(ctx, common.HexToAddress(asset.Address), owner, common.HexToAddress(spender))
	if err != nil {
		return "", err
	}
	if current.Cmp(allowance.MaxUint256) == 0 {
		return fmt.Sprintf("The account has granted %s an unlimited %s allowance.", spender, asset.Symbol), nil
	}
	if current.Sign() == 0 {
		return fmt.Sprintf("The account has granted %s no %s allowance.", spender, asset.Symbol), nil
	}
	decimals := assetDisplayDecimals(ctx, env, asset)
	return fmt.Sprintf("The account has granted %s an allowance of %s %s.",
		spender, id.FormatDecimalCompat(current.String(), decimals), asset.Symbol), nil
}

func handleApproveToken(ctx context.Context, env Env, args map[string]any) (string, error) {
	if env.Allowances == nil {
		return "", clierr.New(clierr.CodeCapability, "Allowance management needs chain access. Set rpc_url in the config file or export GASLESS_RPC_URL, then try again.")
	}
	chain, err := resolveChain(env, args)
	if err != nil {
		return "", err
	}
	asset, err := resolveAsset(env, chain, strArg(args, "token"))
	if err != nil {
		return "", err
	}
	spender := strArg(args, "spender")
	if !common.IsHexAddress(spender) {
		return "", clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid spender address %q", spender))
	}
	approveMax := boolArg(args, "approve_max")

	var required *big.Int
	if raw := strArg(args, "amount"); raw != "" {
		decimals := assetDisplayDecimals(ctx, env, asset)
		required, err = id.DecimalToBase(raw, decimals)
		if err != nil {
			return "", err
		}
	} else if approveMax {
		// With no amount, an unlimited approval is requested outright and
		// only an already-unlimited allowance skips it.
		required = new(big.Int).Set(allowance.MaxUint256)
	} else {
		return "", clierr.New(clierr.CodeUsage, "amount is required unless approve_max is set")
	}

	result, err := env.Allowances.Ensure(ctx, env.Account, common.HexToAddress(asset.Address), common.HexToAddress(spender), required, approveMax)
	if err != nil {
		return "", err
	}
	if result.Skipped {
		return fmt.Sprintf("No approval was needed: %s.", result.Reason), nil
	}
	amountText := "an unlimited amount"
	if result.Amount != allowance.MaxUint256.String() {
		decimals := assetDisplayDecimals(ctx, env, asset)
		amountText = fmt.Sprintf("%s %s", id.FormatDecimalCompat(result.Amount, decimals), asset.Symbol)
	}
	return fmt.Sprintf("Approval submitted as operation %s, allowing %s to spend %s. Track it with get_operation_status.",
		result.Handle, spender, amountText), nil
}

func handleTransfer(ctx context.Context, env Env, args map[string]any) (string, error) {
	chain, err := resolveChain(env, args)
	if err != nil {
		return "", err
	}
	asset, err := resolveAsset(env, chain, strArg(args, "token"))
	if err != nil {
		return "", err
	}
	res, err := env.Flows.Transfer(ctx, flows.TransferParams{
		Chain:         chain,
		Asset:         asset,
		Recipient:     strArg(args, "recipient", "to"),
		AmountDecimal: strArg(args, "amount"),
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Transfer submitted as operation %s, sending %s %s to %s on %s with gas sponsored. Track it with get_operation_status.",
		res.Operation, res.Amount.AmountDecimal, asset.Symbol, res.Recipient, chain.Name), nil
}

func handleSmartSwap(ctx context.Context, env Env, args map[string]any) (string, error) {
	chain, err := resolveChain(env, args)
	if err != nil {
		return "", err
	}
	fromAsset, err := resolveAsset(env, chain, strArg(args, "from_token", "from"))
	if err != nil {
		return "", err
	}
	toAsset, err := resolveAsset(env, chain, strArg(args, "to_token", "to"))
	if err != nil {
		return "", err
	}
	slippage, _ := intArg(args, "slippage_bps")

	res, err := env.Flows.Swap(ctx, flows.SwapParams{
		Chain:         chain,
		FromAsset:     fromAsset,
		ToAsset:       toAsset,
		AmountDecimal: strArg(args, "amount"),
		SlippageBps:   slippage,
		ApproveMax:    boolArg(args, "approve_max"),
		EstimateOnly:  boolArg(args, "estimate_only"),
	})
	if err != nil {
		return "", err
	}
	if !res.Submitted {
		msg := fmt.Sprintf("Swapping %s %s would yield about %s %s on %s",
			strArg(args, "amount"), fromAsset.Symbol, res.Quote.EstimatedOut.AmountDecimal, toAsset.Symbol, chain.Name)
		if res.Quote.MinOut != "" {
			msg += fmt.Sprintf(", with a minimum of %s %s after slippage",
				id.FormatDecimalCompat(res.Quote.MinOut, res.Quote.EstimatedOut.Decimals), toAsset.Symbol)
		}
		if res.Quote.RecommendedSlippageBps > 0 {
			msg += fmt.Sprintf(" (recommended slippage %d bps)", res.Quote.RecommendedSlippageBps)
		}
		return msg + fmt.Sprintf(" (%s). Nothing was submitted.", res.Note), nil
	}
	msg := fmt.Sprintf("Swap submitted as operation %s, trading %s %s for an estimated %s %s on %s.",
		res.Operation, strArg(args, "amount"), fromAsset.Symbol, res.Quote.EstimatedOut.AmountDecimal, toAsset.Symbol, chain.Name)
	if res.Approval != nil && res.Approval.Submitted {
		msg += fmt.Sprintf(" An approval was confirmed first as operation %s.", res.Approval.Handle)
	}
	return msg + " Track it with get_operation_status.", nil
}

func handleSmartBridge(ctx context.Context, env Env, args map[string]any) (string, error) {
	fromChain, err := resolveChain(env, args, "from_chain")
	if err != nil {
		return "", err
	}
	toChain, err := id.ParseChain(strArg(args, "to_chain"))
	if err != nil {
		return "", err
	}
	fromAsset, err := resolveAsset(env, fromChain, strArg(args, "from_token", "from"))
	if err != nil {
		return "", err
	}
	toAsset, err := resolveAsset(env, toChain, strArg(args, "to_token", "to"))
	if err != nil {
		return "", err
	}

	res, err := env.Flows.Bridge(ctx, flows.BridgeParams{
		FromChain:     fromChain,
		ToChain:       toChain,
		FromAsset:     fromAsset,
		ToAsset:       toAsset,
		AmountDecimal: strArg(args, "amount"),
		Recipient:     strArg(args, "recipient"),
		ApproveMax:    boolArg(args, "approve_max"),
		SkipNativeFee: boolArg(args, "skip_native_fee"),
		EstimateOnly:  boolArg(args, "estimate_only"),
	})
	if err != nil {
		return "", err
	}
	if !res.Submitted {
		return fmt.Sprintf("Bridging %s %s from %s to %s would deliver about %s %s (%s). Nothing was submitted.",
			strArg(args, "amount"), fromAsset.Symbol, fromChain.Name, toChain.Name,
			res.Order.EstimatedOut.AmountDecimal, toAsset.Symbol, res.Note), nil
	}
	msg := fmt.Sprintf("Bridge submitted as operation %s, moving %s %s from %s to %s for an estimated %s %s.",
		res.Operation, strArg(args, "amount"), fromAsset.Symbol, fromChain.Name, toChain.Name,
		res.Order.EstimatedOut.AmountDecimal, toAsset.Symbol)
	if res.Approval != nil && res.Approval.Submitted {
		msg += fmt.Sprintf(" An approval was confirmed first as operation %s.", res.Approval.Handle)
	}
	for _, w := range res.Warnings {
		msg += " Warning: " + w + "."
	}
	return msg + " Track it with get_operation_status.", nil
}

func handleDisperse(ctx context.Context, env Env, args map[string]any) (string, error) {
	chain, err := resolveChain(env, args)
	if err != nil {
		return "", err
	}
	asset, err := resolveAsset(env, chain, strArg(args, "token"))
	if err != nil {
		return "", err
	}

	raw, ok := args["recipients"].([]any)
	if !ok || len(raw) == 0 {
		return "", clierr.New(clierr.CodeUsage, "recipients must be a non-empty array of {address, amount} objects")
	}
	recipients := make([]flows.DisperseRecipient, 0, len(raw))
	for _, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			return "", clierr.New(clierr.CodeUsage, "recipients must be a non-empty array of {address, amount} objects")
		}
		recipients = append(recipients, flows.DisperseRecipient{
			Address:       strArg(entry, "address"),
			AmountDecimal: strArg(entry, "amount"),
		})
	}

	res, err := env.Flows.Disperse(ctx, flows.DisperseParams{Chain: chain, Asset: asset, Recipients: recipients})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Dispersed %s to %d of %d recipients on %s.", asset.Symbol, res.Submitted, res.Requested, chain.Name)
	for _, item := range res.Items {
		if item.Success {
			fmt.Fprintf(&b, "\n- %s %s to %s: operation %s", item.Amount, asset.Symbol, item.Recipient, item.Operation)
		} else {
			fmt.Fprintf(&b, "\n- %s %s to %s: failed (%s)", item.Amount, asset.Symbol, item.Recipient, item.Error)
		}
	}
	if res.Failed > 0 {
		fmt.Fprintf(&b, "\n%d transfers failed and can be retried individually.", res.Failed)
	}
	return b.String(), nil
}

func handleOperationStatus(ctx context.Context, env Env, args map[string]any) (string, error) {
	handle := strArg(args, "operation")
	if handle == "" {
		return "", clierr.New(clierr.CodeUsage, "operation handle is required")
	}
	tracker := submit.NewTracker(env.Receipts, account.OperationHandle(handle), submit.DefaultParams(), env.logger())
	status, _ := tracker.Poll(ctx)
	recordStatus(env, handle, status)
	return describeStatus(handle, status), nil
}

func handleWaitOperation(ctx context.Context, env Env, args map[string]any) (string, error) {
	handle := strArg(args, "operation")
	if handle == "" {
		return "", clierr.New(clierr.CodeUsage, "operation handle is required")
	}
	params := submit.DefaultParams()
	if n, ok := intArg(args, "confirmations"); ok && n > 0 {
		params.Confirmations = int(n)
	}
	if n, ok := intArg(args, "max_duration_s"); ok && n > 0 {
		params.MaxDuration = time.Duration(n) * time.Second
	}
	if n, ok := intArg(args, "interval_s"); ok && n > 0 {
		params.Interval = time.Duration(n) * time.Second
	}

	status := submit.NewTracker(env.Receipts, account.OperationHandle(handle), params, env.logger()).Wait(ctx)
	recordStatus(env, handle, status)
	return describeStatus(handle, status), nil
}

func recordStatus(env Env, handle string, status submit.Status) {
	if env.Journal == nil || status.State == submit.StatePending {
		return
	}
	if err := env.Journal.UpdateStatus(handle, status); err != nil {
		env.logger().Warn("journal status update failed", "operation", handle, "err", err)
	}
}

func describeStatus(handle string, status submit.Status) string {
	switch status.State {
	case submit.StateConfirmed:
		return fmt.Sprintf("Operation %s is confirmed with %d confirmations in block %d (transaction %s).",
			handle, status.Confirmations, status.BlockNumber, status.TransactionHash)
	case submit.StateFailed:
		return fmt.Sprintf("Operation %s failed: %s.", handle, status.Reason)
	default:
		return fmt.Sprintf("Operation %s is still pending (%s). It may still confirm; check again later with the same handle.",
			handle, status.Reason)
	}
}
