// Package allowance decides whether an ERC-20 approval is needed before a
// spend and submits it as a sponsored operation when it is.
package allowance

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/agentwallet-labs/gasless-cli/internal/account"
	clierr "github.com/agentwallet-labs/gasless-cli/internal/errors"
	"github.com/agentwallet-labs/gasless-cli/internal/id"
	"github.com/agentwallet-labs/gasless-cli/internal/registry"
	"github.com/agentwallet-labs/gasless-cli/internal/submit"
)

// MaxUint256 is the unlimited-approval amount, 2^256 - 1.
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

var erc20ABI = mustABI(registry.ERC20MinimalABI)

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Result reports what Ensure did. Exactly one of Skipped or Submitted is
// meaningful; a skipped result carries the reason.
type Result struct {
	Skipped   bool                    `json:"skipped"`
	Reason    string                  `json:"reason,omitempty"`
	Submitted bool                    `json:"submitted"`
	Handle    account.OperationHandle `json:"operation,omitempty"`
	Amount    string                  `json:"amount,omitempty"`
	Current   string                  `json:"current,omitempty"`
}

type Manager struct {
	reader    account.ChainReader
	submitter *submit.Submitter
	receipts  submit.ReceiptSource
	log       log.Logger
}

func NewManager(reader account.ChainReader, submitter *submit.Submitter, receipts submit.ReceiptSource, logger log.Logger) *Manager {
	if logger == nil {
		logger = log.Root()
	}
	return &Manager{reader: reader, submitter: submitter, receipts: receipts, log: logger}
}

// Ensure reads the current allowance and submits an approval when the
// requirement is not already covered. With approveMax the approval amount is
// MaxUint256 even when the current allowance covers the requirement; an
// existing allowance below the requirement is overwritten rather than topped
// up. Native assets never need approval.
func (m *Manager) Ensure(ctx context.Context, acct account.SmartAccount, token, spender common.Address, required *big.Int, approveMax bool) (Result, error) {
	if id.IsNativeAddress(token.Hex()) {
		return Result{Skipped: true, Reason: "native asset requires no approval"}, nil
	}
	if required == nil || required.Sign() < 0 {
		return Result{}, clierr.New(clierr.CodeUsage, "required allowance amount must be non-negative")
	}

	owner, err := acct.Address(ctx)
	if err != nil {
		return Result{}, err
	}
	current, err := m.reader.TokenAllowance(ctx, token, owner, spender)
	if err != nil {
		return Result{}, err
	}

	// approveMax upgrades a covering allowance to unlimited; only an
	// already-unlimited allowance skips in that mode.
	if approveMax {
		if current.Cmp(MaxUint256) == 0 {
			return Result{
				Skipped: true,
				Reason:  "existing allowance is already unlimited",
				Current: current.String(),
			}, nil
		}
	} else if current.Cmp(required) >= 0 {
		return Result{
			Skipped: true,
			Reason:  fmt.Sprintf("existing allowance %s covers required %s", current.String(), required.String()),
			Current: current.String(),
		}, nil
	}

	amount := new(big.Int).Set(required)
	if approveMax {
		amount = new(big.Int).Set(MaxUint256)
	}

	data, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return Result{}, clierr.Wrap(clierr.CodeInternal, "pack approve calldata", err)
	}

	m.log.Info("submitting approval", "token", token.Hex(), "spender", spender.Hex(), "amount", amount.String(), "current", current.String())
	result := m.submitter.Submit(ctx, acct, account.TransactionRequest{To: token, Data: data, Value: big.NewInt(0)},
		submit.SubmitMeta{Kind: "approval"})
	if !result.Success {
		return Result{}, clierr.New(clierr.CodeSponsorRejected, result.Err)
	}

	return Result{
		Submitted: true,
		Handle:    result.Handle,
		Amount:    amount.String(),
		Current:   current.String(),
	}, nil
}

// EnsureConfirmed behaves like Ensure and then blocks until any submitted
// approval is confirmed. Flows that immediately depend on the new allowance
// use this variant.
func (m *Manager) EnsureConfirmed(ctx context.Context, acct account.SmartAccount, token, spender common.Address, required *big.Int, approveMax bool, params submit.Params) (Result, error) {
	result, err := m.Ensure(ctx, acct, token, spender, required, approveMax)
	if err != nil || !result.Submitted {
		return result, err
	}

	status := submit.NewTracker(m.receipts, result.Handle, params, m.log).Wait(ctx)
	switch status.State {
	case submit.StateConfirmed:
		return result, nil
	case submit.StateFailed:
		return result, clierr.New(clierr.CodeChainRevert, fmt.Sprintf("approval failed: %s", status.Reason))
	default:
		return result, clierr.New(clierr.CodeTimeout, fmt.Sprintf("approval not confirmed in time: %s", status.Reason))
	}
}
