// Package flows composes the value-movement operations: transfer, swap,
// bridge, and disperse. Each flow reduces to sponsored transaction
// submissions through the account layer and reports structured results.
package flows

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/agentwallet-labs/gasless-cli/internal/account"
	"github.com/agentwallet-labs/gasless-cli/internal/allowance"
	clierr "github.com/agentwallet-labs/gasless-cli/internal/errors"
	"github.com/agentwallet-labs/gasless-cli/internal/id"
	"github.com/agentwallet-labs/gasless-cli/internal/providers"
	"github.com/agentwallet-labs/gasless-cli/internal/submit"
)

const defaultSlippageBps = 50

// Orchestrator owns the capabilities the flows need. Any field may be nil;
// each flow checks for the capabilities it requires and fails with a usage
// error rather than panicking.
type Orchestrator struct {
	Account     account.SmartAccount
	Reader      account.ChainReader
	Submitter   *submit.Submitter
	Allowances  *allowance.Manager
	Receipts    submit.ReceiptSource
	Swaps       providers.SwapQuoter
	Bridges     providers.BridgeQuoter
	Log         log.Logger
	SlippageBps int64
	Wait        submit.Params
}

func New(o Orchestrator) *Orchestrator {
	if o.Log == nil {
		o.Log = log.Root()
	}
	if o.SlippageBps <= 0 {
		o.SlippageBps = defaultSlippageBps
	}
	if o.Wait == (submit.Params{}) {
		o.Wait = submit.DefaultParams()
	}
	return &o
}

func (o *Orchestrator) requireAccount() error {
	if o.Account == nil || o.Submitter == nil {
		return clierr.New(clierr.CodeCapability, "no sponsored account configured; set sponsor.url and sponsor.api_key")
	}
	return nil
}

func (o *Orchestrator) requireAllowances() error {
	if o.Allowances == nil {
		return clierr.New(clierr.CodeCapability, "allowance management needs a chain RPC; set rpc_url or choose a known chain")
	}
	return nil
}

func (o *Orchestrator) requireReader() error {
	if o.Reader == nil {
		return clierr.New(clierr.CodeCapability, "no chain RPC configured; set rpc_url or choose a known chain")
	}
	return nil
}

// assetDecimals fills in token decimals for assets resolved from a raw
// address, where the registry had nothing to say.
func (o *Orchestrator) assetDecimals(ctx context.Context, asset id.Asset) (int, error) {
	if asset.Decimals > 0 {
		return asset.Decimals, nil
	}
	if asset.Native {
		return 18, nil
	}
	if err := o.requireReader(); err != nil {
		return 0, err
	}
	d, err := o.Reader.TokenDecimals(ctx, common.HexToAddress(asset.Address))
	if err != nil {
		return 0, err
	}
	return int(d), nil
}
