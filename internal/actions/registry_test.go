package actions

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/agentwallet-labs/gasless-cli/internal/account"
	clierr "github.com/agentwallet-labs/gasless-cli/internal/errors"
	"github.com/agentwallet-labs/gasless-cli/internal/flows"
	"github.com/agentwallet-labs/gasless-cli/internal/id"
	"github.com/agentwallet-labs/gasless-cli/internal/model"
	"github.com/agentwallet-labs/gasless-cli/internal/providers"
)

type fakeAccount struct{}

func (fakeAccount) Address(ctx context.Context) (common.Address, error) {
	return common.HexToAddress("0x1111111111111111111111111111111111111111"), nil
}

func (fakeAccount) SendTransaction(ctx context.Context, req account.TransactionRequest) (account.OperationHandle, error) {
	return "0xop1", nil
}

func (fakeAccount) Balances(ctx context.Context, tokens []common.Address) ([]account.Balance, error) {
	return []account.Balance{
		{Token: tokens[0], Symbol: "USDC", AmountDecimal: "12.5"},
	}, nil
}

func (fakeAccount) SignTypedData(ctx context.Context, typedData json.RawMessage) ([]byte, error) {
	return nil, errors.New("not supported")
}

type fakeReader struct{}

func (fakeReader) TokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	return 6, nil
}

func (fakeReader) TokenAllowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	return big.NewInt(5_000_000), nil
}

func (fakeReader) TokenBalance(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (fakeReader) BlockNumber(ctx context.Context) (uint64, error) {
	return 1, nil
}

func testEnv(t *testing.T) Env {
	t.Helper()
	chain, err := id.ParseChain("base")
	if err != nil {
		t.Fatalf("parse chain: %v", err)
	}
	return Env{Account: fakeAccount{}, Reader: fakeReader{}, Chain: chain}
}

func builtinRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	if err := RegisterBuiltin(r); err != nil {
		t.Fatalf("register builtin actions: %v", err)
	}
	return r
}

func TestBuiltinCatalogCompiles(t *testing.T) {
	r := builtinRegistry(t)
	list := r.List()
	if len(list) < 10 {
		t.Fatalf("expected the full catalog, got %d actions", len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i-1].Name >= list[i].Name {
			t.Fatalf("catalog must be sorted: %s before %s", list[i-1].Name, list[i].Name)
		}
	}
	for _, d := range list {
		if d.Description == "" || d.Schema == "" {
			t.Fatalf("action %s is missing description or schema", d.Name)
		}
	}
}

func TestDispatchUnknownActionErrors(t *testing.T) {
	r := builtinRegistry(t)
	_, err := r.Dispatch(context.Background(), testEnv(t), "mint_money", nil)
	var cerr *clierr.Error
	if !errors.As(err, &cerr) || cerr.Code != clierr.CodeUsage {
		t.Fatalf("expected usage error for unknown action, got %v", err)
	}
}

func TestDispatchMissingAccountAnswersWithHint(t *testing.T) {
	r := builtinRegistry(t)
	env := testEnv(t)
	env.Account = nil

	result, err := r.Dispatch(context.Background(), env, "get_address", nil)
	if err != nil {
		t.Fatalf("missing capability must not be an error: %v", err)
	}
	if !strings.Contains(result, "sponsor.url") {
		t.Fatalf("hint should name the config keys, got %q", result)
	}
}

func TestDispatchInvalidArgumentsFallThrough(t *testing.T) {
	r := NewRegistry()
	var received map[string]any
	err := r.Register(Descriptor{
		Name:   "echo",
		Schema: `{"type":"object","required":["text"],"properties":{"text":{"type":"string"}},"additionalProperties":false}`,
		Handler: func(ctx context.Context, env Env, args map[string]any) (string, error) {
			received = args
			return "done", nil
		},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	// Arguments that violate the schema still reach the handler, whose own
	// validation produces the specific message.
	args := map[string]any{"text": 42, "extra": true}
	result, err := r.Dispatch(context.Background(), Env{}, "echo", args)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if result != "done" {
		t.Fatalf("unexpected result %q", result)
	}
	if received["extra"] != true {
		t.Fatal("handler should receive the raw arguments unchanged")
	}
}

func TestDispatchCapabilityErrorBecomesAnswer(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(Descriptor{
		Name: "needs_rpc",
		Handler: func(ctx context.Context, env Env, args map[string]any) (string, error) {
			return "", clierr.New(clierr.CodeCapability, "This action needs chain access. Set rpc_url, then try again.")
		},
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	result, err := r.Dispatch(context.Background(), Env{}, "needs_rpc", nil)
	if err != nil {
		t.Fatalf("capability shortfall must not be an error: %v", err)
	}
	if !strings.Contains(result, "rpc_url") {
		t.Fatalf("expected setup hint, got %q", result)
	}
}

func TestGetAddressAnswersInProse(t *testing.T) {
	r := builtinRegistry(t)
	result, err := r.Dispatch(context.Background(), testEnv(t), "get_address", map[string]any{})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !strings.Contains(result, "0x1111111111111111111111111111111111111111") {
		t.Fatalf("answer should contain the address, got %q", result)
	}
	if !strings.HasSuffix(strings.TrimSpace(result), ".") {
		t.Fatalf("answer should be a complete sentence, got %q", result)
	}
}

func TestGetBalancesListsHoldings(t *testing.T) {
	r := builtinRegistry(t)
	result, err := r.Dispatch(context.Background(), testEnv(t), "get_balances", map[string]any{
		"tokens": []any{"USDC"},
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !strings.Contains(result, "12.5 USDC") {
		t.Fatalf("balances answer should list holdings, got %q", result)
	}
}

func TestCheckAllowanceNativeNeedsNone(t *testing.T) {
	r := builtinRegistry(t)
	result, err := r.Dispatch(context.Background(), testEnv(t), "check_allowance", map[string]any{
		"token":   "ETH",
		"spender": "0x00000000000000000000000000000000000000AB",
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !strings.Contains(result, "never needs an allowance") {
		t.Fatalf("unexpected answer %q", result)
	}
}

func TestCheckAllowanceFormatsAmount(t *testing.T) {
	r := builtinRegistry(t)
	result, err := r.Dispatch(context.Background(), testEnv(t), "check_allowance", map[string]any{
		"token":   "USDC",
		"spender": "0x00000000000000000000000000000000000000AB",
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !strings.Contains(result, "5 USDC") {
		t.Fatalf("allowance should be shown in token units, got %q", result)
	}
}

type estimationQuoter struct {
	quote model.SwapQuote
}

func (q estimationQuoter) QuoteSwap(ctx context.Context, req providers.SwapRequest) (model.SwapQuote, error) {
	return q.quote, nil
}

func TestSmartSwapEstimationAnswerCarriesBounds(t *testing.T) {
	env := testEnv(t)
	env.Flows = flows.New(flows.Orchestrator{
		Account: fakeAccount{},
		Reader:  fakeReader{},
		Swaps: estimationQuoter{quote: model.SwapQuote{
			EstimatedOut:           model.AmountInfo{AmountBaseUnits: "2000000", AmountDecimal: "2", Decimals: 6},
			MinOut:                 "1990000",
			RecommendedSlippageBps: 50,
		}},
	})

	r := builtinRegistry(t)
	result, err := r.Dispatch(context.Background(), env, "smart_swap", map[string]any{
		"from_token": "WETH",
		"to_token":   "USDC",
		"amount":     "0.001",
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	for _, want := range []string{
		"about 2 USDC",
		"minimum of 1.99 USDC",
		"recommended slippage 50 bps",
		"Nothing was submitted",
	} {
		if !strings.Contains(result, want) {
			t.Fatalf("estimation answer missing %q: %q", want, result)
		}
	}
}
