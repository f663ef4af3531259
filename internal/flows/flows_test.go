package flows

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/agentwallet-labs/gasless-cli/internal/account"
	"github.com/agentwallet-labs/gasless-cli/internal/allowance"
	clierr "github.com/agentwallet-labs/gasless-cli/internal/errors"
	"github.com/agentwallet-labs/gasless-cli/internal/id"
	"github.com/agentwallet-labs/gasless-cli/internal/model"
	"github.com/agentwallet-labs/gasless-cli/internal/providers"
	"github.com/agentwallet-labs/gasless-cli/internal/submit"
)

var (
	testOwner     = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testRecipient = "0x2222222222222222222222222222222222222222"
)

type fakeAccount struct {
	err  error
	sent []account.TransactionRequest
}

func (f *fakeAccount) Address(ctx context.Context) (common.Address, error) {
	return testOwner, nil
}

func (f *fakeAccount) SendTransaction(ctx context.Context, req account.TransactionRequest) (account.OperationHandle, error) {
	f.sent = append(f.sent, req)
	if f.err != nil {
		return "", f.err
	}
	return account.OperationHandle(fmt.Sprintf("0xop%d", len(f.sent))), nil
}

func (f *fakeAccount) Balances(ctx context.Context, tokens []common.Address) ([]account.Balance, error) {
	return nil, nil
}

func (f *fakeAccount) SignTypedData(ctx context.Context, typedData json.RawMessage) ([]byte, error) {
	return nil, errors.New("not supported")
}

type fakeReader struct {
	allowance *big.Int
	decimals  uint8
}

func (f *fakeReader) TokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	if f.decimals == 0 {
		return 18, nil
	}
	return f.decimals, nil
}

func (f *fakeReader) TokenAllowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	if f.allowance == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(f.allowance), nil
}

func (f *fakeReader) TokenBalance(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (f *fakeReader) BlockNumber(ctx context.Context) (uint64, error) {
	return 100, nil
}

// confirmingReceipts confirms every handle on the first poll.
type confirmingReceipts struct{}

func (confirmingReceipts) OperationReceipt(ctx context.Context, handle account.OperationHandle) (*submit.OperationReceipt, error) {
	return &submit.OperationReceipt{Success: true, BlockNumber: 100, TransactionHash: "0xtx"}, nil
}

func (confirmingReceipts) HeadBlockNumber(ctx context.Context) (uint64, error) {
	return 100, nil
}

type fakeSwapQuoter struct {
	quote model.SwapQuote
	err   error
	calls int
}

func (f *fakeSwapQuoter) QuoteSwap(ctx context.Context, req providers.SwapRequest) (model.SwapQuote, error) {
	f.calls++
	if f.err != nil {
		return model.SwapQuote{}, f.err
	}
	return f.quote, nil
}

// fakeBridgeQuoter returns its orders in sequence, repeating the last one.
type fakeBridgeQuoter struct {
	orders []model.BridgeOrder
	calls  int
}

func (f *fakeBridgeQuoter) CreateOrder(ctx context.Context, req providers.BridgeRequest) (model.BridgeOrder, error) {
	i := f.calls
	if i >= len(f.orders) {
		i = len(f.orders) - 1
	}
	f.calls++
	return f.orders[i], nil
}

func testChain(t *testing.T, slug string) id.Chain {
	t.Helper()
	chain, err := id.ParseChain(slug)
	if err != nil {
		t.Fatalf("parse chain %s: %v", slug, err)
	}
	return chain
}

func testAsset(t *testing.T, symbol string, chain id.Chain) id.Asset {
	t.Helper()
	asset, err := id.ParseAsset(symbol, chain)
	if err != nil {
		t.Fatalf("parse asset %s: %v", symbol, err)
	}
	return asset
}

func newTestOrchestrator(acct account.SmartAccount, reader *fakeReader) *Orchestrator {
	submitter := submit.NewSubmitter(nil, nil)
	receipts := confirmingReceipts{}
	return New(Orchestrator{
		Account:    acct,
		Reader:     reader,
		Submitter:  submitter,
		Allowances: allowance.NewManager(reader, submitter, receipts, nil),
		Receipts:   receipts,
	})
}

func TestTransferNativeCarriesValue(t *testing.T) {
	acct := &fakeAccount{}
	o := newTestOrchestrator(acct, &fakeReader{})
	chain := testChain(t, "base")

	res, err := o.Transfer(context.Background(), TransferParams{
		Chain:         chain,
		Asset:         id.NativeAsset(chain),
		Recipient:     testRecipient,
		AmountDecimal: "0.5",
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if len(acct.sent) != 1 {
		t.Fatalf("expected 1 submission, got %d", len(acct.sent))
	}
	sent := acct.sent[0]
	if sent.To != common.HexToAddress(testRecipient) {
		t.Fatalf("native transfer must target the recipient, got %s", sent.To.Hex())
	}
	if sent.Value.String() != "500000000000000000" {
		t.Fatalf("unexpected value: %s", sent.Value.String())
	}
	if len(sent.Data) != 0 {
		t.Fatal("native transfer must carry no calldata")
	}
	if res.Amount.AmountBaseUnits != "500000000000000000" {
		t.Fatalf("unexpected reported amount: %s", res.Amount.AmountBaseUnits)
	}
}

func TestTransferTokenCallsContract(t *testing.T) {
	acct := &fakeAccount{}
	o := newTestOrchestrator(acct, &fakeReader{})
	chain := testChain(t, "base")
	usdc := testAsset(t, "USDC", chain)

	_, err := o.Transfer(context.Background(), TransferParams{
		Chain:         chain,
		Asset:         usdc,
		Recipient:     testRecipient,
		AmountDecimal: "25",
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	sent := acct.sent[0]
	if sent.To != common.HexToAddress(usdc.Address) {
		t.Fatalf("token transfer must target the token contract, got %s", sent.To.Hex())
	}
	args, err := erc20ABI.Methods["transfer"].Inputs.Unpack(sent.Data[4:])
	if err != nil {
		t.Fatalf("unpack calldata: %v", err)
	}
	if args[0].(common.Address) != common.HexToAddress(testRecipient) {
		t.Fatalf("unexpected calldata recipient: %v", args[0])
	}
	if args[1].(*big.Int).String() != "25000000" {
		t.Fatalf("unexpected calldata amount: %v", args[1])
	}
}

func TestTransferRejectsBadRecipient(t *testing.T) {
	acct := &fakeAccount{}
	o := newTestOrchestrator(acct, &fakeReader{})
	chain := testChain(t, "base")

	_, err := o.Transfer(context.Background(), TransferParams{
		Chain:         chain,
		Asset:         id.NativeAsset(chain),
		Recipient:     "not-an-address",
		AmountDecimal: "1",
	})
	var cerr *clierr.Error
	if !errors.As(err, &cerr) || cerr.Code != clierr.CodeUsage {
		t.Fatalf("expected usage error, got %v", err)
	}
	if len(acct.sent) != 0 {
		t.Fatal("nothing should be sent for an invalid recipient")
	}
}

func TestSwapEstimationOnlyQuoteIsSuccess(t *testing.T) {
	acct := &fakeAccount{}
	o := newTestOrchestrator(acct, &fakeReader{})
	chain := testChain(t, "base")
	o.Swaps = &fakeSwapQuoter{quote: model.SwapQuote{
		Provider:     "lifi",
		EstimatedOut: model.AmountInfo{AmountBaseUnits: "987000", AmountDecimal: "0.987", Decimals: 6},
	}}

	res, err := o.Swap(context.Background(), SwapParams{
		Chain:         chain,
		FromAsset:     testAsset(t, "USDC", chain),
		ToAsset:       testAsset(t, "DAI", chain),
		AmountDecimal: "1",
	})
	if err != nil {
		t.Fatalf("estimation-only quote must not be an error: %v", err)
	}
	if res.Submitted {
		t.Fatal("nothing should be submitted without calldata")
	}
	if res.Note == "" {
		t.Fatal("estimation result should explain why nothing was submitted")
	}
	if len(acct.sent) != 0 {
		t.Fatalf("expected 0 submissions, got %d", len(acct.sent))
	}
}

func TestSwapSubmitsAfterAllowanceSkip(t *testing.T) {
	acct := &fakeAccount{}
	// Allowance already covers the input amount, so only the swap itself
	// is submitted.
	reader := &fakeReader{allowance: big.NewInt(10_000_000)}
	o := newTestOrchestrator(acct, reader)
	chain := testChain(t, "base")
	o.Swaps = &fakeSwapQuoter{quote: model.SwapQuote{
		Provider:        "lifi",
		ApprovalAddress: "0x00000000000000000000000000000000000000AB",
		Tx:              &model.TxPayload{To: "0x00000000000000000000000000000000000000DE", Data: "0xdeadbeef", Value: "0"},
	}}

	res, err := o.Swap(context.Background(), SwapParams{
		Chain:         chain,
		FromAsset:     testAsset(t, "USDC", chain),
		ToAsset:       testAsset(t, "DAI", chain),
		AmountDecimal: "1",
	})
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if !res.Submitted {
		t.Fatal("expected a submitted swap")
	}
	if len(acct.sent) != 1 {
		t.Fatalf("expected only the swap submission, got %d", len(acct.sent))
	}
	if acct.sent[0].To != common.HexToAddress("0x00000000000000000000000000000000000000DE") {
		t.Fatalf("swap must target the router, got %s", acct.sent[0].To.Hex())
	}
}

func TestSwapApprovesThenSubmits(t *testing.T) {
	acct := &fakeAccount{}
	o := newTestOrchestrator(acct, &fakeReader{allowance: big.NewInt(0)})
	chain := testChain(t, "base")
	o.Swaps = &fakeSwapQuoter{quote: model.SwapQuote{
		Provider:        "lifi",
		ApprovalAddress: "0x00000000000000000000000000000000000000AB",
		Tx:              &model.TxPayload{To: "0x00000000000000000000000000000000000000DE", Data: "0xdeadbeef"},
	}}

	res, err := o.Swap(context.Background(), SwapParams{
		Chain:         chain,
		FromAsset:     testAsset(t, "USDC", chain),
		ToAsset:       testAsset(t, "DAI", chain),
		AmountDecimal: "1",
	})
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if len(acct.sent) != 2 {
		t.Fatalf("expected approval then swap, got %d submissions", len(acct.sent))
	}
	usdc := testAsset(t, "USDC", chain)
	if acct.sent[0].To != common.HexToAddress(usdc.Address) {
		t.Fatalf("approval must target the token, got %s", acct.sent[0].To.Hex())
	}
	if res.Approval == nil || !res.Approval.Submitted {
		t.Fatal("result should report the submitted approval")
	}
}

func TestSwapAllowanceRevertGetsGuidance(t *testing.T) {
	acct := &fakeAccount{err: errors.New("execution reverted: ERC20: transfer amount exceeds allowance")}
	o := newTestOrchestrator(acct, &fakeReader{allowance: big.NewInt(10_000_000)})
	chain := testChain(t, "base")
	o.Swaps = &fakeSwapQuoter{quote: model.SwapQuote{
		Provider: "lifi",
		Tx:       &model.TxPayload{To: "0x00000000000000000000000000000000000000DE", Data: "0xdeadbeef"},
	}}

	_, err := o.Swap(context.Background(), SwapParams{
		Chain:         chain,
		FromAsset:     testAsset(t, "USDC", chain),
		ToAsset:       testAsset(t, "DAI", chain),
		AmountDecimal: "1",
	})
	var cerr *clierr.Error
	if !errors.As(err, &cerr) || cerr.Code != clierr.CodeChainRevert {
		t.Fatalf("expected chain revert error, got %v", err)
	}
	if !strings.Contains(cerr.Message, "approve_max") {
		t.Fatalf("allowance revert should point at approve_max, got %q", cerr.Message)
	}
}

func bridgeTestParams(t *testing.T) BridgeParams {
	t.Helper()
	from := testChain(t, "base")
	to := testChain(t, "arbitrum")
	return BridgeParams{
		FromChain:     from,
		ToChain:       to,
		FromAsset:     testAsset(t, "USDC", from),
		ToAsset:       testAsset(t, "USDC", to),
		AmountDecimal: "5",
		Recipient:     testRecipient,
	}
}

func TestBridgeApprovesAndRequotesOnce(t *testing.T) {
	acct := &fakeAccount{}
	o := newTestOrchestrator(acct, &fakeReader{allowance: big.NewInt(0)})
	quoter := &fakeBridgeQuoter{orders: []model.BridgeOrder{
		{Provider: "debridge", AllowanceTarget: "0x00000000000000000000000000000000000000A1", AllowanceValue: "5000000"},
		{Provider: "debridge", Tx: &model.TxPayload{To: "0x00000000000000000000000000000000000000D1", Data: "0xfeedface", Value: "1000"}},
	}}
	o.Bridges = quoter

	res, err := o.Bridge(context.Background(), bridgeTestParams(t))
	if err != nil {
		t.Fatalf("bridge: %v", err)
	}
	if quoter.calls != 2 {
		t.Fatalf("expected exactly one re-quote, got %d calls", quoter.calls)
	}
	if len(acct.sent) != 2 {
		t.Fatalf("expected approval then bridge tx, got %d submissions", len(acct.sent))
	}
	if res.Approval == nil || !res.Approval.Submitted {
		t.Fatal("result should report the approval")
	}
	if !res.Submitted || res.Operation == "" {
		t.Fatal("bridge submission should be reported")
	}
	// The approval for a withheld-calldata order is unlimited so the
	// re-quoted order cannot bounce on allowance again.
	args, err := erc20ABI.Methods["approve"].Inputs.Unpack(acct.sent[0].Data[4:])
	if err != nil {
		t.Fatalf("unpack approval: %v", err)
	}
	if args[1].(*big.Int).Cmp(allowance.MaxUint256) != 0 {
		t.Fatalf("expected unlimited approval, got %s", args[1].(*big.Int).String())
	}
}

func TestBridgeSecondQuoteStillIncomplete(t *testing.T) {
	acct := &fakeAccount{}
	o := newTestOrchestrator(acct, &fakeReader{allowance: big.NewInt(0)})
	quoter := &fakeBridgeQuoter{orders: []model.BridgeOrder{
		{Provider: "debridge", AllowanceTarget: "0x00000000000000000000000000000000000000A1", AllowanceValue: "5000000"},
	}}
	o.Bridges = quoter

	_, err := o.Bridge(context.Background(), bridgeTestParams(t))
	var cerr *clierr.Error
	if !errors.As(err, &cerr) || cerr.Code != clierr.CodeQuoteIncomplete {
		t.Fatalf("expected quote-incomplete error, got %v", err)
	}
	if !strings.Contains(cerr.Message, "not retrying further") {
		t.Fatalf("error should state the single-retry policy, got %q", cerr.Message)
	}
	if quoter.calls != 2 {
		t.Fatalf("expected exactly two quote calls, got %d", quoter.calls)
	}
}

func TestBridgeFeeOptOutZeroesValue(t *testing.T) {
	acct := &fakeAccount{}
	o := newTestOrchestrator(acct, &fakeReader{allowance: big.NewInt(10_000_000)})
	o.Bridges = &fakeBridgeQuoter{orders: []model.BridgeOrder{
		{Provider: "debridge", Tx: &model.TxPayload{To: "0x00000000000000000000000000000000000000D1", Data: "0xfeedface", Value: "1000000000000000"}},
	}}

	params := bridgeTestParams(t)
	params.SkipNativeFee = true
	res, err := o.Bridge(context.Background(), params)
	if err != nil {
		t.Fatalf("bridge: %v", err)
	}
	if acct.sent[len(acct.sent)-1].Value.Sign() != 0 {
		t.Fatal("fee opt-out must zero the transaction value")
	}
	if len(res.Warnings) == 0 {
		t.Fatal("fee opt-out must surface a warning")
	}
}

func TestDisperseValidatesEverythingFirst(t *testing.T) {
	acct := &fakeAccount{}
	o := newTestOrchestrator(acct, &fakeReader{})
	chain := testChain(t, "base")

	_, err := o.Disperse(context.Background(), DisperseParams{
		Chain: chain,
		Asset: id.NativeAsset(chain),
		Recipients: []DisperseRecipient{
			{Address: testRecipient, AmountDecimal: "1"},
			{Address: "bogus", AmountDecimal: "2"},
		},
	})
	var cerr *clierr.Error
	if !errors.As(err, &cerr) || cerr.Code != clierr.CodeUsage {
		t.Fatalf("expected usage error, got %v", err)
	}
	if len(acct.sent) != 0 {
		t.Fatalf("a bad entry must abort before any submission, got %d", len(acct.sent))
	}
}

func TestDisperseContinuesPastFailures(t *testing.T) {
	acct := &failSecondAccount{}
	o := newTestOrchestrator(acct, &fakeReader{})
	chain := testChain(t, "base")

	res, err := o.Disperse(context.Background(), DisperseParams{
		Chain: chain,
		Asset: id.NativeAsset(chain),
		Recipients: []DisperseRecipient{
			{Address: "0x2222222222222222222222222222222222222222", AmountDecimal: "1"},
			{Address: "0x3333333333333333333333333333333333333333", AmountDecimal: "2"},
			{Address: "0x4444444444444444444444444444444444444444", AmountDecimal: "3"},
		},
	})
	if err != nil {
		t.Fatalf("disperse: %v", err)
	}
	if res.Requested != 3 || res.Submitted != 2 || res.Failed != 1 {
		t.Fatalf("unexpected totals: requested %d submitted %d failed %d", res.Requested, res.Submitted, res.Failed)
	}
	if res.Items[1].Success || res.Items[1].Error == "" {
		t.Fatal("failed item should carry its error")
	}
	if !res.Items[2].Success {
		t.Fatal("a failure must not stop later recipients")
	}
	if res.Total != "6000000000000000000" {
		t.Fatalf("unexpected total: %s", res.Total)
	}
}

// failSecondAccount rejects only its second submission.
type failSecondAccount struct {
	fakeAccount
}

func (f *failSecondAccount) SendTransaction(ctx context.Context, req account.TransactionRequest) (account.OperationHandle, error) {
	f.sent = append(f.sent, req)
	if len(f.sent) == 2 {
		return "", errors.New("execution reverted")
	}
	return account.OperationHandle(fmt.Sprintf("0xop%d", len(f.sent))), nil
}
