package lifi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/agentwallet-labs/gasless-cli/internal/httpx"
	"github.com/agentwallet-labs/gasless-cli/internal/id"
	"github.com/agentwallet-labs/gasless-cli/internal/providers"
)

func newQuoteServer(t *testing.T, includeTx bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/quote" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("fromChain") != q.Get("toChain") {
			t.Fatalf("swap quote must stay on one chain: %s vs %s", q.Get("fromChain"), q.Get("toChain"))
		}
		body := map[string]any{
			"id":   "q-1",
			"tool": "sushiswap",
			"toolDetails": map[string]string{
				"key":  "sushiswap",
				"name": "SushiSwap",
			},
			"estimate": map[string]any{
				"fromAmount":        q.Get("fromAmount"),
				"toAmount":          "987000",
				"toAmountMin":       "982000",
				"approvalAddress":   "0x0000000000000000000000000000000000000ABC",
				"executionDuration": 30,
			},
		}
		if includeTx {
			body["transactionRequest"] = map[string]any{
				"to":      "0x0000000000000000000000000000000000000DEF",
				"data":    "0xdeadbeef",
				"value":   "0x0",
				"chainId": 8453,
			}
		}
		_ = json.NewEncoder(w).Encode(body)
	}))
}

func newSwapRequest(t *testing.T) providers.SwapRequest {
	t.Helper()
	chain, _ := id.ParseChain("base")
	fromAsset, err := id.ParseAsset("USDC", chain)
	if err != nil {
		t.Fatalf("parse from asset: %v", err)
	}
	toAsset, err := id.ParseAsset("DAI", chain)
	if err != nil {
		t.Fatalf("parse to asset: %v", err)
	}
	return providers.SwapRequest{
		Chain:           chain,
		FromAsset:       fromAsset,
		ToAsset:         toAsset,
		AmountBaseUnits: "1000000",
		AmountDecimal:   "1",
		FromAddress:     "0x1111111111111111111111111111111111111111",
		SlippageBps:     50,
	}
}

func TestQuoteSwapExecutable(t *testing.T) {
	server := newQuoteServer(t, true)
	defer server.Close()

	c := New(httpx.New(2*time.Second, 0)).WithBaseURL(server.URL)
	quote, err := c.QuoteSwap(context.Background(), newSwapRequest(t))
	if err != nil {
		t.Fatalf("QuoteSwap failed: %v", err)
	}
	if quote.Tx == nil {
		t.Fatal("expected executable transaction payload")
	}
	if quote.Tx.To != "0x0000000000000000000000000000000000000DEF" || quote.Tx.Data != "0xdeadbeef" {
		t.Fatalf("unexpected tx payload: %+v", quote.Tx)
	}
	if quote.Tx.Value != "0" {
		t.Fatalf("hex value not normalized: %s", quote.Tx.Value)
	}
	if quote.ApprovalAddress != "0x0000000000000000000000000000000000000ABC" {
		t.Fatalf("unexpected approval address: %s", quote.ApprovalAddress)
	}
	if quote.MinOut != "982000" {
		t.Fatalf("unexpected min out: %s", quote.MinOut)
	}
}

func TestQuoteSwapEstimationOnly(t *testing.T) {
	server := newQuoteServer(t, false)
	defer server.Close()

	c := New(httpx.New(2*time.Second, 0)).WithBaseURL(server.URL)
	quote, err := c.QuoteSwap(context.Background(), newSwapRequest(t))
	if err != nil {
		t.Fatalf("QuoteSwap failed: %v", err)
	}
	if quote.Tx != nil {
		t.Fatalf("expected estimation-only quote, got tx %+v", quote.Tx)
	}
	if quote.EstimatedOut.AmountBaseUnits != "987000" {
		t.Fatalf("unexpected estimated out: %s", quote.EstimatedOut.AmountBaseUnits)
	}
	if quote.RecommendedSlippageBps != 50 {
		t.Fatalf("unexpected recommended slippage: %d", quote.RecommendedSlippageBps)
	}
}

func TestQuoteSwapRejectsExcessiveSlippage(t *testing.T) {
	c := New(httpx.New(2*time.Second, 0))
	req := newSwapRequest(t)
	req.SlippageBps = 10_000
	if _, err := c.QuoteSwap(context.Background(), req); err == nil {
		t.Fatal("expected slippage validation error")
	}
}
