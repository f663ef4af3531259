package debridge

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

func newOrderServer(t *testing.T, includeTx bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/dln/order/create-tx" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("srcChainId") == q.Get("dstChainId") {
			t.Fatalf("order must cross chains: %s vs %s", q.Get("srcChainId"), q.Get("dstChainId"))
		}
		if q.Get("dstChainTokenOutRecipient") == "" {
			t.Fatal("missing recipient")
		}
		body := map[string]any{
			"orderId": "0xorder1",
			"estimation": map[string]any{
				"srcChainTokenIn": map[string]any{
					"amount": q.Get("srcChainTokenInAmount"),
				},
				"dstChainTokenOut": map[string]any{
					"amount":            "4980000",
					"recommendedAmount": "4975000",
					"decimals":          6,
				},
			},
			"fixFee": "1000000000000000",
		}
		if includeTx {
			body["tx"] = map[string]any{
				"to":    "0x0000000000000000000000000000000000000D1A",
				"data":  "0xfeedface",
				"value": "1005000000000000",
			}
		} else {
			body["tx"] = map[string]any{
				"allowanceTarget": "0x0000000000000000000000000000000000000A11",
				"allowanceValue":  "5000000",
			}
		}
		_ = json.NewEncoder(w).Encode(body)
	}))
}

func newBridgeRequest(t *testing.T) providers.BridgeRequest {
	t.Helper()
	fromChain, _ := id.ParseChain("base")
	toChain, _ := id.ParseChain("arbitrum")
	fromAsset, err := id.ParseAsset("USDC", fromChain)
	if err != nil {
		t.Fatalf("parse from asset: %v", err)
	}
	toAsset, err := id.ParseAsset("USDC", toChain)
	if err != nil {
		t.Fatalf("parse to asset: %v", err)
	}
	return providers.BridgeRequest{
		FromChain:       fromChain,
		ToChain:         toChain,
		FromAsset:       fromAsset,
		ToAsset:         toAsset,
		AmountBaseUnits: "5000000",
		AmountDecimal:   "5",
		Sender:          "0x1111111111111111111111111111111111111111",
		Recipient:       "0x2222222222222222222222222222222222222222",
	}
}

func newTestClient(serverURL string) *Client {
	c := New(httpx.New(2*time.Second, 0)).WithBaseURL(serverURL)
	c.now = func() time.Time { return time.Unix(1700000000, 0) }
	return c
}

func TestCreateOrderExecutable(t *testing.T) {
	server := newOrderServer(t, true)
	defer server.Close()

	order, err := newTestClient(server.URL).CreateOrder(context.Background(), newBridgeRequest(t))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.Tx == nil {
		t.Fatal("expected executable transaction")
	}
	if order.Tx.Value != "1005000000000000" {
		t.Fatalf("unexpected tx value: %s", order.Tx.Value)
	}
	if order.AllowanceTarget != "" {
		t.Fatalf("executable order should not carry allowance target, got %s", order.AllowanceTarget)
	}
	if order.EstimatedOut.AmountBaseUnits != "4980000" {
		t.Fatalf("unexpected estimated out: %s", order.EstimatedOut.AmountBaseUnits)
	}
	if order.RecommendedOut != "4975000" {
		t.Fatalf("unexpected recommended out: %s", order.RecommendedOut)
	}
	if order.FixedNativeFeeWei != "1000000000000000" {
		t.Fatalf("unexpected fixed fee: %s", order.FixedNativeFeeWei)
	}
	if order.OrderID != "0xorder1" {
		t.Fatalf("unexpected order id: %s", order.OrderID)
	}
}

func TestCreateOrderNeedsAllowance(t *testing.T) {
	server := newOrderServer(t, false)
	defer server.Close()

	order, err := newTestClient(server.URL).CreateOrder(context.Background(), newBridgeRequest(t))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.Tx != nil {
		t.Fatal("order without calldata should have no transaction payload")
	}
	if order.AllowanceTarget != "0x0000000000000000000000000000000000000A11" {
		t.Fatalf("unexpected allowance target: %s", order.AllowanceTarget)
	}
	if order.AllowanceValue != "5000000" {
		t.Fatalf("unexpected allowance value: %s", order.AllowanceValue)
	}
}

func TestCreateOrderRejectsSameChain(t *testing.T) {
	req := newBridgeRequest(t)
	req.ToChain = req.FromChain
	if _, err := newTestClient("http://unused.invalid").CreateOrder(context.Background(), req); err == nil {
		t.Fatal("expected same-chain rejection")
	}
}

func TestCreateOrderServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"errorId":      "INVALID_QUERY_PARAMETERS",
			"errorMessage": "srcChainTokenInAmount too small",
		})
	}))
	defer server.Close()

	if _, err := newTestClient(server.URL).CreateOrder(context.Background(), newBridgeRequest(t)); err == nil {
		t.Fatal("expected service error")
	}
}
