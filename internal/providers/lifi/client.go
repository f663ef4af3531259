// Package lifi quotes same-chain swaps through the LiFi aggregator API.
package lifi

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	clierr "github.com/agentwallet-labs/gasless-cli/internal/errors"
	"github.com/agentwallet-labs/gasless-cli/internal/httpx"
	"github.com/agentwallet-labs/gasless-cli/internal/id"
	"github.com/agentwallet-labs/gasless-cli/internal/model"
	"github.com/agentwallet-labs/gasless-cli/internal/providers"
	"github.com/agentwallet-labs/gasless-cli/internal/registry"
)

type Client struct {
	http    *httpx.Client
	baseURL string
	now     func() time.Time
}

func New(httpClient *httpx.Client) *Client {
	return &Client{http: httpClient, baseURL: registry.LiFiBaseURL, now: time.Now}
}

// WithBaseURL points the client at an alternative endpoint.
func (c *Client) WithBaseURL(baseURL string) *Client {
	if strings.TrimSpace(baseURL) != "" {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
	return c
}

type quoteResponse struct {
	ID       string `json:"id"`
	Estimate struct {
		FromAmount        string `json:"fromAmount"`
		ToAmount          string `json:"toAmount"`
		ToAmountMin       string `json:"toAmountMin"`
		ApprovalAddress   string `json:"approvalAddress"`
		ExecutionDuration int64  `json:"executionDuration"`
	} `json:"estimate"`
	ToolDetails struct {
		Key  string `json:"key"`
		Name string `json:"name"`
	} `json:"toolDetails"`
	Tool               string `json:"tool"`
	TransactionRequest struct {
		To      string `json:"to"`
		From    string `json:"from"`
		Data    string `json:"data"`
		Value   string `json:"value"`
		ChainID int64  `json:"chainId"`
	} `json:"transactionRequest"`
}

// QuoteSwap fetches an executable same-chain route. A response without a
// transaction payload is returned as an estimation-only quote rather than an
// error.
func (c *Client) QuoteSwap(ctx context.Context, req providers.SwapRequest) (model.SwapQuote, error) {
	if !req.Chain.IsEVM() {
		return model.SwapQuote{}, clierr.New(clierr.CodeUnsupported, "swap quotes support only EVM chains")
	}
	slippageBps := req.SlippageBps
	if slippageBps <= 0 {
		slippageBps = 50
	}
	if slippageBps >= 10_000 {
		return model.SwapQuote{}, clierr.New(clierr.CodeUsage, "slippage bps must be less than 10000")
	}

	vals := url.Values{}
	vals.Set("fromChain", strconv.FormatInt(req.Chain.EVMChainID, 10))
	vals.Set("toChain", strconv.FormatInt(req.Chain.EVMChainID, 10))
	vals.Set("fromToken", strings.ToLower(req.FromAsset.Address))
	vals.Set("toToken", strings.ToLower(req.ToAsset.Address))
	vals.Set("fromAmount", req.AmountBaseUnits)
	vals.Set("slippage", formatSlippage(slippageBps))
	if strings.TrimSpace(req.FromAddress) != "" {
		vals.Set("fromAddress", req.FromAddress)
	}

	reqURL := c.baseURL + "/quote?" + vals.Encode()
	hReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return model.SwapQuote{}, clierr.Wrap(clierr.CodeInternal, "build swap quote request", err)
	}
	var resp quoteResponse
	if _, err := c.http.DoJSON(ctx, hReq, &resp); err != nil {
		return model.SwapQuote{}, err
	}

	if resp.Estimate.ToAmount == "" {
		return model.SwapQuote{}, clierr.New(clierr.CodeUnavailable, "swap quote missing output amount")
	}

	toDecimals := req.ToAsset.Decimals
	if toDecimals <= 0 {
		toDecimals = 18
	}
	quote := model.SwapQuote{
		Provider:    "lifi",
		ChainID:     req.Chain.CAIP2,
		FromAssetID: req.FromAsset.AssetID,
		ToAssetID:   req.ToAsset.AssetID,
		InputAmount: model.AmountInfo{
			AmountBaseUnits: req.AmountBaseUnits,
			AmountDecimal:   req.AmountDecimal,
			Decimals:        req.FromAsset.Decimals,
		},
		EstimatedOut: model.AmountInfo{
			AmountBaseUnits: resp.Estimate.ToAmount,
			AmountDecimal:   id.FormatDecimalCompat(resp.Estimate.ToAmount, toDecimals),
			Decimals:        toDecimals,
		},
		MinOut:                 firstNonEmpty(resp.Estimate.ToAmountMin, resp.Estimate.ToAmount),
		RecommendedSlippageBps: slippageBps,
		ApprovalAddress:        resp.Estimate.ApprovalAddress,
		Route:                  firstNonEmpty(resp.ToolDetails.Name, resp.Tool),
		EstimatedTimeS:         resp.Estimate.ExecutionDuration,
		FetchedAt:              c.now().UTC().Format(time.RFC3339),
	}

	if strings.TrimSpace(resp.TransactionRequest.To) != "" && strings.TrimSpace(resp.TransactionRequest.Data) != "" {
		if resp.TransactionRequest.ChainID != 0 && resp.TransactionRequest.ChainID != req.Chain.EVMChainID {
			return model.SwapQuote{}, clierr.New(clierr.CodeUnavailable, "swap transaction chain does not match requested chain")
		}
		value, err := hexToDecimal(resp.TransactionRequest.Value)
		if err != nil {
			return model.SwapQuote{}, clierr.Wrap(clierr.CodeUnavailable, "parse swap transaction value", err)
		}
		quote.Tx = &model.TxPayload{
			To:    resp.TransactionRequest.To,
			Data:  ensureHexPrefix(resp.TransactionRequest.Data),
			Value: value,
		}
	}
	return quote, nil
}

func hexToDecimal(v string) (string, error) {
	clean := strings.TrimSpace(v)
	if clean == "" {
		return "0", nil
	}
	if !strings.HasPrefix(clean, "0x") {
		if _, ok := new(big.Int).SetString(clean, 10); !ok {
			return "", fmt.Errorf("invalid numeric value %q", v)
		}
		return clean, nil
	}
	n, ok := new(big.Int).SetString(strings.TrimPrefix(clean, "0x"), 16)
	if !ok {
		return "", fmt.Errorf("invalid hex value %q", v)
	}
	return n.String(), nil
}

func ensureHexPrefix(v string) string {
	clean := strings.TrimSpace(v)
	if clean == "" {
		return "0x"
	}
	if strings.HasPrefix(clean, "0x") {
		return clean
	}
	return "0x" + clean
}

func formatSlippage(bps int64) string {
	return strconv.FormatFloat(float64(bps)/10000, 'f', 6, 64)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
