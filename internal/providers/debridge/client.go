// Package debridge creates cross-chain orders through the deBridge DLN API.
package debridge

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
	return &Client{http: httpClient, baseURL: registry.DLNBaseURL, now: time.Now}
}

func (c *Client) WithBaseURL(baseURL string) *Client {
	if strings.TrimSpace(baseURL) != "" {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
	return c
}

type createTxResponse struct {
	OrderID    string `json:"orderId"`
	Estimation struct {
		SrcChainTokenIn struct {
			Amount string `json:"amount"`
		} `json:"srcChainTokenIn"`
		DstChainTokenOut struct {
			Amount            string `json:"amount"`
			RecommendedAmount string `json:"recommendedAmount"`
			Decimals          int    `json:"decimals"`
		} `json:"dstChainTokenOut"`
	} `json:"estimation"`
	Tx struct {
		To              string `json:"to"`
		Data            string `json:"data"`
		Value           string `json:"value"`
		AllowanceTarget string `json:"allowanceTarget"`
		AllowanceValue  string `json:"allowanceValue"`
	} `json:"tx"`
	FixFee    string `json:"fixFee"`
	ErrorID   string `json:"errorId"`
	ErrorText string `json:"errorMessage"`
}

// CreateOrder asks the order service for an executable cross-chain
// transaction. When the source token allowance is insufficient the service
// answers with allowanceTarget/allowanceValue and no calldata; the caller
// approves and re-quotes.
func (c *Client) CreateOrder(ctx context.Context, req providers.BridgeRequest) (model.BridgeOrder, error) {
	if !req.FromChain.IsEVM() || !req.ToChain.IsEVM() {
		return model.BridgeOrder{}, clierr.New(clierr.CodeUnsupported, "bridge orders support only EVM chains")
	}
	if req.FromChain.EVMChainID == req.ToChain.EVMChainID {
		return model.BridgeOrder{}, clierr.New(clierr.CodeUsage, "bridge requires distinct source and destination chains")
	}
	sender := strings.TrimSpace(req.Sender)
	if sender == "" {
		return model.BridgeOrder{}, clierr.New(clierr.CodeUsage, "bridge order requires sender address")
	}
	recipient := strings.TrimSpace(req.Recipient)
	if recipient == "" {
		recipient = sender
	}

	vals := url.Values{}
	vals.Set("srcChainId", strconv.FormatInt(req.FromChain.EVMChainID, 10))
	vals.Set("srcChainTokenIn", strings.ToLower(req.FromAsset.Address))
	vals.Set("srcChainTokenInAmount", req.AmountBaseUnits)
	vals.Set("dstChainId", strconv.FormatInt(req.ToChain.EVMChainID, 10))
	vals.Set("dstChainTokenOut", strings.ToLower(req.ToAsset.Address))
	vals.Set("dstChainTokenOutAmount", "auto")
	vals.Set("dstChainTokenOutRecipient", recipient)
	vals.Set("srcChainOrderAuthorityAddress", sender)
	vals.Set("dstChainOrderAuthorityAddress", recipient)
	vals.Set("senderAddress", sender)
	vals.Set("prependOperatingExpenses", "true")

	reqURL := c.baseURL + "/dln/order/create-tx?" + vals.Encode()
	hReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return model.BridgeOrder{}, clierr.Wrap(clierr.CodeInternal, "build bridge order request", err)
	}
	var resp createTxResponse
	if _, err := c.http.DoJSON(ctx, hReq, &resp); err != nil {
		return model.BridgeOrder{}, err
	}
	if resp.ErrorID != "" || resp.ErrorText != "" {
		return model.BridgeOrder{}, clierr.New(clierr.CodeUnavailable,
			fmt.Sprintf("bridge order service rejected request: %s", firstNonEmpty(resp.ErrorText, resp.ErrorID)))
	}
	if resp.Estimation.DstChainTokenOut.Amount == "" {
		return model.BridgeOrder{}, clierr.New(clierr.CodeUnavailable, "bridge order missing output estimation")
	}

	outDecimals := resp.Estimation.DstChainTokenOut.Decimals
	if outDecimals <= 0 {
		outDecimals = req.ToAsset.Decimals
	}
	if outDecimals <= 0 {
		outDecimals = 18
	}
	order := model.BridgeOrder{
		Provider:    "debridge",
		OrderID:     resp.OrderID,
		FromChainID: req.FromChain.CAIP2,
		ToChainID:   req.ToChain.CAIP2,
		FromAssetID: req.FromAsset.AssetID,
		ToAssetID:   req.ToAsset.AssetID,
		InputAmount: model.AmountInfo{
			AmountBaseUnits: req.AmountBaseUnits,
			AmountDecimal:   req.AmountDecimal,
			Decimals:        req.FromAsset.Decimals,
		},
		EstimatedOut: model.AmountInfo{
			AmountBaseUnits: resp.Estimation.DstChainTokenOut.Amount,
			AmountDecimal:   id.FormatDecimalCompat(resp.Estimation.DstChainTokenOut.Amount, outDecimals),
			Decimals:        outDecimals,
		},
		RecommendedOut:  resp.Estimation.DstChainTokenOut.RecommendedAmount,
		AllowanceTarget: strings.TrimSpace(resp.Tx.AllowanceTarget),
		AllowanceValue:  strings.TrimSpace(resp.Tx.AllowanceValue),
		FetchedAt:       c.now().UTC().Format(time.RFC3339),
	}

	if fixFee, err := decimalOrHex(resp.FixFee); err == nil && fixFee != "0" {
		order.FixedNativeFeeWei = fixFee
	}

	if strings.TrimSpace(resp.Tx.To) != "" && strings.TrimSpace(resp.Tx.Data) != "" {
		value, err := decimalOrHex(resp.Tx.Value)
		if err != nil {
			return model.BridgeOrder{}, clierr.Wrap(clierr.CodeUnavailable, "parse bridge transaction value", err)
		}
		order.Tx = &model.TxPayload{
			To:    resp.Tx.To,
			Data:  ensureHexPrefix(resp.Tx.Data),
			Value: value,
		}
	}
	return order, nil
}

func decimalOrHex(v string) (string, error) {
	clean := strings.TrimSpace(v)
	if clean == "" {
		return "0", nil
	}
	if strings.HasPrefix(clean, "0x") {
		n, ok := new(big.Int).SetString(strings.TrimPrefix(clean, "0x"), 16)
		if !ok {
			return "", fmt.Errorf("invalid hex value %q", v)
		}
		return n.String(), nil
	}
	n, ok := new(big.Int).SetString(clean, 10)
	if !ok {
		return "", fmt.Errorf("invalid numeric value %q", v)
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

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
