package account

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"

	clierr "github.com/agentwallet-labs/gasless-cli/internal/errors"
	"github.com/agentwallet-labs/gasless-cli/internal/httpx"
)

// RelayAccount is a SmartAccount backed by a sponsor relay. The relay owns
// the smart account keyed by API key, signs on the caller's behalf, and
// attaches paymaster data so the account needs no gas balance.
type RelayAccount struct {
	http    *httpx.Client
	baseURL string
	apiKey  string
	log     log.Logger

	mu      sync.Mutex
	address common.Address
}

type RelayOptions struct {
	// Address pins the account address and skips the remote lookup.
	Address string
	Logger  log.Logger
}

func NewRelayAccount(client *httpx.Client, baseURL, apiKey string, opts RelayOptions) *RelayAccount {
	logger := opts.Logger
	if logger == nil {
		logger = log.Root()
	}
	acct := &RelayAccount{
		http:    client,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		log:     logger,
	}
	if common.IsHexAddress(opts.Address) {
		acct.address = common.HexToAddress(opts.Address)
	}
	return acct
}

type relayAccountResponse struct {
	Address string `json:"address"`
	Error   string `json:"error,omitempty"`
}

type relayTxRequest struct {
	To    string `json:"to"`
	Data  string `json:"data"`
	Value string `json:"value"`
}

type relayTxResponse struct {
	UserOpHash string `json:"userOpHash"`
	Error      string `json:"error,omitempty"`
}

type relayBalancesResponse struct {
	Balances []struct {
		Token         string `json:"token"`
		Symbol        string `json:"symbol"`
		AmountDecimal string `json:"amountDecimal"`
	} `json:"balances"`
	Error string `json:"error,omitempty"`
}

type relaySignResponse struct {
	Signature string `json:"signature"`
	Error     string `json:"error,omitempty"`
}

// Address returns the smart account address, fetching it from the relay on
// first use.
func (a *RelayAccount) Address(ctx context.Context) (common.Address, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.address != (common.Address{}) {
		return a.address, nil
	}

	var resp relayAccountResponse
	if _, err := httpx.DoBodyJSON(ctx, a.http, http.MethodGet, a.baseURL+"/account", nil, a.headers(), &resp); err != nil {
		return common.Address{}, err
	}
	if resp.Error != "" {
		return common.Address{}, clierr.New(clierr.CodeSponsorRejected, resp.Error)
	}
	if !common.IsHexAddress(resp.Address) {
		return common.Address{}, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("relay returned invalid account address %q", resp.Address))
	}
	a.address = common.HexToAddress(resp.Address)
	return a.address, nil
}

// SendTransaction submits one sponsored call. The relay's rejection text is
// preserved verbatim so callers can act on revert reasons.
func (a *RelayAccount) SendTransaction(ctx context.Context, req TransactionRequest) (OperationHandle, error) {
	if req.To == (common.Address{}) {
		return "", clierr.New(clierr.CodeUsage, "transaction target address is required")
	}
	value := "0"
	if req.Value != nil && req.Value.Sign() > 0 {
		value = req.Value.String()
	}
	payload, err := json.Marshal(relayTxRequest{
		To:    req.To.Hex(),
		Data:  hexutil.Encode(req.Data),
		Value: value,
	})
	if err != nil {
		return "", clierr.Wrap(clierr.CodeInternal, "encode transaction request", err)
	}

	a.log.Debug("submitting sponsored transaction", "to", req.To.Hex(), "value", value, "data_len", len(req.Data))

	var resp relayTxResponse
	if _, err := httpx.DoBodyJSON(ctx, a.http, http.MethodPost, a.baseURL+"/transactions", payload, a.headers(), &resp); err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", clierr.New(clierr.CodeSponsorRejected, resp.Error)
	}
	if strings.TrimSpace(resp.UserOpHash) == "" {
		return "", clierr.New(clierr.CodeUnavailable, "relay accepted transaction but returned no operation handle")
	}
	return OperationHandle(resp.UserOpHash), nil
}

func (a *RelayAccount) Balances(ctx context.Context, tokens []common.Address) ([]Balance, error) {
	url := a.baseURL + "/balances"
	if len(tokens) > 0 {
		hexes := make([]string, 0, len(tokens))
		for _, t := range tokens {
			hexes = append(hexes, t.Hex())
		}
		url += "?tokens=" + strings.Join(hexes, ",")
	}
	var resp relayBalancesResponse
	if _, err := httpx.DoBodyJSON(ctx, a.http, http.MethodGet, url, nil, a.headers(), &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, clierr.New(clierr.CodeSponsorRejected, resp.Error)
	}
	out := make([]Balance, 0, len(resp.Balances))
	for _, b := range resp.Balances {
		out = append(out, Balance{
			Token:         common.HexToAddress(b.Token),
			Symbol:        b.Symbol,
			AmountDecimal: b.AmountDecimal,
		})
	}
	return out, nil
}

func (a *RelayAccount) SignTypedData(ctx context.Context, typedData json.RawMessage) ([]byte, error) {
	payload, err := json.Marshal(map[string]json.RawMessage{"typedData": typedData})
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "encode typed data request", err)
	}
	var resp relaySignResponse
	if _, err := httpx.DoBodyJSON(ctx, a.http, http.MethodPost, a.baseURL+"/sign-typed-data", payload, a.headers(), &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, clierr.New(clierr.CodeSponsorRejected, resp.Error)
	}
	sig, err := hexutil.Decode(resp.Signature)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "decode relay signature", err)
	}
	return sig, nil
}

func (a *RelayAccount) headers() map[string]string {
	return map[string]string{"x-api-key": a.apiKey}
}
