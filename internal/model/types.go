package model

import "time"

const EnvelopeVersion = "v1"

type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type EnvelopeMeta struct {
	RequestID string          `json:"request_id"`
	Timestamp time.Time       `json:"timestamp"`
	Command   string          `json:"command"`
	Services  []ServiceStatus `json:"services,omitempty"`
	Partial   bool            `json:"partial"`
}

// ServiceStatus records the health and latency of an upstream dependency
// touched while serving the command (sponsor relay, bundler, quote API).
type ServiceStatus struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
}

type AmountInfo struct {
	AmountBaseUnits string `json:"amount_base_units"`
	AmountDecimal   string `json:"amount_decimal"`
	Decimals        int    `json:"decimals"`
}

type AssetResolution struct {
	Input       string `json:"input"`
	ChainID     string `json:"chain_id"`
	Symbol      string `json:"symbol"`
	AssetID     string `json:"asset_id"`
	Address     string `json:"address"`
	Decimals    int    `json:"decimals"`
	ResolvedBy  string `json:"resolved_by"`
	Unambiguous bool   `json:"unambiguous"`
}

// TxPayload is the executable calldata fragment a quote service hands back.
type TxPayload struct {
	To    string `json:"to"`
	Data  string `json:"data"`
	Value string `json:"value,omitempty"`
}

type SwapQuote struct {
	Provider               string     `json:"provider"`
	ChainID                string     `json:"chain_id"`
	FromAssetID            string     `json:"from_asset_id"`
	ToAssetID              string     `json:"to_asset_id"`
	InputAmount            AmountInfo `json:"input_amount"`
	EstimatedOut           AmountInfo `json:"estimated_out"`
	MinOut                 string     `json:"min_out,omitempty"`
	RecommendedSlippageBps int64      `json:"recommended_slippage_bps,omitempty"`
	ApprovalAddress        string     `json:"approval_address,omitempty"`
	Route                  string     `json:"route"`
	EstimatedTimeS         int64      `json:"estimated_time_s,omitempty"`
	Tx                     *TxPayload `json:"tx,omitempty"`
	FetchedAt              string     `json:"fetched_at"`
}

type BridgeOrder struct {
	Provider          string     `json:"provider"`
	OrderID           string     `json:"order_id,omitempty"`
	FromChainID       string     `json:"from_chain_id"`
	ToChainID         string     `json:"to_chain_id"`
	FromAssetID       string     `json:"from_asset_id"`
	ToAssetID         string     `json:"to_asset_id"`
	InputAmount       AmountInfo `json:"input_amount"`
	EstimatedOut      AmountInfo `json:"estimated_out"`
	RecommendedOut    string     `json:"recommended_out,omitempty"`
	FixedNativeFeeWei string     `json:"fixed_native_fee_wei,omitempty"`
	AllowanceTarget   string     `json:"allowance_target,omitempty"`
	AllowanceValue    string     `json:"allowance_value,omitempty"`
	Tx                *TxPayload `json:"tx,omitempty"`
	FetchedAt         string     `json:"fetched_at"`
}

type Balance struct {
	TokenAddress  string `json:"token_address"`
	Symbol        string `json:"symbol,omitempty"`
	AmountDecimal string `json:"amount_decimal"`
}
