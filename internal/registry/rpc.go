package registry

import (
	"fmt"
	"strings"
)

var defaultRPCByChainID = map[int64]string{
	1:     "https://eth.llamarpc.com",
	10:    "https://mainnet.optimism.io",
	56:    "https://bsc-dataseed.binance.org",
	137:   "https://polygon-rpc.com",
	8453:  "https://mainnet.base.org",
	42161: "https://arb1.arbitrum.io/rpc",
	43114: "https://api.avax.network/ext/bc/C/rpc",
}

func DefaultRPCURL(chainID int64) (string, bool) {
	v, ok := defaultRPCByChainID[chainID]
	return v, ok
}

func ResolveRPCURL(override string, chainID int64) (string, error) {
	if strings.TrimSpace(override) != "" {
		return strings.TrimSpace(override), nil
	}
	if v, ok := DefaultRPCURL(chainID); ok {
		return v, nil
	}
	return "", fmt.Errorf("no default rpc configured for chain id %d; provide --rpc-url", chainID)
}
