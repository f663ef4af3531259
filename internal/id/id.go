package id

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	clierr "github.com/agentwallet-labs/gasless-cli/internal/errors"
)

var (
	eip155ChainPattern = regexp.MustCompile(`^eip155:[0-9]+$`)
	evmAddressPattern  = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	eip155AssetPattern = regexp.MustCompile(`^eip155:[0-9]+/erc20:0x[0-9a-fA-F]{40}$`)
)

// Native-asset sentinel addresses. The zero address and the 0xeeee...
// placeholder both denote the chain's gas token in quote and transfer
// requests; neither is an ERC-20 contract.
const (
	ZeroAddress           = "0x0000000000000000000000000000000000000000"
	NativePlaceholder     = "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"
	nativePlaceholderLow  = "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"
	zeroAddressLow        = "0x0000000000000000000000000000000000000000"
	nativeDecimalsDefault = 18
)

type Chain struct {
	Name       string
	Slug       string
	CAIP2      string
	EVMChainID int64
	NativeSym  string
}

func (c Chain) Namespace() string {
	return chainNamespace(c.CAIP2)
}

func (c Chain) IsEVM() bool {
	return c.Namespace() == "eip155"
}

type Asset struct {
	ChainID  string
	AssetID  string
	Address  string
	Symbol   string
	Decimals int
	Native   bool
}

type Token struct {
	Symbol   string
	Address  string
	Decimals int
}

var chainBySlug = map[string]Chain{
	"ethereum":  {Name: "Ethereum", Slug: "ethereum", CAIP2: "eip155:1", EVMChainID: 1, NativeSym: "ETH"},
	"mainnet":   {Name: "Ethereum", Slug: "ethereum", CAIP2: "eip155:1", EVMChainID: 1, NativeSym: "ETH"},
	"base":      {Name: "Base", Slug: "base", CAIP2: "eip155:8453", EVMChainID: 8453, NativeSym: "ETH"},
	"arbitrum":  {Name: "Arbitrum", Slug: "arbitrum", CAIP2: "eip155:42161", EVMChainID: 42161, NativeSym: "ETH"},
	"optimism":  {Name: "Optimism", Slug: "optimism", CAIP2: "eip155:10", EVMChainID: 10, NativeSym: "ETH"},
	"polygon":   {Name: "Polygon", Slug: "polygon", CAIP2: "eip155:137", EVMChainID: 137, NativeSym: "POL"},
	"avalanche": {Name: "Avalanche", Slug: "avalanche", CAIP2: "eip155:43114", EVMChainID: 43114, NativeSym: "AVAX"},
	"bsc":       {Name: "BSC", Slug: "bsc", CAIP2: "eip155:56", EVMChainID: 56, NativeSym: "BNB"},
}

var chainByID = map[int64]Chain{
	1:     chainBySlug["ethereum"],
	10:    chainBySlug["optimism"],
	56:    chainBySlug["bsc"],
	137:   chainBySlug["polygon"],
	8453:  chainBySlug["base"],
	42161: chainBySlug["arbitrum"],
	43114: chainBySlug["avalanche"],
}

// Small bootstrap registry for deterministic asset parsing on Tier-1 chains.
// Unknown tokens still resolve by address; their decimals come from the chain.
var tokenRegistry = map[string][]Token{
	"eip155:1": {
		{Symbol: "USDC", Address: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", Decimals: 6},
		{Symbol: "USDT", Address: "0xdac17f958d2ee523a2206206994597c13d831ec7", Decimals: 6},
		{Symbol: "DAI", Address: "0x6b175474e89094c44da98b954eedeac495271d0f", Decimals: 18},
		{Symbol: "WETH", Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Decimals: 18},
	},
	"eip155:8453": {
		{Symbol: "USDC", Address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", Decimals: 6},
		{Symbol: "DAI", Address: "0x50c5725949A6F0c72E6C4a641F24049A917DB0Cb", Decimals: 18},
		{Symbol: "WETH", Address: "0x4200000000000000000000000000000000000006", Decimals: 18},
	},
	"eip155:42161": {
		{Symbol: "USDC", Address: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831", Decimals: 6},
		{Symbol: "USDT", Address: "0xFd086bC7CD5C481DCC9C85ebe478A1C0b69FCbb9", Decimals: 6},
		{Symbol: "DAI", Address: "0xDA10009cBd5D07dd0CeCc66161FC93D7c9000da1", Decimals: 18},
		{Symbol: "WETH", Address: "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1", Decimals: 18},
	},
	"eip155:10": {
		{Symbol: "USDC", Address: "0x7F5c764cBc14f9669B88837ca1490cCa17c31607", Decimals: 6},
		{Symbol: "USDT", Address: "0x94b008aA00579c1307B0EF2c499aD98a8ce58e58", Decimals: 6},
		{Symbol: "DAI", Address: "0xDA10009cBd5D07dd0CeCc66161FC93D7c9000da1", Decimals: 18},
		{Symbol: "WETH", Address: "0x4200000000000000000000000000000000000006", Decimals: 18},
	},
	"eip155:137": {
		{Symbol: "USDC", Address: "0x3c499c542cef5e3811e1192ce70d8cc03d5c3359", Decimals: 6},
		{Symbol: "USDT", Address: "0xc2132D05D31c914a87C6611C10748AEb04B58e8F", Decimals: 6},
		{Symbol: "DAI", Address: "0x8f3Cf7ad23Cd3CaDbD9735AFf958023239c6A063", Decimals: 18},
		{Symbol: "WETH", Address: "0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619", Decimals: 18},
	},
	"eip155:56": {
		{Symbol: "USDC", Address: "0x8ac76a51cc950d9822d68b83fe1ad97b32cd580d", Decimals: 18},
		{Symbol: "USDT", Address: "0x55d398326f99059fF775485246999027B3197955", Decimals: 18},
		{Symbol: "DAI", Address: "0x1AF3F329e8BE154074D8769D1FFa4eE058B1DBc3", Decimals: 18},
		{Symbol: "WETH", Address: "0x2170Ed0880ac9A755fd29B2688956BD959F933F8", Decimals: 18},
	},
	"eip155:43114": {
		{Symbol: "USDC", Address: "0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E", Decimals: 6},
		{Symbol: "USDT", Address: "0x9702230A8Ea53601f5cD2dc00fDBc13d4dF4A8c7", Decimals: 6},
		{Symbol: "DAI", Address: "0xd586E7F844cEa2F87f50152665BCbc2C279D8d70", Decimals: 18},
		{Symbol: "WETH", Address: "0x49D5c2BdFfac6CE2BFdB6640F4F80f226bc10bAB", Decimals: 18},
	},
}

// IsNativeAddress reports whether the address is one of the native-asset
// sentinels. Comparison is case-insensitive.
func IsNativeAddress(address string) bool {
	low := strings.ToLower(strings.TrimSpace(address))
	return low == zeroAddressLow || low == nativePlaceholderLow
}

func ParseChain(input string) (Chain, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Chain{}, clierr.New(clierr.CodeUsage, "chain is required")
	}
	norm := strings.ToLower(raw)

	if chain, ok := chainBySlug[norm]; ok {
		return chain, nil
	}

	if eip155ChainPattern.MatchString(norm) {
		parts := strings.Split(norm, ":")
		id, _ := strconv.ParseInt(parts[1], 10, 64)
		if known, ok := chainByID[id]; ok {
			return known, nil
		}
		return Chain{Name: fmt.Sprintf("EVM-%d", id), Slug: fmt.Sprintf("evm-%d", id), CAIP2: norm, EVMChainID: id, NativeSym: "ETH"}, nil
	}

	if id, err := strconv.ParseInt(norm, 10, 64); err == nil {
		if chain, ok := chainByID[id]; ok {
			return chain, nil
		}
		return Chain{Name: fmt.Sprintf("EVM-%d", id), Slug: fmt.Sprintf("evm-%d", id), CAIP2: fmt.Sprintf("eip155:%d", id), EVMChainID: id, NativeSym: "ETH"}, nil
	}

	return Chain{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("unsupported chain input: %s", input))
}

// NativeAsset returns the chain's gas token expressed with the 0xeeee...
// placeholder address.
func NativeAsset(chain Chain) Asset {
	return Asset{
		ChainID:  chain.CAIP2,
		AssetID:  fmt.Sprintf("%s/slip44:60", chain.CAIP2),
		Address:  NativePlaceholder,
		Symbol:   chain.NativeSym,
		Decimals: nativeDecimalsDefault,
		Native:   true,
	}
}

func ParseAsset(input string, chain Chain) (Asset, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Asset{}, clierr.New(clierr.CodeUsage, "asset is required")
	}

	if strings.EqualFold(raw, chain.NativeSym) || strings.EqualFold(raw, "native") || IsNativeAddress(raw) {
		return NativeAsset(chain), nil
	}

	if strings.Contains(raw, "/") {
		if !eip155AssetPattern.MatchString(raw) {
			return Asset{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid CAIP-19 asset format: %s", input))
		}
		parts := strings.SplitN(raw, "/", 2)
		if parts[0] != chain.CAIP2 {
			return Asset{}, clierr.New(clierr.CodeUsage, "asset chain does not match --chain")
		}
		assetParts := strings.SplitN(parts[1], ":", 2)
		address := strings.TrimSpace(assetParts[1])
		if !evmAddressPattern.MatchString(address) {
			return Asset{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid CAIP-19 asset format: %s", input))
		}
		addr := normalizeTokenAddress(address)
		token, _ := findTokenByAddress(chain.CAIP2, addr)
		return Asset{ChainID: chain.CAIP2, AssetID: canonicalAssetID(chain.CAIP2, addr), Address: addr, Symbol: token.Symbol, Decimals: token.Decimals}, nil
	}

	if evmAddressPattern.MatchString(raw) {
		addr := normalizeTokenAddress(raw)
		token, _ := findTokenByAddress(chain.CAIP2, addr)
		return Asset{ChainID: chain.CAIP2, AssetID: canonicalAssetID(chain.CAIP2, addr), Address: addr, Symbol: token.Symbol, Decimals: token.Decimals}, nil
	}

	matches := findTokensBySymbol(chain.CAIP2, raw)
	if len(matches) == 0 {
		return Asset{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("symbol %s not found in registry for chain %s", input, chain.CAIP2))
	}
	if len(matches) > 1 {
		addresses := make([]string, 0, len(matches))
		for _, m := range matches {
			addresses = append(addresses, m.Address)
		}
		sort.Strings(addresses)
		return Asset{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("symbol %s is ambiguous on chain %s, use address or CAIP-19 (%s)", input, chain.CAIP2, strings.Join(addresses, ", ")))
	}
	t := matches[0]
	addr := normalizeTokenAddress(t.Address)
	return Asset{
		ChainID:  chain.CAIP2,
		AssetID:  canonicalAssetID(chain.CAIP2, addr),
		Address:  addr,
		Symbol:   strings.ToUpper(t.Symbol),
		Decimals: t.Decimals,
	}, nil
}

func chainNamespace(caip2 string) string {
	parts := strings.SplitN(strings.TrimSpace(caip2), ":", 2)
	if len(parts) != 2 {
		return ""
	}
	return strings.ToLower(parts[0])
}

func canonicalAssetID(chainID, address string) string {
	return fmt.Sprintf("%s/erc20:%s", chainID, strings.ToLower(strings.TrimSpace(address)))
}

func normalizeTokenAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

func findTokenByAddress(chainID, address string) (Token, bool) {
	for _, t := range tokenRegistry[chainID] {
		if strings.EqualFold(t.Address, address) {
			return Token{
				Symbol:   strings.ToUpper(t.Symbol),
				Address:  normalizeTokenAddress(t.Address),
				Decimals: t.Decimals,
			}, true
		}
	}
	return Token{}, false
}

func findTokensBySymbol(chainID, symbol string) []Token {
	matches := []Token{}
	for _, t := range tokenRegistry[chainID] {
		if strings.EqualFold(t.Symbol, symbol) {
			matches = append(matches, Token{
				Symbol:   strings.ToUpper(t.Symbol),
				Address:  normalizeTokenAddress(t.Address),
				Decimals: t.Decimals,
			})
		}
	}
	return matches
}

func KnownToken(chainID, symbol string) (Token, bool) {
	matches := findTokensBySymbol(chainID, symbol)
	if len(matches) != 1 {
		return Token{}, false
	}
	return matches[0], true
}

func LookupByAddress(chainID, address string) (Token, bool) {
	return findTokenByAddress(chainID, normalizeTokenAddress(address))
}
