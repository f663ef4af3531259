package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	clierr "github.com/agentwallet-labs/gasless-cli/internal/errors"
	"github.com/agentwallet-labs/gasless-cli/internal/flows"
	"github.com/agentwallet-labs/gasless-cli/internal/id"
	"github.com/agentwallet-labs/gasless-cli/internal/model"
)

func (s *runtimeState) requireSessionAccount() error {
	if s.session == nil || s.session.account == nil {
		return clierr.New(clierr.CodeCapability, "no sponsored account configured; set sponsor.url and sponsor.api_key")
	}
	return nil
}

func (s *runtimeState) activeChain(override string) (id.Chain, error) {
	if strings.TrimSpace(override) != "" {
		return id.ParseChain(override)
	}
	return s.session.chain, nil
}

func (s *runtimeState) newAccountCommand() *cobra.Command {
	root := &cobra.Command{Use: "account", Short: "Sponsored account queries"}

	addressCmd := &cobra.Command{
		Use:   "address",
		Short: "Print the sponsored account address",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.requireSessionAccount(); err != nil {
				return err
			}
			return s.runCommand(trimRootPath(cmd.CommandPath()), func(ctx context.Context) (any, []model.ServiceStatus, []string, bool, error) {
				start := time.Now()
				addr, err := s.session.account.Address(ctx)
				status := []model.ServiceStatus{{Name: "sponsor", Status: statusFromErr(err), LatencyMS: time.Since(start).Milliseconds()}}
				if err != nil {
					return nil, status, nil, false, err
				}
				return map[string]string{"address": addr.Hex()}, status, nil, false, nil
			})
		},
	}
	root.AddCommand(addressCmd)

	var tokensArg string
	var chainArg string
	balancesCmd := &cobra.Command{
		Use:   "balances",
		Short: "List token balances held by the account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.requireSessionAccount(); err != nil {
				return err
			}
			chain, err := s.activeChain(chainArg)
			if err != nil {
				return err
			}

			symbols := splitCSV(tokensArg)
			if len(symbols) == 0 {
				symbols = []string{strings.ToLower(chain.NativeSym), "usdc", "usdt", "dai", "weth"}
			}
			var tokens []common.Address
			labels := map[common.Address]string{}
			for _, sym := range symbols {
				asset, err := id.ParseAsset(sym, chain)
				if err != nil {
					continue
				}
				addr := common.HexToAddress(asset.Address)
				tokens = append(tokens, addr)
				labels[addr] = asset.Symbol
			}
			if len(tokens) == 0 {
				return clierr.New(clierr.CodeUsage, "none of the requested tokens resolve on the selected chain")
			}

			return s.runCommand(trimRootPath(cmd.CommandPath()), func(ctx context.Context) (any, []model.ServiceStatus, []string, bool, error) {
				start := time.Now()
				balances, err := s.session.account.Balances(ctx, tokens)
				status := []model.ServiceStatus{{Name: "sponsor", Status: statusFromErr(err), LatencyMS: time.Since(start).Milliseconds()}}
				if err != nil {
					return nil, status, nil, false, err
				}
				items := make([]model.Balance, 0, len(balances))
				for _, b := range balances {
					symbol := b.Symbol
					if symbol == "" {
						symbol = labels[b.Token]
					}
					items = append(items, model.Balance{TokenAddress: b.Token.Hex(), Symbol: symbol, AmountDecimal: b.AmountDecimal})
				}
				return items, status, nil, false, nil
			})
		},
	}
	balancesCmd.Flags().StringVar(&tokensArg, "tokens", "", "Token symbols or addresses (comma-separated)")
	balancesCmd.Flags().StringVar(&chainArg, "chain", "", "Chain override")
	root.AddCommand(balancesCmd)

	return root
}

func (s *runtimeState) newTransferCommand() *cobra.Command {
	var tokenArg, toArg, amountArg, chainArg string
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Send a native or ERC-20 amount with gas sponsored",
		RunE: func(cmd *cobra.Command, args []string) error {
			chain, err := s.activeChain(chainArg)
			if err != nil {
				return err
			}
			asset, err := id.ParseAsset(tokenArg, chain)
			if err != nil {
				return err
			}
			return s.runSubmitCommand(trimRootPath(cmd.CommandPath()), func(ctx context.Context) (any, []model.ServiceStatus, []string, bool, error) {
				start := time.Now()
				res, err := s.session.flows.Transfer(ctx, flows.TransferParams{
					Chain:         chain,
					Asset:         asset,
					Recipient:     toArg,
					AmountDecimal: amountArg,
				})
				status := []model.ServiceStatus{{Name: "sponsor", Status: statusFromErr(err), LatencyMS: time.Since(start).Milliseconds()}}
				if err != nil {
					return nil, status, nil, false, err
				}
				return res, status, nil, false, nil
			})
		},
	}
	cmd.Flags().StringVar(&tokenArg, "token", "", "Asset to send (symbol, address, or CAIP-19)")
	cmd.Flags().StringVar(&toArg, "to", "", "Recipient address")
	cmd.Flags().StringVar(&amountArg, "amount", "", "Decimal amount to send")
	cmd.Flags().StringVar(&chainArg, "chain", "", "Chain override")
	_ = cmd.MarkFlagRequired("token")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func (s *runtimeState) newDisperseCommand() *cobra.Command {
	var tokenArg, chainArg, recipientsArg, recipientsFile string
	cmd := &cobra.Command{
		Use:   "disperse",
		Short: "Send one token to many recipients in sponsored transfers",
		RunE: func(cmd *cobra.Command, args []string) error {
			chain, err := s.activeChain(chainArg)
			if err != nil {
				return err
			}
			asset, err := id.ParseAsset(tokenArg, chain)
			if err != nil {
				return err
			}
			recipients, err := loadDisperseRecipients(recipientsArg, recipientsFile)
			if err != nil {
				return err
			}
			return s.runSubmitCommand(trimRootPath(cmd.CommandPath()), func(ctx context.Context) (any, []model.ServiceStatus, []string, bool, error) {
				start := time.Now()
				res, err := s.session.flows.Disperse(ctx, flows.DisperseParams{Chain: chain, Asset: asset, Recipients: recipients})
				status := []model.ServiceStatus{{Name: "sponsor", Status: statusFromErr(err), LatencyMS: time.Since(start).Milliseconds()}}
				if err != nil {
					return nil, status, nil, false, err
				}
				partial := res.Failed > 0 && res.Submitted > 0
				var warnings []string
				if res.Failed > 0 {
					warnings = append(warnings, fmt.Sprintf("%d of %d transfers failed and can be retried individually", res.Failed, res.Requested))
				}
				return res, status, warnings, partial, nil
			})
		},
	}
	cmd.Flags().StringVar(&tokenArg, "token", "", "Asset to send (symbol, address, or CAIP-19)")
	cmd.Flags().StringVar(&chainArg, "chain", "", "Chain override")
	cmd.Flags().StringVar(&recipientsArg, "recipients", "", `Recipients as JSON, e.g. [{"address":"0x..","amount":"1.5"}]`)
	cmd.Flags().StringVar(&recipientsFile, "recipients-file", "", "Path to a JSON file with recipients")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

func loadDisperseRecipients(inline, file string) ([]flows.DisperseRecipient, error) {
	raw := strings.TrimSpace(inline)
	if raw == "" && strings.TrimSpace(file) != "" {
		buf, err := os.ReadFile(file)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "read recipients file", err)
		}
		raw = string(buf)
	}
	if raw == "" {
		return nil, clierr.New(clierr.CodeUsage, "either --recipients or --recipients-file is required")
	}
	var recipients []flows.DisperseRecipient
	if err := json.Unmarshal([]byte(raw), &recipients); err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "parse recipients JSON", err)
	}
	return recipients, nil
}

func splitCSV(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		norm := strings.ToLower(strings.TrimSpace(part))
		if norm != "" {
			out = append(out, norm)
		}
	}
	return out
}
