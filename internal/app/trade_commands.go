package app

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/agentwallet-labs/gasless-cli/internal/allowance"
	clierr "github.com/agentwallet-labs/gasless-cli/internal/errors"
	"github.com/agentwallet-labs/gasless-cli/internal/flows"
	"github.com/agentwallet-labs/gasless-cli/internal/id"
	"github.com/agentwallet-labs/gasless-cli/internal/model"
)

func (s *runtimeState) newSwapCommand() *cobra.Command {
	var fromArg, toArg, amountArg, chainArg string
	var slippageBps int64
	var approveMax, estimateOnly bool
	cmd := &cobra.Command{
		Use:   "swap",
		Short: "Swap one token for another on the same chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			chain, err := s.activeChain(chainArg)
			if err != nil {
				return err
			}
			fromAsset, err := id.ParseAsset(fromArg, chain)
			if err != nil {
				return err
			}
			toAsset, err := id.ParseAsset(toArg, chain)
			if err != nil {
				return err
			}
			return s.runSubmitCommand(trimRootPath(cmd.CommandPath()), func(ctx context.Context) (any, []model.ServiceStatus, []string, bool, error) {
				start := time.Now()
				res, err := s.session.flows.Swap(ctx, flows.SwapParams{
					Chain:         chain,
					FromAsset:     fromAsset,
					ToAsset:       toAsset,
					AmountDecimal: amountArg,
					SlippageBps:   slippageBps,
					ApproveMax:    approveMax,
					EstimateOnly:  estimateOnly,
				})
				status := []model.ServiceStatus{{Name: "swap", Status: statusFromErr(err), LatencyMS: time.Since(start).Milliseconds()}}
				if err != nil {
					return nil, status, nil, false, err
				}
				var warnings []string
				if !res.Submitted && res.Note != "" {
					warnings = append(warnings, res.Note)
				}
				return res, status, warnings, false, nil
			})
		},
	}
	cmd.Flags().StringVar(&fromArg, "from", "", "Input asset")
	cmd.Flags().StringVar(&toArg, "to", "", "Output asset")
	cmd.Flags().StringVar(&amountArg, "amount", "", "Decimal amount of the input asset")
	cmd.Flags().StringVar(&chainArg, "chain", "", "Chain override")
	cmd.Flags().Int64Var(&slippageBps, "slippage-bps", 0, "Max slippage in basis points")
	cmd.Flags().BoolVar(&approveMax, "approve-max", false, "Grant an unlimited allowance when approving")
	cmd.Flags().BoolVar(&estimateOnly, "estimate-only", false, "Quote without submitting")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func (s *runtimeState) newBridgeCommand() *cobra.Command {
	var fromChainArg, toChainArg, fromArg, toArg, amountArg, recipientArg string
	var slippageBps int64
	var approveMax, skipNativeFee, estimateOnly bool
	cmd := &cobra.Command{
		Use:   "bridge",
		Short: "Move a token to another chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			fromChain, err := s.activeChain(fromChainArg)
			if err != nil {
				return err
			}
			toChain, err := id.ParseChain(toChainArg)
			if err != nil {
				return err
			}
			fromAsset, err := id.ParseAsset(fromArg, fromChain)
			if err != nil {
				return err
			}
			toAsset, err := id.ParseAsset(toArg, toChain)
			if err != nil {
				return err
			}
			return s.runSubmitCommand(trimRootPath(cmd.CommandPath()), func(ctx context.Context) (any, []model.ServiceStatus, []string, bool, error) {
				start := time.Now()
				res, err := s.session.flows.Bridge(ctx, flows.BridgeParams{
					FromChain:     fromChain,
					ToChain:       toChain,
					FromAsset:     fromAsset,
					ToAsset:       toAsset,
					AmountDecimal: amountArg,
					Recipient:     recipientArg,
					SlippageBps:   slippageBps,
					ApproveMax:    approveMax,
					SkipNativeFee: skipNativeFee,
					EstimateOnly:  estimateOnly,
				})
				status := []model.ServiceStatus{{Name: "bridge", Status: statusFromErr(err), LatencyMS: time.Since(start).Milliseconds()}}
				if err != nil {
					return nil, status, nil, false, err
				}
				return res, status, res.Warnings, false, nil
			})
		},
	}
	cmd.Flags().StringVar(&fromChainArg, "from-chain", "", "Source chain")
	cmd.Flags().StringVar(&toChainArg, "to-chain", "", "Destination chain")
	cmd.Flags().StringVar(&fromArg, "from", "", "Input asset on the source chain")
	cmd.Flags().StringVar(&toArg, "to", "", "Output asset on the destination chain")
	cmd.Flags().StringVar(&amountArg, "amount", "", "Decimal amount of the input asset")
	cmd.Flags().StringVar(&recipientArg, "recipient", "", "Destination recipient (defaults to the account)")
	cmd.Flags().Int64Var(&slippageBps, "slippage-bps", 0, "Max slippage in basis points")
	cmd.Flags().BoolVar(&approveMax, "approve-max", false, "Grant an unlimited allowance when approving")
	cmd.Flags().BoolVar(&skipNativeFee, "skip-native-fee", false, "Strip the native protocol fee from the transaction")
	cmd.Flags().BoolVar(&estimateOnly, "estimate-only", false, "Quote without submitting")
	_ = cmd.MarkFlagRequired("to-chain")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func (s *runtimeState) newAllowanceCommand() *cobra.Command {
	root := &cobra.Command{Use: "allowance", Short: "ERC-20 allowance queries and approvals"}

	var checkToken, checkSpender, checkChain string
	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Read the current allowance granted to a spender",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.requireSessionAccount(); err != nil {
				return err
			}
			if s.session.reader == nil {
				return clierr.New(clierr.CodeCapability, "no chain RPC configured; set rpc_url or choose a known chain")
			}
			chain, err := s.activeChain(checkChain)
			if err != nil {
				return err
			}
			asset, err := id.ParseAsset(checkToken, chain)
			if err != nil {
				return err
			}
			if asset.Native {
				return clierr.New(clierr.CodeUsage, fmt.Sprintf("%s is the native asset and has no allowance", asset.Symbol))
			}
			if !common.IsHexAddress(checkSpender) {
				return clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid spender address %q", checkSpender))
			}
			return s.runCommand(trimRootPath(cmd.CommandPath()), func(ctx context.Context) (any, []model.ServiceStatus, []string, bool, error) {
				start := time.Now()
				owner, err := s.session.account.Address(ctx)
				if err != nil {
					return nil, nil, nil, false, err
				}
				current, err := s.session.reader.TokenAllowance(ctx, common.HexToAddress(asset.Address), owner, common.HexToAddress(checkSpender))
				status := []model.ServiceStatus{{Name: "rpc", Status: statusFromErr(err), LatencyMS: time.Since(start).Milliseconds()}}
				if err != nil {
					return nil, status, nil, false, err
				}
				data := map[string]any{
					"token":     asset.AssetID,
					"owner":     owner.Hex(),
					"spender":   common.HexToAddress(checkSpender).Hex(),
					"allowance": current.String(),
					"unlimited": current.Cmp(allowance.MaxUint256) == 0,
				}
				if asset.Decimals > 0 {
					data["allowance_decimal"] = id.FormatDecimalCompat(current.String(), asset.Decimals)
				}
				return data, status, nil, false, nil
			})
		},
	}
	checkCmd.Flags().StringVar(&checkToken, "token", "", "ERC-20 token (symbol, address, or CAIP-19)")
	checkCmd.Flags().StringVar(&checkSpender, "spender", "", "Spender contract address")
	checkCmd.Flags().StringVar(&checkChain, "chain", "", "Chain override")
	_ = checkCmd.MarkFlagRequired("token")
	_ = checkCmd.MarkFlagRequired("spender")
	root.AddCommand(checkCmd)

	var approveToken, approveSpender, approveAmount, approveChain string
	var approveMax, wait bool
	approveCmd := &cobra.Command{
		Use:   "approve",
		Short: "Grant an ERC-20 allowance through a sponsored approval",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.requireSessionAccount(); err != nil {
				return err
			}
			if s.session.allowances == nil {
				return clierr.New(clierr.CodeCapability, "allowance management needs rpc_url and bundler.url configured")
			}
			chain, err := s.activeChain(approveChain)
			if err != nil {
				return err
			}
			asset, err := id.ParseAsset(approveToken, chain)
			if err != nil {
				return err
			}
			if !common.IsHexAddress(approveSpender) {
				return clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid spender address %q", approveSpender))
			}

			var required *big.Int
			if approveAmount != "" {
				decimals := asset.Decimals
				if decimals == 0 {
					decimals = 18
				}
				required, err = id.DecimalToBase(approveAmount, decimals)
				if err != nil {
					return err
				}
			} else if approveMax {
				required = new(big.Int).Set(allowance.MaxUint256)
			} else {
				return clierr.New(clierr.CodeUsage, "--amount is required unless --approve-max is set")
			}

			return s.runSubmitCommand(trimRootPath(cmd.CommandPath()), func(ctx context.Context) (any, []model.ServiceStatus, []string, bool, error) {
				start := time.Now()
				var res allowance.Result
				if wait {
					res, err = s.session.allowances.EnsureConfirmed(ctx, s.session.account,
						common.HexToAddress(asset.Address), common.HexToAddress(approveSpender), required, approveMax, s.session.flows.Wait)
				} else {
					res, err = s.session.allowances.Ensure(ctx, s.session.account,
						common.HexToAddress(asset.Address), common.HexToAddress(approveSpender), required, approveMax)
				}
				status := []model.ServiceStatus{{Name: "sponsor", Status: statusFromErr(err), LatencyMS: time.Since(start).Milliseconds()}}
				if err != nil {
					return nil, status, nil, false, err
				}
				return res, status, nil, false, nil
			})
		},
	}
	approveCmd.Flags().StringVar(&approveToken, "token", "", "ERC-20 token (symbol, address, or CAIP-19)")
	approveCmd.Flags().StringVar(&approveSpender, "spender", "", "Spender contract address")
	approveCmd.Flags().StringVar(&approveAmount, "amount", "", "Decimal amount to approve")
	approveCmd.Flags().StringVar(&approveChain, "chain", "", "Chain override")
	approveCmd.Flags().BoolVar(&approveMax, "approve-max", false, "Grant an unlimited allowance")
	approveCmd.Flags().BoolVar(&wait, "wait", false, "Wait for the approval to confirm")
	_ = approveCmd.MarkFlagRequired("token")
	_ = approveCmd.MarkFlagRequired("spender")
	root.AddCommand(approveCmd)

	return root
}
