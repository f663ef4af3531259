package app

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentwallet-labs/gasless-cli/internal/account"
	clierr "github.com/agentwallet-labs/gasless-cli/internal/errors"
	"github.com/agentwallet-labs/gasless-cli/internal/model"
	"github.com/agentwallet-labs/gasless-cli/internal/submit"
)

func (s *runtimeState) requireBundler() error {
	if s.session == nil || s.session.bundler == nil {
		return clierr.New(clierr.CodeCapability, "no bundler endpoint configured; set bundler.url")
	}
	return nil
}

func (s *runtimeState) recordOperationStatus(handle string, status submit.Status) {
	if s.session.journal == nil || status.State == submit.StatePending {
		return
	}
	if err := s.session.journal.UpdateStatus(handle, status); err != nil {
		s.session.log.Warn("journal status update failed", "operation", handle, "err", err)
	}
}

func (s *runtimeState) newOpsCommand() *cobra.Command {
	root := &cobra.Command{Use: "ops", Short: "Operation tracking"}

	statusCmd := &cobra.Command{
		Use:   "status <operation>",
		Short: "Check once whether an operation confirmed, failed, or is pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.requireBundler(); err != nil {
				return err
			}
			handle := args[0]
			return s.runCommand(trimRootPath(cmd.CommandPath()), func(ctx context.Context) (any, []model.ServiceStatus, []string, bool, error) {
				start := time.Now()
				tracker := submit.NewTracker(s.session.bundler, account.OperationHandle(handle), submit.DefaultParams(), s.session.log)
				status, _ := tracker.Poll(ctx)
				s.recordOperationStatus(handle, status)
				svc := []model.ServiceStatus{{Name: "bundler", Status: "ok", LatencyMS: time.Since(start).Milliseconds()}}
				return map[string]any{"operation": handle, "status": status}, svc, nil, false, nil
			})
		},
	}
	root.AddCommand(statusCmd)

	var confirmations int
	var maxDuration, interval time.Duration
	waitCmd := &cobra.Command{
		Use:   "wait <operation>",
		Short: "Wait for an operation to reach a confirmation depth",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.requireBundler(); err != nil {
				return err
			}
			handle := args[0]
			params := submit.Params{Confirmations: confirmations, MaxDuration: maxDuration, Interval: interval}
			return s.runSubmitCommand(trimRootPath(cmd.CommandPath()), func(ctx context.Context) (any, []model.ServiceStatus, []string, bool, error) {
				start := time.Now()
				status := submit.NewTracker(s.session.bundler, account.OperationHandle(handle), params, s.session.log).Wait(ctx)
				s.recordOperationStatus(handle, status)
				svc := []model.ServiceStatus{{Name: "bundler", Status: "ok", LatencyMS: time.Since(start).Milliseconds()}}
				var warnings []string
				// A pending answer after the budget elapses is final and
				// successful; the handle stays valid for later checks.
				if status.State == submit.StatePending {
					warnings = append(warnings, "operation still pending; re-check later with ops status")
				}
				return map[string]any{"operation": handle, "status": status}, svc, warnings, false, nil
			})
		},
	}
	waitCmd.Flags().IntVar(&confirmations, "confirmations", 0, "Confirmation depth to wait for")
	waitCmd.Flags().DurationVar(&maxDuration, "max-duration", 0, "Waiting budget (default 30s)")
	waitCmd.Flags().DurationVar(&interval, "interval", 0, "Poll interval (default 5s)")
	root.AddCommand(waitCmd)

	var listStatus string
	var listLimit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List journaled operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if s.session.journal == nil {
				return clierr.New(clierr.CodeCapability, "the operation journal is disabled; remove --no-journal or journal.enabled: false")
			}
			return s.runCommand(trimRootPath(cmd.CommandPath()), func(ctx context.Context) (any, []model.ServiceStatus, []string, bool, error) {
				records, err := s.session.journal.List(listStatus, listLimit)
				if err != nil {
					return nil, nil, nil, false, err
				}
				return records, nil, nil, false, nil
			})
		},
	}
	listCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status (pending|confirmed|failed)")
	listCmd.Flags().IntVar(&listLimit, "limit", 20, "Maximum records to return")
	root.AddCommand(listCmd)

	return root
}
