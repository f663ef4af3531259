package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	clierr "github.com/agentwallet-labs/gasless-cli/internal/errors"
	"github.com/agentwallet-labs/gasless-cli/internal/model"
	"github.com/agentwallet-labs/gasless-cli/internal/policy"
)

type actionSummary struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"schema,omitempty"`
}

func (s *runtimeState) newActionsCommand() *cobra.Command {
	root := &cobra.Command{Use: "actions", Short: "The agent-facing action catalog"}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			descriptors := s.session.registry.List()
			items := make([]actionSummary, 0, len(descriptors))
			for _, d := range descriptors {
				items = append(items, actionSummary{Name: d.Name, Description: d.Description})
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), items, nil, nil, false)
		},
	}
	root.AddCommand(listCmd)

	describeCmd := &cobra.Command{
		Use:   "describe <action>",
		Short: "Show an action's description and argument schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			desc, ok := s.session.registry.Get(args[0])
			if !ok {
				return clierr.New(clierr.CodeUsage, fmt.Sprintf("unknown action %q", args[0]))
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), actionSummary{
				Name:        desc.Name,
				Description: desc.Description,
				Schema:      json.RawMessage(desc.Schema),
			}, nil, nil, false)
		},
	}
	root.AddCommand(describeCmd)

	var argsJSON string
	runCmd := &cobra.Command{
		Use:   "run <action>",
		Short: "Run an action with JSON arguments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if err := policy.CheckActionAllowed(s.settings.EnableActions, name); err != nil {
				return err
			}
			var actionArgs map[string]any
			if argsJSON != "" {
				if err := json.Unmarshal([]byte(argsJSON), &actionArgs); err != nil {
					return clierr.Wrap(clierr.CodeUsage, "parse --args JSON", err)
				}
			}
			return s.runSubmitCommand(trimRootPath(cmd.CommandPath()), func(ctx context.Context) (any, []model.ServiceStatus, []string, bool, error) {
				result, err := s.session.registry.Dispatch(ctx, s.session.env(), name, actionArgs)
				if err != nil {
					return nil, nil, nil, false, err
				}
				return map[string]string{"action": name, "result": result}, nil, nil, false, nil
			})
		},
	}
	runCmd.Flags().StringVar(&argsJSON, "args", "", "Action arguments as a JSON object")
	root.AddCommand(runCmd)

	return root
}
