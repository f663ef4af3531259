package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/agentwallet-labs/gasless-cli/internal/actions"
	clierr "github.com/agentwallet-labs/gasless-cli/internal/errors"
	"github.com/agentwallet-labs/gasless-cli/internal/policy"
	"github.com/agentwallet-labs/gasless-cli/internal/version"
)

// newServeCommand exposes the action catalog over MCP so agents can call it
// as tools instead of shelling out. Errors become tool error results, not
// protocol failures; the connection stays usable after a failed call.
func (s *runtimeState) newServeCommand() *cobra.Command {
	var httpAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the action catalog over MCP (stdio by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			srv := server.NewMCPServer(version.CLIName, version.CLIVersion)
			for _, desc := range s.session.registry.List() {
				srv.AddTool(
					mcp.NewToolWithRawSchema(desc.Name, desc.Description, json.RawMessage(desc.Schema)),
					s.newToolHandler(desc),
				)
			}

			if httpAddr != "" {
				s.session.log.Info("serving MCP over streamable HTTP", "addr", httpAddr)
				if err := server.NewStreamableHTTPServer(srv).Start(httpAddr); err != nil {
					return clierr.Wrap(clierr.CodeInternal, "serve MCP over HTTP", err)
				}
				return nil
			}
			if err := server.ServeStdio(srv); err != nil {
				return clierr.Wrap(clierr.CodeInternal, "serve MCP over stdio", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&httpAddr, "http", "", "Serve over streamable HTTP on this address instead of stdio")
	return cmd
}

func (s *runtimeState) newToolHandler(desc actions.Descriptor) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := policy.CheckActionAllowed(s.settings.EnableActions, desc.Name); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		result, err := s.session.registry.Dispatch(ctx, s.session.env(), desc.Name, request.GetArguments())
		if err != nil {
			message := err.Error()
			if cErr, ok := clierr.As(err); ok {
				message = fmt.Sprintf("%s (%s)", cErr.Message, errorType(cErr.Code))
			}
			return mcp.NewToolResultError(message), nil
		}
		return mcp.NewToolResultText(result), nil
	}
}
