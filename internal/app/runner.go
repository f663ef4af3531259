package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/agentwallet-labs/gasless-cli/internal/account"
	"github.com/agentwallet-labs/gasless-cli/internal/actions"
	"github.com/agentwallet-labs/gasless-cli/internal/allowance"
	"github.com/agentwallet-labs/gasless-cli/internal/config"
	clierr "github.com/agentwallet-labs/gasless-cli/internal/errors"
	"github.com/agentwallet-labs/gasless-cli/internal/flows"
	"github.com/agentwallet-labs/gasless-cli/internal/httpx"
	"github.com/agentwallet-labs/gasless-cli/internal/id"
	"github.com/agentwallet-labs/gasless-cli/internal/model"
	"github.com/agentwallet-labs/gasless-cli/internal/out"
	"github.com/agentwallet-labs/gasless-cli/internal/policy"
	"github.com/agentwallet-labs/gasless-cli/internal/providers/debridge"
	"github.com/agentwallet-labs/gasless-cli/internal/providers/lifi"
	"github.com/agentwallet-labs/gasless-cli/internal/registry"
	"github.com/agentwallet-labs/gasless-cli/internal/schema"
	"github.com/agentwallet-labs/gasless-cli/internal/submit"
	"github.com/agentwallet-labs/gasless-cli/internal/version"
)

type Runner struct {
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time
}

func NewRunner() *Runner {
	return NewRunnerWithWriters(os.Stdout, os.Stderr)
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return &Runner{
		stdout: stdout,
		stderr: stderr,
		now:    time.Now,
	}
}

// session holds the wired capabilities for one invocation. Fields stay nil
// when the configuration does not provide the underlying service.
type session struct {
	chain      id.Chain
	log        log.Logger
	account    account.SmartAccount
	reader     *account.Reader
	bundler    *submit.Bundler
	journal    *submit.Journal
	submitter  *submit.Submitter
	allowances *allowance.Manager
	flows      *flows.Orchestrator
	registry   *actions.Registry
}

func (s *session) env() actions.Env {
	env := actions.Env{
		Account:    s.account,
		Flows:      s.flows,
		Allowances: s.allowances,
		Journal:    s.journal,
		Chain:      s.chain,
		Log:        s.log,
	}
	if s.reader != nil {
		env.Reader = s.reader
	}
	if s.bundler != nil {
		env.Receipts = s.bundler
	}
	return env
}

func (s *session) close() {
	if s.journal != nil {
		_ = s.journal.Close()
	}
	if s.bundler != nil {
		s.bundler.Close()
	}
}

type runtimeState struct {
	runner       *Runner
	flags        config.GlobalFlags
	settings     config.Settings
	session      *session
	root         *cobra.Command
	lastCommand  string
	lastWarnings []string
	lastServices []model.ServiceStatus
	lastPartial  bool
}

func (r *Runner) Run(args []string) int {
	state := &runtimeState{runner: r}
	root := state.newRootCommand()
	state.root = root
	state.resetCommandDiagnostics()
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := root.Execute()
	err = normalizeRunError(err)
	if state.session != nil {
		state.session.close()
	}
	if err == nil {
		return 0
	}

	state.renderError("", err, state.lastWarnings, state.lastServices, state.lastPartial)
	return clierr.ExitCode(err)
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Agent-first gasless value movement CLI",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "load configuration", err)
			}
			s.settings = settings

			path := trimRootPath(cmd.CommandPath())
			s.lastCommand = path
			if isValueMovingPath(path) {
				if err := policy.CheckActionAllowed(settings.EnableActions, commandAction(path)); err != nil {
					return err
				}
			}

			if s.session == nil && needsSession(path) {
				sess, err := buildSession(cmd.Context(), settings, s.runner.stderr)
				if err != nil {
					return err
				}
				s.session = sess
			}
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.CodeUsage, "parse flags", err)
	})

	cmd.PersistentFlags().BoolVar(&s.flags.JSON, "json", false, "Output JSON (default)")
	cmd.PersistentFlags().BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	cmd.PersistentFlags().StringVar(&s.flags.Select, "select", "", "Select fields from data (comma-separated)")
	cmd.PersistentFlags().BoolVar(&s.flags.ResultsOnly, "results-only", false, "Output only data payload")
	cmd.PersistentFlags().StringVar(&s.flags.EnableActions, "enable-actions", "", "Allowlist value-moving actions (comma-separated)")
	cmd.PersistentFlags().BoolVar(&s.flags.Strict, "strict", false, "Fail on partial results")
	cmd.PersistentFlags().StringVar(&s.flags.Timeout, "timeout", "", "Service request timeout")
	cmd.PersistentFlags().IntVar(&s.flags.Retries, "retries", -1, "Retries per service request")
	cmd.PersistentFlags().StringVar(&s.flags.Chain, "chain", "", "Default chain (slug, numeric id, or CAIP-2)")
	cmd.PersistentFlags().StringVar(&s.flags.RPCURL, "rpc-url", "", "Chain RPC endpoint")
	cmd.PersistentFlags().StringVar(&s.flags.SponsorURL, "sponsor-url", "", "Sponsor relay base URL")
	cmd.PersistentFlags().StringVar(&s.flags.BundlerURL, "bundler-url", "", "Bundler JSON-RPC endpoint")
	cmd.PersistentFlags().BoolVar(&s.flags.NoJournal, "no-journal", false, "Disable the local operation journal")
	cmd.PersistentFlags().BoolVar(&s.flags.Verbose, "verbose", false, "Log wiring and submission details to stderr")
	cmd.PersistentFlags().StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")

	cmd.AddCommand(s.newSchemaCommand())
	cmd.AddCommand(s.newActionsCommand())
	cmd.AddCommand(s.newAccountCommand())
	cmd.AddCommand(s.newTransferCommand())
	cmd.AddCommand(s.newSwapCommand())
	cmd.AddCommand(s.newBridgeCommand())
	cmd.AddCommand(s.newDisperseCommand())
	cmd.AddCommand(s.newAllowanceCommand())
	cmd.AddCommand(s.newOpsCommand())
	cmd.AddCommand(s.newServeCommand())
	cmd.AddCommand(newVersionCommand())
	markSubmittingCommands(cmd)

	return cmd
}

// markSubmittingCommands annotates every command whose path is gated by the
// action policy, so the schema output tells agents which commands move value.
func markSubmittingCommands(cmd *cobra.Command) {
	path := trimRootPath(cmd.CommandPath())
	if isValueMovingPath(path) {
		if cmd.Annotations == nil {
			cmd.Annotations = map[string]string{}
		}
		cmd.Annotations["submits"] = "true"
	}
	for _, sub := range cmd.Commands() {
		markSubmittingCommands(sub)
	}
}

// buildSession wires every capability the configuration supports. A partial
// configuration is normal: read-only invocations work without a sponsor, and
// quoting works without an RPC endpoint.
func buildSession(ctx context.Context, settings config.Settings, logOut io.Writer) (*session, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := log.NewLogger(log.DiscardHandler())
	if settings.Verbose {
		logger = log.NewLogger(log.NewTerminalHandlerWithLevel(logOut, log.LevelDebug, false))
	}

	chain, err := id.ParseChain(settings.Chain)
	if err != nil {
		return nil, err
	}

	sess := &session{chain: chain, log: logger}
	httpClient := httpx.New(settings.Timeout, settings.Retries)

	if settings.SponsorURL != "" && settings.SponsorAPIKey != "" {
		sess.account = account.NewRelayAccount(httpClient, settings.SponsorURL, settings.SponsorAPIKey, account.RelayOptions{
			Address: settings.AccountAddress,
			Logger:  logger,
		})
	}

	if rpcURL, rpcErr := registry.ResolveRPCURL(settings.RPCURL, chain.EVMChainID); rpcErr == nil && rpcURL != "" {
		reader, err := account.Dial(ctx, rpcURL)
		if err != nil {
			logger.Warn("chain RPC unavailable", "url", rpcURL, "err", err)
		} else {
			sess.reader = reader
		}
	}

	if settings.BundlerURL != "" {
		bundler, err := submit.DialBundler(ctx, settings.BundlerURL)
		if err != nil {
			logger.Warn("bundler unavailable", "url", settings.BundlerURL, "err", err)
		} else {
			sess.bundler = bundler
		}
	}

	if settings.JournalEnabled {
		journal, err := submit.OpenJournal(settings.JournalPath, settings.JournalLockPath)
		if err != nil {
			logger.Warn("operation journal unavailable", "path", settings.JournalPath, "err", err)
		} else {
			sess.journal = journal
		}
	}

	sess.submitter = submit.NewSubmitter(sess.journal, logger)
	if sess.reader != nil && sess.bundler != nil {
		sess.allowances = allowance.NewManager(sess.reader, sess.submitter, sess.bundler, logger)
	}

	orch := flows.Orchestrator{
		Account:     sess.account,
		Submitter:   sess.submitter,
		Allowances:  sess.allowances,
		Swaps:       lifi.New(httpClient).WithBaseURL(settings.SwapBaseURL),
		Bridges:     debridge.New(httpClient).WithBaseURL(settings.BridgeBaseURL),
		Log:         logger,
		SlippageBps: settings.SlippageBps,
		Wait: submit.Params{
			Confirmations: settings.Confirmations,
			MaxDuration:   settings.WaitMaxDuration,
			Interval:      settings.WaitInterval,
		},
	}
	if sess.reader != nil {
		orch.Reader = sess.reader
	}
	if sess.bundler != nil {
		orch.Receipts = sess.bundler
	}
	sess.flows = flows.New(orch)

	sess.registry = actions.NewRegistry()
	if err := actions.RegisterBuiltin(sess.registry); err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "register action catalog", err)
	}
	return sess, nil
}

func needsSession(commandPath string) bool {
	switch normalizeCommandPath(commandPath) {
	case "", "version", "schema":
		return false
	default:
		return true
	}
}

// isValueMovingPath gates the commands that submit sponsored operations.
// Read-only commands are never blocked by the allowlist.
func isValueMovingPath(commandPath string) bool {
	switch commandAction(commandPath) {
	case "transfer", "smart_swap", "smart_bridge", "disperse", "approve_token":
		return true
	default:
		return false
	}
}

// commandAction maps a command path onto the action name the allowlist uses,
// so one policy covers CLI, actions run, and MCP invocations.
func commandAction(commandPath string) string {
	switch normalizeCommandPath(commandPath) {
	case "transfer":
		return "transfer"
	case "swap":
		return "smart_swap"
	case "bridge":
		return "smart_bridge"
	case "disperse":
		return "disperse"
	case "allowance approve":
		return "approve_token"
	default:
		return normalizeCommandPath(commandPath)
	}
}

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.CLIVersion)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}

func (s *runtimeState) newSchemaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema [command path]",
		Short: "Print machine-readable command schema",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) > 0 {
				path = strings.Join(args, " ")
			}
			data, err := schema.Build(s.root, path)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "build schema", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil, nil, false)
		},
	}
	return cmd
}

type fetchFn func(ctx context.Context) (data any, services []model.ServiceStatus, warnings []string, partial bool, err error)

func (s *runtimeState) runCommand(commandPath string, fetch fetchFn) error {
	s.resetCommandDiagnostics()

	ctx, cancel := context.WithTimeout(context.Background(), s.settings.Timeout)
	defer cancel()
	data, services, warnings, partial, err := fetch(ctx)
	s.captureCommandDiagnostics(warnings, services, partial)
	if err != nil {
		return err
	}

	if partial && s.settings.Strict {
		return clierr.New(clierr.CodePartialStrict, "partial results returned in strict mode")
	}
	return s.emitSuccess(commandPath, data, warnings, services, partial)
}

// runSubmitCommand is runCommand without the flag timeout: confirmation
// waits have their own budget and must not be cut short by the HTTP timeout.
func (s *runtimeState) runSubmitCommand(commandPath string, fetch fetchFn) error {
	s.resetCommandDiagnostics()
	data, services, warnings, partial, err := fetch(context.Background())
	s.captureCommandDiagnostics(warnings, services, partial)
	if err != nil {
		return err
	}
	return s.emitSuccess(commandPath, data, warnings, services, partial)
}

func (s *runtimeState) emitSuccess(commandPath string, data any, warnings []string, services []model.ServiceStatus, partial bool) error {
	env := model.Envelope{
		Version:  model.EnvelopeVersion,
		Success:  true,
		Data:     data,
		Error:    nil,
		Warnings: warnings,
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Services:  services,
			Partial:   partial,
		},
	}
	return out.Render(s.runner.stdout, env, s.settings)
}

func (s *runtimeState) renderError(commandPath string, err error, warnings []string, services []model.ServiceStatus, partial bool) {
	if strings.TrimSpace(commandPath) == "" {
		commandPath = s.lastCommand
		if commandPath == "" {
			commandPath = version.CLIName
		}
	}
	code := clierr.ExitCode(err)
	typ := "internal_error"
	message := err.Error()
	if cErr, ok := clierr.As(err); ok {
		message = cErr.Message
		if cErr.Cause != nil {
			message = fmt.Sprintf("%s: %v", cErr.Message, cErr.Cause)
		}
		typ = errorType(cErr.Code)
	}

	settings := s.settings
	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	settings.ResultsOnly = false
	settings.SelectFields = nil
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Data:    []any{},
		Error: &model.ErrorBody{
			Code:    code,
			Type:    typ,
			Message: message,
		},
		Warnings: warnings,
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Services:  services,
			Partial:   partial,
		},
	}
	_ = out.Render(s.runner.stderr, env, settings)
}

func errorType(code clierr.Code) string {
	switch code {
	case clierr.CodeUsage:
		return "usage_error"
	case clierr.CodeAuth:
		return "auth_error"
	case clierr.CodeRateLimited:
		return "rate_limited"
	case clierr.CodeUnavailable:
		return "service_unavailable"
	case clierr.CodeUnsupported:
		return "unsupported"
	case clierr.CodePartialStrict:
		return "partial_results"
	case clierr.CodeBlocked:
		return "action_blocked"
	case clierr.CodeCapability:
		return "capability_missing"
	case clierr.CodeSponsorRejected:
		return "sponsor_rejected"
	case clierr.CodeChainRevert:
		return "chain_revert"
	case clierr.CodeTimeout:
		return "confirmation_timeout"
	case clierr.CodeQuoteIncomplete:
		return "quote_incomplete"
	default:
		return "internal_error"
	}
}

func statusFromErr(err error) string {
	if err == nil {
		return "ok"
	}
	if cErr, ok := clierr.As(err); ok {
		switch cErr.Code {
		case clierr.CodeAuth:
			return "auth_error"
		case clierr.CodeRateLimited:
			return "rate_limited"
		case clierr.CodeUnavailable:
			return "unavailable"
		default:
			return "error"
		}
	}
	return "error"
}

func newRequestID() string {
	return uuid.NewString()
}

func trimRootPath(path string) string {
	parts := strings.Fields(path)
	if len(parts) <= 1 {
		return path
	}
	return strings.Join(parts[1:], " ")
}

func normalizeCommandPath(commandPath string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(commandPath))), " ")
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := clierr.As(err); ok {
		return err
	}
	if isLikelyUsageError(err) {
		return clierr.Wrap(clierr.CodeUsage, "invalid command input", err)
	}
	return clierr.Wrap(clierr.CodeInternal, "execute command", err)
}

func isLikelyUsageError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"required flag(s)",
		"flag needs an argument",
		"requires at least",
		"requires exactly",
		"accepts ",
		"invalid argument",
		"invalid args",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

func (s *runtimeState) resetCommandDiagnostics() {
	s.lastWarnings = nil
	s.lastServices = nil
	s.lastPartial = false
}

func (s *runtimeState) captureCommandDiagnostics(warnings []string, services []model.ServiceStatus, partial bool) {
	if len(warnings) == 0 {
		s.lastWarnings = nil
	} else {
		s.lastWarnings = append([]string(nil), warnings...)
	}
	if len(services) == 0 {
		s.lastServices = nil
	} else {
		s.lastServices = append([]model.ServiceStatus(nil), services...)
	}
	s.lastPartial = partial
}
