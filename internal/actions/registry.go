package actions

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	clierr "github.com/agentwallet-labs/gasless-cli/internal/errors"
)

type compiledAction struct {
	Descriptor
	schema *jsonschema.Schema
}

// Registry holds the action catalog with compiled argument schemas.
type Registry struct {
	actions map[string]*compiledAction
}

func NewRegistry() *Registry {
	return &Registry{actions: make(map[string]*compiledAction)}
}

func (r *Registry) Register(desc Descriptor) error {
	name := strings.TrimSpace(desc.Name)
	if name == "" || desc.Handler == nil {
		return fmt.Errorf("action needs a name and a handler")
	}
	if _, exists := r.actions[name]; exists {
		return fmt.Errorf("action %q registered twice", name)
	}
	entry := &compiledAction{Descriptor: desc}
	if strings.TrimSpace(desc.Schema) != "" {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		url := fmt.Sprintf("https://gasless.schemas.local/actions/%s.schema.json", name)
		if err := c.AddResource(url, strings.NewReader(desc.Schema)); err != nil {
			return fmt.Errorf("load schema for %s: %w", name, err)
		}
		compiled, err := c.Compile(url)
		if err != nil {
			return fmt.Errorf("compile schema for %s: %w", name, err)
		}
		entry.schema = compiled
	}
	r.actions[name] = entry
	return nil
}

// List returns all descriptors sorted by name.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, 0, len(r.actions))
	for _, a := range r.actions {
		out = append(out, a.Descriptor)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) Get(name string) (Descriptor, bool) {
	a, ok := r.actions[strings.TrimSpace(name)]
	if !ok {
		return Descriptor{}, false
	}
	return a.Descriptor, true
}

// Dispatch runs an action. A missing capability is an answer, not an error:
// the agent gets a sentence explaining what to configure. Invalid arguments
// are logged and handed to the handler anyway, whose own validation produces
// the more specific message.
func (r *Registry) Dispatch(ctx context.Context, env Env, name string, args map[string]any) (string, error) {
	entry, ok := r.actions[strings.TrimSpace(name)]
	if !ok {
		return "", clierr.New(clierr.CodeUsage, fmt.Sprintf("unknown action %q; list available actions first", name))
	}

	if hint := missingCapability(env, entry.Requires); hint != "" {
		return hint, nil
	}

	if entry.schema != nil && args != nil {
		if err := entry.schema.Validate(normalizeArgs(args)); err != nil {
			env.logger().Warn("action arguments failed schema validation", "action", name, "err", err)
		}
	}

	result, err := entry.Handler(ctx, env, args)
	if err != nil {
		if cliErr, ok := clierr.As(err); ok && cliErr.Code == clierr.CodeCapability {
			return cliErr.Message, nil
		}
		return "", err
	}
	return result, nil
}

func missingCapability(env Env, req Requirement) string {
	switch {
	case req&RequireAccount != 0 && env.Account == nil:
		return "This action needs a sponsored account. Set sponsor.url and sponsor.api_key in the config file, or export GASLESS_SPONSOR_URL and GASLESS_SPONSOR_API_KEY, then try again."
	case req&RequireReader != 0 && env.Reader == nil:
		return "This action needs chain access. Set rpc_url in the config file or export GASLESS_RPC_URL, then try again."
	case req&RequireBundler != 0 && env.Receipts == nil:
		return "This action needs a bundler endpoint to track operations. Set bundler.url in the config file or export GASLESS_BUNDLER_URL, then try again."
	}
	return ""
}

// normalizeArgs converts numeric values to the types the schema validator
// expects from decoded JSON.
func normalizeArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		switch n := v.(type) {
		case int:
			out[k] = float64(n)
		case int64:
			out[k] = float64(n)
		default:
			out[k] = v
		}
	}
	return out
}
