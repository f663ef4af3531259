// Package actions exposes the agent-facing operation catalog. Every action
// takes a JSON argument object and answers with a plain-language sentence an
// agent can relay verbatim; the same catalog backs the CLI commands and the
// MCP server.
package actions

import (
	"context"

	"github.com/ethereum/go-ethereum/log"

	"github.com/agentwallet-labs/gasless-cli/internal/account"
	"github.com/agentwallet-labs/gasless-cli/internal/allowance"
	"github.com/agentwallet-labs/gasless-cli/internal/flows"
	"github.com/agentwallet-labs/gasless-cli/internal/id"
	"github.com/agentwallet-labs/gasless-cli/internal/submit"
)

// Requirement is a bitmask of the session capabilities an action needs.
type Requirement uint8

const (
	RequireNone    Requirement = 0
	RequireAccount Requirement = 1 << iota
	RequireReader
	RequireBundler
)

// Env carries the wired session capabilities. Fields are nil when the
// configuration does not provide them; Dispatch answers with a setup hint
// instead of calling a handler that would dereference a missing one.
type Env struct {
	Account    account.SmartAccount
	Reader     account.ChainReader
	Receipts   submit.ReceiptSource
	Flows      *flows.Orchestrator
	Allowances *allowance.Manager
	Journal    *submit.Journal
	Chain      id.Chain
	Log        log.Logger
}

func (e Env) logger() log.Logger {
	if e.Log == nil {
		return log.Root()
	}
	return e.Log
}

// Handler executes one action and answers in prose.
type Handler func(ctx context.Context, env Env, args map[string]any) (string, error)

type Descriptor struct {
	Name        string
	Description string
	Schema      string
	Requires    Requirement
	Handler     Handler
}
