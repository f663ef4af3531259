// Package submit owns sponsored submission and confirmation tracking. A
// Submitter hands calls to the smart account and records them in the journal;
// a Tracker polls the bundler until the operation lands, fails, or the
// waiting budget runs out.
package submit

import (
	"context"
	"time"

	"github.com/agentwallet-labs/gasless-cli/internal/account"
)

type ConfirmationState string

const (
	StatePending   ConfirmationState = "pending"
	StateConfirmed ConfirmationState = "confirmed"
	StateFailed    ConfirmationState = "failed"
)

// Status is the tracker's answer at a point in time. A pending status after
// the waiting budget elapses is a final answer, not an error: the operation
// may still confirm later and callers re-check with the same handle.
type Status struct {
	State           ConfirmationState `json:"state"`
	Confirmations   uint64            `json:"confirmations"`
	TransactionHash string            `json:"transaction_hash,omitempty"`
	BlockNumber     uint64            `json:"block_number,omitempty"`
	Reason          string            `json:"reason,omitempty"`
}

// Params bound a confirmation wait. Zero values take defaults.
type Params struct {
	Confirmations int
	MaxDuration   time.Duration
	Interval      time.Duration
}

func DefaultParams() Params {
	return Params{
		Confirmations: 1,
		MaxDuration:   30 * time.Second,
		Interval:      5 * time.Second,
	}
}

func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.Confirmations < 1 {
		p.Confirmations = d.Confirmations
	}
	if p.MaxDuration <= 0 {
		p.MaxDuration = d.MaxDuration
	}
	if p.Interval <= 0 {
		p.Interval = d.Interval
	}
	return p
}

// OperationReceipt is the bundler's record of an included user operation.
type OperationReceipt struct {
	Success         bool
	BlockNumber     uint64
	TransactionHash string
}

// ReceiptSource reads inclusion state. OperationReceipt returns (nil, nil)
// while the operation is still in flight.
type ReceiptSource interface {
	OperationReceipt(ctx context.Context, handle account.OperationHandle) (*OperationReceipt, error)
	HeadBlockNumber(ctx context.Context) (uint64, error)
}

// Result is the submitter's per-call outcome. Err carries the sponsor's
// rejection text unchanged.
type Result struct {
	Success bool                    `json:"success"`
	Handle  account.OperationHandle `json:"operation,omitempty"`
	Err     string                  `json:"error,omitempty"`
}
