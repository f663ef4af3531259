package submit

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/agentwallet-labs/gasless-cli/internal/account"
)

// Tracker drives one operation handle from submission to a final answer.
// State only moves forward: once a receipt is seen, later polls only re-read
// the head height to count confirmation depth.
type Tracker struct {
	receipts ReceiptSource
	handle   account.OperationHandle
	params   Params
	log      log.Logger

	now       func() time.Time
	startedAt time.Time
	receipt   *OperationReceipt
}

func NewTracker(receipts ReceiptSource, handle account.OperationHandle, params Params, logger log.Logger) *Tracker {
	if logger == nil {
		logger = log.Root()
	}
	return &Tracker{
		receipts: receipts,
		handle:   handle,
		params:   params.withDefaults(),
		log:      logger,
		now:      time.Now,
	}
}

func (t *Tracker) elapsed() time.Duration {
	return t.now().Sub(t.startedAt)
}

func (t *Tracker) timeoutStatus() Status {
	return Status{
		State:  StatePending,
		Reason: fmt.Sprintf("exceeded maximum duration (%d sec)", int(t.params.MaxDuration.Seconds())),
	}
}

// Poll advances the state machine by one step. The returned bool reports
// whether the status is final. A transport error from the receipt source
// resolves to Failed immediately.
func (t *Tracker) Poll(ctx context.Context) (Status, bool) {
	if t.startedAt.IsZero() {
		t.startedAt = t.now()
	}

	if t.receipt == nil {
		receipt, err := t.receipts.OperationReceipt(ctx, t.handle)
		if err != nil {
			t.log.Warn("receipt lookup failed", "operation", string(t.handle), "err", err)
			return Status{State: StateFailed, Reason: err.Error()}, true
		}
		if receipt == nil {
			if t.elapsed() >= t.params.MaxDuration {
				return t.timeoutStatus(), true
			}
			return Status{State: StatePending, Reason: "operation not yet included"}, false
		}
		t.receipt = receipt
	}

	if !t.receipt.Success {
		return Status{
			State:           StateFailed,
			TransactionHash: t.receipt.TransactionHash,
			BlockNumber:     t.receipt.BlockNumber,
			Reason:          "user operation reverted on-chain",
		}, true
	}

	if t.params.Confirmations <= 1 {
		return Status{
			State:           StateConfirmed,
			Confirmations:   1,
			TransactionHash: t.receipt.TransactionHash,
			BlockNumber:     t.receipt.BlockNumber,
		}, true
	}

	head, err := t.receipts.HeadBlockNumber(ctx)
	if err != nil {
		t.log.Warn("head height lookup failed", "operation", string(t.handle), "err", err)
		return Status{State: StateFailed, Reason: err.Error()}, true
	}
	var depth uint64
	if head >= t.receipt.BlockNumber {
		depth = head - t.receipt.BlockNumber
	}
	if depth >= uint64(t.params.Confirmations) {
		return Status{
			State:           StateConfirmed,
			Confirmations:   depth,
			TransactionHash: t.receipt.TransactionHash,
			BlockNumber:     t.receipt.BlockNumber,
		}, true
	}
	if t.elapsed() >= t.params.MaxDuration {
		return t.timeoutStatus(), true
	}
	return Status{
		State:         StatePending,
		Confirmations: depth,
		Reason:        fmt.Sprintf("awaiting confirmations (%d of %d)", depth, t.params.Confirmations),
	}, false
}

// Wait polls until the status is final. At least one poll always happens,
// even when MaxDuration is shorter than the polling interval.
func (t *Tracker) Wait(ctx context.Context) Status {
	status, done := t.Poll(ctx)
	if done {
		return status
	}

	ticker := time.NewTicker(t.params.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return Status{State: StatePending, Reason: "wait cancelled: " + ctx.Err().Error()}
		case <-ticker.C:
			status, done = t.Poll(ctx)
			if done {
				return status
			}
		}
	}
}
