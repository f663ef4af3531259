package submit

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/agentwallet-labs/gasless-cli/internal/account"
)

// Submitter sends one sponsored call per invocation. It never retries and
// never falls back to self-funded submission; a sponsor rejection is final
// and its text is passed through untouched.
type Submitter struct {
	journal *Journal
	log     log.Logger
}

func NewSubmitter(journal *Journal, logger log.Logger) *Submitter {
	if logger == nil {
		logger = log.Root()
	}
	return &Submitter{journal: journal, log: logger}
}

type SubmitMeta struct {
	Kind    string
	ChainID string
}

func (s *Submitter) Submit(ctx context.Context, acct account.SmartAccount, req account.TransactionRequest, meta SubmitMeta) Result {
	if req.To == (common.Address{}) {
		return Result{Success: false, Err: "transaction target address is required"}
	}

	handle, err := acct.SendTransaction(ctx, req)
	if err != nil {
		s.log.Warn("sponsored submission rejected", "kind", meta.Kind, "to", req.To.Hex(), "err", err)
		s.record(meta, req, "", StateFailed, err.Error())
		return Result{Success: false, Err: err.Error()}
	}

	s.log.Info("sponsored operation submitted", "kind", meta.Kind, "to", req.To.Hex(), "operation", string(handle))
	s.record(meta, req, handle, StatePending, "")
	return Result{Success: true, Handle: handle}
}

func (s *Submitter) record(meta SubmitMeta, req account.TransactionRequest, handle account.OperationHandle, state ConfirmationState, errText string) {
	if s.journal == nil {
		return
	}
	value := "0"
	if req.Value != nil {
		value = req.Value.String()
	}
	if err := s.journal.Append(Record{
		Handle:  string(handle),
		Kind:    meta.Kind,
		ChainID: meta.ChainID,
		To:      req.To.Hex(),
		Value:   value,
		Status:  string(state),
		Error:   errText,
	}); err != nil {
		// Journal trouble must not turn a successful submission into a
		// failure; the handle already exists on the bundler.
		s.log.Warn("journal append failed", "err", err)
	}
}
