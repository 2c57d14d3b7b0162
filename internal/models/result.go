package models

import "logane/internal/errs"

// Result is the uniform outcome of a ledger write. RaffleID is set by
// creation, TxHash by live submissions.
type Result struct {
	Success  bool        `json:"success"`
	RaffleID uint64      `json:"raffleId,omitempty"`
	TxHash   string      `json:"txHash,omitempty"`
	Error    *errs.Error `json:"error,omitempty"`
}

// Ok returns a successful result.
func Ok() Result { return Result{Success: true} }

// Fail wraps err into a failed result, classifying unknown errors as chain
// call failures.
func Fail(err error) Result {
	return Result{Error: errs.Wrap(errs.ChainCallFailure, err, "ledger call failed")}
}

// Err returns the failure as an error value, or nil on success.
func (r Result) Err() error {
	if r.Success || r.Error == nil {
		return nil
	}
	return r.Error
}
