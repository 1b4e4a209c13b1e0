package payment

import (
	"context"
	"errors"
	"time"

	"github.com/vitwit/x402pay/logger"
	"github.com/vitwit/x402pay/provider"
	"github.com/vitwit/x402pay/types"
	"github.com/vitwit/x402pay/utils"
)

const (
	DefaultPollInterval   = time.Second
	DefaultMaxAttempts    = 60
	DefaultRequestTimeout = 10 * time.Second
)

// WaiterConfig bounds how long a transaction is watched.
type WaiterConfig struct {
	Interval    time.Duration
	MaxAttempts int
	// RequestTimeout bounds one receipt query.
	RequestTimeout time.Duration
}

func (c WaiterConfig) withDefaults() WaiterConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultPollInterval
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	return c
}

// Waiter polls the wallet for a transaction receipt. It keeps no state between
// Await calls, so one Waiter serves concurrent payments.
type Waiter struct {
	provider provider.Provider
	cfg      WaiterConfig
	log      logger.Logger
}

func NewWaiter(p provider.Provider, cfg WaiterConfig, log logger.Logger) *Waiter {
	return &Waiter{provider: p, cfg: cfg.withDefaults(), log: logger.OrNoop(log)}
}

type receiptQueryError struct{ err error }

func (e *receiptQueryError) Error() string { return e.err.Error() }
func (e *receiptQueryError) Unwrap() error { return e.err }

// Await polls until the transaction has a receipt or the attempt budget runs
// out, and finalizes record accordingly:
//
//   - status 1: Confirmed
//   - status 0: Failed
//   - no receipt after MaxAttempts: TimedOut, record marked Failed
//   - receipt query error: Failed, the error is returned with the cause
//
// If ctx is cancelled first, record stays Pending and ctx.Err() is returned.
func (w *Waiter) Await(ctx context.Context, record *types.TransactionRecord) (types.ConfirmationOutcome, error) {
	if record == nil {
		return 0, errors.New("transaction record is required")
	}
	if w.provider == nil {
		return 0, types.NewError(types.ErrWalletUnavailable, "no wallet available", nil)
	}

	fields := map[string]any{"txHash": record.Hash}
	w.log.Info("waiting for confirmation", fields)

	var receipt *types.Receipt
	pollCfg := utils.PollConfig{
		Interval:       w.cfg.Interval,
		MaxAttempts:    w.cfg.MaxAttempts,
		AttemptTimeout: w.cfg.RequestTimeout,
	}
	attempts, err := utils.Poll(ctx, pollCfg, func(ctx context.Context, attempt int) (bool, error) {
		rc, err := w.provider.TransactionReceipt(ctx, record.Hash)
		if err != nil {
			return false, &receiptQueryError{err: err}
		}
		if rc == nil {
			w.log.Debug("transaction pending", map[string]any{"txHash": record.Hash, "attempt": attempt})
			return false, nil
		}
		receipt = rc
		return true, nil
	})
	fields = withField(fields, "attempts", attempts)

	var qe *receiptQueryError
	switch {
	case err == nil && receipt.Succeeded():
		if ferr := record.MarkConfirmed(receipt); ferr != nil {
			return 0, ferr
		}
		w.log.Info("transaction confirmed", withField(fields, "block", receipt.BlockNumber))
		return types.OutcomeConfirmed, nil

	case err == nil:
		if ferr := record.MarkFailed(receipt); ferr != nil {
			return 0, ferr
		}
		w.log.Warn("transaction reverted", withField(fields, "block", receipt.BlockNumber))
		return types.OutcomeFailed, nil

	case errors.Is(err, utils.ErrPollExhausted):
		if ferr := record.MarkFailed(nil); ferr != nil {
			return 0, ferr
		}
		w.log.Warn("transaction not confirmed in time", fields)
		return types.OutcomeTimedOut, nil

	case errors.As(err, &qe):
		if ferr := record.MarkFailed(nil); ferr != nil {
			return 0, ferr
		}
		w.log.Error("receipt query failed", withField(fields, "error", qe.err))
		return types.OutcomeFailed, types.NewError(types.ErrTransactionFailed, "failed to query transaction receipt: "+provider.Message(qe.err), qe.err)

	default:
		w.log.Info("stopped waiting for confirmation", withField(fields, "error", err))
		return 0, err
	}
}
