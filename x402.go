// Package x402pay pays for HTTP 402 gated resources with an on-chain native
// transfer and fetches them with the transaction hash as proof.
//
// A Flow runs the stages of one payment attempt in order:
//
//	connect wallet -> ensure network -> submit transfer -> await confirmation -> fetch
//
// A failing stage ends the attempt and later stages never start.
package x402pay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitwit/x402pay/gated"
	"github.com/vitwit/x402pay/logger"
	"github.com/vitwit/x402pay/metrics"
	"github.com/vitwit/x402pay/payment"
	"github.com/vitwit/x402pay/pricing"
	"github.com/vitwit/x402pay/provider"
	"github.com/vitwit/x402pay/types"
	"github.com/vitwit/x402pay/wallet"
)

// Version information
const (
	Version         = "1.0.0"
	ProtocolVersion = 1
)

const (
	DefaultRecipient       = "0x1f0184dc26a675008383f6c4c50CE53fB0473645"
	DefaultResourceBaseURL = "http://localhost:3001"
	DefaultResourcePath    = "/api/data"
)

// Config fixes what a Flow pays, to whom and where it fetches.
type Config struct {
	Network   types.NetworkDescriptor
	Recipient string
	// Price is the fiat amount of one payment.
	Price     decimal.Decimal
	Converter pricing.Converter
	// Gas is the transfer gas limit. Zero means 21000.
	Gas uint64

	ResourceBaseURL string
	// FetchTimeout bounds the gated request. Zero means 30s.
	FetchTimeout time.Duration
	Poll         payment.WaiterConfig
}

// DefaultConfig pays $0.01 at 2000 USD/ETH on Base Sepolia.
func DefaultConfig() Config {
	network, _ := types.LookupNetwork(types.NetworkBaseSepolia)
	return Config{
		Network:   network,
		Recipient: DefaultRecipient,
		Price:     decimal.RequireFromString("0.01"),
		Converter: pricing.Converter{
			Rate:     decimal.NewFromInt(2000),
			Decimals: pricing.DefaultDecimals,
		},
		ResourceBaseURL: DefaultResourceBaseURL,
	}
}

// Stage names a step of a payment attempt.
type Stage string

const (
	StageConnecting      Stage = "connecting"
	StageSwitching       Stage = "switching_network"
	StageSending         Stage = "sending"
	StageSent            Stage = "sent"
	StageConfirming      Stage = "confirming"
	StageFetching        Stage = "fetching"
	StagePaymentRequired Stage = "payment_required"
	StageDone            Stage = "done"
	StageFailed          Stage = "failed"
)

// StatusFunc receives a human readable progress line for each stage.
type StatusFunc func(stage Stage, message string)

// Outcome is the result of one payment attempt. Result is nil unless the
// fetch ran; a 402 answer is in Result.Requirement.
type Outcome struct {
	Session *types.WalletSession
	Intent  types.PaymentIntent
	Record  *types.TransactionRecord
	Result  *gated.Result
}

// Flow wires the payment stages around one wallet provider. A Flow keeps no
// state between attempts and may run concurrent attempts.
type Flow struct {
	cfg Config

	identity  *wallet.Identity
	selector  *wallet.Selector
	submitter *payment.Submitter
	waiter    *payment.Waiter
	gated     *gated.Client

	logger                logger.Logger
	metrics               metrics.Recorder
	timeout               time.Duration
	status                StatusFunc
	proceedOnNetworkError bool
	httpClient            *http.Client
}

// New builds a Flow paying through p. A nil p yields a Flow whose attempts
// fail with WALLET_UNAVAILABLE.
func New(p provider.Provider, cfg Config, opts ...Option) (*Flow, error) {
	f := &Flow{cfg: cfg}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = logger.OrNoop(f.logger)
	f.metrics = metrics.OrNoop(f.metrics)

	if !cfg.Price.IsPositive() {
		return nil, types.NewError(types.ErrConfigError, fmt.Sprintf("price must be positive, got %s", cfg.Price), nil)
	}
	if cfg.Network.ChainID == nil {
		return nil, types.NewError(types.ErrConfigError, "network chain id is required", nil)
	}

	submitter, err := payment.NewSubmitter(p, payment.SubmitterConfig{
		Recipient: cfg.Recipient,
		Converter: cfg.Converter,
		Gas:       cfg.Gas,
	}, f.logger)
	if err != nil {
		return nil, err
	}

	f.identity = wallet.NewIdentity(p, f.logger)
	f.selector = wallet.NewSelector(p, f.logger)
	f.submitter = submitter
	f.waiter = payment.NewWaiter(p, cfg.Poll, f.logger)
	f.gated = gated.New(gated.Config{
		BaseURL:    cfg.ResourceBaseURL,
		Timeout:    cfg.FetchTimeout,
		HTTPClient: f.httpClient,
	}, f.logger)
	return f, nil
}

// Connect opens a wallet session and puts it on the configured network. When
// only the network step fails the session is returned with the error, so the
// caller can still choose to pay on the current network.
func (f *Flow) Connect(ctx context.Context) (*types.WalletSession, error) {
	ctx, cancel := f.withDeadline(ctx)
	defer cancel()
	return f.connect(ctx)
}

func (f *Flow) connect(ctx context.Context) (*types.WalletSession, error) {
	f.report(StageConnecting, "Connecting wallet...")

	var session *types.WalletSession
	err := f.stage(ctx, "connect", func(ctx context.Context) error {
		var err error
		session, err = f.identity.Connect(ctx)
		return err
	})
	if err != nil {
		return nil, f.fail(err)
	}

	f.report(StageSwitching, fmt.Sprintf("Switching to %s...", f.cfg.Network.DisplayName))
	err = f.stage(ctx, "switch_network", func(ctx context.Context) error {
		return f.selector.EnsureNetwork(ctx, session, f.cfg.Network)
	})
	if err != nil {
		return session, f.fail(err)
	}
	return session, nil
}

// PayAndFetch pays once from session and fetches path with the transaction
// hash as proof. A 402 answer from the gate is returned in the Outcome, not as
// an error; no new payment is attempted.
func (f *Flow) PayAndFetch(ctx context.Context, session *types.WalletSession, path string) (*Outcome, error) {
	ctx, cancel := f.withDeadline(ctx)
	defer cancel()
	return f.payAndFetch(ctx, session, path)
}

func (f *Flow) payAndFetch(ctx context.Context, session *types.WalletSession, path string) (*Outcome, error) {
	out := &Outcome{Session: session}

	f.report(StageSending, "Requesting payment confirmation from your wallet...")
	err := f.stage(ctx, "submit", func(ctx context.Context) error {
		var err error
		out.Record, err = f.submitter.Submit(ctx, session, f.cfg.Price)
		return err
	})
	if err != nil {
		return out, f.fail(err)
	}
	out.Intent = out.Record.Intent
	f.report(StageSent, fmt.Sprintf("Transaction sent! Hash: %s", shortHash(out.Record.Hash)))

	f.report(StageConfirming, "Waiting for transaction confirmation...")
	var confirmation types.ConfirmationOutcome
	err = f.stage(ctx, "confirm", func(ctx context.Context) error {
		var err error
		confirmation, err = f.waiter.Await(ctx, out.Record)
		return err
	})
	if err != nil {
		return out, f.fail(err)
	}
	if confirmation != types.OutcomeConfirmed {
		f.logger.Warn("payment not confirmed", map[string]any{
			"txHash":  out.Record.Hash,
			"outcome": confirmation.String(),
		})
		return out, f.fail(types.NewError(types.ErrTransactionFailed, types.MsgTransactionFailed, nil))
	}

	f.report(StageFetching, "Payment confirmed! Fetching content...")
	err = f.stage(ctx, "fetch", func(ctx context.Context) error {
		var err error
		out.Result, err = f.gated.Fetch(ctx, path, out.Record.Hash)
		return err
	})
	if err != nil {
		return out, f.fail(err)
	}

	if out.Result.PaymentRequired() {
		f.count("payment_required")
		f.report(StagePaymentRequired, "Payment Required: "+string(out.Result.Requirement.Raw))
		return out, nil
	}

	f.count("paid")
	f.report(StageDone, "Success! Content unlocked.")
	return out, nil
}

// Run connects, pays and fetches path in one attempt.
func (f *Flow) Run(ctx context.Context, path string) (*Outcome, error) {
	ctx, cancel := f.withDeadline(ctx)
	defer cancel()

	session, err := f.connect(ctx)
	if err != nil {
		if session == nil || !f.proceedOnNetworkError || !isNetworkSwitchError(err) {
			return &Outcome{Session: session}, err
		}
		f.logger.Warn("continuing on the current network", map[string]any{
			"required": f.cfg.Network.Network.String(),
			"error":    err,
		})
	}
	return f.payAndFetch(ctx, session, path)
}

func isNetworkSwitchError(err error) bool {
	return types.IsCode(err, types.ErrSwitchRejected) || types.IsCode(err, types.ErrSwitchUnsupported)
}

func (f *Flow) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.timeout > 0 {
		return context.WithTimeout(ctx, f.timeout)
	}
	return context.WithCancel(ctx)
}

// stage runs fn and records its latency and outcome.
func (f *Flow) stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := fn(ctx)

	labels := map[string]string{metrics.LabelNetwork: f.cfg.Network.Network.String()}
	f.metrics.ObserveLatency(name, time.Since(start), labels)

	outcome := "ok"
	if err != nil {
		outcome = types.ErrorCode(err)
		if outcome == "" {
			outcome = "error"
		}
	}
	f.metrics.IncCounter(name, map[string]string{
		metrics.LabelNetwork: labels[metrics.LabelNetwork],
		metrics.LabelOutcome: outcome,
	})
	return err
}

func (f *Flow) count(outcome string) {
	f.metrics.IncCounter("payment", map[string]string{
		metrics.LabelNetwork: f.cfg.Network.Network.String(),
		metrics.LabelOutcome: outcome,
	})
}

func (f *Flow) fail(err error) error {
	f.count("failed")
	msg := err.Error()
	var xe *types.X402Error
	if errors.As(err, &xe) {
		msg = xe.Message
	}
	f.report(StageFailed, msg)
	return err
}

func (f *Flow) report(stage Stage, msg string) {
	f.logger.Debug("payment stage", map[string]any{"stage": string(stage), "status": msg})
	if f.status != nil {
		f.status(stage, msg)
	}
}

func shortHash(hash string) string {
	if len(hash) <= 10 {
		return hash
	}
	return hash[:10] + "..."
}
