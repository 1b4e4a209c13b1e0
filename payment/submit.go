// Package payment submits the value transfer that pays for a request and
// waits for it to be final.
package payment

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/params"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vitwit/x402pay/logger"
	"github.com/vitwit/x402pay/pricing"
	"github.com/vitwit/x402pay/provider"
	"github.com/vitwit/x402pay/types"
)

// MsgUserRejectedTx is reported when the user declines the transfer prompt.
const MsgUserRejectedTx = "Transaction rejected by user"

// SubmitterConfig fixes who is paid and how fiat maps to native units.
type SubmitterConfig struct {
	Recipient string
	Converter pricing.Converter
	// Gas is the gas limit of the transfer. Zero means params.TxGas.
	Gas uint64
}

// Submitter asks the wallet to send one native transfer per payment.
type Submitter struct {
	provider provider.Provider
	cfg      SubmitterConfig
	log      logger.Logger
}

func NewSubmitter(p provider.Provider, cfg SubmitterConfig, log logger.Logger) (*Submitter, error) {
	if cfg.Recipient == "" {
		return nil, types.NewError(types.ErrConfigError, "payment recipient is required", nil)
	}
	if !cfg.Converter.Rate.IsPositive() {
		return nil, types.NewError(types.ErrConfigError, "conversion rate must be positive", nil)
	}
	if cfg.Gas == 0 {
		cfg.Gas = params.TxGas
	}
	return &Submitter{provider: p, cfg: cfg, log: logger.OrNoop(log)}, nil
}

// Submit builds a fresh PaymentIntent for amountFiat and hands the transfer to
// the wallet. The returned record is Pending: a hash only means the wallet
// accepted the transfer, not that it is final.
func (s *Submitter) Submit(ctx context.Context, session *types.WalletSession, amountFiat decimal.Decimal) (*types.TransactionRecord, error) {
	if s.provider == nil {
		return nil, types.NewError(types.ErrWalletUnavailable, "no wallet available", nil)
	}
	if session == nil || session.Address() == "" {
		return nil, types.NewError(types.ErrWalletUnavailable, "wallet is not connected", nil)
	}
	if !amountFiat.IsPositive() {
		return nil, types.NewError(types.ErrSubmission, fmt.Sprintf("payment amount must be positive, got %s", amountFiat), nil)
	}

	native, err := s.cfg.Converter.NativeAmount(amountFiat)
	if err != nil {
		return nil, types.NewError(types.ErrSubmission, err.Error(), err)
	}

	release := session.BeginSubmit()
	defer release()

	network, chainID := session.Network()
	intent := types.PaymentIntent{
		ID:           uuid.NewString(),
		Payer:        session.Address(),
		Payee:        s.cfg.Recipient,
		AmountFiat:   amountFiat,
		AmountNative: native,
		Network:      network,
		CreatedAt:    time.Now().UTC(),
	}

	req := types.TransferRequest{
		From:    intent.Payer,
		To:      intent.Payee,
		Value:   new(big.Int).Set(native),
		Gas:     s.cfg.Gas,
		ChainID: chainID,
	}

	fields := map[string]any{
		"intent":    intent.ID,
		"from":      intent.Payer,
		"to":        intent.Payee,
		"amountUSD": amountFiat.String(),
		"amountWei": native.String(),
		"amountETH": pricing.FormatNative(native, s.cfg.Converter.Decimals),
	}
	s.log.Info("sending payment", fields)

	hash, err := s.provider.SendTransaction(ctx, req)
	if err != nil {
		if provider.Code(err) == provider.CodeUserRejected {
			s.log.Info("payment declined", fields)
			return nil, types.NewError(types.ErrUserDeclined, MsgUserRejectedTx, err)
		}
		s.log.Error("payment submission failed", withField(fields, "error", err))
		return nil, types.NewError(types.ErrSubmission, provider.Message(err), err)
	}
	if hash == "" {
		return nil, types.NewError(types.ErrSubmission, "wallet returned no transaction hash", nil)
	}

	s.log.Info("transaction sent", withField(fields, "txHash", hash))
	return types.NewTransactionRecord(hash, intent), nil
}

func withField(fields map[string]any, key string, value any) map[string]any {
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out[key] = value
	return out
}
