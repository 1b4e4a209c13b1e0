package wallet

import (
	"context"
	"fmt"

	"github.com/vitwit/x402pay/logger"
	"github.com/vitwit/x402pay/provider"
	"github.com/vitwit/x402pay/types"
)

// Selector moves a wallet onto the network a payment must be made on.
type Selector struct {
	provider provider.Provider
	log      logger.Logger
}

func NewSelector(p provider.Provider, log logger.Logger) *Selector {
	return &Selector{provider: p, log: logger.OrNoop(log)}
}

// EnsureNetwork switches the wallet to required. When the wallet does not know
// the network it is registered with the full descriptor and the switch is
// retried once. The session's network is updated only on success.
func (s *Selector) EnsureNetwork(ctx context.Context, session *types.WalletSession, required types.NetworkDescriptor) error {
	if s.provider == nil {
		return types.NewError(types.ErrWalletUnavailable, "no wallet available", nil)
	}
	if session == nil {
		return types.NewError(types.ErrWalletUnavailable, "wallet is not connected", nil)
	}
	if required.ChainID == nil {
		return types.NewError(types.ErrUnsupportedNetwork, fmt.Sprintf("network %s has no chain id", required.Network), nil)
	}

	fields := map[string]any{"network": required.Network.String(), "chainId": required.ChainID.String()}

	err := s.provider.SwitchChain(ctx, required.ChainID)
	if err != nil && provider.Code(err) == provider.CodeUnrecognizedChain {
		s.log.Info("wallet does not know network, registering it", fields)

		if addErr := s.provider.AddChain(ctx, required); addErr != nil {
			if provider.Code(addErr) == provider.CodeUnsupportedMethod {
				return types.NewError(types.ErrSwitchUnsupported, provider.Message(addErr), addErr)
			}
			s.log.Warn("network registration failed", withError(fields, addErr))
			return types.NewError(types.ErrSwitchRejected, provider.Message(addErr), addErr)
		}

		err = s.provider.SwitchChain(ctx, required.ChainID)
	}
	if err != nil {
		s.log.Warn("network switch failed", withError(fields, err))
		return types.NewError(types.ErrSwitchRejected, provider.Message(err), err)
	}

	session.SetNetwork(required.Network, required.ChainID)
	s.log.Info("wallet on required network", fields)
	return nil
}

func withError(fields map[string]any, err error) map[string]any {
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["error"] = err
	return out
}
