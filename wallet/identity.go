// Package wallet connects a user's wallet and puts it on the network a
// payment needs.
package wallet

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vitwit/x402pay/logger"
	"github.com/vitwit/x402pay/provider"
	"github.com/vitwit/x402pay/types"
)

// Identity obtains the payer's account from a wallet.
type Identity struct {
	provider provider.Provider
	log      logger.Logger
}

// NewIdentity returns an Identity for p. A nil p is allowed and makes every
// Connect fail with WALLET_UNAVAILABLE.
func NewIdentity(p provider.Provider, log logger.Logger) *Identity {
	return &Identity{provider: p, log: logger.OrNoop(log)}
}

// Connect asks the wallet for its accounts and opens a session on the first
// one. The session has no network until a Selector sets it.
func (i *Identity) Connect(ctx context.Context) (*types.WalletSession, error) {
	if i.provider == nil {
		return nil, types.NewError(types.ErrWalletUnavailable, "no wallet available", nil)
	}

	accounts, err := i.provider.RequestAccounts(ctx)
	if err != nil {
		if provider.Code(err) == provider.CodeUserRejected {
			i.log.Info("wallet connection declined", map[string]any{"reason": provider.Message(err)})
			return nil, types.NewError(types.ErrUserDeclined, provider.Message(err), err)
		}
		i.log.Warn("wallet connection failed", map[string]any{"error": err})
		return nil, types.NewError(types.ErrWalletUnavailable, provider.Message(err), err)
	}

	if len(accounts) == 0 || accounts[0] == "" {
		return nil, types.NewError(types.ErrWalletUnavailable, "wallet returned no accounts", nil)
	}

	address := accounts[0]
	if looksLikeHexAddress(address) && !common.IsHexAddress(address) {
		return nil, types.NewError(types.ErrWalletUnavailable, "wallet returned an invalid address: "+address, nil)
	}

	i.log.Info("wallet connected", map[string]any{"address": FormatAddress(address)})
	return types.NewWalletSession(address), nil
}

const shortAddressLen = 6 + len("...") + 4

func looksLikeHexAddress(s string) bool {
	return len(s) == 2+2*common.AddressLength && strings.HasPrefix(strings.ToLower(s), "0x")
}

// FormatAddress shortens an address for display: first six characters, an
// ellipsis, last four. Addresses that would not get shorter are returned as is.
func FormatAddress(address string) string {
	if len(address) <= shortAddressLen {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}
