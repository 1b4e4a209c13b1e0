package provider

import (
	"context"
	"errors"

	"github.com/vitwit/x402pay/utils"
)

// ErrNoWallet is returned by Open when no wallet is configured.
var ErrNoWallet = errors.New("no wallet configured")

// Settings selects the wallet implementation.
type Settings struct {
	// WalletRPCURL is the JSON-RPC endpoint of an external wallet agent.
	WalletRPCURL string
	// PrivateKey is a hex key for the in-process wallet.
	PrivateKey string
}

// Open returns an RPCWallet when WalletRPCURL is set, otherwise a LocalWallet
// when PrivateKey is set. The local wallet starts with no network; the
// network selector registers the one it needs.
func Open(ctx context.Context, s Settings, opts ...LocalOption) (Provider, error) {
	switch {
	case s.WalletRPCURL != "":
		w, err := DialRPCWallet(ctx, s.WalletRPCURL)
		if err != nil {
			return nil, err
		}
		return w, nil
	case s.PrivateKey != "":
		key, err := utils.PrivateKeyFromHex(s.PrivateKey)
		if err != nil {
			return nil, err
		}
		return NewLocalWallet(key, opts...), nil
	default:
		return nil, ErrNoWallet
	}
}
