package wallet

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/x402pay/provider"
	"github.com/vitwit/x402pay/types"
)

func baseSepolia(t *testing.T) types.NetworkDescriptor {
	t.Helper()
	d, err := types.LookupNetwork(types.NetworkBaseSepolia)
	require.NoError(t, err)
	return d
}

func TestEnsureNetwork_DirectSwitch(t *testing.T) {
	var switched []*big.Int
	p := &provider.Mock{SwitchChainFunc: func(ctx context.Context, id *big.Int) error {
		switched = append(switched, id)
		return nil
	}}
	session := types.NewWalletSession("0xA")

	require.NoError(t, NewSelector(p, nil).EnsureNetwork(context.Background(), session, baseSepolia(t)))

	require.Len(t, switched, 1)
	assert.Equal(t, int64(84532), switched[0].Int64())
	n, id := session.Network()
	assert.Equal(t, types.NetworkBaseSepolia, n)
	assert.Equal(t, int64(84532), id.Int64())
}

func TestEnsureNetwork_AddsUnknownChainThenRetries(t *testing.T) {
	known := false
	var added []types.NetworkDescriptor
	switches := 0
	p := &provider.Mock{
		SwitchChainFunc: func(ctx context.Context, id *big.Int) error {
			switches++
			if !known {
				return provider.NewError(provider.CodeUnrecognizedChain, "Unrecognized chain ID.")
			}
			return nil
		},
		AddChainFunc: func(ctx context.Context, d types.NetworkDescriptor) error {
			added = append(added, d)
			known = true
			return nil
		},
	}
	session := types.NewWalletSession("0xA")

	require.NoError(t, NewSelector(p, nil).EnsureNetwork(context.Background(), session, baseSepolia(t)))

	assert.Equal(t, 2, switches)
	require.Len(t, added, 1)
	assert.Equal(t, "Base Sepolia", added[0].DisplayName)
	assert.Equal(t, []string{"https://sepolia.base.org"}, added[0].RPCURLs)
	assert.Equal(t, []string{"https://sepolia.basescan.org"}, added[0].ExplorerURLs)
	assert.Equal(t, "ETH", added[0].NativeCurrency.Symbol)
	n, _ := session.Network()
	assert.Equal(t, types.NetworkBaseSepolia, n)
}

func TestEnsureNetwork_RetryFailsOnlyOnce(t *testing.T) {
	switches := 0
	p := &provider.Mock{
		SwitchChainFunc: func(ctx context.Context, id *big.Int) error {
			switches++
			return provider.NewError(provider.CodeUnrecognizedChain, "Unrecognized chain ID.")
		},
		AddChainFunc: func(ctx context.Context, d types.NetworkDescriptor) error { return nil },
	}
	session := types.NewWalletSession("0xA")

	err := NewSelector(p, nil).EnsureNetwork(context.Background(), session, baseSepolia(t))
	assert.True(t, types.IsCode(err, types.ErrSwitchRejected))
	assert.Equal(t, 2, switches)
	n, _ := session.Network()
	assert.Empty(t, n)
}

func TestEnsureNetwork_Errors(t *testing.T) {
	unknown := func(ctx context.Context, id *big.Int) error {
		return provider.NewError(provider.CodeUnrecognizedChain, "Unrecognized chain ID.")
	}

	cases := []struct {
		name string
		p    *provider.Mock
		code string
	}{
		{
			name: "switch declined",
			p: &provider.Mock{SwitchChainFunc: func(ctx context.Context, id *big.Int) error {
				return provider.NewError(provider.CodeUserRejected, "User rejected the request.")
			}},
			code: types.ErrSwitchRejected,
		},
		{
			name: "switch transport error",
			p: &provider.Mock{SwitchChainFunc: func(ctx context.Context, id *big.Int) error {
				return errors.New("disconnected")
			}},
			code: types.ErrSwitchRejected,
		},
		{
			name: "add unsupported",
			p:    &provider.Mock{SwitchChainFunc: unknown},
			code: types.ErrSwitchUnsupported,
		},
		{
			name: "add declined",
			p: &provider.Mock{SwitchChainFunc: unknown, AddChainFunc: func(ctx context.Context, d types.NetworkDescriptor) error {
				return provider.NewError(provider.CodeUserRejected, "User rejected the request.")
			}},
			code: types.ErrSwitchRejected,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			session := types.NewWalletSession("0xA")
			err := NewSelector(tc.p, nil).EnsureNetwork(context.Background(), session, baseSepolia(t))
			assert.True(t, types.IsCode(err, tc.code), err)
			n, _ := session.Network()
			assert.Empty(t, n)
		})
	}
}

func TestEnsureNetwork_NilInputs(t *testing.T) {
	err := NewSelector(nil, nil).EnsureNetwork(context.Background(), types.NewWalletSession("0xA"), baseSepolia(t))
	assert.True(t, types.IsCode(err, types.ErrWalletUnavailable))

	err = NewSelector(&provider.Mock{}, nil).EnsureNetwork(context.Background(), nil, baseSepolia(t))
	assert.True(t, types.IsCode(err, types.ErrWalletUnavailable))
}
