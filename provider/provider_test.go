package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeAndMessage(t *testing.T) {
	err := NewError(CodeUserRejected, "User rejected the request.")
	assert.Equal(t, CodeUserRejected, Code(err))
	assert.Equal(t, "User rejected the request.", Message(err))

	wrapped := fmt.Errorf("send: %w", err)
	assert.Equal(t, CodeUserRejected, Code(wrapped))
	assert.Equal(t, "User rejected the request.", Message(wrapped))

	plain := errors.New("connection refused")
	assert.Zero(t, Code(plain))
	assert.Equal(t, "connection refused", Message(plain))
	assert.Zero(t, Code(nil))
	assert.Empty(t, Message(nil))
}

func TestMock_UnsetMethodsAreUnsupported(t *testing.T) {
	m := &Mock{}
	ctx := context.Background()

	_, err := m.RequestAccounts(ctx)
	assert.Equal(t, CodeUnsupportedMethod, Code(err))
	assert.Equal(t, CodeUnsupportedMethod, Code(m.SwitchChain(ctx, nil)))

	m.RequestAccountsFunc = func(ctx context.Context) ([]string, error) { return []string{"0xA"}, nil }
	accounts, err := m.RequestAccounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"0xA"}, accounts)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	_, err := Open(ctx, Settings{})
	assert.ErrorIs(t, err, ErrNoWallet)

	p, err := Open(ctx, Settings{PrivateKey: "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"})
	require.NoError(t, err)
	w, ok := p.(*LocalWallet)
	require.True(t, ok)
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", w.Address().Hex())

	_, err = Open(ctx, Settings{PrivateKey: "not-a-key"})
	assert.Error(t, err)
}

func TestOpen_BadWalletURL(t *testing.T) {
	p, err := Open(context.Background(), Settings{WalletRPCURL: "ftp://wallet.invalid"})
	require.Error(t, err)
	assert.Nil(t, p)
}
