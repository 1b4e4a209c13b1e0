package provider

import (
	"context"
	"math/big"

	"github.com/vitwit/x402pay/types"
)

// Mock is a Provider whose behaviour is set per method. A nil func answers
// with CodeUnsupportedMethod.
type Mock struct {
	RequestAccountsFunc    func(ctx context.Context) ([]string, error)
	ChainIDFunc            func(ctx context.Context) (*big.Int, error)
	SwitchChainFunc        func(ctx context.Context, chainID *big.Int) error
	AddChainFunc           func(ctx context.Context, network types.NetworkDescriptor) error
	SendTransactionFunc    func(ctx context.Context, req types.TransferRequest) (string, error)
	TransactionReceiptFunc func(ctx context.Context, hash string) (*types.Receipt, error)
}

func unsupported(method string) error {
	return NewError(CodeUnsupportedMethod, "The Provider does not support the requested method: "+method)
}

func (m *Mock) RequestAccounts(ctx context.Context) ([]string, error) {
	if m.RequestAccountsFunc == nil {
		return nil, unsupported("eth_requestAccounts")
	}
	return m.RequestAccountsFunc(ctx)
}

func (m *Mock) ChainID(ctx context.Context) (*big.Int, error) {
	if m.ChainIDFunc == nil {
		return nil, unsupported("eth_chainId")
	}
	return m.ChainIDFunc(ctx)
}

func (m *Mock) SwitchChain(ctx context.Context, chainID *big.Int) error {
	if m.SwitchChainFunc == nil {
		return unsupported("wallet_switchEthereumChain")
	}
	return m.SwitchChainFunc(ctx, chainID)
}

func (m *Mock) AddChain(ctx context.Context, network types.NetworkDescriptor) error {
	if m.AddChainFunc == nil {
		return unsupported("wallet_addEthereumChain")
	}
	return m.AddChainFunc(ctx, network)
}

func (m *Mock) SendTransaction(ctx context.Context, req types.TransferRequest) (string, error) {
	if m.SendTransactionFunc == nil {
		return "", unsupported("eth_sendTransaction")
	}
	return m.SendTransactionFunc(ctx, req)
}

func (m *Mock) TransactionReceipt(ctx context.Context, hash string) (*types.Receipt, error) {
	if m.TransactionReceiptFunc == nil {
		return nil, unsupported("eth_getTransactionReceipt")
	}
	return m.TransactionReceiptFunc(ctx, hash)
}

var _ Provider = (*Mock)(nil)
