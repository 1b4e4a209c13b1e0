// Package provider is the wallet capability the payment flow talks to.
//
// The Provider interface mirrors the EIP-1193 request/response pairs a browser
// wallet exposes. Errors carry the EIP-1193 numeric codes so callers can tell a
// user decline from an unknown network or a transport failure.
package provider

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/vitwit/x402pay/types"
)

// EIP-1193 provider error codes.
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnsupportedMethod = 4200
	CodeDisconnected      = 4900
	CodeChainDisconnected = 4901
	CodeUnrecognizedChain = 4902
)

// Provider is a wallet that can identify the user, select a network and sign
// and broadcast transfers.
type Provider interface {
	// RequestAccounts asks the user to expose their accounts.
	RequestAccounts(ctx context.Context) ([]string, error)

	// ChainID returns the network the wallet is currently on.
	ChainID(ctx context.Context) (*big.Int, error)

	// SwitchChain moves the wallet to chainID. It fails with
	// CodeUnrecognizedChain when the wallet does not know the network.
	SwitchChain(ctx context.Context, chainID *big.Int) error

	// AddChain registers a network with the wallet.
	AddChain(ctx context.Context, network types.NetworkDescriptor) error

	// SendTransaction signs and broadcasts a transfer and returns its hash.
	SendTransaction(ctx context.Context, req types.TransferRequest) (string, error)

	// TransactionReceipt returns the receipt of a mined transaction, or nil
	// while it is still pending.
	TransactionReceipt(ctx context.Context, hash string) (*types.Receipt, error)
}

// Error is a provider error with an EIP-1193 code. It satisfies rpc.Error, so
// it travels unchanged through a go-ethereum JSON-RPC server.
type Error struct {
	Code    int
	Message string
}

func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Error returns the provider message verbatim.
func (e *Error) Error() string {
	return e.Message
}

func (e *Error) ErrorCode() int {
	return e.Code
}

var _ rpc.Error = (*Error)(nil)

// Code extracts the provider error code from err, or 0 if it carries none.
func Code(err error) int {
	var re rpc.Error
	if errors.As(err, &re) {
		return re.ErrorCode()
	}
	return 0
}

// Message returns the provider's own message for err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var re rpc.Error
	if errors.As(err, &re) {
		return re.Error()
	}
	return err.Error()
}

var (
	errUserRejected      = NewError(CodeUserRejected, "User rejected the request.")
	errUnauthorized      = NewError(CodeUnauthorized, "The requested account has not been authorized by the user.")
	errChainDisconnected = NewError(CodeChainDisconnected, "The provider is not connected to the requested chain.")
	errDisconnected      = NewError(CodeDisconnected, "The provider is disconnected from all chains.")
)
