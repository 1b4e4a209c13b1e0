package provider

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/params"
	"github.com/vitwit/x402pay/types"
	"github.com/vitwit/x402pay/utils"
)

// ChainClient is the part of ethclient.Client the local wallet uses.
type ChainClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
}

// Dialer connects to a network's RPC endpoint.
type Dialer func(ctx context.Context, rpcURL string) (ChainClient, error)

// Approver stands in for the wallet's confirmation prompt. Returning false
// declines the transfer.
type Approver func(ctx context.Context, req types.TransferRequest) bool

func dialEthclient(ctx context.Context, rpcURL string) (ChainClient, error) {
	return ethclient.DialContext(ctx, rpcURL)
}

type localNetwork struct {
	descriptor types.NetworkDescriptor
	client     ChainClient
}

// LocalWallet is an in-process wallet holding one private key. It only knows
// the networks registered with AddChain or WithChainClient and rejects a
// switch to any other with CodeUnrecognizedChain.
type LocalWallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
	dial    Dialer
	approve Approver

	mu       sync.Mutex
	networks map[string]*localNetwork
	active   *localNetwork
}

type LocalOption func(*LocalWallet)

// WithApprover installs the confirmation prompt. Without one every transfer
// is approved.
func WithApprover(a Approver) LocalOption {
	return func(w *LocalWallet) { w.approve = a }
}

// WithDialer replaces ethclient.DialContext for networks added by AddChain.
func WithDialer(d Dialer) LocalOption {
	return func(w *LocalWallet) { w.dial = d }
}

// WithChainClient registers a network backed by an already connected client
// and makes it active if no network is active yet.
func WithChainClient(network types.NetworkDescriptor, client ChainClient) LocalOption {
	return func(w *LocalWallet) {
		n := &localNetwork{descriptor: network, client: client}
		w.networks[network.ChainID.String()] = n
		if w.active == nil {
			w.active = n
		}
	}
}

func NewLocalWallet(key *ecdsa.PrivateKey, opts ...LocalOption) *LocalWallet {
	w := &LocalWallet{
		key:      key,
		address:  utils.AddressFromPrivateKey(key),
		dial:     dialEthclient,
		networks: make(map[string]*localNetwork),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Address returns the wallet's account.
func (w *LocalWallet) Address() common.Address {
	return w.address
}

func (w *LocalWallet) RequestAccounts(ctx context.Context) ([]string, error) {
	return []string{w.address.Hex()}, nil
}

func (w *LocalWallet) ChainID(ctx context.Context) (*big.Int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.active == nil {
		return nil, errDisconnected
	}
	return new(big.Int).Set(w.active.descriptor.ChainID), nil
}

func (w *LocalWallet) SwitchChain(ctx context.Context, chainID *big.Int) error {
	if chainID == nil {
		return fmt.Errorf("chain id is required")
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	n, ok := w.networks[chainID.String()]
	if !ok {
		return NewError(CodeUnrecognizedChain, fmt.Sprintf("Unrecognized chain ID %q.", chainID.String()))
	}
	w.active = n
	return nil
}

func (w *LocalWallet) AddChain(ctx context.Context, network types.NetworkDescriptor) error {
	if network.ChainID == nil || network.ChainID.Sign() <= 0 {
		return fmt.Errorf("network %s has no valid chain id", network.Network)
	}
	if network.RPCURL() == "" {
		return fmt.Errorf("network %s has no rpc url", network.Network)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	key := network.ChainID.String()
	if _, ok := w.networks[key]; ok {
		return nil
	}
	w.networks[key] = &localNetwork{descriptor: network}
	return nil
}

// activeClient returns the active network, dialing it on first use. The dial
// runs without w.mu held; when two callers race, the first client stored wins.
func (w *LocalWallet) activeClient(ctx context.Context) (*localNetwork, error) {
	w.mu.Lock()
	n := w.active
	var client ChainClient
	if n != nil {
		client = n.client
	}
	w.mu.Unlock()

	if n == nil {
		return nil, errDisconnected
	}
	if client != nil {
		return n, nil
	}

	c, err := w.dial(ctx, n.descriptor.RPCURL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", n.descriptor.DisplayName, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if n.client == nil {
		n.client = c
	} else if closer, ok := c.(interface{ Close() }); ok {
		closer.Close()
	}
	return n, nil
}

func (w *LocalWallet) SendTransaction(ctx context.Context, req types.TransferRequest) (string, error) {
	if !utils.SameAddress(req.From, w.address.Hex()) {
		return "", errUnauthorized
	}
	if !common.IsHexAddress(req.To) {
		return "", fmt.Errorf("invalid recipient address: %q", req.To)
	}

	n, err := w.activeClient(ctx)
	if err != nil {
		return "", err
	}
	chainID := n.descriptor.ChainID
	if req.ChainID != nil && req.ChainID.Cmp(chainID) != 0 {
		return "", errChainDisconnected
	}

	if w.approve != nil && !w.approve(ctx, req) {
		return "", errUserRejected
	}

	nonce, err := n.client.PendingNonceAt(ctx, w.address)
	if err != nil {
		return "", fmt.Errorf("failed to get nonce: %w", err)
	}
	gasPrice, err := n.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to suggest gas price: %w", err)
	}

	gas := req.Gas
	if gas == 0 {
		gas = params.TxGas
	}
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	to := common.HexToAddress(req.To)
	tx := gethtypes.NewTx(&gethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gas,
		GasPrice: gasPrice,
	})

	signed, err := gethtypes.SignTx(tx, gethtypes.NewEIP155Signer(chainID), w.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := n.client.SendTransaction(ctx, signed); err != nil {
		return "", err
	}
	return signed.Hash().Hex(), nil
}

func (w *LocalWallet) TransactionReceipt(ctx context.Context, hash string) (*types.Receipt, error) {
	if err := utils.ValidateTransactionHash(hash); err != nil {
		return nil, err
	}

	n, err := w.activeClient(ctx)
	if err != nil {
		return nil, err
	}

	rc, err := n.client.TransactionReceipt(ctx, common.HexToHash(hash))
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	out := &types.Receipt{TxHash: rc.TxHash.Hex(), Status: rc.Status}
	if rc.BlockNumber != nil {
		out.BlockNumber = rc.BlockNumber.Uint64()
	}
	return out, nil
}

var _ Provider = (*LocalWallet)(nil)
