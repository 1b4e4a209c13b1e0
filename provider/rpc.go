package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/vitwit/x402pay/types"
)

// RPCWallet is a wallet agent reached over JSON-RPC, e.g. a signer daemon or
// a bridge to a browser extension.
type RPCWallet struct {
	client *rpc.Client
}

// DialRPCWallet connects to the wallet agent at url.
func DialRPCWallet(ctx context.Context, url string) (*RPCWallet, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial wallet at %s: %w", url, err)
	}
	return NewRPCWallet(c), nil
}

func NewRPCWallet(c *rpc.Client) *RPCWallet {
	return &RPCWallet{client: c}
}

func (w *RPCWallet) Close() {
	w.client.Close()
}

func (w *RPCWallet) RequestAccounts(ctx context.Context) ([]string, error) {
	var accounts []string
	if err := w.client.CallContext(ctx, &accounts, "eth_requestAccounts"); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (w *RPCWallet) ChainID(ctx context.Context) (*big.Int, error) {
	var id hexutil.Big
	if err := w.client.CallContext(ctx, &id, "eth_chainId"); err != nil {
		return nil, err
	}
	return id.ToInt(), nil
}

type switchChainParams struct {
	ChainID string `json:"chainId"`
}

func (w *RPCWallet) SwitchChain(ctx context.Context, chainID *big.Int) error {
	return w.client.CallContext(ctx, nil, "wallet_switchEthereumChain",
		switchChainParams{ChainID: hexutil.EncodeBig(chainID)})
}

// addChainParams is the EIP-3085 wallet_addEthereumChain parameter.
type addChainParams struct {
	ChainID           string               `json:"chainId"`
	ChainName         string               `json:"chainName"`
	NativeCurrency    types.NativeCurrency `json:"nativeCurrency"`
	RPCURLs           []string             `json:"rpcUrls"`
	BlockExplorerURLs []string             `json:"blockExplorerUrls,omitempty"`
}

func toAddChainParams(d types.NetworkDescriptor) addChainParams {
	return addChainParams{
		ChainID:           hexutil.EncodeBig(d.ChainID),
		ChainName:         d.DisplayName,
		NativeCurrency:    d.NativeCurrency,
		RPCURLs:           d.RPCURLs,
		BlockExplorerURLs: d.ExplorerURLs,
	}
}

func (w *RPCWallet) AddChain(ctx context.Context, network types.NetworkDescriptor) error {
	if network.ChainID == nil {
		return fmt.Errorf("network %s has no chain id", network.Network)
	}
	return w.client.CallContext(ctx, nil, "wallet_addEthereumChain", toAddChainParams(network))
}

// sendTxArgs is the eth_sendTransaction parameter object.
type sendTxArgs struct {
	From    string          `json:"from"`
	To      string          `json:"to"`
	Value   *hexutil.Big    `json:"value"`
	Gas     *hexutil.Uint64 `json:"gas,omitempty"`
	ChainID *hexutil.Big    `json:"chainId,omitempty"`
}

func (w *RPCWallet) SendTransaction(ctx context.Context, req types.TransferRequest) (string, error) {
	args := sendTxArgs{
		From:  req.From,
		To:    req.To,
		Value: (*hexutil.Big)(new(big.Int)),
	}
	if req.Value != nil {
		args.Value = (*hexutil.Big)(req.Value)
	}
	if req.Gas > 0 {
		gas := hexutil.Uint64(req.Gas)
		args.Gas = &gas
	}
	if req.ChainID != nil {
		args.ChainID = (*hexutil.Big)(req.ChainID)
	}

	var hash string
	if err := w.client.CallContext(ctx, &hash, "eth_sendTransaction", args); err != nil {
		return "", err
	}
	return hash, nil
}

// rpcReceipt holds the receipt fields the flow reads. Wallets return the full
// receipt object; the rest is ignored.
type rpcReceipt struct {
	TransactionHash string         `json:"transactionHash"`
	Status          hexutil.Uint64 `json:"status"`
	BlockNumber     hexutil.Uint64 `json:"blockNumber"`
}

func (w *RPCWallet) TransactionReceipt(ctx context.Context, hash string) (*types.Receipt, error) {
	var raw json.RawMessage
	if err := w.client.CallContext(ctx, &raw, "eth_getTransactionReceipt", hash); err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var rc rpcReceipt
	if err := json.Unmarshal(raw, &rc); err != nil {
		return nil, fmt.Errorf("failed to decode receipt for %s: %w", hash, err)
	}
	if rc.TransactionHash == "" {
		rc.TransactionHash = hash
	}
	return &types.Receipt{
		TxHash:      rc.TransactionHash,
		Status:      uint64(rc.Status),
		BlockNumber: uint64(rc.BlockNumber),
	}, nil
}

var _ Provider = (*RPCWallet)(nil)
