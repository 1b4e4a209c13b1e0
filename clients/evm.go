package clients

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/vitwit/x402pay/types"
	"github.com/vitwit/x402pay/utils"
)

// ChainReader is the part of ethclient.Client the verifier uses.
type ChainReader interface {
	TransactionByHash(ctx context.Context, hash common.Hash) (tx *gethtypes.Transaction, isPending bool, err error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*gethtypes.Header, error)
}

var _ Client = (*EVMClient)(nil)

// EVMClient verifies native value transfers on one EVM network.
type EVMClient struct {
	network types.Network
	chainID *big.Int
	reader  ChainReader
	closer  func()
	now     func() time.Time
}

// NewEVMClient dials the network's RPC endpoint.
func NewEVMClient(ctx context.Context, network types.NetworkDescriptor) (*EVMClient, error) {
	rpcURL := network.RPCURL()
	if rpcURL == "" {
		return nil, fmt.Errorf("network %s has no rpc url", network.Network)
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum RPC: %w", err)
	}

	c := NewEVMClientWithReader(network.Network, network.ChainID, client)
	c.closer = client.Close
	return c, nil
}

// NewEVMClientWithReader wraps an existing chain reader.
func NewEVMClientWithReader(network types.Network, chainID *big.Int, reader ChainReader) *EVMClient {
	return &EVMClient{
		network: network,
		chainID: new(big.Int).Set(chainID),
		reader:  reader,
		closer:  func() {},
		now:     time.Now,
	}
}

func (e *EVMClient) GetNetwork() types.Network {
	return e.network
}

func (e *EVMClient) Close() {
	e.closer()
}

// VerifyPayment checks that txHash is a successful native transfer on this
// network, to requirements.PayTo, of at least requirements.MaxAmountRequired.
// When MaxTimeoutSeconds is set the transfer must also be that recent.
//
// A payment that does not qualify is reported through the result; the error
// is reserved for failures to talk to the chain.
func (e *EVMClient) VerifyPayment(ctx context.Context, txHash string, requirements *types.PaymentRequirements) (*types.VerificationResult, error) {
	if types.Network(requirements.Network) != e.network {
		return types.Invalid(ErrInvalidNetwork), nil
	}
	if requirements.Asset != "" && requirements.Asset != "native" {
		return types.Invalid(ErrUnsupportedAsset), nil
	}
	if err := utils.ValidateTransactionHash(txHash); err != nil {
		return types.Invalid(ErrInvalidTransactionHash), nil
	}
	required, err := utils.ParseBigInt(requirements.MaxAmountRequired)
	if err != nil {
		return nil, fmt.Errorf("invalid maxAmountRequired: %w", err)
	}

	hash := common.HexToHash(txHash)

	tx, pending, err := e.reader.TransactionByHash(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return types.Invalid(ErrTransactionNotFound), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transaction: %w", err)
	}
	if pending {
		return types.Invalid(ErrTransactionPending), nil
	}

	receipt, err := e.reader.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return types.Invalid(ErrTransactionPending), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch receipt: %w", err)
	}
	if receipt.Status != gethtypes.ReceiptStatusSuccessful {
		return types.Invalid(ErrTransactionReverted), nil
	}

	if txChain := tx.ChainId(); txChain != nil && txChain.Sign() != 0 && txChain.Cmp(e.chainID) != 0 {
		return types.Invalid(ErrChainMismatch), nil
	}
	if tx.To() == nil || !utils.SameAddress(tx.To().Hex(), requirements.PayTo) {
		return types.Invalid(ErrRecipientMismatch), nil
	}
	if tx.Value().Cmp(required) < 0 {
		return types.Invalid(ErrInsufficientAmount), nil
	}

	result := &types.VerificationResult{
		IsValid:   true,
		Amount:    tx.Value().String(),
		Recipient: tx.To().Hex(),
		TxHash:    hash.Hex(),
		Network:   string(e.network),
	}
	if receipt.BlockNumber != nil {
		result.BlockNumber = receipt.BlockNumber.Uint64()
	}

	if from, err := gethtypes.Sender(gethtypes.LatestSignerForChainID(e.chainID), tx); err == nil {
		result.Payer = from.Hex()
	}

	if receipt.BlockNumber != nil {
		header, err := e.reader.HeaderByNumber(ctx, receipt.BlockNumber)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch block header: %w", err)
		}
		ts := time.Unix(int64(header.Time), 0).UTC()
		result.Timestamp = &ts

		if requirements.MaxTimeoutSeconds > 0 {
			maxAge := time.Duration(requirements.MaxTimeoutSeconds) * time.Second
			if e.now().Sub(ts) > maxAge {
				return types.Invalid(ErrPaymentExpired), nil
			}
		}
	}

	return result, nil
}
