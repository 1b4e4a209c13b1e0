package verification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vitwit/x402pay/clients"
	"github.com/vitwit/x402pay/types"
	"github.com/vitwit/x402pay/utils"
)

// Verifier checks a payment proof against what a resource costs.
type Verifier interface {
	Verify(ctx context.Context, txHash string, requirements *types.PaymentRequirements) (*types.VerificationResult, error)
}

// VerificationService routes verification to the client of the payment's
// network.
type VerificationService struct {
	mu      sync.RWMutex
	clients map[types.Network]clients.Client
	timeout time.Duration
}

// NewVerificationService creates a new verification service
func NewVerificationService(timeout time.Duration) *VerificationService {
	return &VerificationService{
		clients: make(map[types.Network]clients.Client),
		timeout: timeout,
	}
}

// AddEVMClient adds an EVM client for a specific network
func (s *VerificationService) AddEVMClient(client clients.Client) error {
	network := client.GetNetwork()
	if !network.IsEVM() {
		return &types.X402Error{
			Code:    types.ErrUnsupportedNetwork,
			Message: fmt.Sprintf("network %s is not an EVM network", network),
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[network] = client
	return nil
}

// Close closes every registered client.
func (s *VerificationService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		c.Close()
	}
}

// Verify verifies a payment against requirements
func (s *VerificationService) Verify(ctx context.Context, txHash string, requirements *types.PaymentRequirements) (*types.VerificationResult, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if err := utils.ValidateTransactionHash(txHash); err != nil {
		return types.Invalid(fmt.Sprintf("invalid payload: %v", err)), nil
	}
	if err := requirements.Validate(); err != nil {
		return types.Invalid(fmt.Sprintf("invalid requirements: %v", err)), nil
	}

	network := types.Network(requirements.Network)

	s.mu.RLock()
	client, ok := s.clients[network]
	s.mu.RUnlock()
	if !ok {
		return types.Invalid(fmt.Sprintf("unsupported network: %s", network)), nil
	}

	result, err := client.VerifyPayment(ctx, txHash, requirements)
	if err != nil {
		return nil, fmt.Errorf("verify %s on %s: %w", txHash, network, err)
	}
	if result.IsValid && result.Network == "" {
		result.Network = string(network)
	}
	return result, nil
}

var _ Verifier = (*VerificationService)(nil)
