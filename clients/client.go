// Package clients reads payments back from the chain they were made on.
package clients

import (
	"context"

	"github.com/vitwit/x402pay/types"
)

// Client verifies that a transaction satisfies a payment requirement.
type Client interface {
	VerifyPayment(ctx context.Context, txHash string, requirements *types.PaymentRequirements) (*types.VerificationResult, error)
	GetNetwork() types.Network
	Close()
}
