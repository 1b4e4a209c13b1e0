package types

import (
	"fmt"
	"time"
)

// X402Version represents the version of the x402 protocol
type X402Version int

const (
	X402Version1 X402Version = 1
)

// HeaderTransactionHash carries the hash of the paying transaction on a
// request for a gated resource.
const HeaderTransactionHash = "X-Transaction-Hash"

// Network represents supported blockchain networks
type Network string

const (
	NetworkEthereum    Network = "ethereum"
	NetworkPolygon     Network = "polygon"
	NetworkPolygonAmoy Network = "polygon-amoy" // testnet
	NetworkBaseSepolia Network = "base-sepolia" // testnet
	NetworkBase        Network = "base"
)

// PaymentScheme represents different payment schemes
type PaymentScheme string

const (
	SchemeExact PaymentScheme = "exact"
)

// PaymentRequirements defines the requirements a resource server accepts for payment.
type PaymentRequirements struct {
	// Scheme of the payment protocol to use (e.g., "exact").
	Scheme string `json:"scheme" validate:"required"`

	// Network of the blockchain to send payment on (e.g., "base-sepolia").
	Network string `json:"network" validate:"required"`

	// Maximum amount required to pay for the resource in atomic units of the asset.
	// Represented as a string because Go does not support uint256.
	MaxAmountRequired string `json:"maxAmountRequired" validate:"required,numeric"`

	// URL of the resource to pay for.
	Resource string `json:"resource"`

	// Description of the resource being purchased.
	Description string `json:"description"`

	// MIME type of the resource response (e.g., "application/json").
	MimeType string `json:"mimeType"`

	// Address to which the payment must be sent.
	PayTo string `json:"payTo" validate:"required"`

	// Maximum time in seconds for the resource server to respond.
	MaxTimeoutSeconds int `json:"maxTimeoutSeconds"`

	// Asset being paid. Empty or "native" for the chain's native currency.
	Asset string `json:"asset"`

	// Extra information about payment details specific to the scheme.
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// X402Response represents a server response that includes supported payment options.
type X402Response struct {
	// Version of the x402 payment protocol.
	X402Version int `json:"x402Version"`

	// List of payment requirements that the resource server accepts.
	Accepts []PaymentRequirements `json:"accepts"`

	// Message from the resource server indicating any processing error.
	Error string `json:"error"`
}

// VerificationResult contains the result of payment verification
type VerificationResult struct {
	IsValid       bool       `json:"isValid"`
	InvalidReason string     `json:"invalidReason,omitempty"`
	Amount        string     `json:"amount,omitempty"`
	Recipient     string     `json:"recipient,omitempty"`
	Payer         string     `json:"payer,omitempty"`
	TxHash        string     `json:"txHash,omitempty"`
	Network       string     `json:"network,omitempty"`
	BlockNumber   uint64     `json:"blockNumber,omitempty"`
	Timestamp     *time.Time `json:"timestamp,omitempty"`
}

// Invalid builds a failed VerificationResult with the given reason.
func Invalid(reason string) *VerificationResult {
	return &VerificationResult{IsValid: false, InvalidReason: reason}
}

func (pr *PaymentRequirements) Validate() error {
	if pr.Scheme == "" {
		return fmt.Errorf("paymentRequirements.scheme is required")
	}

	if pr.Network == "" {
		return fmt.Errorf("paymentRequirements.network is required")
	}

	if pr.MaxAmountRequired == "" {
		return fmt.Errorf("paymentRequirements.maxAmountRequired is required")
	}

	if pr.PayTo == "" {
		return fmt.Errorf("paymentRequirements.payTo is required")
	}

	if pr.MaxTimeoutSeconds < 0 {
		return fmt.Errorf("paymentRequirements.maxTimeoutSeconds must not be negative")
	}

	return nil
}

// Helper functions for network classification
func (n Network) IsEVM() bool {
	_, ok := knownNetworks[n]
	return ok
}

func (n Network) IsTestnet() bool {
	return n == NetworkPolygonAmoy || n == NetworkBaseSepolia
}

func (n Network) String() string {
	return string(n)
}
