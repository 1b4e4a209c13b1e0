package clients

// Invalid reasons reported in VerificationResult.InvalidReason.
const (
	ErrInvalidNetwork         = "invalid_network"
	ErrInvalidTransactionHash = "invalid_transaction_hash"
	ErrUnsupportedAsset       = "unsupported_asset"

	ErrTransactionNotFound = "transaction_not_found"
	ErrTransactionPending  = "transaction_pending"
	ErrTransactionReverted = "transaction_reverted"

	ErrChainMismatch      = "chain_id_mismatch"
	ErrRecipientMismatch  = "recipient_mismatch"
	ErrInsufficientAmount = "insufficient_amount"
	ErrPaymentExpired     = "payment_expired"
)
