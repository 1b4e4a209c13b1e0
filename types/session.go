package types

import (
	"encoding/json"
	"math/big"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// WalletSession is the connected identity a payment attempt is made from.
// The address never changes; the network is set by the network selector.
type WalletSession struct {
	// use is held for reading while a submission is in flight and for
	// writing while the network changes.
	use sync.RWMutex

	mu      sync.RWMutex
	address string
	network Network
	chainID *big.Int
}

// NewWalletSession creates a session for address with no network selected.
func NewWalletSession(address string) *WalletSession {
	return &WalletSession{address: address}
}

func (s *WalletSession) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.address
}

// Network returns the selected network and its chain id. Both are zero until
// the network selector succeeds.
func (s *WalletSession) Network() (Network, *big.Int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.chainID == nil {
		return s.network, nil
	}
	return s.network, new(big.Int).Set(s.chainID)
}

// SetNetwork records the active network. It waits for in-flight submissions.
func (s *WalletSession) SetNetwork(n Network, chainID *big.Int) {
	s.use.Lock()
	defer s.use.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.network = n
	if chainID != nil {
		s.chainID = new(big.Int).Set(chainID)
	}
}

// BeginSubmit pins the session network until the returned func is called.
func (s *WalletSession) BeginSubmit() (release func()) {
	s.use.RLock()
	return s.use.RUnlock
}

// PaymentIntent is derived fresh for every payment attempt.
type PaymentIntent struct {
	ID           string          `json:"id"`
	Payer        string          `json:"payer"`
	Payee        string          `json:"payee"`
	AmountFiat   decimal.Decimal `json:"amountFiat"`
	AmountNative *big.Int        `json:"amountNative"`
	Network      Network         `json:"network,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// TransferRequest is a plain native value transfer handed to the wallet.
type TransferRequest struct {
	From    string
	To      string
	Value   *big.Int
	Gas     uint64
	ChainID *big.Int
}

const (
	ReceiptStatusFailed     uint64 = 0
	ReceiptStatusSuccessful uint64 = 1
)

// Receipt is the finality receipt of a mined transaction.
type Receipt struct {
	TxHash      string `json:"transactionHash"`
	Status      uint64 `json:"status"`
	BlockNumber uint64 `json:"blockNumber"`
}

func (r *Receipt) Succeeded() bool {
	return r != nil && r.Status == ReceiptStatusSuccessful
}

// TxStatus is the lifecycle state of a submitted transaction.
type TxStatus int

const (
	TxPending TxStatus = iota
	TxConfirmed
	TxFailed
)

func (s TxStatus) String() string {
	switch s {
	case TxPending:
		return "pending"
	case TxConfirmed:
		return "confirmed"
	case TxFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// TransactionRecord tracks one submitted transfer. It leaves Pending at most
// once and is never reopened.
type TransactionRecord struct {
	Hash   string
	Intent PaymentIntent

	mu      sync.Mutex
	status  TxStatus
	receipt *Receipt
}

func NewTransactionRecord(hash string, intent PaymentIntent) *TransactionRecord {
	return &TransactionRecord{Hash: hash, Intent: intent, status: TxPending}
}

func (r *TransactionRecord) Status() TxStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *TransactionRecord) Receipt() *Receipt {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.receipt
}

func (r *TransactionRecord) MarkConfirmed(receipt *Receipt) error {
	return r.finalize(TxConfirmed, receipt)
}

// MarkFailed finalizes the record as failed. receipt is nil when the
// transaction was never observed.
func (r *TransactionRecord) MarkFailed(receipt *Receipt) error {
	return r.finalize(TxFailed, receipt)
}

func (r *TransactionRecord) finalize(status TxStatus, receipt *Receipt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != TxPending {
		return ErrRecordFinalized
	}
	r.status = status
	r.receipt = receipt
	return nil
}

// ConfirmationOutcome is the result of waiting for a transaction.
type ConfirmationOutcome int

const (
	OutcomeConfirmed ConfirmationOutcome = iota + 1
	OutcomeFailed
	OutcomeTimedOut
)

func (o ConfirmationOutcome) String() string {
	switch o {
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeFailed:
		return "failed"
	case OutcomeTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// GatedRequest is one fetch of a protected resource.
type GatedRequest struct {
	ResourcePath string
	Proof        string
}

// PaymentRequirement is what a gate asks for when it answers 402.
type PaymentRequirement struct {
	RequiredAmount    string `json:"requiredAmount"`
	Network           string `json:"network"`
	Recipient         string `json:"recipient"`
	Scheme            string `json:"scheme"`
	Asset             string `json:"asset,omitempty"`
	Resource          string `json:"resource,omitempty"`
	Description       string `json:"description,omitempty"`
	MaxTimeoutSeconds int    `json:"maxTimeoutSeconds,omitempty"`

	// Error is the gate's explanation, e.g. why the presented proof was refused.
	Error string `json:"error,omitempty"`

	// Accepts lists every option the gate offered.
	Accepts []PaymentRequirements `json:"accepts,omitempty"`

	// Raw is the undecoded response body.
	Raw json.RawMessage `json:"-"`
}
