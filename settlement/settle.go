// Package settlement records verified payments as spent so one transaction
// pays for one request.
package settlement

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrAlreadySettled is returned when a transaction hash has already been used
// to pay for a request.
var ErrAlreadySettled = errors.New("payment already settled")

// DefaultRetention is how long a settled hash is remembered.
const DefaultRetention = 24 * time.Hour

// Settler marks a payment as consumed. Settle must be atomic: of two
// concurrent calls for the same hash exactly one succeeds.
type Settler interface {
	Settle(ctx context.Context, txHash string) error
}

// MemoryLedger is a process-local Settler.
type MemoryLedger struct {
	retention time.Duration
	now       func() time.Time

	mu      sync.Mutex
	settled map[string]time.Time
}

func NewMemoryLedger(retention time.Duration) *MemoryLedger {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &MemoryLedger{
		retention: retention,
		now:       time.Now,
		settled:   make(map[string]time.Time),
	}
}

func (l *MemoryLedger) Settle(ctx context.Context, txHash string) error {
	key := normalize(txHash)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if exp, ok := l.settled[key]; ok && now.Before(exp) {
		return ErrAlreadySettled
	}
	l.settled[key] = now.Add(l.retention)
	l.sweep(now)
	return nil
}

// sweep drops expired entries. Caller holds mu.
func (l *MemoryLedger) sweep(now time.Time) {
	for k, exp := range l.settled {
		if !now.Before(exp) {
			delete(l.settled, k)
		}
	}
}

// Len returns the number of hashes currently remembered.
func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.settled)
}

func normalize(txHash string) string {
	return strings.ToLower(strings.TrimSpace(txHash))
}

var _ Settler = (*MemoryLedger)(nil)
