package settlement

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLedger_SettlesOnce(t *testing.T) {
	l := NewMemoryLedger(time.Hour)
	ctx := context.Background()

	require.NoError(t, l.Settle(ctx, "0xABC"))
	assert.ErrorIs(t, l.Settle(ctx, "0xabc"), ErrAlreadySettled)
	assert.ErrorIs(t, l.Settle(ctx, " 0xABC "), ErrAlreadySettled)
	require.NoError(t, l.Settle(ctx, "0xDEF"))
	assert.Equal(t, 2, l.Len())
}

func TestMemoryLedger_Expires(t *testing.T) {
	l := NewMemoryLedger(time.Minute)
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, l.Settle(ctx, "0xABC"))
	now = now.Add(2 * time.Minute)
	require.NoError(t, l.Settle(ctx, "0xABC"))
	assert.Equal(t, 1, l.Len())
}

func TestMemoryLedger_Concurrent(t *testing.T) {
	l := NewMemoryLedger(0)
	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Settle(context.Background(), "0xSAME") == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}

// TestRedisLedger runs against a real server when X402PAY_TEST_REDIS_URL is set.
func TestRedisLedger(t *testing.T) {
	url := os.Getenv("X402PAY_TEST_REDIS_URL")
	if url == "" {
		t.Skip("X402PAY_TEST_REDIS_URL not set")
	}

	ctx := context.Background()
	client, err := NewRedisClient(ctx, url)
	require.NoError(t, err)
	defer client.Close()

	l := NewRedisLedger(client, time.Minute)
	hash := "0x" + uuid.NewString()
	defer client.Del(ctx, keyPrefix+hash)

	require.NoError(t, l.Settle(ctx, hash))
	assert.ErrorIs(t, l.Settle(ctx, hash), ErrAlreadySettled)
}

func TestNewRedisClient_BadURL(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "not a url")
	assert.Error(t, err)
}
