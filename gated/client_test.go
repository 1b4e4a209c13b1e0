package gated

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/x402pay/types"
)

func TestFetch_PaidPayload(t *testing.T) {
	const payload = `{"message":"This is paid content!","data":"Your premium data here"}`
	var calls int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/data", r.URL.Path)
		assert.Equal(t, "0xABCunique", r.Header.Get(HeaderTransactionHash))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()

	res, err := New(Config{BaseURL: srv.URL}, nil).Fetch(context.Background(), "/api/data", "0xABCunique")
	require.NoError(t, err)
	assert.False(t, res.PaymentRequired())
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, payload, string(res.Payload))

	var out struct {
		Message string `json:"message"`
	}
	require.NoError(t, res.Decode(&out))
	assert.Equal(t, "This is paid content!", out.Message)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetch_PaymentRequired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"requiredAmount":"100","network":"base-sepolia","recipient":"0xR","scheme":"exact"}`))
	}))
	defer srv.Close()

	res, err := New(Config{BaseURL: srv.URL}, nil).Fetch(context.Background(), "api/data", "0xABCunique")
	require.NoError(t, err)
	require.True(t, res.PaymentRequired())
	assert.Equal(t, "100", res.Requirement.RequiredAmount)
	assert.Equal(t, "base-sepolia", res.Requirement.Network)
	assert.Equal(t, "0xR", res.Requirement.Recipient)
	assert.Equal(t, "exact", res.Requirement.Scheme)
	assert.Nil(t, res.Payload)

	err = res.Decode(&struct{}{})
	assert.True(t, types.IsCode(err, types.ErrInvalidPayload))
}

func TestFetch_PaymentRequiredNumericAmount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"requiredAmount":0.01,"network":"base-sepolia","recipient":"0xR","scheme":"exact","error":"payment required"}`))
	}))
	defer srv.Close()

	res, err := New(Config{BaseURL: srv.URL}, nil).Fetch(context.Background(), "/api/data", "")
	require.NoError(t, err)
	require.True(t, res.PaymentRequired())
	assert.Equal(t, "0.01", res.Requirement.RequiredAmount)
	assert.Equal(t, "base-sepolia", res.Requirement.Network)
	assert.Equal(t, "0xR", res.Requirement.Recipient)
	assert.Equal(t, "exact", res.Requirement.Scheme)
	assert.Equal(t, "payment required", res.Requirement.Error)
}

func TestFetch_PaymentRequiredUnknownShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte("pay first"))
	}))
	defer srv.Close()

	res, err := New(Config{BaseURL: srv.URL}, nil).Fetch(context.Background(), "/api/data", "")
	require.NoError(t, err)
	require.True(t, res.PaymentRequired())
	assert.Equal(t, "pay first", res.Requirement.Error)
	assert.Equal(t, "pay first", string(res.Requirement.Raw))
}

func TestFetch_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"verification failed"}`))
	}))
	defer srv.Close()

	res, err := New(Config{BaseURL: srv.URL}, nil).Fetch(context.Background(), "/api/data", "0x1")
	assert.Nil(t, res)

	var xe *types.X402Error
	require.ErrorAs(t, err, &xe)
	assert.Equal(t, types.ErrServerError, xe.Code)
	assert.Equal(t, http.StatusInternalServerError, xe.Status)
	assert.Equal(t, "500 Internal Server Error: verification failed", xe.Message)
}

func TestFetch_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	res, err := New(Config{BaseURL: url}, nil).Fetch(context.Background(), "/api/data", "0x1")
	assert.Nil(t, res)
	assert.True(t, types.IsCode(err, types.ErrNetworkError))
}

func TestFetch_BodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	_, err := New(Config{BaseURL: srv.URL, MaxBodyBytes: 16}, nil).Fetch(context.Background(), "/", "0x1")
	assert.True(t, types.IsCode(err, types.ErrNetworkError))
}

func TestFetch_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(Config{BaseURL: srv.URL}, nil).Fetch(ctx, "/api/data", "0x1")
	assert.True(t, types.IsCode(err, types.ErrNetworkError))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolve(t *testing.T) {
	c := New(Config{BaseURL: "http://localhost:3001/"}, nil)
	assert.Equal(t, "http://localhost:3001/api/data", c.resolve("/api/data"))
	assert.Equal(t, "http://localhost:3001/api/data", c.resolve("api/data"))
	assert.Equal(t, "https://other/x", c.resolve("https://other/x"))
}
