package gate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/x402pay/pricing"
	"github.com/vitwit/x402pay/settlement"
	"github.com/vitwit/x402pay/types"
)

const payTo = "0x1f0184dc26a675008383f6c4c50CE53fB0473645"

var paidHash = "0x" + strings.Repeat("ab", 32)

// MockVerifier answers Verify with VerifyFunc.
type MockVerifier struct {
	VerifyFunc func(ctx context.Context, txHash string, req *types.PaymentRequirements) (*types.VerificationResult, error)
	calls      int
}

func (m *MockVerifier) Verify(ctx context.Context, txHash string, req *types.PaymentRequirements) (*types.VerificationResult, error) {
	m.calls++
	return m.VerifyFunc(ctx, txHash, req)
}

func acceptAll() *MockVerifier {
	return &MockVerifier{VerifyFunc: func(ctx context.Context, txHash string, req *types.PaymentRequirements) (*types.VerificationResult, error) {
		return &types.VerificationResult{IsValid: true, TxHash: txHash, Payer: "0xPAYER", Amount: req.MaxAmountRequired}, nil
	}}
}

func newGate(t *testing.T, v *MockVerifier) *Gate {
	t.Helper()
	g, err := New(Config{
		PayTo: payTo,
		Routes: map[string]Route{
			"GET /api/data": {Price: "$0.01", Network: types.NetworkBaseSepolia, Description: "premium data"},
		},
		Converter:       pricing.Converter{Rate: decimal.NewFromInt(2000), Decimals: 18},
		ResourceBaseURL: "http://localhost:3001",
		Verifier:        v,
	})
	require.NoError(t, err)
	return g
}

var paidContent = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	p, ok := PaymentFromContext(r.Context())
	if !ok {
		http.Error(w, "no payment in context", http.StatusTeapot)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"message": "This is paid content!",
		"data":    "Your premium data here",
		"payer":   p.Payer,
	})
})

func serve(g *Gate, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	g.Middleware(paidContent).ServeHTTP(rec, req)
	return rec
}

func decode402(t *testing.T, rec *httptest.ResponseRecorder) types.X402Response {
	t.Helper()
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	var body types.X402Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestMiddleware_MissingHeader(t *testing.T) {
	v := acceptAll()
	rec := serve(newGate(t, v), httptest.NewRequest(http.MethodGet, "/api/data", nil))

	body := decode402(t, rec)
	assert.Equal(t, 1, body.X402Version)
	assert.Equal(t, MsgHeaderRequired, body.Error)
	require.Len(t, body.Accepts, 1)
	req := body.Accepts[0]
	assert.Equal(t, "exact", req.Scheme)
	assert.Equal(t, "base-sepolia", req.Network)
	assert.Equal(t, "5000000000000", req.MaxAmountRequired)
	assert.Equal(t, payTo, req.PayTo)
	assert.Equal(t, "http://localhost:3001/api/data", req.Resource)
	assert.Equal(t, DefaultMaxTimeoutSeconds, req.MaxTimeoutSeconds)
	assert.Zero(t, v.calls)
}

func TestMiddleware_PaidRequest(t *testing.T) {
	g := newGate(t, acceptAll())
	req := httptest.NewRequest(http.MethodGet, "/api/data", nil)
	req.Header.Set(types.HeaderTransactionHash, paidHash)

	rec := serve(g, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "This is paid content!", body["message"])
	assert.Equal(t, "0xPAYER", body["payer"])
}

func TestMiddleware_ReplayRejected(t *testing.T) {
	g := newGate(t, acceptAll())
	for i, want := range []int{http.StatusOK, http.StatusPaymentRequired} {
		req := httptest.NewRequest(http.MethodGet, "/api/data", nil)
		req.Header.Set(types.HeaderTransactionHash, paidHash)
		rec := serve(g, req)
		require.Equal(t, want, rec.Code, "request %d", i)
		if want == http.StatusPaymentRequired {
			assert.Equal(t, MsgAlreadyUsed, decode402(t, rec).Error)
		}
	}
}

func TestMiddleware_InvalidPayment(t *testing.T) {
	v := &MockVerifier{VerifyFunc: func(ctx context.Context, txHash string, req *types.PaymentRequirements) (*types.VerificationResult, error) {
		return types.Invalid("insufficient_amount"), nil
	}}
	req := httptest.NewRequest(http.MethodGet, "/api/data", nil)
	req.Header.Set(types.HeaderTransactionHash, paidHash)

	body := decode402(t, serve(newGate(t, v), req))
	assert.Equal(t, "insufficient_amount", body.Error)
}

func TestMiddleware_VerifierError(t *testing.T) {
	v := &MockVerifier{VerifyFunc: func(ctx context.Context, txHash string, req *types.PaymentRequirements) (*types.VerificationResult, error) {
		return nil, errors.New("rpc down")
	}}
	req := httptest.NewRequest(http.MethodGet, "/api/data", nil)
	req.Header.Set(types.HeaderTransactionHash, paidHash)

	rec := serve(newGate(t, v), req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "rpc down")
}

func TestMiddleware_NilVerificationResult(t *testing.T) {
	v := &MockVerifier{VerifyFunc: func(ctx context.Context, txHash string, req *types.PaymentRequirements) (*types.VerificationResult, error) {
		return nil, nil
	}}
	req := httptest.NewRequest(http.MethodGet, "/api/data", nil)
	req.Header.Set(types.HeaderTransactionHash, paidHash)

	body := decode402(t, serve(newGate(t, v), req))
	assert.Equal(t, MsgNotVerified, body.Error)
}

type failingSettler struct{}

func (failingSettler) Settle(ctx context.Context, txHash string) error { return errors.New("redis down") }

func TestMiddleware_SettlerError(t *testing.T) {
	g := newGate(t, acceptAll())
	g.settler = failingSettler{}
	req := httptest.NewRequest(http.MethodGet, "/api/data", nil)
	req.Header.Set(types.HeaderTransactionHash, paidHash)

	rec := serve(g, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "redis down")
}

func TestMiddleware_UnpricedRoutesPass(t *testing.T) {
	g := newGate(t, acceptAll())
	var reached bool
	h := g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		_, ok := PaymentFromContext(r.Context())
		assert.False(t, ok)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.True(t, reached)

	reached = false
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/data", nil))
	assert.True(t, reached, "only GET is priced")
}

func TestNew_Validation(t *testing.T) {
	base := Config{
		PayTo:     payTo,
		Converter: pricing.Converter{Rate: decimal.NewFromInt(2000), Decimals: 18},
		Verifier:  acceptAll(),
	}

	cases := map[string]func(c *Config){
		"no verifier": func(c *Config) {
			c.Verifier = nil
			c.Routes = map[string]Route{"/x": {Price: "$1", Network: types.NetworkBase}}
		},
		"no routes":   func(c *Config) {},
		"bad price":   func(c *Config) { c.Routes = map[string]Route{"/x": {Price: "free", Network: types.NetworkBase}} },
		"bad network": func(c *Config) { c.Routes = map[string]Route{"/x": {Price: "$1", Network: "solana"}} },
		"bad pattern": func(c *Config) { c.Routes = map[string]Route{"GET /x extra": {Price: "$1", Network: types.NetworkBase}} },
		"bad pay to": func(c *Config) {
			c.PayTo = "0xnotanaddress"
			c.Routes = map[string]Route{"/x": {Price: "$1", Network: types.NetworkBase}}
		},
		"no pay to": func(c *Config) {
			c.PayTo = ""
			c.Routes = map[string]Route{"/x": {Price: "$1", Network: types.NetworkBase}}
		},
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base
			mutate(&cfg)
			_, err := New(cfg)
			assert.True(t, types.IsCode(err, types.ErrConfigError), err)
		})
	}
}

func TestNew_DefaultSettler(t *testing.T) {
	g := newGate(t, acceptAll())
	_, ok := g.settler.(*settlement.MemoryLedger)
	assert.True(t, ok)
}
