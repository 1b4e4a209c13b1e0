// Package gate protects HTTP routes behind a per-request on-chain payment.
//
// A request to a priced route must carry the hash of a transfer that pays
// for it in the X-Transaction-Hash header. Without one the gate answers 402
// with the x402 payment requirements. With one the payment is verified,
// recorded as spent and the request is forwarded.
package gate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/vitwit/x402pay/logger"
	"github.com/vitwit/x402pay/metrics"
	"github.com/vitwit/x402pay/pricing"
	"github.com/vitwit/x402pay/settlement"
	"github.com/vitwit/x402pay/types"
	"github.com/vitwit/x402pay/utils"
	"github.com/vitwit/x402pay/verification"
)

const (
	// DefaultMaxTimeoutSeconds is how old a paying transfer may be.
	DefaultMaxTimeoutSeconds = 300

	MsgHeaderRequired = "X-Transaction-Hash header is required"
	MsgAlreadyUsed    = "payment has already been used"
	MsgNotVerified    = "payment could not be verified"
)

// Route prices one endpoint.
type Route struct {
	// Price in USD, e.g. "$0.01".
	Price   string
	Network types.Network
	// PayTo overrides Config.PayTo for this route.
	PayTo             string
	Description       string
	MimeType          string
	MaxTimeoutSeconds int
}

// Config configures a Gate.
type Config struct {
	// PayTo receives payments for routes that do not set their own.
	PayTo string
	// Routes maps "METHOD /path" (or just "/path" for any method) to its price.
	Routes map[string]Route
	// Converter turns route prices into native amounts.
	Converter pricing.Converter
	// ResourceBaseURL prefixes the path in the advertised resource URL.
	ResourceBaseURL string

	Verifier verification.Verifier
	// Settler defaults to an in-memory ledger.
	Settler settlement.Settler

	Logger  logger.Logger
	Metrics metrics.Recorder
}

type routeKey struct {
	method string
	path   string
}

// Gate decides whether a request may reach a priced handler.
type Gate struct {
	routes   map[routeKey]types.PaymentRequirements
	verifier verification.Verifier
	settler  settlement.Settler
	log      logger.Logger
	metrics  metrics.Recorder
}

func New(cfg Config) (*Gate, error) {
	if cfg.Verifier == nil {
		return nil, types.NewError(types.ErrConfigError, "gate verifier is required", nil)
	}
	if len(cfg.Routes) == 0 {
		return nil, types.NewError(types.ErrConfigError, "gate has no priced routes", nil)
	}

	g := &Gate{
		routes:   make(map[routeKey]types.PaymentRequirements, len(cfg.Routes)),
		verifier: cfg.Verifier,
		settler:  cfg.Settler,
		log:      logger.OrNoop(cfg.Logger),
		metrics:  metrics.OrNoop(cfg.Metrics),
	}
	if g.settler == nil {
		g.settler = settlement.NewMemoryLedger(settlement.DefaultRetention)
	}

	for pattern, route := range cfg.Routes {
		key, err := parsePattern(pattern)
		if err != nil {
			return nil, types.NewError(types.ErrConfigError, err.Error(), err)
		}
		req, err := requirementsFor(cfg, key, route)
		if err != nil {
			return nil, types.NewError(types.ErrConfigError, fmt.Sprintf("route %q: %v", pattern, err), err)
		}
		g.routes[key] = req
	}
	return g, nil
}

func parsePattern(pattern string) (routeKey, error) {
	parts := strings.Fields(pattern)
	switch len(parts) {
	case 1:
		return routeKey{path: parts[0]}, nil
	case 2:
		return routeKey{method: strings.ToUpper(parts[0]), path: parts[1]}, nil
	default:
		return routeKey{}, fmt.Errorf("invalid route pattern %q", pattern)
	}
}

func requirementsFor(cfg Config, key routeKey, route Route) (types.PaymentRequirements, error) {
	price, err := pricing.ParsePrice(route.Price)
	if err != nil {
		return types.PaymentRequirements{}, err
	}
	amount, err := cfg.Converter.NativeAmount(price)
	if err != nil {
		return types.PaymentRequirements{}, err
	}
	if _, err := types.LookupNetwork(route.Network); err != nil {
		return types.PaymentRequirements{}, err
	}

	payTo := route.PayTo
	if payTo == "" {
		payTo = cfg.PayTo
	}
	if payTo == "" {
		return types.PaymentRequirements{}, errors.New("no payTo address")
	}
	if !utils.ValidateAddress(payTo) {
		return types.PaymentRequirements{}, fmt.Errorf("invalid payTo address %q", payTo)
	}

	timeout := route.MaxTimeoutSeconds
	if timeout == 0 {
		timeout = DefaultMaxTimeoutSeconds
	}
	mime := route.MimeType
	if mime == "" {
		mime = "application/json"
	}

	req := types.PaymentRequirements{
		Scheme:            string(types.SchemeExact),
		Network:           string(route.Network),
		MaxAmountRequired: amount.String(),
		Resource:          strings.TrimSuffix(cfg.ResourceBaseURL, "/") + key.path,
		Description:       route.Description,
		MimeType:          mime,
		PayTo:             payTo,
		MaxTimeoutSeconds: timeout,
		Asset:             "native",
		Extra:             map[string]interface{}{"price": price.String(), "currency": "USD"},
	}
	return req, req.Validate()
}

// match returns the requirements for r, preferring a method-specific route.
func (g *Gate) match(r *http.Request) (types.PaymentRequirements, bool) {
	if req, ok := g.routes[routeKey{method: r.Method, path: r.URL.Path}]; ok {
		return req, true
	}
	req, ok := g.routes[routeKey{path: r.URL.Path}]
	return req, ok
}

// decision is the gate's verdict on one request. A zero status lets the
// request through.
type decision struct {
	status  int
	body    any
	payment *types.VerificationResult
}

func (g *Gate) decide(r *http.Request) decision {
	req, priced := g.match(r)
	if !priced {
		return decision{}
	}

	ctx := r.Context()
	labels := map[string]string{metrics.LabelNetwork: req.Network}
	fields := map[string]any{"method": r.Method, "path": r.URL.Path}

	hash := strings.TrimSpace(r.Header.Get(types.HeaderTransactionHash))
	if hash == "" {
		g.count(labels, "payment_required")
		return paymentRequired(req, MsgHeaderRequired)
	}
	fields["txHash"] = hash

	start := time.Now()
	result, err := g.verifier.Verify(ctx, hash, &req)
	g.metrics.ObserveLatency("gate_verify", time.Since(start), labels)
	if err != nil {
		g.count(labels, "error")
		g.log.Error("payment verification error", withField(fields, "error", err))
		return decision{
			status: http.StatusInternalServerError,
			body:   errorBody{Error: fmt.Sprintf("Payment verification error: %v", err)},
		}
	}
	if result == nil {
		result = types.Invalid(MsgNotVerified)
	}
	if !result.IsValid {
		g.count(labels, "invalid")
		g.log.Info("payment rejected", withField(fields, "reason", result.InvalidReason))
		return paymentRequired(req, result.InvalidReason)
	}

	if err := g.settler.Settle(ctx, hash); err != nil {
		if errors.Is(err, settlement.ErrAlreadySettled) {
			g.count(labels, "replayed")
			g.log.Warn("payment replayed", fields)
			return paymentRequired(req, MsgAlreadyUsed)
		}
		g.count(labels, "error")
		g.log.Error("payment settlement error", withField(fields, "error", err))
		return decision{
			status: http.StatusInternalServerError,
			body:   errorBody{Error: fmt.Sprintf("Payment settlement error: %v", err)},
		}
	}

	g.count(labels, "paid")
	g.log.Info("payment accepted", withField(fields, "payer", result.Payer))
	return decision{payment: result}
}

func (g *Gate) count(labels map[string]string, outcome string) {
	g.metrics.IncCounter("gate_request", map[string]string{
		metrics.LabelNetwork: labels[metrics.LabelNetwork],
		metrics.LabelOutcome: outcome,
	})
}

type errorBody struct {
	Error string `json:"error"`
}

func paymentRequired(req types.PaymentRequirements, reason string) decision {
	return decision{
		status: http.StatusPaymentRequired,
		body: types.X402Response{
			X402Version: int(types.X402Version1),
			Accepts:     []types.PaymentRequirements{req},
			Error:       reason,
		},
	}
}

type paymentContextKey struct{}

func withPayment(ctx context.Context, p *types.VerificationResult) context.Context {
	return context.WithValue(ctx, paymentContextKey{}, p)
}

// PaymentFromContext returns the verified payment of a request that passed
// the gate.
func PaymentFromContext(ctx context.Context) (*types.VerificationResult, bool) {
	p, ok := ctx.Value(paymentContextKey{}).(*types.VerificationResult)
	return p, ok && p != nil
}

func withField(fields map[string]any, key string, value any) map[string]any {
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out[key] = value
	return out
}
